package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meshsig/meshsig/internal/api"
	"github.com/meshsig/meshsig/internal/links"
	"github.com/meshsig/meshsig/internal/signaling"
	"github.com/meshsig/meshsig/internal/wallet"
)

// fakeSender is a minimal signaling.Sender double: the api tests only ever
// need to attach endpoints to sessions, never inspect what was sent them.
type fakeSender struct{ id string }

func (f *fakeSender) Send(signaling.Outbound) {}
func (f *fakeSender) ID() string              { return f.id }

func newTestEndpoint(id string) *signaling.Endpoint {
	return signaling.NewEndpoint(&fakeSender{id: id})
}

func newTestServer(t *testing.T) (*httptest.Server, *signaling.Registry) {
	t.Helper()

	registry := signaling.NewRegistry(nil)

	store, err := links.Open(links.Options{InMemory: true})
	if err != nil {
		t.Fatalf("links.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	oracle := wallet.NewStaticOracle(map[string]float64{"whale": 50})
	cache := wallet.NewCache(oracle, 64, time.Minute, nil)
	mgr := links.NewManager(store, cache, registry, links.DefaultThresholds(), nil)

	srv := api.NewServer(registry, store, mgr, nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, registry
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

func TestHealthReportsSessionAndClientCounts(t *testing.T) {
	t.Parallel()

	ts, registry := newTestServer(t)
	if _, err := registry.CreateSession(newTestEndpoint("host-1"), "room", signaling.Settings{}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	var got struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
		Clients  int    `json:"clients"`
	}
	decodeBody(t, resp, &got)
	if got.Status != "ok" || got.Sessions != 1 || got.Clients != 1 {
		t.Fatalf("health = %+v, want status ok, 1 session, 1 client (the host)", got)
	}
}

func TestSessionProbeReflectsRegistryState(t *testing.T) {
	t.Parallel()

	ts, registry := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/session/ghost")
	if err != nil {
		t.Fatalf("GET /api/session/ghost: %v", err)
	}
	var missing struct {
		Exists bool `json:"exists"`
	}
	decodeBody(t, resp, &missing)
	if missing.Exists {
		t.Fatal("unknown session reported as existing")
	}

	if _, err := registry.CreateSession(newTestEndpoint("host-1"), "room", signaling.Settings{}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	resp, err = http.Get(ts.URL + "/api/session/room")
	if err != nil {
		t.Fatalf("GET /api/session/room: %v", err)
	}
	var present struct {
		Exists      bool `json:"exists"`
		HasHost     bool `json:"hasHost"`
		ClientCount int  `json:"clientCount"`
	}
	decodeBody(t, resp, &present)
	if !present.Exists || !present.HasHost || present.ClientCount != 0 {
		t.Fatalf("session probe = %+v, want exists+hasHost with no clients", present)
	}
}

func TestCreateLinkAssignsTierAndGetRoundTrips(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"sessionId": "room", "walletAddress": "whale"})
	resp, err := http.Post(ts.URL+"/api/links", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/links: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /api/links status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		ID   string `json:"id"`
		Tier string `json:"tier"`
	}
	decodeBody(t, resp, &created)
	if created.ID == "" || created.Tier != string(links.TierPremium) {
		t.Fatalf("created link = %+v, want premium tier with an id", created)
	}

	resp, err = http.Get(ts.URL + "/api/links/" + created.ID)
	if err != nil {
		t.Fatalf("GET /api/links/%s: %v", created.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/links/%s status = %d, want 200", created.ID, resp.StatusCode)
	}
}

func TestGetUnknownLinkReturns404(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/links/missing")
	if err != nil {
		t.Fatalf("GET /api/links/missing: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRegenerateAndKeepAliveLink(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"linkId": "link-1", "sessionId": "room", "walletAddress": "whale"})
	resp, err := http.Post(ts.URL+"/api/links", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/links: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Post(ts.URL+"/api/links/link-1/regenerate", "application/json", nil)
	if err != nil {
		t.Fatalf("POST regenerate: %v", err)
	}
	var regenerated struct {
		RegenerationCount int `json:"regenerationCount"`
	}
	decodeBody(t, resp, &regenerated)
	if regenerated.RegenerationCount != 1 {
		t.Fatalf("RegenerationCount = %d, want 1", regenerated.RegenerationCount)
	}

	resp, err = http.Post(ts.URL+"/api/links/link-1/keepalive", "application/json", bytes.NewReader([]byte(`{"reason":"explicit"}`)))
	if err != nil {
		t.Fatalf("POST keepalive: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("keepalive status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLinkNotificationsFilterByLinkID(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"linkId": "link-1", "sessionId": "room", "walletAddress": "whale"})
	resp, err := http.Post(ts.URL+"/api/links", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/links: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/links/link-1/notifications")
	if err != nil {
		t.Fatalf("GET notifications: %v", err)
	}
	var notifs []links.Notification
	decodeBody(t, resp, &notifs)
	if notifs == nil {
		t.Fatal("expected a JSON array, got null")
	}
}
