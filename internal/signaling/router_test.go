package signaling_test

import (
	"encoding/json"
	"testing"

	"github.com/meshsig/meshsig/internal/signaling"
)

func lastMessage(t *testing.T, s *fakeSender) signaling.Outbound {
	t.Helper()
	if len(s.out) == 0 {
		t.Fatalf("sender %q received no messages", s.id)
	}
	return s.out[len(s.out)-1]
}

type stubRouterMetrics struct {
	routed   map[string]int
	rejected map[string]int
}

func newStubRouterMetrics() *stubRouterMetrics {
	return &stubRouterMetrics{routed: map[string]int{}, rejected: map[string]int{}}
}

func (s *stubRouterMetrics) IncMessagesRouted(messageType string)   { s.routed[messageType]++ }
func (s *stubRouterMetrics) IncMessagesRejected(messageType string) { s.rejected[messageType]++ }

func TestRouterReportsRoutedAndRejectedMetrics(t *testing.T) {
	t.Parallel()

	reg := signaling.NewRegistry(nil)
	metrics := newStubRouterMetrics()
	router := signaling.NewRouter(reg, nil, signaling.WithRouterMetrics(metrics))

	host, _ := newTestEndpoint("host-1")
	router.Dispatch(host, []byte(`{"type":"create_session","sessionId":"room"}`))
	if metrics.routed["create_session"] != 1 {
		t.Fatalf("routed[create_session] = %d, want 1", metrics.routed["create_session"])
	}

	router.Dispatch(host, []byte(`{"type":"not_a_real_type"}`))
	if metrics.rejected["not_a_real_type"] != 1 {
		t.Fatalf("rejected[not_a_real_type] = %d, want 1", metrics.rejected["not_a_real_type"])
	}

	router.Dispatch(host, []byte(`not json`))
	if metrics.rejected[""] != 1 {
		t.Fatalf("rejected[\"\"] = %d, want 1", metrics.rejected[""])
	}
}

func TestRouterCreateSessionThenJoin(t *testing.T) {
	t.Parallel()

	reg := signaling.NewRegistry(nil)
	router := signaling.NewRouter(reg, nil)

	host, hostSender := newTestEndpoint("host-1")
	router.Dispatch(host, []byte(`{"type":"create_session","sessionId":"room"}`))

	created := lastMessage(t, hostSender)
	if created.Type != signaling.TypeSessionCreated {
		t.Fatalf("host got type %q, want %q", created.Type, signaling.TypeSessionCreated)
	}

	client, clientSender := newTestEndpoint("client-1")
	router.Dispatch(client, []byte(`{"type":"join","sessionId":"room"}`))

	joined := lastMessage(t, clientSender)
	if joined.Type != signaling.TypeJoined {
		t.Fatalf("client got type %q, want %q", joined.Type, signaling.TypeJoined)
	}

	notified := lastMessage(t, hostSender)
	if notified.Type != signaling.TypePeerJoined || notified.PeerID != "client-1" {
		t.Fatalf("host notification = %+v, want peer_joined from client-1", notified)
	}
}

func TestRouterJoinWrongPasswordRejected(t *testing.T) {
	t.Parallel()

	reg := signaling.NewRegistry(nil)
	router := signaling.NewRouter(reg, nil)

	host, _ := newTestEndpoint("host-1")
	router.Dispatch(host, []byte(`{"type":"create_session","sessionId":"room","password":"secret"}`))

	client, clientSender := newTestEndpoint("client-1")
	router.Dispatch(client, []byte(`{"type":"join","sessionId":"room","password":"wrong"}`))

	reply := lastMessage(t, clientSender)
	if reply.Type != signaling.TypeError {
		t.Fatalf("reply type = %q, want error", reply.Type)
	}
	if _, role := client.Attachment(); role != signaling.RoleNone {
		t.Fatal("client attached to session despite wrong password")
	}
}

func TestRouterNegotiationForwardsFromHostToClient(t *testing.T) {
	t.Parallel()

	reg := signaling.NewRegistry(nil)
	router := signaling.NewRouter(reg, nil)

	host, _ := newTestEndpoint("host-1")
	router.Dispatch(host, []byte(`{"type":"create_session","sessionId":"room"}`))

	client, clientSender := newTestEndpoint("client-1")
	router.Dispatch(client, []byte(`{"type":"join","sessionId":"room"}`))

	router.Dispatch(host, []byte(`{"type":"offer","targetId":"client-1","sdp":{"sdp":"v=0"}}`))

	offer := lastMessage(t, clientSender)
	if offer.Type != signaling.TypeOffer || offer.FromID != "host-1" {
		t.Fatalf("offer = %+v, want offer from host-1", offer)
	}
	var sdp map[string]string
	if err := json.Unmarshal(offer.SDP, &sdp); err != nil {
		t.Fatalf("unmarshal forwarded sdp: %v", err)
	}
	if sdp["sdp"] != "v=0" {
		t.Fatalf("forwarded sdp = %v, want v=0", sdp)
	}
}

func TestRouterNegotiationClientDefaultsToHost(t *testing.T) {
	t.Parallel()

	reg := signaling.NewRegistry(nil)
	router := signaling.NewRouter(reg, nil)

	host, hostSender := newTestEndpoint("host-1")
	router.Dispatch(host, []byte(`{"type":"create_session","sessionId":"room"}`))

	client, _ := newTestEndpoint("client-1")
	router.Dispatch(client, []byte(`{"type":"join","sessionId":"room"}`))

	router.Dispatch(client, []byte(`{"type":"answer","sdp":{"sdp":"v=0"}}`))

	answer := lastMessage(t, hostSender)
	if answer.Type != signaling.TypeAnswer || answer.FromID != "client-1" {
		t.Fatalf("answer = %+v, want answer from client-1", answer)
	}
}

func TestRouterHostRejoinNotifiesExistingClients(t *testing.T) {
	t.Parallel()

	reg := signaling.NewRegistry(nil)
	router := signaling.NewRouter(reg, nil)

	host, _ := newTestEndpoint("host-1")
	router.Dispatch(host, []byte(`{"type":"create_session","sessionId":"room"}`))

	client, clientSender := newTestEndpoint("client-1")
	router.Dispatch(client, []byte(`{"type":"join","sessionId":"room"}`))

	router.Dispatch(host, []byte(`{"type":"leave"}`))
	lastMessage(t, clientSender) // host_disconnected, not under test here

	rejoinedHost, _ := newTestEndpoint("host-2")
	router.Dispatch(rejoinedHost, []byte(`{"type":"host","sessionId":"room"}`))

	notified := lastMessage(t, clientSender)
	if notified.Type != signaling.TypePeerJoined || notified.PeerID != "host-2" || !notified.IsHost {
		t.Fatalf("client notification = %+v, want peer_joined isHost from host-2", notified)
	}
}

func TestRouterJoinWithIsHostAttachesAsHost(t *testing.T) {
	t.Parallel()

	reg := signaling.NewRegistry(nil)
	router := signaling.NewRouter(reg, nil)

	host, _ := newTestEndpoint("host-1")
	router.Dispatch(host, []byte(`{"type":"create_session","sessionId":"room"}`))
	router.Dispatch(host, []byte(`{"type":"leave"}`))

	client, clientSender := newTestEndpoint("client-1")
	router.Dispatch(client, []byte(`{"type":"join","sessionId":"room"}`))
	lastMessage(t, clientSender) // joined, not under test here

	rejoinedHost, hostSender := newTestEndpoint("host-2")
	router.Dispatch(rejoinedHost, []byte(`{"type":"join","sessionId":"room","isHost":true}`))

	joined := lastMessage(t, hostSender)
	if joined.Type != signaling.TypeJoined || !joined.IsHost {
		t.Fatalf("host reply = %+v, want joined isHost", joined)
	}
	if _, role := rejoinedHost.Attachment(); role != signaling.RoleHost {
		t.Fatalf("join{isHost:true} attached as role %v, want RoleHost", role)
	}

	notified := lastMessage(t, clientSender)
	if notified.Type != signaling.TypePeerJoined || notified.PeerID != "host-2" || !notified.IsHost {
		t.Fatalf("client notification = %+v, want peer_joined isHost from host-2", notified)
	}
}

func TestRouterNegotiationHostWithNoTargetFansOutToAllClients(t *testing.T) {
	t.Parallel()

	reg := signaling.NewRegistry(nil)
	router := signaling.NewRouter(reg, nil)

	host, _ := newTestEndpoint("host-1")
	router.Dispatch(host, []byte(`{"type":"create_session","sessionId":"room"}`))

	client1, client1Sender := newTestEndpoint("client-1")
	router.Dispatch(client1, []byte(`{"type":"join","sessionId":"room"}`))
	client2, client2Sender := newTestEndpoint("client-2")
	router.Dispatch(client2, []byte(`{"type":"join","sessionId":"room"}`))

	router.Dispatch(host, []byte(`{"type":"offer","sdp":{"sdp":"v=0"}}`))

	for _, sender := range []*fakeSender{client1Sender, client2Sender} {
		offer := lastMessage(t, sender)
		if offer.Type != signaling.TypeOffer || offer.FromID != "host-1" {
			t.Fatalf("offer to %q = %+v, want offer from host-1", sender.id, offer)
		}
	}
}

func TestRouterBroadcastOnlyFromHost(t *testing.T) {
	t.Parallel()

	reg := signaling.NewRegistry(nil)
	router := signaling.NewRouter(reg, nil)

	host, _ := newTestEndpoint("host-1")
	router.Dispatch(host, []byte(`{"type":"create_session","sessionId":"room"}`))

	client, clientSender := newTestEndpoint("client-1")
	router.Dispatch(client, []byte(`{"type":"join","sessionId":"room"}`))

	router.Dispatch(client, []byte(`{"type":"broadcast","data":{"x":1}}`))
	reply := lastMessage(t, clientSender)
	if reply.Type != signaling.TypeError {
		t.Fatalf("client broadcast reply = %+v, want error", reply)
	}

	router.Dispatch(host, []byte(`{"type":"broadcast","data":{"x":1}}`))
	msg := lastMessage(t, clientSender)
	if msg.Type != signaling.TypeBroadcast || msg.FromID != "host-1" {
		t.Fatalf("client received = %+v, want broadcast from host-1", msg)
	}
}

func TestRouterQuerySessionOmitsIdentifiers(t *testing.T) {
	t.Parallel()

	reg := signaling.NewRegistry(nil)
	router := signaling.NewRouter(reg, nil)

	host, _ := newTestEndpoint("host-1")
	router.Dispatch(host, []byte(`{"type":"create_session","sessionId":"room"}`))

	caller, callerSender := newTestEndpoint("caller-1")
	router.Dispatch(caller, []byte(`{"type":"query_session","sessionId":"room"}`))

	reply := lastMessage(t, callerSender)
	if reply.Type != signaling.TypeSessionResponse || !reply.Found {
		t.Fatalf("reply = %+v, want found session_response", reply)
	}
	if !reply.Session.HasHost {
		t.Fatal("session summary reports no host despite attached host")
	}

	router.Dispatch(caller, []byte(`{"type":"query_session","sessionId":"missing"}`))
	miss := lastMessage(t, callerSender)
	if miss.Found {
		t.Fatal("query_session for missing session reported Found=true")
	}
}

func TestRouterHostLeaveNotifiesClients(t *testing.T) {
	t.Parallel()

	reg := signaling.NewRegistry(nil)
	router := signaling.NewRouter(reg, nil)

	host, _ := newTestEndpoint("host-1")
	router.Dispatch(host, []byte(`{"type":"create_session","sessionId":"room"}`))

	client, clientSender := newTestEndpoint("client-1")
	router.Dispatch(client, []byte(`{"type":"join","sessionId":"room"}`))

	router.Dispatch(host, []byte(`{"type":"leave"}`))

	msg := lastMessage(t, clientSender)
	if msg.Type != signaling.TypeHostDisconnected {
		t.Fatalf("client received = %+v, want host_disconnected", msg)
	}
}

func TestRouterUpdatePasswordForwardsToClients(t *testing.T) {
	t.Parallel()

	reg := signaling.NewRegistry(nil)
	router := signaling.NewRouter(reg, nil)

	host, hostSender := newTestEndpoint("host-1")
	router.Dispatch(host, []byte(`{"type":"create_session","sessionId":"room"}`))

	client, clientSender := newTestEndpoint("client-1")
	router.Dispatch(client, []byte(`{"type":"join","sessionId":"room"}`))

	router.Dispatch(host, []byte(`{"type":"update_password","password":"new-pass"}`))

	confirmed := lastMessage(t, hostSender)
	if confirmed.Type != signaling.TypePasswordUpdateConfirmed {
		t.Fatalf("host reply = %+v, want password_update_confirmed", confirmed)
	}
	pushed := lastMessage(t, clientSender)
	if pushed.Type != signaling.TypePasswordUpdated || pushed.Password != "new-pass" {
		t.Fatalf("client reply = %+v, want password_updated with new-pass", pushed)
	}
}

func TestRouterUnknownTypeYieldsError(t *testing.T) {
	t.Parallel()

	reg := signaling.NewRegistry(nil)
	router := signaling.NewRouter(reg, nil)

	endpoint, sender := newTestEndpoint("endpoint-1")
	router.Dispatch(endpoint, []byte(`{"type":"not_a_real_type"}`))

	reply := lastMessage(t, sender)
	if reply.Type != signaling.TypeError || reply.Kind != "invalid_message" {
		t.Fatalf("reply = %+v, want invalid_message error", reply)
	}
}

func TestRouterMalformedJSONYieldsError(t *testing.T) {
	t.Parallel()

	reg := signaling.NewRegistry(nil)
	router := signaling.NewRouter(reg, nil)

	endpoint, sender := newTestEndpoint("endpoint-1")
	router.Dispatch(endpoint, []byte(`{not json`))

	reply := lastMessage(t, sender)
	if reply.Type != signaling.TypeError {
		t.Fatalf("reply = %+v, want error", reply)
	}
}
