package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/meshsig/meshsig/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	if c.Sessions == nil {
		t.Error("Sessions is nil")
	}
	if c.Clients == nil {
		t.Error("Clients is nil")
	}
	if c.MessagesRouted == nil {
		t.Error("MessagesRouted is nil")
	}
	if c.MessagesRejected == nil {
		t.Error("MessagesRejected is nil")
	}
	if c.SessionsReclaimed == nil {
		t.Error("SessionsReclaimed is nil")
	}
	if c.LinksByTier == nil {
		t.Error("LinksByTier is nil")
	}
	if c.LinksRegenerated == nil {
		t.Error("LinksRegenerated is nil")
	}
	if c.WalletOracleFailures == nil {
		t.Error("WalletOracleFailures is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestSetSessionCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.SetSessionCounts(3, 7)

	if val := plainGaugeValue(t, c.Sessions); val != 3 {
		t.Errorf("Sessions = %v, want 3", val)
	}
	if val := plainGaugeValue(t, c.Clients); val != 7 {
		t.Errorf("Clients = %v, want 7", val)
	}

	c.SetSessionCounts(1, 1)
	if val := plainGaugeValue(t, c.Sessions); val != 1 {
		t.Errorf("Sessions after second set = %v, want 1", val)
	}
}

func TestMessageCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncMessagesRouted("offer")
	c.IncMessagesRouted("offer")
	c.IncMessagesRouted("answer")
	c.IncMessagesRejected("unknown_type")

	if val := counterValue(t, c.MessagesRouted, "offer"); val != 2 {
		t.Errorf("MessagesRouted[offer] = %v, want 2", val)
	}
	if val := counterValue(t, c.MessagesRouted, "answer"); val != 1 {
		t.Errorf("MessagesRouted[answer] = %v, want 1", val)
	}
	if val := counterValue(t, c.MessagesRejected, "unknown_type"); val != 1 {
		t.Errorf("MessagesRejected[unknown_type] = %v, want 1", val)
	}
}

func TestSessionsReclaimed(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncSessionsReclaimed(2)
	c.IncSessionsReclaimed(1)

	if val := plainCounterValue(t, c.SessionsReclaimed); val != 3 {
		t.Errorf("SessionsReclaimed = %v, want 3", val)
	}
}

func TestLinksByTierAndRegeneration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.SetLinksByTier("free", 10)
	c.SetLinksByTier("premium", 2)
	c.IncLinksRegenerated("expired")
	c.IncLinksRegenerated("expired")
	c.IncLinksRegenerated("inactive")

	if val := gaugeValue(t, c.LinksByTier, "free"); val != 10 {
		t.Errorf("LinksByTier[free] = %v, want 10", val)
	}
	if val := gaugeValue(t, c.LinksByTier, "premium"); val != 2 {
		t.Errorf("LinksByTier[premium] = %v, want 2", val)
	}
	if val := counterValue(t, c.LinksRegenerated, "expired"); val != 2 {
		t.Errorf("LinksRegenerated[expired] = %v, want 2", val)
	}
	if val := counterValue(t, c.LinksRegenerated, "inactive"); val != 1 {
		t.Errorf("LinksRegenerated[inactive] = %v, want 1", val)
	}
}

func TestWalletOracleFailures(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncWalletOracleFailures()
	c.IncWalletOracleFailures()

	if val := plainCounterValue(t, c.WalletOracleFailures); val != 2 {
		t.Errorf("WalletOracleFailures = %v, want 2", val)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}

func plainGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func plainCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
