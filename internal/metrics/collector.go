package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "meshsig"
)

// Label names.
const (
	labelMessageType = "message_type"
	labelTier        = "tier"
	labelReason      = "reason"
)

// -------------------------------------------------------------------------
// Collector — Prometheus meshsig Metrics
// -------------------------------------------------------------------------

// Collector holds all meshsig Prometheus metrics: session and client
// population gauges, routed-message counters by type, persistent-link
// tier gauges, and the two background sweep loops' outcome counters.
type Collector struct {
	// Sessions tracks the number of currently registered signaling
	// sessions. Set with Clients by SetSessionCounts, which the daemon
	// calls on a fixed polling interval.
	Sessions prometheus.Gauge

	// Clients tracks the number of currently attached endpoints (hosts and
	// clients combined) across all sessions.
	Clients prometheus.Gauge

	// MessagesRouted counts inbound wire messages successfully dispatched,
	// labeled by message type.
	MessagesRouted *prometheus.CounterVec

	// MessagesRejected counts inbound wire messages that failed dispatch
	// (unknown type, malformed JSON), labeled by message type.
	MessagesRejected *prometheus.CounterVec

	// SessionsReclaimed counts sessions removed by the empty-session
	// reaper.
	SessionsReclaimed prometheus.Counter

	// LinksByTier tracks the current population of persistent links per
	// tier (free, wallet, premium, nft).
	LinksByTier *prometheus.GaugeVec

	// LinksRegenerated counts persistent-link regenerations performed by
	// the auto-regeneration loop, labeled by the triggering reason
	// (expired, inactive).
	LinksRegenerated *prometheus.CounterVec

	// WalletOracleFailures counts wallet balance lookups that fell back to
	// a cached or zero value because the oracle call failed.
	WalletOracleFailures prometheus.Counter
}

// NewCollector creates a Collector with all meshsig metrics registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
//
// All metrics are created with the "meshsig_" namespace prefix to avoid
// collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.Clients,
		c.MessagesRouted,
		c.MessagesRejected,
		c.SessionsReclaimed,
		c.LinksByTier,
		c.LinksRegenerated,
		c.WalletOracleFailures,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of currently registered signaling sessions.",
		}),

		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoints",
			Help:      "Number of currently attached endpoints across all sessions.",
		}),

		MessagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_routed_total",
			Help:      "Total inbound wire messages successfully dispatched, by type.",
		}, []string{labelMessageType}),

		MessagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Total inbound wire messages that failed dispatch, by type.",
		}, []string{labelMessageType}),

		SessionsReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_reclaimed_total",
			Help:      "Total empty sessions removed by the reaper.",
		}),

		LinksByTier: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "links",
			Help:      "Number of persistent links currently in each tier.",
		}, []string{labelTier}),

		LinksRegenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_regenerated_total",
			Help:      "Total persistent-link regenerations performed by the auto-regeneration loop, by reason.",
		}, []string{labelReason}),

		WalletOracleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_oracle_failures_total",
			Help:      "Total wallet balance lookups that fell back to a cached or zero value.",
		}),
	}
}

// -------------------------------------------------------------------------
// Session and Endpoint Population
// -------------------------------------------------------------------------

// SetSessionCounts records the current session and endpoint counts, as
// returned by signaling.Registry.Count.
func (c *Collector) SetSessionCounts(sessions, clients int) {
	c.Sessions.Set(float64(sessions))
	c.Clients.Set(float64(clients))
}

// -------------------------------------------------------------------------
// Message Routing
// -------------------------------------------------------------------------

// IncMessagesRouted increments the routed-message counter for messageType.
func (c *Collector) IncMessagesRouted(messageType string) {
	c.MessagesRouted.WithLabelValues(messageType).Inc()
}

// IncMessagesRejected increments the rejected-message counter for
// messageType. An empty messageType is used when the message could not
// even be parsed far enough to know its type.
func (c *Collector) IncMessagesRejected(messageType string) {
	c.MessagesRejected.WithLabelValues(messageType).Inc()
}

// -------------------------------------------------------------------------
// Reaper
// -------------------------------------------------------------------------

// IncSessionsReclaimed increments the reaper's reclaimed-session counter by
// n.
func (c *Collector) IncSessionsReclaimed(n int) {
	c.SessionsReclaimed.Add(float64(n))
}

// -------------------------------------------------------------------------
// Persistent Links
// -------------------------------------------------------------------------

// SetLinksByTier records the current link population for tier.
func (c *Collector) SetLinksByTier(tier string, count int) {
	c.LinksByTier.WithLabelValues(tier).Set(float64(count))
}

// IncLinksRegenerated increments the auto-regeneration counter for reason.
func (c *Collector) IncLinksRegenerated(reason string) {
	c.LinksRegenerated.WithLabelValues(reason).Inc()
}

// -------------------------------------------------------------------------
// Wallet Oracle
// -------------------------------------------------------------------------

// IncWalletOracleFailures increments the oracle-fallback counter.
func (c *Collector) IncWalletOracleFailures() {
	c.WalletOracleFailures.Inc()
}
