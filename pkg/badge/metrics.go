package badge

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// claimResultOK labels successful claims.
const claimResultOK = "ok"

// Metrics holds the Prometheus collectors for a Service. A zero Metrics (or
// one never registered) is a no-op.
type Metrics struct {
	claims           *prometheus.CounterVec
	pledgesAdded     prometheus.Counter
	revocations      prometheus.Counter
	redemptions      prometheus.Counter
	transferAttempts prometheus.Counter
	holders          *prometheus.GaugeVec

	registerOnce sync.Once
}

// Register registers the collectors with registry. A nil registry is a no-op,
// and calls after the first are no-ops.
func (m *Metrics) Register(registry prometheus.Registerer) {
	if m == nil || registry == nil {
		return
	}

	m.registerOnce.Do(func() {
		factory := promauto.With(registry)

		m.claims = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pledge_claims_total",
			Help: "Total number of badge claims by result code",
		}, []string{"result"})

		m.pledgesAdded = factory.NewCounter(prometheus.CounterOpts{
			Name: "pledge_pledges_added_total",
			Help: "Total number of pledges added to the catalog",
		})

		m.revocations = factory.NewCounter(prometheus.CounterOpts{
			Name: "pledge_revocations_total",
			Help: "Total number of revocations",
		})

		m.redemptions = factory.NewCounter(prometheus.CounterOpts{
			Name: "pledge_redemptions_total",
			Help: "Total number of redemptions",
		})

		m.transferAttempts = factory.NewCounter(prometheus.CounterOpts{
			Name: "pledge_transfer_attempts_total",
			Help: "Total number of rejected transfer attempts",
		})

		m.holders = factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pledge_badge_holders",
			Help: "Current number of holders per badge",
		}, []string{"badge_id"})
	})
}

func (m *Metrics) observeClaim(result string) {
	if m == nil || m.claims == nil {
		return
	}
	m.claims.WithLabelValues(result).Inc()
}

func (m *Metrics) incPledgesAdded() {
	if m == nil || m.pledgesAdded == nil {
		return
	}
	m.pledgesAdded.Inc()
}

func (m *Metrics) incRevocations() {
	if m == nil || m.revocations == nil {
		return
	}
	m.revocations.Inc()
}

func (m *Metrics) incRedemptions() {
	if m == nil || m.redemptions == nil {
		return
	}
	m.redemptions.Inc()
}

func (m *Metrics) incTransferAttempts() {
	if m == nil || m.transferAttempts == nil {
		return
	}
	m.transferAttempts.Inc()
}

func (m *Metrics) setHolders(badgeID uint64, n int) {
	if m == nil || m.holders == nil {
		return
	}
	m.holders.WithLabelValues(strconv.FormatUint(badgeID, 10)).Set(float64(n))
}
