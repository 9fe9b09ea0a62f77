package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/beethovenx/vegov/internal/types"
)

const namespace = "vegov"

var syncStates = []types.NetworkSyncState{
	types.NetworkSyncStateUnsynced,
	types.NetworkSyncStateSyncing,
	types.NetworkSyncStateSynced,
	types.NetworkSyncStateUnknown,
}

// Metrics holds every collector the service exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	voteBatches      *prometheus.CounterVec
	votesSubmitted   prometheus.Counter
	syncTransactions *prometheus.CounterVec
	networkSyncState *prometheus.GaugeVec
	l2Balance        *prometheus.GaugeVec
	selectedGauges   prometheus.Gauge
	refreshDuration  prometheus.Histogram
	refreshErrors    *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		voteBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_batches_total",
			Help:      "vote_for_many_gauge_weights transactions by result",
		}, []string{"result"}),
		votesSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gauge_votes_submitted_total",
			Help:      "gauge votes included in confirmed batches",
		}),
		syncTransactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vebal_sync_transactions_total",
			Help:      "sendUserBalance transactions by network and result",
		}, []string{"network", "result"}),
		networkSyncState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_sync_state",
			Help:      "1 for the current veBAL sync state of a network, 0 otherwise",
		}, []string{"network", "state"}),
		l2Balance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "l2_vebal_balance",
			Help:      "projected bridged veBAL balance per network",
		}, []string{"network"}),
		selectedGauges: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voting_selected_gauges",
			Help:      "gauges currently selected in the voting session",
		}),
		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "duration of a governor refresh cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		refreshErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_errors_total",
			Help:      "failed refresh steps by source",
		}, []string{"source"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveVoteBatch counts one submitted batch of n real (unpadded) votes.
func (m *Metrics) ObserveVoteBatch(n int, err error) {
	if m == nil {
		return
	}
	m.voteBatches.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.votesSubmitted.Add(float64(n))
	}
}

func (m *Metrics) ObserveSyncTx(network string, err error) {
	if m == nil {
		return
	}
	m.syncTransactions.WithLabelValues(network, result(err)).Inc()
}

// SetNetworkState flips the state series of network so exactly one is 1.
func (m *Metrics) SetNetworkState(network string, state types.NetworkSyncState) {
	if m == nil {
		return
	}
	for _, s := range syncStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.networkSyncState.WithLabelValues(network, string(s)).Set(v)
	}
}

func (m *Metrics) SetL2Balance(network string, balance float64) {
	if m == nil {
		return
	}
	m.l2Balance.WithLabelValues(network).Set(balance)
}

func (m *Metrics) SetSelectedGauges(n int) {
	if m == nil {
		return
	}
	m.selectedGauges.Set(float64(n))
}

func (m *Metrics) ObserveRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(d.Seconds())
}

// RefreshError counts a failed refresh step; source is e.g. "pools" or "sync".
func (m *Metrics) RefreshError(source string) {
	if m == nil {
		return
	}
	m.refreshErrors.WithLabelValues(source).Inc()
}
