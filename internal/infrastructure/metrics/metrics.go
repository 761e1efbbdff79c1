package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics holds the document store collectors. A nil *StoreMetrics is
// valid and records nothing.
type StoreMetrics struct {
	loadsTotal       *prometheus.CounterVec
	savesTotal       *prometheus.CounterVec
	recoveriesTotal  *prometheus.CounterVec
	conflictRetries  prometheus.Counter
	saveDuration     *prometheus.HistogramVec
	backupCount      prometheus.Gauge
	backupsPrunedSum prometheus.Counter
}

// NewStoreMetrics creates the store collectors and registers them
func NewStoreMetrics(registerer prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		loadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripboard_document_loads_total",
				Help: "Document loads by the step of the fallback chain that served them",
			},
			[]string{"source"},
		),
		savesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripboard_document_saves_total",
				Help: "Document saves by backend and outcome",
			},
			[]string{"backend", "status"},
		),
		recoveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripboard_document_recoveries_total",
				Help: "Corrupted document recoveries by outcome",
			},
			[]string{"outcome"},
		),
		conflictRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tripboard_remote_conflict_retries_total",
				Help: "Remote saves resubmitted after a revision conflict",
			},
		),
		saveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tripboard_document_save_duration_seconds",
				Help:    "Document save duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15},
			},
			[]string{"backend"},
		),
		backupCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tripboard_backups",
				Help: "Number of local document backups after the last write",
			},
		),
		backupsPrunedSum: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tripboard_backups_pruned_total",
				Help: "Backups deleted by rotation",
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.loadsTotal,
			m.savesTotal,
			m.recoveriesTotal,
			m.conflictRetries,
			m.saveDuration,
			m.backupCount,
			m.backupsPrunedSum,
		)
	}

	return m
}

// ObserveLoad counts a load served by source
func (m *StoreMetrics) ObserveLoad(source string) {
	if m == nil {
		return
	}
	m.loadsTotal.WithLabelValues(source).Inc()
}

// ObserveSave counts a save and records its duration
func (m *StoreMetrics) ObserveSave(backend string, err error, duration time.Duration) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	m.savesTotal.WithLabelValues(backend, status).Inc()
	m.saveDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// ObserveRecovery counts a corruption recovery attempt
func (m *StoreMetrics) ObserveRecovery(outcome string) {
	if m == nil {
		return
	}
	m.recoveriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveConflictRetry counts a remote save resubmission
func (m *StoreMetrics) ObserveConflictRetry() {
	if m == nil {
		return
	}
	m.conflictRetries.Inc()
}

// SetBackupCount records the backup directory size
func (m *StoreMetrics) SetBackupCount(n int) {
	if m == nil {
		return
	}
	m.backupCount.Set(float64(n))
}

// ObservePruned counts rotated-out backups
func (m *StoreMetrics) ObservePruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.backupsPrunedSum.Add(float64(n))
}
