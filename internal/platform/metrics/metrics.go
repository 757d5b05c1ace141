package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the process. A nil *Metrics is
// valid and records nothing, which keeps components usable without a registry.
type Metrics struct {
	Registry           *prometheus.Registry
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	MigrationOps       *prometheus.CounterVec
	SchemaVersion      prometheus.Gauge
	PayrollRuns        *prometheus.CounterVec
	LedgerEvents       *prometheus.CounterVec
	DecryptionFailures prometheus.Counter
	AuditFailures      prometheus.Counter
	JobRuns            *prometheus.CounterVec
	StalePayments      prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carepay_http_requests_total",
			Help: "HTTP requests by method and status code",
		}, []string{"method", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carepay_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		MigrationOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carepay_migration_ops_total",
			Help: "Structural migration operations by outcome",
		}, []string{"outcome"}),
		SchemaVersion: factory.NewGauge(prometheus.GaugeOpts{
			Name: "carepay_schema_version",
			Help: "Schema version recorded in schema_meta",
		}),
		PayrollRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carepay_payroll_runs_total",
			Help: "Payroll computations by result",
		}, []string{"result"}),
		LedgerEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carepay_ledger_events_total",
			Help: "Payment ledger creations, replays and transitions",
		}, []string{"event"}),
		DecryptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "carepay_field_decryption_failures_total",
			Help: "Encrypted fields that could not be decrypted",
		}),
		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "carepay_audit_write_failures_total",
			Help: "Audit entries that could not be written",
		}),
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carepay_job_runs_total",
			Help: "Background job runs by job and outcome",
		}, []string{"job", "status"}),
		StalePayments: factory.NewGauge(prometheus.GaugeOpts{
			Name: "carepay_stale_pending_payments",
			Help: "Pending payments older than the reconciliation threshold",
		}),
	}
}

func (m *Metrics) RecordHTTP(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *Metrics) RecordMigrationOp(outcome string) {
	if m == nil {
		return
	}
	m.MigrationOps.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetSchemaVersion(version int) {
	if m == nil {
		return
	}
	m.SchemaVersion.Set(float64(version))
}

func (m *Metrics) RecordPayrollRun(result string) {
	if m == nil {
		return
	}
	m.PayrollRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordLedgerEvent(event string) {
	if m == nil {
		return
	}
	m.LedgerEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordDecryptionFailure() {
	if m == nil {
		return
	}
	m.DecryptionFailures.Inc()
}

func (m *Metrics) RecordAuditFailure() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}

func (m *Metrics) RecordJobRun(job, status string) {
	if m == nil {
		return
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
}

func (m *Metrics) SetStalePayments(count int) {
	if m == nil {
		return
	}
	m.StalePayments.Set(float64(count))
}
