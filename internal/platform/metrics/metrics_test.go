package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPCountsByStatus(t *testing.T) {
	m := New()
	m.RecordHTTP("GET", 200, 10*time.Millisecond)
	m.RecordHTTP("GET", 200, 5*time.Millisecond)
	m.RecordHTTP("POST", 409, time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "409")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordHTTP("GET", 500, time.Second)
	m.RecordMigrationOp("applied")
	m.SetSchemaVersion(3)
	m.RecordPayrollRun("ok")
	m.RecordLedgerEvent("created")
	m.RecordDecryptionFailure()
	m.RecordAuditFailure()
	m.RecordJobRun("stale_pending_payments", "completed")
	m.SetStalePayments(2)
}

func TestSchemaVersionGauge(t *testing.T) {
	m := New()
	m.SetSchemaVersion(14)
	assert.Equal(t, float64(14), testutil.ToFloat64(m.SchemaVersion))
}
