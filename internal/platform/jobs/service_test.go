package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carepay/internal/platform/metrics"
)

type recordedAudit struct {
	table, id, action string
	changes           any
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []recordedAudit
}

func (f *fakeAuditor) Record(_ context.Context, tableName, recordID, action string, changes any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, recordedAudit{tableName, recordID, action, changes})
}

func (f *fakeAuditor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func TestRunNowRecordsOutcome(t *testing.T) {
	m := metrics.New()
	auditor := &fakeAuditor{}
	svc := New(auditor, m)

	details, err := svc.RunNow(context.Background(), "sweep", func(context.Context) (any, error) {
		return map[string]int{"stale": 2}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"stale": 2}, details)

	_, err = svc.RunNow(context.Background(), "sweep", func(context.Context) (any, error) {
		return nil, errors.New("store closed")
	})
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobRuns.WithLabelValues("sweep", StatusCompleted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobRuns.WithLabelValues("sweep", StatusFailed)))
	require.Equal(t, 2, auditor.count())
	assert.Equal(t, "jobs", auditor.entries[1].table)
	assert.Equal(t, "store closed", auditor.entries[1].changes.(map[string]any)["error"])
}

func TestScheduledJobRunsUntilCancelled(t *testing.T) {
	svc := New(&fakeAuditor{}, nil)
	ran := make(chan struct{}, 16)
	svc.Every("tick", 5*time.Millisecond, func(context.Context) (any, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil, nil
	})
	svc.Every("disabled", 0, func(context.Context) (any, error) {
		t.Error("disabled schedule must not run")
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled job did not run")
	}
	cancel()
	svc.Wait()
}

func TestEnqueueReportsFullQueue(t *testing.T) {
	svc := New(nil, nil)
	noop := func(context.Context) (any, error) { return nil, nil }
	for i := 0; i < queueSize; i++ {
		require.True(t, svc.Enqueue("fill", noop))
	}
	assert.False(t, svc.Enqueue("overflow", noop))
}
