package ledger

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"carepay/internal/domain/audit"
	"carepay/internal/domain/household"
	"carepay/internal/platform/crypto"
	"carepay/internal/platform/db/dbtest"
	"carepay/internal/platform/metrics"
)

type fixture struct {
	db       *sql.DB
	store    *Store
	audit    *audit.Service
	metrics  *metrics.Metrics
	employer string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	handle := dbtest.Open(t)
	m := metrics.New()
	auditor := audit.New(handle, m)
	cipher, err := crypto.New(bytes.Repeat([]byte{9}, 32), m)
	require.NoError(t, err)
	employer, err := household.NewStore(handle, cipher, auditor).CreateEmployer(context.Background(), household.EmployerSettings{Name: "Okafor Household"})
	require.NoError(t, err)
	return fixture{db: handle, store: NewStore(handle, auditor, m), audit: auditor, metrics: m, employer: employer.ID}
}

func (f fixture) request(key string) CreateRequest {
	return CreateRequest{
		IdempotencyKey:     key,
		EmployerID:         f.employer,
		AmountCents:        87733,
		SourceAccount:      "000123456789",
		DestinationAccount: "9876-5432-1000",
		TaxLogicVersion:    "2025.1",
	}
}

func TestCreateTransactionExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.store.CreateTransaction(ctx, f.request("run-2025-03-15"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusPending, first.Status)
	assert.Equal(t, "USD", first.Currency)
	assert.Equal(t, "•••• 6789", first.SourceAccountMasked)
	assert.Equal(t, "•••• 1000", first.DestinationAccountMasked)

	second, created, err := f.store.CreateTransaction(ctx, f.request("run-2025-03-15"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var rows int
	require.NoError(t, f.db.QueryRow("SELECT COUNT(1) FROM payment_transactions").Scan(&rows))
	assert.Equal(t, 1, rows)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.LedgerEvents.WithLabelValues("created")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.LedgerEvents.WithLabelValues("replayed")))

	total, err := f.audit.Count(ctx, audit.Filter{TableName: "payment_transactions", RecordID: first.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestCreateTransactionConcurrentReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		ids     = map[string]int{}
		created int
	)
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			txn, isNew, err := f.store.CreateTransaction(ctx, f.request("concurrent-key"))
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			ids[txn.ID]++
			if isNew {
				created++
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, created)
	var rows int
	require.NoError(t, f.db.QueryRow("SELECT COUNT(1) FROM payment_transactions WHERE idempotency_key = ?", "concurrent-key").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestCreateTransactionConflictingReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	original, _, err := f.store.CreateTransaction(ctx, f.request("k1"))
	require.NoError(t, err)

	changed := f.request("k1")
	changed.AmountCents = 100
	existing, created, err := f.store.CreateTransaction(ctx, changed)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.False(t, created)
	assert.Equal(t, original.ID, existing.ID)
	assert.Equal(t, int64(87733), existing.AmountCents)
}

func TestReplayChangedAccountsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.store.CreateTransaction(ctx, f.request("k-accounts"))
	require.NoError(t, err)

	moved := f.request("k-accounts")
	moved.DestinationAccount = "1111-2222-3333"
	_, created, err := f.store.CreateTransaction(ctx, moved)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.False(t, created)

	formatted := f.request("k-accounts")
	formatted.SourceAccount = "0001 2345 6789"
	_, created, err = f.store.CreateTransaction(ctx, formatted)
	require.NoError(t, err, "spacing does not change the masked account")
	assert.False(t, created)
}

func TestReplayLooksUpBeforeInsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, found, err := f.store.Replay(ctx, f.request("fresh-key"))
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = f.store.Replay(ctx, f.request(" "))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	original, _, err := f.store.CreateTransaction(ctx, f.request("fresh-key"))
	require.NoError(t, err)
	_, err = f.store.UpdateStatus(ctx, original.ID, StatusFailed, "")
	require.NoError(t, err)

	retry := f.request("fresh-key")
	retry.AmountCents = 0
	existing, found, err := f.store.Replay(ctx, retry)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, original.ID, existing.ID)
	assert.Equal(t, StatusFailed, existing.Status)

	changed := f.request("fresh-key")
	changed.AmountCents = 5
	_, found, err = f.store.Replay(ctx, changed)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.True(t, found)
}

func TestCreateTransactionStorageFailureIsNotInvalid(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Close())

	_, created, err := f.store.CreateTransaction(context.Background(), f.request("closed-db"))
	require.Error(t, err)
	assert.False(t, created)
	assert.NotErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateTransactionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]func(r *CreateRequest){
		"missing key":    func(r *CreateRequest) { r.IdempotencyKey = "  " },
		"long key":       func(r *CreateRequest) { r.IdempotencyKey = fmt.Sprintf("%0256d", 1) },
		"zero amount":    func(r *CreateRequest) { r.AmountCents = 0 },
		"negative":       func(r *CreateRequest) { r.AmountCents = -5 },
		"no employer":    func(r *CreateRequest) { r.EmployerID = "" },
		"bad currency":   func(r *CreateRequest) { r.Currency = "DOLLARS" },
		"unknown record": func(r *CreateRequest) { r.PayrollRecordID = "missing-record" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := f.request("validation-" + name)
			mutate(&req)
			_, created, err := f.store.CreateTransaction(ctx, req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.False(t, created)
		})
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn, _, err := f.store.CreateTransaction(ctx, f.request("transitions"))
	require.NoError(t, err)

	paid, err := f.store.UpdateStatus(ctx, txn.ID, StatusPaid, "ach_123")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	assert.Equal(t, "ach_123", paid.ExternalReference)
	assert.Equal(t, txn.AmountCents, paid.AmountCents)

	_, err = f.store.UpdateStatus(ctx, txn.ID, StatusPending, "")
	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, StatusPaid, transitionErr.From)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	reversed, err := f.store.UpdateStatus(ctx, txn.ID, StatusReversed, "")
	require.NoError(t, err)
	assert.Equal(t, "ach_123", reversed.ExternalReference)

	_, err = f.store.UpdateStatus(ctx, txn.ID, StatusPaid, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	current, err := f.store.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReversed, current.Status)

	_, err = f.store.UpdateStatus(ctx, txn.ID, "refunded", "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.store.UpdateStatus(ctx, "missing", StatusPaid, "")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.LedgerEvents.WithLabelValues("rejected")))
	total, err := f.audit.Count(ctx, audit.Filter{TableName: "payment_transactions", RecordID: txn.ID, Action: "status"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestFailedPaymentIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn, _, err := f.store.CreateTransaction(ctx, f.request("terminal"))
	require.NoError(t, err)
	_, err = f.store.UpdateStatus(ctx, txn.ID, StatusFailed, "")
	require.NoError(t, err)

	for _, next := range []string{StatusPaid, StatusPending, StatusReversed} {
		_, err = f.store.UpdateStatus(ctx, txn.ID, next, "")
		assert.ErrorIs(t, err, ErrInvalidTransition, next)
	}
	current, err := f.store.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, current.Status)
}

func TestLedgerRowsAreImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn, _, err := f.store.CreateTransaction(ctx, f.request("immutable"))
	require.NoError(t, err)

	_, err = f.db.Exec("UPDATE payment_transactions SET amount_cents = 1 WHERE id = ?", txn.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "immutable")

	_, err = f.db.Exec("DELETE FROM payment_transactions WHERE id = ?", txn.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := f.store.CreateTransaction(ctx, f.request(fmt.Sprintf("list-%d", i)))
		require.NoError(t, err)
	}

	all, err := f.store.ListByEmployer(ctx, f.employer, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	page, err := f.store.ListByEmployer(ctx, f.employer, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	byRecord, err := f.store.ListByPayrollRecord(ctx, "none")
	require.NoError(t, err)
	assert.Empty(t, byRecord)

	_, err = f.store.GetByIdempotencyKey(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusPaid))
	assert.True(t, CanTransition(StatusPending, StatusFailed))
	assert.True(t, CanTransition(StatusPaid, StatusReversed))
	assert.False(t, CanTransition(StatusPaid, StatusPending))
	assert.False(t, CanTransition(StatusFailed, StatusPaid))
	assert.False(t, CanTransition(StatusReversed, StatusPaid))
	assert.False(t, CanTransition(StatusPending, StatusReversed))
}

func TestMaskAccountUsesLastFour(t *testing.T) {
	assert.Equal(t, "•••• 4321", MaskAccount("987654321"))
	assert.Equal(t, "", MaskAccount(""))
}

func TestReportStalePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)
	f.store.now = func() time.Time { return base }
	old, _, err := f.store.CreateTransaction(ctx, f.request("old"))
	require.NoError(t, err)
	settled, _, err := f.store.CreateTransaction(ctx, f.request("settled"))
	require.NoError(t, err)
	_, err = f.store.UpdateStatus(ctx, settled.ID, StatusPaid, "ach_9")
	require.NoError(t, err)

	f.store.now = func() time.Time { return base.Add(47 * time.Hour) }
	_, _, err = f.store.CreateTransaction(ctx, f.request("fresh"))
	require.NoError(t, err)

	f.store.now = func() time.Time { return base.Add(48 * time.Hour) }
	report, err := f.store.ReportStalePending(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stale)
	assert.Equal(t, old.ID, report.OldestID)
	assert.Equal(t, int64(87733), report.TotalCents)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.StalePayments))
}
