package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"carepay/internal/platform/crypto"
	"carepay/internal/platform/db"
	"carepay/internal/platform/metrics"
	"carepay/internal/platform/querier"
)

const maxIdempotencyKeyLength = 255

type Auditor interface {
	Record(ctx context.Context, tableName, recordID, action string, changes any)
}

type Store struct {
	DB      *sql.DB
	Audit   Auditor
	Metrics *metrics.Metrics
	now     func() time.Time
}

func NewStore(handle *sql.DB, auditor Auditor, m *metrics.Metrics) *Store {
	return &Store{DB: handle, Audit: auditor, Metrics: m, now: func() time.Time { return time.Now().UTC() }}
}

// MaskAccount keeps the last four characters of an account number.
func MaskAccount(account string) string {
	return crypto.Mask(account, 4)
}

const columns = `
	id, idempotency_key, employer_id, COALESCE(caregiver_id, ''), COALESCE(payroll_record_id, ''),
	amount_cents, currency, status, source_account_masked, destination_account_masked,
	external_reference, tax_logic_version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var t Transaction
	err := row.Scan(
		&t.ID, &t.IdempotencyKey, &t.EmployerID, &t.CaregiverID, &t.PayrollRecordID,
		&t.AmountCents, &t.Currency, &t.Status, &t.SourceAccountMasked, &t.DestinationAccountMasked,
		&t.ExternalReference, &t.TaxLogicVersion, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func validateCreate(req CreateRequest) (CreateRequest, error) {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey == "" {
		return req, fmt.Errorf("%w: idempotency key is required", ErrInvalidRequest)
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLength {
		return req, fmt.Errorf("%w: idempotency key is longer than %d", ErrInvalidRequest, maxIdempotencyKeyLength)
	}
	if strings.TrimSpace(req.EmployerID) == "" {
		return req, fmt.Errorf("%w: employer is required", ErrInvalidRequest)
	}
	if req.AmountCents <= 0 {
		return req, fmt.Errorf("%w: amount must be a positive number of cents", ErrInvalidRequest)
	}
	if req.Currency == "" {
		req.Currency = DefaultCurrency
	}
	req.Currency = strings.ToUpper(req.Currency)
	if len(req.Currency) != 3 {
		return req, fmt.Errorf("%w: currency must be an ISO 4217 code", ErrInvalidRequest)
	}
	return req, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// CreateTransaction inserts a pending row, or returns the row already stored
// under the idempotency key with created=false. Concurrent callers racing on
// one key are resolved by the unique index: one insert wins and the others
// read its row.
func (s *Store) CreateTransaction(ctx context.Context, req CreateRequest) (Transaction, bool, error) {
	req, err := validateCreate(req)
	if err != nil {
		return Transaction{}, false, err
	}

	now := s.now()
	txn := Transaction{
		ID:                       uuid.NewString(),
		IdempotencyKey:           req.IdempotencyKey,
		EmployerID:               req.EmployerID,
		CaregiverID:              req.CaregiverID,
		PayrollRecordID:          req.PayrollRecordID,
		AmountCents:              req.AmountCents,
		Currency:                 req.Currency,
		Status:                   StatusPending,
		SourceAccountMasked:      MaskAccount(req.SourceAccount),
		DestinationAccountMasked: MaskAccount(req.DestinationAccount),
		TaxLogicVersion:          req.TaxLogicVersion,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	err = querier.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		_, err := querier.Conn(ctx, s.DB).ExecContext(ctx, `
			INSERT INTO payment_transactions (
				id, idempotency_key, employer_id, caregiver_id, payroll_record_id,
				amount_cents, currency, status, source_account_masked, destination_account_masked,
				external_reference, tax_logic_version, created_at, updated_at
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		`, txn.ID, txn.IdempotencyKey, txn.EmployerID, nullable(txn.CaregiverID), nullable(txn.PayrollRecordID),
			txn.AmountCents, txn.Currency, txn.Status, txn.SourceAccountMasked, txn.DestinationAccountMasked,
			"", txn.TaxLogicVersion, txn.CreatedAt, txn.UpdatedAt)
		if err != nil {
			return err
		}
		if s.Audit != nil {
			s.Audit.Record(ctx, "payment_transactions", txn.ID, "create", map[string]any{
				"idempotencyKey":  txn.IdempotencyKey,
				"amountCents":     txn.AmountCents,
				"currency":        txn.Currency,
				"payrollRecordId": txn.PayrollRecordID,
			})
		}
		return nil
	})
	if db.IsUniqueViolation(err) {
		existing, getErr := s.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if getErr != nil {
			return Transaction{}, false, getErr
		}
		if !sameRequest(existing, req) {
			s.Metrics.RecordLedgerEvent("conflict")
			return existing, false, ErrIdempotencyConflict
		}
		s.Metrics.RecordLedgerEvent("replayed")
		return existing, false, nil
	}
	if db.IsForeignKeyViolation(err) {
		return Transaction{}, false, fmt.Errorf("%w: unknown employer, caregiver or payroll record", ErrInvalidRequest)
	}
	if err != nil {
		return Transaction{}, false, fmt.Errorf("insert payment: %w", err)
	}
	s.Metrics.RecordLedgerEvent("created")
	return txn, true, nil
}

// Replay looks up the row stored under req's idempotency key before any
// other check runs, so a retry is answered from the ledger even after the
// payroll record it was bound to has moved on. It returns found=false when
// the key is new. Fields the retry left empty are taken from the stored
// row; anything supplied must match it or ErrIdempotencyConflict is
// returned alongside the stored row.
func (s *Store) Replay(ctx context.Context, req CreateRequest) (Transaction, bool, error) {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey == "" {
		return Transaction{}, false, fmt.Errorf("%w: idempotency key is required", ErrInvalidRequest)
	}
	existing, err := s.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if errors.Is(err, ErrNotFound) {
		return Transaction{}, false, nil
	}
	if err != nil {
		return Transaction{}, false, err
	}

	if req.EmployerID == "" {
		req.EmployerID = existing.EmployerID
	}
	if req.CaregiverID == "" {
		req.CaregiverID = existing.CaregiverID
	}
	if req.AmountCents == 0 {
		req.AmountCents = existing.AmountCents
	}
	if req.Currency == "" {
		req.Currency = DefaultCurrency
	}
	req.Currency = strings.ToUpper(req.Currency)

	if !sameRequest(existing, req) {
		s.Metrics.RecordLedgerEvent("conflict")
		return existing, true, ErrIdempotencyConflict
	}
	s.Metrics.RecordLedgerEvent("replayed")
	return existing, true, nil
}

func sameRequest(existing Transaction, req CreateRequest) bool {
	return existing.EmployerID == req.EmployerID &&
		existing.CaregiverID == req.CaregiverID &&
		existing.PayrollRecordID == req.PayrollRecordID &&
		existing.AmountCents == req.AmountCents &&
		existing.Currency == req.Currency &&
		existing.SourceAccountMasked == MaskAccount(req.SourceAccount) &&
		existing.DestinationAccountMasked == MaskAccount(req.DestinationAccount)
}

// UpdateStatus is the only mutation after creation. The update is
// conditional on the status it was validated against, so a concurrent
// transition cannot be overwritten.
func (s *Store) UpdateStatus(ctx context.Context, id, status, externalReference string) (Transaction, error) {
	if !ValidStatus(status) {
		return Transaction{}, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}

	var updated Transaction
	err := querier.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		current, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, status) {
			return &InvalidTransitionError{ID: id, From: current.Status, To: status}
		}
		reference := current.ExternalReference
		if externalReference != "" {
			reference = strings.TrimSpace(externalReference)
		}
		res, err := querier.Conn(ctx, s.DB).ExecContext(ctx, `
			UPDATE payment_transactions SET status = ?, external_reference = ?, updated_at = ?
			WHERE id = ? AND status = ?
		`, status, reference, s.now(), id, current.Status)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			observed, err := s.Get(ctx, id)
			if err != nil {
				return err
			}
			return &InvalidTransitionError{ID: id, From: observed.Status, To: status}
		}
		if s.Audit != nil {
			s.Audit.Record(ctx, "payment_transactions", id, "status", map[string]any{
				"from":              current.Status,
				"to":                status,
				"externalReference": reference,
			})
		}
		updated, err = s.Get(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			s.Metrics.RecordLedgerEvent("rejected")
		}
		return Transaction{}, err
	}
	s.Metrics.RecordLedgerEvent(status)
	return updated, nil
}

func (s *Store) Get(ctx context.Context, id string) (Transaction, error) {
	row := querier.Conn(ctx, s.DB).QueryRowContext(ctx, "SELECT "+columns+" FROM payment_transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	return t, err
}

func (s *Store) GetByIdempotencyKey(ctx context.Context, key string) (Transaction, error) {
	row := querier.Conn(ctx, s.DB).QueryRowContext(ctx,
		"SELECT "+columns+" FROM payment_transactions WHERE idempotency_key = ?", strings.TrimSpace(key))
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	return t, err
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := querier.Conn(ctx, s.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ListByPayrollRecord(ctx context.Context, recordID string) ([]Transaction, error) {
	return s.list(ctx, "SELECT "+columns+" FROM payment_transactions WHERE payroll_record_id = ? ORDER BY created_at", recordID)
}

func (s *Store) ListByEmployer(ctx context.Context, employerID string, limit, offset int) ([]Transaction, error) {
	return s.list(ctx, "SELECT "+columns+` FROM payment_transactions
		WHERE employer_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`, employerID, limit, offset)
}

// StaleReport summarizes pending payments the gateway has not settled.
type StaleReport struct {
	Cutoff     time.Time `json:"cutoff"`
	Stale      int       `json:"stale"`
	OldestID   string    `json:"oldestId,omitempty"`
	TotalCents int64     `json:"totalCents"`
}

// ReportStalePending counts payments still pending after age. It backs the
// reconciliation job and only reads.
func (s *Store) ReportStalePending(ctx context.Context, age time.Duration) (StaleReport, error) {
	report := StaleReport{Cutoff: s.now().Add(-age)}
	txns, err := s.list(ctx, "SELECT "+columns+` FROM payment_transactions
		WHERE status = ? AND created_at < ? ORDER BY created_at`, StatusPending, report.Cutoff)
	if err != nil {
		return StaleReport{}, err
	}
	for _, t := range txns {
		report.TotalCents += t.AmountCents
	}
	report.Stale = len(txns)
	if len(txns) > 0 {
		report.OldestID = txns[0].ID
	}
	s.Metrics.SetStalePayments(report.Stale)
	return report, nil
}
