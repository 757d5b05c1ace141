package payroll

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"carepay/internal/platform/db"
	"carepay/internal/platform/querier"
)

type Store struct {
	DB *sql.DB
}

func NewStore(handle *sql.DB) *Store {
	return &Store{DB: handle}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const recordColumns = `
	id, employer_id, caregiver_id, pay_period_start, pay_period_end,
	regular_hours, weekend_hours, holiday_hours, overtime_hours,
	regular_wages, weekend_wages, holiday_wages, overtime_wages, gross_wages,
	employee_social_security, employee_medicare, employee_state_payroll_tax,
	federal_withholding, state_withholding, total_employee_deductions,
	employer_social_security, employer_medicare, employer_futa, employer_suta, total_employer_taxes,
	net_pay, calculation_version, tax_version, is_minimum_wage_compliant,
	status, is_finalized, is_voided, void_reason, voided_at, created_at, updated_at`

func scanRecord(row rowScanner) (Record, error) {
	var r Record
	var start, end string
	var voidedAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.EmployerID, &r.CaregiverID, &start, &end,
		&r.RegularHours, &r.WeekendHours, &r.HolidayHours, &r.OvertimeHours,
		&r.RegularWages, &r.WeekendWages, &r.HolidayWages, &r.OvertimeWages, &r.GrossWages,
		&r.EmployeeSocialSecurity, &r.EmployeeMedicare, &r.EmployeeStatePayrollTax,
		&r.FederalWithholding, &r.StateWithholding, &r.TotalEmployeeDeductions,
		&r.EmployerSocialSecurity, &r.EmployerMedicare, &r.EmployerFUTA, &r.EmployerSUTA, &r.TotalEmployerTaxes,
		&r.NetPay, &r.CalculationVersion, &r.TaxVersion, &r.IsMinimumWageCompliant,
		&r.Status, &r.IsFinalized, &r.IsVoided, &r.VoidReason, &voidedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if r.PayPeriodStart, err = time.Parse(dateLayout, start); err != nil {
		return Record{}, fmt.Errorf("record %s: bad pay_period_start: %w", r.ID, err)
	}
	if r.PayPeriodEnd, err = time.Parse(dateLayout, end); err != nil {
		return Record{}, fmt.Errorf("record %s: bad pay_period_end: %w", r.ID, err)
	}
	if voidedAt.Valid {
		t := voidedAt.Time
		r.VoidedAt = &t
	}
	return r, nil
}

func (s *Store) InsertRecord(ctx context.Context, r Record) error {
	_, err := querier.Conn(ctx, s.DB).ExecContext(ctx, `
		INSERT INTO payroll_records (`+recordColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		r.ID, r.EmployerID, r.CaregiverID, r.PayPeriodStart.Format(dateLayout), r.PayPeriodEnd.Format(dateLayout),
		r.RegularHours, r.WeekendHours, r.HolidayHours, r.OvertimeHours,
		r.RegularWages, r.WeekendWages, r.HolidayWages, r.OvertimeWages, r.GrossWages,
		r.EmployeeSocialSecurity, r.EmployeeMedicare, r.EmployeeStatePayrollTax,
		r.FederalWithholding, r.StateWithholding, r.TotalEmployeeDeductions,
		r.EmployerSocialSecurity, r.EmployerMedicare, r.EmployerFUTA, r.EmployerSUTA, r.TotalEmployerTaxes,
		r.NetPay, r.CalculationVersion, r.TaxVersion, r.IsMinimumWageCompliant,
		r.Status, r.IsFinalized, r.IsVoided, r.VoidReason, nil, r.CreatedAt, r.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return ErrRecordExists
	}
	return err
}

func (s *Store) GetRecord(ctx context.Context, id string) (Record, error) {
	row := querier.Conn(ctx, s.DB).QueryRowContext(ctx, "SELECT "+recordColumns+" FROM payroll_records WHERE id = ?", id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return r, err
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := querier.Conn(ctx, s.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListRecords(ctx context.Context, filter RecordFilter, limit, offset int) ([]Record, error) {
	query := "SELECT " + recordColumns + " FROM payroll_records WHERE 1 = 1"
	var args []any
	if filter.EmployerID != "" {
		query += " AND employer_id = ?"
		args = append(args, filter.EmployerID)
	}
	if filter.CaregiverID != "" {
		query += " AND caregiver_id = ?"
		args = append(args, filter.CaregiverID)
	}
	if filter.Year != 0 {
		query += " AND substr(pay_period_end, 1, 4) = ?"
		args = append(args, fmt.Sprintf("%04d", filter.Year))
	}
	if !filter.IncludeVoided {
		query += " AND is_voided = 0"
	}
	query += " ORDER BY pay_period_start DESC, created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)
	return s.queryRecords(ctx, query, args...)
}

// PriorRecords returns non-voided records for a caregiver whose period ends
// in year before the given date. finalizedOnly restricts them to frozen
// records.
func (s *Store) PriorRecords(ctx context.Context, caregiverID string, year int, before time.Time, finalizedOnly bool) ([]Record, error) {
	query := "SELECT " + recordColumns + ` FROM payroll_records
		WHERE caregiver_id = ? AND is_voided = 0
			AND pay_period_end >= ? AND pay_period_end < ?`
	if finalizedOnly {
		query += " AND is_finalized = 1"
	}
	query += " ORDER BY pay_period_end"
	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	cutoff := before
	if yearEnd := yearStart.AddDate(1, 0, 0); cutoff.After(yearEnd) {
		cutoff = yearEnd
	}
	return s.queryRecords(ctx, query, caregiverID, yearStart.Format(dateLayout), cutoff.Format(dateLayout))
}

// Approve moves a draft record to approved and freezes it.
func (s *Store) Approve(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := querier.Conn(ctx, s.DB).ExecContext(ctx, `
		UPDATE payroll_records SET status = ?, is_finalized = 1, updated_at = ?
		WHERE id = ? AND status = ? AND is_voided = 0
	`, StatusApproved, now, id, StatusDraft)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

// OutstandingPayments counts ledger rows bound to the record whose money is
// pending, paid or reversed. Failed payments moved nothing.
func (s *Store) OutstandingPayments(ctx context.Context, recordID string) (int, error) {
	var count int
	err := querier.Conn(ctx, s.DB).QueryRowContext(ctx, `
		SELECT COUNT(1) FROM payment_transactions
		WHERE payroll_record_id = ? AND status != 'failed'
	`, recordID).Scan(&count)
	return count, err
}

func (s *Store) Void(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	res, err := querier.Conn(ctx, s.DB).ExecContext(ctx, `
		UPDATE payroll_records SET is_voided = 1, void_reason = ?, voided_at = ?, updated_at = ?
		WHERE id = ? AND is_voided = 0
	`, reason, now, now, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

const entryColumns = `id, employer_id, caregiver_id, work_date, hours_worked, notes, is_finalized, COALESCE(payroll_record_id, ''), created_at`

func scanEntry(row rowScanner) (TimeEntry, error) {
	var e TimeEntry
	var workDate string
	if err := row.Scan(&e.ID, &e.EmployerID, &e.CaregiverID, &workDate, &e.Hours, &e.Notes, &e.IsFinalized, &e.PayrollRecordID, &e.CreatedAt); err != nil {
		return TimeEntry{}, err
	}
	var err error
	if e.WorkDate, err = time.Parse(dateLayout, workDate); err != nil {
		return TimeEntry{}, fmt.Errorf("time entry %s: bad work_date: %w", e.ID, err)
	}
	return e, nil
}

func (s *Store) InsertEntry(ctx context.Context, e TimeEntry) error {
	_, err := querier.Conn(ctx, s.DB).ExecContext(ctx, `
		INSERT INTO time_entries (id, employer_id, caregiver_id, work_date, hours_worked, notes, is_finalized, created_at)
		VALUES (?,?,?,?,?,?,0,?)
	`, e.ID, e.EmployerID, e.CaregiverID, e.WorkDate.Format(dateLayout), e.Hours, e.Notes, e.CreatedAt)
	return err
}

func (s *Store) ListEntries(ctx context.Context, caregiverID string, start, end time.Time, unfinalizedOnly bool) ([]TimeEntry, error) {
	query := "SELECT " + entryColumns + ` FROM time_entries
		WHERE caregiver_id = ? AND work_date >= ? AND work_date <= ?`
	if unfinalizedOnly {
		query += " AND is_finalized = 0"
	}
	query += " ORDER BY work_date, created_at"

	rows, err := querier.Conn(ctx, s.DB).QueryContext(ctx, query, caregiverID, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PaidEntries lists entries from from up to, not including, before that
// belong to a record that has not been voided.
func (s *Store) PaidEntries(ctx context.Context, caregiverID string, from, before time.Time) ([]TimeEntry, error) {
	rows, err := querier.Conn(ctx, s.DB).QueryContext(ctx, "SELECT "+entryColumns+` FROM time_entries
		WHERE caregiver_id = ? AND work_date >= ? AND work_date < ? AND is_finalized = 1
		AND payroll_record_id IN (SELECT id FROM payroll_records WHERE is_voided = 0)
		ORDER BY work_date, created_at`, caregiverID, from.Format(dateLayout), before.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FinalizeEntries marks exactly ids as consumed by recordID. Any entry that
// was finalized concurrently fails the whole call.
func (s *Store) FinalizeEntries(ctx context.Context, recordID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, recordID)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := querier.Conn(ctx, s.DB).ExecContext(ctx, `
		UPDATE time_entries SET is_finalized = 1, payroll_record_id = ?
		WHERE is_finalized = 0 AND id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != int64(len(ids)) {
		return fmt.Errorf("%w: finalized %d of %d entries", ErrEntriesChanged, affected, len(ids))
	}
	return nil
}

// PeriodCovered reports whether a non-voided record for the caregiver
// already covers day.
func (s *Store) PeriodCovered(ctx context.Context, caregiverID string, day time.Time) (bool, error) {
	var count int
	err := querier.Conn(ctx, s.DB).QueryRowContext(ctx, `
		SELECT COUNT(1) FROM payroll_records
		WHERE caregiver_id = ? AND is_voided = 0 AND pay_period_start <= ? AND pay_period_end >= ?
	`, caregiverID, day.Format(dateLayout), day.Format(dateLayout)).Scan(&count)
	return count > 0, err
}
