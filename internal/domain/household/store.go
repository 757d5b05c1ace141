package household

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"carepay/internal/platform/crypto"
	"carepay/internal/platform/querier"
)

// FieldCipher encrypts PII columns. DecryptField never fails.
type FieldCipher interface {
	EncryptField(plaintext string) (string, error)
	DecryptField(value string) string
}

type Auditor interface {
	Record(ctx context.Context, tableName, recordID, action string, changes any)
}

type Store struct {
	DB     *sql.DB
	Cipher FieldCipher
	Audit  Auditor
	now    func() time.Time
}

func NewStore(db *sql.DB, cipher FieldCipher, auditor Auditor) *Store {
	return &Store{DB: db, Cipher: cipher, Audit: auditor, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) record(ctx context.Context, table, id, action string, changes any) {
	if s.Audit != nil {
		s.Audit.Record(ctx, table, id, action, changes)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const employerColumns = `
	id, name, tax_id_enc, state_code, pay_frequency, default_hourly_rate,
	weekend_multiplier, holiday_multiplier, overtime_multiplier, overtime_threshold_hours,
	withholding_enabled, state_rate_overrides, processor_credentials_enc, is_active,
	created_at, updated_at`

func (s *Store) scanEmployer(row rowScanner) (Employer, error) {
	var e Employer
	var taxIDEnc, overrides, credentialsEnc string
	err := row.Scan(
		&e.ID, &e.Name, &taxIDEnc, &e.StateCode, &e.PayFrequency, &e.DefaultHourlyRate,
		&e.WeekendMultiplier, &e.HolidayMultiplier, &e.OvertimeMultiplier, &e.OvertimeThresholdHours,
		&e.WithholdingEnabled, &overrides, &credentialsEnc, &e.IsActive,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return Employer{}, err
	}
	e.StateRateOverrides = map[string]string{}
	if overrides != "" {
		if err := json.Unmarshal([]byte(overrides), &e.StateRateOverrides); err != nil {
			return Employer{}, fmt.Errorf("employer %s: bad state_rate_overrides: %w", e.ID, err)
		}
	}
	e.TaxID = s.Cipher.DecryptField(taxIDEnc)
	e.TaxIDMasked = maskDecrypted(e.TaxID)
	e.ProcessorCredentials = s.Cipher.DecryptField(credentialsEnc)
	return e, nil
}

// CreateEmployer onboards a household. The first employer becomes the active
// one.
func (s *Store) CreateEmployer(ctx context.Context, settings EmployerSettings) (Employer, error) {
	settings = DefaultSettings(settings)
	if err := validateSettings(settings); err != nil {
		return Employer{}, err
	}
	taxIDEnc, err := s.Cipher.EncryptField(strings.TrimSpace(settings.TaxID))
	if err != nil {
		return Employer{}, fmt.Errorf("encrypt tax id: %w", err)
	}
	credentialsEnc, err := s.Cipher.EncryptField(settings.ProcessorCredentials)
	if err != nil {
		return Employer{}, fmt.Errorf("encrypt processor credentials: %w", err)
	}
	overrides, err := json.Marshal(settings.StateRateOverrides)
	if err != nil {
		return Employer{}, err
	}

	id := uuid.NewString()
	err = querier.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		q := querier.Conn(ctx, s.DB)
		var active int
		if err := q.QueryRowContext(ctx, "SELECT COUNT(1) FROM employers WHERE is_active = 1").Scan(&active); err != nil {
			return err
		}
		now := s.now()
		_, err := q.ExecContext(ctx, `
			INSERT INTO employers (`+employerColumns+`)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		`, id, strings.TrimSpace(settings.Name), taxIDEnc, settings.StateCode, settings.PayFrequency,
			settings.DefaultHourlyRate, settings.WeekendMultiplier, settings.HolidayMultiplier,
			settings.OvertimeMultiplier, settings.OvertimeThresholdHours, settings.WithholdingEnabled,
			string(overrides), credentialsEnc, active == 0, now, now)
		if err != nil {
			return fmt.Errorf("insert employer: %w", err)
		}
		s.record(ctx, "employers", id, "create", map[string]any{
			"name":         settings.Name,
			"payFrequency": settings.PayFrequency,
			"stateCode":    settings.StateCode,
		})
		return nil
	})
	if err != nil {
		return Employer{}, err
	}
	return s.GetEmployer(ctx, id)
}

func (s *Store) GetEmployer(ctx context.Context, id string) (Employer, error) {
	row := querier.Conn(ctx, s.DB).QueryRowContext(ctx, "SELECT "+employerColumns+" FROM employers WHERE id = ?", id)
	e, err := s.scanEmployer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Employer{}, ErrEmployerNotFound
	}
	return e, err
}

func (s *Store) ActiveEmployer(ctx context.Context) (Employer, error) {
	row := querier.Conn(ctx, s.DB).QueryRowContext(ctx, "SELECT "+employerColumns+" FROM employers WHERE is_active = 1")
	e, err := s.scanEmployer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Employer{}, ErrNoActiveEmployer
	}
	return e, err
}

func (s *Store) UpdateEmployerSettings(ctx context.Context, id string, settings EmployerSettings) (Employer, error) {
	settings = DefaultSettings(settings)
	if err := validateSettings(settings); err != nil {
		return Employer{}, err
	}
	overrides, err := json.Marshal(settings.StateRateOverrides)
	if err != nil {
		return Employer{}, err
	}

	err = querier.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		current, err := s.GetEmployer(ctx, id)
		if err != nil {
			return err
		}
		taxID := current.TaxID
		if settings.TaxID != "" {
			taxID = strings.TrimSpace(settings.TaxID)
		}
		credentials := current.ProcessorCredentials
		if settings.ProcessorCredentials != "" {
			credentials = settings.ProcessorCredentials
		}
		if taxID == crypto.DecryptionFailedPlaceholder || credentials == crypto.DecryptionFailedPlaceholder {
			return fmt.Errorf("%w: stored secrets cannot be decrypted; supply new values", ErrInvalidInput)
		}
		taxIDEnc, err := s.Cipher.EncryptField(taxID)
		if err != nil {
			return fmt.Errorf("encrypt tax id: %w", err)
		}
		credentialsEnc, err := s.Cipher.EncryptField(credentials)
		if err != nil {
			return fmt.Errorf("encrypt processor credentials: %w", err)
		}

		_, err = querier.Conn(ctx, s.DB).ExecContext(ctx, `
			UPDATE employers SET
				name = ?, tax_id_enc = ?, state_code = ?, pay_frequency = ?, default_hourly_rate = ?,
				weekend_multiplier = ?, holiday_multiplier = ?, overtime_multiplier = ?,
				overtime_threshold_hours = ?, withholding_enabled = ?, state_rate_overrides = ?,
				processor_credentials_enc = ?, updated_at = ?
			WHERE id = ?
		`, strings.TrimSpace(settings.Name), taxIDEnc, settings.StateCode, settings.PayFrequency,
			settings.DefaultHourlyRate, settings.WeekendMultiplier, settings.HolidayMultiplier,
			settings.OvertimeMultiplier, settings.OvertimeThresholdHours, settings.WithholdingEnabled,
			string(overrides), credentialsEnc, s.now(), id)
		if err != nil {
			return fmt.Errorf("update employer: %w", err)
		}
		s.record(ctx, "employers", id, "update_settings", map[string]any{
			"payFrequency":       settings.PayFrequency,
			"withholdingEnabled": settings.WithholdingEnabled,
			"weekendMultiplier":  settings.WeekendMultiplier.String(),
			"holidayMultiplier":  settings.HolidayMultiplier.String(),
			"overtimeMultiplier": settings.OvertimeMultiplier.String(),
			"taxIdChanged":       settings.TaxID != "",
			"credentialsChanged": settings.ProcessorCredentials != "",
		})
		return nil
	})
	if err != nil {
		return Employer{}, err
	}
	return s.GetEmployer(ctx, id)
}

// ActivateEmployer makes id the single active employer.
func (s *Store) ActivateEmployer(ctx context.Context, id string) error {
	return querier.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		q := querier.Conn(ctx, s.DB)
		now := s.now()
		if _, err := q.ExecContext(ctx,
			"UPDATE employers SET is_active = 0, updated_at = ? WHERE is_active = 1 AND id <> ?", now, id); err != nil {
			return err
		}
		res, err := q.ExecContext(ctx, "UPDATE employers SET is_active = 1, updated_at = ? WHERE id = ?", now, id)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrEmployerNotFound
		}
		s.record(ctx, "employers", id, "activate", nil)
		return nil
	})
}

const caregiverColumns = `
	id, employer_id, first_name, last_name, ssn_enc, hourly_rate,
	filing_status, multiple_jobs, dependents_credit, other_income, deductions, extra_withholding,
	payout_method, payout_account_enc, payout_account_masked, is_active, created_at, updated_at`

func (s *Store) scanCaregiver(row rowScanner) (Caregiver, error) {
	var c Caregiver
	var ssnEnc, accountEnc string
	err := row.Scan(
		&c.ID, &c.EmployerID, &c.FirstName, &c.LastName, &ssnEnc, &c.HourlyRate,
		&c.Withholding.FilingStatus, &c.Withholding.MultipleJobs, &c.Withholding.DependentsCredit,
		&c.Withholding.OtherIncome, &c.Withholding.Deductions, &c.Withholding.ExtraWithholding,
		&c.PayoutMethod, &accountEnc, &c.PayoutAccountMasked, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Caregiver{}, err
	}
	c.SSN = s.Cipher.DecryptField(ssnEnc)
	c.SSNMasked = maskDecrypted(c.SSN)
	c.PayoutAccount = s.Cipher.DecryptField(accountEnc)
	return c, nil
}

func (s *Store) CreateCaregiver(ctx context.Context, in NewCaregiver) (Caregiver, error) {
	if in.Withholding.FilingStatus == "" {
		in.Withholding.FilingStatus = FilingStatusSingle
	}
	if in.PayoutMethod == "" {
		in.PayoutMethod = PayoutDirectDeposit
	}
	if err := validateCaregiver(in); err != nil {
		return Caregiver{}, err
	}
	ssnEnc, err := s.Cipher.EncryptField(strings.TrimSpace(in.SSN))
	if err != nil {
		return Caregiver{}, fmt.Errorf("encrypt ssn: %w", err)
	}
	accountEnc, err := s.Cipher.EncryptField(strings.TrimSpace(in.PayoutAccount))
	if err != nil {
		return Caregiver{}, fmt.Errorf("encrypt payout account: %w", err)
	}

	id := uuid.NewString()
	err = querier.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		if _, err := s.GetEmployer(ctx, in.EmployerID); err != nil {
			return err
		}
		now := s.now()
		w := in.Withholding
		_, err := querier.Conn(ctx, s.DB).ExecContext(ctx, `
			INSERT INTO caregivers (`+caregiverColumns+`)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		`, id, in.EmployerID, strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName), ssnEnc, in.HourlyRate,
			w.FilingStatus, w.MultipleJobs, w.DependentsCredit, w.OtherIncome, w.Deductions, w.ExtraWithholding,
			in.PayoutMethod, accountEnc, crypto.Mask(in.PayoutAccount, 4), true, now, now)
		if err != nil {
			return fmt.Errorf("insert caregiver: %w", err)
		}
		s.record(ctx, "caregivers", id, "create", map[string]any{
			"employerId":   in.EmployerID,
			"hourlyRate":   in.HourlyRate.String(),
			"filingStatus": w.FilingStatus,
			"payoutMethod": in.PayoutMethod,
		})
		return nil
	})
	if err != nil {
		return Caregiver{}, err
	}
	return s.GetCaregiver(ctx, id)
}

func (s *Store) GetCaregiver(ctx context.Context, id string) (Caregiver, error) {
	row := querier.Conn(ctx, s.DB).QueryRowContext(ctx, "SELECT "+caregiverColumns+" FROM caregivers WHERE id = ?", id)
	c, err := s.scanCaregiver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Caregiver{}, ErrCaregiverNotFound
	}
	return c, err
}

func (s *Store) ListCaregivers(ctx context.Context, employerID string, includeInactive bool) ([]Caregiver, error) {
	query := "SELECT " + caregiverColumns + " FROM caregivers WHERE employer_id = ?"
	if !includeInactive {
		query += " AND is_active = 1"
	}
	query += " ORDER BY last_name, first_name"

	rows, err := querier.Conn(ctx, s.DB).QueryContext(ctx, query, employerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Caregiver
	for rows.Next() {
		c, err := s.scanCaregiver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeactivateCaregiver soft-deletes a caregiver; payroll history keeps
// pointing at the row.
func (s *Store) DeactivateCaregiver(ctx context.Context, id string) error {
	return querier.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		res, err := querier.Conn(ctx, s.DB).ExecContext(ctx,
			"UPDATE caregivers SET is_active = 0, updated_at = ? WHERE id = ?", s.now(), id)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrCaregiverNotFound
		}
		s.record(ctx, "caregivers", id, "deactivate", nil)
		return nil
	})
}

func maskDecrypted(value string) string {
	if value == crypto.DecryptionFailedPlaceholder {
		return value
	}
	return crypto.Mask(value, 4)
}
