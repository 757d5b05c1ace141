package tax

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"carepay/internal/platform/querier"
)

const dateLayout = "2006-01-02"

// Auditor receives one entry per committed write.
type Auditor interface {
	Record(ctx context.Context, tableName, recordID, action string, changes any)
}

type Store struct {
	DB    *sql.DB
	Audit Auditor
	now   func() time.Time
}

func NewStore(db *sql.DB, auditor Auditor) *Store {
	return &Store{DB: db, Audit: auditor, now: func() time.Time { return time.Now().UTC() }}
}

const selectColumns = `
	id, tax_year,
	ss_employee_rate, ss_employer_rate, ss_wage_base,
	medicare_employee_rate, medicare_employer_rate, medicare_wage_base,
	futa_rate, futa_wage_base,
	state_code, sui_rate, sui_wage_base,
	state_paid_leave_rate, state_paid_leave_wage_base,
	federal_withholding_rate, state_withholding_rate,
	standard_deduction_single, standard_deduction_married,
	minimum_wage, effective_date, version, is_default, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfiguration(row rowScanner) (Configuration, error) {
	var cfg Configuration
	var effective string
	err := row.Scan(
		&cfg.ID, &cfg.TaxYear,
		&cfg.SocialSecurityEmployeeRate, &cfg.SocialSecurityEmployerRate, &cfg.SocialSecurityWageBase,
		&cfg.MedicareEmployeeRate, &cfg.MedicareEmployerRate, &cfg.MedicareWageBase,
		&cfg.FUTARate, &cfg.FUTAWageBase,
		&cfg.StateCode, &cfg.SUIRate, &cfg.SUIWageBase,
		&cfg.StatePaidLeaveRate, &cfg.StatePaidLeaveWageBase,
		&cfg.FederalWithholdingRate, &cfg.StateWithholdingRate,
		&cfg.StandardDeductionSingle, &cfg.StandardDeductionMarried,
		&cfg.MinimumWage, &effective, &cfg.Version, &cfg.IsDefault, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return Configuration{}, err
	}
	cfg.EffectiveDate, err = time.Parse(dateLayout, effective)
	if err != nil {
		return Configuration{}, fmt.Errorf("tax year %d: bad effective_date %q: %w", cfg.TaxYear, effective, err)
	}
	return cfg, nil
}

// EffectiveConfig resolves the configuration for a year by exact tax_year
// match; the unique index guarantees at most one row.
func (s *Store) EffectiveConfig(ctx context.Context, year int) (Configuration, error) {
	row := querier.Conn(ctx, s.DB).QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM tax_configurations WHERE tax_year = ?", year)
	cfg, err := scanConfiguration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Configuration{}, &NoConfigurationError{Year: year}
	}
	if err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

func (s *Store) List(ctx context.Context) ([]Configuration, error) {
	rows, err := querier.Conn(ctx, s.DB).QueryContext(ctx,
		"SELECT "+selectColumns+" FROM tax_configurations ORDER BY tax_year")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Configuration
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func insertArgs(cfg Configuration, now time.Time) []any {
	return []any{
		cfg.ID, cfg.TaxYear,
		cfg.SocialSecurityEmployeeRate, cfg.SocialSecurityEmployerRate, cfg.SocialSecurityWageBase,
		cfg.MedicareEmployeeRate, cfg.MedicareEmployerRate, cfg.MedicareWageBase,
		cfg.FUTARate, cfg.FUTAWageBase,
		cfg.StateCode, cfg.SUIRate, cfg.SUIWageBase,
		cfg.StatePaidLeaveRate, cfg.StatePaidLeaveWageBase,
		cfg.FederalWithholdingRate, cfg.StateWithholdingRate,
		cfg.StandardDeductionSingle, cfg.StandardDeductionMarried,
		cfg.MinimumWage, cfg.EffectiveDate.Format(dateLayout), cfg.Version, cfg.IsDefault, now, now,
	}
}

const insertStatement = `
	INSERT INTO tax_configurations (` + selectColumns + `)
	VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

// UpsertYear inserts the year or replaces its rates in place. The row id is
// preserved so existing references stay valid.
func (s *Store) UpsertYear(ctx context.Context, cfg Configuration) (Configuration, error) {
	if err := Validate(cfg); err != nil {
		return Configuration{}, err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	_, err := querier.Conn(ctx, s.DB).ExecContext(ctx, insertStatement+`
		ON CONFLICT (tax_year) DO UPDATE SET
			ss_employee_rate = excluded.ss_employee_rate,
			ss_employer_rate = excluded.ss_employer_rate,
			ss_wage_base = excluded.ss_wage_base,
			medicare_employee_rate = excluded.medicare_employee_rate,
			medicare_employer_rate = excluded.medicare_employer_rate,
			medicare_wage_base = excluded.medicare_wage_base,
			futa_rate = excluded.futa_rate,
			futa_wage_base = excluded.futa_wage_base,
			state_code = excluded.state_code,
			sui_rate = excluded.sui_rate,
			sui_wage_base = excluded.sui_wage_base,
			state_paid_leave_rate = excluded.state_paid_leave_rate,
			state_paid_leave_wage_base = excluded.state_paid_leave_wage_base,
			federal_withholding_rate = excluded.federal_withholding_rate,
			state_withholding_rate = excluded.state_withholding_rate,
			standard_deduction_single = excluded.standard_deduction_single,
			standard_deduction_married = excluded.standard_deduction_married,
			minimum_wage = excluded.minimum_wage,
			effective_date = excluded.effective_date,
			version = excluded.version,
			is_default = excluded.is_default,
			updated_at = excluded.updated_at
	`, insertArgs(cfg, s.now())...)
	if err != nil {
		return Configuration{}, fmt.Errorf("upsert tax year %d: %w", cfg.TaxYear, err)
	}

	stored, err := s.EffectiveConfig(ctx, cfg.TaxYear)
	if err != nil {
		return Configuration{}, err
	}
	if s.Audit != nil {
		s.Audit.Record(ctx, "tax_configurations", stored.ID, "upsert", map[string]any{
			"taxYear": stored.TaxYear,
			"version": stored.Version,
		})
	}
	return stored, nil
}

// InsertIfAbsent seeds a year without touching an existing row. It reports
// whether a row was written.
func (s *Store) InsertIfAbsent(ctx context.Context, cfg Configuration) (bool, error) {
	if err := Validate(cfg); err != nil {
		return false, err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	res, err := querier.Conn(ctx, s.DB).ExecContext(ctx,
		insertStatement+" ON CONFLICT (tax_year) DO NOTHING", insertArgs(cfg, s.now())...)
	if err != nil {
		return false, fmt.Errorf("seed tax year %d: %w", cfg.TaxYear, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 && s.Audit != nil {
		s.Audit.Record(ctx, "tax_configurations", cfg.ID, "seed", map[string]any{
			"taxYear": cfg.TaxYear,
			"version": cfg.Version,
		})
	}
	return affected > 0, nil
}
