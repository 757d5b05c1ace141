package tax

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

func Validate(cfg Configuration) error {
	if cfg.TaxYear < 2000 || cfg.TaxYear > 2100 {
		return fmt.Errorf("%w: tax year %d out of range", ErrInvalidConfiguration, cfg.TaxYear)
	}
	if strings.TrimSpace(cfg.Version) == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidConfiguration)
	}
	if cfg.EffectiveDate.IsZero() {
		return fmt.Errorf("%w: effective date is required", ErrInvalidConfiguration)
	}
	rates := map[string]decimal.Decimal{
		"ss_employee_rate":         cfg.SocialSecurityEmployeeRate,
		"ss_employer_rate":         cfg.SocialSecurityEmployerRate,
		"medicare_employee_rate":   cfg.MedicareEmployeeRate,
		"medicare_employer_rate":   cfg.MedicareEmployerRate,
		"futa_rate":                cfg.FUTARate,
		"sui_rate":                 cfg.SUIRate,
		"state_paid_leave_rate":    cfg.StatePaidLeaveRate,
		"federal_withholding_rate": cfg.FederalWithholdingRate,
		"state_withholding_rate":   cfg.StateWithholdingRate,
	}
	for name, rate := range rates {
		if rate.IsNegative() || rate.GreaterThan(one) {
			return fmt.Errorf("%w: %s must be between 0 and 1", ErrInvalidConfiguration, name)
		}
	}
	amounts := map[string]decimal.Decimal{
		"ss_wage_base":               cfg.SocialSecurityWageBase,
		"medicare_wage_base":         cfg.MedicareWageBase,
		"futa_wage_base":             cfg.FUTAWageBase,
		"sui_wage_base":              cfg.SUIWageBase,
		"state_paid_leave_wage_base": cfg.StatePaidLeaveWageBase,
		"standard_deduction_single":  cfg.StandardDeductionSingle,
		"standard_deduction_married": cfg.StandardDeductionMarried,
		"minimum_wage":               cfg.MinimumWage,
	}
	for name, amount := range amounts {
		if amount.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfiguration, name)
		}
	}
	return nil
}
