package household

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

func validateSettings(s EmployerSettings) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: employer name is required", ErrInvalidInput)
	}
	if PeriodsPerYear(s.PayFrequency) == 0 {
		return fmt.Errorf("%w: unknown pay frequency %q", ErrInvalidInput, s.PayFrequency)
	}
	if s.DefaultHourlyRate.IsNegative() {
		return fmt.Errorf("%w: default hourly rate must not be negative", ErrInvalidInput)
	}
	multipliers := map[string]decimal.Decimal{
		"weekend multiplier":  s.WeekendMultiplier,
		"holiday multiplier":  s.HolidayMultiplier,
		"overtime multiplier": s.OvertimeMultiplier,
	}
	for name, value := range multipliers {
		if value.LessThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: %s must be at least 1", ErrInvalidInput, name)
		}
	}
	if !s.OvertimeThresholdHours.IsPositive() {
		return fmt.Errorf("%w: overtime threshold must be positive", ErrInvalidInput)
	}
	return nil
}

func validateCaregiver(c NewCaregiver) error {
	if strings.TrimSpace(c.EmployerID) == "" {
		return fmt.Errorf("%w: employer is required", ErrInvalidInput)
	}
	if strings.TrimSpace(c.FirstName) == "" || strings.TrimSpace(c.LastName) == "" {
		return fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}
	if !c.HourlyRate.IsPositive() {
		return fmt.Errorf("%w: hourly rate must be positive", ErrInvalidInput)
	}
	switch c.Withholding.FilingStatus {
	case FilingStatusSingle, FilingStatusMarriedJoint, FilingStatusHeadOfHousehold:
	default:
		return fmt.Errorf("%w: unknown filing status %q", ErrInvalidInput, c.Withholding.FilingStatus)
	}
	amounts := []decimal.Decimal{
		c.Withholding.DependentsCredit, c.Withholding.OtherIncome,
		c.Withholding.Deductions, c.Withholding.ExtraWithholding,
	}
	for _, amount := range amounts {
		if amount.IsNegative() {
			return fmt.Errorf("%w: withholding amounts must not be negative", ErrInvalidInput)
		}
	}
	switch c.PayoutMethod {
	case PayoutDirectDeposit, PayoutCheck:
	default:
		return fmt.Errorf("%w: unknown payout method %q", ErrInvalidInput, c.PayoutMethod)
	}
	return nil
}

// DefaultSettings fills zero-valued premium pay settings with household
// defaults: no weekend or holiday premium, time-and-a-half after 40 hours.
func DefaultSettings(s EmployerSettings) EmployerSettings {
	if s.PayFrequency == "" {
		s.PayFrequency = PayFrequencyBiweekly
	}
	if s.WeekendMultiplier.IsZero() {
		s.WeekendMultiplier = decimal.NewFromInt(1)
	}
	if s.HolidayMultiplier.IsZero() {
		s.HolidayMultiplier = decimal.NewFromInt(1)
	}
	if s.OvertimeMultiplier.IsZero() {
		s.OvertimeMultiplier = decimal.RequireFromString("1.5")
	}
	if s.OvertimeThresholdHours.IsZero() {
		s.OvertimeThresholdHours = decimal.NewFromInt(40)
	}
	if s.StateRateOverrides == nil {
		s.StateRateOverrides = map[string]string{}
	}
	return s
}
