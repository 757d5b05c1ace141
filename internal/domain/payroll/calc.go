package payroll

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"carepay/internal/domain/household"
	"carepay/internal/domain/tax"
)

// PayRates are the caregiver's base rate and the employer's premium settings.
type PayRates struct {
	HourlyRate             decimal.Decimal
	WeekendMultiplier      decimal.Decimal
	HolidayMultiplier      decimal.Decimal
	OvertimeMultiplier     decimal.Decimal
	OvertimeThresholdHours decimal.Decimal
}

type CalculationInput struct {
	EmployerID  string
	CaregiverID string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Rates       PayRates
	Entries     []TimeEntry
	Tax         tax.Configuration
	// YTDWages is gross wages already paid this calendar year; every wage
	// base cap is applied against it.
	YTDWages           decimal.Decimal
	WithholdingEnabled bool
	Withholding        household.Withholding
	PayPeriodsPerYear  int
	// CarryIn holds entries already paid in the week that contains
	// PeriodStart. They count toward that week's overtime threshold but are
	// not paid again.
	CarryIn []TimeEntry
	// Holidays defaults to the federal holidays of the period's years.
	Holidays HolidaySet
}

type Result struct {
	Record            Record
	FinalizedEntryIDs []string
}

type buckets struct {
	regular, weekend, holiday, overtime decimal.Decimal
}

// Calculate computes a draft payroll record. It performs no I/O and does not
// round: amounts stay exact until they are converted to cents for payment.
func Calculate(in CalculationInput) (Result, error) {
	if in.PeriodEnd.Before(in.PeriodStart) {
		return Result{}, ErrInvalidPeriod
	}
	if in.Tax.Version == "" {
		return Result{}, &tax.NoConfigurationError{Year: in.PeriodEnd.Year()}
	}

	entries := payableEntries(in.Entries, in.PeriodStart, in.PeriodEnd)
	if len(entries) == 0 {
		return Result{}, &InsufficientDataError{CaregiverID: in.CaregiverID, Start: in.PeriodStart, End: in.PeriodEnd}
	}

	holidays := in.Holidays
	if holidays == nil {
		holidays = HolidaySet{}
		for year := weekStart(in.PeriodStart).Year(); year <= in.PeriodEnd.Year(); year++ {
			for day := range FederalHolidays(year) {
				holidays[day] = struct{}{}
			}
		}
	}

	hours := partitionHours(entries, carriedWeek(in.CarryIn, in.PeriodStart), holidays, in.Rates.OvertimeThresholdHours)
	rate := in.Rates.HourlyRate

	rec := Record{
		EmployerID:     in.EmployerID,
		CaregiverID:    in.CaregiverID,
		PayPeriodStart: in.PeriodStart,
		PayPeriodEnd:   in.PeriodEnd,
		RegularHours:   hours.regular,
		WeekendHours:   hours.weekend,
		HolidayHours:   hours.holiday,
		OvertimeHours:  hours.overtime,
		RegularWages:   hours.regular.Mul(rate),
		WeekendWages:   hours.weekend.Mul(rate).Mul(multiplier(in.Rates.WeekendMultiplier)),
		HolidayWages:   hours.holiday.Mul(rate).Mul(multiplier(in.Rates.HolidayMultiplier)),
		OvertimeWages:  hours.overtime.Mul(rate).Mul(multiplier(in.Rates.OvertimeMultiplier)),
	}
	rec.GrossWages = rec.RegularWages.Add(rec.WeekendWages).Add(rec.HolidayWages).Add(rec.OvertimeWages)

	cfg := in.Tax
	gross := rec.GrossWages
	ssBase := taxableWithinCap(gross, cfg.SocialSecurityWageBase, in.YTDWages)
	medicareBase := taxableWithinCap(gross, cfg.MedicareWageBase, in.YTDWages)

	rec.EmployeeSocialSecurity = cfg.SocialSecurityEmployeeRate.Mul(ssBase)
	rec.EmployeeMedicare = cfg.MedicareEmployeeRate.Mul(medicareBase)
	rec.EmployeeStatePayrollTax = cfg.StatePaidLeaveRate.Mul(taxableWithinCap(gross, cfg.StatePaidLeaveWageBase, in.YTDWages))

	rec.EmployerSocialSecurity = cfg.SocialSecurityEmployerRate.Mul(ssBase)
	rec.EmployerMedicare = cfg.MedicareEmployerRate.Mul(medicareBase)
	rec.EmployerFUTA = cfg.FUTARate.Mul(taxableWithinCap(gross, cfg.FUTAWageBase, in.YTDWages))
	rec.EmployerSUTA = cfg.SUIRate.Mul(taxableWithinCap(gross, cfg.SUIWageBase, in.YTDWages))

	rec.FederalWithholding = decimal.Zero
	rec.StateWithholding = decimal.Zero
	if in.WithholdingEnabled {
		rec.FederalWithholding = federalWithholding(gross, cfg, in.Withholding, in.PayPeriodsPerYear)
		rec.StateWithholding = cfg.StateWithholdingRate.Mul(gross).Round(2)
	}

	rec.TotalEmployeeDeductions = rec.EmployeeSocialSecurity.
		Add(rec.EmployeeMedicare).
		Add(rec.EmployeeStatePayrollTax).
		Add(rec.FederalWithholding).
		Add(rec.StateWithholding)
	rec.TotalEmployerTaxes = rec.EmployerSocialSecurity.
		Add(rec.EmployerMedicare).
		Add(rec.EmployerFUTA).
		Add(rec.EmployerSUTA)
	rec.NetPay = gross.Sub(rec.TotalEmployeeDeductions)

	rec.CalculationVersion = CalculationVersion
	rec.TaxVersion = cfg.Version
	rec.IsMinimumWageCompliant = minimumWageCompliant(gross, rec.TotalHours(), cfg.MinimumWage)
	rec.Status = StatusDraft

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}
	return Result{Record: rec, FinalizedEntryIDs: ids}, nil
}

func payableEntries(all []TimeEntry, start, end time.Time) []TimeEntry {
	out := make([]TimeEntry, 0, len(all))
	for _, entry := range all {
		if entry.IsFinalized || entry.WorkDate.Before(start) || entry.WorkDate.After(end) {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].WorkDate.Before(out[j].WorkDate) })
	return out
}

// carriedWeek keeps the carry-in entries that fall in the Sunday-start week
// of start and before start itself.
func carriedWeek(carryIn []TimeEntry, start time.Time) []TimeEntry {
	from := weekStart(start)
	out := make([]TimeEntry, 0, len(carryIn))
	for _, entry := range carryIn {
		if entry.WorkDate.Before(from) || !entry.WorkDate.Before(start) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// partitionHours classifies each entry as holiday, weekend or regular, in
// that order of precedence. Regular hours past the weekly threshold within a
// Sunday-start week become overtime; premium buckets do not count toward the
// threshold. Regular hours in carryIn seed their week's total.
func partitionHours(entries, carryIn []TimeEntry, holidays HolidaySet, threshold decimal.Decimal) buckets {
	b := buckets{regular: decimal.Zero, weekend: decimal.Zero, holiday: decimal.Zero, overtime: decimal.Zero}
	weekly := map[string]decimal.Decimal{}
	for _, entry := range carryIn {
		if holidays.Contains(entry.WorkDate) || isWeekend(entry.WorkDate) {
			continue
		}
		week := weekStart(entry.WorkDate).Format(dateLayout)
		weekly[week] = weekly[week].Add(entry.Hours)
	}

	for _, entry := range entries {
		switch {
		case holidays.Contains(entry.WorkDate):
			b.holiday = b.holiday.Add(entry.Hours)
		case isWeekend(entry.WorkDate):
			b.weekend = b.weekend.Add(entry.Hours)
		default:
			week := weekStart(entry.WorkDate).Format(dateLayout)
			worked := weekly[week]
			regular, overtime := splitOvertime(worked, entry.Hours, threshold)
			weekly[week] = worked.Add(entry.Hours)
			b.regular = b.regular.Add(regular)
			b.overtime = b.overtime.Add(overtime)
		}
	}
	return b
}

func splitOvertime(alreadyWorked, hours, threshold decimal.Decimal) (regular, overtime decimal.Decimal) {
	if !threshold.IsPositive() {
		return hours, decimal.Zero
	}
	room := threshold.Sub(alreadyWorked)
	if !room.IsPositive() {
		return decimal.Zero, hours
	}
	if hours.LessThanOrEqual(room) {
		return hours, decimal.Zero
	}
	return room, hours.Sub(room)
}

func isWeekend(day time.Time) bool {
	return day.Weekday() == time.Saturday || day.Weekday() == time.Sunday
}

func weekStart(day time.Time) time.Time {
	return day.AddDate(0, 0, -int(day.Weekday()))
}

func multiplier(m decimal.Decimal) decimal.Decimal {
	if m.IsZero() {
		return decimal.NewFromInt(1)
	}
	return m
}

// taxableWithinCap is the part of gross still under a wage base given what
// was already taxed this year. A zero base means uncapped.
func taxableWithinCap(gross, wageBase, ytd decimal.Decimal) decimal.Decimal {
	if wageBase.IsZero() {
		return gross
	}
	remaining := wageBase.Sub(ytd)
	if !remaining.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(gross, remaining)
}

// federalWithholding is a simplified percentage method: annualize, subtract
// the standard deduction and W-4 deductions, apply a flat rate, take off the
// dependents credit and spread the rest back over the pay periods.
func federalWithholding(gross decimal.Decimal, cfg tax.Configuration, w household.Withholding, periods int) decimal.Decimal {
	if periods <= 0 {
		periods = defaultPayPeriodsPerYear
	}
	perYear := decimal.NewFromInt(int64(periods))

	deduction := cfg.StandardDeduction(w.FilingStatus)
	if w.MultipleJobs {
		deduction = deduction.Div(decimal.NewFromInt(2))
	}
	annualTaxable := gross.Mul(perYear).
		Add(w.OtherIncome).
		Sub(w.Deductions).
		Sub(deduction)
	if annualTaxable.IsNegative() {
		annualTaxable = decimal.Zero
	}
	annualTax := annualTaxable.Mul(cfg.FederalWithholdingRate).Sub(w.DependentsCredit)
	if annualTax.IsNegative() {
		annualTax = decimal.Zero
	}
	perPeriod := annualTax.Div(perYear).Round(2).Add(w.ExtraWithholding)
	if perPeriod.IsNegative() {
		return decimal.Zero
	}
	return perPeriod
}

func minimumWageCompliant(gross, hours, minimumWage decimal.Decimal) bool {
	if !hours.IsPositive() || !minimumWage.IsPositive() {
		return true
	}
	return !gross.Div(hours).LessThan(minimumWage)
}

// ApplyOverrides returns cfg with an employer's state rate overrides applied.
// Unknown keys and unparsable values are ignored.
func ApplyOverrides(cfg tax.Configuration, overrides map[string]string) tax.Configuration {
	targets := map[string]*decimal.Decimal{
		OverrideSUIRate:                &cfg.SUIRate,
		OverrideSUIWageBase:            &cfg.SUIWageBase,
		OverrideStatePaidLeaveRate:     &cfg.StatePaidLeaveRate,
		OverrideStatePaidLeaveWageBase: &cfg.StatePaidLeaveWageBase,
		OverrideStateWithholdingRate:   &cfg.StateWithholdingRate,
	}
	for key, raw := range overrides {
		target, ok := targets[key]
		if !ok {
			continue
		}
		value, err := decimal.NewFromString(raw)
		if err != nil || value.IsNegative() {
			continue
		}
		*target = value
	}
	return cfg
}
