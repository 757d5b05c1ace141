package payroll

const (
	// CalculationVersion identifies the revision of Calculate. Bump it whenever
	// the algorithm changes so stored records stay attributable.
	CalculationVersion = "carepay-calc/2"

	StatusDraft    = "draft"
	StatusApproved = "approved"

	BucketRegular  = "regular"
	BucketWeekend  = "weekend"
	BucketHoliday  = "holiday"
	BucketOvertime = "overtime"

	defaultPayPeriodsPerYear = 26
)

// Rate override keys an employer may set in state_rate_overrides.
const (
	OverrideSUIRate                = "sui_rate"
	OverrideSUIWageBase            = "sui_wage_base"
	OverrideStatePaidLeaveRate     = "state_paid_leave_rate"
	OverrideStateWithholdingRate   = "state_withholding_rate"
	OverrideStatePaidLeaveWageBase = "state_paid_leave_wage_base"
)
