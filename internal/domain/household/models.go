package household

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PayFrequencyWeekly      = "weekly"
	PayFrequencyBiweekly    = "biweekly"
	PayFrequencySemimonthly = "semimonthly"
	PayFrequencyMonthly     = "monthly"

	FilingStatusSingle          = "single"
	FilingStatusMarriedJoint    = "married_joint"
	FilingStatusHeadOfHousehold = "head_of_household"

	PayoutDirectDeposit = "direct_deposit"
	PayoutCheck         = "check"
)

// PeriodsPerYear returns how many pay periods a frequency has in a year, or 0
// for an unknown frequency.
func PeriodsPerYear(frequency string) int {
	switch frequency {
	case PayFrequencyWeekly:
		return 52
	case PayFrequencyBiweekly:
		return 26
	case PayFrequencySemimonthly:
		return 24
	case PayFrequencyMonthly:
		return 12
	default:
		return 0
	}
}

type Employer struct {
	ID                     string            `json:"id"`
	Name                   string            `json:"name"`
	TaxID                  string            `json:"-"`
	TaxIDMasked            string            `json:"taxIdMasked"`
	StateCode              string            `json:"stateCode"`
	PayFrequency           string            `json:"payFrequency"`
	DefaultHourlyRate      decimal.Decimal   `json:"defaultHourlyRate"`
	WeekendMultiplier      decimal.Decimal   `json:"weekendMultiplier"`
	HolidayMultiplier      decimal.Decimal   `json:"holidayMultiplier"`
	OvertimeMultiplier     decimal.Decimal   `json:"overtimeMultiplier"`
	OvertimeThresholdHours decimal.Decimal   `json:"overtimeThresholdHours"`
	WithholdingEnabled     bool              `json:"withholdingEnabled"`
	StateRateOverrides     map[string]string `json:"stateRateOverrides"`
	ProcessorCredentials   string            `json:"-"`
	IsActive               bool              `json:"isActive"`
	CreatedAt              time.Time         `json:"createdAt"`
	UpdatedAt              time.Time         `json:"updatedAt"`
}

// EmployerSettings is the editable part of an employer. Empty TaxID and
// ProcessorCredentials keep the stored secrets.
type EmployerSettings struct {
	Name                   string
	TaxID                  string
	StateCode              string
	PayFrequency           string
	DefaultHourlyRate      decimal.Decimal
	WeekendMultiplier      decimal.Decimal
	HolidayMultiplier      decimal.Decimal
	OvertimeMultiplier     decimal.Decimal
	OvertimeThresholdHours decimal.Decimal
	WithholdingEnabled     bool
	StateRateOverrides     map[string]string
	ProcessorCredentials   string
}

// Withholding holds a caregiver's W-4 elections.
type Withholding struct {
	FilingStatus     string          `json:"filingStatus"`
	MultipleJobs     bool            `json:"multipleJobs"`
	DependentsCredit decimal.Decimal `json:"dependentsCredit"`
	OtherIncome      decimal.Decimal `json:"otherIncome"`
	Deductions       decimal.Decimal `json:"deductions"`
	ExtraWithholding decimal.Decimal `json:"extraWithholding"`
}

type Caregiver struct {
	ID                  string          `json:"id"`
	EmployerID          string          `json:"employerId"`
	FirstName           string          `json:"firstName"`
	LastName            string          `json:"lastName"`
	SSN                 string          `json:"-"`
	SSNMasked           string          `json:"ssnMasked"`
	HourlyRate          decimal.Decimal `json:"hourlyRate"`
	Withholding         Withholding     `json:"withholding"`
	PayoutMethod        string          `json:"payoutMethod"`
	PayoutAccount       string          `json:"-"`
	PayoutAccountMasked string          `json:"payoutAccountMasked"`
	IsActive            bool            `json:"isActive"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

type NewCaregiver struct {
	EmployerID    string
	FirstName     string
	LastName      string
	SSN           string
	HourlyRate    decimal.Decimal
	Withholding   Withholding
	PayoutMethod  string
	PayoutAccount string
}
