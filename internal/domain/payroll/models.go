package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type TimeEntry struct {
	ID              string          `json:"id"`
	EmployerID      string          `json:"employerId"`
	CaregiverID     string          `json:"caregiverId"`
	WorkDate        time.Time       `json:"workDate"`
	Hours           decimal.Decimal `json:"hours"`
	Notes           string          `json:"notes"`
	IsFinalized     bool            `json:"isFinalized"`
	PayrollRecordID string          `json:"payrollRecordId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Record is one paycheck. Wage and tax fields are frozen once IsFinalized is
// set; the store enforces that with a trigger.
type Record struct {
	ID             string    `json:"id"`
	EmployerID     string    `json:"employerId"`
	CaregiverID    string    `json:"caregiverId"`
	PayPeriodStart time.Time `json:"payPeriodStart"`
	PayPeriodEnd   time.Time `json:"payPeriodEnd"`

	RegularHours  decimal.Decimal `json:"regularHours"`
	WeekendHours  decimal.Decimal `json:"weekendHours"`
	HolidayHours  decimal.Decimal `json:"holidayHours"`
	OvertimeHours decimal.Decimal `json:"overtimeHours"`

	RegularWages  decimal.Decimal `json:"regularWages"`
	WeekendWages  decimal.Decimal `json:"weekendWages"`
	HolidayWages  decimal.Decimal `json:"holidayWages"`
	OvertimeWages decimal.Decimal `json:"overtimeWages"`
	GrossWages    decimal.Decimal `json:"grossWages"`

	EmployeeSocialSecurity  decimal.Decimal `json:"employeeSocialSecurity"`
	EmployeeMedicare        decimal.Decimal `json:"employeeMedicare"`
	EmployeeStatePayrollTax decimal.Decimal `json:"employeeStatePayrollTax"`
	FederalWithholding      decimal.Decimal `json:"federalWithholding"`
	StateWithholding        decimal.Decimal `json:"stateWithholding"`
	TotalEmployeeDeductions decimal.Decimal `json:"totalEmployeeDeductions"`

	EmployerSocialSecurity decimal.Decimal `json:"employerSocialSecurity"`
	EmployerMedicare       decimal.Decimal `json:"employerMedicare"`
	EmployerFUTA           decimal.Decimal `json:"employerFuta"`
	EmployerSUTA           decimal.Decimal `json:"employerSuta"`
	TotalEmployerTaxes     decimal.Decimal `json:"totalEmployerTaxes"`

	NetPay decimal.Decimal `json:"netPay"`

	CalculationVersion     string     `json:"calculationVersion"`
	TaxVersion             string     `json:"taxVersion"`
	IsMinimumWageCompliant bool       `json:"isMinimumWageCompliant"`
	Status                 string     `json:"status"`
	IsFinalized            bool       `json:"isFinalized"`
	IsVoided               bool       `json:"isVoided"`
	VoidReason             string     `json:"voidReason,omitempty"`
	VoidedAt               *time.Time `json:"voidedAt,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

// NetPayCents converts net pay to integer cents, rounding half away from zero.
func (r Record) NetPayCents() int64 {
	return r.NetPay.Round(2).Shift(2).IntPart()
}

func (r Record) TotalHours() decimal.Decimal {
	return r.RegularHours.Add(r.WeekendHours).Add(r.HolidayHours).Add(r.OvertimeHours)
}

// YTDAggregate sums prior finalized, non-voided records in a calendar year.
type YTDAggregate struct {
	CaregiverID             string          `json:"caregiverId"`
	Year                    int             `json:"year"`
	Records                 int             `json:"records"`
	GrossWages              decimal.Decimal `json:"grossWages"`
	EmployeeSocialSecurity  decimal.Decimal `json:"employeeSocialSecurity"`
	EmployeeMedicare        decimal.Decimal `json:"employeeMedicare"`
	EmployeeStatePayrollTax decimal.Decimal `json:"employeeStatePayrollTax"`
	FederalWithholding      decimal.Decimal `json:"federalWithholding"`
	StateWithholding        decimal.Decimal `json:"stateWithholding"`
	TotalEmployeeDeductions decimal.Decimal `json:"totalEmployeeDeductions"`
	TotalEmployerTaxes      decimal.Decimal `json:"totalEmployerTaxes"`
	NetPay                  decimal.Decimal `json:"netPay"`
}

func (a *YTDAggregate) add(r Record) {
	a.Records++
	a.GrossWages = a.GrossWages.Add(r.GrossWages)
	a.EmployeeSocialSecurity = a.EmployeeSocialSecurity.Add(r.EmployeeSocialSecurity)
	a.EmployeeMedicare = a.EmployeeMedicare.Add(r.EmployeeMedicare)
	a.EmployeeStatePayrollTax = a.EmployeeStatePayrollTax.Add(r.EmployeeStatePayrollTax)
	a.FederalWithholding = a.FederalWithholding.Add(r.FederalWithholding)
	a.StateWithholding = a.StateWithholding.Add(r.StateWithholding)
	a.TotalEmployeeDeductions = a.TotalEmployeeDeductions.Add(r.TotalEmployeeDeductions)
	a.TotalEmployerTaxes = a.TotalEmployerTaxes.Add(r.TotalEmployerTaxes)
	a.NetPay = a.NetPay.Add(r.NetPay)
}

type RecordFilter struct {
	EmployerID    string
	CaregiverID   string
	Year          int
	IncludeVoided bool
}
