package tax

import (
	"time"

	"github.com/shopspring/decimal"
)

// Configuration is the statutory rate table for one tax year. A zero wage
// base means the tax is uncapped.
type Configuration struct {
	ID                         string          `json:"id"`
	TaxYear                    int             `json:"taxYear"`
	SocialSecurityEmployeeRate decimal.Decimal `json:"socialSecurityEmployeeRate"`
	SocialSecurityEmployerRate decimal.Decimal `json:"socialSecurityEmployerRate"`
	SocialSecurityWageBase     decimal.Decimal `json:"socialSecurityWageBase"`
	MedicareEmployeeRate       decimal.Decimal `json:"medicareEmployeeRate"`
	MedicareEmployerRate       decimal.Decimal `json:"medicareEmployerRate"`
	MedicareWageBase           decimal.Decimal `json:"medicareWageBase"`
	FUTARate                   decimal.Decimal `json:"futaRate"`
	FUTAWageBase               decimal.Decimal `json:"futaWageBase"`
	StateCode                  string          `json:"stateCode"`
	SUIRate                    decimal.Decimal `json:"suiRate"`
	SUIWageBase                decimal.Decimal `json:"suiWageBase"`
	StatePaidLeaveRate         decimal.Decimal `json:"statePaidLeaveRate"`
	StatePaidLeaveWageBase     decimal.Decimal `json:"statePaidLeaveWageBase"`
	FederalWithholdingRate     decimal.Decimal `json:"federalWithholdingRate"`
	StateWithholdingRate       decimal.Decimal `json:"stateWithholdingRate"`
	StandardDeductionSingle    decimal.Decimal `json:"standardDeductionSingle"`
	StandardDeductionMarried   decimal.Decimal `json:"standardDeductionMarried"`
	MinimumWage                decimal.Decimal `json:"minimumWage"`
	EffectiveDate              time.Time       `json:"effectiveDate"`
	Version                    string          `json:"version"`
	IsDefault                  bool            `json:"isDefault"`
	CreatedAt                  time.Time       `json:"createdAt"`
	UpdatedAt                  time.Time       `json:"updatedAt"`
}

// StandardDeduction returns the annual deduction for a W-4 filing status.
func (c Configuration) StandardDeduction(filingStatus string) decimal.Decimal {
	switch filingStatus {
	case "married_joint", "married":
		return c.StandardDeductionMarried
	default:
		return c.StandardDeductionSingle
	}
}
