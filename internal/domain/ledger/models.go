package ledger

import "time"

const (
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusFailed   = "failed"
	StatusReversed = "reversed"

	DefaultCurrency = "USD"
)

var transitions = map[string][]string{
	StatusPending: {StatusPaid, StatusFailed},
	StatusPaid:    {StatusReversed},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusPaid, StatusFailed, StatusReversed:
		return true
	default:
		return false
	}
}

// Transaction is one payment ledger row. Amounts are integer cents.
type Transaction struct {
	ID                       string    `json:"id"`
	IdempotencyKey           string    `json:"idempotencyKey"`
	EmployerID               string    `json:"employerId"`
	CaregiverID              string    `json:"caregiverId,omitempty"`
	PayrollRecordID          string    `json:"payrollRecordId,omitempty"`
	AmountCents              int64     `json:"amountCents"`
	Currency                 string    `json:"currency"`
	Status                   string    `json:"status"`
	SourceAccountMasked      string    `json:"sourceAccountMasked"`
	DestinationAccountMasked string    `json:"destinationAccountMasked"`
	ExternalReference        string    `json:"externalReference,omitempty"`
	TaxLogicVersion          string    `json:"taxLogicVersion,omitempty"`
	CreatedAt                time.Time `json:"createdAt"`
	UpdatedAt                time.Time `json:"updatedAt"`
}

// CreateRequest carries full account numbers; only masked forms are stored.
type CreateRequest struct {
	IdempotencyKey     string
	EmployerID         string
	CaregiverID        string
	PayrollRecordID    string
	AmountCents        int64
	Currency           string
	SourceAccount      string
	DestinationAccount string
	TaxLogicVersion    string
}
