package payroll

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInsufficientData    = errors.New("insufficient payroll data")
	ErrRecordNotFound      = errors.New("payroll record not found")
	ErrRecordExists        = errors.New("payroll record already exists for period")
	ErrRecordVoided        = errors.New("payroll record is voided")
	ErrInvalidState        = errors.New("payroll record is not in a valid state for this action")
	ErrInvalidPeriod       = errors.New("invalid pay period")
	ErrInvalidTimeEntry    = errors.New("invalid time entry")
	ErrPeriodClosed        = errors.New("pay period already has a payroll record")
	ErrCaregiverInactive   = errors.New("caregiver is inactive")
	ErrEntriesChanged      = errors.New("time entries changed during payroll run")
	ErrPaymentsOutstanding = errors.New("payroll record has payments that have not failed")
)

// InsufficientDataError names the caregiver and period that had nothing to pay.
type InsufficientDataError struct {
	CaregiverID string
	Start       time.Time
	End         time.Time
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("no unfinalized time entries for caregiver %s between %s and %s",
		e.CaregiverID, e.Start.Format(dateLayout), e.End.Format(dateLayout))
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}
