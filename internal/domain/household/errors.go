package household

import "errors"

var (
	ErrEmployerNotFound  = errors.New("employer not found")
	ErrCaregiverNotFound = errors.New("caregiver not found")
	ErrNoActiveEmployer  = errors.New("no active employer")
	ErrInvalidInput      = errors.New("invalid household data")
)
