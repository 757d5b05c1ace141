package tax

import (
	"errors"
	"fmt"
)

var (
	ErrNoConfiguration      = errors.New("no tax configuration")
	ErrInvalidConfiguration = errors.New("invalid tax configuration")
)

// NoConfigurationError names the year the caller has to configure.
type NoConfigurationError struct {
	Year int
}

func (e *NoConfigurationError) Error() string {
	return fmt.Sprintf("no tax configuration for year %d", e.Year)
}

func (e *NoConfigurationError) Is(target error) bool {
	return target == ErrNoConfiguration
}
