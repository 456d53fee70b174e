package domain

import (
	"errors"
	"fmt"
)

// Error kinds returned by every generation entry point.
var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrAllocationFailure = errors.New("allocation failure")
	ErrGenerationFailure = errors.New("generation failure")
)

// ParamError reports a rejected generation parameter.
type ParamError struct {
	Name   string
	Value  any
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Name, e.Value, e.Reason)
}

func (e *ParamError) Unwrap() error { return ErrInvalidParameter }

// InvalidParam builds a *ParamError.
func InvalidParam(name string, value any, reason string) error {
	return &ParamError{Name: name, Value: value, Reason: reason}
}
