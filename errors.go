package relgen

import (
	"errors"

	"github.com/mmrzaf/relgen/internal/domain"
)

// Every Create function returns an error wrapping one of these.
var (
	ErrInvalidParameter  = domain.ErrInvalidParameter
	ErrAllocationFailure = domain.ErrAllocationFailure
	ErrGenerationFailure = domain.ErrGenerationFailure
)

// ErrClosed is returned when a closed Relation is used.
var ErrClosed = errors.New("relgen: relation is closed")

// ParamError names the rejected parameter of an ErrInvalidParameter.
type ParamError = domain.ParamError
