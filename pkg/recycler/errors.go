package recycler

import (
	"github.com/ajitpratap0/recycler/pkg/errors"
)

var (
	// ErrRecycledAlready matches every error returned when a handle is
	// recycled while it is already pooled.
	ErrRecycledAlready = errors.Sentinel(errors.ErrorTypeRecycleViolation)

	// ErrForeignHandle matches every error returned when a handle or object
	// is presented to a recycler that does not own it.
	ErrForeignHandle = errors.Sentinel(errors.ErrorTypeOwnership)

	// ErrInvalidArgument matches errors for nil handles and nil workers.
	ErrInvalidArgument = errors.Sentinel(errors.ErrorTypeValidation)

	// ErrInvalidConfig matches errors returned by New for bad options.
	ErrInvalidConfig = errors.Sentinel(errors.ErrorTypeConfig)
)
