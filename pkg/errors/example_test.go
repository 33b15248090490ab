// Package errors provides examples of structured error handling.
package errors_test

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/ajitpratap0/recycler/pkg/errors"
)

// Example demonstrates basic error creation with details.
func Example() {
	err := errors.New(errors.ErrorTypeRecycleViolation, "recycled already").
		WithDetail("handle", 42).
		WithDetail("worker", 7)

	fmt.Println(err.Error())

	// Output:
	// recycle_violation: recycled already
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.EOF, errors.ErrorTypeFile, "failed to read config file").
		WithDetail("file", "recycler.yaml")

	if errors.IsType(err, errors.ErrorTypeFile) {
		fmt.Println("This is a file error")
	}
	if stderrors.Is(err, io.EOF) {
		fmt.Println("Original error was EOF")
	}

	// Output:
	// This is a file error
	// Original error was EOF
}

// ExampleSentinel shows matching an error category with the standard errors.Is.
func ExampleSentinel() {
	errViolation := errors.Sentinel(errors.ErrorTypeRecycleViolation)

	err := errors.New(errors.ErrorTypeRecycleViolation, "recycled already")
	fmt.Println(stderrors.Is(err, errViolation))

	other := errors.New(errors.ErrorTypeOwnership, "handle belongs to another recycler")
	fmt.Println(stderrors.Is(other, errViolation))

	// Output:
	// true
	// false
}
