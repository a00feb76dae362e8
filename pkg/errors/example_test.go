// Package errors provides examples of structured error handling in slotpool.
package errors_test

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/ajitpratap0/slotpool/pkg/errors"
)

// Example demonstrates basic error creation and details.
func Example() {
	err := errors.New(errors.ErrorTypeCapacity, "no free slot").
		WithDetail("pool", "materials").
		WithDetail("capacity", 64)

	fmt.Println(err.Error())
	capacity, _ := err.Detail("capacity")
	fmt.Println(capacity)

	// Output:
	// capacity: no free slot
	// 64
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeFile, "failed to read config").
		WithDetail("file", "slotpool.yaml")

	fmt.Println(errors.IsType(err, errors.ErrorTypeFile))
	fmt.Println(stderrors.Is(err, io.ErrUnexpectedEOF))

	// Output:
	// true
	// true
}

// ExampleDefine shows package-level sentinels matched through a wrap chain.
func ExampleDefine() {
	errBusy := errors.Define(errors.ErrorTypeState, "pool busy")

	err := errors.Wrap(errBusy, errors.ErrorTypeState, "term").
		WithDetail("pool", "widgets")

	fmt.Println(err)
	fmt.Println(errors.Is(err, errBusy))
	pool, _ := err.Detail("pool")
	fmt.Println(pool)

	// Output:
	// state: term: state: pool busy
	// true
	// widgets
}

// ExampleErrorType demonstrates using different error types.
func ExampleErrorType() {
	for _, err := range []error{
		errors.New(errors.ErrorTypeOwnership, "foreign pointer"),
		errors.Newf(errors.ErrorTypeValidation, "capacity %d out of range", 0),
	} {
		fmt.Println(err)
	}

	// Output:
	// ownership: foreign pointer
	// validation: capacity 0 out of range
}
