package entity

import (
	"errors"
	"fmt"
)

var (
	// Upload errors
	ErrNoImageProvided  = errors.New("no image file provided")
	ErrEmptyImage       = errors.New("empty image payload")
	ErrInvalidImageType = errors.New("invalid image type, supported: jpg, jpeg, png, gif")
	ErrImageTooLarge    = errors.New("image exceeds maximum allowed size")

	// Operation validation errors
	ErrUnknownOperation  = errors.New("unknown operation")
	ErrNoOperations      = errors.New("no operations requested")
	ErrInvalidAngle      = errors.New("rotate angle must be one of 90, 180, 270")
	ErrInvalidResizeMode = errors.New("resize type must be maintain_aspect_ratio or free")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized access")

	// Storage / ledger errors
	ErrImageNotFound   = errors.New("image not found")
	ErrVersionNotFound = errors.New("processed version not found")

	// URL fetch errors
	ErrInvalidImageURL = errors.New("invalid image URL")
	ErrURLFetchFailed  = errors.New("could not download image from URL")
)

// ParamRangeError reports a transformation parameter outside its declared range.
type ParamRangeError struct {
	Operation string
	Param     string
	Value     int
	Min       int
	Max       int
}

func (e *ParamRangeError) Error() string {
	return fmt.Sprintf("%s: parameter %q = %d out of range [%d, %d]",
		e.Operation, e.Param, e.Value, e.Min, e.Max)
}

// TransformError reports which operation broke the pipeline and why.
type TransformError struct {
	Operation string
	Reason    string
	Err       error
}

func (e *TransformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transform %q failed: %s: %v", e.Operation, e.Reason, e.Err)
	}
	return fmt.Sprintf("transform %q failed: %s", e.Operation, e.Reason)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}
