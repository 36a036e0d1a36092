package rangehttp

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPlan        = errors.New("invalid chunk plan")
	ErrInvalidJob         = errors.New("invalid fetch job")
	ErrUnknownLength      = errors.New("origin did not report a content length")
	ErrNonPartialResponse = errors.New("range request not answered with partial content")
	ErrLengthMismatch     = errors.New("content length mismatch")
	ErrTransport          = errors.New("transport failure")
	ErrDispatch           = errors.New("could not start range worker")
)

type InvalidPlanError struct {
	ContentLength int64
	Workers       int
}

func (e *InvalidPlanError) Error() string {
	return fmt.Sprintf("%v: content length %d over %d workers", ErrInvalidPlan, e.ContentLength, e.Workers)
}

func (e *InvalidPlanError) Unwrap() error {
	return ErrInvalidPlan
}

type InvalidJobError struct {
	Detail string
}

func (e *InvalidJobError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidJob, e.Detail)
}

func (e *InvalidJobError) Unwrap() error {
	return ErrInvalidJob
}

type UnknownLengthError struct {
	URL        string
	StatusCode int
}

func (e *UnknownLengthError) Error() string {
	return fmt.Sprintf("%v: %s (status %d)", ErrUnknownLength, e.URL, e.StatusCode)
}

func (e *UnknownLengthError) Unwrap() error {
	return ErrUnknownLength
}

type NonPartialResponseError struct {
	Index      int
	StatusCode int
}

func (e *NonPartialResponseError) Error() string {
	return fmt.Sprintf("%v: worker %d got status %d", ErrNonPartialResponse, e.Index, e.StatusCode)
}

func (e *NonPartialResponseError) Unwrap() error {
	return ErrNonPartialResponse
}

// LengthMismatchWarning is recoverable unless the job asks for strict lengths.
type LengthMismatchWarning struct {
	Index    int
	Expected int64
	Reported int64
}

func (e *LengthMismatchWarning) Error() string {
	return fmt.Sprintf("%v: worker %d expected %d bytes, origin reported %d", ErrLengthMismatch, e.Index, e.Expected, e.Reported)
}

func (e *LengthMismatchWarning) Unwrap() error {
	return ErrLengthMismatch
}

type TransportError struct {
	Index int
	Op    string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v: worker %d %s: %v", ErrTransport, e.Index, e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}
