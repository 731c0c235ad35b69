package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrAllCandidatesExhausted is matched by every ExhaustedError.
	ErrAllCandidatesExhausted = errors.New("fetch: all candidates exhausted")
	// ErrNoCandidates is the cause of the ExhaustedError returned for an
	// empty candidate list.
	ErrNoCandidates = errors.New("fetch: no candidates")
	// ErrEmptyContent marks a successful response without a body.
	ErrEmptyContent = errors.New("empty content")
)

// NetworkError is a transport failure or a non-success response.
type NetworkError struct {
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Err)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError is returned when a single attempt exceeds the policy timeout.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fetch %s: timed out after %s", e.URL, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// ExhaustedError is returned when every attempt on every candidate failed.
type ExhaustedError struct {
	Candidates []string
	Attempts   int
	Causes     *multierror.Error
	LastCause  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fetch: all %d candidates exhausted after %d attempts: %s", len(e.Candidates), e.Attempts, e.LastCause)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrAllCandidatesExhausted }

func (e *ExhaustedError) Unwrap() error { return e.LastCause }
