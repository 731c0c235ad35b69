package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every operation once Close was called.
	ErrClosed = errors.New("loader: closed")
	// ErrNoSource is returned by New when no fetch source is configured.
	ErrNoSource = errors.New("loader: no source configured")
	// ErrEmptyResource is returned for an empty resource id.
	ErrEmptyResource = errors.New("loader: empty resource id")
)

// LoadError is the terminal failure of one Load.
type LoadError struct {
	Key                 ResourceKey
	AttemptsMade        int
	LastCause           error
	ExhaustedCandidates []string
	Err                 error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s", e.Key, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
