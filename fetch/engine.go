// Package fetch retrieves fragment content from an ordered list of candidate
// locations, retrying each one under a bounded Policy.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentuity/go-fragment/logger"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attempt describes one finished attempt against a candidate.
type Attempt struct {
	Location string
	Number   int
	Duration time.Duration
	Err      error
}

// Observer is notified after every attempt.
type Observer func(Attempt)

// Result is the outcome of a successful Fetch.
type Result struct {
	Content  string
	Location string
	Attempts int
	// Fallback is set when Content was synthesized instead of fetched.
	Fallback bool
	// Cause holds the exhaustion error behind a fallback.
	Cause error
}

// Engine runs the candidate and attempt loop. It never touches a cache or
// a render surface.
type Engine struct {
	source   Source
	policy   Policy
	log      logger.Logger
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the retry policy. Defaults to DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p.normalized() }
}

// WithLogger sets the logger used for attempt failures.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithObserver registers a callback invoked after every attempt.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// NewEngine returns an Engine reading from source.
func NewEngine(source Source, opts ...Option) *Engine {
	e := &Engine{
		source: source,
		policy: DefaultPolicy(),
		log:    logger.NewConsoleLogger(logger.LevelNone),
		sleep:  sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logger.WithComponent(e.log, "fetch")
	return e
}

// Policy returns the effective policy.
func (e *Engine) Policy() Policy { return e.policy }

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fetch tries every candidate in order, each up to Policy.MaxAttempts times,
// and returns the first non-empty successful response. A cancelled ctx stops
// the whole loop; an attempt timeout only fails that attempt. An empty
// candidate list is exhausted at once.
func (e *Engine) Fetch(ctx context.Context, candidates []string) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, &ExhaustedError{LastCause: ErrNoCandidates}
	}
	var (
		causes   *multierror.Error
		last     error
		attempts int
	)
	for _, location := range candidates {
		for n := 1; n <= e.policy.MaxAttempts; n++ {
			if err := ctx.Err(); err != nil {
				return Result{Attempts: attempts}, fmt.Errorf("fetch cancelled: %w", err)
			}
			attempts++
			content, err := e.attempt(ctx, location, n)
			if err == nil {
				return Result{Content: content, Location: location, Attempts: attempts}, nil
			}
			if ctx.Err() != nil {
				return Result{Attempts: attempts}, fmt.Errorf("fetch cancelled: %w", ctx.Err())
			}
			last = err
			causes = multierror.Append(causes, err)
			e.log.Debug("attempt %d/%d for %s failed: %s", n, e.policy.MaxAttempts, location, err)
			if n < e.policy.MaxAttempts {
				if err := e.sleep(ctx, e.policy.DelayAfter(n)); err != nil {
					return Result{Attempts: attempts}, fmt.Errorf("fetch cancelled: %w", err)
				}
			}
		}
		e.log.Debug("candidate %s exhausted", location)
	}
	return Result{Attempts: attempts}, &ExhaustedError{
		Candidates: append([]string(nil), candidates...),
		Attempts:   attempts,
		Causes:     causes,
		LastCause:  last,
	}
}

// FetchOrFallback behaves like Fetch, but when strict is false an exhausted
// candidate list yields the Fallback artifact for resource instead of an error.
func (e *Engine) FetchOrFallback(ctx context.Context, resource string, candidates []string, strict bool) (Result, error) {
	res, err := e.Fetch(ctx, candidates)
	if err == nil || strict || !errors.Is(err, ErrAllCandidatesExhausted) {
		return res, err
	}
	e.log.Warn("all candidates for %s failed, using fallback: %s", resource, err)
	return Result{
		Content:  Fallback(resource),
		Attempts: res.Attempts,
		Fallback: true,
		Cause:    err,
	}, nil
}

func (e *Engine) attempt(ctx context.Context, location string, n int) (string, error) {
	ctx, span := tracer.Start(ctx, "fetch.attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("fragment.location", location),
			attribute.Int("fragment.attempt", n),
		),
	)
	defer span.End()

	started := time.Now()
	content, err := e.do(ctx, location)
	if e.observer != nil {
		e.observer(Attempt{Location: location, Number: n, Duration: time.Since(started), Err: err})
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetStatus(codes.Ok, "fetched")
	return content, nil
}

type response struct {
	content string
	err     error
}

// call runs one Source.Fetch and gives up at ctx's deadline even when the
// source ignores ctx. An abandoned call finishes in the background.
func (e *Engine) call(ctx context.Context, location string) (string, error) {
	ch := make(chan response, 1)
	go func() {
		content, err := e.source.Fetch(ctx, location)
		ch <- response{content: content, err: err}
	}()
	select {
	case r := <-ch:
		return r.content, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *Engine) do(parent context.Context, location string) (string, error) {
	ctx := parent
	if e.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, e.policy.Timeout)
		defer cancel()
	}
	content, err := e.call(ctx, location)
	if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", &TimeoutError{URL: location, Timeout: e.policy.Timeout}
	}
	if err != nil {
		var netErr *NetworkError
		var timeoutErr *TimeoutError
		if errors.As(err, &netErr) || errors.As(err, &timeoutErr) {
			return "", err
		}
		return "", &NetworkError{URL: location, Err: err}
	}
	if strings.TrimSpace(content) == "" {
		return "", &NetworkError{URL: location, Err: ErrEmptyContent}
	}
	return content, nil
}
