// Package inject swaps fetched content into a render target, optionally
// sequencing an exit and enter transition around the swap.
package inject

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentuity/go-fragment/logger"
)

// ErrContainerNotFound is returned when the target does not exist. It is
// never retried.
var ErrContainerNotFound = errors.New("container not found")

// ErrSuperseded is returned when Options.Current reports that a newer load
// owns the target. Nothing is written.
var ErrSuperseded = errors.New("injection superseded")

// ContainerError names the missing target.
type ContainerError struct {
	Target string
}

func (e *ContainerError) Error() string {
	return fmt.Sprintf("inject: container %q not found", e.Target)
}

func (e *ContainerError) Unwrap() error { return ErrContainerNotFound }

// Transition markers set on a target while content is swapped.
const (
	MarkerLoading  = "loading"
	MarkerExiting  = "exiting"
	MarkerEntering = "entering"
)

// Renderer is the surface content is written to.
type Renderer interface {
	// HasTarget reports whether target exists.
	HasTarget(target string) bool
	// ReplaceContent replaces everything inside target with content.
	ReplaceContent(ctx context.Context, target, resource, content string) error
	// SetMarker toggles a transition or loading marker on target.
	SetMarker(target, marker string, on bool)
}

// Transition configures exit/enter sequencing.
type Transition struct {
	Enabled bool
	Exit    time.Duration
	Enter   time.Duration
}

// DefaultTransition is enabled with 150ms on each side of the swap.
func DefaultTransition() Transition {
	return Transition{Enabled: true, Exit: 150 * time.Millisecond, Enter: 150 * time.Millisecond}
}

// Options tune a single injection.
type Options struct {
	// Transform rewrites content before it is written.
	Transform func(content string) string
	// SkipTransition swaps content immediately.
	SkipTransition bool
	// Current is consulted while the target is held. When it returns false
	// the injection is abandoned with ErrSuperseded.
	Current func() bool
}

// Injector writes content into targets, one injection per target at a time.
type Injector struct {
	renderer   Renderer
	transition Transition
	log        logger.Logger
	sleep      func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns an Injector writing to renderer.
func New(renderer Renderer, transition Transition, log logger.Logger) *Injector {
	return &Injector{
		renderer:   renderer,
		transition: transition,
		log:        logger.WithComponent(log, "inject"),
		sleep:      wait,
		locks:      make(map[string]*sync.Mutex),
	}
}

func wait(ctx context.Context, d time.Duration) error {
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

func (i *Injector) lock(target string) *sync.Mutex {
	i.mu.Lock()
	defer i.mu.Unlock()
	l, ok := i.locks[target]
	if !ok {
		l = &sync.Mutex{}
		i.locks[target] = l
	}
	return l
}

// Check returns a ContainerError if target does not exist.
func (i *Injector) Check(target string) error {
	if !i.renderer.HasTarget(target) {
		return &ContainerError{Target: target}
	}
	return nil
}

// Inject writes content for resource into target and returns what was
// written. A cancelled ctx during the exit wait aborts before the swap;
// once swapped the injection always completes.
func (i *Injector) Inject(ctx context.Context, target, resource, content string, opts Options) (string, error) {
	if err := i.Check(target); err != nil {
		return "", err
	}
	if opts.Transform != nil {
		content = opts.Transform(content)
	}

	l := i.lock(target)
	l.Lock()
	defer l.Unlock()

	if opts.Current != nil && !opts.Current() {
		i.log.Debug("skipping stale injection of %s into %s", resource, target)
		return "", ErrSuperseded
	}

	if !i.transition.Enabled || opts.SkipTransition {
		if err := i.renderer.ReplaceContent(ctx, target, resource, content); err != nil {
			return "", fmt.Errorf("inject %s into %s: %w", resource, target, err)
		}
		return content, nil
	}

	i.renderer.SetMarker(target, MarkerExiting, true)
	if err := i.sleep(ctx, i.transition.Exit); err != nil {
		i.renderer.SetMarker(target, MarkerExiting, false)
		return "", err
	}
	if err := i.renderer.ReplaceContent(ctx, target, resource, content); err != nil {
		i.renderer.SetMarker(target, MarkerExiting, false)
		return "", fmt.Errorf("inject %s into %s: %w", resource, target, err)
	}
	i.renderer.SetMarker(target, MarkerExiting, false)
	i.renderer.SetMarker(target, MarkerEntering, true)
	if err := i.sleep(ctx, i.transition.Enter); err != nil {
		i.log.Debug("enter transition on %s cut short: %s", target, err)
	}
	i.renderer.SetMarker(target, MarkerEntering, false)
	return content, nil
}
