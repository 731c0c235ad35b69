// Package activate runs the scripts embedded in injected content and the
// per-resource initializer, isolating every failure.
package activate

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/agentuity/go-fragment/logger"
	"golang.org/x/sync/singleflight"
)

// EventReady is dispatched on the target once activation finished.
const EventReady = "ready"

// Notifier delivers target scoped notifications.
type Notifier interface {
	Dispatch(target, event string, detail map[string]string)
}

// ScriptError records a script or initializer failure. It is logged and
// reported, never returned.
type ScriptError struct {
	Resource string
	Script   string
	Err      error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("activate %s: script %s: %s", e.Resource, e.Script, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// Report summarizes one activation.
type Report struct {
	Target   string
	Resource string
	// Executed counts scripts that ran, Skipped external scripts already loaded.
	Executed int
	Skipped  int
	// Initializer is the initializer name that was invoked, if any.
	Initializer string
	Failures    []*ScriptError
}

// Activator runs scripts through a Runtime. External scripts are loaded at
// most once per Activator.
type Activator struct {
	runtime  Runtime
	registry *Registry
	notifier Notifier
	log      logger.Logger

	group  singleflight.Group
	mu     sync.Mutex
	loaded map[string]struct{}
}

// New returns an Activator. A nil runtime uses NopRuntime; registry and
// notifier may be nil.
func New(runtime Runtime, registry *Registry, notifier Notifier, log logger.Logger) *Activator {
	if runtime == nil {
		runtime = NopRuntime{}
	}
	return &Activator{
		runtime:  runtime,
		registry: registry,
		notifier: notifier,
		log:      logger.WithComponent(log, "activate"),
		loaded:   make(map[string]struct{}),
	}
}

// ScriptKey normalizes an external script reference so that spellings of
// the same script share one key: "a.js", "./a.js" and "/a.js" all become
// "/a.js". Absolute URLs keep their scheme and host.
func ScriptKey(src string) string {
	src = strings.TrimSpace(src)
	u, err := url.Parse(src)
	if err != nil {
		return path.Clean("/" + src)
	}
	u.Path = path.Clean("/" + u.Path)
	u.Fragment = ""
	if u.Host == "" {
		u.Scheme = ""
	}
	return u.String()
}

// Loaded reports whether the external script src was loaded.
func (a *Activator) Loaded(src string) bool {
	return a.loadedKey(ScriptKey(src))
}

func (a *Activator) loadedKey(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.loaded[key]
	return ok
}

// Activate processes the scripts found in content, then the initializer for
// resource, then dispatches EventReady on target. It never fails.
func (a *Activator) Activate(ctx context.Context, target, resource, content string) Report {
	report := Report{Target: target, Resource: resource}
	for _, script := range Discover(content) {
		var (
			skipped bool
			err     error
		)
		if script.External() {
			skipped, err = a.loadOnce(ctx, script.Src)
		} else {
			err = guard(func() error { return a.runtime.RunInline(ctx, target, script.Inline) })
		}
		switch {
		case err != nil:
			serr := &ScriptError{Resource: resource, Script: script.Name(), Err: err}
			report.Failures = append(report.Failures, serr)
			a.log.Warn("%s", serr)
		case skipped:
			report.Skipped++
		default:
			report.Executed++
		}
	}

	if fn, ok := a.registry.Lookup(resource); ok {
		report.Initializer = InitializerName(resource)
		if err := guard(func() error { return fn(ctx, target) }); err != nil {
			serr := &ScriptError{Resource: resource, Script: report.Initializer, Err: err}
			report.Failures = append(report.Failures, serr)
			a.log.Warn("%s", serr)
		}
	}

	if a.notifier != nil {
		a.notifier.Dispatch(target, EventReady, map[string]string{"resource": resource})
	}
	return report
}

// loadOnce loads src unless it was loaded before. Concurrent loads of the
// same src share one call; only the caller that ran it counts as executed.
func (a *Activator) loadOnce(ctx context.Context, src string) (skipped bool, err error) {
	key := ScriptKey(src)
	if a.loadedKey(key) {
		return true, nil
	}
	ran := false
	_, err, _ = a.group.Do(key, func() (interface{}, error) {
		if a.loadedKey(key) {
			return nil, nil
		}
		ran = true
		if err := guard(func() error { return a.runtime.LoadExternal(context.WithoutCancel(ctx), src) }); err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.loaded[key] = struct{}{}
		a.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return false, err
	}
	return !ran, nil
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
