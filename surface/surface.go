// Package surface is an in-memory render target. It records everything the
// loader writes so the pipeline can run without a UI runtime.
package surface

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Dispatched is a notification delivered to a target.
type Dispatched struct {
	Target string
	Event  string
	Detail map[string]string
	At     time.Time
}

type target struct {
	content  string
	resource string
	markers  map[string]bool
	history  []string
}

// Surface holds named targets. It is safe for concurrent use.
type Surface struct {
	mu       sync.RWMutex
	targets  map[string]*target
	events   []Dispatched
	onChange func(target, resource, content string)
}

// New returns a Surface with the given targets.
func New(targets ...string) *Surface {
	s := &Surface{targets: make(map[string]*target)}
	for _, t := range targets {
		s.AddTarget(t)
	}
	return s
}

// OnChange registers fn to observe every content swap.
func (s *Surface) OnChange(fn func(target, resource, content string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// AddTarget creates an empty target. Existing targets are left untouched.
func (s *Surface) AddTarget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[id]; !ok {
		s.targets[id] = &target{markers: make(map[string]bool)}
	}
}

// RemoveTarget deletes a target.
func (s *Surface) RemoveTarget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.targets, id)
}

func (s *Surface) HasTarget(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.targets[id]
	return ok
}

// NoTargetError is returned when writing to a target that was removed.
type NoTargetError string

func (e NoTargetError) Error() string { return "surface: no target " + string(e) }

func (s *Surface) ReplaceContent(_ context.Context, id, resource, content string) error {
	s.mu.Lock()
	t, ok := s.targets[id]
	if !ok {
		s.mu.Unlock()
		return NoTargetError(id)
	}
	t.content = content
	t.resource = resource
	t.history = append(t.history, resource)
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(id, resource, content)
	}
	return nil
}

func (s *Surface) SetMarker(id, marker string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return
	}
	if on {
		t.markers[marker] = true
	} else {
		delete(t.markers, marker)
	}
}

func (s *Surface) Dispatch(id, event string, detail map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Dispatched{Target: id, Event: event, Detail: detail, At: time.Now()})
}

// Content returns the current content of a target.
func (s *Surface) Content(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.targets[id]; ok {
		return t.content
	}
	return ""
}

// Resource returns the resource last written to a target.
func (s *Surface) Resource(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.targets[id]; ok {
		return t.resource
	}
	return ""
}

// History returns every resource written to a target, oldest first.
func (s *Surface) History(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.targets[id]; ok {
		return append([]string(nil), t.history...)
	}
	return nil
}

// Markers returns the markers currently set on a target, sorted.
func (s *Surface) Markers(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(t.markers))
	for m := range t.markers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Events returns the notifications dispatched so far.
func (s *Surface) Events() []Dispatched {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Dispatched(nil), s.events...)
}

// Targets returns the target ids, sorted.
func (s *Surface) Targets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.targets))
	for id := range s.targets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
