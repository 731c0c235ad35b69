package activate

import (
	"context"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Initializer runs once a resource's content and scripts are in place.
type Initializer func(ctx context.Context, target string) error

// InitializerName derives the initializer name for a resource id: "init",
// the PascalCase id split on '-', '_', '/' and '.', then "Page".
// "user-settings" becomes "initUserSettingsPage".
func InitializerName(resourceID string) string {
	parts := strings.FieldsFunc(resourceID, func(r rune) bool {
		return r == '-' || r == '_' || r == '/' || r == '.' || unicode.IsSpace(r)
	})
	var b strings.Builder
	b.WriteString("init")
	for _, p := range parts {
		r, size := utf8.DecodeRuneInString(p)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(p[size:])
	}
	b.WriteString("Page")
	return b.String()
}

// Registry maps initializer names to Initializers. Modules populate it at
// startup instead of exposing globals.
type Registry struct {
	mu           sync.RWMutex
	initializers map[string]Initializer
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{initializers: make(map[string]Initializer)}
}

// Register installs fn for resourceID, replacing any previous initializer.
func (r *Registry) Register(resourceID string, fn Initializer) {
	r.RegisterName(InitializerName(resourceID), fn)
}

// RegisterName installs fn under an explicit initializer name.
func (r *Registry) RegisterName(name string, fn Initializer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initializers[name] = fn
}

// Lookup returns the initializer for resourceID.
func (r *Registry) Lookup(resourceID string) (Initializer, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.initializers[InitializerName(resourceID)]
	return fn, ok
}

// Names returns the registered initializer names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.initializers))
	for n := range r.initializers {
		names = append(names, n)
	}
	return names
}
