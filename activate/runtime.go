package activate

import (
	"context"
	"fmt"

	"github.com/agentuity/go-fragment/fetch"
)

// Runtime executes scripts on behalf of the Activator.
type Runtime interface {
	// LoadExternal loads the script referenced by src and waits for it.
	LoadExternal(ctx context.Context, src string) error
	// RunInline runs code in the scope of target.
	RunInline(ctx context.Context, target, code string) error
}

// NopRuntime accepts every script without running it.
type NopRuntime struct{}

func (NopRuntime) LoadExternal(context.Context, string) error    { return nil }
func (NopRuntime) RunInline(context.Context, string, string) error { return nil }

// Executor runs script source.
type Executor func(ctx context.Context, target, name, code string) error

// SourceRuntime retrieves external scripts through a fetch.Source and hands
// every script body to Exec. A nil Exec only checks that external scripts
// can be retrieved.
type SourceRuntime struct {
	Source fetch.Source
	Exec   Executor
}

var _ Runtime = (*SourceRuntime)(nil)

func (r *SourceRuntime) LoadExternal(ctx context.Context, src string) error {
	code, err := r.Source.Fetch(ctx, src)
	if err != nil {
		return fmt.Errorf("load script %s: %w", src, err)
	}
	if r.Exec == nil {
		return nil
	}
	return r.Exec(ctx, "", src, code)
}

func (r *SourceRuntime) RunInline(ctx context.Context, target, code string) error {
	if r.Exec == nil {
		return nil
	}
	return r.Exec(ctx, target, "inline", code)
}
