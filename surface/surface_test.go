package surface

import (
	"context"
	"testing"

	"github.com/agentuity/go-fragment/activate"
	"github.com/agentuity/go-fragment/inject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ inject.Renderer   = (*Surface)(nil)
	_ activate.Notifier = (*Surface)(nil)
)

func TestSurfaceContent(t *testing.T) {
	s := New("main", "header")
	assert.True(t, s.HasTarget("main"))
	assert.False(t, s.HasTarget("nope"))
	assert.Equal(t, []string{"header", "main"}, s.Targets())

	var changed []string
	s.OnChange(func(target, resource, _ string) { changed = append(changed, target+"="+resource) })

	require.NoError(t, s.ReplaceContent(context.Background(), "main", "dashboard", "<div>D</div>"))
	require.NoError(t, s.ReplaceContent(context.Background(), "main", "settings", "<div>S</div>"))
	assert.Equal(t, "<div>S</div>", s.Content("main"))
	assert.Equal(t, "settings", s.Resource("main"))
	assert.Equal(t, []string{"dashboard", "settings"}, s.History("main"))
	assert.Equal(t, []string{"main=dashboard", "main=settings"}, changed)

	s.RemoveTarget("main")
	err := s.ReplaceContent(context.Background(), "main", "x", "y")
	assert.EqualError(t, err, "surface: no target main")
	assert.Empty(t, s.Content("main"))
}

func TestSurfaceMarkersAndEvents(t *testing.T) {
	s := New("main")
	s.SetMarker("main", "loading", true)
	s.SetMarker("main", "exiting", true)
	assert.Equal(t, []string{"exiting", "loading"}, s.Markers("main"))
	s.SetMarker("main", "loading", false)
	assert.Equal(t, []string{"exiting"}, s.Markers("main"))
	s.SetMarker("missing", "loading", true)
	assert.Nil(t, s.Markers("missing"))

	s.Dispatch("main", "ready", map[string]string{"resource": "page"})
	events := s.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "ready", events[0].Event)
	assert.Equal(t, "page", events[0].Detail["resource"])
}
