package loader

import (
	"time"

	"github.com/agentuity/go-fragment/activate"
)

// ResourceKey identifies a load: the resource and the target it goes to.
type ResourceKey struct {
	Resource string
	Target   string
}

func (k ResourceKey) String() string {
	if k.Target == "" {
		return k.Resource
	}
	return k.Resource + "#" + k.Target
}

// Result is returned by a successful Load.
type Result struct {
	Key        ResourceKey
	Content    string
	Source     string
	Timestamp  time.Time
	Metadata   map[string]string
	Cached     bool
	Fallback   bool
	Attempts   int
	Scripts    activate.Report
	// Superseded is set when an invalidation retired the load before it
	// reached its target. The content was not injected.
	Superseded bool
}

// Entry describes one load for LoadMany.
type Entry struct {
	Resource string
	Target   string
	Options  []LoadOption
}

// Failure pairs an Entry with the error it failed with.
type Failure struct {
	Entry Entry
	Err   error
}

// ManyResult partitions the outcome of LoadMany. Both slices keep the input order.
type ManyResult struct {
	Successful []Result
	Failed     []Failure
}

// Stats is a snapshot of the loader state.
type Stats struct {
	CacheSize       int
	InFlightCount   int
	FetchesInFlight int
	CachedKeys      []string
	InFlightKeys    []string
	Hits            uint64
	Misses          uint64
	// Current and Previous map a target to its current and previous resource.
	Current  map[string]string
	Previous map[string]string
}
