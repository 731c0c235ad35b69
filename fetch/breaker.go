package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/agentuity/go-fragment/logger"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is wrapped by the NetworkError returned while a host's
// breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit open")

// BreakerSettings configures BreakerSource.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures that opens a breaker.
	MaxFailures uint32
	// Cooldown is how long a breaker stays open before letting a trial request through.
	Cooldown time.Duration
	// HalfOpenRequests is how many trial requests are allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerSettings returns 5 failures, a 30 second cooldown and one trial request.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{MaxFailures: 5, Cooldown: 30 * time.Second, HalfOpenRequests: 1}
}

// BreakerSource guards a Source with one circuit breaker per host. While the
// breaker for a host is open, attempts against it fail without a request.
// Client errors such as 404 do not count as failures: a missing candidate
// says nothing about the health of the host.
type BreakerSource struct {
	next     Source
	settings BreakerSettings
	log      logger.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

var _ Source = (*BreakerSource)(nil)

// NewBreakerSource wraps next. Zero fields of settings take their defaults.
func NewBreakerSource(next Source, settings BreakerSettings, log logger.Logger) *BreakerSource {
	def := DefaultBreakerSettings()
	if settings.MaxFailures == 0 {
		settings.MaxFailures = def.MaxFailures
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = def.Cooldown
	}
	if settings.HalfOpenRequests == 0 {
		settings.HalfOpenRequests = def.HalfOpenRequests
	}
	return &BreakerSource{
		next:     next,
		settings: settings,
		log:      logger.WithComponent(log, "breaker"),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func hostOf(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return u.Host
}

func healthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var nerr *NetworkError
	if errors.As(err, &nerr) && nerr.Status >= http.StatusBadRequest && nerr.Status < http.StatusInternalServerError {
		return true
	}
	return false
}

func (b *BreakerSource) breaker(host string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[host]; ok {
		return cb
	}
	limit := b.settings.MaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: b.settings.HalfOpenRequests,
		Timeout:     b.settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= limit
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warn("circuit breaker for %q changed from %s to %s", name, from, to)
		},
		IsSuccessful: healthy,
	})
	b.breakers[host] = cb
	return cb
}

// State returns the breaker state for the host of location.
func (b *BreakerSource) State(location string) gobreaker.State {
	return b.breaker(hostOf(location)).State()
}

func (b *BreakerSource) Fetch(ctx context.Context, location string) (string, error) {
	out, err := b.breaker(hostOf(location)).Execute(func() (interface{}, error) {
		return b.next.Fetch(ctx, location)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", &NetworkError{URL: location, Err: fmt.Errorf("%w: %w", ErrCircuitOpen, err)}
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
