package loader

import "time"

// Metrics receives loader instrumentation. metrics.Collector implements it.
type Metrics interface {
	ObserveAttempt(d time.Duration, err error)
	LoadFinished(resource, outcome string, d time.Duration)
	CacheLookup(hit bool)
	SetInFlight(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveAttempt(time.Duration, error)          {}
func (nopMetrics) LoadFinished(string, string, time.Duration) {}
func (nopMetrics) CacheLookup(bool)                             {}
func (nopMetrics) SetInFlight(int)                              {}
