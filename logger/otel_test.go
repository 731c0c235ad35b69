package logger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

type memoryExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *memoryExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *memoryExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryExporter) ForceFlush(context.Context) error { return nil }

func newOtelTestLogger(level LogLevel) (Logger, *memoryExporter) {
	exp := &memoryExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	return NewOtelLogger(provider.Logger("test"), level), exp
}

func TestOtelLoggerEmits(t *testing.T) {
	base, exp := newOtelTestLogger(LevelInfo)
	l := base.WithPrefix("[loader]").With(map[string]interface{}{"component": "loader", "attempt": 2})
	l.Debug("hidden")
	l.Warn("failed %s", "dashboard")

	require.Len(t, exp.records, 1)
	r := exp.records[0]
	assert.Equal(t, "[loader] failed dashboard", r.Body().AsString())
	assert.Equal(t, log.SeverityWarn, r.Severity())
	attrs := map[string]string{}
	r.WalkAttributes(func(kv log.KeyValue) bool {
		attrs[kv.Key] = kv.Value.String()
		return true
	})
	assert.Equal(t, "loader", attrs["component"])
	assert.Equal(t, "2", attrs["attempt"])
}

func TestOtelLoggerStack(t *testing.T) {
	otel, exp := newOtelTestLogger(LevelTrace)
	tl := NewTestLogger()
	l := otel.Stack(tl)
	l.Info("both")

	assert.Len(t, exp.records, 1)
	assert.Equal(t, 1, tl.Count("INFO", "both"))
	assert.True(t, l.IsLevelEnabled(LevelTrace))
}
