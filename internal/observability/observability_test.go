package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-radar/internal/config"
	"github.com/couchcryptid/storm-data-radar/internal/radar"
)

var _ radar.Recorder = (*Metrics)(nil)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if c := out.GetCounter(); c != nil {
		return c.GetValue()
	}
	return out.GetGauge().GetValue()
}

func TestMetrics_Recorder(t *testing.T) {
	m := NewMetricsForTesting()

	m.SweepRead("ragged")
	m.SweepRead("ragged")
	m.SweepRead("composite")
	m.ReadError()
	m.CacheLookup("sweep", true)
	m.CacheLookup("sweep", false)
	m.CacheLookup("coordinate", false)
	m.FieldExcluded()
	m.SummaryCacheLookup(true)

	assert.InDelta(t, 2, value(t, m.SweepReads.WithLabelValues("ragged")), 0)
	assert.InDelta(t, 1, value(t, m.SweepReads.WithLabelValues("composite")), 0)
	assert.InDelta(t, 1, value(t, m.ReadErrors), 0)
	assert.InDelta(t, 1, value(t, m.CacheLookups.WithLabelValues("sweep", "hit")), 0)
	assert.InDelta(t, 1, value(t, m.CacheLookups.WithLabelValues("coordinate", "miss")), 0)
	assert.InDelta(t, 1, value(t, m.FieldsExcluded), 0)
	assert.InDelta(t, 1, value(t, m.SummaryCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 0, value(t, m.SummaryCache.WithLabelValues("miss")), 0)
}

func TestNewLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	ctx := context.Background()

	tests := []struct {
		name      string
		level     string
		format    string
		debug     bool
		info      bool
		textFormat bool
	}{
		{"debug json", "debug", "json", true, true, false},
		{"warn text", "WARN", "TEXT", false, false, true},
		{"unknown level defaults to info", "verbose", "", false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(&config.Config{LogLevel: tt.level, LogFormat: tt.format})
			assert.Equal(t, tt.debug, logger.Enabled(ctx, slog.LevelDebug))
			assert.Equal(t, tt.info, logger.Enabled(ctx, slog.LevelInfo))
			assert.True(t, logger.Enabled(ctx, slog.LevelError))
			_, isText := logger.Handler().(*slog.TextHandler)
			assert.Equal(t, tt.textFormat, isText)
			assert.Same(t, logger, slog.Default())
		})
	}
}
