// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package observability

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/pdiddy/arxiv-digest/pkg/types"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNewLoggerJSONWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(types.LoggingConfig{Level: "info", Format: "json"}, &buf)
	logger = WithPaper(WithStage(WithRun(logger, "run-1"), "classify"), 3, "2502.00001v1")

	logger.Debug().Msg("hidden")
	logger.Info().Msg("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"stage":"classify"`)
	assert.Contains(t, out, `"index":3`)
	assert.Contains(t, out, `"paper_id":"2502.00001v1"`)
	assert.Contains(t, out, `"message":"visible"`)
}

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	start := time.Now().Add(-time.Minute)
	m.RecordRun(types.RunSummary{Status: types.RunSucceeded, StartedAt: start, FinishedAt: time.Now()})
	m.RecordRun(types.RunSummary{Status: types.RunSkipped})
	m.RecordFetched(3)
	m.RecordEnrich(true)
	m.RecordEnrich(false)
	m.RecordClassification("unknown")
	m.RecordReasoningCall("org_filter", nil)
	m.RecordReasoningCall("org_filter", errors.New("boom"))
	m.RecordSelected("combined", 2)
	m.SetRunning(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PapersFetched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichResults.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Classifications.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReasoningCalls.WithLabelValues("org_filter", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReasoningCalls.WithLabelValues("org_filter", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Selected.WithLabelValues("combined")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerRunning))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRun(types.RunSummary{Status: types.RunFailed})
		m.RecordFetched(1)
		m.RecordEnrich(true)
		m.RecordClassification("failed")
		m.RecordReasoningCall("topic_filter", nil)
		m.RecordSelected("org", 1)
		m.SetRunning(false)
	})
}
