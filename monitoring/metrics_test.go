package monitoring

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPrediction(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordPrediction("ok", false, 10*time.Millisecond)
	mc.RecordPrediction("ok", true, 2*time.Millisecond)
	mc.RecordPrediction("ConversionError", false, time.Millisecond)

	assert.Equal(t, 2.0, mc.Counter(PredictionsTotal, map[string]string{"outcome": "ok"}))
	assert.Equal(t, 1.0, mc.Counter(PredictionsTotal, map[string]string{"outcome": "ConversionError"}))
	assert.Equal(t, 1.0, mc.Counter(CacheHitsTotal, nil))
	assert.Zero(t, mc.Counter(PredictionsTotal, map[string]string{"outcome": "ModelUnavailable"}))

	l := mc.Latency()
	assert.Equal(t, int64(3), l.Count)
	assert.InDelta(t, 0.001, l.Min, 1e-9)
	assert.InDelta(t, 0.010, l.Max, 1e-9)
	assert.InDelta(t, 0.013/3, l.Average, 1e-9)
	assert.InDelta(t, 0.002, l.P50, 1e-9)
	assert.InDelta(t, 0.010, l.P99, 1e-9)
}

func TestReloadsAndTraining(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordReload("watcher", nil)
	mc.RecordReload("watcher", errors.New("corrupt"))
	mc.RecordTraining(nil)

	assert.Equal(t, 1.0, mc.Counter(ReloadsTotal, map[string]string{"source": "watcher", "result": "ok"}))
	assert.Equal(t, 1.0, mc.Counter(ReloadsTotal, map[string]string{"result": "error", "source": "watcher"}))
	assert.Equal(t, 1.0, mc.Counter(TrainingsTotal, map[string]string{"result": "ok"}))
}

func TestLatencyWindow(t *testing.T) {
	mc := NewMetricsCollector()
	for i := 0; i < latencyWindow+50; i++ {
		mc.RecordPrediction("ok", false, time.Duration(i)*time.Microsecond)
	}
	assert.Len(t, mc.recent, latencyWindow)
	assert.Equal(t, int64(latencyWindow+50), mc.Latency().Count)
	assert.Zero(t, mc.Latency().Min, "min covers every sample, not just the window")
}

func TestSnapshotAndExport(t *testing.T) {
	mc := NewMetricsCollector()
	assert.Zero(t, mc.Latency().P50)

	mc.RecordPrediction("ok", false, time.Millisecond)
	mc.RecordReload("api", nil)

	snap := mc.Snapshot()
	require.Len(t, snap.Counters, 2)
	assert.Equal(t, ReloadsTotal, snap.Counters[0].Name)
	assert.Equal(t, PredictionsTotal, snap.Counters[1].Name)
	assert.Positive(t, snap.System.Goroutines)

	out := mc.ExportPrometheus()
	assert.Contains(t, out, `sbsk_predictions_total{outcome="ok"} 1`)
	assert.Contains(t, out, `sbsk_model_reloads_total{result="ok",source="api"} 1`)
	assert.Contains(t, out, "# TYPE sbsk_prediction_latency_seconds summary")
	assert.Contains(t, out, "sbsk_prediction_latency_seconds_count 1")
	assert.Equal(t, 1, strings.Count(out, "# TYPE sbsk_predictions_total"))
}

func TestConcurrentRecording(t *testing.T) {
	mc := NewMetricsCollector()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				mc.RecordPrediction("ok", j%2 == 0, time.Microsecond)
				_ = mc.Snapshot()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800.0, mc.Counter(PredictionsTotal, map[string]string{"outcome": "ok"}))
	assert.Equal(t, 400.0, mc.Counter(CacheHitsTotal, nil))
}
