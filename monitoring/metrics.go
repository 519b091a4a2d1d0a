// Package monitoring collects in-process counters for the prediction service.
package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
	MetricTypeSummary MetricType = "summary"
)

const (
	PredictionsTotal = "sbsk_predictions_total"
	CacheHitsTotal   = "sbsk_prediction_cache_hits_total"
	ReloadsTotal     = "sbsk_model_reloads_total"
	TrainingsTotal   = "sbsk_training_runs_total"
	LatencySeconds   = "sbsk_prediction_latency_seconds"
)

// latencyWindow bounds the samples kept for quantiles.
const latencyWindow = 1000

var help = map[string]string{
	PredictionsTotal: "Predictions served, by outcome",
	CacheHitsTotal:   "Predictions answered from the cache",
	ReloadsTotal:     "Model reloads, by source and result",
	TrainingsTotal:   "Scheduled or manual training runs, by result",
	LatencySeconds:   "Prediction latency in seconds",
}

// Metric is one labelled series.
type Metric struct {
	Name   string            `json:"name"`
	Type   MetricType        `json:"type"`
	Value  float64           `json:"value"`
	Labels map[string]string `json:"labels,omitempty"`
	Help   string            `json:"help,omitempty"`
}

// LatencySummary describes the recent latency window.
type LatencySummary struct {
	Count   int64   `json:"count"`
	Sum     float64 `json:"sum_seconds"`
	Min     float64 `json:"min_seconds"`
	Max     float64 `json:"max_seconds"`
	Average float64 `json:"average_seconds"`
	P50     float64 `json:"p50_seconds"`
	P95     float64 `json:"p95_seconds"`
	P99     float64 `json:"p99_seconds"`
}

// Snapshot is what GET /api/metrics serves.
type Snapshot struct {
	Uptime   string         `json:"uptime"`
	Counters []Metric       `json:"counters"`
	Latency  LatencySummary `json:"latency"`
	System   SystemStats    `json:"system"`
}

type SystemStats struct {
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	GCCount    uint32 `json:"gc_count"`
	NumCPU     int    `json:"num_cpu"`
}

// MetricsCollector 指标收集器
type MetricsCollector struct {
	mu       sync.RWMutex
	counters map[string]*Metric

	latencyCount int64
	latencySum   float64
	latencyMin   float64
	latencyMax   float64
	recent       []float64

	startTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:  make(map[string]*Metric),
		recent:    make([]float64, 0, latencyWindow),
		startTime: time.Now(),
	}
}

// IncrCounter adds value to the series name{labels}.
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	key := seriesKey(name, labels)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	m, ok := mc.counters[key]
	if !ok {
		m = &Metric{Name: name, Type: MetricTypeCounter, Labels: copyLabels(labels), Help: help[name]}
		mc.counters[key] = m
	}
	m.Value += value
}

// RecordPrediction counts one served prediction. outcome is "ok" or the
// error kind.
func (mc *MetricsCollector) RecordPrediction(outcome string, cached bool, elapsed time.Duration) {
	mc.IncrCounter(PredictionsTotal, 1, map[string]string{"outcome": outcome})
	if cached {
		mc.IncrCounter(CacheHitsTotal, 1, nil)
	}
	mc.observeLatency(elapsed.Seconds())
}

// RecordReload counts a model reload from source ("api", "watcher", "retrain").
func (mc *MetricsCollector) RecordReload(source string, err error) {
	mc.IncrCounter(ReloadsTotal, 1, map[string]string{"source": source, "result": result(err)})
}

func (mc *MetricsCollector) RecordTraining(err error) {
	mc.IncrCounter(TrainingsTotal, 1, map[string]string{"result": result(err)})
}

func (mc *MetricsCollector) observeLatency(seconds float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.latencyCount == 0 || seconds < mc.latencyMin {
		mc.latencyMin = seconds
	}
	if seconds > mc.latencyMax {
		mc.latencyMax = seconds
	}
	mc.latencyCount++
	mc.latencySum += seconds

	// 限制历史大小
	if len(mc.recent) == latencyWindow {
		copy(mc.recent, mc.recent[1:])
		mc.recent = mc.recent[:latencyWindow-1]
	}
	mc.recent = append(mc.recent, seconds)
}

// Counter returns the current value of name{labels}, zero when unseen.
func (mc *MetricsCollector) Counter(name string, labels map[string]string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if m, ok := mc.counters[seriesKey(name, labels)]; ok {
		return m.Value
	}
	return 0
}

func (mc *MetricsCollector) Latency() LatencySummary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	summary := LatencySummary{
		Count: mc.latencyCount,
		Sum:   mc.latencySum,
		Min:   mc.latencyMin,
		Max:   mc.latencyMax,
	}
	if mc.latencyCount == 0 {
		return summary
	}
	summary.Average = mc.latencySum / float64(mc.latencyCount)

	sorted := append([]float64(nil), mc.recent...)
	sort.Float64s(sorted)
	summary.P50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	summary.P95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	summary.P99 = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	return summary
}

// Snapshot returns counters sorted by series, the latency summary and
// runtime stats.
func (mc *MetricsCollector) Snapshot() Snapshot {
	return Snapshot{
		Uptime:   mc.GetUptime().Truncate(time.Second).String(),
		Counters: mc.sortedCounters(),
		Latency:  mc.Latency(),
		System:   systemStats(),
	}
}

func (mc *MetricsCollector) sortedCounters() []Metric {
	mc.mu.RLock()
	keys := make([]string, 0, len(mc.counters))
	for k := range mc.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Metric, 0, len(keys))
	for _, k := range keys {
		m := *mc.counters[k]
		m.Labels = copyLabels(m.Labels)
		out = append(out, m)
	}
	mc.mu.RUnlock()
	return out
}

// ExportPrometheus 导出Prometheus格式
func (mc *MetricsCollector) ExportPrometheus() string {
	var b strings.Builder

	seen := make(map[string]bool)
	for _, m := range mc.sortedCounters() {
		if !seen[m.Name] {
			seen[m.Name] = true
			fmt.Fprintf(&b, "# HELP %s %s\n", m.Name, m.Help)
			fmt.Fprintf(&b, "# TYPE %s %s\n", m.Name, m.Type)
		}
		fmt.Fprintf(&b, "%s%s %g\n", m.Name, formatLabels(m.Labels), m.Value)
	}

	l := mc.Latency()
	fmt.Fprintf(&b, "# HELP %s %s\n", LatencySeconds, help[LatencySeconds])
	fmt.Fprintf(&b, "# TYPE %s %s\n", LatencySeconds, MetricTypeSummary)
	for _, q := range []struct {
		label string
		value float64
	}{{"0.5", l.P50}, {"0.95", l.P95}, {"0.99", l.P99}} {
		fmt.Fprintf(&b, "%s{quantile=%q} %g\n", LatencySeconds, q.label, q.value)
	}
	fmt.Fprintf(&b, "%s_sum %g\n", LatencySeconds, l.Sum)
	fmt.Fprintf(&b, "%s_count %d\n", LatencySeconds, l.Count)
	return b.String()
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

func systemStats() SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemStats{
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
		HeapSys:    m.HeapSys,
		GCCount:    m.NumGC,
		NumCPU:     runtime.NumCPU(),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func seriesKey(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
