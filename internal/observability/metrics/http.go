// Package metrics collects per-tool call counters and latency histograms
// and exposes them in Prometheus text exposition format.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type callKey struct {
	tool    string
	outcome string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type collector struct {
	mu      sync.Mutex
	calls   map[callKey]uint64
	latency map[string]*histogram
}

var toolCollector = &collector{
	calls:   make(map[callKey]uint64),
	latency: make(map[string]*histogram),
}

// ObserveToolCall records the outcome and duration of one tool invocation.
// Outcome is "ok" for successful envelopes and the error code otherwise.
func ObserveToolCall(tool, outcome string, duration time.Duration) {
	toolCollector.observe(tool, outcome, duration)
}

func (c *collector) observe(tool, outcome string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls[callKey{tool: tool, outcome: outcome}]++

	hist := c.latency[tool]
	if hist == nil {
		hist = newHistogram()
		c.latency[tool] = hist
	}
	hist.observe(duration.Seconds())
}

func newHistogram() *histogram {
	buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			break
		}
	}
	// Values above the last bucket only count towards +Inf via h.count.
}

// Handler exposes the collected metrics.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, toolCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	type callMetric struct {
		callKey
		value uint64
	}
	type latencyMetric struct {
		tool    string
		buckets []float64
		counts  []uint64
		sum     float64
		count   uint64
	}

	calls := make([]callMetric, 0, len(c.calls))
	for key, value := range c.calls {
		calls = append(calls, callMetric{callKey: key, value: value})
	}
	lats := make([]latencyMetric, 0, len(c.latency))
	for tool, hist := range c.latency {
		lats = append(lats, latencyMetric{
			tool:    tool,
			buckets: append([]float64(nil), hist.buckets...),
			counts:  append([]uint64(nil), hist.counts...),
			sum:     hist.sum,
			count:   hist.count,
		})
	}

	sort.Slice(calls, func(i, j int) bool {
		if calls[i].tool == calls[j].tool {
			return calls[i].outcome < calls[j].outcome
		}
		return calls[i].tool < calls[j].tool
	})
	sort.Slice(lats, func(i, j int) bool { return lats[i].tool < lats[j].tool })

	var builder strings.Builder
	builder.Grow(1024)

	builder.WriteString("# HELP veemflow_tool_calls_total Total number of tool invocations by outcome.\n")
	builder.WriteString("# TYPE veemflow_tool_calls_total counter\n")
	for _, metric := range calls {
		builder.WriteString(fmt.Sprintf("veemflow_tool_calls_total{tool=\"%s\",outcome=\"%s\"} %d\n",
			escape(metric.tool), escape(metric.outcome), metric.value))
	}

	builder.WriteString("# HELP veemflow_tool_duration_seconds Tool invocation duration in seconds.\n")
	builder.WriteString("# TYPE veemflow_tool_duration_seconds histogram\n")
	for _, metric := range lats {
		for idx, bound := range metric.buckets {
			builder.WriteString(fmt.Sprintf("veemflow_tool_duration_seconds_bucket{tool=\"%s\",le=\"%s\"} %d\n",
				escape(metric.tool), formatFloat(bound), metric.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("veemflow_tool_duration_seconds_bucket{tool=\"%s\",le=\"+Inf\"} %d\n",
			escape(metric.tool), metric.count))
		builder.WriteString(fmt.Sprintf("veemflow_tool_duration_seconds_sum{tool=\"%s\"} %s\n",
			escape(metric.tool), formatFloat(metric.sum)))
		builder.WriteString(fmt.Sprintf("veemflow_tool_duration_seconds_count{tool=\"%s\"} %d\n",
			escape(metric.tool), metric.count))
	}

	return builder.String()
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
