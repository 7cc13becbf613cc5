// Package metrics provides a small Prometheus-compatible collector for
// pixelbot. It renders the text exposition format directly.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide metrics collector.
var Collector = NewMetricsCollector()

// MetricsCollector aggregates counters, gauges, and histograms.
type MetricsCollector struct {
	counters   sync.Map // key -> *Counter
	gauges     sync.Map // key -> *Gauge
	histograms sync.Map // key -> *Histogram
	startTime  time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc() { c.value.Add(1) }
func (c *Counter) Add(n int64) { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (g *Gauge) Set(v int64) { g.value.Store(v) }
func (g *Gauge) Inc() { g.value.Add(1) }
func (g *Gauge) Dec() { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Counter returns or creates a counter identified by name and labels.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	ctr, _ := c.counters.LoadOrStore(seriesKey(name, labels), &Counter{name: name, help: help, labels: labels})
	return ctr.(*Counter)
}

// Gauge returns or creates a gauge identified by name and labels.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	g, _ := c.gauges.LoadOrStore(seriesKey(name, labels), &Gauge{name: name, help: help, labels: labels})
	return g.(*Gauge)
}

// Histogram returns or creates a histogram identified by name and labels.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	key := seriesKey(name, labels)
	if v, ok := c.histograms.Load(key); ok {
		return v.(*Histogram)
	}
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	hb := make([]histBucket, len(bounds))
	for i, b := range bounds {
		hb[i] = histBucket{le: b}
	}
	h, _ := c.histograms.LoadOrStore(key, &Histogram{name: name, help: help, labels: labels, buckets: hb})
	return h.(*Histogram)
}

func seriesKey(name, labels string) string {
	return name + "{" + labels + "}"
}

// Handler renders all metrics in Prometheus text format.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		var sb strings.Builder
		c.Render(&sb)
		io.WriteString(w, sb.String())
	}
}

// Render writes every series in exposition format. Series of the same metric
// are grouped under a single HELP/TYPE header and sorted for stable output.
func (c *MetricsCollector) Render(sb *strings.Builder) {
	writeHeader(sb, "pixelbot_uptime_seconds", "Time since start in seconds", "gauge")
	fmt.Fprintf(sb, "pixelbot_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	var counters []*Counter
	c.counters.Range(func(_, v any) bool { counters = append(counters, v.(*Counter)); return true })
	sort.Slice(counters, func(i, j int) bool {
		return seriesKey(counters[i].name, counters[i].labels) < seriesKey(counters[j].name, counters[j].labels)
	})
	last := ""
	for _, ctr := range counters {
		if ctr.name != last {
			writeHeader(sb, ctr.name, ctr.help, "counter")
			last = ctr.name
		}
		fmt.Fprintf(sb, "%s %d\n", series(ctr.name, ctr.labels), ctr.Value())
	}

	var gauges []*Gauge
	c.gauges.Range(func(_, v any) bool { gauges = append(gauges, v.(*Gauge)); return true })
	sort.Slice(gauges, func(i, j int) bool {
		return seriesKey(gauges[i].name, gauges[i].labels) < seriesKey(gauges[j].name, gauges[j].labels)
	})
	last = ""
	for _, g := range gauges {
		if g.name != last {
			writeHeader(sb, g.name, g.help, "gauge")
			last = g.name
		}
		fmt.Fprintf(sb, "%s %d\n", series(g.name, g.labels), g.Value())
	}

	c.histograms.Range(func(_, v any) bool {
		h := v.(*Histogram)
		h.mu.Lock()
		defer h.mu.Unlock()

		writeHeader(sb, h.name, h.help, "histogram")
		for _, b := range h.buckets {
			le := fmt.Sprintf("%g", b.le)
			if math.IsInf(b.le, 1) {
				le = "+Inf"
			}
			fmt.Fprintf(sb, "%s %d\n", series(h.name+"_bucket", joinLabels(h.labels, `le="`+le+`"`)), b.count)
		}
		if n := len(h.buckets); n == 0 || !math.IsInf(h.buckets[n-1].le, 1) {
			fmt.Fprintf(sb, "%s %d\n", series(h.name+"_bucket", joinLabels(h.labels, `le="+Inf"`)), h.count)
		}
		fmt.Fprintf(sb, "%s %d\n", series(h.name+"_count", h.labels), h.count)
		fmt.Fprintf(sb, "%s %f\n", series(h.name+"_sum", h.labels), h.sum)
		return true
	})
}

func writeHeader(sb *strings.Builder, name, help, kind string) {
	fmt.Fprintf(sb, "# HELP %s %s\n", name, help)
	fmt.Fprintf(sb, "# TYPE %s %s\n", name, kind)
}

func series(name, labels string) string {
	if labels == "" {
		return name
	}
	return name + "{" + labels + "}"
}

func joinLabels(a, b string) string {
	if a == "" {
		return b
	}
	return a + "," + b
}
