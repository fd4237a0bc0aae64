package prometheus

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-leadhooks/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LatencyBuckets are delivery latency buckets in milliseconds.
var LatencyBuckets = []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 8000}

type definition struct {
	help   string
	labels []string
}

var counterDefinitions = map[string]definition{
	core.MetricBreakerDenied:    {help: "Events refused by the webhook loop breaker.", labels: []string{"scope"}},
	core.MetricDispatchEnqueued: {help: "Delivery batches enqueued by event type.", labels: []string{"event_type"}},
	core.MetricDeliveryTotal:    {help: "Webhook deliveries by event type and outcome.", labels: []string{"event_type", "outcome"}},
	core.MetricJobTotal:         {help: "Delivery job executions by outcome.", labels: []string{"job_id", "outcome"}},
}

var histogramDefinitions = map[string]definition{
	core.MetricDeliveryLatency: {help: "Webhook delivery latency in ms.", labels: []string{"event_type", "outcome"}},
}

type counter struct {
	vec    *prometheus.CounterVec
	labels []string
}

type histogram struct {
	vec    *prometheus.HistogramVec
	labels []string
}

// Recorder implements core.MetricsRecorder on a dedicated prometheus registry.
// Names not declared up front are registered on first use with the tag keys of
// that first call as their label set.
type Recorder struct {
	mu         sync.Mutex
	registry   *prometheus.Registry
	counters   map[string]*counter
	histograms map[string]*histogram
}

type Options struct {
	Registry *prometheus.Registry
	// RuntimeCollectors adds the Go and process collectors.
	RuntimeCollectors bool
}

func NewRecorder(opts Options) (*Recorder, error) {
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	r := &Recorder{
		registry:   registry,
		counters:   map[string]*counter{},
		histograms: map[string]*histogram{},
	}
	if opts.RuntimeCollectors {
		if err := registry.Register(collectors.NewGoCollector()); err != nil {
			return nil, err
		}
		if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, err
		}
	}
	for name, def := range counterDefinitions {
		if _, err := r.counter(name, def); err != nil {
			return nil, err
		}
	}
	for name, def := range histogramDefinitions {
		if _, err := r.histogram(name, def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if value < 0 {
		return
	}
	c, err := r.counter(name, definition{labels: sortedKeys(tags)})
	if err != nil {
		return
	}
	c.vec.WithLabelValues(labelValues(c.labels, tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	h, err := r.histogram(name, definition{labels: sortedKeys(tags)})
	if err != nil {
		return
	}
	h.vec.WithLabelValues(labelValues(h.labels, tags)...).Observe(value)
}

func (r *Recorder) counter(name string, def definition) (*counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[name]; ok {
		return existing, nil
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: MetricName(name),
		Help: helpFor(name, def),
	}, def.labels)
	if err := r.registry.Register(vec); err != nil {
		return nil, err
	}
	entry := &counter{vec: vec, labels: def.labels}
	r.counters[name] = entry
	return entry, nil
}

func (r *Recorder) histogram(name string, def definition) (*histogram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[name]; ok {
		return existing, nil
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    MetricName(name),
		Help:    helpFor(name, def),
		Buckets: LatencyBuckets,
	}, def.labels)
	if err := r.registry.Register(vec); err != nil {
		return nil, err
	}
	entry := &histogram{vec: vec, labels: def.labels}
	r.histograms[name] = entry
	return entry, nil
}

// MetricName converts a dotted metric name into a prometheus metric name.
func MetricName(name string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func helpFor(name string, def definition) string {
	if def.help != "" {
		return def.help
	}
	return "leadhooks metric " + name
}

func sortedKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, MetricName(key))
	}
	sort.Strings(keys)
	return keys
}

func labelValues(labels []string, tags map[string]string) []string {
	normalized := make(map[string]string, len(tags))
	for key, value := range tags {
		normalized[MetricName(key)] = value
	}
	values := make([]string, len(labels))
	for i, label := range labels {
		values[i] = normalized[label]
	}
	return values
}

var _ core.MetricsRecorder = (*Recorder)(nil)
