// Package metrics keeps the per-listener counters exposed on /metrics in the
// Prometheus text exposition format.
package metrics

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "streamdouble"

// Registry is one listener's Prometheus registry. Each listener gets its own
// so the SSE and WebSocket endpoints report only their own traffic.
type Registry struct {
	reg *prometheus.Registry

	mu       sync.Mutex
	counters map[string]*CounterVec
}

func NewRegistry() *Registry {
	return &Registry{
		reg:      prometheus.NewRegistry(),
		counters: make(map[string]*CounterVec),
	}
}

// CounterVec is a family of monotonically increasing counters partitioned by
// label values.
type CounterVec struct {
	name     string
	labels   []string
	vec      *prometheus.CounterVec
	gatherer prometheus.Gatherer
}

// Counter registers (or returns the already registered) counter family
// name. The namespace prefix is added here.
func (r *Registry) Counter(name, help string, labels ...string) *CounterVec {
	full := prometheus.BuildFQName(namespace, "", name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.counters[full]; ok {
		return c
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
	r.reg.MustRegister(vec)

	c := &CounterVec{name: full, labels: labels, vec: vec, gatherer: r.reg}
	r.counters[full] = c
	return c
}

// GaugeFunc registers a gauge whose value is read from fn at gather time.
func (r *Registry) GaugeFunc(name, help string, fn func() float64) {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
	if err := r.reg.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			log.Printf("metrics: gauge %s already registered", name)
			return
		}
		log.Printf("metrics: register gauge %s: %v", name, err)
	}
}

// Inc adds one to the counter for values. Passing the wrong number of label
// values is a programming error and is logged and ignored.
func (c *CounterVec) Inc(values ...string) {
	c.Add(1, values...)
}

func (c *CounterVec) Add(v float64, values ...string) {
	m, err := c.vec.GetMetricWithLabelValues(values...)
	if err != nil {
		log.Printf("metrics: %s: %v", c.name, err)
		return
	}
	m.Add(v)
}

// Value returns the current count for values, or zero if it was never
// incremented. Reading does not create the series.
func (c *CounterVec) Value(values ...string) float64 {
	if len(values) != len(c.labels) {
		return 0
	}
	want := make(map[string]string, len(values))
	for i, name := range c.labels {
		want[name] = values[i]
	}

	families, err := c.gatherer.Gather()
	if err != nil {
		log.Printf("metrics: gather %s: %v", c.name, err)
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != c.name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m.GetLabel(), want) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

// Gather returns every family with at least one sample, sorted by name.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.reg.Gather()
}

func (r *Registry) WriteText(w io.Writer) error {
	families, err := r.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{
		ErrorLog:      log.New(log.Writer(), "metrics: ", log.LstdFlags),
		ErrorHandling: promhttp.ContinueOnError,
	})
}
