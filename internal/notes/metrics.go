package notes

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type notesMetrics struct {
	adds        prometheus.Counter
	evictions   prometheus.Counter
	pops        prometheus.Counter
	peeks       prometheus.Counter
	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newNotesMetrics(reg prometheus.Registerer, component string) (*notesMetrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "robots",
			Subsystem:   "notes",
			Name:        name,
			ConstLabels: prometheus.Labels{"component": component},
			Help:        help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "robots",
			Subsystem:   "notes",
			Name:        name,
			ConstLabels: prometheus.Labels{"component": component},
			Help:        help,
		})
	}

	m := &notesMetrics{
		adds:        counter("adds_total", "Total number of values added"),
		evictions:   counter("evictions_total", "Total number of values evicted to make room for newer ones"),
		pops:        counter("pops_total", "Total number of values popped from the tail"),
		peeks:       counter("peeks_total", "Total number of peeks at the tail"),
		size:        gauge("size", "Current number of live values"),
		utilization: gauge("utilization", "Live values as a fraction of capacity (0.0 to 1.0)"),
	}

	var err error
	m.adds, err = register(reg, m.adds)
	if err != nil {
		return nil, err
	}
	m.evictions, err = register(reg, m.evictions)
	if err != nil {
		return nil, err
	}
	m.pops, err = register(reg, m.pops)
	if err != nil {
		return nil, err
	}
	m.peeks, err = register(reg, m.peeks)
	if err != nil {
		return nil, err
	}
	m.size, err = register(reg, m.size)
	if err != nil {
		return nil, err
	}
	m.utilization, err = register(reg, m.utilization)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg. A buffer recreated under the same component name picks up the
// collector that is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

func (m *notesMetrics) recordAdd(size, capacity int) {
	m.adds.Inc()
	m.updateSize(size, capacity)
}

func (m *notesMetrics) recordEviction() {
	m.evictions.Inc()
}

func (m *notesMetrics) recordPop(size, capacity int) {
	m.pops.Inc()
	m.updateSize(size, capacity)
}

func (m *notesMetrics) recordPeek() {
	m.peeks.Inc()
}

func (m *notesMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
