package notes

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a [Notes] buffer.
type Option[T comparable] func(*options[T])

type options[T comparable] struct {
	logger        *slog.Logger
	onEvict       func(T)
	registerer    prometheus.Registerer
	metricsPrefix string
}

// WithLogger sets the logger used to report recovered faults. Defaults to slog.Default().
func WithLogger[T comparable](logger *slog.Logger) Option[T] {
	return func(o *options[T]) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEvictCallback registers a function that receives every value evicted to make room for a
// newer one. It is called after the buffer lock has been released. Popped values are not
// reported.
func WithEvictCallback[T comparable](onEvict func(T)) Option[T] {
	return func(o *options[T]) {
		o.onEvict = onEvict
	}
}

// WithMetrics exports buffer activity as Prometheus metrics labelled with component. The option
// is ignored when registerer is nil or component is empty.
func WithMetrics[T comparable](registerer prometheus.Registerer, component string) Option[T] {
	return func(o *options[T]) {
		if registerer != nil && component != "" {
			o.registerer = registerer
			o.metricsPrefix = component
		}
	}
}

func applyOptions[T comparable](opts ...Option[T]) options[T] {
	o := options[T]{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
