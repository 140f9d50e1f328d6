package storage

import (
	"go.uber.org/zap"

	"github.com/ava-labs/chainstate-indexer/pkg/metrics"
)

type options struct {
	log     *zap.SugaredLogger
	metrics *metrics.Metrics // nil if metrics disabled
}

// Option configures connectors, models and bulk imports.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithMetrics enables metrics collection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func newOptions(opts []Option) options {
	o := options{log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
