package relay

import (
	"time"

	"go.uber.org/zap"
)

type options struct {
	log     *zap.Logger
	metrics *Metrics
	nowFn   func() time.Time
}

// Option configures a Router or a Signaler.
type Option func(*options)

func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides the envelope timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.nowFn = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log:   zap.NewNop(),
		nowFn: time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
