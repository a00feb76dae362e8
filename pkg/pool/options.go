package pool

import "go.uber.org/zap"

// Option configures a Pool at construction time.
type Option func(*options)

type options struct {
	name       string
	logger     *zap.Logger
	arenaLimit uint64
	release    any
}

// WithName labels the pool in logs, errors and metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger used for lifecycle events and contract
// violations. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithArenaLimit caps the number of bytes Init may reserve for the arena,
// sentinels included. Zero means unlimited.
func WithArenaLimit(bytes uint64) Option {
	return func(o *options) {
		o.arenaLimit = bytes
	}
}

// WithReleaseHook registers fn to run on every live value leaving the pool,
// through Deallocate or Term. T must match the element type of the pool the
// option is passed to.
func WithReleaseHook[T any](fn ReleaseFunc[T]) Option {
	return func(o *options) {
		if fn != nil {
			o.release = fn
		}
	}
}

func defaultOptions() options {
	return options{
		name:   "pool",
		logger: zap.NewNop(),
	}
}
