package downloader

import (
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Option is a functional option for configuring a [Downloader] via [New].
type Option func(*options) error

type options struct {
	logger       *slog.Logger
	tracer       trace.Tracer
	materializer Materializer
	dir          string
	schedule     func(func())
}

// WithLogger injects a custom [slog.Logger] into the [Downloader].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithTracer injects the tracer used for request and materialize spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		o.tracer = tracer
		return nil
	}
}

// WithMaterializer replaces the default file materializer.
func WithMaterializer(m Materializer) Option {
	return func(o *options) error {
		if m == nil {
			return errors.New("materializer must not be nil")
		}
		o.materializer = m
		return nil
	}
}

// WithDir sets the directory the default materializer saves into.
// It has no effect when WithMaterializer is also given.
func WithDir(dir string) Option {
	return func(o *options) error {
		if dir == "" {
			return errors.New("dir must not be empty")
		}
		o.dir = dir
		return nil
	}
}

// WithScheduler sets how deferred work is dispatched. The default runs
// each task on a new goroutine. The scheduler must not run the task
// before returning.
func WithScheduler(schedule func(task func())) Option {
	return func(o *options) error {
		if schedule == nil {
			return errors.New("scheduler must not be nil")
		}
		o.schedule = schedule
		return nil
	}
}
