package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/savefile/download"
)

// Downloader owns at most one in-flight request and the payload of the
// last successful one. Hook configuration is set with Before, After and
// OnError; every method returns the same instance for chaining.
type Downloader struct {
	mu       sync.Mutex
	before   []Step
	after    func()
	onError  func(error)
	inFlight *download.Result[*Payload]
	cached   *Payload

	logger       *slog.Logger
	tracer       trace.Tracer
	materializer Materializer
	schedule     func(func())
}

// New returns an idle Downloader with no hooks registered.
func New(optFns ...Option) (*Downloader, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying downloader option: %w", err)
		}
	}

	d := &Downloader{
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer("no-op tracer"),
		schedule: func(task func()) { go task() },
	}

	if opts.logger != nil {
		d.logger = opts.logger
	}

	if opts.tracer != nil {
		d.tracer = opts.tracer
	}

	if opts.schedule != nil {
		d.schedule = opts.schedule
	}

	switch {
	case opts.materializer != nil:
		d.materializer = opts.materializer
	default:
		d.materializer = download.FileMaterializer{Dir: opts.dir, Logger: d.logger}
	}

	return d, nil
}

// Clone returns a new idle Downloader carrying src's hook configuration.
// The before-chain is copied, so later Before calls on either instance
// do not affect the other. In-flight and cached state are never copied.
// A nil src yields a default instance.
func Clone(src *Downloader) *Downloader {
	if src == nil {
		d, _ := New()
		return d
	}

	src.mu.Lock()
	defer src.mu.Unlock()

	return &Downloader{
		before:       slices.Clone(src.before),
		after:        src.after,
		onError:      src.onError,
		logger:       src.logger,
		tracer:       src.tracer,
		materializer: src.materializer,
		schedule:     src.schedule,
	}
}

// Clone is shorthand for [Clone](d).
func (d *Downloader) Clone() *Downloader {
	return Clone(d)
}

// Before appends step to the before-chain.
func (d *Downloader) Before(step Step) *Downloader {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.before = append(d.before, step)
	return d
}

// After sets the completion hook, run once per request cycle whether it
// succeeded or failed. A nil hook clears it.
func (d *Downloader) After(hook func()) *Downloader {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.after = hook
	return d
}

// OnError sets the hook that receives a request cycle's failure. Without
// one, failures are only visible in debug logs.
func (d *Downloader) OnError(hook func(error)) *Downloader {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.onError = hook
	return d
}

// Busy reports whether a request cycle is in flight.
func (d *Downloader) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.inFlight != nil
}

// Request starts a request cycle and returns immediately. If one is
// already in flight the call is ignored. Otherwise the cached payload
// is dropped, the before-chain runs on the scheduler, fn is called, and
// the response is classified and cached. The error hook, then the
// completion hook, run before the instance is marked idle again.
//
// Hooks are read when the cycle settles. Attach them before calling
// Request; one attached afterwards may miss a cycle that settles first.
func (d *Downloader) Request(fn RequestFunc) *Downloader {
	d.mu.Lock()
	if d.inFlight != nil {
		id := d.inFlight.ID()
		d.mu.Unlock()
		d.logger.Debug("request already in flight", "request_id", id)
		return d
	}

	r := download.NewResult[*Payload](uuid.NewString())
	d.cached = nil
	d.inFlight = r
	d.mu.Unlock()

	d.schedule(func() { d.run(r, fn) })

	return d
}

// Download saves the cached payload as fileName, or waits for the
// in-flight request and saves its payload. It does nothing when no
// request was ever made, or when the awaited request fails.
func (d *Downloader) Download(fileName, mime string) {
	d.mu.Lock()
	cached, r := d.cached, d.inFlight
	d.mu.Unlock()

	switch {
	case cached != nil:
		d.materialize(cached, fileName, mime)
	case r != nil:
		d.schedule(func() {
			payload, err := r.Wait(context.Background())
			if err != nil {
				d.logger.Debug("skipping download of failed request", "request_id", r.ID(), "error", err)
				return
			}
			d.materialize(payload, fileName, mime)
		})
	default:
		d.logger.Debug("download called before any request", "file", fileName)
	}
}

// Wait blocks until a payload is available. It returns the cached
// payload at once if there is one, otherwise the in-flight request's
// outcome, or ErrNoRequest.
func (d *Downloader) Wait(ctx context.Context) (*Payload, error) {
	d.mu.Lock()
	cached, r := d.cached, d.inFlight
	d.mu.Unlock()

	switch {
	case cached != nil:
		return cached, nil
	case r != nil:
		return r.Wait(ctx)
	default:
		return nil, ErrNoRequest
	}
}

// run drives one request cycle to completion.
func (d *Downloader) run(r *download.Result[*Payload], fn RequestFunc) {
	ctx, span := d.tracer.Start(context.Background(), "downloader.request")
	span.SetAttributes(attribute.String("request_id", r.ID()))
	defer span.End()

	logger := d.logger.With("request_id", r.ID())

	payload, err := d.execute(ctx, logger, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	d.settle(logger, r, payload, err)
}

// execute runs the before-chain, then fn, then classifies the response.
func (d *Downloader) execute(ctx context.Context, logger *slog.Logger, fn RequestFunc) (*Payload, error) {
	if err := d.runBefore(logger); err != nil {
		return nil, err
	}

	resp, err := d.invoke(ctx, fn)
	if err != nil {
		return nil, err
	}

	return classify(resp)
}

// runBefore invokes each step in order, waiting for its proceed signal
// before moving on. The chain length is read at every index, so steps
// appended while the chain runs are included.
func (d *Downloader) runBefore(logger *slog.Logger) error {
	for i := 0; ; i++ {
		d.mu.Lock()
		if i >= len(d.before) {
			d.mu.Unlock()
			return nil
		}
		step := d.before[i]
		d.mu.Unlock()

		proceeded := make(chan struct{})
		var once sync.Once
		proceed := func() {
			fired := false
			once.Do(func() {
				fired = true
				close(proceeded)
			})
			if !fired {
				logger.Warn("before step proceeded more than once", "step", i)
			}
		}

		if err := callStep(step, proceed); err != nil {
			return fmt.Errorf("before step %d: %w", i, err)
		}

		<-proceeded
	}
}

func callStep(step Step, proceed func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, rec)
		}
	}()

	step(proceed)

	return nil
}

func (d *Downloader) invoke(ctx context.Context, fn RequestFunc) (resp *Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, rec)
		}
	}()

	return fn(ctx)
}

// settle records the outcome, runs the hooks and clears the in-flight
// handle. The completion hook and the clearing run even if a hook panics.
func (d *Downloader) settle(logger *slog.Logger, r *download.Result[*Payload], payload *Payload, err error) {
	defer func() {
		d.mu.Lock()
		after := d.after
		d.mu.Unlock()

		if after != nil {
			d.guard(logger, "after", after)
		}

		d.mu.Lock()
		if d.inFlight == r {
			d.inFlight = nil
		}
		d.mu.Unlock()
	}()

	if err == nil {
		d.mu.Lock()
		d.cached = payload
		d.mu.Unlock()

		r.Resolve(payload)
		logger.Debug("request succeeded", "type", payload.Type, "bytes", len(payload.Data))
		return
	}

	r.Reject(err)

	d.mu.Lock()
	onError := d.onError
	d.mu.Unlock()

	if onError == nil {
		logger.Debug("request failed with no error hook", "error", err)
		return
	}

	d.guard(logger, "error", func() { onError(err) })
}

// guard runs a caller hook, logging instead of propagating a panic.
func (d *Downloader) guard(logger *slog.Logger, name string, hook func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("hook panicked", "hook", name, "panic", rec)
		}
	}()

	hook()
}

func (d *Downloader) materialize(payload *Payload, fileName, mime string) {
	ctx, span := d.tracer.Start(context.Background(), "downloader.materialize")
	span.SetAttributes(attribute.String("file", fileName), attribute.String("mime", mime))
	defer span.End()

	if err := d.materializer.Materialize(ctx, payload.Data, fileName, mime); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Error("materializing payload", "file", fileName, "error", err)
	}
}
