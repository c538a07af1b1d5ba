package savefile

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/savefile/downloader"
)

// ————————————————————————————————————————————————————————————————————
// Type aliases – re-export user-facing types from [downloader].
// ————————————————————————————————————————————————————————————————————

type (
	// Downloader coordinates a single request and saves its payload.
	Downloader = downloader.Downloader

	// Payload is a response body and its declared content type.
	Payload = downloader.Payload

	// Step is a before-chain step.
	Step = downloader.Step

	// RequestFunc issues the network request for a request cycle.
	RequestFunc = downloader.RequestFunc

	// ServerError is a failure reported inside a successful response.
	ServerError = downloader.ServerError
)

// ————————————————————————————————————————————————————————————————————
// Sentinel errors
// ————————————————————————————————————————————————————————————————————

var (
	// ErrServerReported matches failures carried in a JSON body with code 500.
	ErrServerReported = downloader.ErrServerReported

	// ErrNoRequest indicates Wait was called before any request.
	ErrNoRequest = downloader.ErrNoRequest
)

// ————————————————————————————————————————————————————————————————————
// Option forwarding functions
// ————————————————————————————————————————————————————————————————————

// WithLogger injects a custom [slog.Logger] into the Downloader.
func WithLogger(logger *slog.Logger) downloader.Option { return downloader.WithLogger(logger) }

// WithTracer injects the tracer used for request spans.
func WithTracer(tracer trace.Tracer) downloader.Option { return downloader.WithTracer(tracer) }

// WithDir sets the directory payloads are saved into.
func WithDir(dir string) downloader.Option { return downloader.WithDir(dir) }

// WithMaterializer replaces the default file materializer.
func WithMaterializer(m downloader.Materializer) downloader.Option {
	return downloader.WithMaterializer(m)
}
