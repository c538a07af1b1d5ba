package downloader

import (
	"context"
	"errors"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrServerReported is matched by [ServerError] via errors.Is.
	ErrServerReported = errors.New("server reported failure")
	// ErrEmptyResponse is returned when a RequestFunc yields no payload.
	ErrEmptyResponse = errors.New("empty response")
	// ErrMalformedPayload is returned when a JSON payload cannot be decoded
	// into an object.
	ErrMalformedPayload = errors.New("malformed json payload")
	// ErrNoRequest is returned by Wait when no request was ever made.
	ErrNoRequest = errors.New("no request made")
	// ErrPanic wraps a panic raised by a step or a RequestFunc.
	ErrPanic = errors.New("panic during request")
)

// serverErrorCode is the body code that marks a structured error payload.
const serverErrorCode = 500

// ServerError is a failure reported inside a successful transport
// response. Its message is the body's msg field, verbatim.
type ServerError struct {
	Code int
	Msg  string
}

func (e *ServerError) Error() string {
	return e.Msg
}

func (e *ServerError) Is(target error) bool {
	return target == ErrServerReported
}

// Payload is a byte-stream response body and its declared content type.
type Payload struct {
	Type string
	Data []byte
}

// Text returns the payload decoded as a string.
func (p *Payload) Text() string {
	return string(p.Data)
}

// ContentType returns the declared type, or one sniffed from the bytes
// when none was declared. Classification does not use it.
func (p *Payload) ContentType() string {
	if p.Type != "" {
		return p.Type
	}

	return mimetype.Detect(p.Data).String()
}

// IsJSON reports whether the declared type is JSON. Undeclared
// payloads are never treated as JSON, whatever their bytes look like.
func (p *Payload) IsJSON() bool {
	if p.Type == "" {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(p.Type)
	if err != nil {
		return false
	}

	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// Response is what a RequestFunc yields.
type Response struct {
	Data *Payload
}

// RequestFunc issues the network request. It is called at most once per
// request cycle, after the before-chain has finished.
type RequestFunc func(ctx context.Context) (*Response, error)

// Step is a before-chain step. It must call proceed exactly once to let
// the chain advance; it may do asynchronous work first.
type Step func(proceed func())

// Materializer saves a payload as a named file.
type Materializer interface {
	Materialize(ctx context.Context, data []byte, fileName, mime string) error
}

// MaterializerFunc adapts a plain func into a [Materializer].
type MaterializerFunc func(ctx context.Context, data []byte, fileName, mime string) error

func (f MaterializerFunc) Materialize(ctx context.Context, data []byte, fileName, mime string) error {
	return f(ctx, data, fileName, mime)
}
