package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/adamwoolhether/savefile/client/throttle"
	"github.com/adamwoolhether/savefile/downloader"
)

// Client wraps the std-lib *http.Client.
// It sets a default *http.Client and *http.Transport, which
// can be customized via optional funcs.
type Client struct {
	c      *http.Client
	logger *slog.Logger
	flight singleflight.Group

	tokens oauth2.TokenSource
	mu     sync.RWMutex
	token  *oauth2.Token
}

func Build(optFns ...Option) (*Client, error) {
	client := &Client{
		c:      &http.Client{},
		logger: slog.Default(),
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	if opts.client != nil {
		client.c = opts.client
	}

	if opts.logger != nil {
		client.logger = opts.logger
	}

	if opts.timeout != nil {
		client.c.Timeout = *opts.timeout
	}

	if opts.noFollowRedirects {
		client.c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	client.tokens = opts.tokens

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case opts.client != nil && opts.client.Transport != nil:
		transport = opts.client.Transport
	default:
		transport = http.DefaultTransport
	}
	if opts.userAgent != "" {
		transport = userAgent{value: opts.userAgent, base: transport}
	}
	if opts.throttle != nil {
		rt, err := throttle.NewRoundTripper(opts.throttle.RPS, opts.throttle.Burst, func() *slog.Logger { return client.logger }, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		transport = rt
	}
	client.c.Transport = transport

	return client, nil
}

// Fetch returns a RequestFunc that performs method against u and yields
// the body as a payload typed by the response's Content-Type. Overlapping
// calls whose built requests match on method, URL, headers, cookies and
// body share a single HTTP round trip; the first caller's context
// governs it.
func (c *Client) Fetch(method string, u *url.URL, expCode int, opts ...RequestOption) downloader.RequestFunc {
	return func(ctx context.Context) (*downloader.Response, error) {
		req, err := Request(ctx, u, method, opts...)
		if err != nil {
			return nil, err
		}

		key, err := flightKey(req)
		if err != nil {
			return nil, err
		}

		v, err, shared := c.flight.Do(key, func() (any, error) {
			return c.fetch(req, expCode)
		})
		if shared {
			c.logger.Debug("fetch coalesced", "method", method, "url", u.String())
		}
		if err != nil {
			return nil, err
		}

		payload := *v.(*downloader.Payload)

		return &downloader.Response{Data: &payload}, nil
	}
}

// RefreshToken returns a before-step that fetches a fresh token from the
// configured token source and uses it for subsequent fetches. A failed
// refresh is logged and the chain still proceeds.
func (c *Client) RefreshToken() downloader.Step {
	return func(proceed func()) {
		go func() {
			defer proceed()

			if c.tokens == nil {
				c.logger.Warn("refresh token step without a token source")
				return
			}

			tok, err := c.tokens.Token()
			if err != nil {
				c.logger.Error("refreshing token", "error", err)
				return
			}

			c.mu.Lock()
			c.token = tok
			c.mu.Unlock()
		}()
	}
}

// Request instantiates an *http.Request with the provided information.
// It's just a convenience method that wraps the public Request func.
func (c *Client) Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	return Request(ctx, reqURL, method, opts...)
}

// URL creates a url.URL for use in Request.
// It's just a convenience method that wraps the public URL func.
func (c *Client) URL(scheme, host, path string, opts ...URLOption) *url.URL {
	return URL(scheme, host, path, opts...)
}

func (c *Client) fetch(req *http.Request, expCode int) (*downloader.Payload, error) {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()
	if tok != nil {
		tok.SetAuthHeader(req)
	}

	var payload downloader.Payload
	readFn := func(resp *http.Response) error {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading body: %w", err)
		}

		payload = downloader.Payload{
			Type: resp.Header.Get("Content-Type"),
			Data: b,
		}

		return nil
	}

	if err := c.exec(req, expCode, readFn); err != nil {
		return nil, err
	}

	return &payload, nil
}

// flightKey identifies a built request by its method, URL, headers
// (cookies included) and a digest of its body.
func flightKey(req *http.Request) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "%s %s\n", req.Method, req.URL.String())

	if err := req.Header.Write(h); err != nil {
		return "", fmt.Errorf("hashing headers: %w", err)
	}

	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return "", fmt.Errorf("reading request body: %w", err)
		}
		defer body.Close()

		if _, err := io.Copy(h, body); err != nil {
			return "", fmt.Errorf("hashing request body: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// exec runs the request and injected function on success after validating the expected status code.
func (c *Client) exec(req *http.Request, expCode int, fn execFn) error {
	resp, err := c.c.Do(req)
	if err != nil {
		return fmt.Errorf("exec http do: %w", err)
	}

	defer func() {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			c.logger.Error("failed to discard unused body", "error", err)
		}
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != expCode {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
		if err != nil {
			b = []byte("unable to read body")
		}

		sentinel := ErrUnexpectedStatusCode
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			sentinel = errors.Join(ErrAuthFailure, ErrUnexpectedStatusCode)
		}

		return &UnexpectedStatusError{
			StatusCode: resp.StatusCode,
			Body:       string(b),
			Err:        sentinel,
		}
	}

	if err := fn(resp); err != nil {
		return fmt.Errorf("exec fn: %w", err)
	}

	return nil
}

// Request instantiates an *http.Request with the provided information.
// A payload is JSON-encoded; Content-Type defaults to `application/json`
// when one is given, unless overridden via WithContentType.
func Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	var settings requestOpts
	for _, opt := range opts {
		err := opt(&settings)
		if err != nil {
			return nil, err
		}
	}

	var body io.Reader
	if settings.body != nil {
		var payload bytes.Buffer
		if err := json.NewEncoder(&payload).Encode(settings.body); err != nil {
			return nil, fmt.Errorf("encoding request payload: %w", err)
		}
		body = &payload
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	for _, cookie := range settings.cookies {
		req.AddCookie(cookie)
	}

	switch {
	case settings.contentType != nil:
		req.Header.Set("Content-Type", *settings.contentType)
	case settings.body != nil:
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range settings.headers {
		for _, element := range v {
			req.Header.Add(k, element)
		}
	}

	return req, nil
}

// URL creates a url.URL for use in Request.
func URL(scheme, host, path string, opts ...URLOption) *url.URL {
	var settings urlOpts
	for _, opt := range opts {
		opt(&settings)
	}

	if settings.port != nil {
		host = fmt.Sprintf("%s:%d", host, *settings.port)
	}

	endpoint := url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   path,
	}

	if settings.queryStrings != nil {
		queryParams := url.Values{}
		for k, v := range settings.queryStrings {
			queryParams.Add(k, v)
		}

		endpoint.RawQuery = queryParams.Encode()
	}

	return &endpoint
}
