package client_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"

	"github.com/adamwoolhether/savefile/client"
	"github.com/adamwoolhether/savefile/client/throttle"
	"github.com/adamwoolhether/savefile/downloader"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func serverURL(t *testing.T, ts *httptest.Server) *url.URL {
	t.Helper()

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("failed to parse test server URL: %v", err)
	}

	return u
}

func TestClient_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "" {
			t.Errorf("expected no Content-Type on a bodiless request, got %q", ct)
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("hello"))
	}))
	defer ts.Close()

	c, err := client.Build(client.WithLogger(discard))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	resp, err := c.Fetch(http.MethodGet, serverURL(t, ts), http.StatusOK)(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &downloader.Payload{Type: "text/plain", Data: []byte("hello")}
	if diff := cmp.Diff(want, resp.Data); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_Fetch_UnexpectedStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantAuth bool
	}{
		{name: "not found", status: http.StatusNotFound},
		{name: "unauthorized", status: http.StatusUnauthorized, wantAuth: true},
		{name: "forbidden", status: http.StatusForbidden, wantAuth: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer ts.Close()

			c, err := client.Build(client.WithLogger(discard))
			if err != nil {
				t.Fatalf("failed to create client: %v", err)
			}

			_, err = c.Fetch(http.MethodGet, serverURL(t, ts), http.StatusOK)(t.Context())

			var statusErr *client.UnexpectedStatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("expected UnexpectedStatusError, got %v", err)
			}
			if statusErr.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, statusErr.StatusCode)
			}
			if statusErr.Body != "nope" {
				t.Errorf("expected body %q, got %q", "nope", statusErr.Body)
			}
			if !errors.Is(err, client.ErrUnexpectedStatusCode) {
				t.Errorf("expected ErrUnexpectedStatusCode, got %v", err)
			}
			if got := errors.Is(err, client.ErrAuthFailure); got != tt.wantAuth {
				t.Errorf("expected ErrAuthFailure match %v, got %v", tt.wantAuth, got)
			}
		})
	}
}

func TestClient_Fetch_Coalesced(t *testing.T) {
	var calls atomic.Int32
	hit := make(chan struct{}, 1)
	release := make(chan struct{})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hit <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("shared"))
	}))
	defer ts.Close()

	c, err := client.Build(client.WithLogger(discard))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	fetch := c.Fetch(http.MethodGet, serverURL(t, ts), http.StatusOK)

	first, err := downloader.New(downloader.WithLogger(discard))
	if err != nil {
		t.Fatalf("failed to create downloader: %v", err)
	}
	second := first.Clone()

	first.Request(fetch)
	<-hit

	second.Request(fetch)
	time.Sleep(50 * time.Millisecond)
	close(release)

	for _, d := range []*downloader.Downloader{first, second} {
		p, err := d.Wait(t.Context())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Text() != "shared" {
			t.Errorf("expected %q, got %q", "shared", p.Text())
		}
	}

	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 server call, got %d", n)
	}
}

func TestClient_Fetch_DistinctPayloadsNotCoalesced(t *testing.T) {
	var calls atomic.Int32
	hit := make(chan struct{}, 2)
	release := make(chan struct{})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hit <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.Copy(w, r.Body)
	}))
	defer ts.Close()

	c, err := client.Build(client.WithLogger(discard))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	type body struct {
		Report string `json:"report"`
	}

	type result struct {
		got string
		err error
	}

	fetchAsync := func(name string) <-chan result {
		out := make(chan result, 1)
		fn := c.Fetch(http.MethodPost, serverURL(t, ts), http.StatusOK, client.WithPayload(body{Report: name}))
		go func() {
			resp, err := fn(t.Context())
			if err != nil {
				out <- result{err: err}
				return
			}
			out <- result{got: resp.Data.Text()}
		}()
		return out
	}

	a := fetchAsync("A")
	b := fetchAsync("B")

	for range 2 {
		select {
		case <-hit:
		case <-time.After(time.Second):
			close(release)
			t.Fatal("expected both requests to reach the server")
		}
	}
	close(release)

	want := map[string]string{
		"A": "{\"report\":\"A\"}\n",
		"B": "{\"report\":\"B\"}\n",
	}
	for name, ch := range map[string]<-chan result{"A": a, "B": b} {
		res := <-ch
		if res.err != nil {
			t.Fatalf("fetch %s: unexpected error: %v", name, res.err)
		}
		if res.got != want[name] {
			t.Errorf("fetch %s: expected %q, got %q", name, want[name], res.got)
		}
	}

	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 server calls, got %d", n)
	}
}

func TestClient_Fetch_DistinctHeadersNotCoalesced(t *testing.T) {
	var calls atomic.Int32
	hit := make(chan struct{}, 2)
	release := make(chan struct{})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hit <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(r.Header.Get("X-Tenant")))
	}))
	defer ts.Close()

	c, err := client.Build(client.WithLogger(discard))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	errs := make(chan error, 2)
	for _, tenant := range []string{"one", "two"} {
		fn := c.Fetch(http.MethodGet, serverURL(t, ts), http.StatusOK,
			client.WithHeaders(map[string][]string{"X-Tenant": {tenant}}))
		go func() {
			resp, err := fn(t.Context())
			switch {
			case err != nil:
				errs <- err
			case resp.Data.Text() != tenant:
				errs <- fmt.Errorf("tenant %s got %q", tenant, resp.Data.Text())
			default:
				errs <- nil
			}
		}()
	}

	for range 2 {
		select {
		case <-hit:
		case <-time.After(time.Second):
			close(release)
			t.Fatal("expected both requests to reach the server")
		}
	}
	close(release)

	for range 2 {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 server calls, got %d", n)
	}
}

func TestClient_RefreshToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("authorized"))
	}))
	defer ts.Close()

	c, err := client.Build(
		client.WithLogger(discard),
		client.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "secret"})),
	)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	d, err := downloader.New(downloader.WithLogger(discard))
	if err != nil {
		t.Fatalf("failed to create downloader: %v", err)
	}

	d.Before(c.RefreshToken()).Request(c.Fetch(http.MethodGet, serverURL(t, ts), http.StatusOK))

	p, err := d.Wait(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Text() != "authorized" {
		t.Errorf("expected %q, got %q", "authorized", p.Text())
	}
}

func TestClient_RefreshToken_NoSource(t *testing.T) {
	c, err := client.Build(client.WithLogger(discard))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	done := make(chan struct{})
	c.RefreshToken()(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh step did not proceed")
	}
}

func TestClient_WithUserAgent(t *testing.T) {
	expectedUA := "TestUserAgent/1.0"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != expectedUA {
			t.Errorf("expected User-Agent %q, got %q", expectedUA, ua)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	// WithThrottle applied before WithUserAgent; order shouldn't matter.
	c, err := client.Build(
		client.WithThrottle(100, 10),
		client.WithUserAgent(expectedUA),
		client.WithLogger(discard),
	)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := c.Fetch(http.MethodGet, serverURL(t, ts), http.StatusOK)(t.Context()); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}

func TestClient_WithTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()

	c, err := client.Build(client.WithTimeout(20*time.Millisecond), client.WithLogger(discard))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := c.Fetch(http.MethodGet, serverURL(t, ts), http.StatusOK)(t.Context()); err == nil {
		t.Error("expected timeout error")
	}
}

func TestClient_WithNoFollowRedirects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer ts.Close()

	c, err := client.Build(client.WithNoFollowRedirects(), client.WithLogger(discard))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := c.Fetch(http.MethodGet, serverURL(t, ts), http.StatusFound)(t.Context()); err != nil {
		t.Errorf("expected the redirect response itself, got: %v", err)
	}
}

func TestClient_InvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		opt    client.Option
		expErr error
	}{
		{name: "nil client", opt: client.WithClient(nil)},
		{name: "nil transport", opt: client.WithTransport(nil)},
		{name: "negative timeout", opt: client.WithTimeout(-time.Second)},
		{name: "zero throttle", opt: client.WithThrottle(0, 10), expErr: throttle.ErrMustNotBeZero},
		{name: "nil token source", opt: client.WithTokenSource(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Build(tt.opt)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.expErr != nil && !errors.Is(err, tt.expErr) {
				t.Errorf("expected %v, got %v", tt.expErr, err)
			}
		})
	}
}

func TestRequest(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}

	u := client.URL("https", "example.com", "/export")

	req, err := client.Request(context.Background(), u, http.MethodPost,
		client.WithPayload(body{Name: "report"}),
		client.WithHeaders(map[string][]string{"X-Trace": {"a", "b"}}),
		client.WithCookies(&http.Cookie{Name: "session", Value: "xyz"}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}
	if diff := cmp.Diff([]string{"a", "b"}, req.Header.Values("X-Trace")); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if c, err := req.Cookie("session"); err != nil || c.Value != "xyz" {
		t.Errorf("expected session cookie, got %v (%v)", c, err)
	}

	b, _ := io.ReadAll(req.Body)
	if string(b) != "{\"name\":\"report\"}\n" {
		t.Errorf("unexpected body %q", b)
	}

	if _, err := client.Request(context.Background(), u, http.MethodGet, client.WithContentType("")); err == nil {
		t.Error("expected error for empty content type")
	}
}

func TestURL(t *testing.T) {
	u := client.URL("https", "example.com", "/api/v1",
		client.WithPort(8443),
		client.WithQueryStrings(map[string]string{"key": "value"}),
	)

	if got, want := u.String(), "https://example.com:8443/api/v1?key=value"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
