// Package throttle rate-limits outbound fetches with a token bucket from
// [golang.org/x/time/rate].
//
// Wrap a transport with [NewRoundTripper]:
//
//	rt, err := throttle.NewRoundTripper(
//		10, // fetches per second
//		5,  // burst
//		func() *slog.Logger { return slog.Default() },
//		http.DefaultTransport,
//	)
//
// A fetch that finds the bucket empty blocks until a token frees up or
// its context ends.
package throttle
