// Package client provides the HTTP transport that feeds a
// [github.com/adamwoolhether/savefile/downloader.Downloader].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeout(10 * time.Second),
//		client.WithUserAgent("myapp/1.0"),
//		client.WithThrottle(5, 2),
//	)
//
// # Fetching
//
// [Client.Fetch] returns a downloader.RequestFunc. Fetches of the same
// method and URL that overlap in time share one HTTP call, even when
// they come from different Downloaders:
//
//	u := client.URL("https", "api.example.com", "/v1/export")
//	d.Request(c.Fetch(http.MethodGet, u, http.StatusOK))
//
// # Auth
//
// With [WithTokenSource], [Client.RefreshToken] returns a before-step
// that refreshes the bearer token ahead of each request cycle:
//
//	d.Before(c.RefreshToken())
package client
