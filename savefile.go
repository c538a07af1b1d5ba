// Package savefile exposes builders for the request coordinator and the
// HTTP client that feeds it.
package savefile

import (
	"github.com/adamwoolhether/savefile/client"
	"github.com/adamwoolhether/savefile/downloader"
)

// New instantiates an idle *downloader.Downloader with the provided options.
// If not specified, payloads are saved into the working directory.
func New(opts ...downloader.Option) (*downloader.Downloader, error) {
	return downloader.New(opts...)
}

// NewClient instantiates a new *client.Client with the provided options.
// If not specified, a fresh http.Client over http.DefaultTransport is used.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}
