package download

import (
	"errors"
	"hash"
)

// Option defines optional settings for materializing files.
//
// WithChecksum verifies the written bytes against a hex-encoded digest
// before the file is moved into place. The hash is reset each time the
// option is applied, so it may be reused across calls but not across
// concurrent ones.
//
// WithSkipExisting causes Materialize to leave an existing destination
// untouched and return its path.
type Option func(*options) error

type options struct {
	checksum     *checksumVerifier
	skipExisting bool
}

func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}

		if expected == "" {
			return errors.New("expected checksum must not be empty")
		}

		h.Reset()
		opts.checksum = &checksumVerifier{hash: h, expected: expected}
		return nil
	}
}

func WithSkipExisting() Option {
	return func(opts *options) error {
		opts.skipExisting = true
		return nil
	}
}
