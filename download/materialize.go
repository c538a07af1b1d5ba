package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Materialize writes body to a hidden temp file in dir and renames it to
// the target's name. The temp file is closed and removed on every path,
// so a failed or cancelled write leaves nothing behind. It returns the
// final path.
func Materialize(ctx context.Context, body io.Reader, dir string, target Target, logger *slog.Logger, optFns ...Option) (string, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return "", fmt.Errorf("applying option: %w", err)
		}
	}

	if err := target.Validate(); err != nil {
		return "", err
	}

	if logger == nil {
		logger = slog.Default()
	}

	if dir == "" {
		dir = "."
	}
	destPath := filepath.Join(dir, target.Name())

	if opts.skipExisting {
		if _, err := os.Stat(destPath); err == nil {
			logger.Info("skipping existing file", "path", destPath)
			return destPath, nil
		}
	}

	body = &contextReader{ctx: ctx, r: body}

	file, err := os.CreateTemp(dir, ".savefile-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	defer func() {
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Error("defer closing temp file", "error", err)
		}
		if err := os.Remove(file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Error("failed to remove temp file", "error", err)
		}
	}()

	var writer io.Writer = file
	if opts.checksum != nil {
		writer = io.MultiWriter(writer, opts.checksum)
	}

	if _, err := io.Copy(writer, body); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", ErrDownloadCancelled, err)
		}

		return "", fmt.Errorf("copying payload: %w", err)
	}

	if err := opts.checksum.Verify(); err != nil {
		return "", err
	}

	if err := file.Sync(); err != nil {
		return "", fmt.Errorf("syncing temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(file.Name(), destPath); err != nil {
		return "", fmt.Errorf("renaming temp file: %w", err)
	}

	logger.Debug("file materialized", "path", destPath, "mime", target.MIME)

	return destPath, nil
}

// FileMaterializer saves payloads under Dir. The zero value saves
// into the working directory.
type FileMaterializer struct {
	Dir     string
	Logger  *slog.Logger
	Options []Option
}

// Materialize implements the downloader's Materializer.
func (fm FileMaterializer) Materialize(ctx context.Context, data []byte, fileName, mime string) error {
	_, err := Materialize(ctx, bytes.NewReader(data), fm.Dir, Target{FileName: fileName, MIME: mime}, fm.Logger, fm.Options...)
	return err
}

// contextReader stops a copy once ctx ends.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}

	return cr.r.Read(p)
}
