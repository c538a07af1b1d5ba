package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/adamwoolhether/savefile/client"
	"github.com/adamwoolhether/savefile/download"
	"github.com/adamwoolhether/savefile/downloader"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	root := &cobra.Command{
		Use:          "savefile",
		Short:        "Fetch a URL once and save the response as a file",
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(newGetCmd(&configPath, &debug))

	return root
}

func newGetCmd(configPath *string, debug *bool) *cobra.Command {
	var (
		out      string
		mimeType string
		dir      string
	)

	cmd := &cobra.Command{
		Use:   "get URL",
		Short: "Download URL into a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if dir != "" {
				cfg.Dir = dir
			}

			level := slog.LevelInfo
			if *debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			u, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parsing url: %w", err)
			}

			return get(cmd.Context(), logger, cfg, u, out, mimeType)
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file name (default: last URL path segment)")
	cmd.Flags().StringVarP(&mimeType, "mime", "m", "", "MIME type (default: response Content-Type)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Destination directory")

	return cmd
}

func get(ctx context.Context, logger *slog.Logger, cfg config, u *url.URL, out, mimeType string) error {
	clientOpts := []client.Option{client.WithLogger(logger)}
	if cfg.UserAgent != "" {
		clientOpts = append(clientOpts, client.WithUserAgent(cfg.UserAgent))
	}
	if cfg.Timeout > 0 {
		clientOpts = append(clientOpts, client.WithTimeout(cfg.Timeout))
	}
	if cfg.Throttle != nil {
		clientOpts = append(clientOpts, client.WithThrottle(cfg.Throttle.RPS, cfg.Throttle.Burst))
	}
	if cfg.Token != "" {
		clientOpts = append(clientOpts, client.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})))
	}

	c, err := client.Build(clientOpts...)
	if err != nil {
		return fmt.Errorf("building client: %w", err)
	}

	saved := make(chan error, 1)
	fm := download.FileMaterializer{Dir: cfg.Dir, Logger: logger}
	materializer := downloader.MaterializerFunc(func(ctx context.Context, data []byte, fileName, mime string) error {
		err := fm.Materialize(ctx, data, fileName, mime)
		saved <- err
		return err
	})

	d, err := downloader.New(downloader.WithLogger(logger), downloader.WithMaterializer(materializer))
	if err != nil {
		return fmt.Errorf("building downloader: %w", err)
	}

	var failure error
	settled := make(chan struct{})

	d.Before(func(proceed func()) {
		logger.Info("fetching", "url", u.String())
		proceed()
	})
	if cfg.Token != "" {
		d.Before(c.RefreshToken())
	}
	d.OnError(func(err error) { failure = err }).
		After(func() { close(settled) })

	d.Request(c.Fetch(http.MethodGet, u, http.StatusOK, client.WithHeaders(cfg.headers())))

	select {
	case <-settled:
	case <-ctx.Done():
		return ctx.Err()
	}
	if failure != nil {
		return fmt.Errorf("fetching %s: %w", u, failure)
	}

	payload, err := d.Wait(ctx)
	if err != nil {
		return err
	}

	if out == "" {
		out = fileNameFor(u)
	}
	if mimeType == "" {
		mimeType = payload.ContentType()
	}

	d.Download(out, mimeType)

	if err := <-saved; err != nil {
		return fmt.Errorf("saving %s: %w", out, err)
	}

	logger.Info("saved", "file", out, "dir", cfg.Dir, "bytes", len(payload.Data))

	return nil
}

func fileNameFor(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "download"
	}

	return name
}

