package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/conneroisu/kiln/internal/build"
	"github.com/conneroisu/kiln/internal/config"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/notify"
	"github.com/conneroisu/kiln/internal/scheduler"
	"github.com/conneroisu/kiln/internal/transform"
	"github.com/conneroisu/kiln/internal/websocket"
)

// app is one wired kiln instance rooted at the working directory.
type app struct {
	root   string
	cfg    *config.Config
	logger *logging.KilnLogger

	fs       afero.Fs
	pipeline *build.Pipeline
	sched    *scheduler.Scheduler
	metrics  *build.Metrics
	cache    *build.SQLiteCache
	hub      *websocket.Hub
}

type appOptions struct {
	// live wires the websocket hub as the pipeline's reloader.
	live bool
}

func newApp(opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	root, err := os.Getwd()
	if err != nil {
		return nil, kerrors.NewIOError(kerrors.ErrCodeReadFailed, "cannot determine working directory", err)
	}
	fs := afero.NewBasePathFs(afero.NewOsFs(), root)

	transformers, err := transform.ForConfig(cfg, root, afero.NewIOFS(fs))
	if err != nil {
		return nil, err
	}

	a := &app{root: root, cfg: cfg, logger: logger, fs: fs, metrics: build.NewMetrics()}

	var cache build.TransformCache
	if cfg.Cache.Persist {
		a.cache, err = build.OpenCache(filepath.Join(root, filepath.FromSlash(cfg.Cache.Path)))
		if err != nil {
			return nil, err
		}
		cache = a.cache
	}

	var reloader build.Reloader
	if opts.live {
		a.hub = websocket.NewHub(logger, cfg.Server.Host+":*", "localhost:*", "127.0.0.1:*")
		reloader = a.hub
	}

	notifiers := []notify.Notifier{notify.NewConsole(logger)}
	if cfg.Notify.Desktop {
		notifiers = append(notifiers, notify.NewDesktop(cfg.Server.LogPrefix))
	}

	a.pipeline, err = build.New(build.Options{
		Fs:            fs,
		Specs:         cfg.Specs(),
		Mode:          cfg.AssetMode(),
		Transformers:  transformers,
		Workers:       cfg.Build.Workers,
		Cache:         cache,
		CachedClasses: cfg.CachedClasses(),
		Metrics:       a.metrics,
		Reloader:      reloader,
		Errors:        kerrors.NewErrorHandler(logger, notify.Multi(notifiers...)),
		Logger:        logger,
	})
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}
	a.sched = scheduler.New(a.pipeline, logger)

	logger.Debug(context.Background(), "Configuration loaded",
		"mode", cfg.Mode,
		"root", root,
		"workers", cfg.Build.Workers)
	return a, nil
}

// Close releases the cache and disconnects browsers.
func (a *app) Close(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Shutdown(ctx); err != nil {
			a.logger.Warn(ctx, err, "Websocket hub shutdown failed")
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn(ctx, err, "Cache close failed")
		}
	}
}

func newLogger(cfg *config.Config) (*logging.KilnLogger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, kerrors.NewConfigError(kerrors.ErrCodeConfigInvalid, "invalid log level", err)
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    os.Stderr,
		Component: cfg.Server.LogPrefix,
	}), nil
}
