package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/nduplat/motorcycle-service-app-sub002/internal/config"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/runtime"
	grpcserver "github.com/nduplat/motorcycle-service-app-sub002/internal/server/grpc"
	httpserver "github.com/nduplat/motorcycle-service-app-sub002/internal/server/http"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

// Overrides are command-line values that win over file and environment.
// Empty fields leave the resolved config untouched.
type Overrides struct {
	DataDir   string
	GRPCAddr  string
	HTTPAddr  string
	Store     string
	Fsync     string
	LogLevel  string
	LogFormat string
}

// Options configure Run.
type Options struct {
	Config cfgpkg.Config
	// Logger, when nil, is built from Config.Log.
	Logger logpkg.Logger
}

// ResolveConfig layers defaults, an optional config file, .env, WALKIN_*
// variables and finally flag overrides.
func ResolveConfig(path string, ov Overrides) (cfgpkg.Config, error) {
	if err := cfgpkg.LoadDotEnv(); err != nil {
		return cfgpkg.Config{}, err
	}
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.DataDir, ov.DataDir)
	set(&cfg.GRPCAddr, ov.GRPCAddr)
	set(&cfg.HTTPAddr, ov.HTTPAddr)
	set(&cfg.Store.Backend, ov.Store)
	set(&cfg.Store.Fsync, ov.Fsync)
	set(&cfg.Log.Level, ov.LogLevel)
	set(&cfg.Log.Format, ov.LogFormat)
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	return cfg, cfg.Validate()
}

// Run starts gRPC and HTTP servers and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		l, err := logpkg.ApplyConfig(&cfg.Log)
		if err != nil {
			return err
		}
		logger = l
	}
	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("Starting walk-in queue server",
		logpkg.Str("grpc", cfg.GRPCAddr),
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("store", cfg.Store.Backend),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
	)

	gsrv := grpcserver.New(rt, logger, 0)
	hsrv := httpserver.New(rt, logger)

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := gsrv.ListenAndServe(sctx, cfg.GRPCAddr); err != nil && sctx.Err() == nil {
			logger.Error("grpc server failed", logpkg.Err(err))
			errCh <- err
		}
	}()
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, cfg.HTTPAddr); err != nil && sctx.Err() == nil {
			logger.Error("http server failed", logpkg.Err(err))
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-sctx.Done():
	case runErr = <-errCh:
		stop()
	}
	// Shut servers down before closing the runtime.
	gsrv.Close()
	hsrv.Close()
	wg.Wait()
	logger.Info("server stopped")
	return runErr
}
