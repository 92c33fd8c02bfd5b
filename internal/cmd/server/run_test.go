package serverrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	cfgpkg "github.com/nduplat/motorcycle-service-app-sub002/internal/config"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

func TestResolveConfigLayering(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "walkin.yaml")
	data := []byte("httpAddr: \":7000\"\ngrpcAddr: \":7001\"\nstore:\n  backend: memory\nlog:\n  level: warn\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("WALKIN_GRPC_ADDR", ":7101")
	cfg, err := ResolveConfig(file, Overrides{LogLevel: "debug", DataDir: dir})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.HTTPAddr != ":7000" {
		t.Errorf("file value lost: %q", cfg.HTTPAddr)
	}
	if cfg.GRPCAddr != ":7101" {
		t.Errorf("env should win over file: %q", cfg.GRPCAddr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("flag should win over file: %q", cfg.Log.Level)
	}
	if cfg.DataDir != dir {
		t.Errorf("data dir: %q", cfg.DataDir)
	}
}

func TestResolveConfigDataDirFallback(t *testing.T) {
	cfg, err := ResolveConfig("", Overrides{Store: cfgpkg.BackendMemory})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.DataDir == "" {
		t.Fatal("Expected DataDir to be set after fallback")
	}
	if !filepath.IsAbs(cfg.DataDir) && !filepath.HasPrefix(cfg.DataDir, "./") {
		t.Errorf("Expected DataDir to be absolute or start with ./, got %s", cfg.DataDir)
	}
}

func TestResolveConfigRejectsUnknownBackend(t *testing.T) {
	if _, err := ResolveConfig("", Overrides{Store: "sqlite"}); err == nil {
		t.Fatal("expected validation error")
	}
}

// TestRunIntegration starts both servers on ephemeral ports and stops them
// when the context expires.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Store.Fsync = "never"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := Run(ctx, Options{Config: cfg, Logger: logpkg.NewNopLogger()}); err != nil {
		t.Errorf("run: %v", err)
	}
}
