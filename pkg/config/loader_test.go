package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoaderDefaultsAreValidModuloEndpoints(t *testing.T) {
	l := NewLoader(WithConfigPaths("/nonexistent/config.yaml"))
	_, err := l.Load()
	// Defaults alone have no rpc/aggregator URLs configured, so validation
	// is expected to fail until a config file or env supplies them.
	if err == nil {
		t.Fatal("expected validation error without endpoint configuration")
	}
}

func TestLoaderReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
app:
  name: test-gateway
chain:
  rpc_urls:
    - url: https://rpc-a.example.com
      retries: 2
      metric: 100
aggregator:
  urls:
    - url: https://agg-a.example.com
      retries: 1
      metric: 50
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(WithConfigPaths(path))
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.App.Name != "test-gateway" {
		t.Fatalf("got app name %q", cfg.App.Name)
	}
	if len(cfg.Chain.RPCURLs) != 1 || cfg.Chain.RPCURLs[0].URL != "https://rpc-a.example.com" {
		t.Fatalf("unexpected rpc urls: %+v", cfg.Chain.RPCURLs)
	}
}
