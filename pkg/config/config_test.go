package config

import "testing"

func validConfig() *Config {
	return &Config{
		App:  AppConfig{Name: "sites-gateway", Environment: "development"},
		Log:  LogConfig{Level: "info"},
		Chain: ChainConfig{
			RPCURLs:          []Endpoint{{URL: "https://rpc.example.com", Retries: 2, Metric: 100}},
			MaxRedirectDepth: 3,
		},
		Aggregator: AggregatorConfig{
			URLs:                  []Endpoint{{URL: "https://agg.example.com", Retries: 2, Metric: 100}},
			MaxDecompressionBytes: 1024,
		},
	}
}

func TestValidateOK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsEmptyRPCList(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.RPCURLs = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty rpc_urls")
	}
}

func TestValidateRejectsEmptyAggregatorList(t *testing.T) {
	cfg := validConfig()
	cfg.Aggregator.URLs = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty aggregator urls")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := validConfig()
	cfg.App.Environment = "dev"
	if !cfg.IsDevelopment() {
		t.Fatal("expected dev environment to be development")
	}
	cfg.App.Environment = "production"
	if cfg.IsDevelopment() {
		t.Fatal("expected production environment not to be development")
	}
}

func TestCacheConfigAddress(t *testing.T) {
	c := CacheConfig{Host: "localhost", Port: 6379}
	if got := c.Address(); got != "localhost:6379" {
		t.Fatalf("got %q", got)
	}
}
