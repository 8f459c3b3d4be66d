package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
redis:
  addr: redis:6379
  db: 3
  results_db: 4
  lock_wait: 500ms
queue:
  name: prices
  url: https://example.com
  concurrency_limit: 4
  depth_limit: 2
  delay_ms: 250
  allow_list: ["example.com", "*.example.com"]
  block_list: ["ads.example.com"]
  headers:
    Accept-Language: en-US
  extract:
    title: h1
  max_pages: 100
browser:
  engine: chromedp
  user_agent: real-agent
  timeout: 10s
  respect_robots: false
  max_parallel: 3
results:
  sinks: [redis, postgres]
  postgres_dsn: postgres://localhost/crawl
server:
  port: 9090
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 3 || cfg.Redis.ResultsDB != 4 {
		t.Fatalf("expected redis overrides to apply: %+v", cfg.Redis)
	}
	if cfg.Redis.LockWait != 500*time.Millisecond || cfg.Redis.LockTTL != 5*time.Second {
		t.Fatalf("expected lock durations to decode: %+v", cfg.Redis)
	}
	if cfg.Queue.Name != "prices" || cfg.Queue.ConcurrencyLimit != 4 || cfg.Queue.DepthLimit != 2 {
		t.Fatalf("expected queue overrides to apply: %+v", cfg.Queue)
	}
	if got := cfg.Queue.Delay(); got != 250*time.Millisecond {
		t.Fatalf("expected delay 250ms, got %v", got)
	}
	if len(cfg.Queue.AllowList) != 2 || cfg.Queue.BlockList[0] != "ads.example.com" {
		t.Fatalf("expected link lists to load: %+v", cfg.Queue)
	}
	// Viper lowercases map keys.
	if cfg.Queue.Headers["accept-language"] != "en-US" || cfg.Queue.Extract["title"] != "h1" {
		t.Fatalf("expected maps to load: %+v", cfg.Queue)
	}
	if cfg.Browser.Engine != EngineChromedp || cfg.Browser.Timeout != 10*time.Second || cfg.Browser.RespectRobots {
		t.Fatalf("expected browser overrides to apply: %+v", cfg.Browser)
	}
	if !cfg.HasSink(SinkPostgres) || cfg.HasSink(SinkKafka) {
		t.Fatalf("unexpected sinks: %v", cfg.Results.Sinks)
	}
	if cfg.Server.Port != 9090 || cfg.Logging.Development {
		t.Fatalf("expected server/logging overrides to apply")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.ConcurrencyLimit != 10 || cfg.Queue.DepthLimit != 1 || cfg.Queue.Name != "default" {
		t.Fatalf("unexpected queue defaults: %+v", cfg.Queue)
	}
	if cfg.Browser.Engine != EngineColly {
		t.Fatalf("expected colly default, got %q", cfg.Browser.Engine)
	}
	if !cfg.HasSink(SinkRedis) || !cfg.HasSink(SinkFile) {
		t.Fatalf("expected redis and file sinks by default: %v", cfg.Results.Sinks)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Redis:   RedisConfig{Addr: "localhost:6379"},
			Queue:   QueueConfig{Name: "q", ConcurrencyLimit: 1, DepthLimit: 1},
			Browser: BrowserConfig{Engine: EngineColly},
			Server:  ServerConfig{Port: 8080},
		}
	}

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing redis", func(c *Config) { c.Redis.Addr = "" }, "redis.addr"},
		{"missing name", func(c *Config) { c.Queue.Name = "" }, "queue.name"},
		{"zero concurrency", func(c *Config) { c.Queue.ConcurrencyLimit = 0 }, "queue.concurrency_limit"},
		{"zero depth", func(c *Config) { c.Queue.DepthLimit = 0 }, "queue.depth_limit"},
		{"negative delay", func(c *Config) { c.Queue.DelayMs = -1 }, "queue.delay_ms"},
		{"negative max pages", func(c *Config) { c.Queue.MaxPages = -1 }, "queue.max_pages"},
		{"unknown engine", func(c *Config) { c.Browser.Engine = "lynx" }, "browser.engine"},
		{"chromedp without slots", func(c *Config) { c.Browser.Engine = EngineChromedp }, "browser.max_parallel"},
		{"auto without slots", func(c *Config) { c.Browser.Engine = EngineAuto }, "browser.max_parallel"},
		{"auto", func(c *Config) { c.Browser.Engine = EngineAuto; c.Browser.MaxParallel = 1 }, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"unknown sink", func(c *Config) { c.Results.Sinks = []string{"s3"} }, "unknown sink"},
		{"postgres without dsn", func(c *Config) { c.Results.Sinks = []string{SinkPostgres} }, "postgres_dsn"},
		{"kafka without broker", func(c *Config) { c.Results.Sinks = []string{SinkKafka} }, "kafka_broker"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
