// Package config loads and validates crawl queue configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Browser engines.
const (
	EngineColly    = "colly"
	EngineChromedp = "chromedp"
	// EngineAuto fetches with colly and re-renders client-side shells with chromedp.
	EngineAuto = "auto"
)

// Result sink names.
const (
	SinkRedis    = "redis"
	SinkFile     = "file"
	SinkPostgres = "postgres"
	SinkKafka    = "kafka"
)

// Config captures every knob loaded via Viper.
type Config struct {
	Redis   RedisConfig   `mapstructure:"redis"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Browser BrowserConfig `mapstructure:"browser"`
	Results ResultsConfig `mapstructure:"results"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RedisConfig points at the shared queue store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// ResultsDB keeps results apart from queue state so a reset does not touch them.
	ResultsDB int           `mapstructure:"results_db"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
	LockWait  time.Duration `mapstructure:"lock_wait"`
}

// QueueConfig describes the crawl itself.
type QueueConfig struct {
	Name             string            `mapstructure:"name"`
	URL              string            `mapstructure:"url"`
	ConcurrencyLimit int               `mapstructure:"concurrency_limit"`
	DepthLimit       int               `mapstructure:"depth_limit"`
	DelayMs          int               `mapstructure:"delay_ms"`
	AllowList        []string          `mapstructure:"allow_list"`
	BlockList        []string          `mapstructure:"block_list"`
	Headers          map[string]string `mapstructure:"headers"`
	// Extract maps result fields to CSS selectors.
	Extract map[string]string `mapstructure:"extract"`
	// MaxPages stops the queue once this many jobs are done. Zero means no cap.
	MaxPages int `mapstructure:"max_pages"`
}

// BrowserConfig selects and tunes the fetch engine.
type BrowserConfig struct {
	Engine        string        `mapstructure:"engine"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	MaxParallel   int           `mapstructure:"max_parallel"`
	WaitUntil     string        `mapstructure:"wait_until"`
	// PromotionThreshold is the body size under which script-heavy pages are
	// re-rendered by the auto engine.
	PromotionThreshold int `mapstructure:"promotion_threshold"`
}

// ResultsConfig selects where completed results go.
type ResultsConfig struct {
	Sinks          []string `mapstructure:"sinks"`
	OutputDir      string   `mapstructure:"output_dir"`
	IncludeBody    bool     `mapstructure:"include_body"`
	IncludeCookies bool     `mapstructure:"include_cookies"`
	PostgresDSN    string   `mapstructure:"postgres_dsn"`
	PostgresTable  string   `mapstructure:"postgres_table"`
	KafkaBroker    string   `mapstructure:"kafka_broker"`
	KafkaTopic     string   `mapstructure:"kafka_topic"`
}

// ServerConfig controls the status API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLQUEUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.results_db", 1)
	v.SetDefault("redis.lock_ttl", 5*time.Second)
	v.SetDefault("redis.lock_wait", 2*time.Second)
	v.SetDefault("queue.name", "default")
	v.SetDefault("queue.url", "")
	v.SetDefault("queue.concurrency_limit", 10)
	v.SetDefault("queue.depth_limit", 1)
	v.SetDefault("queue.delay_ms", 0)
	v.SetDefault("queue.max_pages", 0)
	v.SetDefault("browser.engine", EngineColly)
	v.SetDefault("browser.user_agent", "crawlqueue/0.1")
	v.SetDefault("browser.timeout", 30*time.Second)
	v.SetDefault("browser.respect_robots", true)
	v.SetDefault("browser.max_parallel", 2)
	v.SetDefault("browser.wait_until", "body")
	v.SetDefault("browser.promotion_threshold", 2048)
	v.SetDefault("results.sinks", []string{SinkRedis, SinkFile})
	v.SetDefault("results.output_dir", ".")
	v.SetDefault("results.include_body", false)
	v.SetDefault("results.include_cookies", false)
	v.SetDefault("results.postgres_dsn", "")
	v.SetDefault("results.postgres_table", "crawl_results")
	v.SetDefault("results.kafka_broker", "")
	v.SetDefault("results.kafka_topic", "crawl-results")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Queue.Name == "" {
		return fmt.Errorf("queue.name is required")
	}
	if c.Queue.ConcurrencyLimit <= 0 {
		return fmt.Errorf("queue.concurrency_limit must be > 0")
	}
	if c.Queue.DepthLimit <= 0 {
		return fmt.Errorf("queue.depth_limit must be > 0")
	}
	if c.Queue.DelayMs < 0 {
		return fmt.Errorf("queue.delay_ms must be >= 0")
	}
	if c.Queue.MaxPages < 0 {
		return fmt.Errorf("queue.max_pages must be >= 0")
	}
	switch c.Browser.Engine {
	case EngineColly, EngineChromedp, EngineAuto:
	default:
		return fmt.Errorf("browser.engine must be one of %q, %q, %q, got %q",
			EngineColly, EngineChromedp, EngineAuto, c.Browser.Engine)
	}
	if c.Browser.Engine != EngineColly && c.Browser.MaxParallel <= 0 {
		return fmt.Errorf("browser.max_parallel must be > 0 when using %s", c.Browser.Engine)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	for _, sink := range c.Results.Sinks {
		switch sink {
		case SinkRedis, SinkFile:
		case SinkPostgres:
			if c.Results.PostgresDSN == "" {
				return fmt.Errorf("results.postgres_dsn must be set when the postgres sink is enabled")
			}
		case SinkKafka:
			if c.Results.KafkaBroker == "" || c.Results.KafkaTopic == "" {
				return fmt.Errorf("results.kafka_broker and results.kafka_topic must be set when the kafka sink is enabled")
			}
		default:
			return fmt.Errorf("results.sinks: unknown sink %q", sink)
		}
	}
	return nil
}

// HasSink reports whether name is among the enabled result sinks.
func (c Config) HasSink(name string) bool {
	for _, sink := range c.Results.Sinks {
		if sink == name {
			return true
		}
	}
	return false
}

// Delay returns the per-job throttle.
func (c QueueConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}
