// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlqueue/internal/config"
	"github.com/JakeFAU/crawlqueue/internal/crawler"
	collyfetcher "github.com/JakeFAU/crawlqueue/internal/fetcher/colly"
	"github.com/JakeFAU/crawlqueue/internal/fetcher/headless"
	"github.com/JakeFAU/crawlqueue/internal/fetcher/promote"
	"github.com/JakeFAU/crawlqueue/internal/linkfilter"
	"github.com/JakeFAU/crawlqueue/internal/logging"
	"github.com/JakeFAU/crawlqueue/internal/queue"
	"github.com/JakeFAU/crawlqueue/internal/results"
)

// App holds the shared services for one process: the Redis clients, the queue
// store, the browser and the result storage.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	client  redis.UniversalClient
	store   *queue.Store
	results *results.RedisSink
	browser crawler.Browser
	closers []func() error
}

// Option customizes New.
type Option func(*App)

// WithBrowser replaces the configured fetch engine.
func WithBrowser(browser crawler.Browser) Option {
	return func(a *App) { a.browser = browser }
}

// New connects to Redis and builds the configured browser. It fails fast when
// Redis is unreachable.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	a.closers = append(a.closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	a.client = client
	a.store = queue.NewStore(client, queue.StoreConfig{
		LockTTL:  cfg.Redis.LockTTL,
		LockWait: cfg.Redis.LockWait,
	}, logger.Named("queue"))

	resultsClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.ResultsDB,
	})
	a.closers = append(a.closers, resultsClient.Close)
	a.results = results.NewRedisSink(resultsClient)

	if a.browser == nil {
		browser, closeBrowser, err := newBrowser(cfg.Browser, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.browser = browser
		if closeBrowser != nil {
			a.closers = append(a.closers, closeBrowser)
		}
	}

	logger.Info("application services initialized",
		zap.String("redis", cfg.Redis.Addr),
		zap.String("engine", cfg.Browser.Engine),
	)
	return a, nil
}

func newBrowser(cfg config.BrowserConfig, logger *zap.Logger) (crawler.Browser, func() error, error) {
	fast := func() *collyfetcher.Fetcher {
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.UserAgent,
			RespectRobots: cfg.RespectRobots,
			Timeout:       cfg.Timeout,
		})
	}
	rendered := func() (*headless.Fetcher, error) {
		fetcher, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.MaxParallel,
			UserAgent:         cfg.UserAgent,
			NavigationTimeout: cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		return fetcher, nil
	}

	switch cfg.Engine {
	case config.EngineChromedp:
		fetcher, err := rendered()
		if err != nil {
			return nil, nil, err
		}
		return fetcher, fetcher.Close, nil
	case config.EngineAuto:
		fetcher, err := rendered()
		if err != nil {
			return nil, nil, err
		}
		browser := promote.New(fast(), fetcher, promote.NewHeuristic(cfg.PromotionThreshold), logger)
		return browser, fetcher.Close, nil
	case config.EngineColly, "":
		return fast(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown browser engine %q", cfg.Engine)
	}
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the shared queue store.
func (a *App) Store() *queue.Store { return a.store }

// Results returns the Redis result store, which also backs the API.
func (a *App) Results() *results.RedisSink { return a.results }

// Ping checks the queue store connection.
func (a *App) Ping(ctx context.Context) error {
	if err := a.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Connector hands every invocation the shared store and browser.
func (a *App) Connector() crawler.Connector {
	return sharedConnector{store: a.store, browser: a.browser}
}

type sharedConnector struct {
	store   crawler.QueueStore
	browser crawler.Browser
}

// Connect returns the shared handles. Closing the session leaves them open;
// App.Close owns their lifetime.
func (c sharedConnector) Connect(context.Context) (*crawler.Session, error) {
	return &crawler.Session{Store: c.store, Browser: c.browser}, nil
}

// Coordinator builds a Coordinator over the shared connector.
func (a *App) Coordinator() *crawler.Coordinator {
	return crawler.NewCoordinator(a.Connector(), logging.ForQueue(a.logger, a.cfg.Queue.Name))
}

// Runner builds an in-process Runner writing to sink.
func (a *App) Runner(sink crawler.ResultSink) *crawler.Runner {
	return crawler.NewRunner(a.Coordinator(), a.store, sink, a.logger)
}

// Spec translates the queue and browser settings into a JobSpec. Start is left
// for the caller to supply.
func (a *App) Spec() crawler.JobSpec {
	q := a.cfg.Queue
	spec := crawler.JobSpec{
		URL: q.URL,
		Config: queue.Config{
			Name:             q.Name,
			ConcurrencyLimit: q.ConcurrencyLimit,
			DepthLimit:       q.DepthLimit,
			Delay:            q.DelayMs,
		},
		Navigation: crawler.Navigation{
			WaitUntil: a.cfg.Browser.WaitUntil,
			Timeout:   a.cfg.Browser.Timeout,
		},
	}
	if len(q.AllowList) > 0 || len(q.BlockList) > 0 {
		spec.Filter = &linkfilter.Filter{AllowList: q.AllowList, BlockList: q.BlockList}
	}
	if len(q.Headers) > 0 {
		spec.Headers = http.Header{}
		for k, v := range q.Headers {
			spec.Headers.Set(k, v)
		}
	}
	if len(q.Extract) > 0 {
		spec.Hooks.Extract = crawler.SelectorExtractor(q.Extract)
	}
	if q.MaxPages > 0 {
		spec.Hooks.After = crawler.StopAfter(q.MaxPages)
	}
	return spec
}

// Sinks opens every configured result sink. The returned FileSink is nil unless
// the file sink is enabled. Closing the Multi closes the FileSink too.
func (a *App) Sinks(ctx context.Context) (results.Multi, *results.FileSink, error) {
	rc := a.cfg.Results
	var (
		sinks results.Multi
		file  *results.FileSink
	)
	fail := func(err error) (results.Multi, *results.FileSink, error) {
		if cerr := sinks.Close(); cerr != nil {
			a.logger.Warn("close partially built sinks", zap.Error(cerr))
		}
		return nil, nil, err
	}
	for _, name := range rc.Sinks {
		switch name {
		case config.SinkRedis:
			// Closing it is a no-op; App.Close owns the client.
			sinks = append(sinks, a.results)
		case config.SinkFile:
			sink, err := results.NewFileSink(rc.OutputDir, results.Options{
				HTML:    rc.IncludeBody,
				Cookies: rc.IncludeCookies,
				Links:   true,
			})
			if err != nil {
				return fail(fmt.Errorf("init file sink: %w", err))
			}
			file = sink
			sinks = append(sinks, sink)
		case config.SinkPostgres:
			sink, err := results.NewPostgresSink(ctx, results.PostgresConfig{
				DSN:   rc.PostgresDSN,
				Table: rc.PostgresTable,
			})
			if err != nil {
				return fail(fmt.Errorf("init postgres sink: %w", err))
			}
			sinks = append(sinks, sink)
		case config.SinkKafka:
			sinks = append(sinks, results.NewKafkaSink(rc.KafkaBroker, rc.KafkaTopic, rc.IncludeBody))
		default:
			return fail(fmt.Errorf("unknown result sink %q", name))
		}
	}
	return sinks, file, nil
}

// Close shuts down every service the App opened, in reverse order.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error shutting down application services", zap.Error(err))
	}
}
