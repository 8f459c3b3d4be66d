package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlqueue/internal/linkfilter"
	"github.com/JakeFAU/crawlqueue/internal/metrics"
	"github.com/JakeFAU/crawlqueue/internal/queue"
)

// Coordinator runs worker invocations. It holds no queue state between calls.
type Coordinator struct {
	connector Connector
	logger    *zap.Logger
	wait      func(ctx context.Context, d time.Duration) error
}

// NewCoordinator wires a Coordinator to its connector.
func NewCoordinator(connector Connector, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Coordinator{
		connector: connector,
		logger:    logger.Named("coordinator"),
		wait:      sleepContext,
	}
}

// Execute runs one worker invocation for spec.
//
// Queue conditions and fetch failures come back as an Outcome with a nil error.
// The returned error is either a *ValidationError or a *GeneralJobError.
func (c *Coordinator) Execute(ctx context.Context, spec JobSpec) (Outcome, error) {
	if err := spec.Validate(); err != nil {
		return Outcome{}, err
	}
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	inv := &invocation{
		spec:   spec,
		name:   spec.Config.Name,
		job:    queue.JobRecord{URL: spec.URL},
		logger: c.logger.With(zap.String("queue", spec.Config.Name), zap.String("invocation_id", uuid.NewString())),
	}

	session, err := c.connector.Connect(ctx)
	if err != nil {
		return Outcome{}, &GeneralJobError{URL: spec.URL, Err: fmt.Errorf("connect: %w", err)}
	}
	defer func() {
		if err := session.Close(); err != nil {
			inv.logger.Warn("session release failed", zap.Error(err))
		}
	}()
	inv.store = session.Store

	outcome, err := c.execute(ctx, inv, session.Browser)
	if err != nil {
		outcome, err = c.settle(ctx, inv, err)
	}
	if err == nil {
		metrics.ObserveJob(outcome.Kind.String())
	} else {
		metrics.ObserveJob("error")
	}
	return outcome, err
}

type invocation struct {
	spec   JobSpec
	name   string
	store  QueueStore
	job    queue.JobRecord
	held   bool
	logger *zap.Logger
}

func (c *Coordinator) execute(ctx context.Context, inv *invocation, browser Browser) (Outcome, error) {
	reg, err := inv.store.Register(ctx, inv.spec.Config, inv.spec.URL)
	if err != nil {
		return Outcome{}, err
	}
	metrics.ObserveAdmission("admitted")
	inv.job = reg.Job
	inv.held = true
	inv.logger = inv.logger.With(zap.String("url", reg.Job.URL), zap.Int("depth", reg.Job.Depth))
	inv.logger.Debug("job admitted", zap.Bool("first_run", reg.FirstRun))

	// The synced config is authoritative for scheduling from here on.
	spec := inv.spec
	spec.Config = reg.Config

	if reg.Config.Delay > 0 {
		if err := c.wait(ctx, time.Duration(reg.Config.Delay)*time.Millisecond); err != nil {
			return Outcome{}, fmt.Errorf("delay: %w", err)
		}
	}

	page, data, err := c.fetch(ctx, browser, spec, reg)
	var browserErr *BrowserError
	if errors.As(err, &browserErr) {
		return c.fail(ctx, inv, spec, browserErr)
	}
	if err != nil {
		return Outcome{}, err
	}

	if err := inv.store.Deregister(ctx, inv.name, inv.job); err != nil {
		return Outcome{}, err
	}
	inv.held = false

	links := linkfilter.Apply(page.Links, spec.Filter)
	metrics.ObserveLinks(len(links))
	snap, err := inv.store.Add(ctx, inv.name, inv.job, links)
	if err != nil {
		return Outcome{}, err
	}

	result := Result{
		Queue:    inv.name,
		Job:      inv.job,
		Cookies:  page.Cookies,
		Data:     data,
		Links:    links,
		Response: page.Response,
	}

	stopped := false
	stop := func(ctx context.Context) error {
		stopped = true
		inv.logger.Info("queue stopped by after hook")
		return inv.store.Stop(ctx, inv.name)
	}
	if spec.Hooks.After != nil {
		if err := spec.Hooks.After(ctx, result, snap, stop); err != nil {
			return Outcome{}, fmt.Errorf("after hook: %w", err)
		}
	}
	if !stopped {
		started := StartJobs(spec, snap)
		inv.logger.Debug("job done", zap.Int("links", len(links)), zap.Int("started", started))
	}
	return Outcome{Kind: OutcomeDone, Job: inv.job, Result: result}, nil
}

// fail finishes a job whose fetch failed. The job still counts as consumed,
// so it moves to done and the crawl keeps scheduling from what is queued.
func (c *Coordinator) fail(ctx context.Context, inv *invocation, spec JobSpec, browserErr *BrowserError) (Outcome, error) {
	inv.logger.Warn("fetch failed",
		zap.Int("status", browserErr.Response.Status),
		zap.Error(browserErr),
	)
	if err := inv.store.Deregister(ctx, inv.name, inv.job); err != nil {
		return Outcome{}, err
	}
	inv.held = false
	snap, err := inv.store.Snapshot(ctx, inv.name)
	if err != nil {
		return Outcome{}, err
	}
	StartJobs(spec, snap)
	return Outcome{
		Kind:   OutcomeFailed,
		Job:    inv.job,
		Result: Result{Queue: inv.name, Job: inv.job, Response: browserErr.Response},
		Err:    browserErr,
	}, nil
}

func (c *Coordinator) fetch(ctx context.Context, browser Browser, spec JobSpec, reg queue.Registration) (Page, any, error) {
	req := FetchRequest{
		URL:        reg.Job.URL,
		Headers:    http.Header{},
		Navigation: spec.Navigation,
	}
	if spec.Headers != nil {
		req.Headers = spec.Headers.Clone()
	}
	if reg.FirstRun && spec.Hooks.BeforeAll != nil {
		if err := spec.Hooks.BeforeAll(ctx, &req, reg.Snapshot, reg.Job); err != nil {
			return Page{}, nil, fmt.Errorf("beforeAll hook: %w", err)
		}
	}
	if spec.Hooks.Before != nil {
		if err := spec.Hooks.Before(ctx, &req, reg.Snapshot, reg.Job); err != nil {
			return Page{}, nil, fmt.Errorf("before hook: %w", err)
		}
	}

	start := time.Now()
	page, err := browser.Fetch(ctx, req)
	metrics.ObserveFetch(req.URL, time.Since(start))
	if err != nil {
		return Page{}, nil, err
	}

	if spec.Hooks.Extract == nil {
		return page, nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Response.Body))
	if err != nil {
		return page, nil, fmt.Errorf("parse document: %w", err)
	}
	data, err := spec.Hooks.Extract(ctx, doc, reg.Job)
	if err != nil {
		return page, nil, fmt.Errorf("extract hook: %w", err)
	}
	return page, data, nil
}

// settle maps a pipeline error to an Outcome or a GeneralJobError.
func (c *Coordinator) settle(ctx context.Context, inv *invocation, err error) (Outcome, error) {
	if transient, ok := queue.AsTransient(err); ok {
		if !inv.held {
			metrics.ObserveAdmission("rejected")
		}
		c.abandon(ctx, inv)
		inv.logger.Debug("worker gave up", zap.String("reason", transient.Reason))
		return Outcome{Kind: OutcomeTransient, Job: inv.job, Err: transient}, nil
	}
	if terminal, ok := queue.AsTerminal(err); ok {
		if !inv.held {
			metrics.ObserveAdmission("ended")
		}
		c.abandon(ctx, inv)
		if err := inv.store.Stop(ctx, inv.name); err != nil {
			return Outcome{}, &GeneralJobError{URL: inv.job.URL, Err: err}
		}
		inv.logger.Info("queue ended", zap.String("reason", terminal.Reason))
		return Outcome{Kind: OutcomeTerminal, Job: inv.job, Err: terminal}, nil
	}
	c.abandon(ctx, inv)
	inv.logger.Error("crawl job failed", zap.String("url", inv.job.URL), zap.Error(err))
	return Outcome{}, &GeneralJobError{URL: inv.job.URL, Err: err}
}

// abandon releases an admitted job when the invocation ends early, so it does
// not sit in processing forever. The release outlives a cancelled ctx.
func (c *Coordinator) abandon(ctx context.Context, inv *invocation) {
	if !inv.held {
		return
	}
	if err := inv.store.Deregister(context.WithoutCancel(ctx), inv.name, inv.job); err != nil {
		inv.logger.Warn("release abandoned job failed", zap.Error(err))
		return
	}
	inv.held = false
}

// RunSingle fetches spec.URL once as a first run, without touching the queue
// store. Queue hooks (After) and self-scheduling are skipped.
func (c *Coordinator) RunSingle(ctx context.Context, spec JobSpec) (Result, error) {
	if problems := spec.validateTarget(); len(problems) > 0 {
		return Result{}, &ValidationError{Problems: problems}
	}
	session, err := c.connector.Connect(ctx)
	if err != nil {
		return Result{}, &GeneralJobError{URL: spec.URL, Err: fmt.Errorf("connect: %w", err)}
	}
	defer func() {
		if err := session.Close(); err != nil {
			c.logger.Warn("session release failed", zap.Error(err))
		}
	}()

	reg := queue.Registration{
		Config:   spec.Config,
		Snapshot: queue.Snapshot{State: queue.State{Status: queue.StatusActive, FirstRun: true}},
		Job:      queue.JobRecord{URL: spec.URL},
		FirstRun: true,
	}
	page, data, err := c.fetch(ctx, session.Browser, spec, reg)
	var browserErr *BrowserError
	if errors.As(err, &browserErr) {
		return Result{Job: reg.Job, Response: browserErr.Response}, browserErr
	}
	if err != nil {
		return Result{}, &GeneralJobError{URL: spec.URL, Err: err}
	}
	return Result{
		Queue:    spec.Config.Name,
		Job:      reg.Job,
		Cookies:  page.Cookies,
		Data:     data,
		Links:    linkfilter.Apply(page.Links, spec.Filter),
		Response: page.Response,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
