package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLockTTL  = 5 * time.Second
	defaultLockWait = 2 * time.Second
)

// seedGate flips firstRun from "1" to "0" and reports whether this caller won.
var seedGate = redis.NewScript(`
if redis.call("HGET", KEYS[1], "firstRun") == "1" then
	redis.call("HSET", KEYS[1], "firstRun", "0")
	return 1
end
return 0
`)

// StoreConfig tunes the per-queue admission lease.
type StoreConfig struct {
	// LockTTL bounds how long a crashed worker can hold the admission lease.
	LockTTL time.Duration
	// LockWait is how long Register waits for the lease before giving up with a QueueError.
	LockWait time.Duration
}

// Store runs the queue state machine against a Redis client.
type Store struct {
	client redis.UniversalClient
	cfg    StoreConfig
	logger *zap.Logger
}

// NewStore wraps an existing Redis client.
func NewStore(client redis.UniversalClient, cfg StoreConfig, logger *zap.Logger) *Store {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

type queueKeys struct {
	config     string
	state      string
	queued     string
	processing string
	done       string
	lock       string
}

func keysFor(name string) queueKeys {
	prefix := "sc:" + name + ":"
	return queueKeys{
		config:     prefix + "config",
		state:      prefix + "state",
		queued:     prefix + "jobs:queued",
		processing: prefix + "jobs:processing",
		done:       prefix + "jobs:done",
		lock:       prefix + "lock",
	}
}

// Register admits one job from the named queue into processing.
//
// The seed URL is only used while the queue is on its first run. A *QueueError
// means this worker should give up; a *QueueEndError means the queue is finished.
func (s *Store) Register(ctx context.Context, override Config, seedURL string) (Registration, error) {
	if override.Name == "" {
		return Registration{}, errors.New("register: queue name is required")
	}
	name := override.Name
	release, err := s.acquire(ctx, name)
	if err != nil {
		return Registration{}, err
	}
	defer release()

	cfg, err := s.syncConfig(ctx, override)
	if err != nil {
		return Registration{}, err
	}
	state, err := s.syncState(ctx, name)
	if err != nil {
		return Registration{}, err
	}
	if state.Status != StatusActive {
		return Registration{}, &QueueEndError{Queue: name, URL: seedURL, Reason: "queue is not active"}
	}

	snap, err := s.Snapshot(ctx, name)
	if err != nil {
		return Registration{}, err
	}
	if len(snap.Queue.Processing) >= cfg.ConcurrencyLimit {
		return Registration{}, &QueueError{Queue: name, Reason: "concurrency limit reached"}
	}
	if len(snap.Queue.Queued) == 0 && !snap.State.FirstRun {
		return Registration{}, &QueueEndError{Queue: name, Reason: "no queued jobs"}
	}

	job, firstRun, err := s.pop(ctx, name, snap.State.FirstRun, seedURL)
	if err != nil {
		return Registration{}, err
	}

	seen, err := s.seen(ctx, name, job.URL)
	if err != nil {
		return Registration{}, err
	}
	if seen {
		return Registration{}, &QueueError{Queue: name, URL: job.URL, Reason: "url already processed"}
	}
	if job.Depth > cfg.DepthLimit {
		return Registration{}, &QueueEndError{Queue: name, URL: job.URL, Reason: "depth limit reached"}
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return Registration{}, fmt.Errorf("encode job: %w", err)
	}
	if err := s.client.HSet(ctx, keysFor(name).processing, job.URL, payload).Err(); err != nil {
		return Registration{}, fmt.Errorf("insert processing job: %w", err)
	}
	s.logger.Debug("job admitted",
		zap.String("queue", name),
		zap.String("url", job.URL),
		zap.Int("depth", job.Depth),
		zap.Bool("first_run", firstRun),
	)
	return Registration{
		Config:   cfg,
		Snapshot: snap,
		Job:      job,
		FirstRun: firstRun,
	}, nil
}

// Deregister moves a processing job to done. A job that is not processing
// indicates a coordination bug and is reported as a plain error.
func (s *Store) Deregister(ctx context.Context, name string, job JobRecord) error {
	k := keysFor(name)
	payload, err := s.client.HGet(ctx, k.processing, job.URL).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("deregister %s: job is not processing in queue %q", job.URL, name)
	}
	if err != nil {
		return fmt.Errorf("deregister %s: %w", job.URL, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, k.processing, job.URL)
		pipe.HSet(ctx, k.done, job.URL, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deregister %s: %w", job.URL, err)
	}
	return nil
}

// Add appends newly discovered URLs one hop below parent, skipping any URL the
// queue already knows about, and returns a fresh snapshot.
func (s *Store) Add(ctx context.Context, name string, parent JobRecord, urls []string) (Snapshot, error) {
	depth := parent.Depth + 1
	before, err := s.Snapshot(ctx, name)
	if err != nil {
		return Snapshot{}, err
	}

	known := make(map[string]struct{}, len(before.Queue.Queued)+len(before.Queue.Processing)+len(before.Queue.Done))
	for _, list := range [][]string{before.Queue.Queued, before.Queue.Processing, before.Queue.Done} {
		for _, u := range list {
			known[u] = struct{}{}
		}
	}

	payloads := make([]any, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := known[u]; ok {
			continue
		}
		known[u] = struct{}{}
		payload, err := json.Marshal(JobRecord{URL: u, Depth: depth})
		if err != nil {
			return Snapshot{}, fmt.Errorf("encode job: %w", err)
		}
		payloads = append(payloads, payload)
	}
	if len(payloads) > 0 {
		if err := s.client.RPush(ctx, keysFor(name).queued, payloads...).Err(); err != nil {
			return Snapshot{}, fmt.Errorf("enqueue links: %w", err)
		}
		s.logger.Debug("links queued",
			zap.String("queue", name),
			zap.String("parent", parent.URL),
			zap.Int("depth", depth),
			zap.Int("count", len(payloads)),
		)
	}
	return s.Snapshot(ctx, name)
}

// Stop marks the queue INACTIVE. Calling it again is a no-op.
func (s *Store) Stop(ctx context.Context, name string) error {
	if err := s.client.HSet(ctx, keysFor(name).state, "status", string(StatusInactive)).Err(); err != nil {
		return fmt.Errorf("stop queue %q: %w", name, err)
	}
	return nil
}

// Remove deletes the keys of the named queue. Keys of other queues sharing
// the name as a prefix are left alone.
func (s *Store) Remove(ctx context.Context, name string) error {
	k := keysFor(name)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range []string{k.config, k.state, k.queued, k.processing, k.done, k.lock} {
			pipe.Del(ctx, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove queue %q: %w", name, err)
	}
	return nil
}

// Snapshot reads the state and all three collections in one pipelined round trip.
func (s *Store) Snapshot(ctx context.Context, name string) (Snapshot, error) {
	k := keysFor(name)
	var (
		stateCmd      *redis.MapStringStringCmd
		queuedCmd     *redis.StringSliceCmd
		processingCmd *redis.StringSliceCmd
		doneCmd       *redis.StringSliceCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		stateCmd = pipe.HGetAll(ctx, k.state)
		queuedCmd = pipe.LRange(ctx, k.queued, 0, -1)
		processingCmd = pipe.HKeys(ctx, k.processing)
		doneCmd = pipe.HKeys(ctx, k.done)
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot queue %q: %w", name, err)
	}

	queued := make([]string, 0, len(queuedCmd.Val()))
	for _, raw := range queuedCmd.Val() {
		var job JobRecord
		if err := json.Unmarshal([]byte(raw), &job); err != nil || job.URL == "" {
			queued = append(queued, raw)
			continue
		}
		queued = append(queued, job.URL)
	}
	processing := append([]string{}, processingCmd.Val()...)
	done := append([]string{}, doneCmd.Val()...)
	sort.Strings(processing)
	sort.Strings(done)

	return Snapshot{
		State: decodeState(stateCmd.Val()),
		Queue: Collections{
			Queued:     queued,
			Processing: processing,
			Done:       done,
		},
	}, nil
}

func (s *Store) pop(ctx context.Context, name string, firstRun bool, seedURL string) (JobRecord, bool, error) {
	k := keysFor(name)
	if firstRun {
		if seedURL == "" {
			return JobRecord{}, false, fmt.Errorf("queue %q: seed url is required on first run", name)
		}
		won, err := seedGate.Run(ctx, s.client, []string{k.state}).Int()
		if err != nil {
			return JobRecord{}, false, fmt.Errorf("flip first run: %w", err)
		}
		if won == 1 {
			return JobRecord{URL: seedURL, Depth: 0}, true, nil
		}
	}
	raw, err := s.client.LPop(ctx, k.queued).Result()
	if errors.Is(err, redis.Nil) {
		return JobRecord{}, false, &QueueEndError{Queue: name, Reason: "no queued jobs"}
	}
	if err != nil {
		return JobRecord{}, false, fmt.Errorf("pop queued job: %w", err)
	}
	var job JobRecord
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return JobRecord{}, false, fmt.Errorf("decode queued job: %w", err)
	}
	return job, false, nil
}

func (s *Store) seen(ctx context.Context, name, url string) (bool, error) {
	k := keysFor(name)
	var processing, done *redis.BoolCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		processing = pipe.HExists(ctx, k.processing, url)
		done = pipe.HExists(ctx, k.done, url)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("check duplicate %s: %w", url, err)
	}
	return processing.Val() || done.Val(), nil
}

func (s *Store) syncConfig(ctx context.Context, override Config) (Config, error) {
	key := keysFor(override.Name).config
	stored, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	merged := encodeConfig(DefaultConfig, false)
	maps.Copy(merged, stored)
	maps.Copy(merged, encodeConfig(override, true))

	if !maps.Equal(stored, merged) {
		if err := s.client.HSet(ctx, key, hashArgs(merged)...).Err(); err != nil {
			return Config{}, fmt.Errorf("write config: %w", err)
		}
	}

	cfg, err := decodeConfig(merged)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// syncState fills in missing state fields without overwriting concurrent writers
// (a Stop or a seed flip that lands between the read and the write).
func (s *Store) syncState(ctx context.Context, name string) (State, error) {
	key := keysFor(name).state
	stored, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return State{}, fmt.Errorf("read state: %w", err)
	}
	defaults := map[string]string{
		"status":   string(StatusActive),
		"firstRun": "1",
	}
	missing := false
	for field := range defaults {
		if _, ok := stored[field]; !ok {
			missing = true
			break
		}
	}
	if !missing {
		return decodeState(stored), nil
	}

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for field, value := range defaults {
			pipe.HSetNX(ctx, key, field, value)
		}
		return nil
	})
	if err != nil {
		return State{}, fmt.Errorf("write state: %w", err)
	}
	stored, err = s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return State{}, fmt.Errorf("read state: %w", err)
	}
	return decodeState(stored), nil
}

func encodeConfig(c Config, skipZero bool) map[string]string {
	out := make(map[string]string, 4)
	if c.Name != "" || !skipZero {
		out["name"] = c.Name
	}
	if c.ConcurrencyLimit != 0 || !skipZero {
		out["concurrencyLimit"] = strconv.Itoa(c.ConcurrencyLimit)
	}
	if c.DepthLimit != 0 || !skipZero {
		out["depthLimit"] = strconv.Itoa(c.DepthLimit)
	}
	if c.Delay != 0 || !skipZero {
		out["delay"] = strconv.Itoa(c.Delay)
	}
	return out
}

func decodeConfig(m map[string]string) (Config, error) {
	cfg := Config{Name: m["name"]}
	fields := []struct {
		key string
		dst *int
	}{
		{"concurrencyLimit", &cfg.ConcurrencyLimit},
		{"depthLimit", &cfg.DepthLimit},
		{"delay", &cfg.Delay},
	}
	for _, f := range fields {
		raw, ok := m[f.key]
		if !ok || raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("decode config %s=%q: %w", f.key, raw, err)
		}
		*f.dst = n
	}
	return cfg, nil
}

func decodeState(m map[string]string) State {
	firstRun, _ := strconv.ParseBool(m["firstRun"])
	return State{
		Status:   Status(m["status"]),
		FirstRun: firstRun,
	}
}

func hashArgs(m map[string]string) []any {
	args := make([]any, 0, len(m)*2)
	for k, v := range m {
		args = append(args, k, v)
	}
	return args
}
