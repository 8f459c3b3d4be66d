// Package queue implements the shared crawl frontier state machine on top of Redis.
//
// Every queue is addressed by name and owns five keys under the "sc:<name>:" prefix:
// a config hash, a state hash, the queued list and the processing/done hashes. Workers
// never cache any of it; each operation reads or mutates the store directly.
package queue

import "fmt"

// Status is the lifecycle flag stored in the state hash.
type Status string

// Queue status values.
const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Config is the per-queue configuration synchronized at each registration.
type Config struct {
	Name             string `json:"name"`
	ConcurrencyLimit int    `json:"concurrencyLimit"`
	DepthLimit       int    `json:"depthLimit"`
	// Delay is the throttle applied before each fetch, in milliseconds.
	Delay int `json:"delay,omitempty"`
}

// DefaultConfig holds the values used when neither the store nor the caller provide one.
var DefaultConfig = Config{
	Name:             "default",
	ConcurrencyLimit: 10,
	DepthLimit:       1,
}

// Validate rejects configurations the admission protocol cannot enforce.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("queue name is required")
	}
	if c.ConcurrencyLimit <= 0 {
		return fmt.Errorf("queue %q: concurrencyLimit must be > 0", c.Name)
	}
	if c.DepthLimit <= 0 {
		return fmt.Errorf("queue %q: depthLimit must be > 0", c.Name)
	}
	if c.Delay < 0 {
		return fmt.Errorf("queue %q: delay must be >= 0", c.Name)
	}
	return nil
}

// State is the mutable queue status.
type State struct {
	Status   Status `json:"status"`
	FirstRun bool   `json:"firstRun"`
}

// JobRecord is one unit of work: a URL and its link distance from the seed.
type JobRecord struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// Collections lists the URLs currently in each job collection.
type Collections struct {
	Queued     []string `json:"queued"`
	Processing []string `json:"processing"`
	Done       []string `json:"done"`
}

// Snapshot is a best-effort read of a queue. The reads behind it are not
// transactional, so it is advisory outside the store's own checks.
type Snapshot struct {
	State State       `json:"state"`
	Queue Collections `json:"queue"`
}

// Registration is returned by a successful admission.
type Registration struct {
	Config   Config
	Snapshot Snapshot
	Job      JobRecord
	// FirstRun reports whether this admission consumed the one-time seed gate.
	FirstRun bool
}
