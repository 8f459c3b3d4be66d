// Package crawler coordinates a single crawl worker: admission through the
// queue store, the fetch itself, frontier expansion, caller hooks and the
// self-scheduling that launches the next wave of workers.
package crawler
