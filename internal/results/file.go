package results

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/crawlqueue/internal/crawler"
)

const exportLayout = "2006-01-02-15-04-05"

// Exporter writes timestamped JSON report files into a directory.
type Exporter struct {
	dir string
}

// NewExporter checks that dir exists (creating it if needed) and is writable.
func NewExporter(dir string) (*Exporter, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create output directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat output directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("output path %q is not a directory", dir)
	}

	probe := filepath.Join(dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("output directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}
	return &Exporter{dir: dir}, nil
}

// FileName names an export written at t.
func FileName(t time.Time) string {
	return "results-" + t.Format(exportLayout) + ".json"
}

// Export writes reports as a JSON array and returns the file path.
func (e *Exporter) Export(now time.Time, reports []any) (string, error) {
	if reports == nil {
		reports = []any{}
	}
	payload, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}
	path := filepath.Join(e.dir, FileName(now))
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// FileSink buffers projected results and exports them as one file on Close.
type FileSink struct {
	exporter *Exporter
	opts     Options
	now      func() time.Time

	mu      sync.Mutex
	reports []any
	path    string
}

// NewFileSink builds a FileSink writing into dir.
func NewFileSink(dir string, opts Options) (*FileSink, error) {
	exporter, err := NewExporter(dir)
	if err != nil {
		return nil, err
	}
	return &FileSink{exporter: exporter, opts: opts, now: time.Now}, nil
}

// Write buffers the projected result.
func (s *FileSink) Write(_ context.Context, result crawler.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, Project(result, s.opts))
	return nil
}

// Close writes every buffered report. Calling it again is a no-op.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path != "" {
		return nil
	}
	path, err := s.exporter.Export(s.now(), s.reports)
	if err != nil {
		return err
	}
	s.path = path
	return nil
}

// Path returns the export file once Close has written it.
func (s *FileSink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}
