// Package promote combines a fast HTTP fetcher with a headless browser,
// re-fetching pages that look client-rendered.
package promote

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlqueue/internal/crawler"
)

// Detector decides whether a fast fetch needs a headless retry.
type Detector interface {
	ShouldPromote(page crawler.Page) bool
}

// Browser fetches with Fast first and promotes to Headless when the detector asks for it.
type Browser struct {
	fast     crawler.Browser
	headless crawler.Browser
	detector Detector
	logger   *zap.Logger
}

// New builds a promoting Browser.
func New(fast, headless crawler.Browser, detector Detector, logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{
		fast:     fast,
		headless: headless,
		detector: detector,
		logger:   logger.Named("promote"),
	}
}

// Fetch implements crawler.Browser. A failed headless retry falls back to the fast page.
func (b *Browser) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.Page, error) {
	page, err := b.fast.Fetch(ctx, request)
	if err != nil || b.headless == nil || b.detector == nil || !b.detector.ShouldPromote(page) {
		return page, err
	}

	rendered, err := b.headless.Fetch(ctx, request)
	if err != nil {
		b.logger.Warn("headless promotion failed", zap.String("url", request.URL), zap.Error(err))
		return page, nil
	}
	b.logger.Debug("headless promotion applied", zap.String("url", request.URL))
	return rendered, nil
}
