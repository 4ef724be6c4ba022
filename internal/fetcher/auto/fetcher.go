// Package auto fetches over plain HTTP first and re-renders a page in the
// headless browser only when the response looks like an unrendered shell.
package auto

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

// Detector decides whether a probe response needs rendering.
type Detector interface {
	ShouldPromote(resp novel.FetchResponse) bool
}

// Fetcher implements novel.PageFetcher by promoting probe responses.
type Fetcher struct {
	probe    novel.PageFetcher
	headless novel.PageFetcher
	detector Detector
	logger   *zap.Logger
}

// New wires a probe and headless transport. headless or detector may be nil,
// in which case every probe response is returned as is.
func New(probe, headless novel.PageFetcher, detector Detector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{probe: probe, headless: headless, detector: detector, logger: logger}
}

// Fetch returns the probe response unless the detector asks for promotion and
// the headless render succeeds.
func (f *Fetcher) Fetch(ctx context.Context, req novel.FetchRequest) (novel.FetchResponse, error) {
	resp, err := f.probe.Fetch(ctx, req)
	if err != nil {
		return novel.FetchResponse{}, err
	}
	if f.headless == nil || f.detector == nil || !f.detector.ShouldPromote(resp) {
		return resp, nil
	}

	rendered, err := f.headless.Fetch(ctx, req)
	if err != nil {
		f.logger.Warn("headless promotion failed",
			zap.String("job_id", req.JobID),
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return resp, nil
	}
	f.logger.Debug("headless promotion applied", zap.String("job_id", req.JobID), zap.String("url", req.URL))
	return rendered, nil
}
