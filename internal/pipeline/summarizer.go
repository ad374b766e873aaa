package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/couchcryptid/storm-data-radar/internal/domain"
	"github.com/couchcryptid/storm-data-radar/internal/observability"
	"github.com/couchcryptid/storm-data-radar/internal/radar"
)

// ErrUnknownConvention is returned for a notice that forces a naming
// convention the read core does not support.
var ErrUnknownConvention = errors.New("unknown radar convention")

// VolumeOpener resolves a notice path to a readable radar source. Sources
// that implement io.Closer are closed once the volume is summarized.
type VolumeOpener interface {
	Open(ctx context.Context, path string) (radar.Source, error)
}

// VolumeSummarizer opens each volume through a VolumeOpener and summarizes
// it with the radar read core.
type VolumeSummarizer struct {
	opener  VolumeOpener
	opts    []radar.Option
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewVolumeSummarizer creates a VolumeSummarizer. The radar options apply to
// every volume it opens.
func NewVolumeSummarizer(opener VolumeOpener, logger *slog.Logger, metrics *observability.Metrics, opts ...radar.Option) *VolumeSummarizer {
	return &VolumeSummarizer{
		opener:  opener,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *VolumeSummarizer) Summarize(ctx context.Context, n domain.VolumeNotice) (domain.VolumeSummary, error) {
	start := time.Now()

	opts := s.opts
	if n.Convention != "" {
		conv, ok := radar.ConventionByName(n.Convention)
		if !ok {
			return domain.VolumeSummary{}, fmt.Errorf("%w: %q", ErrUnknownConvention, n.Convention)
		}
		opts = append(slices.Clip(opts), radar.WithConvention(conv))
	}

	src, err := s.opener.Open(ctx, n.Path)
	if err != nil {
		return domain.VolumeSummary{}, fmt.Errorf("open volume %s: %w", n.Path, err)
	}

	ds, err := radar.Open(ctx, src, opts...)
	if err != nil {
		closeSource(src)
		return domain.VolumeSummary{}, fmt.Errorf("read volume %s: %w", n.Path, err)
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil {
			s.logger.Warn("close volume failed", "path", n.Path, "error", cerr)
		}
	}()

	summary, err := domain.Summarize(ctx, ds, n)
	if err != nil {
		return domain.VolumeSummary{}, fmt.Errorf("summarize volume %s: %w", n.Path, err)
	}
	s.metrics.VolumeSummarizeSeconds.Observe(time.Since(start).Seconds())
	return summary, nil
}

func closeSource(src radar.Source) {
	if c, ok := src.(io.Closer); ok {
		_ = c.Close()
	}
}
