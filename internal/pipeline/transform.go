package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/storm-data-radar/internal/domain"
)

// Summarizer produces the summary of the volume a notice names.
type Summarizer interface {
	Summarize(ctx context.Context, n domain.VolumeNotice) (domain.VolumeSummary, error)
}

// VolumeTransformer implements Transformer by parsing the notice,
// summarizing the volume it names and serializing the result.
type VolumeTransformer struct {
	summarizer Summarizer
	logger     *slog.Logger
}

// NewTransformer creates a VolumeTransformer around a Summarizer.
func NewTransformer(summarizer Summarizer, logger *slog.Logger) *VolumeTransformer {
	return &VolumeTransformer{
		summarizer: summarizer,
		logger:     logger,
	}
}

func (t *VolumeTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	notice, err := domain.ParseNotice(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	summary, err := t.summarizer.Summarize(ctx, notice)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	t.logger.Debug("volume summarized",
		"id", summary.ID,
		"path", summary.Path,
		"station", summary.Site.StationID,
		"fields", len(summary.Fields),
	)

	return domain.SerializeSummary(summary)
}
