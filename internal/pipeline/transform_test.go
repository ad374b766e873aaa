package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-radar/internal/adapter/memory"
	"github.com/couchcryptid/storm-data-radar/internal/domain"
	"github.com/couchcryptid/storm-data-radar/internal/pipeline"
	"github.com/couchcryptid/storm-data-radar/internal/radar"
	"github.com/couchcryptid/storm-data-radar/internal/synth"
)

// --- mocks ---

// memOpener serves synthetic volumes by path and records which sources
// were closed.
type memOpener struct {
	mu      sync.Mutex
	volumes map[string]synth.Kind
	opened  []*memory.Source
}

func (o *memOpener) Open(_ context.Context, path string) (radar.Source, error) {
	kind, ok := o.volumes[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	vol, err := synth.Generate(kind, synth.DefaultOptions())
	if err != nil {
		return nil, err
	}
	src, err := memory.New(vol)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.opened = append(o.opened, src)
	o.mu.Unlock()
	return src, nil
}

func (o *memOpener) allClosed(t *testing.T) {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, src := range o.opened {
		_, err := src.Read(context.Background(), "latitude", nil, nil)
		assert.ErrorIs(t, err, radar.ErrClosed)
	}
}

func newSummarizer(o pipeline.VolumeOpener) *pipeline.VolumeSummarizer {
	return pipeline.NewVolumeSummarizer(o, slog.Default(), newTestMetrics(), radar.WithSweepCache(false))
}

func rawNotice(t *testing.T, n domain.VolumeNotice) domain.RawEvent {
	t.Helper()
	data, err := json.Marshal(n)
	require.NoError(t, err)
	return domain.RawEvent{Key: []byte(n.Path), Value: data}
}

// --- tests ---

func TestVolumeTransformer_Transform(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.May, 6, 23, 30, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	opener := &memOpener{volumes: map[string]synth.Kind{"/data/ktlx.nc": synth.KindCFRadialRagged}}
	tfm := pipeline.NewTransformer(newSummarizer(opener), slog.Default())

	out, err := tfm.Transform(context.Background(), rawNotice(t, domain.VolumeNotice{Path: "/data/ktlx.nc"}))
	require.NoError(t, err)
	opener.allClosed(t)

	var got domain.VolumeSummary
	require.NoError(t, json.Unmarshal(out.Value, &got))
	assert.Equal(t, []byte(got.ID), out.Key)
	assert.Equal(t, "KTLX", out.Headers["station"])
	assert.Equal(t, "cfradial", out.Headers["convention"])
	assert.Equal(t, "2024-05-06T23:30:00Z", out.Headers["processed_at"])

	type fieldShape struct {
		Name   string
		Mode   string
		Sweeps int
	}
	var shapes []fieldShape
	for _, f := range got.Fields {
		shapes = append(shapes, fieldShape{Name: f.Name, Mode: f.Mode, Sweeps: len(f.Sweeps)})
	}
	want := []fieldShape{{"DBZ", "ragged", 3}, {"VEL", "ragged", 3}}
	if diff := cmp.Diff(want, shapes); diff != "" {
		t.Fatalf("field shapes mismatch (-want +got):\n%s", diff)
	}
}

func TestVolumeTransformer_InvalidNotice(t *testing.T) {
	tfm := pipeline.NewTransformer(newSummarizer(&memOpener{}), slog.Default())

	_, err := tfm.Transform(context.Background(), domain.RawEvent{Value: []byte("not json")})
	assert.Error(t, err)

	_, err = tfm.Transform(context.Background(), domain.RawEvent{Value: []byte(`{}`)})
	assert.ErrorIs(t, err, domain.ErrEmptyPath)
}

func TestVolumeSummarizer_MissingVolume(t *testing.T) {
	s := newSummarizer(&memOpener{})

	_, err := s.Summarize(context.Background(), domain.VolumeNotice{Path: "/data/missing.nc"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestVolumeSummarizer_ForcedConvention(t *testing.T) {
	opener := &memOpener{volumes: map[string]synth.Kind{"/data/kinx.nc": synth.KindLevelII}}
	s := newSummarizer(opener)

	got, err := s.Summarize(context.Background(), domain.VolumeNotice{Path: "/data/kinx.nc", Convention: "NEXRAD2"})
	require.NoError(t, err)
	assert.Equal(t, "nexrad2", got.Convention)
	opener.allClosed(t)

	_, err = s.Summarize(context.Background(), domain.VolumeNotice{Path: "/data/kinx.nc", Convention: "gematronik"})
	assert.ErrorIs(t, err, pipeline.ErrUnknownConvention)
}

func TestVolumeSummarizer_ForcedConventionWithoutMoments(t *testing.T) {
	opener := &memOpener{volumes: map[string]synth.Kind{"/data/ktlx.nc": synth.KindCFRadialFixed}}
	s := newSummarizer(opener)

	// A CF/Radial volume read as Level II has no readable moments.
	got, err := s.Summarize(context.Background(), domain.VolumeNotice{Path: "/data/ktlx.nc", Convention: "nexrad2"})
	require.NoError(t, err)
	assert.Empty(t, got.Fields)
	assert.Equal(t, "nexrad2", got.Convention)
	opener.allClosed(t)
}
