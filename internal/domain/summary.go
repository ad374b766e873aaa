package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/couchcryptid/storm-data-radar/internal/radar"
)

// summaryNamespace scopes summary IDs so they never collide with other
// name-based UUIDs.
var summaryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/couchcryptid/storm-data-radar/volume"))

// ErrEmptyPath is returned for notices that do not name a volume.
var ErrEmptyPath = errors.New("volume notice has no path")

// ErrInvalidNotice marks notices that can never be summarized as sent.
var ErrInvalidNotice = errors.New("invalid volume notice")

// ParseNotice deserializes a RawEvent's value into a VolumeNotice.
func ParseNotice(raw RawEvent) (VolumeNotice, error) {
	var n VolumeNotice
	if err := json.Unmarshal(raw.Value, &n); err != nil {
		return VolumeNotice{}, fmt.Errorf("%w: %w", ErrInvalidNotice, err)
	}
	n.Path = strings.TrimSpace(n.Path)
	if n.Path == "" {
		return VolumeNotice{}, fmt.Errorf("%w: %w", ErrInvalidNotice, ErrEmptyPath)
	}
	n.Station = strings.ToUpper(strings.TrimSpace(n.Station))
	if n.ObservedAt.IsZero() {
		n.ObservedAt = raw.Timestamp
	}
	return n, nil
}

// SummaryID produces a deterministic ID from a volume's identity, so
// reprocessing the same notice yields the same summary key.
func SummaryID(path, station string, start time.Time) string {
	input := fmt.Sprintf("%s|%s|%s", path, station, start.UTC().Format(time.RFC3339Nano))
	return uuid.NewSHA1(summaryNamespace, []byte(input)).String()
}

// Summarize reads the geometry and per-sweep statistics of every field of
// an open dataset.
func Summarize(ctx context.Context, ds *radar.Dataset, n VolumeNotice) (VolumeSummary, error) {
	site, err := ds.Site()
	if err != nil {
		return VolumeSummary{}, err
	}
	station := site.StationID
	if n.Station != "" && station == radar.DefaultStationID {
		station = n.Station
	}
	s := VolumeSummary{
		ID:         SummaryID(n.Path, station, site.Start),
		Path:       n.Path,
		Convention: ds.Convention().Name(),
		Site: SiteSummary{
			StationID:   station,
			StationName: site.StationName,
			Latitude:    optional(site.Latitude),
			Longitude:   optional(site.Longitude),
			Altitude:    optional(site.Altitude),
			Start:       site.Start,
			End:         site.End,
			Stationary:  site.Stationary,
		},
		ObservedAt: n.ObservedAt,
	}
	if s.ObservedAt.IsZero() {
		s.ObservedAt = site.Start
	}
	if excluded := ds.Excluded(); len(excluded) > 0 {
		s.Excluded = make(map[string]string, len(excluded))
		for name, err := range excluded {
			s.Excluded[name] = err.Error()
		}
	}

	for _, name := range ds.ListFields() {
		fs, err := summarizeField(ctx, ds, name)
		if err != nil {
			return VolumeSummary{}, fmt.Errorf("summarize %s: %w", name, err)
		}
		s.Fields = append(s.Fields, fs)
	}
	s.ProcessedAt = clock.Now()
	return s, nil
}

func summarizeField(ctx context.Context, ds *radar.Dataset, name string) (FieldSummary, error) {
	geom, err := ds.DescribeGeometry(name)
	if err != nil {
		return FieldSummary{}, err
	}
	fs := FieldSummary{Name: name, Mode: geom.Mode.String(), Composite: geom.Composite}

	first, err := ds.RangeToFirstGate(ctx, name)
	if err != nil {
		return FieldSummary{}, err
	}
	fs.RangeToFirstGate = optional(first)
	fs.Defaulted = defaulted(fs.Defaulted, "range_to_first_gate", first)

	bw, err := ds.BeamWidth(ctx, name)
	if err != nil {
		return FieldSummary{}, err
	}
	fs.BeamWidth = bw.Value
	fs.Defaulted = defaulted(fs.Defaulted, "beam_width", bw)

	nyq, err := ds.NyquistFrequency(ctx, name)
	if err != nil {
		return FieldSummary{}, err
	}
	fs.Nyquist = nyq.Value
	fs.Defaulted = defaulted(fs.Defaulted, "nyquist", nyq)

	for s := range geom.NumSweeps() {
		ss, err := summarizeSweep(ctx, ds, name, s, geom)
		if err != nil {
			return FieldSummary{}, err
		}
		fs.Sweeps = append(fs.Sweeps, ss)
	}
	return fs, nil
}

func summarizeSweep(ctx context.Context, ds *radar.Dataset, name string, s int, geom radar.SweepGeometry) (SweepSummary, error) {
	ss := SweepSummary{Index: s, Rays: geom.NumRays(s), Gates: geom.NumGates(s)}

	el, err := ds.MeanElevation(ctx, name, s)
	if err != nil {
		return ss, err
	}
	ss.MeanElevation = optional(el)
	ss.Defaulted = defaulted(ss.Defaulted, "mean_elevation", el)

	az, err := ds.MeanAzimuth(ctx, name, s)
	if err != nil {
		return ss, err
	}
	ss.MeanAzimuth = optional(az)
	ss.Defaulted = defaulted(ss.Defaulted, "mean_azimuth", az)

	gs, err := ds.GateSize(ctx, name, s)
	if err != nil {
		return ss, err
	}
	ss.GateSize = optional(gs)
	ss.Defaulted = defaulted(ss.Defaulted, "gate_size", gs)

	buf, err := ds.ReadSweep(ctx, name, s)
	if err != nil {
		return ss, err
	}
	valid := finite(buf)
	if len(buf) > 0 {
		ss.ValidFraction = float64(len(valid)) / float64(len(buf))
	}
	if len(valid) > 0 {
		m := floats.Max(valid)
		ss.MaxValue = &m
	}
	return ss, nil
}

// optional maps a substituted or non-finite quantity to nil.
func optional(q radar.Quantity) *float64 {
	if q.Substituted || math.IsNaN(q.Value) || math.IsInf(q.Value, 0) {
		return nil
	}
	v := q.Value
	return &v
}

func defaulted(names []string, name string, q radar.Quantity) []string {
	if q.Substituted {
		return append(names, name)
	}
	return names
}

func finite(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// SerializeSummary marshals a VolumeSummary into an OutputEvent keyed by ID.
func SerializeSummary(s VolumeSummary) (OutputEvent, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize volume summary: %w", err)
	}
	return OutputEvent{
		Key:   []byte(s.ID),
		Value: data,
		Headers: map[string]string{
			"station":      s.Site.StationID,
			"convention":   s.Convention,
			"processed_at": s.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}
