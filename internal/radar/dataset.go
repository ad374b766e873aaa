package radar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
)

// State is the lifecycle position of a Dataset. Transitions only move
// forward.
type State int32

const (
	StateUnopened State = iota
	StateOpening
	StateGeometryBuilt
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpening:
		return "opening"
	case StateGeometryBuilt:
		return "geometry_built"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Recorder receives read-path events. observability.Metrics implements it.
type Recorder interface {
	SweepRead(mode string)
	ReadError()
	CacheLookup(cache string, hit bool)
	FieldExcluded()
}

type nopRecorder struct{}

func (nopRecorder) SweepRead(string)         {}
func (nopRecorder) ReadError()               {}
func (nopRecorder) CacheLookup(string, bool) {}
func (nopRecorder) FieldExcluded()           {}

// Option configures Open.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	rec         Recorder
	conv        Convention
	strides     StrideTable
	marker      float64
	cacheSweeps bool
}

// WithLogger sets the logger used for open and close events.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithRecorder sets the sink for read metrics.
func WithRecorder(r Recorder) Option { return func(o *options) { o.rec = r } }

// WithConvention skips detection and uses c.
func WithConvention(c Convention) Option { return func(o *options) { o.conv = c } }

// WithStrideTable replaces the default gate stride rules.
func WithStrideTable(t StrideTable) Option { return func(o *options) { o.strides = t } }

// WithMarker sets the value missing samples are rewritten to. Default NaN.
func WithMarker(m float64) Option { return func(o *options) { o.marker = m } }

// WithSweepCache toggles memoisation of sweep buffers. Default on.
func WithSweepCache(on bool) Option { return func(o *options) { o.cacheSweeps = on } }

// Dataset is an opened radar volume exposing its fields through a uniform
// sweep, ray and gate model.
type Dataset struct {
	state atomic.Int32

	src      Source
	conv     Convention
	logger   *slog.Logger
	rec      Recorder
	names    []string
	readers  map[string]*SweepReader
	excluded map[string]error
	coords   *CoordinateCache
	site     Site

	closeOnce sync.Once
	closeErr  error
}

// Open builds the geometry of every data field of src. Fields whose
// geometry cannot be established are excluded rather than failing the open.
func Open(ctx context.Context, src Source, opts ...Option) (*Dataset, error) {
	o := options{
		logger:      slog.New(slog.DiscardHandler),
		rec:         nopRecorder{},
		strides:     MustStrideTable(DefaultGateStrides),
		marker:      math.NaN(),
		cacheSweeps: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Dataset{
		src:      src,
		logger:   o.logger,
		rec:      o.rec,
		readers:  make(map[string]*SweepReader),
		excluded: make(map[string]error),
	}
	d.state.Store(int32(StateOpening))

	d.conv = o.conv
	if d.conv == nil {
		d.conv = DetectConvention(src)
	}
	d.logger.Debug("opening radar volume", "convention", d.conv.Name())
	d.coords = newCoordinateCache(src, d.conv, d.rec)

	aux, err := d.conv.AuxTables(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("read index tables: %w", err)
	}
	cfg := readerConfig{marker: o.marker, cacheSweeps: o.cacheSweeps, rec: d.rec}
	for _, name := range d.conv.DataFields(src) {
		r, err := d.buildReader(ctx, name, aux, o.strides, cfg)
		var geomErr *GeometryError
		switch {
		case errors.As(err, &geomErr):
			d.excluded[name] = err
			d.rec.FieldExcluded()
			d.logger.Warn("excluding field", "field", name, "error", err)
			continue
		case err != nil:
			return nil, fmt.Errorf("open field %s: %w", name, err)
		}
		d.readers[name] = r
		d.names = append(d.names, name)
	}
	d.state.Store(int32(StateGeometryBuilt))

	if d.site, err = readSite(ctx, src, d.conv.Site()); err != nil {
		return nil, fmt.Errorf("read site metadata: %w", err)
	}
	d.state.Store(int32(StateReady))
	d.logger.Info("radar volume ready",
		"convention", d.conv.Name(),
		"station", d.site.StationID,
		"fields", len(d.names),
		"excluded", len(d.excluded),
	)
	return d, nil
}

func (d *Dataset) buildReader(ctx context.Context, name string, aux AuxTables, strides StrideTable, cfg readerConfig) (*SweepReader, error) {
	info, ok := d.src.Field(name)
	if !ok {
		return nil, geometryErrorf(name, "field is listed but not readable")
	}
	if fine, ok := d.conv.Overlay(d.src, name); ok {
		fineInfo, _ := d.src.Field(fine)
		in := MergeInput{Field: name, Coarse: info, Fine: fineInfo}
		var err error
		if in.CoarseGateSz, err = d.spacing(ctx, name, name); err != nil {
			return nil, err
		}
		if in.FineGateSz, err = d.spacing(ctx, name, fine); err != nil {
			return nil, err
		}
		m, err := NewResolutionMerger(in, strides)
		if err != nil {
			return nil, err
		}
		d.logger.Debug("merging resolutions", "field", name, "overlay", fine,
			"ray_stride", m.Stride.Ray, "gate_stride", m.Stride.Gate, "width", m.Width)
		return newSweepReader(d.src, info, m.Geometry(), nil, m, cfg), nil
	}
	geom, index, err := DescribeGeometry(info, aux)
	if err != nil {
		return nil, err
	}
	return newSweepReader(d.src, info, geom, index, nil, cfg), nil
}

// spacing is range(1) - range(0) of variable v, or NaN when unknown.
func (d *Dataset) spacing(ctx context.Context, field, v string) (float64, error) {
	vals, err := d.coords.gateValues(ctx, field, sweepSource{Var: v, Width: 2, Stride: Stride{Ray: 1, Gate: 1}})
	if IsMissingMetadata(err) {
		return math.NaN(), nil
	}
	if err != nil {
		return 0, err
	}
	return vals[1] - vals[0], nil
}

// State returns the current lifecycle state.
func (d *Dataset) State() State { return State(d.state.Load()) }

// Convention returns the naming convention the dataset was opened with.
func (d *Dataset) Convention() Convention { return d.conv }

func (d *Dataset) ready() error {
	switch d.State() {
	case StateReady:
		return nil
	case StateClosed:
		return ErrClosed
	}
	return ErrNotReady
}

func (d *Dataset) reader(field string) (*SweepReader, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	r, ok := d.readers[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return r, nil
}

// ListFields returns the readable data fields in name order.
func (d *Dataset) ListFields() []string {
	if d.ready() != nil {
		return nil
	}
	return append([]string(nil), d.names...)
}

// Excluded returns the fields dropped at open with the reason for each.
func (d *Dataset) Excluded() map[string]error {
	out := make(map[string]error, len(d.excluded))
	for k, v := range d.excluded {
		out[k] = v
	}
	return out
}

// DescribeGeometry returns the logical geometry of field.
func (d *Dataset) DescribeGeometry(field string) (SweepGeometry, error) {
	r, err := d.reader(field)
	if err != nil {
		return SweepGeometry{}, err
	}
	return r.Geometry(), nil
}

// ReadSweep returns sweep s of field as a row-major [rays × gates] buffer.
func (d *Dataset) ReadSweep(ctx context.Context, field string, s int) ([]float64, error) {
	r, err := d.reader(field)
	if err != nil {
		return nil, err
	}
	return r.ReadSweep(ctx, s)
}

// ReadRay returns ray r of sweep s of field.
func (d *Dataset) ReadRay(ctx context.Context, field string, s, ray int) ([]float64, error) {
	r, err := d.reader(field)
	if err != nil {
		return nil, err
	}
	return r.ReadRay(ctx, s, ray)
}

// ReadAll returns every sweep of field concatenated in sweep order.
func (d *Dataset) ReadAll(ctx context.Context, field string) ([]float64, error) {
	r, err := d.reader(field)
	if err != nil {
		return nil, err
	}
	return r.ReadAll(ctx)
}

func (d *Dataset) sweepSource(field string, s int) (*SweepReader, sweepSource, error) {
	r, err := d.reader(field)
	if err != nil {
		return nil, sweepSource{}, err
	}
	if err := r.geom.checkSweep(s); err != nil {
		return nil, sweepSource{}, err
	}
	return r, r.source(s), nil
}

// MeanElevation is the mean of finite elevations over the rays of sweep s.
func (d *Dataset) MeanElevation(ctx context.Context, field string, s int) (Quantity, error) {
	_, ss, err := d.sweepSource(field, s)
	if err != nil {
		return Quantity{}, err
	}
	return d.coords.mean(ctx, field, s, ss, AxisElevation)
}

// MeanAzimuth is the mean of finite azimuths over the rays of sweep s.
func (d *Dataset) MeanAzimuth(ctx context.Context, field string, s int) (Quantity, error) {
	_, ss, err := d.sweepSource(field, s)
	if err != nil {
		return Quantity{}, err
	}
	return d.coords.mean(ctx, field, s, ss, AxisAzimuth)
}

// GateSize is the distance between the first two gates of sweep s.
func (d *Dataset) GateSize(ctx context.Context, field string, s int) (Quantity, error) {
	_, ss, err := d.sweepSource(field, s)
	if err != nil {
		return Quantity{}, err
	}
	return d.coords.gateSize(ctx, field, s, ss)
}

// RangeToFirstGate is the distance to the first gate of field.
func (d *Dataset) RangeToFirstGate(ctx context.Context, field string) (Quantity, error) {
	r, err := d.reader(field)
	if err != nil {
		return Quantity{}, err
	}
	if r.geom.NumSweeps() == 0 {
		return substituted(math.NaN()), nil
	}
	return d.coords.firstGate(ctx, field, r.source(0))
}

// BeamWidth returns the measured beam width or the 0.95 degree default.
func (d *Dataset) BeamWidth(ctx context.Context, field string) (Quantity, error) {
	if _, err := d.reader(field); err != nil {
		return Quantity{}, err
	}
	return d.coords.scalar(ctx, d.conv.BeamWidth(), DefaultBeamWidth)
}

// NyquistFrequency returns the measured Nyquist value or the default 0.
func (d *Dataset) NyquistFrequency(ctx context.Context, field string) (Quantity, error) {
	if _, err := d.reader(field); err != nil {
		return Quantity{}, err
	}
	return d.coords.scalar(ctx, d.conv.Nyquist(), DefaultNyquist)
}

// Elevations returns the elevation of every row of sweep s. A missing
// coordinate variable surfaces as *MissingMetadataError.
func (d *Dataset) Elevations(ctx context.Context, field string, s int) ([]float64, error) {
	return d.rayAxis(ctx, field, s, AxisElevation)
}

// Azimuths returns the azimuth of every row of sweep s.
func (d *Dataset) Azimuths(ctx context.Context, field string, s int) ([]float64, error) {
	return d.rayAxis(ctx, field, s, AxisAzimuth)
}

// Times returns the time coordinate of every row of sweep s.
func (d *Dataset) Times(ctx context.Context, field string, s int) ([]float64, error) {
	return d.rayAxis(ctx, field, s, AxisTime)
}

// Ranges returns the range of every gate of sweep s.
func (d *Dataset) Ranges(ctx context.Context, field string, s int) ([]float64, error) {
	_, ss, err := d.sweepSource(field, s)
	if err != nil {
		return nil, err
	}
	return d.coords.gateValues(ctx, field, ss)
}

func (d *Dataset) rayAxis(ctx context.Context, field string, s int, axis Axis) ([]float64, error) {
	_, ss, err := d.sweepSource(field, s)
	if err != nil {
		return nil, err
	}
	return d.coords.rayValues(ctx, field, ss, axis)
}

// Site returns the station metadata of the volume.
func (d *Dataset) Site() (Site, error) {
	if err := d.ready(); err != nil {
		return Site{}, err
	}
	return d.site, nil
}

// Close releases cached buffers and coordinate arrays and closes the
// source if it implements io.Closer. Close is idempotent. It must not run
// concurrently with reads.
func (d *Dataset) Close() error {
	d.closeOnce.Do(func() {
		prev := d.State()
		d.state.Store(int32(StateClosed))
		for _, r := range d.readers {
			r.close()
		}
		if d.coords != nil {
			d.coords.close()
		}
		d.readers = nil
		if c, ok := d.src.(io.Closer); ok {
			d.closeErr = c.Close()
		}
		if d.logger != nil {
			d.logger.Debug("radar volume closed", "previous_state", prev.String())
		}
	})
	return d.closeErr
}
