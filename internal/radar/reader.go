package radar

import (
	"context"
	"fmt"
)

// SweepReader is the read surface of one field. It dispatches on the
// field's storage mode and rewrites sentinels on every buffer it returns.
type SweepReader struct {
	field    string
	fa       FieldAccess
	info     FieldInfo
	geom     SweepGeometry
	index    *RayIndexTable
	merger   *ResolutionMerger
	policies map[string]MissingPolicy
	marker   float64
	sweeps   *memo[int, []float64] // nil when sweep caching is off
	rec      Recorder
}

type readerConfig struct {
	marker      float64
	cacheSweeps bool
	rec         Recorder
}

func newSweepReader(fa FieldAccess, info FieldInfo, geom SweepGeometry, index *RayIndexTable, merger *ResolutionMerger, cfg readerConfig) *SweepReader {
	r := &SweepReader{
		field:    info.Name,
		fa:       fa,
		info:     info,
		geom:     geom,
		index:    index,
		merger:   merger,
		policies: map[string]MissingPolicy{info.Name: NewMissingPolicy(info).WithMarker(cfg.marker)},
		marker:   cfg.marker,
		rec:      cfg.rec,
	}
	if merger != nil {
		r.policies[merger.fine.Name] = NewMissingPolicy(merger.fine).WithMarker(cfg.marker)
	}
	if cfg.cacheSweeps {
		r.sweeps = newMemo[int, []float64]()
	}
	return r
}

// Geometry returns the field's logical geometry.
func (r *SweepReader) Geometry() SweepGeometry { return r.geom }

// modeLabel names the dispatch path for metrics.
func (r *SweepReader) modeLabel() string {
	if r.geom.Composite {
		return "composite"
	}
	return r.geom.Mode.String()
}

// source locates logical sweep s in its backing variable.
func (r *SweepReader) source(s int) sweepSource {
	if r.merger != nil {
		p := r.merger.resolve(s)
		return sweepSource{
			Var:      p.Source.Name,
			Local:    p.Local,
			FirstRay: p.Local * p.Source.Shape[1],
			Rows:     p.Rows,
			Width:    p.Width,
			Stride:   p.Stride,
		}
	}
	ext := r.geom.Sweeps[s]
	return sweepSource{
		Var:      r.field,
		Local:    s,
		FirstRay: ext.StartRay,
		Rows:     ext.NumRays(),
		Width:    ext.Gates,
		Stride:   Stride{Ray: 1, Gate: 1},
	}
}

// ReadSweep returns sweep s as a row-major [NumRays(s) × NumGates(s)] buffer.
func (r *SweepReader) ReadSweep(ctx context.Context, s int) ([]float64, error) {
	if err := r.geom.checkSweep(s); err != nil {
		return nil, err
	}
	buf, err := r.sweep(ctx, s)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), buf...), nil
}

// sweep returns the possibly shared buffer of sweep s.
func (r *SweepReader) sweep(ctx context.Context, s int) ([]float64, error) {
	if r.sweeps == nil {
		return r.readSweep(ctx, s)
	}
	buf, hit, err := r.sweeps.get(s, func() ([]float64, error) { return r.readSweep(ctx, s) })
	if err != nil {
		return nil, err
	}
	r.rec.CacheLookup("sweep", hit)
	return buf, nil
}

// ReadRay returns row ray of sweep s, NumGates(s) long.
func (r *SweepReader) ReadRay(ctx context.Context, s, ray int) ([]float64, error) {
	if err := r.geom.checkRay(s, ray); err != nil {
		return nil, err
	}
	ngates := r.geom.NumGates(s)
	if r.sweeps != nil {
		buf, err := r.sweep(ctx, s)
		if err != nil {
			return nil, err
		}
		return append([]float64(nil), buf[ray*ngates:(ray+1)*ngates]...), nil
	}
	if r.index != nil {
		off, n := r.index.RayWindow(r.geom.Sweeps[s].StartRay + ray)
		row, err := r.read(ctx, r.field, []int{off}, []int{n})
		if err != nil {
			return nil, err
		}
		r.rec.SweepRead(r.modeLabel())
		return padRow(row, ngates, r.marker), nil
	}
	row, err := r.readRows(ctx, r.source(s), ray, 1)
	if err != nil {
		return nil, err
	}
	r.rec.SweepRead(r.modeLabel())
	return row, nil
}

// ReadAll concatenates every sweep in sweep order.
func (r *SweepReader) ReadAll(ctx context.Context) ([]float64, error) {
	n := 0
	for s := range r.geom.Sweeps {
		n += r.geom.NumRays(s) * r.geom.NumGates(s)
	}
	out := make([]float64, 0, n)
	for s := range r.geom.Sweeps {
		buf, err := r.sweep(ctx, s)
		if err != nil {
			return nil, err
		}
		out = append(out, buf...)
	}
	return out, nil
}

func (r *SweepReader) readSweep(ctx context.Context, s int) ([]float64, error) {
	ss := r.source(s)
	var (
		buf []float64
		err error
	)
	if r.index != nil {
		ext := r.geom.Sweeps[s]
		off, n := r.index.SweepWindow(ext.StartRay, ext.EndRay)
		var window []float64
		if window, err = r.read(ctx, r.field, []int{off}, []int{n}); err == nil {
			buf = r.index.Assemble(ext, window, r.marker)
		}
	} else {
		buf, err = r.readRows(ctx, ss, 0, ss.Rows)
	}
	if err != nil {
		return nil, err
	}
	r.rec.SweepRead(r.modeLabel())
	return buf, nil
}

// readRows reads logical rows [row0, row0+rows) of a fixed-layout sweep,
// subsampling by the sweep's stride.
func (r *SweepReader) readRows(ctx context.Context, ss sweepSource, row0, rows int) ([]float64, error) {
	if rows == 0 || ss.Width == 0 {
		return make([]float64, rows*ss.Width), nil
	}
	nrows := span(rows, ss.Stride.Ray)
	ncols := span(ss.Width, ss.Stride.Gate)
	var origin, shape []int
	switch rank := len(r.sourceInfo(ss.Var).Shape); rank {
	case 3:
		origin = []int{ss.Local, row0 * ss.Stride.Ray, 0}
		shape = []int{1, nrows, ncols}
	case 2:
		origin = []int{ss.FirstRay + row0*ss.Stride.Ray, 0}
		shape = []int{nrows, ncols}
	default:
		return nil, geometryErrorf(r.field, "cannot read rows of rank %d variable %q", rank, ss.Var)
	}
	buf, err := r.read(ctx, ss.Var, origin, shape)
	if err != nil {
		return nil, err
	}
	return subsample(buf, ncols, ss.Stride, rows, ss.Width), nil
}

func (r *SweepReader) sourceInfo(name string) FieldInfo {
	if r.merger != nil {
		if name == r.merger.fine.Name {
			return r.merger.fine
		}
		return r.merger.coarse
	}
	return r.info
}

// read performs one windowed read and applies the variable's missing policy.
func (r *SweepReader) read(ctx context.Context, name string, origin, shape []int) ([]float64, error) {
	want := 1
	for _, n := range shape {
		want *= n
	}
	if want == 0 {
		return []float64{}, nil
	}
	buf, err := r.fa.Read(ctx, name, origin, shape)
	if err != nil {
		r.rec.ReadError()
		return nil, &UnderlyingReadError{Field: name, Err: err}
	}
	if len(buf) != want {
		r.rec.ReadError()
		return nil, &UnderlyingReadError{Field: name, Err: fmt.Errorf("read %v at %v returned %d values, want %d", shape, origin, len(buf), want)}
	}
	return r.policies[name].Apply(buf), nil
}

func (r *SweepReader) close() {
	if r.sweeps != nil {
		r.sweeps.reset()
	}
}
