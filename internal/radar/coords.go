package radar

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Axis is a coordinate kind.
type Axis int

const (
	AxisAzimuth Axis = iota + 1
	AxisElevation
	AxisTime
	AxisRange
)

func (a Axis) String() string {
	switch a {
	case AxisAzimuth:
		return "azimuth"
	case AxisElevation:
		return "elevation"
	case AxisTime:
		return "time"
	case AxisRange:
		return "range"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// Documented defaults for values most volumes do not carry.
const (
	DefaultBeamWidth = 0.95 // degrees
	DefaultNyquist   = 0.0
)

// Quantity is a statistic that may be a substituted default rather than a
// measurement. Means over zero finite samples are NaN and Substituted.
type Quantity struct {
	Value       float64
	Substituted bool
}

func measured(v float64) Quantity { return Quantity{Value: v} }

func substituted(v float64) Quantity { return Quantity{Value: v, Substituted: true} }

// sweepSource locates logical sweep rows in a physical variable. Row i of
// the sweep is global ray FirstRay + i*Stride.Ray of Var, and gate j is
// source gate j*Stride.Gate.
type sweepSource struct {
	Var      string
	Local    int
	FirstRay int
	Rows     int
	Width    int
	Stride   Stride
}

type coordKey struct {
	variable string
	axis     Axis
}

type statKey struct {
	field string
	sweep int
	stat  string
}

type coordArray struct {
	values []float64
	shape  []int
}

// CoordinateCache lazily loads coordinate variables and memoises derived
// per-sweep statistics. Arrays are keyed by (variable, axis) so fields that
// share coordinates share one load.
type CoordinateCache struct {
	src     Source
	conv    Convention
	rec     Recorder
	arrays  *memo[coordKey, coordArray]
	stats   *memo[statKey, Quantity]
	scalars *memo[string, Quantity]
}

func newCoordinateCache(src Source, conv Convention, rec Recorder) *CoordinateCache {
	return &CoordinateCache{
		src:     src,
		conv:    conv,
		rec:     rec,
		arrays:  newMemo[coordKey, coordArray](),
		stats:   newMemo[statKey, Quantity](),
		scalars: newMemo[string, Quantity](),
	}
}

// load returns the whole coordinate array of axis for source variable v,
// with sentinels rewritten to NaN.
func (c *CoordinateCache) load(ctx context.Context, field, v string, axis Axis) (coordArray, error) {
	name := c.conv.Coordinate(v, axis)
	if name == "" {
		return coordArray{}, &MissingMetadataError{Field: field, Axis: axis}
	}
	arr, hit, err := c.arrays.get(coordKey{variable: name, axis: axis}, func() (coordArray, error) {
		info, ok := c.src.Field(name)
		if !ok {
			return coordArray{}, &MissingMetadataError{Field: field, Axis: axis, Variable: name}
		}
		vals, err := readFull(ctx, c.src, info)
		if err != nil {
			return coordArray{}, &UnderlyingReadError{Field: name, Err: err}
		}
		return coordArray{values: NewMissingPolicy(info).Apply(vals), shape: info.Shape}, nil
	})
	if err == nil {
		c.rec.CacheLookup("coordinate", hit)
	}
	return arr, err
}

// rayValues returns one value per logical row of a sweep.
func (c *CoordinateCache) rayValues(ctx context.Context, field string, ss sweepSource, axis Axis) ([]float64, error) {
	arr, err := c.load(ctx, field, ss.Var, axis)
	if err != nil {
		return nil, err
	}
	out := make([]float64, ss.Rows)
	for i := range out {
		r := ss.FirstRay + i*ss.Stride.Ray
		if r < len(arr.values) {
			out[i] = arr.values[r]
		} else {
			out[i] = math.NaN()
		}
	}
	return out, nil
}

// gateValues returns the range of each logical gate of a sweep. Range
// variables are either shared [gate] or per sweep [sweep, gate].
func (c *CoordinateCache) gateValues(ctx context.Context, field string, ss sweepSource) ([]float64, error) {
	arr, err := c.load(ctx, field, ss.Var, AxisRange)
	if err != nil {
		return nil, err
	}
	// A sweep with no row of its own has no known ranges.
	var row []float64
	switch len(arr.shape) {
	case 1:
		row = arr.values
	case 2:
		if n := arr.shape[1]; ss.Local < arr.shape[0] {
			row = arr.values[ss.Local*n : (ss.Local+1)*n]
		}
	}
	out := make([]float64, ss.Width)
	for j := range out {
		g := j * ss.Stride.Gate
		if g < len(row) {
			out[j] = row[g]
		} else {
			out[j] = math.NaN()
		}
	}
	return out, nil
}

// mean is the memoised arithmetic mean of finite ray values of a sweep.
func (c *CoordinateCache) mean(ctx context.Context, field string, s int, ss sweepSource, axis Axis) (Quantity, error) {
	q, hit, err := c.stats.get(statKey{field: field, sweep: s, stat: "mean-" + axis.String()}, func() (Quantity, error) {
		vals, err := c.rayValues(ctx, field, ss, axis)
		if IsMissingMetadata(err) {
			return substituted(math.NaN()), nil
		}
		if err != nil {
			return Quantity{}, err
		}
		return finiteMean(vals), nil
	})
	if err == nil {
		c.rec.CacheLookup("statistic", hit)
	}
	return q, err
}

// gateSize is range(1) - range(0) of the sweep's logical gates.
func (c *CoordinateCache) gateSize(ctx context.Context, field string, s int, ss sweepSource) (Quantity, error) {
	q, hit, err := c.stats.get(statKey{field: field, sweep: s, stat: "gate-size"}, func() (Quantity, error) {
		head := ss
		head.Width = 2
		vals, err := c.gateValues(ctx, field, head)
		if IsMissingMetadata(err) {
			return substituted(math.NaN()), nil
		}
		if err != nil {
			return Quantity{}, err
		}
		d := vals[1] - vals[0]
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return substituted(math.NaN()), nil
		}
		return measured(d), nil
	})
	if err == nil {
		c.rec.CacheLookup("statistic", hit)
	}
	return q, err
}

// firstGate is range(0) of the sweep's source variable.
func (c *CoordinateCache) firstGate(ctx context.Context, field string, ss sweepSource) (Quantity, error) {
	head := ss
	head.Width = 1
	vals, err := c.gateValues(ctx, field, head)
	if IsMissingMetadata(err) {
		return substituted(math.NaN()), nil
	}
	if err != nil {
		return Quantity{}, err
	}
	if math.IsNaN(vals[0]) {
		return substituted(math.NaN()), nil
	}
	return measured(vals[0]), nil
}

// scalar returns a measured value from the named variable or global
// attribute, falling back to def.
func (c *CoordinateCache) scalar(ctx context.Context, name string, def float64) (Quantity, error) {
	if name == "" {
		return substituted(def), nil
	}
	q, _, err := c.scalars.get(name, func() (Quantity, error) {
		if info, ok := c.src.Field(name); ok {
			vals, err := readFull(ctx, c.src, info)
			if err != nil {
				return Quantity{}, &UnderlyingReadError{Field: name, Err: err}
			}
			q := finiteMean(NewMissingPolicy(info).Apply(vals))
			if q.Substituted {
				return substituted(def), nil
			}
			return q, nil
		}
		if v, ok := c.src.GlobalAttribute(name); ok {
			if f, ok := numeric(v); ok && !math.IsNaN(f) {
				return measured(f), nil
			}
		}
		return substituted(def), nil
	})
	return q, err
}

func (c *CoordinateCache) close() {
	c.arrays.reset()
	c.stats.reset()
	c.scalars.reset()
}

// finiteMean averages the finite entries of vals. No finite entries yields
// NaN flagged as substituted.
func finiteMean(vals []float64) Quantity {
	finite := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return substituted(math.NaN())
	}
	return measured(floats.Sum(finite) / float64(len(finite)))
}
