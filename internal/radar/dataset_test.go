package radar

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- recorder mock ---

type countingRecorder struct {
	reads    map[string]int
	errors   int
	hits     map[string]int
	misses   map[string]int
	excluded int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{reads: map[string]int{}, hits: map[string]int{}, misses: map[string]int{}}
}

func (r *countingRecorder) SweepRead(mode string) { r.reads[mode]++ }
func (r *countingRecorder) ReadError()            { r.errors++ }
func (r *countingRecorder) FieldExcluded()        { r.excluded++ }

func (r *countingRecorder) CacheLookup(cache string, hit bool) {
	if hit {
		r.hits[cache]++
	} else {
		r.misses[cache]++
	}
}

func openDataset(t *testing.T, src Source, opts ...Option) *Dataset {
	t.Helper()
	d, err := Open(context.Background(), src, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

var equateNaN = cmpopts.EquateNaNs()

// --- tests ---

func TestOpen_RaggedTwoRaysWithMarker(t *testing.T) {
	d := openDataset(t, scenarioAVolume(), WithMarker(-999))

	assert.Equal(t, CFRadialName, d.Convention().Name())
	assert.Equal(t, []string{"DBZ"}, d.ListFields())

	g, err := d.DescribeGeometry("DBZ")
	require.NoError(t, err)
	assert.Equal(t, RaggedFlattened, g.Mode)
	assert.Equal(t, []SweepExtent{{StartRay: 0, EndRay: 1, Gates: 5}}, g.Sweeps)

	got, err := d.ReadSweep(context.Background(), "DBZ", 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, -999, -999, 4, 5, 6, 7, 8}, got)
}

func TestReadSweep_Fixed3DBlock(t *testing.T) {
	src := levelIIVolume()
	d := openDataset(t, src)

	got, err := d.ReadSweep(context.Background(), "Velocity", 1)
	require.NoError(t, err)
	require.Len(t, got, 4*10)
	assert.Equal(t, seq(40, 40, 1), got)

	g, err := d.DescribeGeometry("Velocity")
	require.NoError(t, err)
	assert.Equal(t, Fixed3D, g.Mode)
	assert.False(t, g.Composite)
}

func TestReadSweep_RaggedSentinelsAndPadding(t *testing.T) {
	d := openDataset(t, raggedVolume())

	s0, err := d.ReadSweep(context.Background(), "DBZ", 0)
	require.NoError(t, err)
	want0 := []float64{
		1, 2, 3,
		nan(), nan(), nan(),
		4, nan(), nan(),
	}
	if diff := cmp.Diff(want0, s0, equateNaN); diff != "" {
		t.Errorf("sweep 0 mismatch (-want +got):\n%s", diff)
	}

	s1, err := d.ReadSweep(context.Background(), "DBZ", 1)
	require.NoError(t, err)
	want1 := []float64{
		6, 7, 8, 9,
		10, nan(), nan(), nan(),
	}
	if diff := cmp.Diff(want1, s1, equateNaN); diff != "" {
		t.Errorf("sweep 1 mismatch (-want +got):\n%s", diff)
	}

	vel, err := d.ReadRay(context.Background(), "VEL", 0, 0)
	require.NoError(t, err)
	if diff := cmp.Diff([]float64{nan(), -4, -3}, vel, equateNaN); diff != "" {
		t.Errorf("VEL ray mismatch (-want +got):\n%s", diff)
	}
}

func TestReadSweep_Fixed2DUnpacks(t *testing.T) {
	d := openDataset(t, fixed2DVolume())

	g, err := d.DescribeGeometry("VEL")
	require.NoError(t, err)
	assert.Equal(t, Fixed2D, g.Mode)
	require.Equal(t, 2, g.NumSweeps())

	got, err := d.ReadSweep(context.Background(), "VEL", 1)
	require.NoError(t, err)
	want := make([]float64, 12)
	for i := range want {
		want[i] = float64(12+i)*0.5 + 1
	}
	assert.Equal(t, want, got)
}

// Row i of ReadSweep equals ReadRay(i), with and without the sweep cache,
// for every storage mode.
func TestReadSweep_RowsMatchReadRay(t *testing.T) {
	volumes := []struct {
		name  string
		src   func() *fakeSource
		field string
	}{
		{name: "fixed3d", src: levelIIVolume, field: "Velocity"},
		{name: "composite", src: levelIIVolume, field: "Reflectivity"},
		{name: "fixed2d", src: fixed2DVolume, field: "VEL"},
		{name: "ragged", src: raggedVolume, field: "DBZ"},
	}
	for _, v := range volumes {
		for _, cache := range []bool{true, false} {
			t.Run(fmt.Sprintf("%s/cache=%v", v.name, cache), func(t *testing.T) {
				ctx := context.Background()
				d := openDataset(t, v.src(), WithSweepCache(cache))
				g, err := d.DescribeGeometry(v.field)
				require.NoError(t, err)

				var all []float64
				for s := 0; s < g.NumSweeps(); s++ {
					sweep, err := d.ReadSweep(ctx, v.field, s)
					require.NoError(t, err)
					require.Len(t, sweep, g.NumRays(s)*g.NumGates(s))
					all = append(all, sweep...)

					for r := 0; r < g.NumRays(s); r++ {
						ray, err := d.ReadRay(ctx, v.field, s, r)
						require.NoError(t, err)
						row := sweep[r*g.NumGates(s) : (r+1)*g.NumGates(s)]
						if diff := cmp.Diff(row, ray, equateNaN); diff != "" {
							t.Errorf("sweep %d ray %d mismatch (-sweep +ray):\n%s", s, r, diff)
						}
					}
				}

				got, err := d.ReadAll(ctx, v.field)
				require.NoError(t, err)
				if diff := cmp.Diff(all, got, equateNaN); diff != "" {
					t.Errorf("ReadAll is not the concatenation of sweeps (-sweeps +all):\n%s", diff)
				}
			})
		}
	}
}

func TestReadAll_CompositeLength(t *testing.T) {
	d := openDataset(t, levelIIVolume())

	g, err := d.DescribeGeometry("Reflectivity")
	require.NoError(t, err)
	assert.True(t, g.Composite)
	require.Equal(t, 3, g.NumSweeps())

	const (
		rayStride, gateStride = 2, 4
		fineRows              = 8 / rayStride
		coarseRows            = 4
		width                 = 20 / gateStride // min(10, 20/4)
	)
	for s := 0; s < 3; s++ {
		assert.Equal(t, width, g.NumGates(s))
	}
	assert.Equal(t, fineRows, g.NumRays(0))
	assert.Equal(t, coarseRows, g.NumRays(1))

	all, err := d.ReadAll(context.Background(), "Reflectivity")
	require.NoError(t, err)
	assert.Len(t, all, 1*fineRows*width+2*coarseRows*width)

	// fine sweep: every second ray, every fourth gate of Reflectivity_HI
	for i := 0; i < fineRows; i++ {
		for j := 0; j < width; j++ {
			assert.Equal(t, 1000+float64(i*rayStride*20+j*gateStride), all[i*width+j], "fine row %d gate %d", i, j)
		}
	}
	// coarse sweeps follow, truncated to the merged width
	base := fineRows * width
	for s := 0; s < 2; s++ {
		for i := 0; i < coarseRows; i++ {
			for j := 0; j < width; j++ {
				want := float64(s*40 + i*10 + j)
				assert.Equal(t, want, all[base+(s*coarseRows+i)*width+j])
			}
		}
	}
}

func TestReadAll_CompositeGateStrideAttribute(t *testing.T) {
	src := levelIIVolume()
	fine := src.vars["Reflectivity_HI"]
	fine.info.Attributes = map[string]any{"gate_stride": int32(2)}
	src.vars["Reflectivity_HI"] = fine

	d := openDataset(t, src)
	g, err := d.DescribeGeometry("Reflectivity")
	require.NoError(t, err)
	assert.Equal(t, 10, g.NumGates(0)) // min(10, 20/2)
}

func TestCoordinates_Composite(t *testing.T) {
	ctx := context.Background()
	d := openDataset(t, levelIIVolume())

	el, err := d.MeanElevation(ctx, "Reflectivity", 0)
	require.NoError(t, err)
	assert.Equal(t, Quantity{Value: 0.5}, el)

	az, err := d.Azimuths(ctx, "Reflectivity", 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 90, 180, 270}, az)

	gs, err := d.GateSize(ctx, "Reflectivity", 0)
	require.NoError(t, err)
	assert.Equal(t, Quantity{Value: 500}, gs)

	gs, err = d.GateSize(ctx, "Reflectivity", 1)
	require.NoError(t, err)
	assert.Equal(t, Quantity{Value: 250}, gs)

	el, err = d.MeanElevation(ctx, "Reflectivity", 2)
	require.NoError(t, err)
	assert.InDelta(t, 2.4, el.Value, 1e-12)
	assert.False(t, el.Substituted)

	first, err := d.RangeToFirstGate(ctx, "Reflectivity")
	require.NoError(t, err)
	assert.Equal(t, Quantity{Value: 2000}, first)
}

func TestRanges_PerSweepRowsMissing(t *testing.T) {
	ctx := context.Background()
	src := fixed2DVolume()
	src.dim("range_sweep", 1)
	src.variable("range", []string{"range_sweep", "range"}, seq(4, 500, 250), nil)
	d := openDataset(t, src)

	got, err := d.Ranges(ctx, "VEL", 0)
	require.NoError(t, err)
	assert.Equal(t, seq(4, 500, 250), got)
	gs, err := d.GateSize(ctx, "VEL", 0)
	require.NoError(t, err)
	assert.Equal(t, Quantity{Value: 250}, gs)

	// Sweep 1 has no range row, so its gates have no known range.
	got, err = d.Ranges(ctx, "VEL", 1)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for _, v := range got {
		assert.True(t, math.IsNaN(v))
	}
	gs, err = d.GateSize(ctx, "VEL", 1)
	require.NoError(t, err)
	assert.True(t, gs.Substituted)
	assert.True(t, math.IsNaN(gs.Value))
}

func TestMeanElevation_IdempotentFiniteMean(t *testing.T) {
	ctx := context.Background()
	src := raggedVolume()
	src.variable("elevation", []string{"time"}, []float64{0.5, math.NaN(), 0.6, 1.5, math.Inf(1)}, nil)
	rec := newCountingRecorder()
	d := openDataset(t, src, WithRecorder(rec))

	first, err := d.MeanElevation(ctx, "DBZ", 0)
	require.NoError(t, err)
	second, err := d.MeanElevation(ctx, "DBZ", 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, rec.hits["statistic"])

	els, err := d.Elevations(ctx, "DBZ", 0)
	require.NoError(t, err)
	sum, n := 0.0, 0
	for _, v := range els {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			sum += v
			n++
		}
	}
	assert.InDelta(t, sum/float64(n), first.Value, 1e-12)
	assert.False(t, first.Substituted)

	one, err := d.MeanElevation(ctx, "DBZ", 1)
	require.NoError(t, err)
	assert.Equal(t, Quantity{Value: 1.5}, one)
}

func TestMeanElevation_NoFiniteSamples(t *testing.T) {
	ctx := context.Background()
	src := raggedVolume()
	src.variable("elevation", []string{"time"}, []float64{math.NaN(), -9999, math.Inf(-1), 1, 1}, nil)
	d := openDataset(t, src)

	for i := 0; i < 2; i++ {
		q, err := d.MeanElevation(ctx, "DBZ", 0)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(q.Value))
		assert.True(t, q.Substituted)
	}
	az, err := d.MeanAzimuth(ctx, "DBZ", 0)
	require.NoError(t, err)
	assert.Equal(t, Quantity{Value: 90}, az)
}

func TestCoordinates_MissingMetadata(t *testing.T) {
	ctx := context.Background()
	src := raggedVolume()
	delete(src.vars, "elevation")
	delete(src.vars, "range")
	d := openDataset(t, src)

	_, err := d.Elevations(ctx, "DBZ", 0)
	var mm *MissingMetadataError
	require.ErrorAs(t, err, &mm)
	assert.Equal(t, AxisElevation, mm.Axis)
	assert.Equal(t, "elevation", mm.Variable)
	assert.True(t, IsMissingMetadata(err))

	q, err := d.MeanElevation(ctx, "DBZ", 0)
	require.NoError(t, err)
	assert.True(t, q.Substituted)
	assert.True(t, math.IsNaN(q.Value))

	gs, err := d.GateSize(ctx, "DBZ", 0)
	require.NoError(t, err)
	assert.True(t, gs.Substituted)

	_, err = d.Ranges(ctx, "DBZ", 0)
	require.ErrorAs(t, err, &mm)
}

func TestBeamWidthAndNyquist(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		d := openDataset(t, raggedVolume())
		bw, err := d.BeamWidth(ctx, "DBZ")
		require.NoError(t, err)
		assert.Equal(t, Quantity{Value: DefaultBeamWidth, Substituted: true}, bw)

		ny, err := d.NyquistFrequency(ctx, "DBZ")
		require.NoError(t, err)
		assert.Equal(t, Quantity{Value: DefaultNyquist, Substituted: true}, ny)
	})

	t.Run("measured", func(t *testing.T) {
		src := raggedVolume().dim("scalar", 1)
		src.variable("radar_beam_width_h", []string{"scalar"}, []float64{1.2}, nil).
			variable("nyquist_velocity", []string{"time"}, []float64{25, 25, 25, 27, 27}, nil)
		d := openDataset(t, src)

		bw, err := d.BeamWidth(ctx, "DBZ")
		require.NoError(t, err)
		assert.Equal(t, Quantity{Value: 1.2}, bw)

		ny, err := d.NyquistFrequency(ctx, "DBZ")
		require.NoError(t, err)
		assert.InDelta(t, 25.8, ny.Value, 1e-12)
		assert.False(t, ny.Substituted)
	})

	t.Run("global attribute", func(t *testing.T) {
		d := openDataset(t, levelIIVolume())
		bw, err := d.BeamWidth(ctx, "Velocity")
		require.NoError(t, err)
		assert.Equal(t, Quantity{Value: 1.0}, bw)
	})
}

func TestRead_OutOfRange(t *testing.T) {
	ctx := context.Background()
	d := openDataset(t, raggedVolume())

	var oor *OutOfRangeError
	_, err := d.ReadSweep(ctx, "DBZ", 2)
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, "sweep", oor.Axis)

	_, err = d.ReadRay(ctx, "DBZ", 1, 2)
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, "ray", oor.Axis)
	assert.Equal(t, 2, oor.Limit)

	_, err = d.MeanElevation(ctx, "DBZ", -1)
	require.ErrorAs(t, err, &oor)

	_, err = d.ReadSweep(ctx, "nope", 0)
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestRead_UnderlyingErrorIsRetryable(t *testing.T) {
	ctx := context.Background()
	src := levelIIVolume()
	rec := newCountingRecorder()
	d := openDataset(t, src, WithRecorder(rec))

	ioErr := errors.New("disk on fire")
	src.fail("Velocity", ioErr)

	_, err := d.ReadSweep(ctx, "Velocity", 0)
	var ure *UnderlyingReadError
	require.ErrorAs(t, err, &ure)
	assert.Equal(t, "Velocity", ure.Field)
	assert.ErrorIs(t, err, ioErr)
	assert.Equal(t, ioErr, errors.Unwrap(err))
	assert.Equal(t, 1, rec.errors)

	src.fail("", nil)
	got, err := d.ReadSweep(ctx, "Velocity", 0)
	require.NoError(t, err)
	assert.Equal(t, seq(40, 0, 1), got)
}

func TestReadSweep_CachedAndCopied(t *testing.T) {
	ctx := context.Background()
	src := levelIIVolume()
	rec := newCountingRecorder()
	d := openDataset(t, src, WithRecorder(rec))

	before := src.readCount()
	a, err := d.ReadSweep(ctx, "Velocity", 0)
	require.NoError(t, err)
	a[0] = -1

	b, err := d.ReadSweep(ctx, "Velocity", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, b[0])
	assert.Equal(t, before+1, src.readCount())
	assert.Equal(t, 1, rec.hits["sweep"])
	assert.Equal(t, 1, rec.reads["fixed3d"])
}

func TestOpen_ExcludesFieldsWithoutGeometry(t *testing.T) {
	src := levelIIVolume()
	delete(src.vars, "distanceR_HI")
	rec := newCountingRecorder()
	d := openDataset(t, src, WithRecorder(rec))

	assert.Equal(t, []string{"Velocity"}, d.ListFields())
	assert.Equal(t, 1, rec.excluded)
	require.Contains(t, d.Excluded(), "Reflectivity")

	var geomErr *GeometryError
	assert.ErrorAs(t, d.Excluded()["Reflectivity"], &geomErr)

	_, err := d.ReadSweep(context.Background(), "Reflectivity", 0)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestOpen_IndexTableReadFailure(t *testing.T) {
	src := raggedVolume()
	ioErr := errors.New("short read")
	src.fail("ray_n_gates", ioErr)

	_, err := Open(context.Background(), src)
	require.ErrorIs(t, err, ioErr)
	var ure *UnderlyingReadError
	assert.ErrorAs(t, err, &ure)
}

func TestSite(t *testing.T) {
	t.Run("level II attributes", func(t *testing.T) {
		d := openDataset(t, levelIIVolume())
		site, err := d.Site()
		require.NoError(t, err)
		assert.Equal(t, "KTLX", site.StationID)
		assert.Equal(t, "Oklahoma City", site.StationName)
		assert.Equal(t, Quantity{Value: 35.333}, site.Latitude)
		assert.Equal(t, Quantity{Value: 370}, site.Altitude)
		assert.True(t, site.Stationary)
		assert.Equal(t, time.Date(2024, 5, 6, 23, 1, 2, 0, time.UTC), site.Start)
		assert.True(t, site.End.IsZero())
	})

	t.Run("defaults", func(t *testing.T) {
		d := openDataset(t, raggedVolume())
		site, err := d.Site()
		require.NoError(t, err)
		assert.Equal(t, DefaultStationID, site.StationID)
		assert.Equal(t, DefaultStationName, site.StationName)
		assert.Equal(t, Quantity{Value: 0, Substituted: true}, site.Longitude)
	})

	t.Run("moving platform", func(t *testing.T) {
		src := raggedVolume()
		src.variable("latitude", []string{"time"}, []float64{10, 10, 11, 11, 12}, nil)
		src.global("instrument_name", []byte("SPOL\x00"))
		d := openDataset(t, src)
		site, err := d.Site()
		require.NoError(t, err)
		assert.False(t, site.Stationary)
		assert.InDelta(t, 10.8, site.Latitude.Value, 1e-12)
		assert.Equal(t, "SPOL", site.StationName)
	})
}

func TestDataset_Lifecycle(t *testing.T) {
	ctx := context.Background()

	var zero Dataset
	assert.Equal(t, StateUnopened, zero.State())
	_, err := zero.ReadSweep(ctx, "DBZ", 0)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Nil(t, zero.ListFields())

	src := raggedVolume()
	d, err := Open(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, StateReady, d.State())

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, StateClosed, d.State())
	assert.Equal(t, 1, src.closed)

	_, err = d.ReadSweep(ctx, "DBZ", 0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = d.MeanElevation(ctx, "DBZ", 0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = d.Site()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Nil(t, d.ListFields())
}

func TestOpen_WithConvention(t *testing.T) {
	d := openDataset(t, levelIIVolume(), WithConvention(CFRadial))
	assert.Empty(t, d.ListFields())
}
