package radar

import (
	"context"
	"fmt"
	"sync"
)

// --- in-memory Source used across the package tests ---

type fakeVar struct {
	info FieldInfo
	data []float64
}

type fakeSource struct {
	mu      sync.Mutex
	vars    map[string]fakeVar
	order   []string
	dims    map[string]int
	globals map[string]any

	reads   int
	failOn  string
	failErr error
	closed  int
}

func newFake() *fakeSource {
	return &fakeSource{
		vars:    make(map[string]fakeVar),
		dims:    make(map[string]int),
		globals: make(map[string]any),
	}
}

func (f *fakeSource) dim(name string, n int) *fakeSource {
	f.dims[name] = n
	return f
}

func (f *fakeSource) global(name string, v any) *fakeSource {
	f.globals[name] = v
	return f
}

// variable adds a variable whose shape follows its dimensions.
func (f *fakeSource) variable(name string, dims []string, data []float64, attrs map[string]any) *fakeSource {
	shape := make([]int, len(dims))
	n := 1
	for i, d := range dims {
		l, ok := f.dims[d]
		if !ok {
			panic(fmt.Sprintf("fake: unknown dimension %q", d))
		}
		shape[i] = l
		n *= l
	}
	if len(data) != n {
		panic(fmt.Sprintf("fake: %s has %d values, shape %v needs %d", name, len(data), shape, n))
	}
	if _, ok := f.vars[name]; !ok {
		f.order = append(f.order, name)
	}
	f.vars[name] = fakeVar{info: FieldInfo{Name: name, Dimensions: dims, Shape: shape, Attributes: attrs}, data: data}
	return f
}

func (f *fakeSource) fail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn, f.failErr = name, err
}

func (f *fakeSource) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeSource) Fields() []string { return append([]string(nil), f.order...) }

func (f *fakeSource) Field(name string) (FieldInfo, bool) {
	v, ok := f.vars[name]
	return v.info, ok
}

func (f *fakeSource) GlobalAttribute(name string) (any, bool) {
	v, ok := f.globals[name]
	return v, ok
}

func (f *fakeSource) Dimension(name string) (int, bool) {
	n, ok := f.dims[name]
	return n, ok
}

func (f *fakeSource) Read(_ context.Context, name string, origin, shape []int) ([]float64, error) {
	f.mu.Lock()
	f.reads++
	failOn, failErr := f.failOn, f.failErr
	f.mu.Unlock()
	if name == failOn {
		return nil, failErr
	}
	v, ok := f.vars[name]
	if !ok {
		return nil, fmt.Errorf("no variable %q", name)
	}
	if err := CheckWindow(name, v.info.Shape, origin, shape); err != nil {
		return nil, err
	}
	return slab(v.data, v.info.Shape, origin, shape), nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// slab extracts a row-major hyperslab.
func slab(data []float64, dims, origin, shape []int) []float64 {
	n := 1
	for _, s := range shape {
		n *= s
	}
	out := make([]float64, 0, n)
	if n == 0 {
		return out
	}
	strides := make([]int, len(dims))
	st := 1
	for i := len(dims) - 1; i >= 0; i-- {
		strides[i] = st
		st *= dims[i]
	}
	idx := make([]int, len(shape))
	for {
		off := 0
		for i := range idx {
			off += (origin[i] + idx[i]) * strides[i]
		}
		out = append(out, data[off])
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return out
		}
	}
}

func seq(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func ints(vals ...int) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = float64(v)
	}
	return out
}

// --- fixtures ---

// scenarioAVolume is a CF/Radial ragged volume with one sweep of two rays
// holding 3 and 5 gates.
func scenarioAVolume() *fakeSource {
	f := newFake().
		dim("time", 2).dim("range", 5).dim("n_points", 8).dim("sweep", 1)
	f.variable("sweep_start_ray_index", []string{"sweep"}, ints(0), nil).
		variable("sweep_end_ray_index", []string{"sweep"}, ints(1), nil).
		variable("ray_n_gates", []string{"time"}, ints(3, 5), nil).
		variable("ray_start_index", []string{"time"}, ints(0, 3), nil).
		variable("DBZ", []string{"n_points"}, seq(8, 1, 1), nil).
		variable("azimuth", []string{"time"}, []float64{10, 20}, nil).
		variable("elevation", []string{"time"}, []float64{0.5, 0.7}, nil).
		variable("time", []string{"time"}, []float64{0, 1}, nil).
		variable("range", []string{"range"}, seq(5, 100, 250), nil)
	return f
}

// raggedVolume has two sweeps with uneven and zero-length rays, and one
// sentinel in the data.
func raggedVolume() *fakeSource {
	f := newFake().
		dim("time", 5).dim("range", 4).dim("n_points", 10).dim("sweep", 2)
	data := seq(10, 1, 1)
	data[4] = -32768
	f.variable("sweep_start_ray_index", []string{"sweep"}, ints(0, 3), nil).
		variable("sweep_end_ray_index", []string{"sweep"}, ints(2, 4), nil).
		variable("ray_n_gates", []string{"time"}, ints(3, 0, 2, 4, 1), nil).
		variable("DBZ", []string{"n_points"}, data, nil).
		variable("VEL", []string{"n_points"}, seq(10, -5, 1), map[string]any{"_FillValue": float32(-5)}).
		variable("azimuth", []string{"time"}, []float64{0, 90, 180, 270, 360}, nil).
		variable("elevation", []string{"time"}, []float64{0.5, 0.5, 0.6, 1.5, 1.5}, nil).
		variable("time", []string{"time"}, seq(5, 0, 1), nil).
		variable("range", []string{"range"}, seq(4, 0, 150), nil)
	return f
}

// fixed2DVolume is a CF/Radial [time, range] volume with two sweeps.
func fixed2DVolume() *fakeSource {
	f := newFake().
		dim("time", 6).dim("range", 4).dim("sweep", 2)
	f.variable("sweep_start_ray_index", []string{"sweep"}, ints(0, 3), nil).
		variable("sweep_end_ray_index", []string{"sweep"}, ints(2, 5), nil).
		variable("VEL", []string{"time", "range"}, seq(24, 0, 1), map[string]any{"scale_factor": 0.5, "add_offset": 1.0}).
		variable("azimuth", []string{"time"}, seq(6, 0, 60), nil).
		variable("elevation", []string{"time"}, []float64{1, 1, 1, 2, 2, 2}, nil).
		variable("time", []string{"time"}, seq(6, 0, 1), nil).
		variable("range", []string{"range"}, seq(4, 500, 250), nil)
	return f
}

// levelIIVolume has a composite Reflectivity (coarse [2, 4, 10] at 250 m,
// fine [1, 8, 20] at 125 m) and a plain Velocity [2, 4, 10].
func levelIIVolume() *fakeSource {
	f := newFake().
		dim("scanR", 2).dim("radialR", 4).dim("gateR", 10).
		dim("scanR_HI", 1).dim("radialR_HI", 8).dim("gateR_HI", 20).
		dim("scanV", 2).dim("radialV", 4).dim("gateV", 10)
	f.variable("Reflectivity", []string{"scanR", "radialR", "gateR"}, seq(80, 0, 1), nil).
		variable("Reflectivity_HI", []string{"scanR_HI", "radialR_HI", "gateR_HI"}, seq(160, 1000, 1), nil).
		variable("distanceR", []string{"gateR"}, seq(10, 2000, 250), nil).
		variable("distanceR_HI", []string{"gateR_HI"}, seq(20, 2000, 125), nil).
		variable("azimuthR", []string{"scanR", "radialR"}, seq(8, 0, 45), nil).
		variable("elevationR", []string{"scanR", "radialR"}, []float64{1.5, 1.5, 1.5, 1.5, 2.4, 2.4, 2.4, 2.4}, nil).
		variable("azimuthR_HI", []string{"scanR_HI", "radialR_HI"}, seq(8, 0, 45), nil).
		variable("elevationR_HI", []string{"scanR_HI", "radialR_HI"}, []float64{0.5, 0.4, 0.5, 0.4, 0.5, 0.4, 0.5, 0.4}, nil).
		variable("Velocity", []string{"scanV", "radialV", "gateV"}, seq(80, 0, 1), nil).
		variable("distanceV", []string{"gateV"}, seq(10, 2000, 250), nil).
		variable("azimuthV", []string{"scanV", "radialV"}, seq(8, 0, 45), nil).
		variable("elevationV", []string{"scanV", "radialV"}, []float64{0.5, 0.5, 0.5, 0.5, 1.5, 1.5, 1.5, 1.5}, nil)
	f.global("Station", "KTLX").
		global("StationName", "Oklahoma City").
		global("StationLatitude", 35.333).
		global("StationLongitude", -97.278).
		global("StationElevationInMeters", 370.0).
		global("HorizontalBeamWidthInDegrees", 1.0).
		global("time_coverage_start", "2024-05-06T23:01:02Z")
	return f
}
