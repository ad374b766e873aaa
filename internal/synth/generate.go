package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// Kind selects the layout a generator produces.
type Kind string

const (
	KindCFRadialRagged Kind = "cfradial-ragged"
	KindCFRadialFixed  Kind = "cfradial-fixed"
	KindLevelII        Kind = "nexrad2"
)

// Kinds lists every layout in a stable order.
var Kinds = []Kind{KindCFRadialRagged, KindCFRadialFixed, KindLevelII}

// Options parameterise a synthetic volume.
type Options struct {
	Station     string
	StationName string
	Latitude    float64
	Longitude   float64
	Altitude    float64
	Sweeps      int
	Rays        int
	Gates       int
	GateSpacing float64 // meters
	FirstGate   float64 // meters
	Start       time.Time
	Seed        uint64
}

// DefaultOptions describe a small KTLX-like volume.
func DefaultOptions() Options {
	return Options{
		Station:     "KTLX",
		StationName: "Oklahoma City",
		Latitude:    35.3331,
		Longitude:   -97.2778,
		Altitude:    370,
		Sweeps:      3,
		Rays:        36,
		Gates:       40,
		GateSpacing: 250,
		FirstGate:   2125,
		Start:       time.Date(2024, 5, 6, 23, 0, 0, 0, time.UTC),
		Seed:        1,
	}
}

func (o Options) validate() error {
	if o.Sweeps <= 0 || o.Rays <= 0 || o.Gates <= 0 {
		return fmt.Errorf("sweeps, rays and gates must be positive, got %d/%d/%d", o.Sweeps, o.Rays, o.Gates)
	}
	if o.GateSpacing <= 0 {
		return fmt.Errorf("gate spacing must be positive, got %g", o.GateSpacing)
	}
	return nil
}

// Fill values written for missing gates.
const (
	ShortFill = -32768
	FloatFill = -9999
)

// Generate dispatches on kind.
func Generate(kind Kind, o Options) (*Volume, error) {
	switch kind {
	case KindCFRadialRagged:
		return CFRadial(o, true)
	case KindCFRadialFixed:
		return CFRadial(o, false)
	case KindLevelII:
		return LevelII(o)
	}
	return nil, fmt.Errorf("unknown volume kind %q", kind)
}

// elevationAngle is a VCP-like elevation for sweep s.
func elevationAngle(s int) float64 {
	angles := []float64{0.5, 1.5, 2.4, 3.4, 4.3, 6.0, 9.9, 14.6, 19.5}
	if s < len(angles) {
		return angles[s]
	}
	return angles[len(angles)-1] + float64(s-len(angles)+1)*5
}

// field models a single storm cell with seeded measurement noise.
type field struct {
	dbzNoise distuv.Normal
	velNoise distuv.Normal
}

func newField(seed uint64) *field {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &field{
		dbzNoise: distuv.Normal{Mu: 0, Sigma: 2, Src: src},
		velNoise: distuv.Normal{Mu: 0, Sigma: 1, Src: src},
	}
}

// reflectivity returns dBZ at an azimuth (degrees) and range (meters), or
// NaN below the detection floor.
func (f *field) reflectivity(az, rng float64) float64 {
	da := math.Remainder(az-120, 360)
	dr := rng - 12000
	v := 58*math.Exp(-(da*da)/(2*30*30)-(dr*dr)/(2*6000*6000)) + f.dbzNoise.Rand()
	if v < 5 {
		return math.NaN()
	}
	return v
}

// velocity is a uniform wind field seen along the beam, in m/s.
func (f *field) velocity(az float64) float64 {
	return 18*math.Cos((az-225)*math.Pi/180) + f.velNoise.Rand()
}

// CFRadial builds a CF/Radial volume with DBZ (packed shorts) and VEL
// moments. Ragged volumes store gates flattened along n_points with a gate
// count that varies by ray.
func CFRadial(o Options, ragged bool) (*Volume, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	nt := o.Sweeps * o.Rays
	v := New()
	v.AddDim("time", nt)
	v.AddDim("range", o.Gates)
	v.AddDim("sweep", o.Sweeps)

	v.Attrs["Conventions"] = "CF/Radial instrument_parameters"
	v.Attrs["Station"] = o.Station
	v.Attrs["instrument_name"] = o.StationName
	v.Attrs["time_coverage_start"] = o.Start.UTC().Format(time.RFC3339)
	v.Attrs["time_coverage_end"] = o.Start.Add(time.Duration(nt) * 100 * time.Millisecond).UTC().Format(time.RFC3339)

	times := make([]float64, nt)
	az := make([]float64, nt)
	el := make([]float64, nt)
	nyq := make([]float64, nt)
	for r := range nt {
		s := r / o.Rays
		times[r] = float64(r) * 0.1
		az[r] = float64(r%o.Rays) * 360 / float64(o.Rays)
		el[r] = elevationAngle(s)
		nyq[r] = 26.5
	}
	v.AddVar("time", Float64, []string{"time"}, times).Attrs["units"] = "seconds since " + o.Start.UTC().Format(time.RFC3339)
	v.AddVar("azimuth", Float32, []string{"time"}, az).Attrs["units"] = "degrees"
	v.AddVar("elevation", Float32, []string{"time"}, el).Attrs["units"] = "degrees"
	v.AddVar("nyquist_velocity", Float32, []string{"time"}, nyq).Attrs["units"] = "meters per second"

	rng := make([]float64, o.Gates)
	for g := range rng {
		rng[g] = o.FirstGate + float64(g)*o.GateSpacing
	}
	v.AddVar("range", Float32, []string{"range"}, rng).Attrs["units"] = "meters"

	starts := make([]float64, o.Sweeps)
	ends := make([]float64, o.Sweeps)
	fixed := make([]float64, o.Sweeps)
	for s := range o.Sweeps {
		starts[s] = float64(s * o.Rays)
		ends[s] = float64((s+1)*o.Rays - 1)
		fixed[s] = elevationAngle(s)
	}
	v.AddVar("sweep_start_ray_index", Int32, []string{"sweep"}, starts)
	v.AddVar("sweep_end_ray_index", Int32, []string{"sweep"}, ends)
	v.AddVar("fixed_angle", Float32, []string{"sweep"}, fixed)

	v.AddVar("latitude", Float64, nil, []float64{o.Latitude})
	v.AddVar("longitude", Float64, nil, []float64{o.Longitude})
	v.AddVar("altitude", Float64, nil, []float64{o.Altitude})
	v.AddVar("radar_beam_width_h", Float32, nil, []float64{0.92})

	counts := make([]int, nt)
	for r := range counts {
		counts[r] = o.Gates
		if ragged {
			// Higher sweeps reach fewer gates.
			counts[r] = max(1, o.Gates-(r/o.Rays)*o.Gates/(2*o.Sweeps)-r%3)
		}
	}

	f := newField(o.Seed)
	var dbz, vel []float64
	for r := range nt {
		n := o.Gates
		if ragged {
			n = counts[r]
		}
		for g := range n {
			d := f.reflectivity(az[r], rng[g])
			if math.IsNaN(d) {
				dbz = append(dbz, ShortFill)
				vel = append(vel, FloatFill)
				continue
			}
			dbz = append(dbz, math.Round((d+32)*2))
			vel = append(vel, f.velocity(az[r]))
		}
	}

	dims := []string{"time", "range"}
	if ragged {
		v.AddDim("n_points", len(dbz))
		dims = []string{"n_points"}
		rayGates := make([]float64, nt)
		rayStart := make([]float64, nt)
		off := 0
		for r, n := range counts {
			rayGates[r] = float64(n)
			rayStart[r] = float64(off)
			off += n
		}
		v.AddVar("ray_n_gates", Int32, []string{"time"}, rayGates)
		v.AddVar("ray_start_index", Int32, []string{"time"}, rayStart)
	}

	d := v.AddVar("DBZ", Int16, dims, dbz)
	d.Attrs["units"] = "dBZ"
	d.Attrs["scale_factor"] = []float32{0.5}
	d.Attrs["add_offset"] = []float32{-32}
	d.Attrs["_FillValue"] = []int16{ShortFill}

	vl := v.AddVar("VEL", Float32, dims, vel)
	vl.Attrs["units"] = "meters per second"
	vl.Attrs["_FillValue"] = []float32{FloatFill}

	return v, v.Validate()
}

// LevelII builds a NEXRAD Level II volume. Reflectivity has a fine _HI
// overlay at half the gate spacing and twice the radials for the lowest
// sweep; RadialVelocity has an overlay with equal gate spacing.
func LevelII(o Options) (*Volume, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.Sweeps < 2 {
		return nil, fmt.Errorf("level II volumes need at least 2 sweeps, got %d", o.Sweeps)
	}
	v := New()
	v.Attrs["Station"] = o.Station
	v.Attrs["StationName"] = o.StationName
	v.Attrs["StationLatitude"] = []float64{o.Latitude}
	v.Attrs["StationLongitude"] = []float64{o.Longitude}
	v.Attrs["StationElevationInMeters"] = []float64{o.Altitude}
	v.Attrs["HorizontalBeamWidthInDegrees"] = []float64{0.95}
	v.Attrs["time_coverage_start"] = o.Start.UTC().Format(time.RFC3339)
	v.Attrs["time_coverage_end"] = o.Start.Add(5 * time.Minute).UTC().Format(time.RFC3339)

	f := newField(o.Seed)
	// Coarse sweeps cover elevations 1..n-1; the fine overlay holds sweep 0.
	moment(v, f, "R", "Reflectivity", o, o.Sweeps-1, o.Rays, o.Gates, o.GateSpacing, 1)
	moment(v, f, "R", "Reflectivity_HI", o, 1, o.Rays*2, o.Gates*4, o.GateSpacing/2, 0)
	moment(v, f, "V", "RadialVelocity", o, o.Sweeps-1, o.Rays, o.Gates, o.GateSpacing, 1)
	moment(v, f, "V", "RadialVelocity_HI", o, 1, o.Rays, o.Gates, o.GateSpacing, 0)
	return v, v.Validate()
}

func moment(v *Volume, f *field, letter, name string, o Options, sweeps, rays, gates int, spacing float64, firstSweep int) {
	suffix := ""
	if strings.HasSuffix(name, "_HI") {
		suffix = "_HI"
	}
	scan, radial, gate := "scan"+letter+suffix, "radial"+letter+suffix, "gate"+letter+suffix
	v.AddDim(scan, sweeps)
	v.AddDim(radial, rays)
	v.AddDim(gate, gates)

	n := sweeps * rays
	az := make([]float64, n)
	el := make([]float64, n)
	tm := make([]float64, n)
	for i := range n {
		az[i] = float64(i%rays) * 360 / float64(rays)
		el[i] = elevationAngle(firstSweep + i/rays)
		tm[i] = float64(i) * 50
	}
	dist := make([]float64, gates)
	for g := range dist {
		dist[g] = o.FirstGate + float64(g)*spacing
	}
	v.AddVar("azimuth"+letter+suffix, Float32, []string{scan, radial}, az).Attrs["units"] = "degrees"
	v.AddVar("elevation"+letter+suffix, Float32, []string{scan, radial}, el).Attrs["units"] = "degrees"
	v.AddVar("time"+letter+suffix, Int32, []string{scan, radial}, tm).Attrs["units"] = "msecs since " + o.Start.UTC().Format(time.RFC3339)
	v.AddVar("distance"+letter+suffix, Float32, []string{gate}, dist).Attrs["units"] = "m"

	data := make([]float64, 0, n*gates)
	for i := range n {
		for g := range gates {
			d := f.reflectivity(az[i], dist[g])
			switch {
			case math.IsNaN(d):
				data = append(data, 0)
			case letter == "R":
				data = append(data, math.Round((d+32)*2))
			default:
				data = append(data, math.Round((f.velocity(az[i])+63.5)*2))
			}
		}
	}
	m := v.AddVar(name, Byte, []string{scan, radial, gate}, data)
	m.Attrs["_Unsigned"] = "true"
	m.Attrs["scale_factor"] = []float32{0.5}
	m.Attrs["add_offset"] = levelIIOffset(letter)
	m.Attrs["missing_value"] = []uint8{0, 1}
}

func levelIIOffset(letter string) []float32 {
	if letter == "R" {
		return []float32{-32}
	}
	return []float32{-63.5}
}
