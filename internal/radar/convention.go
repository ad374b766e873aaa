package radar

import (
	"context"
	"sort"
	"strings"
)

// Convention is the naming strategy of a volume family: which variables
// are moments, where the index tables live and what the coordinate
// variables of a moment are called.
type Convention interface {
	Name() string
	// DataFields returns the moment names of src in a stable order.
	DataFields(src Source) []string
	// Overlay returns the fine-resolution variable paired with field.
	Overlay(src Source, field string) (string, bool)
	// AuxTables reads the sweep and ray index tables of src.
	AuxTables(ctx context.Context, src Source) (AuxTables, error)
	// Coordinate names the variable holding axis values for source variable v.
	Coordinate(v string, axis Axis) string
	// BeamWidth and Nyquist name the variable or global attribute a measured
	// value is taken from. Empty means the convention has none.
	BeamWidth() string
	Nyquist() string
	// Site names the attributes and variables holding station metadata.
	Site() SiteKeys
}

// SiteKeys names where a convention keeps station metadata. Position keys
// are looked up first as variables and then as global attributes.
type SiteKeys struct {
	StationID   string
	StationName string
	Latitude    string
	Longitude   string
	Altitude    string
}

// Convention names.
const (
	CFRadialName = "cfradial"
	LevelIIName  = "nexrad2"
)

var (
	// CFRadial is the CF/Radial convention, including ragged n_points storage.
	CFRadial Convention = cfRadial{}
	// LevelII is the NEXRAD Level II convention with optional _HI overlays.
	LevelII Convention = levelII{}
)

// ConventionByName returns the convention registered under name.
func ConventionByName(name string) (Convention, bool) {
	switch strings.ToLower(name) {
	case CFRadialName:
		return CFRadial, true
	case LevelIIName:
		return LevelII, true
	}
	return nil, false
}

// DetectConvention sniffs the dimensions and variables of src. Volumes with
// no recognisable marker are treated as CF/Radial.
func DetectConvention(src Source) Convention {
	if _, ok := src.Dimension("n_points"); ok {
		return CFRadial
	}
	if _, ok := src.Field("sweep_start_ray_index"); ok {
		return CFRadial
	}
	for _, d := range []string{"scanR", "scanR_HI", "scanV", "scanV_HI"} {
		if _, ok := src.Dimension(d); ok {
			return LevelII
		}
	}
	if _, ok := src.Field("azimuthR"); ok {
		return LevelII
	}
	if v, ok := src.GlobalAttribute("Conventions"); ok {
		if s, ok := text(v); ok && strings.Contains(strings.ToLower(s), "radial") {
			return CFRadial
		}
	}
	return CFRadial
}

type cfRadial struct{}

func (cfRadial) Name() string { return CFRadialName }

func (cfRadial) DataFields(src Source) []string {
	var out []string
	for _, name := range src.Fields() {
		info, ok := src.Field(name)
		if !ok {
			continue
		}
		switch strings.Join(info.Dimensions, ",") {
		case "time,range", "n_points":
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (cfRadial) Overlay(Source, string) (string, bool) { return "", false }

func (cfRadial) AuxTables(ctx context.Context, src Source) (AuxTables, error) {
	aux := AuxTables{PointsDim: "n_points"}
	var err error
	if aux.SweepStart, _, err = readInts(ctx, src, "sweep_start_ray_index"); err != nil {
		return aux, err
	}
	if aux.SweepEnd, _, err = readInts(ctx, src, "sweep_end_ray_index"); err != nil {
		return aux, err
	}
	if aux.RayGates, _, err = readInts(ctx, src, "ray_n_gates"); err != nil {
		return aux, err
	}
	if aux.RayStart, _, err = readInts(ctx, src, "ray_start_index"); err != nil {
		return aux, err
	}
	if n, ok := src.Dimension("sweep"); ok {
		aux.SweepCount = n
	}
	return aux, nil
}

func (cfRadial) Coordinate(_ string, axis Axis) string {
	switch axis {
	case AxisAzimuth:
		return "azimuth"
	case AxisElevation:
		return "elevation"
	case AxisTime:
		return "time"
	case AxisRange:
		return "range"
	}
	return ""
}

func (cfRadial) BeamWidth() string { return "radar_beam_width_h" }
func (cfRadial) Nyquist() string   { return "nyquist_velocity" }

func (cfRadial) Site() SiteKeys {
	return SiteKeys{
		StationID:   "Station",
		StationName: "instrument_name",
		Latitude:    "latitude",
		Longitude:   "longitude",
		Altitude:    "altitude",
	}
}

type levelII struct{}

const overlaySuffix = "_HI"

func (levelII) Name() string { return LevelIIName }

func (levelII) DataFields(src Source) []string {
	var out []string
	for _, name := range src.Fields() {
		info, ok := src.Field(name)
		if !ok || info.Rank() != 3 || strings.HasSuffix(name, overlaySuffix) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (levelII) Overlay(src Source, field string) (string, bool) {
	name := field + overlaySuffix
	info, ok := src.Field(name)
	if !ok || info.Rank() != 3 {
		return "", false
	}
	return name, true
}

func (levelII) AuxTables(context.Context, Source) (AuxTables, error) {
	return AuxTables{}, nil
}

func (levelII) Coordinate(v string, axis Axis) string {
	base, hi := strings.CutSuffix(v, overlaySuffix)
	var prefix string
	switch axis {
	case AxisAzimuth:
		prefix = "azimuth"
	case AxisElevation:
		prefix = "elevation"
	case AxisTime:
		prefix = "time"
	case AxisRange:
		prefix = "distance"
	default:
		return ""
	}
	name := prefix + momentLetter(base)
	if hi {
		name += overlaySuffix
	}
	return name
}

// momentLetter is the coordinate suffix Level II volumes use per moment.
func momentLetter(field string) string {
	switch {
	case strings.HasPrefix(field, "Reflectivity"):
		return "R"
	case strings.HasPrefix(field, "DifferentialReflectivity"):
		return "D"
	case strings.HasPrefix(field, "CorrelationCoefficient"):
		return "C"
	case strings.HasPrefix(field, "DifferentialPhase"):
		return "P"
	}
	return "V"
}

func (levelII) BeamWidth() string { return "HorizontalBeamWidthInDegrees" }
func (levelII) Nyquist() string   { return "" }

func (levelII) Site() SiteKeys {
	return SiteKeys{
		StationID:   "Station",
		StationName: "StationName",
		Latitude:    "StationLatitude",
		Longitude:   "StationLongitude",
		Altitude:    "StationElevationInMeters",
	}
}
