// Command radarinfo prints the convention, site, fields, sweep geometry and
// per-sweep statistics of a netCDF radar volume.
//
// Usage:
//
//	go run ./cmd/radarinfo data/ktlx_ragged.nc
//	go run ./cmd/radarinfo -field Reflectivity -sweep 0 data/kinx.nc
//	go run ./cmd/radarinfo -json data/kinx.nc
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/couchcryptid/storm-data-radar/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-data-radar/internal/domain"
	"github.com/couchcryptid/storm-data-radar/internal/radar"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	field      string
	sweep      int
	asJSON     bool
	convention string
	strides    string
	verbose    bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var o options
	fs := flag.NewFlagSet("radarinfo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.field, "field", "", "only report this field")
	fs.IntVar(&o.sweep, "sweep", -1, "only report this sweep index")
	fs.BoolVar(&o.asJSON, "json", false, "print the volume summary as JSON")
	fs.StringVar(&o.convention, "convention", "", "force the naming convention (cfradial or nexrad2)")
	fs.StringVar(&o.strides, "strides", radar.DefaultGateStrides, "gate stride table for composite fields")
	fs.BoolVar(&o.verbose, "v", false, "log volume open details to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: radarinfo [flags] <volume.nc>")
		fs.PrintDefaults()
		return 2
	}

	summary, err := describe(ctx, fs.Arg(0), o, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "radarinfo: %v\n", err)
		return 1
	}
	summary, err = filter(summary, o)
	if err != nil {
		fmt.Fprintf(stderr, "radarinfo: %v\n", err)
		return 1
	}

	if o.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fmt.Fprintf(stderr, "radarinfo: %v\n", err)
			return 1
		}
		return 0
	}
	printSummary(stdout, summary)
	return 0
}

func describe(ctx context.Context, path string, o options, stderr io.Writer) (domain.VolumeSummary, error) {
	strides, err := radar.ParseStrideTable(o.strides)
	if err != nil {
		return domain.VolumeSummary{}, fmt.Errorf("invalid -strides: %w", err)
	}
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	opts := []radar.Option{
		radar.WithLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))),
		radar.WithStrideTable(strides),
		radar.WithSweepCache(false),
	}
	if o.convention != "" {
		conv, ok := radar.ConventionByName(o.convention)
		if !ok {
			return domain.VolumeSummary{}, fmt.Errorf("unknown convention %q", o.convention)
		}
		opts = append(opts, radar.WithConvention(conv))
	}

	src, err := netcdf.Open(path)
	if err != nil {
		return domain.VolumeSummary{}, err
	}
	ds, err := radar.Open(ctx, src, opts...)
	if err != nil {
		_ = src.Close()
		return domain.VolumeSummary{}, err
	}
	defer ds.Close()

	return domain.Summarize(ctx, ds, domain.VolumeNotice{Path: path})
}

// filter narrows the summary to the requested field and sweep.
func filter(s domain.VolumeSummary, o options) (domain.VolumeSummary, error) {
	if o.field != "" {
		var kept []domain.FieldSummary
		for _, f := range s.Fields {
			if f.Name == o.field {
				kept = append(kept, f)
			}
		}
		if len(kept) == 0 {
			if reason, ok := s.Excluded[o.field]; ok {
				return s, fmt.Errorf("field %s was excluded: %s", o.field, reason)
			}
			return s, fmt.Errorf("%w: %q", radar.ErrUnknownField, o.field)
		}
		s.Fields = kept
	}
	if o.sweep < 0 {
		return s, nil
	}
	fields := make([]domain.FieldSummary, 0, len(s.Fields))
	for _, f := range s.Fields {
		if o.sweep >= len(f.Sweeps) {
			return s, fmt.Errorf("sweep %d out of range for %s (%d sweeps)", o.sweep, f.Name, len(f.Sweeps))
		}
		f.Sweeps = []domain.SweepSummary{f.Sweeps[o.sweep]}
		fields = append(fields, f)
	}
	s.Fields = fields
	return s, nil
}

func printSummary(w io.Writer, s domain.VolumeSummary) {
	fmt.Fprintf(w, "Volume:     %s\n", s.Path)
	fmt.Fprintf(w, "Convention: %s\n", s.Convention)
	fmt.Fprintf(w, "Station:    %s (%s)\n", s.Site.StationID, s.Site.StationName)
	fmt.Fprintf(w, "Position:   %s, %s, %s m\n", num(s.Site.Latitude), num(s.Site.Longitude), num(s.Site.Altitude))
	if !s.Site.Start.IsZero() {
		fmt.Fprintf(w, "Coverage:   %s to %s\n", s.Site.Start.Format("2006-01-02 15:04:05Z"), s.Site.End.Format("2006-01-02 15:04:05Z"))
	}

	for _, f := range s.Fields {
		fmt.Fprintln(w)
		kind := f.Mode
		if f.Composite {
			kind += ", composite"
		}
		fmt.Fprintf(w, "Field %s [%s]\n", f.Name, kind)
		fmt.Fprintf(w, "  first gate %s m, beam width %.2f deg, nyquist %.2f m/s", num(f.RangeToFirstGate), f.BeamWidth, f.Nyquist)
		if len(f.Defaulted) > 0 {
			fmt.Fprintf(w, " (defaulted: %s)", strings.Join(f.Defaulted, ", "))
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  %5s %5s %5s %9s %9s %9s %7s %9s\n", "sweep", "rays", "gates", "elev", "azimuth", "gate m", "valid", "max")
		for _, sw := range f.Sweeps {
			fmt.Fprintf(w, "  %5d %5d %5d %9s %9s %9s %6.1f%% %9s\n",
				sw.Index, sw.Rays, sw.Gates,
				num(sw.MeanElevation), num(sw.MeanAzimuth), num(sw.GateSize),
				100*sw.ValidFraction, num(sw.MaxValue))
		}
	}

	if len(s.Excluded) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Excluded fields:")
		for _, name := range slices.Sorted(maps.Keys(s.Excluded)) {
			fmt.Fprintf(w, "  %s: %s\n", name, s.Excluded[name])
		}
	}
}

func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
