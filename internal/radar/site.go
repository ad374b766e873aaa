package radar

import (
	"context"
	"strings"
	"time"
)

// Defaults used when a volume does not identify its station.
const (
	DefaultStationID   = "XXXX"
	DefaultStationName = "Unknown Station"
)

// Site is the station metadata of a volume.
type Site struct {
	StationID   string
	StationName string
	Latitude    Quantity
	Longitude   Quantity
	Altitude    Quantity
	Start       time.Time
	End         time.Time
	// Stationary is false when the position varies per ray.
	Stationary bool
}

var coverageLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func readSite(ctx context.Context, src Source, keys SiteKeys) (Site, error) {
	site := Site{
		StationID:   stringAttr(src, keys.StationID, DefaultStationID),
		StationName: stringAttr(src, keys.StationName, DefaultStationName),
		Stationary:  true,
	}
	var err error
	if site.Latitude, err = position(ctx, src, keys.Latitude, &site.Stationary); err != nil {
		return site, err
	}
	if site.Longitude, err = position(ctx, src, keys.Longitude, &site.Stationary); err != nil {
		return site, err
	}
	if site.Altitude, err = position(ctx, src, keys.Altitude, &site.Stationary); err != nil {
		return site, err
	}
	site.Start = coverageTime(src, "time_coverage_start")
	site.End = coverageTime(src, "time_coverage_end")
	return site, nil
}

func stringAttr(src MetadataAccess, name, def string) string {
	if name == "" {
		return def
	}
	if v, ok := src.GlobalAttribute(name); ok {
		if s, ok := text(v); ok {
			if s = strings.TrimSpace(strings.TrimRight(s, "\x00")); s != "" {
				return s
			}
		}
	}
	return def
}

// position reads a scalar or per-ray position variable, then the global
// attribute of the same name. Absent values are 0 and substituted.
func position(ctx context.Context, src Source, name string, stationary *bool) (Quantity, error) {
	if name == "" {
		return substituted(0), nil
	}
	if info, ok := src.Field(name); ok {
		vals, err := readFull(ctx, src, info)
		if err != nil {
			return Quantity{}, &UnderlyingReadError{Field: name, Err: err}
		}
		if len(vals) > 1 {
			*stationary = false
		}
		q := finiteMean(NewMissingPolicy(info).Apply(vals))
		if q.Substituted {
			return substituted(0), nil
		}
		return q, nil
	}
	if v, ok := src.GlobalAttribute(name); ok {
		if f, ok := numeric(v); ok {
			return measured(f), nil
		}
	}
	return substituted(0), nil
}

func coverageTime(src MetadataAccess, name string) time.Time {
	v, ok := src.GlobalAttribute(name)
	if !ok {
		return time.Time{}
	}
	s, ok := text(v)
	if !ok {
		return time.Time{}
	}
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	for _, layout := range coverageLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
