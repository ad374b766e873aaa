package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// VolumeNotice announces a radar volume that has landed in storage.
type VolumeNotice struct {
	Path       string    `json:"path"`
	Station    string    `json:"station,omitempty"`
	Convention string    `json:"convention,omitempty"` // "cfradial" or "nexrad2"; empty to detect
	ObservedAt time.Time `json:"observed_at,omitempty"`
}

// SiteSummary is the station metadata of a volume. Nil positions were not
// recorded in the volume.
type SiteSummary struct {
	StationID   string    `json:"station_id"`
	StationName string    `json:"station_name"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	Altitude    *float64  `json:"altitude"`
	Start       time.Time `json:"start,omitempty"`
	End         time.Time `json:"end,omitempty"`
	Stationary  bool      `json:"stationary"`
}

// SweepSummary holds per-sweep geometry and statistics. Nil values could not
// be measured; Defaulted names the quantities that fell back to a default.
type SweepSummary struct {
	Index         int      `json:"index"`
	Rays          int      `json:"rays"`
	Gates         int      `json:"gates"`
	MeanElevation *float64 `json:"mean_elevation"`
	MeanAzimuth   *float64 `json:"mean_azimuth"`
	GateSize      *float64 `json:"gate_size"`
	ValidFraction float64  `json:"valid_fraction"`
	MaxValue      *float64 `json:"max_value"`
	Defaulted     []string `json:"defaulted,omitempty"`
}

// FieldSummary describes one moment of a volume.
type FieldSummary struct {
	Name             string         `json:"name"`
	Mode             string         `json:"mode"`
	Composite        bool           `json:"composite"`
	RangeToFirstGate *float64       `json:"range_to_first_gate"`
	BeamWidth        float64        `json:"beam_width"`
	Nyquist          float64        `json:"nyquist"`
	Defaulted        []string       `json:"defaulted,omitempty"`
	Sweeps           []SweepSummary `json:"sweeps"`
}

// VolumeSummary is the indexed description of one radar volume.
type VolumeSummary struct {
	ID          string            `json:"id"`
	Path        string            `json:"path"`
	Convention  string            `json:"convention"`
	Site        SiteSummary       `json:"site"`
	Fields      []FieldSummary    `json:"fields"`
	Excluded    map[string]string `json:"excluded,omitempty"`
	ObservedAt  time.Time         `json:"observed_at,omitempty"`
	ProcessedAt time.Time         `json:"processed_at"`
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
