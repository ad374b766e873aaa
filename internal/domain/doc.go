// Package domain models radar volume notices and the summaries indexed from
// them.
//
// # Volume Notices
//
// An upstream ingest service copies radar volumes to shared storage and
// publishes one JSON notice per file to the source topic:
//
//	{"path": "/data/radar/KTLX/KTLX20240506_230102_V06.nc", "station": "KTLX"}
//
// The optional "convention" field forces a naming convention ("cfradial" or
// "nexrad2") instead of detecting it from the file. The optional
// "observed_at" timestamp defaults to the Kafka message time.
//
// # Volume Summaries
//
// Each notice produces one summary on the sink topic describing the site,
// every readable moment and every sweep: ray and gate counts, mean elevation
// and azimuth, gate spacing, the fraction of gates carrying data and the
// largest value observed.
//
// Quantities the volume does not record are written as null, and their
// names are listed under "defaulted". Beam width and Nyquist velocity always
// carry a value; when the volume lacks them the conventional defaults
// (0.95 degrees and 0 m/s) are reported and flagged the same way. Moments
// whose geometry cannot be established appear under "excluded" with the
// reason.
//
// # ID Generation
//
// Summary IDs are name-based (SHA-1) UUIDs of path|station|start time. The
// same volume always maps to the same ID, so downstream stores can upsert
// idempotently and replays are safe. See [SummaryID].
package domain
