package radar

import "math"

// Legacy sentinels seen across radar formats in addition to a variable's
// declared fill attributes. netCDFDefaultFill is the classic-format default
// fill for DOUBLE variables; FLOAT variables store it rounded to float32.
const (
	netCDFDefaultFill = 9.969209968386869e36
)

var legacySentinels = []float64{-9999, -32768, -32767, netCDFDefaultFill, float64(float32(netCDFDefaultFill))}

// MissingPolicy rewrites sentinel values to a canonical missing marker and
// unpacks scaled integer storage.
type MissingPolicy struct {
	Sentinels []float64
	Marker    float64
	Scale     float64
	Offset    float64
}

// NewMissingPolicy builds the policy for a variable from its _FillValue,
// missing_value, scale_factor and add_offset attributes. Fill attributes
// share the variable's storage type, so their values compare exactly with
// the stored data. The marker is NaN.
func NewMissingPolicy(info FieldInfo) MissingPolicy {
	p := MissingPolicy{Marker: math.NaN(), Scale: 1}
	for _, attr := range []string{"_FillValue", "missing_value"} {
		if v, ok := info.Attribute(attr); ok {
			p.Sentinels = appendUnique(p.Sentinels, numerics(v)...)
		}
	}
	p.Sentinels = appendUnique(p.Sentinels, legacySentinels...)
	if v, ok := info.Attribute("scale_factor"); ok {
		if f, ok := numeric(v); ok && f != 0 {
			p.Scale = f
		}
	}
	if v, ok := info.Attribute("add_offset"); ok {
		if f, ok := numeric(v); ok {
			p.Offset = f
		}
	}
	return p
}

// WithMarker returns a copy of p that uses marker for missing data.
func (p MissingPolicy) WithMarker(marker float64) MissingPolicy {
	p.Marker = marker
	return p
}

// IsMissing reports whether an output value is NaN or the marker.
func (p MissingPolicy) IsMissing(v float64) bool {
	return math.IsNaN(v) || v == p.Marker
}

// IsSentinel reports whether a stored value is NaN or exactly one of the
// sentinels.
func (p MissingPolicy) IsSentinel(raw float64) bool {
	if math.IsNaN(raw) {
		return true
	}
	for _, s := range p.Sentinels {
		if raw == s {
			return true
		}
	}
	return false
}

// Apply rewrites stored values in buf to output values in place and
// returns it. Sentinels become the marker; other values are unpacked.
func (p MissingPolicy) Apply(buf []float64) []float64 {
	scale := p.Scale
	if scale == 0 {
		scale = 1
	}
	unpack := scale != 1 || p.Offset != 0
	for i, v := range buf {
		switch {
		case p.IsSentinel(v):
			buf[i] = p.Marker
		case unpack:
			buf[i] = v*scale + p.Offset
		}
	}
	return buf
}

func appendUnique(dst []float64, vals ...float64) []float64 {
	for _, v := range vals {
		dup := false
		for _, d := range dst {
			if d == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}

// fill sets every element of buf to v.
func fill(buf []float64, v float64) {
	for i := range buf {
		buf[i] = v
	}
}
