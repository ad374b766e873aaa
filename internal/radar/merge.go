package radar

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DefaultGateStrides is the stride rule applied when two resolutions of
// a field differ and the fine variable declares no gate_stride attribute.
const DefaultGateStrides = "Reflect=4"

// mergedRayStride is the ray subsampling used whenever resolutions differ.
const mergedRayStride = 2

// StrideTable maps field-name prefixes to a gate stride. Longest prefix
// wins; names matching no prefix use a stride of 1.
type StrideTable struct {
	rules []strideRule
}

type strideRule struct {
	prefix string
	stride int
}

// ParseStrideTable parses a comma separated list of prefix=stride pairs.
// An empty string yields a table in which every stride is 1.
func ParseStrideTable(s string) (StrideTable, error) {
	var t StrideTable
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		prefix, val, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(prefix) == "" {
			return StrideTable{}, fmt.Errorf("invalid gate stride rule %q: want prefix=stride", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || n < 1 {
			return StrideTable{}, fmt.Errorf("invalid gate stride %q for prefix %q: must be a positive integer", val, prefix)
		}
		t.rules = append(t.rules, strideRule{prefix: strings.TrimSpace(prefix), stride: n})
	}
	sort.SliceStable(t.rules, func(i, j int) bool { return len(t.rules[i].prefix) > len(t.rules[j].prefix) })
	return t, nil
}

// MustStrideTable is ParseStrideTable for constant inputs.
func MustStrideTable(s string) StrideTable {
	t, err := ParseStrideTable(s)
	if err != nil {
		panic(err)
	}
	return t
}

// GateStride returns the gate stride for a field name.
func (t StrideTable) GateStride(name string) int {
	for _, r := range t.rules {
		if strings.HasPrefix(name, r.prefix) {
			return r.stride
		}
	}
	return 1
}

func (t StrideTable) String() string {
	parts := make([]string, len(t.rules))
	for i, r := range t.rules {
		parts[i] = r.prefix + "=" + strconv.Itoa(r.stride)
	}
	return strings.Join(parts, ",")
}

// Stride is a (ray, gate) subsampling pair.
type Stride struct {
	Ray  int
	Gate int
}

// Unit reports whether the stride performs no resampling.
func (s Stride) Unit() bool { return s.Ray == 1 && s.Gate == 1 }

// MergeInput describes the two resolutions of one composite field.
type MergeInput struct {
	Field        string
	Coarse       FieldInfo
	Fine         FieldInfo
	CoarseGateSz float64
	FineGateSz   float64
}

// ResolutionMerger reconciles a coarse [Sc, Rc, Gc] array with a fine
// [Sf, Rf, Gf] overlay of the first sweeps of the same volume. Logical
// sweeps 0..Sf-1 come from the fine array and Sf..Sf+Sc-1 from the coarse.
type ResolutionMerger struct {
	Field    string
	Stride   Stride
	Width    int // merged gate width W
	FineRows int // logical rows per fine sweep

	sf, sc int
	rc     int
	fine   FieldInfo
	coarse FieldInfo
}

// NewResolutionMerger selects the stride and merged width. Equal gate sizes
// mean the arrays already share geometry. Otherwise the ray stride is 2 and
// the gate stride comes from the fine variable's gate_stride attribute or
// from table.
func NewResolutionMerger(in MergeInput, table StrideTable) (*ResolutionMerger, error) {
	if in.Coarse.Rank() != 3 || in.Fine.Rank() != 3 {
		return nil, geometryErrorf(in.Field, "composite sources must be rank 3, got %d and %d", in.Coarse.Rank(), in.Fine.Rank())
	}
	if math.IsNaN(in.CoarseGateSz) || math.IsNaN(in.FineGateSz) {
		return nil, geometryErrorf(in.Field, "gate spacing of %q or %q is unknown", in.Coarse.Name, in.Fine.Name)
	}
	sc, rc, gc := in.Coarse.Shape[0], in.Coarse.Shape[1], in.Coarse.Shape[2]
	sf, rf, gf := in.Fine.Shape[0], in.Fine.Shape[1], in.Fine.Shape[2]

	m := &ResolutionMerger{Field: in.Field, sf: sf, sc: sc, rc: rc, fine: in.Fine, coarse: in.Coarse}
	if sameSpacing(in.CoarseGateSz, in.FineGateSz) {
		m.Stride = Stride{Ray: 1, Gate: 1}
		m.Width = min(gc, gf)
		m.FineRows = rf
		return m, nil
	}

	gs := table.GateStride(in.Field)
	if v, ok := in.Fine.Attribute("gate_stride"); ok {
		f, ok := numeric(v)
		if !ok || f < 1 || f != math.Trunc(f) || f > math.MaxInt32 {
			return nil, geometryErrorf(in.Field, "gate_stride of %q must be a positive integer, got %v", in.Fine.Name, v)
		}
		gs = int(f)
	}
	m.Stride = Stride{Ray: mergedRayStride, Gate: gs}
	m.Width = min(gc, gf/gs)
	m.FineRows = ceilDiv(min(rf, rc*mergedRayStride), mergedRayStride)
	return m, nil
}

// NumSweeps returns Sf + Sc.
func (m *ResolutionMerger) NumSweeps() int { return m.sf + m.sc }

// Geometry returns the logical geometry of the merged field.
func (m *ResolutionMerger) Geometry() SweepGeometry {
	g := SweepGeometry{Field: m.Field, Mode: Fixed3D, Composite: true, Sweeps: make([]SweepExtent, 0, m.NumSweeps())}
	ray := 0
	for s := 0; s < m.NumSweeps(); s++ {
		rows := m.rc
		if s < m.sf {
			rows = m.FineRows
		}
		g.Sweeps = append(g.Sweeps, SweepExtent{StartRay: ray, EndRay: ray + rows - 1, Gates: m.Width})
		ray += rows
	}
	return g
}

// mergePlan locates logical sweep s in one of the two sources.
type mergePlan struct {
	Source FieldInfo
	Local  int
	Stride Stride
	Rows   int
	Width  int
}

// resolve returns the source, local sweep index and stride for sweep s.
func (m *ResolutionMerger) resolve(s int) mergePlan {
	if s < m.sf {
		return mergePlan{Source: m.fine, Local: s, Stride: m.Stride, Rows: m.FineRows, Width: m.Width}
	}
	return mergePlan{Source: m.coarse, Local: s - m.sf, Stride: Stride{Ray: 1, Gate: 1}, Rows: m.rc, Width: m.Width}
}

// ReadAllLen returns Sf·FineRows·W + Sc·Rc·W.
func (m *ResolutionMerger) ReadAllLen() int {
	return m.sf*m.FineRows*m.Width + m.sc*m.rc*m.Width
}

// span returns how many source elements cover n strided samples.
func span(n, stride int) int {
	if n <= 0 {
		return 0
	}
	return (n-1)*stride + 1
}

// subsample picks every stride.Ray row and stride.Gate column of a
// [nrows × ncols] buffer, producing [rows × width].
func subsample(buf []float64, ncols int, st Stride, rows, width int) []float64 {
	if st.Unit() && ncols == width {
		return buf[:rows*width]
	}
	out := make([]float64, rows*width)
	for i := 0; i < rows; i++ {
		src := buf[i*st.Ray*ncols:]
		for j := 0; j < width; j++ {
			out[i*width+j] = src[j*st.Gate]
		}
	}
	return out
}

func sameSpacing(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(math.Abs(a), math.Abs(b))
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
