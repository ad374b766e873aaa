package radar

// RayIndexTable maps each global ray of a ragged field to its gate count
// and start offset in the flattened points array. Immutable once built.
type RayIndexTable struct {
	gateCount   []int
	startOffset []int
}

// NewRayIndexTable builds the table. When starts is nil the offsets are the
// running sum of gate counts.
func NewRayIndexTable(field string, counts, starts []int) (*RayIndexTable, error) {
	if starts != nil && len(starts) != len(counts) {
		return nil, geometryErrorf(field, "%d ray gate counts but %d ray start offsets", len(counts), len(starts))
	}
	t := &RayIndexTable{
		gateCount:   append([]int(nil), counts...),
		startOffset: make([]int, len(counts)),
	}
	off := 0
	for r, n := range counts {
		if n < 0 {
			return nil, geometryErrorf(field, "ray %d has negative gate count %d", r, n)
		}
		if starts != nil {
			if starts[r] < 0 {
				return nil, geometryErrorf(field, "ray %d has negative start offset %d", r, starts[r])
			}
			t.startOffset[r] = starts[r]
		} else {
			t.startOffset[r] = off
		}
		off += n
	}
	return t, nil
}

// NumRays returns the number of rays in the table.
func (t *RayIndexTable) NumRays() int { return len(t.gateCount) }

// GateCount returns the stored gate count of global ray r.
func (t *RayIndexTable) GateCount(r int) int { return t.gateCount[r] }

// StartOffset returns the flattened offset of global ray r.
func (t *RayIndexTable) StartOffset(r int) int { return t.startOffset[r] }

// MaxGates returns the largest gate count among rays [start, end].
func (t *RayIndexTable) MaxGates(start, end int) int {
	m := 0
	for r := start; r <= end; r++ {
		if t.gateCount[r] > m {
			m = t.gateCount[r]
		}
	}
	return m
}

// SweepWindow returns the flattened [offset, offset+length) range holding
// rays [start, end].
func (t *RayIndexTable) SweepWindow(start, end int) (offset, length int) {
	if end < start {
		return 0, 0
	}
	offset = t.startOffset[start]
	return offset, t.startOffset[end] + t.gateCount[end] - offset
}

// RayWindow returns the flattened range of a single global ray.
func (t *RayIndexTable) RayWindow(r int) (offset, length int) {
	return t.startOffset[r], t.gateCount[r]
}

// checkSweep enforces that a sweep's rays are packed contiguously and lie
// inside the points dimension.
func (t *RayIndexTable) checkSweep(field string, s int, ext SweepExtent, points int) error {
	if ext.EndRay >= len(t.gateCount) {
		return geometryErrorf(field, "sweep %d ends at ray %d but only %d rays are indexed", s, ext.EndRay, len(t.gateCount))
	}
	off, length := t.SweepWindow(ext.StartRay, ext.EndRay)
	sum := 0
	for r := ext.StartRay; r <= ext.EndRay; r++ {
		if t.startOffset[r] != off+sum {
			return geometryErrorf(field, "sweep %d ray %d starts at %d, expected %d", s, r, t.startOffset[r], off+sum)
		}
		sum += t.gateCount[r]
	}
	if sum != length {
		return geometryErrorf(field, "sweep %d gate counts sum to %d but its window holds %d points", s, sum, length)
	}
	if off+length > points {
		return geometryErrorf(field, "sweep %d window [%d, %d) exceeds %d points", s, off, off+length, points)
	}
	return nil
}

// Assemble turns the flattened window of sweep ext into a rectangular
// [NumRays × ngates] buffer. Columns past a ray's gate count hold marker.
// window must start at the sweep's first ray offset.
func (t *RayIndexTable) Assemble(ext SweepExtent, window []float64, marker float64) []float64 {
	nrays, ngates := ext.NumRays(), ext.Gates
	out := make([]float64, nrays*ngates)
	fill(out, marker)
	if nrays <= 0 {
		return out
	}
	base := t.startOffset[ext.StartRay]
	for i := 0; i < nrays; i++ {
		r := ext.StartRay + i
		n := t.gateCount[r]
		if n == 0 {
			continue
		}
		src := t.startOffset[r] - base
		copy(out[i*ngates:i*ngates+n], window[src:src+n])
	}
	return out
}

// padRow returns vals widened to ngates columns with marker.
func padRow(vals []float64, ngates int, marker float64) []float64 {
	if len(vals) == ngates {
		return vals
	}
	out := make([]float64, ngates)
	fill(out, marker)
	copy(out, vals)
	return out
}
