package radar

import "fmt"

// StorageMode is the physical layout of a field.
type StorageMode int

const (
	// Fixed3D is a rectangular [sweep, ray, gate] array.
	Fixed3D StorageMode = iota + 1
	// Fixed2D is a rectangular [ray, gate] array whose sweeps are either
	// delimited by sweep index tables or a single implicit sweep.
	Fixed2D
	// RaggedFlattened packs rays of varying gate count end to end.
	RaggedFlattened
)

func (m StorageMode) String() string {
	switch m {
	case Fixed3D:
		return "fixed3d"
	case Fixed2D:
		return "fixed2d"
	case RaggedFlattened:
		return "ragged"
	}
	return fmt.Sprintf("StorageMode(%d)", int(m))
}

// SweepExtent locates one sweep in global ray numbering. EndRay is
// inclusive, so a sweep with no rays has EndRay == StartRay-1.
type SweepExtent struct {
	StartRay int
	EndRay   int
	Gates    int
}

// NumRays returns EndRay - StartRay + 1.
func (e SweepExtent) NumRays() int { return e.EndRay - e.StartRay + 1 }

// SweepGeometry is the immutable shape description of a field.
type SweepGeometry struct {
	Field     string
	Mode      StorageMode
	Composite bool
	Sweeps    []SweepExtent
}

// NumSweeps returns the number of logical sweeps.
func (g SweepGeometry) NumSweeps() int { return len(g.Sweeps) }

// NumRays returns the row count of sweep s.
func (g SweepGeometry) NumRays(s int) int { return g.Sweeps[s].NumRays() }

// NumGates returns the column count of sweep s.
func (g SweepGeometry) NumGates(s int) int { return g.Sweeps[s].Gates }

// TotalRays returns the number of rays across all sweeps.
func (g SweepGeometry) TotalRays() int {
	n := 0
	for _, sw := range g.Sweeps {
		n += sw.NumRays()
	}
	return n
}

// MaxGates returns the widest sweep's gate count.
func (g SweepGeometry) MaxGates() int {
	m := 0
	for _, sw := range g.Sweeps {
		if sw.Gates > m {
			m = sw.Gates
		}
	}
	return m
}

func (g SweepGeometry) checkSweep(s int) error {
	if s < 0 || s >= len(g.Sweeps) {
		return &OutOfRangeError{Field: g.Field, Axis: "sweep", Index: s, Limit: len(g.Sweeps)}
	}
	return nil
}

func (g SweepGeometry) checkRay(s, r int) error {
	if err := g.checkSweep(s); err != nil {
		return err
	}
	if n := g.NumRays(s); r < 0 || r >= n {
		return &OutOfRangeError{Field: g.Field, Axis: "ray", Index: r, Limit: n}
	}
	return nil
}

// AuxTables carries the auxiliary index tables a convention found for a
// volume. Nil slices mean the table is absent. SweepCount is the length of
// a separate sweep dimension, or 0 when there is none.
type AuxTables struct {
	SweepStart []int
	SweepEnd   []int
	RayGates   []int
	RayStart   []int
	PointsDim  string
	SweepCount int
}

func (a AuxTables) hasSweepTables() bool { return a.SweepStart != nil || a.SweepEnd != nil }

// DescribeGeometry classifies the storage mode of a field and derives its
// per-sweep ray and gate counts. For ragged fields it also returns the ray
// index table.
func DescribeGeometry(info FieldInfo, aux AuxTables) (SweepGeometry, *RayIndexTable, error) {
	g := SweepGeometry{Field: info.Name}
	switch {
	case info.Rank() == 1 && aux.PointsDim != "" && info.DimIndex(aux.PointsDim) == 0:
		if aux.RayGates == nil {
			return g, nil, geometryErrorf(info.Name, "ragged storage without a ray gate-count table")
		}
		sweeps, err := sweepsFromTables(info.Name, aux, len(aux.RayGates))
		if err != nil {
			return g, nil, err
		}
		idx, err := NewRayIndexTable(info.Name, aux.RayGates, aux.RayStart)
		if err != nil {
			return g, nil, err
		}
		for s := range sweeps {
			if err := idx.checkSweep(info.Name, s, sweeps[s], info.Shape[0]); err != nil {
				return g, nil, err
			}
			sweeps[s].Gates = idx.MaxGates(sweeps[s].StartRay, sweeps[s].EndRay)
		}
		g.Mode = RaggedFlattened
		g.Sweeps = sweeps
		return g, idx, nil

	case info.Rank() == 3:
		ns, nr, ng := info.Shape[0], info.Shape[1], info.Shape[2]
		g.Mode = Fixed3D
		g.Sweeps = make([]SweepExtent, ns)
		for s := range g.Sweeps {
			g.Sweeps[s] = SweepExtent{StartRay: s * nr, EndRay: s*nr + nr - 1, Gates: ng}
		}
		return g, nil, nil

	case info.Rank() == 2:
		nrays, ng := info.Shape[0], info.Shape[1]
		g.Mode = Fixed2D
		if !aux.hasSweepTables() {
			g.Sweeps = []SweepExtent{{StartRay: 0, EndRay: nrays - 1, Gates: ng}}
			return g, nil, nil
		}
		sweeps, err := sweepsFromTables(info.Name, aux, nrays)
		if err != nil {
			return g, nil, err
		}
		for s := range sweeps {
			sweeps[s].Gates = ng
		}
		g.Sweeps = sweeps
		return g, nil, nil
	}
	return g, nil, geometryErrorf(info.Name, "unsupported rank %d with dimensions %v", info.Rank(), info.Dimensions)
}

func sweepsFromTables(field string, aux AuxTables, nrays int) ([]SweepExtent, error) {
	if aux.SweepStart == nil || aux.SweepEnd == nil {
		return nil, geometryErrorf(field, "sweep start/end ray index tables are required")
	}
	if len(aux.SweepStart) != len(aux.SweepEnd) {
		return nil, geometryErrorf(field, "%d sweep start indices but %d end indices", len(aux.SweepStart), len(aux.SweepEnd))
	}
	if aux.SweepCount > 0 && aux.SweepCount != len(aux.SweepStart) {
		return nil, geometryErrorf(field, "sweep index tables list %d sweeps, sweep dimension is %d", len(aux.SweepStart), aux.SweepCount)
	}
	sweeps := make([]SweepExtent, len(aux.SweepStart))
	for s := range sweeps {
		start, end := aux.SweepStart[s], aux.SweepEnd[s]
		if start < 0 || end < start-1 || end >= nrays {
			return nil, geometryErrorf(field, "sweep %d rays [%d, %d] outside [0, %d)", s, start, end, nrays)
		}
		sweeps[s] = SweepExtent{StartRay: start, EndRay: end}
	}
	return sweeps, nil
}
