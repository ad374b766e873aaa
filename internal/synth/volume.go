// Package synth builds synthetic radar volumes in the layouts the radar core
// understands. Volumes are plain descriptions (dimensions, variables and
// attributes) that storage adapters materialise in memory or as netCDF files.
package synth

import (
	"errors"
	"fmt"
	"slices"
)

// DataType is the on-disk element type of a variable.
type DataType int

const (
	Float32 DataType = iota
	Float64
	Int16
	Int32
	Byte
)

func (t DataType) String() string {
	switch t {
	case Float32:
		return "float"
	case Float64:
		return "double"
	case Int16:
		return "short"
	case Int32:
		return "int"
	case Byte:
		return "byte"
	default:
		return fmt.Sprintf("DataType(%d)", int(t))
	}
}

// Dim is a named, fixed-length dimension.
type Dim struct {
	Name string
	Len  int
}

// Variable is a named array in row-major order. Attribute values use the
// netCDF classic types: string, []uint8, []int16, []int32, []float32 or
// []float64.
type Variable struct {
	Name  string
	Dims  []string
	Type  DataType
	Data  []float64
	Attrs map[string]any
}

// Volume is a complete synthetic dataset.
type Volume struct {
	Dims  []Dim
	Vars  []*Variable
	Attrs map[string]any
}

// New returns an empty volume.
func New() *Volume {
	return &Volume{Attrs: map[string]any{}}
}

// AddDim declares a dimension. Redeclaring a name replaces its length.
func (v *Volume) AddDim(name string, n int) {
	for i := range v.Dims {
		if v.Dims[i].Name == name {
			v.Dims[i].Len = n
			return
		}
	}
	v.Dims = append(v.Dims, Dim{Name: name, Len: n})
}

// AddVar appends a variable and returns it for attribute decoration.
func (v *Volume) AddVar(name string, typ DataType, dims []string, data []float64) *Variable {
	vr := &Variable{Name: name, Dims: dims, Type: typ, Data: data, Attrs: map[string]any{}}
	v.Vars = append(v.Vars, vr)
	return vr
}

// Dim returns the length of the named dimension.
func (v *Volume) Dim(name string) (int, bool) {
	for _, d := range v.Dims {
		if d.Name == name {
			return d.Len, true
		}
	}
	return 0, false
}

// Var returns the named variable, or nil.
func (v *Volume) Var(name string) *Variable {
	for _, vr := range v.Vars {
		if vr.Name == name {
			return vr
		}
	}
	return nil
}

// Shape returns the dimension lengths of a variable.
func (v *Volume) Shape(vr *Variable) []int {
	shape := make([]int, len(vr.Dims))
	for i, d := range vr.Dims {
		shape[i], _ = v.Dim(d)
	}
	return shape
}

// Validate checks that every variable references declared dimensions and
// carries exactly as many elements as its shape implies.
func (v *Volume) Validate() error {
	var errs []error
	seen := map[string]bool{}
	for _, d := range v.Dims {
		if d.Len <= 0 {
			errs = append(errs, fmt.Errorf("dimension %s: length %d must be positive", d.Name, d.Len))
		}
	}
	for _, vr := range v.Vars {
		if seen[vr.Name] {
			errs = append(errs, fmt.Errorf("variable %s declared twice", vr.Name))
		}
		seen[vr.Name] = true
		n := 1
		for _, d := range vr.Dims {
			l, ok := v.Dim(d)
			if !ok {
				errs = append(errs, fmt.Errorf("variable %s: undeclared dimension %s", vr.Name, d))
			}
			n *= l
		}
		if len(vr.Data) != n {
			errs = append(errs, fmt.Errorf("variable %s: %d elements, shape needs %d", vr.Name, len(vr.Data), n))
		}
	}
	return errors.Join(errs...)
}

// AttrNames returns attribute names in sorted order.
func AttrNames(attrs map[string]any) []string {
	names := make([]string, 0, len(attrs))
	for k := range attrs {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
