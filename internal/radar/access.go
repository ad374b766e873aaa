package radar

import (
	"context"
	"fmt"
	"math"
)

// FieldInfo describes one variable exposed by a field-access collaborator.
type FieldInfo struct {
	Name       string
	Dimensions []string
	Shape      []int
	Attributes map[string]any
}

// Rank returns the number of dimensions of the variable.
func (fi FieldInfo) Rank() int { return len(fi.Shape) }

// Size returns the total number of elements of the variable.
func (fi FieldInfo) Size() int {
	n := 1
	for _, l := range fi.Shape {
		n *= l
	}
	return n
}

// DimIndex returns the position of the named dimension, or -1.
func (fi FieldInfo) DimIndex(dim string) int {
	for i, d := range fi.Dimensions {
		if d == dim {
			return i
		}
	}
	return -1
}

// Attribute returns the named attribute of the variable.
func (fi FieldInfo) Attribute(name string) (any, bool) {
	v, ok := fi.Attributes[name]
	return v, ok
}

// FieldAccess is the windowed-array collaborator the core reads through.
// Read returns the row-major elements of the hyperslab starting at origin
// with the given shape, or an error wrapping ErrInvalidRange when the
// window falls outside the variable's declared bounds.
type FieldAccess interface {
	Fields() []string
	Field(name string) (FieldInfo, bool)
	Read(ctx context.Context, name string, origin, shape []int) ([]float64, error)
}

// MetadataAccess exposes global attributes and dimension lengths.
type MetadataAccess interface {
	GlobalAttribute(name string) (any, bool)
	Dimension(name string) (int, bool)
}

// Source is a complete volume collaborator.
type Source interface {
	FieldAccess
	MetadataAccess
}

// CheckWindow validates a windowed read against a declared shape. Adapters
// use it so every backend reports ErrInvalidRange the same way.
func CheckWindow(name string, declared, origin, shape []int) error {
	if len(origin) != len(declared) || len(shape) != len(declared) {
		return fmt.Errorf("%w: %s has rank %d, window has rank %d/%d",
			ErrInvalidRange, name, len(declared), len(origin), len(shape))
	}
	for i := range declared {
		if origin[i] < 0 || shape[i] < 0 || origin[i]+shape[i] > declared[i] {
			return fmt.Errorf("%w: %s dim %d window [%d, %d) exceeds length %d",
				ErrInvalidRange, name, i, origin[i], origin[i]+shape[i], declared[i])
		}
	}
	return nil
}

// readFull reads every element of a variable.
func readFull(ctx context.Context, fa FieldAccess, info FieldInfo) ([]float64, error) {
	origin := make([]int, info.Rank())
	return fa.Read(ctx, info.Name, origin, info.Shape)
}

// readInts reads a whole integer table such as ray_n_gates.
func readInts(ctx context.Context, fa FieldAccess, name string) ([]int, bool, error) {
	info, ok := fa.Field(name)
	if !ok {
		return nil, false, nil
	}
	vals, err := readFull(ctx, fa, info)
	if err != nil {
		return nil, true, &UnderlyingReadError{Field: name, Err: err}
	}
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(math.Round(v))
	}
	return out, true, nil
}

// numeric converts a scalar or single-element attribute value to float64.
func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint8:
		return float64(x), true
	case []float64:
		if len(x) > 0 {
			return x[0], true
		}
	case []float32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int16:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int8:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []uint8:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	}
	return 0, false
}

// numerics converts a scalar or slice attribute value to []float64.
func numerics(v any) []float64 {
	switch x := v.(type) {
	case []float64:
		return append([]float64(nil), x...)
	case []float32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out
	case []int16:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out
	case []int32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out
	case []int8:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out
	case []uint8:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out
	}
	if f, ok := numeric(v); ok {
		return []float64{f}
	}
	return nil
}

// text converts a string or byte-slice attribute value to a string.
func text(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}
