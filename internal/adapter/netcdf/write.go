package netcdf

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ctessum/cdf"

	"github.com/couchcryptid/storm-data-radar/internal/synth"
)

// Write encodes vol as a netCDF classic file into rw.
func Write(rw cdf.ReaderWriterAt, vol *synth.Volume) error {
	if err := vol.Validate(); err != nil {
		return fmt.Errorf("invalid volume: %w", err)
	}
	h, err := header(vol)
	if err != nil {
		return err
	}
	f, err := cdf.Create(rw, h)
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, v := range vol.Vars {
		vals := typed(v)
		w := f.Writer(v.Name, nil, nil)
		n, err := w.Write(vals)
		// The writer reports io.EOF once it reaches the end of the variable.
		if errors.Is(err, io.EOF) && n == len(v.Data) {
			err = nil
		}
		if err != nil {
			return fmt.Errorf("write variable %s: %w", v.Name, err)
		}
		if n != len(v.Data) {
			return fmt.Errorf("write variable %s: %d of %d elements: %w", v.Name, n, len(v.Data), io.ErrShortWrite)
		}
	}
	return nil
}

// WriteFile creates path and writes vol into it.
func WriteFile(path string, vol *synth.Volume) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create volume: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	if err := Write(f, vol); err != nil {
		return err
	}
	return cdf.UpdateNumRecs(f)
}

func header(vol *synth.Volume) (*cdf.Header, error) {
	names := make([]string, len(vol.Dims))
	lengths := make([]int, len(vol.Dims))
	for i, d := range vol.Dims {
		names[i], lengths[i] = d.Name, d.Len
	}
	h := cdf.NewHeader(names, lengths)

	for _, name := range synth.AttrNames(vol.Attrs) {
		val, err := attrValue(vol.Attrs[name])
		if err != nil {
			return nil, fmt.Errorf("global attribute %s: %w", name, err)
		}
		h.AddAttribute("", name, val)
	}
	for _, v := range vol.Vars {
		h.AddVariable(v.Name, v.Dims, zero(v.Type))
		for _, name := range synth.AttrNames(v.Attrs) {
			val, err := attrValue(v.Attrs[name])
			if err != nil {
				return nil, fmt.Errorf("attribute %s:%s: %w", v.Name, name, err)
			}
			h.AddAttribute(v.Name, name, val)
		}
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid header: %w", errors.Join(errs...))
	}
	return h, nil
}

func zero(t synth.DataType) any {
	switch t {
	case synth.Float64:
		return []float64{0}
	case synth.Int16:
		return []int16{0}
	case synth.Int32:
		return []int32{0}
	case synth.Byte:
		return []uint8{0}
	default:
		return []float32{0}
	}
}

func typed(v *synth.Variable) any {
	switch v.Type {
	case synth.Float64:
		return append([]float64(nil), v.Data...)
	case synth.Int16:
		out := make([]int16, len(v.Data))
		for i, x := range v.Data {
			out[i] = int16(math.Round(x))
		}
		return out
	case synth.Int32:
		out := make([]int32, len(v.Data))
		for i, x := range v.Data {
			out[i] = int32(math.Round(x))
		}
		return out
	case synth.Byte:
		out := make([]uint8, len(v.Data))
		for i, x := range v.Data {
			out[i] = uint8(int(math.Round(x)))
		}
		return out
	default:
		out := make([]float32, len(v.Data))
		for i, x := range v.Data {
			out[i] = float32(x)
		}
		return out
	}
}

// attrValue converts scalars to the one-element slices the header accepts.
func attrValue(v any) (any, error) {
	switch x := v.(type) {
	case string, []uint8, []int16, []int32, []float32, []float64:
		return x, nil
	case float64:
		return []float64{x}, nil
	case float32:
		return []float32{x}, nil
	case int:
		return []int32{int32(x)}, nil
	case int32:
		return []int32{x}, nil
	case int16:
		return []int16{x}, nil
	case uint8:
		return []uint8{x}, nil
	case []int8:
		out := make([]uint8, len(x))
		for i, b := range x {
			out[i] = uint8(b)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}
