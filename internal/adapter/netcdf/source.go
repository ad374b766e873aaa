// Package netcdf serves radar volumes stored as netCDF classic files.
package netcdf

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ctessum/cdf"

	"github.com/couchcryptid/storm-data-radar/internal/radar"
)

// Source is a radar.Source over a netCDF classic (CDF-1/CDF-2) file.
// Reads may run concurrently; Close must not race with them.
type Source struct {
	file   *cdf.File
	closer io.Closer
	order  []string
	infos  map[string]radar.FieldInfo
	dims   map[string]int
	attrs  map[string]any

	mu     sync.RWMutex
	closed bool
}

// Open opens the netCDF file at path.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open volume: %w", err)
	}
	s, err := New(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	s.closer = f
	return s, nil
}

// New reads the header from rw. The caller keeps ownership of rw.
func New(rw cdf.ReaderWriterAt) (*Source, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, err
	}
	h := f.Header
	s := &Source{
		file:  f,
		infos: map[string]radar.FieldInfo{},
		dims:  map[string]int{},
		attrs: map[string]any{},
	}
	names, lengths := h.Dimensions(""), h.Lengths("")
	for i, name := range names {
		s.dims[name] = lengths[i]
	}
	for _, a := range h.Attributes("") {
		s.attrs[a] = h.GetAttribute("", a)
	}
	for _, v := range h.Variables() {
		if _, text := h.ZeroValue(v, 1).(string); text {
			continue
		}
		if h.IsRecordVariable(v) {
			// Radar volumes are written with fixed dimensions only.
			continue
		}
		lengths := h.Lengths(v)
		info := radar.FieldInfo{
			Name:       v,
			Dimensions: h.Dimensions(v),
			Shape:      append(make([]int, 0, len(lengths)), lengths...),
			Attributes: map[string]any{},
		}
		for _, a := range h.Attributes(v) {
			info.Attributes[a] = h.GetAttribute(v, a)
		}
		s.order = append(s.order, v)
		s.infos[v] = info
	}
	return s, nil
}

// Fields lists the numeric variables in header order.
func (s *Source) Fields() []string {
	return append([]string(nil), s.order...)
}

// Field describes a variable.
func (s *Source) Field(name string) (radar.FieldInfo, bool) {
	info, ok := s.infos[name]
	return info, ok
}

// GlobalAttribute returns a global attribute as stored in the header.
func (s *Source) GlobalAttribute(name string) (any, bool) {
	v, ok := s.attrs[name]
	return v, ok
}

// Dimension returns a dimension length.
func (s *Source) Dimension(name string) (int, bool) {
	n, ok := s.dims[name]
	return n, ok
}

// Read returns the hyperslab (origin, shape) of the named variable as
// float64. Each storage-contiguous run is read with a single strided
// reader.
func (s *Source) Read(ctx context.Context, name string, origin, shape []int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, radar.ErrClosed
	}
	info, ok := s.infos[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", radar.ErrUnknownField, name)
	}
	if err := radar.CheckWindow(name, info.Shape, origin, shape); err != nil {
		return nil, err
	}
	unsigned := isUnsigned(info)

	total := 1
	for _, l := range shape {
		total *= l
	}
	out := make([]float64, 0, total)
	err := radar.ForEachRun(info.Shape, origin, shape, func(first, last []int, n int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := s.file.Reader(name, first, last)
		buf := r.Zero(n)
		got, err := r.Read(buf)
		if got < n {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("read %s at %v: %d of %d elements: %w", name, first, got, n, err)
		}
		out = appendFloats(out, buf, unsigned)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying file when the Source opened it.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// isUnsigned reports whether BYTE data follows the _Unsigned convention.
func isUnsigned(info radar.FieldInfo) bool {
	v, ok := info.Attribute("_Unsigned")
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && (s == "true" || s == "TRUE" || s == "True")
}

func appendFloats(out []float64, buf any, unsigned bool) []float64 {
	switch x := buf.(type) {
	case []uint8:
		for _, v := range x {
			if unsigned {
				out = append(out, float64(v))
			} else {
				out = append(out, float64(int8(v)))
			}
		}
	case []int16:
		for _, v := range x {
			out = append(out, float64(v))
		}
	case []int32:
		for _, v := range x {
			out = append(out, float64(v))
		}
	case []float32:
		for _, v := range x {
			out = append(out, float64(v))
		}
	case []float64:
		out = append(out, x...)
	}
	return out
}
