// Package memory serves radar volumes held entirely in memory.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/ctessum/sparse"

	"github.com/couchcryptid/storm-data-radar/internal/radar"
	"github.com/couchcryptid/storm-data-radar/internal/synth"
)

type variable struct {
	info radar.FieldInfo
	arr  *sparse.DenseArray
}

// Source is a radar.Source over dense in-memory arrays. It is safe for
// concurrent use.
type Source struct {
	mu     sync.RWMutex
	order  []string
	vars   map[string]*variable
	dims   map[string]int
	attrs  map[string]any
	closed bool
}

// New copies vol into dense arrays.
func New(vol *synth.Volume) (*Source, error) {
	if err := vol.Validate(); err != nil {
		return nil, fmt.Errorf("invalid volume: %w", err)
	}
	s := &Source{
		vars:  make(map[string]*variable, len(vol.Vars)),
		dims:  make(map[string]int, len(vol.Dims)),
		attrs: maps.Clone(vol.Attrs),
	}
	for _, d := range vol.Dims {
		s.dims[d.Name] = d.Len
	}
	for _, v := range vol.Vars {
		shape := vol.Shape(v)
		arr := sparse.ZerosDense(shape...)
		copy(arr.Elements, v.Data)
		s.order = append(s.order, v.Name)
		s.vars[v.Name] = &variable{
			info: radar.FieldInfo{
				Name:       v.Name,
				Dimensions: append([]string(nil), v.Dims...),
				Shape:      shape,
				Attributes: maps.Clone(v.Attrs),
			},
			arr: arr,
		}
	}
	return s, nil
}

// Fields lists variable names in declaration order.
func (s *Source) Fields() []string {
	return append([]string(nil), s.order...)
}

// Field describes a variable.
func (s *Source) Field(name string) (radar.FieldInfo, bool) {
	v, ok := s.vars[name]
	if !ok {
		return radar.FieldInfo{}, false
	}
	return v.info, true
}

// GlobalAttribute returns a global attribute.
func (s *Source) GlobalAttribute(name string) (any, bool) {
	v, ok := s.attrs[name]
	return v, ok
}

// Dimension returns a dimension length.
func (s *Source) Dimension(name string) (int, bool) {
	n, ok := s.dims[name]
	return n, ok
}

// Read copies a hyperslab out of the named variable.
func (s *Source) Read(ctx context.Context, name string, origin, shape []int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, radar.ErrClosed
	}
	v, ok := s.vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", radar.ErrUnknownField, name)
	}
	if err := radar.CheckWindow(name, v.info.Shape, origin, shape); err != nil {
		return nil, err
	}

	total := 1
	for _, l := range shape {
		total *= l
	}
	out := make([]float64, 0, total)
	err := radar.ForEachRun(v.info.Shape, origin, shape, func(first, _ []int, n int) error {
		off := 0
		if len(first) > 0 {
			off = v.arr.Index1d(first...)
		}
		out = append(out, v.arr.Elements[off:off+n]...)
		return nil
	})
	return out, err
}

// Close releases the arrays. Reads after Close fail with radar.ErrClosed.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, v := range s.vars {
		v.arr = nil
	}
	return nil
}
