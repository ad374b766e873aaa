package netcdf

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/storm-data-radar/internal/radar"
)

// ErrOutsideRoot is returned for a volume path that resolves outside the
// opener's root directory. It matches fs.ErrPermission.
var ErrOutsideRoot = fmt.Errorf("volume path outside root: %w", fs.ErrPermission)

// Opener opens volumes named by notices. When Root is set, relative paths
// resolve against it and paths outside it are rejected.
type Opener struct {
	Root string
}

// Open resolves path and opens the netCDF volume there.
func (o Opener) Open(ctx context.Context, path string) (radar.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resolved, err := o.resolve(path)
	if err != nil {
		return nil, err
	}
	return Open(resolved)
}

// Version identifies the current contents of the volume at path by its size
// and modification time.
func (o Opener) Version(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resolved, err := o.resolve(path)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%d", fi.Size(), fi.ModTime().UnixNano()), nil
}

func (o Opener) resolve(path string) (string, error) {
	if o.Root == "" {
		return filepath.Clean(path), nil
	}
	root := filepath.Clean(o.Root)
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return path, nil
}
