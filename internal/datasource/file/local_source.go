// Package file implements a local filesystem-backed object store. Keys are
// filesystem paths.
package file

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"dwh/internal/datasource"
)

// Local serves objects from the local disk. It is safe for concurrent use.
type Local struct{}

var _ datasource.Store = Local{}

// NewLocal returns a Local store.
func NewLocal() Local { return Local{} }

// List walks prefix. A file prefix yields itself; a directory yields every
// regular file beneath it.
func (Local) List(ctx context.Context, prefix string) ([]datasource.Object, error) {
	info, err := os.Stat(prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	if !info.IsDir() {
		return []datasource.Object{{Key: prefix, Size: info.Size()}}, nil
	}

	var out []datasource.Object
	err = filepath.WalkDir(prefix, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, datasource.Object{Key: p, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return out, nil
}

// Open opens key for reading. A canceled context short-circuits before the
// filesystem is touched. Errors keep os.ErrNotExist reachable via errors.Is.
func (Local) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

func init() {
	datasource.Register("file", func(context.Context, datasource.Location, datasource.Options) (datasource.Store, error) {
		return Local{}, nil
	})
}
