// Package localfs stores tables as CSV files in a directory.
package localfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/storage/tablecsv"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// DirStore is a table.Store backed by one CSV file per table. Writes go to a
// temporary file that is renamed over the previous version.
type DirStore struct {
	dir    string
	logger logging.Logger
}

var _ table.Store = (*DirStore)(nil)

// NewDirStore creates dir if needed and returns a store rooted there.
func NewDirStore(dir string, logger logging.Logger) (*DirStore, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTableWrite, "creating output directory").WithDetail(dir)
	}
	return &DirStore{dir: dir, logger: logger.Named("dirstore")}, nil
}

// Dir returns the root directory.
func (s *DirStore) Dir() string { return s.dir }

func (s *DirStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", errors.InvalidParam(fmt.Sprintf("invalid table name %q", name))
	}
	return filepath.Join(s.dir, name+tablecsv.Extension), nil
}

// Put implements table.Store.
func (s *DirStore) Put(ctx context.Context, t *table.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t == nil {
		return errors.InvalidParam("table must not be nil")
	}
	dst, err := s.path(t.Name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+t.Name+".*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeTableWrite, "creating temporary file").WithDetail(t.Name)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tablecsv.Encode(tmp, t); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeTableWrite, "closing temporary file").WithDetail(t.Name)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return errors.Wrap(err, errors.ErrCodeTableWrite, "replacing table file").WithDetail(t.Name)
	}
	s.logger.Debug("table written", logging.Table(t.Name), logging.Rows(t.Len()))
	return nil
}

// Get implements table.Store.
func (s *DirStore) Get(ctx context.Context, name string) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, table.ErrNotFound(name)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTableCorrupt, "opening table file").WithDetail(name)
	}
	defer f.Close()
	return tablecsv.Decode(f, name)
}

// Delete implements table.Store. Deleting a missing table is not an error.
func (s *DirStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrCodeTableWrite, "removing table file").WithDetail(name)
	}
	return nil
}

// List implements table.Store.
func (s *DirStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTableCorrupt, "listing output directory").WithDetail(s.dir)
	}
	var out []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || !strings.HasSuffix(n, tablecsv.Extension) {
			continue
		}
		n = strings.TrimSuffix(n, tablecsv.Extension)
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}
