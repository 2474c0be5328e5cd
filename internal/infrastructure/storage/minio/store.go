package minio

import (
	"bytes"
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/storage/tablecsv"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

const contentTypeCSV = "text/csv"

// TableStore is a table.Store keeping one CSV object per table under a key
// prefix. A single PutObject replaces the previous version atomically.
type TableStore struct {
	client *MinIOClient
	prefix string
}

var _ table.Store = (*TableStore)(nil)

// NewTableStore returns a store writing below prefix ("" for the bucket
// root). A non-empty prefix is treated as a directory.
func NewTableStore(client *MinIOClient, prefix string) *TableStore {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &TableStore{client: client, prefix: prefix}
}

func (s *TableStore) key(name string) string {
	return s.prefix + name + tablecsv.Extension
}

// Put implements table.Store.
func (s *TableStore) Put(ctx context.Context, t *table.Table) error {
	if t == nil || t.Name == "" {
		return errors.InvalidParam("table must have a name")
	}
	var buf bytes.Buffer
	if err := tablecsv.Encode(&buf, t); err != nil {
		return err
	}
	_, err := s.client.client.PutObject(ctx, s.client.bucket, s.key(t.Name), &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType:  contentTypeCSV,
		UserMetadata: map[string]string{"rows": strconv.Itoa(t.Len())},
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeTableWrite, "uploading table").WithDetail(t.Name)
	}
	s.client.logger.Debug("table uploaded", logging.Table(t.Name), logging.Rows(t.Len()))
	return nil
}

// Get implements table.Store.
func (s *TableStore) Get(ctx context.Context, name string) (*table.Table, error) {
	rc, err := s.client.client.FetchObject(ctx, s.client.bucket, s.key(name))
	if err != nil {
		if isNoSuchKey(err) {
			return nil, table.ErrNotFound(name)
		}
		return nil, errors.Wrap(err, errors.ErrCodeExternal, "downloading table").WithDetail(name)
	}
	defer rc.Close()
	return tablecsv.Decode(rc, name)
}

// Delete implements table.Store.
func (s *TableStore) Delete(ctx context.Context, name string) error {
	if err := s.client.client.RemoveObject(ctx, s.client.bucket, s.key(name), minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeTableWrite, "removing table").WithDetail(name)
	}
	return nil
}

// List implements table.Store.
func (s *TableStore) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	for obj := range s.client.client.ListObjects(ctx, s.client.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix + prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeExternal, "listing tables")
		}
		name := strings.TrimPrefix(obj.Key, s.prefix)
		if !strings.HasSuffix(name, tablecsv.Extension) || strings.Contains(name, "/") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, tablecsv.Extension))
	}
	sort.Strings(out)
	return out, nil
}
