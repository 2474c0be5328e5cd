package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/lib/pq"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// SQL
// ─────────────────────────────────────────────────────────────────────────────

const (
	sqlDeleteTable = `DELETE FROM ci_tables WHERE name = $1`
	sqlInsertTable = `INSERT INTO ci_tables (name, key_name, columns, attrs, updated_at)
VALUES ($1, $2, $3, $4, now())`
	sqlInsertRow = `INSERT INTO ci_table_rows (table_name, row_key, vals) VALUES ($1, $2, $3)`
	sqlGetTable  = `SELECT key_name, columns, attrs FROM ci_tables WHERE name = $1`
	sqlGetRows   = `SELECT row_key, vals FROM ci_table_rows WHERE table_name = $1 ORDER BY row_key`
	sqlList      = `SELECT name FROM ci_tables WHERE left(name, char_length($1)) = $1 ORDER BY name`
)

// TableStore is a table.Store over two relations: ci_tables holds the table
// header (key column, ordered columns, attributes) and ci_table_rows one
// float8[] per row aligned with the columns, NULL elements being nulls.
// Put replaces a table inside a single transaction.
type TableStore struct {
	db     *sql.DB
	logger logging.Logger
}

var _ table.Store = (*TableStore)(nil)

// NewTableStore returns a store over db. The schema comes from the
// migrations directory.
func NewTableStore(db *sql.DB, log logging.Logger) *TableStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &TableStore{db: db, logger: log.Named("pgstore")}
}

// Put implements table.Store.
func (s *TableStore) Put(ctx context.Context, t *table.Table) (err error) {
	if t == nil || t.Name == "" {
		return errors.InvalidParam("table must have a name")
	}
	cols := t.Columns()
	attrs, err := json.Marshal(t.Attrs())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encoding table attributes").WithDetail(t.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "beginning transaction").WithDetail(t.Name)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, sqlDeleteTable, t.Name); err != nil {
		return errors.Wrap(err, errors.ErrCodeTableWrite, "replacing table").WithDetail(t.Name)
	}
	if _, err = tx.ExecContext(ctx, sqlInsertTable, t.Name, t.KeyName, pq.Array(cols), string(attrs)); err != nil {
		return errors.Wrap(err, errors.ErrCodeTableWrite, "inserting table header").WithDetail(t.Name)
	}

	stmt, err := tx.PrepareContext(ctx, sqlInsertRow)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeTableWrite, "preparing row insert").WithDetail(t.Name)
	}
	defer stmt.Close()

	vals := make([]sql.NullFloat64, len(cols))
	for _, key := range t.Keys() {
		row, _ := t.Row(key)
		for i, c := range cols {
			v, ok := row[c]
			vals[i] = sql.NullFloat64{Float64: v, Valid: ok}
		}
		if _, err = stmt.ExecContext(ctx, t.Name, key, pq.Array(vals)); err != nil {
			return errors.Wrap(err, errors.ErrCodeTableWrite, "inserting row").WithDetailf("%s key %d", t.Name, key)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeTableWrite, "committing table").WithDetail(t.Name)
	}
	s.logger.Debug("table stored", logging.Table(t.Name), logging.Rows(t.Len()))
	return nil
}

// Get implements table.Store.
func (s *TableStore) Get(ctx context.Context, name string) (*table.Table, error) {
	var (
		keyName string
		cols    []string
		attrs   []byte
	)
	err := s.db.QueryRowContext(ctx, sqlGetTable, name).Scan(&keyName, pq.Array(&cols), &attrs)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, table.ErrNotFound(name)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "reading table header").WithDetail(name)
	}

	t := table.New(name, keyName, cols...)
	if len(attrs) > 0 {
		var m map[string]string
		if err := json.Unmarshal(attrs, &m); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTableCorrupt, "decoding table attributes").WithDetail(name)
		}
		for k, v := range m {
			t.SetAttr(k, v)
		}
	}

	rows, err := s.db.QueryContext(ctx, sqlGetRows, name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "reading table rows").WithDetail(name)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key  int64
			vals []sql.NullFloat64
		)
		if err := rows.Scan(&key, pq.Array(&vals)); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTableCorrupt, "scanning row").WithDetail(name)
		}
		if len(vals) != len(cols) {
			return nil, errors.New(errors.ErrCodeTableCorrupt, "row width does not match columns").WithDetailf("%s key %d", name, key)
		}
		t.EnsureRow(key)
		for i, v := range vals {
			if v.Valid {
				t.Set(key, cols[i], v.Float64)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "iterating rows").WithDetail(name)
	}
	return t, nil
}

// Delete implements table.Store. Rows cascade.
func (s *TableStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteTable, name); err != nil {
		return errors.Wrap(err, errors.ErrCodeTableWrite, "deleting table").WithDetail(name)
	}
	return nil
}

// List implements table.Store.
func (s *TableStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, sqlList, prefix)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "listing tables")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scanning table name")
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "listing tables")
	}
	return out, nil
}
