package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no cgo
)

// ScalarStore is the SQLite half of a VectorStore table: it owns the
// scalar columns, projections, and predicate deletes (project_scan,
// delete_where, count), while the ANN half (graphIndex) owns the
// embedding column's similarity search. Runs in WAL mode with an
// integrity check on open, generalized to arbitrary named tables with
// dynamic schemas rather than a single fixed content table.
type ScalarStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool

	schemas map[string][]string // table name -> column order, set by EnsureTable
}

// validateSQLiteIntegrity opens path read-only and runs a PRAGMA
// integrity_check before the store takes ownership of it, auto-recovering
// from a file left corrupt by a killed process.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewScalarStore opens (or creates) the scalar row store at path. An empty
// path creates an in-memory database for tests. WAL mode is enabled so
// concurrent readers never serialize.
func NewScalarStore(path string) (*ScalarStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("scalar_store_corrupted", slog.String("path", path), slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("scalar store corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("scalar_store_cleared", slog.String("path", path), slog.String("reason", "corruption detected, please reindex"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open scalar store: %w", err)
	}

	if path != "" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &ScalarStore{db: db, path: path, schemas: make(map[string][]string)}, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// EnsureTable creates the table if it doesn't exist with the full column
// schema written atomically — no partial schema is ever observable.
// Returns true if the table was just created.
func (s *ScalarStore) EnsureTable(ctx context.Context, table string, schema Schema) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("scalar store is closed")
	}

	if cols, ok := s.schemas[table]; ok {
		_ = cols
		return false, nil
	}

	var row int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&row)
	if err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	alreadyExists := row > 0

	if !alreadyExists {
		cols := make([]string, 0, len(schema.Columns)+1)
		cols = append(cols, "id TEXT PRIMARY KEY")
		for _, c := range schema.Columns {
			if c == "id" {
				continue
			}
			cols = append(cols, quoteIdent(c)+" TEXT")
		}
		ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(cols, ", "))
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return false, fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}

	ordered := make([]string, 0, len(schema.Columns))
	seen := map[string]bool{}
	ordered = append(ordered, "id")
	seen["id"] = true
	for _, c := range schema.Columns {
		if !seen[c] {
			ordered = append(ordered, c)
			seen[c] = true
		}
	}
	s.schemas[table] = ordered

	return !alreadyExists, nil
}

// Upsert writes rows keyed by "id", overwriting existing rows. The
// batch's columns must match the table's schema exactly or the write
// fails with ErrSchemaMismatch.
func (s *ScalarStore) Upsert(ctx context.Context, table string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("scalar store is closed")
	}

	cols, ok := s.schemas[table]
	if !ok {
		return ErrTableNotFound{Table: table}
	}

	if err := validateBatchColumns(table, cols, rows); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(cols))
	quotedCols := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		quotedCols[i] = quoteIdent(c)
	}
	stmtSQL := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quotedCols, ", "), strings.Join(placeholders, ", "))

	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		args := make([]any, len(cols))
		for i, c := range cols {
			args[i] = encodeValue(row[c])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to upsert row: %w", err)
		}
	}

	return tx.Commit()
}

// validateBatchColumns ensures every row uses exactly the table's column
// set; a mismatch fails with SchemaMismatch.
func validateBatchColumns(table string, schemaCols []string, rows []map[string]any) error {
	want := append([]string(nil), schemaCols...)
	sort.Strings(want)
	for _, row := range rows {
		got := make([]string, 0, len(row))
		for k := range row {
			got = append(got, k)
		}
		sort.Strings(got)
		if !equalStrings(want, got) {
			return ErrSchemaMismatch{Table: table, Expected: schemaCols, Got: got}
		}
	}
	return nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// encodeValue converts a Go value into a form SQLite's TEXT columns can
// store: []float32 embeddings and map[string]string metadata are JSON
// encoded; everything else passes through as-is.
func encodeValue(v any) any {
	switch val := v.(type) {
	case []float32, map[string]string:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return v
	}
}

// DeleteWhere removes rows matching an equality predicate, O(rows matched)
// via an indexed column scan.
func (s *ScalarStore) DeleteWhere(ctx context.Context, table string, pred Predicate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("scalar store is closed")
	}
	if _, ok := s.schemas[table]; !ok {
		return ErrTableNotFound{Table: table}
	}

	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdent(table), quoteIdent(pred.Column))
	_, err := s.db.ExecContext(ctx, sqlStr, pred.Value)
	if err != nil {
		return fmt.Errorf("delete_where failed: %w", err)
	}
	return nil
}

// Count returns the number of rows in table.
func (s *ScalarStore) Count(ctx context.Context, table string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("scalar store is closed")
	}
	if _, ok := s.schemas[table]; !ok {
		return 0, ErrTableNotFound{Table: table}
	}

	var count int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return count, nil
}

// ProjectScan reads only the requested columns (column pruning is
// mandatory on every read path), optionally filtered by a single
// equality predicate.
func (s *ScalarStore) ProjectScan(ctx context.Context, table string, columns []string, pred *Predicate) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("scalar store is closed")
	}
	schemaCols, ok := s.schemas[table]
	if !ok {
		return nil, ErrTableNotFound{Table: table}
	}

	selectCols := columns
	if len(selectCols) == 0 {
		selectCols = schemaCols
	}
	quoted := make([]string, len(selectCols))
	for i, c := range selectCols {
		quoted[i] = quoteIdent(c)
	}

	sqlStr := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(table))
	args := []any{}
	if pred != nil {
		sqlStr += fmt.Sprintf(" WHERE %s = ?", quoteIdent(pred.Column))
		args = append(args, pred.Value)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("project_scan failed: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		dest := make([]any, len(selectCols))
		ptrs := make([]any, len(selectCols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("project_scan scan failed: %w", err)
		}
		record := make(map[string]any, len(selectCols))
		for i, c := range selectCols {
			record[c] = dest[i]
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// CreateScalarIndex creates a secondary index on column, used to keep
// delete_where and category-filtered scans O(rows matched).
func (s *ScalarStore) CreateScalarIndex(ctx context.Context, table, column string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("scalar store is closed")
	}
	if _, ok := s.schemas[table]; !ok {
		return ErrTableNotFound{Table: table}
	}

	idxName := fmt.Sprintf("idx_%s_%s", table, column)
	sqlStr := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", quoteIdent(idxName), quoteIdent(table), quoteIdent(column))
	_, err := s.db.ExecContext(ctx, sqlStr)
	if err != nil {
		return fmt.Errorf("create_scalar_index failed: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *ScalarStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
