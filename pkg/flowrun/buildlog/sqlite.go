package buildlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// sqliteTimeLayout is fixed-width so stored timestamps sort lexically in
// chronological order. RFC3339Nano would not: it trims trailing fractional
// zeros, and "05Z" sorts after "05.5Z".
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists build records to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	caps   Caps
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a SQLite build log store.
// The path should be a file path (e.g. "./builds.db") or ":memory:" for
// testing. Caps fields <= 0 disable the corresponding bound.
func NewSQLiteStore(path string, caps Caps) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS vertex_builds (
			build_id TEXT NOT NULL PRIMARY KEY,
			flow_id TEXT NOT NULL,
			vertex_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			data TEXT NOT NULL,
			params TEXT NOT NULL,
			artifacts TEXT NOT NULL,
			valid INTEGER NOT NULL,
			error TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_vertex_builds_flow
		ON vertex_builds(flow_id, timestamp)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db, caps: caps}, nil
}

// LogVertexBuild implements Store. The insert and both retention prunes
// commit as one transaction.
func (s *SQLiteStore) LogVertexBuild(ctx context.Context, e *Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	if e.FlowID == "" || e.VertexID == "" || e.BuildID == "" {
		return 0, ErrInvalidEntry
	}

	data, err := marshalField(e.Data)
	if err != nil {
		return 0, fmt.Errorf("encode data: %w", err)
	}
	params, err := marshalField(e.Params)
	if err != nil {
		return 0, fmt.Errorf("encode params: %w", err)
	}
	artifacts, err := marshalField(e.Artifacts)
	if err != nil {
		return 0, fmt.Errorf("encode artifacts: %w", err)
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO vertex_builds
			(build_id, flow_id, vertex_id, timestamp, data, params, artifacts, valid, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.BuildID, e.FlowID, e.VertexID, ts.UTC().Format(sqliteTimeLayout),
		data, params, artifacts, boolToInt(e.Valid), e.Error); err != nil {
		return 0, fmt.Errorf("insert build: %w", err)
	}

	var pruned int64

	if s.caps.MaxBuildsPerVertex > 0 {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM vertex_builds
			WHERE flow_id = ? AND vertex_id = ? AND build_id NOT IN (
				SELECT build_id FROM vertex_builds
				WHERE flow_id = ? AND vertex_id = ?
				ORDER BY timestamp DESC, build_id DESC
				LIMIT ?
			)
		`, e.FlowID, e.VertexID, e.FlowID, e.VertexID, s.caps.MaxBuildsPerVertex)
		if err != nil {
			return 0, fmt.Errorf("prune vertex builds: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			pruned += n
		}
	}

	if s.caps.MaxBuildsToKeep > 0 {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM vertex_builds
			WHERE flow_id = ? AND build_id NOT IN (
				SELECT build_id FROM vertex_builds
				WHERE flow_id = ?
				ORDER BY timestamp DESC, build_id DESC
				LIMIT ?
			)
		`, e.FlowID, e.FlowID, s.caps.MaxBuildsToKeep)
		if err != nil {
			return 0, fmt.Errorf("prune flow builds: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			pruned += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit build log: %w", err)
	}
	return pruned, nil
}

// ListBuilds implements Store.
func (s *SQLiteStore) ListBuilds(ctx context.Context, flowID string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT build_id, flow_id, vertex_id, timestamp, data, params, artifacts, valid, error
		FROM vertex_builds
		WHERE flow_id = ?
		ORDER BY timestamp DESC, build_id DESC
		LIMIT ?
	`, flowID, limit)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}
	return entries, nil
}

// DeleteBuilds implements Store.
func (s *SQLiteStore) DeleteBuilds(ctx context.Context, flowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM vertex_builds WHERE flow_id = ?
	`, flowID); err != nil {
		return fmt.Errorf("delete flow builds: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var e Entry
	var ts, data, params, artifacts string
	var valid int
	if err := rows.Scan(&e.BuildID, &e.FlowID, &e.VertexID, &ts,
		&data, &params, &artifacts, &valid, &e.Error); err != nil {
		return nil, fmt.Errorf("scan build entry: %w", err)
	}
	e.Timestamp, _ = time.Parse(sqliteTimeLayout, ts)
	e.Valid = valid != 0
	if err := unmarshalField(data, &e.Data); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	if err := unmarshalField(params, &e.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if err := unmarshalField(artifacts, &e.Artifacts); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	return &e, nil
}

func marshalField(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalField(s string, dst *map[string]any) error {
	if s == "" || s == "{}" {
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
