// Package sqlite persists project snapshots in a local SQLite database so
// interrupted runs can be resumed.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hiro-org/hiro/internal/runtime"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a project id.
var ErrSnapshotNotFound = errors.New("snapshot not found")

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	project_id TEXT PRIMARY KEY,
	goal       TEXT NOT NULL,
	saved_at   TIMESTAMP NOT NULL,
	data       BLOB NOT NULL
);
`

// Store saves and loads project snapshots, one row per project; saving again
// replaces the previous snapshot.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the snapshot database at path. The
// special path ":memory:" gives an ephemeral store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	// The driver is not safe for concurrent writes over multiple conns.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init snapshot schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes or replaces the snapshot for its project.
func (s *Store) Save(ctx context.Context, snap runtime.ProjectSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (project_id, goal, saved_at, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET goal=excluded.goal, saved_at=excluded.saved_at, data=excluded.data`,
		snap.ProjectID, snap.OverallGoal, snap.SavedAt.UTC(), data)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.ProjectID, err)
	}
	return nil
}

// Load reads the snapshot for one project.
func (s *Store) Load(ctx context.Context, projectID string) (runtime.ProjectSnapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE project_id = ?`, projectID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return runtime.ProjectSnapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, projectID)
	}
	if err != nil {
		return runtime.ProjectSnapshot{}, fmt.Errorf("load snapshot %s: %w", projectID, err)
	}
	var snap runtime.ProjectSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return runtime.ProjectSnapshot{}, fmt.Errorf("decode snapshot %s: %w", projectID, err)
	}
	return snap, nil
}

// SnapshotInfo is one row of the snapshot listing.
type SnapshotInfo struct {
	ProjectID string
	Goal      string
	SavedAt   time.Time
}

// List returns the stored snapshots, newest first.
func (s *Store) List(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT project_id, goal, saved_at FROM snapshots ORDER BY saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.ProjectID, &info.Goal, &info.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete removes one project's snapshot. Deleting a missing snapshot is not
// an error.
func (s *Store) Delete(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", projectID, err)
	}
	return nil
}
