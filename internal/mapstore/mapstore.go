// Package mapstore persists serialized voxel maps in a SQLite database,
// grouped into sessions. The schema is managed with embedded migrations.
package mapstore

import (
	"bytes"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/meridian-robotics/voxelslam/internal/voxelmap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a snapshot database handle.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open map store %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	drv, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("prepare migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("prepare migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate map store: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// BeginSession creates a new session row and returns its ID.
func (s *Store) BeginSession(label string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO map_sessions (id, label, started_unix_nanos) VALUES (?, ?, ?)`,
		id, label, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("begin session: %w", err)
	}
	return id, nil
}

// Snapshot is one stored map snapshot. Blob is the binary serialization of
// the map.
type Snapshot struct {
	ID             int64
	SessionID      string
	TakenUnixNanos int64
	VoxelCount     int
	PointCount     int
	Fingerprint    uint64
	Reason         string
	Blob           []byte
}

// InsertSnapshot serializes m and stores it under the session.
func (s *Store) InsertSnapshot(sessionID string, m *voxelmap.DualVoxelMap, reason string) (int64, error) {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO map_snapshots
		   (session_id, taken_unix_nanos, voxel_count, point_count, fingerprint, reason, blob)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, time.Now().UnixNano(), m.VoxelCount(), m.PointCount(),
		int64(m.Fingerprint()), reason, buf.Bytes())
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return id, nil
}

// GetSnapshot fetches one snapshot by ID.
func (s *Store) GetSnapshot(id int64) (*Snapshot, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, taken_unix_nanos, voxel_count, point_count, fingerprint, reason, blob
		   FROM map_snapshots WHERE id = ?`, id)
	return scanSnapshot(row)
}

// LatestSnapshot fetches the most recent snapshot, restricted to a session
// when sessionID is non-empty. Returns nil when no snapshot exists.
func (s *Store) LatestSnapshot(sessionID string) (*Snapshot, error) {
	var row *sql.Row
	if sessionID != "" {
		row = s.db.QueryRow(
			`SELECT id, session_id, taken_unix_nanos, voxel_count, point_count, fingerprint, reason, blob
			   FROM map_snapshots WHERE session_id = ?
			  ORDER BY taken_unix_nanos DESC, id DESC LIMIT 1`, sessionID)
	} else {
		row = s.db.QueryRow(
			`SELECT id, session_id, taken_unix_nanos, voxel_count, point_count, fingerprint, reason, blob
			   FROM map_snapshots ORDER BY taken_unix_nanos DESC, id DESC LIMIT 1`)
	}
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return snap, err
}

func scanSnapshot(row *sql.Row) (*Snapshot, error) {
	var snap Snapshot
	var finger int64
	err := row.Scan(&snap.ID, &snap.SessionID, &snap.TakenUnixNanos,
		&snap.VoxelCount, &snap.PointCount, &finger, &snap.Reason, &snap.Blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.Fingerprint = uint64(finger)
	return &snap, nil
}

// LoadMap deserializes a snapshot into a fresh voxel map.
func (snap *Snapshot) LoadMap() (*voxelmap.DualVoxelMap, error) {
	var m voxelmap.DualVoxelMap
	if _, err := m.ReadFrom(bytes.NewReader(snap.Blob)); err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", snap.ID, err)
	}
	return &m, nil
}
