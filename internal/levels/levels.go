// Package levels persists user levels and their immutable chart versions.
//
// A UserLevel is a mutable pointer record; every successful import creates a
// new LevelVersion whose version number is strictly increasing per level and
// whose chart payload never changes after insert.
package levels

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"chartsmith/internal/chart"
)

// LevelStatus tracks a level's editorial lifecycle.
type LevelStatus string

const (
	LevelDraft     LevelStatus = "draft"
	LevelPublished LevelStatus = "published"
	LevelArchived  LevelStatus = "archived"
)

// VersionStatus tracks whether a version is the draft or published copy.
type VersionStatus string

const (
	VersionDraft     VersionStatus = "draft"
	VersionPublished VersionStatus = "published"
)

// UserLevel is the mutable pointer record for one user-authored level.
type UserLevel struct {
	ID                    string
	OwnerID               string
	Title                 string
	Status                LevelStatus
	CurrentDraftVersionID string
	PublishedVersionID    string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// LevelVersion is one immutable chart snapshot.
type LevelVersion struct {
	ID            string
	LevelID       string
	OwnerID       string
	VersionNumber int
	Status        VersionStatus
	Chart         chart.Chart
	CreatedAt     time.Time
}

// Store persists levels and versions in SQLite.
type Store struct {
	db *sql.DB
}

// Open connects the level store to the shared database file.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	store := &Store{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS user_levels (
        id TEXT PRIMARY KEY,
        owner_id TEXT NOT NULL,
        title TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'draft',
        current_draft_version_id TEXT,
        published_version_id TEXT,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL
    );
    CREATE TABLE IF NOT EXISTS level_versions (
        id TEXT PRIMARY KEY,
        level_id TEXT NOT NULL,
        owner_id TEXT NOT NULL,
        version_number INTEGER NOT NULL,
        status TEXT NOT NULL DEFAULT 'draft',
        chart_json TEXT NOT NULL,
        created_at TEXT NOT NULL,
        UNIQUE (level_id, version_number)
    )`)
	if err != nil {
		return fmt.Errorf("create level tables: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveDraft persists a chart as a new draft version. With an empty levelID a
// fresh level is created; otherwise the version appends to the existing level
// and the draft pointer advances. The version insert and pointer update share
// one transaction so the strictly-increasing version invariant holds under
// concurrent writers.
func (s *Store) SaveDraft(ctx context.Context, ownerID, levelID, title string, c chart.Chart) (*LevelVersion, error) {
	chartJSON, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save draft: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if strings.TrimSpace(levelID) == "" {
		levelID = uuid.NewString()
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO user_levels (id, owner_id, title, status, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			levelID, ownerID, title, string(LevelDraft), timestamp, timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("insert level: %w", err)
		}
	} else {
		var existingOwner string
		err = tx.QueryRowContext(ctx, `SELECT owner_id FROM user_levels WHERE id = ?`, levelID).Scan(&existingOwner)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("level %s: %w", levelID, sql.ErrNoRows)
		}
		if err != nil {
			return nil, fmt.Errorf("lookup level: %w", err)
		}
		if existingOwner != ownerID {
			return nil, errors.New("level belongs to a different owner")
		}
	}

	var maxVersion sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT MAX(version_number) FROM level_versions WHERE level_id = ?`, levelID,
	).Scan(&maxVersion)
	if err != nil {
		return nil, fmt.Errorf("next version number: %w", err)
	}

	version := &LevelVersion{
		ID:            uuid.NewString(),
		LevelID:       levelID,
		OwnerID:       ownerID,
		VersionNumber: int(maxVersion.Int64) + 1,
		Status:        VersionDraft,
		Chart:         c,
		CreatedAt:     now,
	}
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO level_versions (id, level_id, owner_id, version_number, status, chart_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		version.ID, version.LevelID, version.OwnerID, version.VersionNumber,
		string(version.Status), string(chartJSON), timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert level version: %w", err)
	}

	_, err = tx.ExecContext(
		ctx,
		`UPDATE user_levels SET current_draft_version_id = ?, title = ?, updated_at = ? WHERE id = ?`,
		version.ID, title, timestamp, levelID,
	)
	if err != nil {
		return nil, fmt.Errorf("advance draft pointer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save draft: %w", err)
	}
	return version, nil
}

// GetLevel fetches a level by id, or nil when absent.
func (s *Store) GetLevel(ctx context.Context, id string) (*UserLevel, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, owner_id, title, status, current_draft_version_id, published_version_id, created_at, updated_at
         FROM user_levels WHERE id = ?`,
		id,
	)
	var level UserLevel
	var status string
	var draftID, publishedID sql.NullString
	var createdRaw, updatedRaw string
	err := row.Scan(&level.ID, &level.OwnerID, &level.Title, &status, &draftID, &publishedID, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get level: %w", err)
	}
	level.Status = LevelStatus(status)
	level.CurrentDraftVersionID = draftID.String
	level.PublishedVersionID = publishedID.String
	if created, parseErr := time.Parse(time.RFC3339Nano, createdRaw); parseErr == nil {
		level.CreatedAt = created
	}
	if updated, parseErr := time.Parse(time.RFC3339Nano, updatedRaw); parseErr == nil {
		level.UpdatedAt = updated
	}
	return &level, nil
}

// GetVersion fetches a level version by id, or nil when absent.
func (s *Store) GetVersion(ctx context.Context, id string) (*LevelVersion, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, level_id, owner_id, version_number, status, chart_json, created_at
         FROM level_versions WHERE id = ?`,
		id,
	)
	var version LevelVersion
	var status, chartJSON, createdRaw string
	err := row.Scan(&version.ID, &version.LevelID, &version.OwnerID, &version.VersionNumber, &status, &chartJSON, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get level version: %w", err)
	}
	version.Status = VersionStatus(status)
	if err := json.Unmarshal([]byte(chartJSON), &version.Chart); err != nil {
		return nil, fmt.Errorf("decode chart: %w", err)
	}
	if created, parseErr := time.Parse(time.RFC3339Nano, createdRaw); parseErr == nil {
		version.CreatedAt = created
	}
	return &version, nil
}
