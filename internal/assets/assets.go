// Package assets records uploaded files and stores their bytes on disk.
// Rows are immutable once created; the upload HTTP surface lives outside
// this module and hands finished files to ImportFile.
package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Kind classifies an asset's role in the import pipeline.
type Kind string

const (
	KindMIDISource   Kind = "midi_source"
	KindAudioSource  Kind = "audio_source"
	KindAudioStem    Kind = "audio_stem"
	KindAudioPreview Kind = "audio_preview"
)

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case KindMIDISource, KindAudioSource, KindAudioStem, KindAudioPreview:
		return normalized, true
	}
	return "", false
}

// Asset is one immutable uploaded file record.
type Asset struct {
	ID        string
	OwnerID   string
	Kind      Kind
	Path      string
	Mime      string
	SizeBytes int64
	Filename  string
	CreatedAt time.Time
}

// URL returns the reference persisted into charts for this asset's bytes.
func (a *Asset) URL() string {
	return "/assets/" + a.ID
}

// Store persists asset records in SQLite and bytes under a root directory.
type Store struct {
	db  *sql.DB
	dir string
}

// Open connects the asset store to the shared database file and byte root.
func Open(dbPath, assetDir string) (*Store, error) {
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
	store := &Store{db: db, dir: assetDir}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create asset directory: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS assets (
        id TEXT PRIMARY KEY,
        owner_id TEXT NOT NULL,
        kind TEXT NOT NULL,
        path TEXT NOT NULL,
        mime TEXT NOT NULL,
        size_bytes INTEGER NOT NULL,
        filename TEXT NOT NULL,
        created_at TEXT NOT NULL
    )`)
	if err != nil {
		return fmt.Errorf("create assets table: %w", err)
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

// ImportFile copies a finished upload into the asset root and records it.
func (s *Store) ImportFile(ctx context.Context, ownerID string, kind Kind, sourcePath, mime string) (*Asset, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}
	defer src.Close()

	id := uuid.NewString()
	filename := filepath.Base(sourcePath)
	destPath := filepath.Join(s.dir, id+strings.ToLower(filepath.Ext(filename)))

	dest, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("create asset file: %w", err)
	}
	size, err := io.Copy(dest, src)
	if closeErr := dest.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(destPath)
		return nil, fmt.Errorf("copy asset bytes: %w", err)
	}

	asset := &Asset{
		ID:        id,
		OwnerID:   ownerID,
		Kind:      kind,
		Path:      destPath,
		Mime:      mime,
		SizeBytes: size,
		Filename:  filename,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO assets (id, owner_id, kind, path, mime, size_bytes, filename, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		asset.ID, asset.OwnerID, string(asset.Kind), asset.Path, asset.Mime,
		asset.SizeBytes, asset.Filename, asset.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		_ = os.Remove(destPath)
		return nil, fmt.Errorf("insert asset: %w", err)
	}
	return asset, nil
}

// Get fetches an asset by id, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Asset, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, owner_id, kind, path, mime, size_bytes, filename, created_at
         FROM assets WHERE id = ?`,
		id,
	)
	var asset Asset
	var kind, createdRaw string
	err := row.Scan(&asset.ID, &asset.OwnerID, &kind, &asset.Path, &asset.Mime,
		&asset.SizeBytes, &asset.Filename, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	asset.Kind = Kind(kind)
	if created, parseErr := time.Parse(time.RFC3339Nano, createdRaw); parseErr == nil {
		asset.CreatedAt = created
	}
	return &asset, nil
}
