package testsupport

import (
	"context"
	"testing"

	"chartsmith/internal/assets"
	"chartsmith/internal/config"
	"chartsmith/internal/levels"
	"chartsmith/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenAssets opens an assets.Store for tests and registers cleanup.
func MustOpenAssets(t testing.TB, cfg *config.Config) *assets.Store {
	t.Helper()

	store, err := assets.Open(cfg.DatabasePath(), cfg.Paths.AssetDir)
	if err != nil {
		t.Fatalf("assets.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenLevels opens a levels.Store for tests and registers cleanup.
func MustOpenLevels(t testing.TB, cfg *config.Config) *levels.Store {
	t.Helper()

	store, err := levels.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("levels.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustImportAsset copies a file into the asset store for tests.
func MustImportAsset(t testing.TB, store *assets.Store, ownerID string, kind assets.Kind, path, mime string) *assets.Asset {
	t.Helper()

	asset, err := store.ImportFile(context.Background(), ownerID, kind, path, mime)
	if err != nil {
		t.Fatalf("assets.ImportFile: %v", err)
	}
	return asset
}
