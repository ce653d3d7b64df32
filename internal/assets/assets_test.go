package assets_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"chartsmith/internal/assets"
)

func newTestStore(t *testing.T) *assets.Store {
	t.Helper()
	base := t.TempDir()
	store, err := assets.Open(filepath.Join(base, "chartsmith.db"), filepath.Join(base, "assets"))
	if err != nil {
		t.Fatalf("open asset store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestImportFileAndGet(t *testing.T) {
	store := newTestStore(t)

	source := filepath.Join(t.TempDir(), "song.mid")
	if err := os.WriteFile(source, []byte("MThd fake"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	asset, err := store.ImportFile(context.Background(), "owner-1", assets.KindMIDISource, source, "audio/midi")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if asset.SizeBytes != int64(len("MThd fake")) {
		t.Errorf("size = %d", asset.SizeBytes)
	}
	if asset.Filename != "song.mid" {
		t.Errorf("filename = %q", asset.Filename)
	}
	if _, err := os.Stat(asset.Path); err != nil {
		t.Errorf("bytes not stored: %v", err)
	}

	fetched, err := store.Get(context.Background(), asset.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched == nil || fetched.Kind != assets.KindMIDISource || fetched.OwnerID != "owner-1" {
		t.Fatalf("fetched = %+v", fetched)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	asset, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if asset != nil {
		t.Fatalf("expected nil, got %+v", asset)
	}
}

func TestParseKind(t *testing.T) {
	if kind, ok := assets.ParseKind(" Audio_Source "); !ok || kind != assets.KindAudioSource {
		t.Errorf("ParseKind failed: %v %v", kind, ok)
	}
	if _, ok := assets.ParseKind("video"); ok {
		t.Error("unexpected kind accepted")
	}
}
