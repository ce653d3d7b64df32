package separation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"chartsmith/internal/logging"
)

func TestSeparateUnmappedStemFallsBack(t *testing.T) {
	sep := New("true", logging.NewNop())
	path, warnings := sep.Separate(context.Background(), "/audio/mix.wav", t.TempDir(), "job-1", "kazoo")
	if path != "/audio/mix.wav" {
		t.Fatalf("expected original path back, got %s", path)
	}
	if len(warnings) != 1 || warnings[0].Code != "stem_unmapped" {
		t.Fatalf("expected stem_unmapped warning, got %v", warnings)
	}
}

func TestSeparateMissingToolFallsBack(t *testing.T) {
	sep := New("definitely-not-a-real-binary-name", logging.NewNop())
	path, warnings := sep.Separate(context.Background(), "/audio/mix.wav", t.TempDir(), "job-1", "bass")
	if path != "/audio/mix.wav" {
		t.Fatalf("expected original path back, got %s", path)
	}
	if len(warnings) != 1 || warnings[0].Code != "separation_unavailable" {
		t.Fatalf("expected separation_unavailable warning, got %v", warnings)
	}
}

func TestSeparateCrashFallsBack(t *testing.T) {
	sep := New("true", logging.NewNop())
	sep.SetRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("separator crashed")
	})
	path, warnings := sep.Separate(context.Background(), "/audio/mix.wav", t.TempDir(), "job-1", "vocals")
	if path != "/audio/mix.wav" {
		t.Fatalf("expected original path back, got %s", path)
	}
	if len(warnings) != 1 || warnings[0].Code != "separation_failed" {
		t.Fatalf("expected separation_failed warning, got %v", warnings)
	}
}

func TestSeparateReturnsStemPath(t *testing.T) {
	staging := t.TempDir()
	sep := New("true", logging.NewNop())
	sep.SetRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		var outDir string
		for i, arg := range args {
			if arg == "-o" && i+1 < len(args) {
				outDir = args[i+1]
			}
		}
		stemDir := filepath.Join(outDir, model, "mix")
		if err := os.MkdirAll(stemDir, 0o755); err != nil {
			return nil, err
		}
		return nil, os.WriteFile(filepath.Join(stemDir, "vocals.wav"), []byte("riff"), 0o644)
	})
	path, warnings := sep.Separate(context.Background(), "/audio/mix.wav", staging, "job-1", "vocals")
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if filepath.Base(path) != "vocals.wav" {
		t.Fatalf("expected stem path, got %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stem file missing: %v", err)
	}
}
