package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"chartsmith/internal/api"
	"chartsmith/internal/assets"
	"chartsmith/internal/logging"
	"chartsmith/internal/testsupport"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return d
}

func TestDaemonStartStop(t *testing.T) {
	d := newTestDaemon(t)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if d.Addr() == "" {
		t.Fatal("expected api server address after start")
	}
	d.Stop()
	// Stopping again is a no-op.
	d.Stop()
}

func TestDaemonRejectsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	first, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer first.Close()
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	second, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	defer second.Close()
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second instance to fail acquiring the lock")
	}
}

func TestDaemonHTTPRoundTrip(t *testing.T) {
	d := newTestDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	base := "http://" + d.Addr()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status endpoint returned %d", resp.StatusCode)
	}
	var status struct {
		Running  bool   `json:"running"`
		WorkerID string `json:"workerId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running daemon")
	}
	if status.WorkerID == "" {
		t.Fatal("expected worker id")
	}

	// Submitting a job over HTTP reaches the queue.
	cfg := d.cfg
	store := testsupport.MustOpenAssets(t, cfg)
	source := filepath.Join(testsupport.BaseDir(cfg), "song.mid")
	testsupport.WriteFile(t, source, 256)
	asset := testsupport.MustImportAsset(t, store, "user-1", assets.KindMIDISource, source, "audio/midi")

	body, err := json.Marshal(api.SubmitRequest{
		Title:         "Roundtrip Song",
		SourceAssetID: asset.ID,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, base+"/api/jobs", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-ID", "user-1")

	submitResp, err := client.Do(req)
	if err != nil {
		t.Fatalf("POST /api/jobs: %v", err)
	}
	defer submitResp.Body.Close()
	if submitResp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit returned %d", submitResp.StatusCode)
	}
	var submitted struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(submitResp.Body).Decode(&submitted); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if submitted.JobID == "" {
		t.Fatal("expected job id")
	}

	statusReq, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/jobs/%s", base, submitted.JobID), nil)
	if err != nil {
		t.Fatalf("build status request: %v", err)
	}
	statusReq.Header.Set("X-Owner-ID", "user-1")
	jobResp, err := client.Do(statusReq)
	if err != nil {
		t.Fatalf("GET /api/jobs/{id}: %v", err)
	}
	defer jobResp.Body.Close()
	if jobResp.StatusCode != http.StatusOK {
		t.Fatalf("job status returned %d", jobResp.StatusCode)
	}
}

func TestDaemonJobStatusRequiresOwner(t *testing.T) {
	d := newTestDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + d.Addr() + "/api/jobs/unknown")
	if err != nil {
		t.Fatalf("GET without owner: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
