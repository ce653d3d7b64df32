package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"chartsmith/internal/api"
	"chartsmith/internal/queue"
)

// apiClient talks to the daemon's HTTP API.
type apiClient struct {
	base  string
	owner string
	http  *http.Client
}

func newAPIClient(address string) *apiClient {
	return &apiClient{
		base: "http://" + address,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *apiClient) withOwner(owner string) *apiClient {
	c.owner = owner
	return c
}

type daemonStatus struct {
	Running      bool                `json:"running"`
	WorkerID     string              `json:"workerId"`
	Queue        queue.HealthSummary `json:"queue"`
	Dependencies []dependencyStatus  `json:"dependencies"`
}

type dependencyStatus struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Optional  bool   `json:"optional"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

type queueListing struct {
	Jobs []queueJobView `json:"jobs"`
}

type queueJobView struct {
	ID              string `json:"id"`
	OwnerID         string `json:"ownerId"`
	SourceType      string `json:"sourceType"`
	Status          string `json:"status"`
	Stage           string `json:"stage"`
	ProgressPercent int    `json:"progressPercent"`
	Attempts        int    `json:"attempts"`
	CreatedAt       string `json:"createdAt"`
}

func (c *apiClient) Submit(ctx context.Context, req api.SubmitRequest) (string, error) {
	var resp struct {
		JobID string `json:"jobId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

func (c *apiClient) JobStatus(ctx context.Context, jobID string) (*api.JobStatus, error) {
	var status api.JobStatus
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *apiClient) DaemonStatus(ctx context.Context) (*daemonStatus, error) {
	var status daemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *apiClient) Queue(ctx context.Context, statuses []string) (*queueListing, error) {
	path := "/api/queue"
	if len(statuses) > 0 {
		values := url.Values{}
		for _, status := range statuses {
			values.Add("status", status)
		}
		path += "?" + values.Encode()
	}
	var listing queueListing
	if err := c.do(ctx, http.MethodGet, path, nil, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

func (c *apiClient) ClearQueue(ctx context.Context, scope string) (int64, error) {
	var resp struct {
		Removed int64 `json:"removed"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/queue/clear?scope="+url.QueryEscape(scope), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.owner != "" {
		req.Header.Set("X-Owner-ID", c.owner)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapDialError(err, c.base)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr == nil && payload.Error != "" {
			return errors.New(payload.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func wrapDialError(err error, base string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon: %s refused the connection; start the daemon with `chartsmithd`", base)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}
