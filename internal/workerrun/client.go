package workerrun

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/xerrors"
)

// Client talks the worker-facing HTTP surface of the coordinator
// (/api/worker/heartbeat, /api/worker/poll, /api/worker/job_update).
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient builds a Client bounded by the given outbound request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

// HeartbeatRequest mirrors common::WorkerHeartbeatRequest field-for-field.
type HeartbeatRequest struct {
	Hostname             string `json:"hostname"`
	Arch                 string `json:"arch"`
	WorkerSecret         string `json:"worker_secret"`
	MemoryBytes          int64  `json:"memory_bytes"`
	DiskFreeSpaceBytes   int64  `json:"disk_free_space_bytes"`
	LogicalCores         int32  `json:"logical_cores"`
	Performance          *int64 `json:"performance,omitempty"`
	InternetConnectivity *bool  `json:"internet_connectivity,omitempty"`
}

// PollRequest mirrors common::WorkerPollRequest.
type PollRequest struct {
	Hostname           string `json:"hostname"`
	Arch               string `json:"arch"`
	WorkerSecret       string `json:"worker_secret"`
	MemoryBytes        int64  `json:"memory_bytes"`
	DiskFreeSpaceBytes int64  `json:"disk_free_space_bytes"`
	LogicalCores       int32  `json:"logical_cores"`
}

// PollResponse mirrors common::WorkerPollResponse; nil means no offer.
type PollResponse struct {
	JobID     int64  `json:"job_id"`
	GitBranch string `json:"git_branch"`
	GitSHA    string `json:"git_sha"`
	Packages  string `json:"packages"`
}

// JobOutcome mirrors common::JobOk.
type JobOutcome struct {
	BuildSuccess       bool     `json:"build_success"`
	PushSuccess        bool     `json:"pushpkg_success"`
	SuccessfulPackages []string `json:"successful_packages"`
	FailedPackage      *string  `json:"failed_package,omitempty"`
	SkippedPackages    []string `json:"skipped_packages"`
	LogURL             *string  `json:"log_url,omitempty"`
	ElapsedSecs        int64    `json:"elapsed_secs"`
}

// JobUpdateRequest mirrors common::WorkerJobUpdateRequest; exactly one of
// Outcome/Error is set.
type JobUpdateRequest struct {
	Hostname     string      `json:"hostname"`
	Arch         string      `json:"arch"`
	WorkerSecret string      `json:"worker_secret"`
	JobID        int64       `json:"job_id"`
	Outcome      *JobOutcome `json:"outcome,omitempty"`
	Error        *string     `json:"error,omitempty"`
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return xerrors.Errorf("encoding request to %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return xerrors.Errorf("building request to %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return xerrors.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return xerrors.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return xerrors.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}

// Heartbeat reports liveness and resource profile.
func (c *Client) Heartbeat(ctx context.Context, req HeartbeatRequest) error {
	return c.postJSON(ctx, "/api/worker/heartbeat", req, nil)
}

// Poll asks for work, returning (offer, true) or (zero, false) if none.
func (c *Client) Poll(ctx context.Context, req PollRequest) (PollResponse, bool, error) {
	var resp *PollResponse
	if err := c.postJSON(ctx, "/api/worker/poll", req, &resp); err != nil {
		return PollResponse{}, false, err
	}
	if resp == nil {
		return PollResponse{}, false, nil
	}
	return *resp, true, nil
}

// ReportJob sends a terminal job update.
func (c *Client) ReportJob(ctx context.Context, req JobUpdateRequest) error {
	return c.postJSON(ctx, "/api/worker/job_update", req, nil)
}
