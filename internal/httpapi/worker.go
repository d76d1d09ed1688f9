package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/buildit-project/buildit/internal/bierr"
	"github.com/buildit-project/buildit/internal/ingest"
	"github.com/buildit-project/buildit/internal/registry"
	"github.com/buildit-project/buildit/internal/scheduler"
	"github.com/buildit-project/buildit/internal/store"
)

// checkWorkerSecret rejects mutating worker calls whose secret request
// field, already decoded into got, does not match the shared secret. No
// request header is consulted, and an empty configured secret accepts every
// call.
func (a *API) checkWorkerSecret(w http.ResponseWriter, r *http.Request, got string) bool {
	if a.WorkerSecret == "" {
		return true
	}
	if got == a.WorkerSecret {
		return true
	}
	a.writeError(w, r, bierr.Errorf(bierr.AuthFailed, "invalid worker secret"))
	return false
}

type heartbeatRequest struct {
	Secret        string `json:"secret"`
	Hostname      string `json:"hostname" validate:"required"`
	Arch          string `json:"arch" validate:"required"`
	MemoryBytes   int64  `json:"memory_bytes"`
	LogicalCores  int32  `json:"logical_cores"`
	FreeDiskBytes int64  `json:"free_disk_bytes"`
	Performance   *int64 `json:"performance"`
	InternetOK    *bool  `json:"internet_ok"`
}

func (a *API) handleWorkerHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	if !a.checkWorkerSecret(w, r, req.Secret) {
		return
	}

	worker, err := a.Registry.Record(r.Context(), registry.Heartbeat{
		Hostname:      req.Hostname,
		Arch:          req.Arch,
		MemoryBytes:   req.MemoryBytes,
		LogicalCores:  req.LogicalCores,
		FreeDiskBytes: req.FreeDiskBytes,
		Performance:   req.Performance,
		InternetOK:    req.InternetOK,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workerResponse{WorkerID: worker.ID})
}

type workerResponse struct {
	WorkerID int64 `json:"worker_id"`
}

type pollRequest struct {
	Secret        string `json:"secret"`
	Hostname      string `json:"hostname" validate:"required"`
	Arch          string `json:"arch" validate:"required"`
	LogicalCores  int32  `json:"logical_cores"`
	MemoryBytes   int64  `json:"memory_bytes"`
	FreeDiskBytes int64  `json:"free_disk_bytes"`
}

type pollResponse struct {
	JobID      *int64 `json:"job_id,omitempty"`
	Arch       string `json:"arch,omitempty"`
	Packages   string `json:"packages,omitempty"`
	GitBranch  string `json:"git_branch,omitempty"`
	GitSHA     string `json:"git_sha,omitempty"`
	PipelineID int64  `json:"pipeline_id,omitempty"`
}

func (a *API) handleWorkerPoll(w http.ResponseWriter, r *http.Request) {
	var req pollRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	if !a.checkWorkerSecret(w, r, req.Secret) {
		return
	}

	offer, ok, err := a.Scheduler.Poll(r.Context(), scheduler.PollRequest{
		Hostname:      req.Hostname,
		Arch:          req.Arch,
		LogicalCores:  req.LogicalCores,
		MemoryBytes:   req.MemoryBytes,
		FreeDiskBytes: req.FreeDiskBytes,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, pollResponse{})
		return
	}

	jobID := offer.Job.ID
	writeJSON(w, http.StatusOK, pollResponse{
		JobID:      &jobID,
		Arch:       offer.Job.Arch,
		Packages:   offer.Job.Packages,
		GitBranch:  offer.Pipeline.GitBranch,
		GitSHA:     offer.Pipeline.GitSHA,
		PipelineID: offer.Pipeline.ID,
	})
}

type jobUpdateRequest struct {
	Secret             string   `json:"secret"`
	JobID              int64    `json:"job_id" validate:"required"`
	Hostname           string   `json:"hostname" validate:"required"`
	Arch               string   `json:"arch" validate:"required"`
	BuildSuccess       *bool    `json:"build_success"`
	PushSuccess        *bool    `json:"push_success"`
	SuccessfulPackages []string `json:"successful_packages"`
	FailedPackage      string   `json:"failed_package"`
	SkippedPackages    []string `json:"skipped_packages"`
	LogURL             string   `json:"log_url"`
	ElapsedSecs        int64    `json:"elapsed_secs"`
	ErrorMessage       string   `json:"error_message"`
}

func (a *API) handleWorkerJobUpdate(w http.ResponseWriter, r *http.Request) {
	var req jobUpdateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	if !a.checkWorkerSecret(w, r, req.Secret) {
		return
	}

	report := ingest.Report{
		JobID:    req.JobID,
		Hostname: req.Hostname,
		Arch:     req.Arch,
		ErrorMsg: req.ErrorMessage,
	}
	// BuildSuccess absent means the worker hit an infrastructure error
	// rather than completing the build, per spec §4.3's job state machine.
	if req.BuildSuccess != nil {
		report.Outcome = &store.JobOutcome{
			BuildSuccess:       *req.BuildSuccess,
			PushSuccess:        req.PushSuccess != nil && *req.PushSuccess,
			SuccessfulPackages: req.SuccessfulPackages,
			FailedPackage:      req.FailedPackage,
			SkippedPackages:    req.SkippedPackages,
			LogURL:             req.LogURL,
			ElapsedSecs:        req.ElapsedSecs,
		}
	}

	job, _, err := a.Ingest.Record(r.Context(), report)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobUpdateResponse{JobID: job.ID, Status: string(job.Status)})
}

type jobUpdateResponse struct {
	JobID  int64  `json:"job_id"`
	Status string `json:"status"`
}

type workerListEntry struct {
	WorkerID      int64  `json:"worker_id"`
	Hostname      string `json:"hostname"`
	Arch          string `json:"arch"`
	Live          bool   `json:"live"`
	LogicalCores  int32  `json:"logical_cores"`
	MemoryBytes   int64  `json:"memory_bytes"`
	FreeDiskBytes int64  `json:"free_disk_bytes"`
}

type workerListResponse struct {
	Workers []workerListEntry `json:"workers"`
	Total   int64             `json:"total"`
}

func (a *API) handleWorkerList(w http.ResponseWriter, r *http.Request) {
	page := queryInt64(r, "page", 1)
	itemsPerPage := queryInt64(r, "items_per_page", -1)

	statuses, total, err := a.Registry.FleetStatus(r.Context(), page, itemsPerPage)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp := workerListResponse{Workers: make([]workerListEntry, 0, len(statuses)), Total: total}
	for _, s := range statuses {
		resp.Workers = append(resp.Workers, workerListEntry{
			WorkerID:      s.Worker.ID,
			Hostname:      s.Worker.Hostname,
			Arch:          s.Worker.Arch,
			Live:          s.Live,
			LogicalCores:  s.Worker.LogicalCores,
			MemoryBytes:   s.Worker.MemoryBytes,
			FreeDiskBytes: s.Worker.FreeDiskBytes,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type jobInfoResponse struct {
	JobID              int64    `json:"job_id"`
	PipelineID         int64    `json:"pipeline_id"`
	Arch               string   `json:"arch"`
	Status             string   `json:"status"`
	BuildSuccess       *bool    `json:"build_success,omitempty"`
	PushSuccess        *bool    `json:"push_success,omitempty"`
	SuccessfulPackages []string `json:"successful_packages,omitempty"`
	FailedPackage      string   `json:"failed_package,omitempty"`
	SkippedPackages    []string `json:"skipped_packages,omitempty"`
	LogURL             string   `json:"log_url,omitempty"`
	ElapsedSecs        *int64   `json:"elapsed_secs,omitempty"`
	ErrorMessage       string   `json:"error_message,omitempty"`
}

func (a *API) handleJobInfo(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("job_id"), 10, 64)
	if err != nil {
		a.writeError(w, r, bierr.Errorf(bierr.InputInvalid, "invalid job_id: %w", err))
		return
	}

	var job store.Job
	err = a.Store.WithTx(r.Context(), func(ctx context.Context, tx *store.Tx) error {
		var err error
		job, err = tx.GetJob(ctx, id)
		return err
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp := jobInfoResponse{
		JobID:              job.ID,
		PipelineID:         job.PipelineID,
		Arch:               job.Arch,
		Status:             string(job.Status),
		BuildSuccess:       job.BuildSuccess,
		PushSuccess:        job.PushSuccess,
		SuccessfulPackages: splitOptCSV(job.SuccessfulPackages),
		SkippedPackages:    splitOptCSV(job.SkippedPackages),
		ElapsedSecs:        job.ElapsedSecs,
	}
	if job.FailedPackage != nil {
		resp.FailedPackage = *job.FailedPackage
	}
	if job.LogURL != nil {
		resp.LogURL = *job.LogURL
	}
	if job.ErrorMessage != nil {
		resp.ErrorMessage = *job.ErrorMessage
	}
	writeJSON(w, http.StatusOK, resp)
}

func splitOptCSV(p *string) []string {
	if p == nil {
		return nil
	}
	return splitCSV(*p)
}
