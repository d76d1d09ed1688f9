package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/buildit-project/buildit/internal/bierr"
	"github.com/buildit-project/buildit/internal/pipeline"
	"github.com/buildit-project/buildit/internal/store"
)

type pipelineNewRequest struct {
	GitBranch string `json:"git_branch" validate:"required"`
	Packages  string `json:"packages" validate:"required"`
	Archs     string `json:"archs" validate:"required"`
}

type pipelineIDResponse struct {
	ID int64 `json:"id"`
}

func (a *API) handlePipelineNew(w http.ResponseWriter, r *http.Request) {
	var req pipelineNewRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	pl, _, err := a.Pipelines.Create(r.Context(), pipeline.NewRequest{
		GitBranch: req.GitBranch,
		Packages:  splitCSV(req.Packages),
		Archs:     splitCSV(req.Archs),
		Source:    store.SourceManual,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pipelineIDResponse{ID: pl.ID})
}

type pipelineNewPRRequest struct {
	PR    int64  `json:"pr" validate:"required"`
	Archs string `json:"archs"`
}

func (a *API) handlePipelineNewPR(w http.ResponseWriter, r *http.Request) {
	var req pipelineNewPRRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	if a.PRs == nil {
		a.writeError(w, r, bierr.Errorf(bierr.Internal, "pull request resolver not configured"))
		return
	}

	branch, sha, body, err := a.PRs.ResolvePR(r.Context(), req.PR)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	archs := splitCSV(req.Archs)
	if len(archs) == 0 {
		archs = []string{"mainline"}
	}

	packages := pipeline.ParsePackageMarker(body)
	if len(packages) == 0 {
		a.writeError(w, r, bierr.Errorf(bierr.InputInvalid, "pull request #%d has no #buildit package marker", req.PR))
		return
	}
	pl, _, err := a.Pipelines.CreateFromPR(r.Context(), pipeline.PRRequest{
		GitHubPR:  req.PR,
		GitBranch: branch,
		GitSHA:    sha,
		Packages:  packages,
		Archs:     archs,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pipelineIDResponse{ID: pl.ID})
}

type pipelineInfoJob struct {
	JobID  int64  `json:"job_id"`
	Arch   string `json:"arch"`
	Status string `json:"status"`
}

type pipelineInfoResponse struct {
	PipelineID int64             `json:"pipeline_id"`
	Packages   string            `json:"packages"`
	Archs      string            `json:"archs"`
	GitBranch  string            `json:"git_branch"`
	GitSHA     string            `json:"git_sha"`
	GitHubPR   *int64            `json:"github_pr,omitempty"`
	Jobs       []pipelineInfoJob `json:"jobs"`
}

func (a *API) handlePipelineInfo(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("pipeline_id"), 10, 64)
	if err != nil {
		a.writeError(w, r, bierr.Errorf(bierr.InputInvalid, "invalid pipeline_id: %w", err))
		return
	}

	var pl store.Pipeline
	var jobs []store.Job
	err = a.Store.WithTx(r.Context(), func(ctx context.Context, tx *store.Tx) error {
		var err error
		pl, err = tx.GetPipeline(ctx, id)
		if err != nil {
			return err
		}
		jobs, err = tx.ListJobsByPipeline(ctx, id)
		return err
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp := pipelineInfoResponse{
		PipelineID: pl.ID,
		Packages:   pl.Packages,
		Archs:      pl.Archs,
		GitBranch:  pl.GitBranch,
		GitSHA:     pl.GitSHA,
		GitHubPR:   pl.GitHubPR,
		Jobs:       make([]pipelineInfoJob, 0, len(jobs)),
	}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, pipelineInfoJob{
			JobID:  job.ID,
			Arch:   job.Arch,
			Status: string(job.Status),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type pipelineListEntry struct {
	PipelineID int64  `json:"pipeline_id"`
	Packages   string `json:"packages"`
	Archs      string `json:"archs"`
	GitBranch  string `json:"git_branch"`
	GitSHA     string `json:"git_sha"`
	GitHubPR   *int64 `json:"github_pr,omitempty"`
}

type pipelineListResponse struct {
	Pipelines []pipelineListEntry `json:"pipelines"`
	Total     int64               `json:"total"`
}

// handlePipelineList paginates over pipelines in ascending id order (oldest
// first). items_per_page
// of -1 (or absent) returns every pipeline unpaged, matching
// store.Tx.ListPipelines's own convention.
func (a *API) handlePipelineList(w http.ResponseWriter, r *http.Request) {
	page := queryInt64(r, "page", 1)
	itemsPerPage := queryInt64(r, "items_per_page", -1)

	var pls []store.Pipeline
	var total int64
	err := a.Store.WithTx(r.Context(), func(ctx context.Context, tx *store.Tx) error {
		var err error
		pls, total, err = tx.ListPipelines(ctx, page, itemsPerPage)
		return err
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp := pipelineListResponse{Pipelines: make([]pipelineListEntry, 0, len(pls)), Total: total}
	for _, pl := range pls {
		resp.Pipelines = append(resp.Pipelines, pipelineListEntry{
			PipelineID: pl.ID,
			Packages:   pl.Packages,
			Archs:      pl.Archs,
			GitBranch:  pl.GitBranch,
			GitSHA:     pl.GitSHA,
			GitHubPR:   pl.GitHubPR,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt64(r *http.Request, key string, def int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
