// Package pipeline creates pipelines and their per-arch jobs: resolving a
// branch (or pull request) to a git commit, validating and expanding the
// requested architectures, and inserting the pipeline/job rows in one
// transaction.
package pipeline

import (
	"context"
	"strings"

	"github.com/buildit-project/buildit/internal/archset"
	"github.com/buildit-project/buildit/internal/bierr"
	"github.com/buildit-project/buildit/internal/metrics"
	"github.com/buildit-project/buildit/internal/store"
)

// TreeUpdater fetches/checks out a branch in the local package tree and
// resolves it to a commit hash, kept behind a narrow interface so tests
// never need a real checkout; the production implementation shells out to
// git.
type TreeUpdater interface {
	UpdateBranch(ctx context.Context, branch string) (sha string, err error)
}

// Factory creates pipelines.
type Factory struct {
	Store *store.Store
	Tree  TreeUpdater

	// Metrics is optional; nil disables counter updates.
	Metrics *metrics.Metrics
}

// NewRequest describes a pipeline to create from an explicit branch name
// (the chat /build path, or a manual API call).
type NewRequest struct {
	GitBranch     string
	Packages      []string
	Archs         []string
	Source        store.Source
	GitHubPR      *int64
	ChatID        *int64
	CreatorUserID *int64
}

// Create resolves req.GitBranch to a commit, validates and expands req.Archs,
// and inserts one pipeline row plus one job row per resulting arch.
func (f *Factory) Create(ctx context.Context, req NewRequest) (store.Pipeline, []store.Job, error) {
	if len(req.Packages) == 0 {
		return store.Pipeline{}, nil, bierr.Errorf(bierr.InputInvalid, "pipeline has no packages to build")
	}

	expanded := archset.Expand(req.Archs)
	if len(expanded) == 0 {
		return store.Pipeline{}, nil, bierr.Errorf(bierr.InputInvalid, "pipeline has no architectures to build")
	}
	if unknown := archset.Unknown(expanded); len(unknown) > 0 {
		return store.Pipeline{}, nil, bierr.Errorf(bierr.InputInvalid, "unknown architecture(s): %s", strings.Join(unknown, ", "))
	}

	sha, err := f.Tree.UpdateBranch(ctx, req.GitBranch)
	if err != nil {
		return store.Pipeline{}, nil, bierr.Errorf(bierr.Upstream, "resolving branch %s: %w", req.GitBranch, err)
	}

	return f.insert(ctx, req, expanded, sha)
}

// PRRequest describes a pipeline to create from a pull request whose head
// branch and commit are already known (resolved through the hosting
// provider's API, not the local tree, since the worker itself fetches the
// PR's branch directly during its build).
type PRRequest struct {
	GitHubPR  int64
	GitBranch string
	GitSHA    string
	Packages  []string
	Archs     []string
}

// CreateFromPR inserts a pipeline for a pull request, bypassing
// TreeUpdater since GitBranch/GitSHA are already resolved.
func (f *Factory) CreateFromPR(ctx context.Context, req PRRequest) (store.Pipeline, []store.Job, error) {
	if len(req.Packages) == 0 {
		return store.Pipeline{}, nil, bierr.Errorf(bierr.InputInvalid, "pipeline has no packages to build")
	}

	expanded := archset.Expand(req.Archs)
	if len(expanded) == 0 {
		return store.Pipeline{}, nil, bierr.Errorf(bierr.InputInvalid, "pipeline has no architectures to build")
	}
	if unknown := archset.Unknown(expanded); len(unknown) > 0 {
		return store.Pipeline{}, nil, bierr.Errorf(bierr.InputInvalid, "unknown architecture(s): %s", strings.Join(unknown, ", "))
	}

	pr := req.GitHubPR
	return f.insert(ctx, NewRequest{
		GitBranch: req.GitBranch,
		Packages:  req.Packages,
		Archs:     req.Archs,
		Source:    store.SourcePRWebhook,
		GitHubPR:  &pr,
	}, expanded, req.GitSHA)
}

func (f *Factory) insert(ctx context.Context, req NewRequest, expanded []string, sha string) (store.Pipeline, []store.Job, error) {
	var pipeline store.Pipeline
	var jobs []store.Job
	err := f.Store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		var err error
		pipeline, err = tx.InsertPipeline(ctx, store.Pipeline{
			Packages:      strings.Join(req.Packages, ","),
			Archs:         strings.Join(expanded, ","),
			GitBranch:     req.GitBranch,
			GitSHA:        sha,
			Source:        req.Source,
			GitHubPR:      req.GitHubPR,
			ChatID:        req.ChatID,
			CreatorUserID: req.CreatorUserID,
		})
		if err != nil {
			return err
		}

		jobs = make([]store.Job, 0, len(expanded))
		for _, arch := range expanded {
			job, err := tx.InsertJob(ctx, store.Job{
				PipelineID: pipeline.ID,
				Arch:       arch,
				Packages:   pipeline.Packages,
			})
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return nil
	})
	if err != nil {
		return store.Pipeline{}, nil, bierr.Errorf(bierr.Storage, "creating pipeline: %w", err)
	}
	f.Metrics.PipelineCreated(string(pipeline.Source))
	return pipeline, jobs, nil
}

const builditMarkerPrefix = "#buildit"

// ParsePackageMarker scans a pull request body for the first line starting
// with "#buildit" and returns the whitespace-separated tokens following the
// marker as the package list. Returns nil if no marker line is present.
func ParsePackageMarker(body string) []string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, builditMarkerPrefix) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) <= 1 {
			return nil
		}
		return fields[1:]
	}
	return nil
}
