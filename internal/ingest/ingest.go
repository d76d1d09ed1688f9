// Package ingest implements the worker job-update report: a worker tells
// the coordinator a job finished (successfully, with a build/push failure,
// or with an infrastructure error), the outcome is written transactionally,
// and the result is handed off to propagation.
package ingest

import (
	"context"

	"github.com/buildit-project/buildit/internal/bierr"
	"github.com/buildit-project/buildit/internal/metrics"
	"github.com/buildit-project/buildit/internal/store"
)

// Propagator is implemented by internal/propagate; ingest hands off a
// completed job so its result can be posted to chat/PR/check-run surfaces.
// Kept as a narrow interface so ingest's tests don't need a real propagator.
type Propagator interface {
	Propagate(ctx context.Context, pipeline store.Pipeline, job store.Job, hostname string)
}

// Ingest writes worker-reported job outcomes.
type Ingest struct {
	Store      *store.Store
	Propagator Propagator

	// Metrics is optional; nil disables counter updates.
	Metrics *metrics.Metrics
}

// Report describes a worker's job-update call.
type Report struct {
	JobID    int64
	Hostname string
	Arch     string
	Outcome  *store.JobOutcome // nil means the job errored rather than completed
	ErrorMsg string
}

// Record validates that hostname/arch is actually assigned to req.JobID,
// writes the reported outcome, and triggers propagation. Returns the
// updated job and its pipeline.
func (in *Ingest) Record(ctx context.Context, req Report) (store.Job, store.Pipeline, error) {
	var job store.Job
	var pipeline store.Pipeline

	err := in.Store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		worker, err := tx.GetWorkerByHostnameArch(ctx, req.Hostname, req.Arch)
		if err != nil {
			return bierr.Errorf(bierr.InputInvalid, "unknown worker %s/%s: %w", req.Hostname, req.Arch, err)
		}

		job, err = tx.GetJob(ctx, req.JobID)
		if err != nil {
			return bierr.Errorf(bierr.InputInvalid, "unknown job %d: %w", req.JobID, err)
		}
		if job.Status != store.JobRunning || job.AssignedWorkerID == nil || *job.AssignedWorkerID != worker.ID {
			return bierr.Errorf(bierr.Conflict, "worker %s/%s is not assigned to job %d", req.Hostname, req.Arch, req.JobID)
		}

		pipeline, err = tx.GetPipeline(ctx, job.PipelineID)
		if err != nil {
			return err
		}

		if req.Outcome != nil {
			if err := tx.SetJobOutcome(ctx, job.ID, worker.ID, *req.Outcome); err != nil {
				return err
			}
			if req.Outcome.BuildSuccess && req.Outcome.PushSuccess {
				job.Status = store.JobSuccess
			} else {
				job.Status = store.JobFailed
			}
		} else {
			if err := tx.SetJobError(ctx, job.ID, worker.ID, req.ErrorMsg); err != nil {
				return err
			}
			job.Status = store.JobError
		}
		return nil
	})
	if err != nil {
		if bierr.CategoryOf(err) == bierr.Internal {
			err = bierr.Errorf(bierr.Storage, "recording report for job %d: %w", req.JobID, err)
		}
		return store.Job{}, store.Pipeline{}, err
	}

	in.Metrics.JobOutcome(job.Arch, string(job.Status))

	if in.Propagator != nil {
		in.Propagator.Propagate(ctx, pipeline, job, req.Hostname)
	}
	return job, pipeline, nil
}
