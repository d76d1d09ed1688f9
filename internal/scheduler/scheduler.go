// Package scheduler implements the worker poll operation: given a worker's
// declared identity and resource capacity, find the oldest schedulable job
// for its architecture (routing noarch to amd64), release any job the
// worker previously held without reporting on, and assign the new one.
package scheduler

import (
	"context"

	"github.com/buildit-project/buildit/internal/bierr"
	"github.com/buildit-project/buildit/internal/store"
)

// Scheduler assigns jobs to polling workers.
type Scheduler struct {
	Store *store.Store
}

// PollRequest describes a worker's poll call, grounded on
// WorkerPollRequest in the original coordinator.
type PollRequest struct {
	Hostname      string
	Arch          string
	LogicalCores  int32
	MemoryBytes   int64
	FreeDiskBytes int64
}

// Offer is the job (and owning pipeline) handed back to a worker that
// polled successfully.
type Offer struct {
	Job      store.Job
	Pipeline store.Pipeline
}

// Poll finds and assigns a schedulable job to the worker named by req,
// returning ok == false when no job currently matches. The worker's prior
// assignment, if it never reported back, is released first so it never
// holds two jobs at once.
func (s *Scheduler) Poll(ctx context.Context, req PollRequest) (Offer, bool, error) {
	var offer Offer
	var ok bool
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		worker, err := tx.GetWorkerByHostnameArch(ctx, req.Hostname, req.Arch)
		if err != nil {
			return bierr.Errorf(bierr.InputInvalid, "worker %s/%s must heartbeat before polling: %w", req.Hostname, req.Arch, err)
		}

		if err := tx.ReleaseWorkerAssignments(ctx, worker.ID); err != nil {
			return err
		}

		job, found, err := tx.FindSchedulableJob(ctx, req.Arch, req.LogicalCores, req.MemoryBytes, req.FreeDiskBytes)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}

		if err := tx.AssignJob(ctx, job.ID, worker.ID); err != nil {
			return err
		}
		job.Status = store.JobRunning
		job.AssignedWorkerID = &worker.ID

		pipeline, err := tx.GetPipeline(ctx, job.PipelineID)
		if err != nil {
			return err
		}

		offer = Offer{Job: job, Pipeline: pipeline}
		ok = true
		return nil
	})
	if err != nil {
		if bierr.CategoryOf(err) == bierr.Internal {
			err = bierr.Errorf(bierr.Storage, "polling for %s/%s: %w", req.Hostname, req.Arch, err)
		}
		return Offer{}, false, err
	}
	return offer, ok, nil
}
