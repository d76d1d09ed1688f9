// Package registry tracks worker liveness: heartbeat ingestion and the
// fleet_status listing, including the live/dead classification derived from
// how long ago each worker last heartbeat.
package registry

import (
	"context"
	"time"

	"github.com/buildit-project/buildit/internal/store"
)

// Registry records and reports worker liveness.
type Registry struct {
	Store *store.Store
	// LiveWindow is how recent a heartbeat must be for a worker to be
	// reported live; workers older than this are not pruned, only flagged.
	LiveWindow time.Duration
}

// Heartbeat describes a liveness report from a worker process.
type Heartbeat struct {
	Hostname      string
	Arch          string
	MemoryBytes   int64
	LogicalCores  int32
	FreeDiskBytes int64
	Performance   *int64
	InternetOK    *bool
}

// Record upserts the worker identified by (Hostname, Arch).
func (r *Registry) Record(ctx context.Context, hb Heartbeat) (store.Worker, error) {
	var w store.Worker
	err := r.Store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		var err error
		w, err = tx.UpsertHeartbeat(ctx, store.Worker{
			Hostname:          hb.Hostname,
			Arch:              hb.Arch,
			MemoryBytes:       hb.MemoryBytes,
			LogicalCores:      hb.LogicalCores,
			FreeDiskBytes:     hb.FreeDiskBytes,
			Performance:       hb.Performance,
			InternetReachable: hb.InternetOK,
		})
		return err
	})
	return w, err
}

// WorkerStatus is one row of a fleet status listing, carrying the derived
// liveness flag alongside the stored worker fields.
type WorkerStatus struct {
	store.Worker
	Live bool
}

// FleetStatus returns a page of workers (itemsPerPage == -1 for all) along
// with the total count, each annotated with its current liveness.
func (r *Registry) FleetStatus(ctx context.Context, page, itemsPerPage int64) ([]WorkerStatus, int64, error) {
	var workers []store.Worker
	var total int64
	err := r.Store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		var err error
		workers, total, err = tx.ListWorkers(ctx, page, itemsPerPage)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	now := time.Now()
	out := make([]WorkerStatus, len(workers))
	for i, w := range workers {
		out[i] = WorkerStatus{Worker: w, Live: w.Live(now, r.LiveWindow)}
	}
	return out, total, nil
}

// WorkerDetail reports a single worker's current job and lifetime build
// count, grounded on the original worker_info endpoint.
type WorkerDetail struct {
	Worker        store.Worker
	RunningJobID  *int64
	BuiltJobCount int64
}

// Detail loads one worker by id along with its current job and build count.
func (r *Registry) Detail(ctx context.Context, workerID int64) (WorkerDetail, error) {
	var d WorkerDetail
	err := r.Store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		w, err := tx.GetWorker(ctx, workerID)
		if err != nil {
			return err
		}
		d.Worker = w

		job, found, err := tx.RunningJobForWorker(ctx, workerID)
		if err != nil {
			return err
		}
		if found {
			d.RunningJobID = &job.ID
		}

		count, err := tx.BuiltJobCount(ctx, workerID)
		if err != nil {
			return err
		}
		d.BuiltJobCount = count
		return nil
	})
	return d, err
}
