package store

import (
	"context"
	"database/sql"
	"time"

	"golang.org/x/xerrors"
)

type workerRow struct {
	ID                   int64         `db:"id"`
	Hostname             string        `db:"hostname"`
	Arch                 string        `db:"arch"`
	LastHeartbeatTime    time.Time     `db:"last_heartbeat_time"`
	MemoryBytes          int64         `db:"memory_bytes"`
	LogicalCores         int32         `db:"logical_cores"`
	DiskFreeSpaceBytes   int64         `db:"disk_free_space_bytes"`
	Performance          sql.NullInt64 `db:"performance"`
	InternetConnectivity sql.NullBool  `db:"internet_connectivity"`
	Visible              bool          `db:"visible"`
}

func (r workerRow) toWorker() Worker {
	w := Worker{
		ID:            r.ID,
		Hostname:      r.Hostname,
		Arch:          r.Arch,
		LastHeartbeat: r.LastHeartbeatTime,
		MemoryBytes:   r.MemoryBytes,
		LogicalCores:  r.LogicalCores,
		FreeDiskBytes: r.DiskFreeSpaceBytes,
		Visible:       r.Visible,
	}
	if r.Performance.Valid {
		w.Performance = &r.Performance.Int64
	}
	if r.InternetConnectivity.Valid {
		w.InternetReachable = &r.InternetConnectivity.Bool
	}
	return w
}

// GetWorkerByHostnameArch loads the worker identified by its natural key.
func (t *Tx) GetWorkerByHostnameArch(ctx context.Context, hostname, arch string) (Worker, error) {
	var row workerRow
	err := t.tx.GetContext(ctx, &row, `SELECT * FROM workers WHERE hostname = $1 AND arch = $2`, hostname, arch)
	if err != nil {
		return Worker{}, xerrors.Errorf("loading worker %s/%s: %w", hostname, arch, err)
	}
	return row.toWorker(), nil
}

// GetWorker loads a worker by id.
func (t *Tx) GetWorker(ctx context.Context, id int64) (Worker, error) {
	var row workerRow
	if err := t.tx.GetContext(ctx, &row, `SELECT * FROM workers WHERE id = $1`, id); err != nil {
		return Worker{}, xerrors.Errorf("loading worker %d: %w", id, err)
	}
	return row.toWorker(), nil
}

// UpsertHeartbeat records a liveness report from (hostname, arch), inserting
// a new worker row the first time that pair is seen and updating resource
// figures and last_heartbeat_time on every later call.
func (t *Tx) UpsertHeartbeat(ctx context.Context, w Worker) (Worker, error) {
	existing, err := t.GetWorkerByHostnameArch(ctx, w.Hostname, w.Arch)
	switch {
	case err == nil:
		_, updErr := t.tx.ExecContext(ctx, `
			UPDATE workers SET
				memory_bytes = $1,
				logical_cores = $2,
				disk_free_space_bytes = $3,
				performance = $4,
				internet_connectivity = $5,
				last_heartbeat_time = $6
			WHERE id = $7
		`, w.MemoryBytes, w.LogicalCores, w.FreeDiskBytes, w.Performance, w.InternetReachable, now(), existing.ID)
		if updErr != nil {
			return Worker{}, xerrors.Errorf("updating worker %s/%s: %w", w.Hostname, w.Arch, updErr)
		}
		existing.MemoryBytes = w.MemoryBytes
		existing.LogicalCores = w.LogicalCores
		existing.FreeDiskBytes = w.FreeDiskBytes
		existing.Performance = w.Performance
		existing.InternetReachable = w.InternetReachable
		existing.LastHeartbeat = now()
		return existing, nil
	case isNoRows(err):
		var id int64
		var hb time.Time
		insErr := t.tx.QueryRowxContext(ctx, `
			INSERT INTO workers (hostname, arch, memory_bytes, logical_cores, disk_free_space_bytes, performance, internet_connectivity, last_heartbeat_time, visible)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true)
			RETURNING id, last_heartbeat_time
		`, w.Hostname, w.Arch, w.MemoryBytes, w.LogicalCores, w.FreeDiskBytes, w.Performance, w.InternetReachable, now()).
			Scan(&id, &hb)
		if insErr != nil {
			return Worker{}, xerrors.Errorf("inserting worker %s/%s: %w", w.Hostname, w.Arch, insErr)
		}
		w.ID = id
		w.LastHeartbeat = hb
		w.Visible = true
		return w, nil
	default:
		return Worker{}, xerrors.Errorf("looking up worker %s/%s: %w", w.Hostname, w.Arch, err)
	}
}

// isNoRows works around GetContext wrapping the underlying driver error.
func isNoRows(err error) bool {
	return err != nil && xerrors.Is(err, sql.ErrNoRows)
}

// ListWorkers returns a page of workers ordered by arch, and the total row
// count. itemsPerPage == -1 returns every row unpaged.
func (t *Tx) ListWorkers(ctx context.Context, page, itemsPerPage int64) ([]Worker, int64, error) {
	var total int64
	if err := t.tx.GetContext(ctx, &total, `SELECT count(*) FROM workers`); err != nil {
		return nil, 0, xerrors.Errorf("counting workers: %w", err)
	}

	var rows []workerRow
	var err error
	if itemsPerPage == -1 {
		err = t.tx.SelectContext(ctx, &rows, `SELECT * FROM workers ORDER BY arch`)
	} else {
		offset := (page - 1) * itemsPerPage
		err = t.tx.SelectContext(ctx, &rows, `SELECT * FROM workers ORDER BY arch OFFSET $1 LIMIT $2`, offset, itemsPerPage)
	}
	if err != nil {
		return nil, 0, xerrors.Errorf("listing workers: %w", err)
	}

	out := make([]Worker, len(rows))
	for i, r := range rows {
		out[i] = r.toWorker()
	}
	return out, total, nil
}

// RunningJobForWorker returns the job currently assigned to workerID, if any.
func (t *Tx) RunningJobForWorker(ctx context.Context, workerID int64) (Job, bool, error) {
	var row jobRow
	err := t.tx.GetContext(ctx, &row, `SELECT * FROM jobs WHERE assigned_worker_id = $1 AND status = $2`, workerID, string(JobRunning))
	if isNoRows(err) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, xerrors.Errorf("loading running job for worker %d: %w", workerID, err)
	}
	return row.toJob(), true, nil
}

// BuiltJobCount returns how many jobs workerID has completed, successfully
// or not.
func (t *Tx) BuiltJobCount(ctx context.Context, workerID int64) (int64, error) {
	var n int64
	if err := t.tx.GetContext(ctx, &n, `SELECT count(*) FROM jobs WHERE built_by_worker_id = $1`, workerID); err != nil {
		return 0, xerrors.Errorf("counting jobs built by worker %d: %w", workerID, err)
	}
	return n, nil
}
