package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/xerrors"
)

type jobRow struct {
	ID               int64         `db:"id"`
	PipelineID       int64         `db:"pipeline_id"`
	Arch             string        `db:"arch"`
	Packages         string        `db:"packages"`
	Status           string        `db:"status"`
	CreationTime     time.Time     `db:"creation_time"`
	AssignTime       sql.NullTime  `db:"assign_time"`
	FinishTime       sql.NullTime  `db:"finish_time"`
	AssignedWorkerID sql.NullInt64 `db:"assigned_worker_id"`
	BuiltByWorkerID  sql.NullInt64 `db:"built_by_worker_id"`

	RequireMinCore            sql.NullInt64   `db:"require_min_core"`
	RequireMinTotalMem        sql.NullInt64   `db:"require_min_total_mem"`
	RequireMinTotalMemPerCore sql.NullFloat64 `db:"require_min_total_mem_per_core"`
	RequireMinDisk            sql.NullInt64   `db:"require_min_disk"`

	GitHubCheckRunID sql.NullInt64 `db:"github_check_run_id"`

	BuildSuccess       sql.NullBool   `db:"build_success"`
	PushSuccess        sql.NullBool   `db:"push_success"`
	SuccessfulPackages sql.NullString `db:"successful_packages"`
	FailedPackage      sql.NullString `db:"failed_package"`
	SkippedPackages    sql.NullString `db:"skipped_packages"`
	LogURL             sql.NullString `db:"log_url"`
	ElapsedSecs        sql.NullInt64  `db:"elapsed_secs"`
	ErrorMessage       sql.NullString `db:"error_message"`
}

func (r jobRow) toJob() Job {
	j := Job{
		ID:           r.ID,
		PipelineID:   r.PipelineID,
		Arch:         r.Arch,
		Packages:     r.Packages,
		Status:       JobStatus(r.Status),
		CreationTime: r.CreationTime,
	}
	if r.AssignTime.Valid {
		j.AssignTime = &r.AssignTime.Time
	}
	if r.FinishTime.Valid {
		j.FinishTime = &r.FinishTime.Time
	}
	if r.AssignedWorkerID.Valid {
		j.AssignedWorkerID = &r.AssignedWorkerID.Int64
	}
	if r.BuiltByWorkerID.Valid {
		j.BuiltByWorkerID = &r.BuiltByWorkerID.Int64
	}
	if r.RequireMinCore.Valid {
		v := int32(r.RequireMinCore.Int64)
		j.RequireMinCore = &v
	}
	if r.RequireMinTotalMem.Valid {
		j.RequireMinTotalMem = &r.RequireMinTotalMem.Int64
	}
	if r.RequireMinTotalMemPerCore.Valid {
		v := float32(r.RequireMinTotalMemPerCore.Float64)
		j.RequireMinTotalMemPerCore = &v
	}
	if r.RequireMinDisk.Valid {
		j.RequireMinDisk = &r.RequireMinDisk.Int64
	}
	if r.GitHubCheckRunID.Valid {
		j.GitHubCheckRunID = &r.GitHubCheckRunID.Int64
	}
	if r.BuildSuccess.Valid {
		j.BuildSuccess = &r.BuildSuccess.Bool
	}
	if r.PushSuccess.Valid {
		j.PushSuccess = &r.PushSuccess.Bool
	}
	if r.SuccessfulPackages.Valid {
		j.SuccessfulPackages = &r.SuccessfulPackages.String
	}
	if r.FailedPackage.Valid {
		j.FailedPackage = &r.FailedPackage.String
	}
	if r.SkippedPackages.Valid {
		j.SkippedPackages = &r.SkippedPackages.String
	}
	if r.LogURL.Valid {
		j.LogURL = &r.LogURL.String
	}
	if r.ElapsedSecs.Valid {
		j.ElapsedSecs = &r.ElapsedSecs.Int64
	}
	if r.ErrorMessage.Valid {
		j.ErrorMessage = &r.ErrorMessage.String
	}
	return j
}

// InsertJob inserts one per-arch job belonging to pipeline p.
func (t *Tx) InsertJob(ctx context.Context, j Job) (Job, error) {
	var id int64
	var created time.Time
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO jobs (
			pipeline_id, arch, packages, status,
			require_min_core, require_min_total_mem, require_min_total_mem_per_core, require_min_disk,
			github_check_run_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, creation_time
	`, j.PipelineID, j.Arch, j.Packages, string(JobCreated),
		j.RequireMinCore, j.RequireMinTotalMem, j.RequireMinTotalMemPerCore, j.RequireMinDisk,
		j.GitHubCheckRunID).
		Scan(&id, &created)
	if err != nil {
		return Job{}, xerrors.Errorf("inserting job: %w", err)
	}
	j.ID = id
	j.CreationTime = created
	j.Status = JobCreated
	return j, nil
}

// GetJob loads a job by id.
func (t *Tx) GetJob(ctx context.Context, id int64) (Job, error) {
	var row jobRow
	if err := t.tx.GetContext(ctx, &row, `SELECT * FROM jobs WHERE id = $1`, id); err != nil {
		return Job{}, xerrors.Errorf("loading job %d: %w", id, err)
	}
	return row.toJob(), nil
}

// ListJobsByPipeline returns every job belonging to pipelineID, ordered by arch.
func (t *Tx) ListJobsByPipeline(ctx context.Context, pipelineID int64) ([]Job, error) {
	var rows []jobRow
	if err := t.tx.SelectContext(ctx, &rows, `SELECT * FROM jobs WHERE pipeline_id = $1 ORDER BY arch`, pipelineID); err != nil {
		return nil, xerrors.Errorf("listing jobs of pipeline %d: %w", pipelineID, err)
	}
	out := make([]Job, len(rows))
	for i, r := range rows {
		out[i] = r.toJob()
	}
	return out, nil
}

// FindSchedulableJob returns the oldest created job matching arch, with the
// noarch-routes-to-amd64 rule applied, and whose resource floors are all
// satisfied by the declared worker capacity. Callers must run this inside a
// WithTx so the subsequent assignment is atomic with the read.
func (t *Tx) FindSchedulableJob(ctx context.Context, arch string, cores int32, memBytes, freeDiskBytes int64) (Job, bool, error) {
	var archClause string
	var args []interface{}
	if arch == "amd64" {
		archClause = "(arch = $1 OR arch = 'noarch')"
		args = append(args, arch)
	} else {
		archClause = "arch = $1"
		args = append(args, arch)
	}

	memPerCore := float64(0)
	if cores > 0 {
		memPerCore = float64(memBytes) / float64(cores)
	}
	args = append(args, cores, memBytes, memPerCore, freeDiskBytes)

	query := `
		SELECT * FROM jobs
		WHERE status = '` + string(JobCreated) + `'
		  AND ` + archClause + `
		  AND (require_min_core IS NULL OR require_min_core <= $2)
		  AND (require_min_total_mem IS NULL OR require_min_total_mem <= $3)
		  AND (require_min_total_mem_per_core IS NULL OR require_min_total_mem_per_core <= $4)
		  AND (require_min_disk IS NULL OR require_min_disk <= $5)
		ORDER BY id
		LIMIT 1
	`
	var row jobRow
	err := t.tx.GetContext(ctx, &row, query, args...)
	if err == sql.ErrNoRows {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, xerrors.Errorf("finding schedulable job for arch %s: %w", arch, err)
	}
	return row.toJob(), true, nil
}

// ReleaseWorkerAssignments resets any job still assigned to workerID back to
// created, clearing its assignment. Mirrors the poll-time "remove if already
// allocated to the worker" step: a worker that lost and regained a job
// without ever reporting on it must not hold two assignments at once.
func (t *Tx) ReleaseWorkerAssignments(ctx context.Context, workerID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE jobs SET status = $1, assigned_worker_id = NULL, assign_time = NULL
		WHERE assigned_worker_id = $2 AND status != $3 AND status != $4 AND status != $5
	`, string(JobCreated), workerID, string(JobSuccess), string(JobFailed), string(JobError))
	if err != nil {
		return xerrors.Errorf("releasing assignments for worker %d: %w", workerID, err)
	}
	return nil
}

// AssignJob marks job as running and assigned to workerID.
func (t *Tx) AssignJob(ctx context.Context, jobID, workerID int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE jobs SET status = $1, assigned_worker_id = $2, assign_time = $3
		WHERE id = $4 AND status = $5
	`, string(JobRunning), workerID, now(), jobID, string(JobCreated))
	if err != nil {
		return xerrors.Errorf("assigning job %d to worker %d: %w", jobID, workerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return xerrors.Errorf("checking assignment of job %d: %w", jobID, err)
	}
	if n == 0 {
		return xerrors.Errorf("job %d was no longer schedulable", jobID)
	}
	return nil
}

// JobOutcome carries the terminal fields a worker reports for a completed job.
type JobOutcome struct {
	BuildSuccess       bool
	PushSuccess        bool
	SuccessfulPackages []string
	FailedPackage      string
	SkippedPackages    []string
	LogURL             string
	ElapsedSecs        int64
}

// SetJobOutcome writes a terminal success/failed outcome for jobID, built by
// builtByWorkerID, clearing its assignment. status is JobSuccess when both
// BuildSuccess and PushSuccess are true, otherwise JobFailed.
func (t *Tx) SetJobOutcome(ctx context.Context, jobID, builtByWorkerID int64, o JobOutcome) error {
	status := JobFailed
	if o.BuildSuccess && o.PushSuccess {
		status = JobSuccess
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE jobs SET
			status = $1,
			build_success = $2,
			push_success = $3,
			successful_packages = $4,
			failed_package = $5,
			skipped_packages = $6,
			log_url = $7,
			elapsed_secs = $8,
			finish_time = $9,
			assigned_worker_id = NULL,
			built_by_worker_id = $10
		WHERE id = $11
	`, string(status), o.BuildSuccess, o.PushSuccess,
		joinNonEmpty(o.SuccessfulPackages, ","), nullIfEmpty(o.FailedPackage), joinNonEmpty(o.SkippedPackages, ","),
		o.LogURL, o.ElapsedSecs, now(), builtByWorkerID, jobID)
	if err != nil {
		return xerrors.Errorf("recording outcome of job %d: %w", jobID, err)
	}
	return nil
}

// SetJobError records that a job could not be built at all (worker-side
// crash or infrastructure failure, distinct from a build/push failure).
func (t *Tx) SetJobError(ctx context.Context, jobID, builtByWorkerID int64, message string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE jobs SET
			status = $1,
			error_message = $2,
			finish_time = $3,
			assigned_worker_id = NULL,
			built_by_worker_id = $4
		WHERE id = $5
	`, string(JobError), message, now(), builtByWorkerID, jobID)
	if err != nil {
		return xerrors.Errorf("recording error of job %d: %w", jobID, err)
	}
	return nil
}

// RecycleStaleAssignments resets jobs still running whose assigned worker's
// last heartbeat is older than deadline, returning the ids recycled.
func (t *Tx) RecycleStaleAssignments(ctx context.Context, deadline time.Time) ([]int64, error) {
	var ids []int64
	err := t.tx.SelectContext(ctx, &ids, `
		SELECT jobs.id FROM jobs
		JOIN workers ON workers.id = jobs.assigned_worker_id
		WHERE jobs.status = $1 AND workers.last_heartbeat_time < $2
	`, string(JobRunning), deadline)
	if err != nil {
		return nil, xerrors.Errorf("finding stale assignments: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`UPDATE jobs SET status = '`+string(JobCreated)+`', assigned_worker_id = NULL, assign_time = NULL WHERE id IN (?)`, ids)
	if err != nil {
		return nil, xerrors.Errorf("building recycle query: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...); err != nil {
		return nil, xerrors.Errorf("recycling stale assignments: %w", err)
	}
	return ids, nil
}

// StatusCount is one (arch, status) bucket of the dashboard tally.
type StatusCount struct {
	Arch   string `db:"arch"`
	Status string `db:"status"`
	Count  int64  `db:"count"`
}

// JobStatusCounts groups every job by (arch, status), backing the
// dashboard's per-arch aggregate counters.
func (t *Tx) JobStatusCounts(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	err := t.tx.SelectContext(ctx, &counts, `
		SELECT arch, status, count(*) AS count
		FROM jobs
		GROUP BY arch, status
	`)
	if err != nil {
		return nil, xerrors.Errorf("counting jobs by status: %w", err)
	}
	return counts, nil
}

func joinNonEmpty(items []string, sep string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += sep
		}
		out += s
	}
	return out
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
