package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/buildit-project/buildit/internal/bierr"
	"github.com/buildit-project/buildit/internal/store"
)

func newTestIngest(t *testing.T) (*Ingest, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Ingest{Store: store.NewWithDB(db)}, mock
}

func workerCols() []string {
	return []string{
		"id", "hostname", "arch", "last_heartbeat_time", "memory_bytes",
		"logical_cores", "disk_free_space_bytes", "performance", "internet_connectivity", "visible",
	}
}

func jobCols() []string {
	return []string{
		"id", "pipeline_id", "arch", "packages", "status", "creation_time",
		"assign_time", "finish_time", "assigned_worker_id", "built_by_worker_id",
		"require_min_core", "require_min_total_mem", "require_min_total_mem_per_core", "require_min_disk",
		"github_check_run_id", "build_success", "push_success", "successful_packages",
		"failed_package", "skipped_packages", "log_url", "elapsed_secs", "error_message",
	}
}

func pipelineCols() []string {
	return []string{
		"id", "packages", "archs", "git_branch", "git_sha", "creation_time",
		"source", "github_pr", "chat_id", "creator_user_id",
	}
}

type fakePropagator struct {
	calls int
}

func (f *fakePropagator) Propagate(ctx context.Context, pipeline store.Pipeline, job store.Job, hostname string) {
	f.calls++
}

func TestRecordWritesOutcomeAndPropagates(t *testing.T) {
	in, mock := newTestIngest(t)
	prop := &fakePropagator{}
	in.Propagator = prop
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM workers`).
		WillReturnRows(sqlmock.NewRows(workerCols()).
			AddRow(7, "w1", "amd64", time.Unix(1, 0), 32<<30, 16, 200<<30, nil, nil, true))
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(jobCols()).
			AddRow(5, 2, "amd64", "gcc", "running", time.Unix(2, 0),
				time.Unix(3, 0), nil, 7, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil))
	mock.ExpectQuery(`SELECT \* FROM pipelines WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(pipelineCols()).
			AddRow(2, "gcc", "amd64", "stable", "deadbeef", time.Unix(3, 0), "manual", nil, nil, nil))
	mock.ExpectExec(`UPDATE jobs SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job, pipeline, err := in.Record(ctx, Report{
		JobID:    5,
		Hostname: "w1",
		Arch:     "amd64",
		Outcome: &store.JobOutcome{
			BuildSuccess:       true,
			PushSuccess:        true,
			SuccessfulPackages: []string{"gcc"},
			ElapsedSecs:        120,
		},
	})

	require.NoError(t, err)
	require.Equal(t, store.JobSuccess, job.Status)
	require.Equal(t, "deadbeef", pipeline.GitSHA)
	require.Equal(t, 1, prop.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRejectsMismatchedWorker(t *testing.T) {
	in, mock := newTestIngest(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM workers`).
		WillReturnRows(sqlmock.NewRows(workerCols()).
			AddRow(9, "impostor", "amd64", time.Unix(1, 0), 32<<30, 16, 200<<30, nil, nil, true))
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(jobCols()).
			AddRow(5, 2, "amd64", "gcc", "running", time.Unix(2, 0),
				time.Unix(3, 0), nil, 7, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil))
	mock.ExpectRollback()

	_, _, err := in.Record(ctx, Report{
		JobID:    5,
		Hostname: "impostor",
		Arch:     "amd64",
		Outcome:  &store.JobOutcome{BuildSuccess: true, PushSuccess: true},
	})

	require.Error(t, err)
	require.Equal(t, bierr.Conflict, bierr.CategoryOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordWritesErrorOutcome(t *testing.T) {
	in, mock := newTestIngest(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM workers`).
		WillReturnRows(sqlmock.NewRows(workerCols()).
			AddRow(7, "w1", "riscv64", time.Unix(1, 0), 8<<30, 4, 50<<30, nil, nil, true))
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(jobCols()).
			AddRow(5, 2, "riscv64", "gcc", "running", time.Unix(2, 0),
				time.Unix(3, 0), nil, 7, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil))
	mock.ExpectQuery(`SELECT \* FROM pipelines WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(pipelineCols()).
			AddRow(2, "gcc", "riscv64", "stable", "deadbeef", time.Unix(3, 0), "manual", nil, nil, nil))
	mock.ExpectExec(`UPDATE jobs SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job, _, err := in.Record(ctx, Report{
		JobID:    5,
		Hostname: "w1",
		Arch:     "riscv64",
		ErrorMsg: "qemu crashed",
	})

	require.NoError(t, err)
	require.Equal(t, store.JobError, job.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
