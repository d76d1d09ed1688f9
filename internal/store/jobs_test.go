package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestFindSchedulableJobRoutesNoarchToAmd64(t *testing.T) {
	s, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{
		"id", "pipeline_id", "arch", "packages", "status", "creation_time",
		"assign_time", "finish_time", "assigned_worker_id", "built_by_worker_id",
		"require_min_core", "require_min_total_mem", "require_min_total_mem_per_core", "require_min_disk",
		"github_check_run_id", "build_success", "push_success", "successful_packages",
		"failed_package", "skipped_packages", "log_url", "elapsed_secs", "error_message",
	}).AddRow(
		1, 10, "noarch", "fonts-noto", "created", time.Unix(1, 0),
		nil, nil, nil, nil,
		nil, nil, nil, nil,
		nil, nil, nil, nil,
		nil, nil, nil, nil, nil,
	)
	mock.ExpectQuery(`SELECT \* FROM jobs`).WillReturnRows(rows)
	mock.ExpectCommit()

	var got Job
	var ok bool
	err := s.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		got, ok, err = tx.FindSchedulableJob(ctx, "amd64", 8, 16<<30, 100<<30)
		return err
	})

	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "noarch", got.Arch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindSchedulableJobNoneAvailable(t *testing.T) {
	s, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM jobs`).WillReturnRows(sqlmock.NewRows([]string{
		"id", "pipeline_id", "arch", "packages", "status", "creation_time",
		"assign_time", "finish_time", "assigned_worker_id", "built_by_worker_id",
		"require_min_core", "require_min_total_mem", "require_min_total_mem_per_core", "require_min_disk",
		"github_check_run_id", "build_success", "push_success", "successful_packages",
		"failed_package", "skipped_packages", "log_url", "elapsed_secs", "error_message",
	}))
	mock.ExpectCommit()

	var ok bool
	err := s.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		_, ok, err = tx.FindSchedulableJob(ctx, "riscv64", 4, 8<<30, 50<<30)
		return err
	})

	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignJobFailsWhenNoLongerSchedulable(t *testing.T) {
	s, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE jobs SET status`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.AssignJob(ctx, 1, 2)
	})

	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetJobOutcomeSuccess(t *testing.T) {
	s, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE jobs SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.SetJobOutcome(ctx, 1, 9, JobOutcome{
			BuildSuccess:       true,
			PushSuccess:        true,
			SuccessfulPackages: []string{"gcc", "binutils"},
			ElapsedSecs:        120,
		})
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecycleStaleAssignmentsNoopWhenNoneStale(t *testing.T) {
	s, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT jobs.id FROM jobs`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	var ids []int64
	err := s.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		ids, err = tx.RecycleStaleAssignments(ctx, time.Unix(0, 0))
		return err
	})

	require.NoError(t, err)
	require.Empty(t, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
