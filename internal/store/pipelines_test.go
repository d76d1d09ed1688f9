package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestInsertPipelineReturnsAssignedID(t *testing.T) {
	s, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "creation_time"}).AddRow(int64(7), time.Unix(1000, 0))
	mock.ExpectQuery(`INSERT INTO pipelines`).WillReturnRows(rows)
	mock.ExpectCommit()

	var got Pipeline
	err := s.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		got, err = tx.InsertPipeline(ctx, Pipeline{
			Packages:  "gcc,binutils",
			Archs:     "amd64,arm64",
			GitBranch: "stable",
			GitSHA:    "deadbeef",
			Source:    SourceManual,
		})
		return err
	})

	require.NoError(t, err)
	require.Equal(t, int64(7), got.ID)
	require.Equal(t, []string{"gcc", "binutils"}, got.PackageList())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPipelinesUnpagedEscapeHatch(t *testing.T) {
	s, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM pipelines`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	rows := sqlmock.NewRows([]string{
		"id", "packages", "archs", "git_branch", "git_sha", "creation_time",
		"source", "github_pr", "chat_id", "creator_user_id",
	}).
		AddRow(1, "a", "amd64", "stable", "sha1", time.Unix(1, 0), "manual", nil, nil, nil).
		AddRow(2, "b", "arm64", "stable", "sha2", time.Unix(2, 0), "manual", nil, nil, nil)
	mock.ExpectQuery(`SELECT \* FROM pipelines ORDER BY id`).WillReturnRows(rows)
	mock.ExpectCommit()

	var got []Pipeline
	var total int64
	err := s.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		got, total, err = tx.ListPipelines(ctx, 1, -1)
		return err
	})

	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, got, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPipelineRollsBackOnNotFound(t *testing.T) {
	s, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM pipelines WHERE id = \$1`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		_, err := tx.GetPipeline(ctx, 404)
		return err
	})

	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
