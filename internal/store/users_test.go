package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func userRows() []string {
	return []string{"id", "github_login", "github_id", "github_name", "github_avatar_url", "github_email", "chat_id"}
}

func TestUpsertGitHubUserInsertsWhenUnseen(t *testing.T) {
	s, mock := newTestStore(t)
	ctx := context.Background()
	login := "octocat"
	githubID := int64(42)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM users WHERE github_id = \$1`).WillReturnRows(sqlmock.NewRows(userRows()))
	mock.ExpectQuery(`INSERT INTO users`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectCommit()

	var got User
	err := s.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		got, err = tx.UpsertGitHubUser(ctx, User{GitHubLogin: &login, GitHubID: &githubID})
		return err
	})

	require.NoError(t, err)
	require.Equal(t, int64(5), got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertChatUserFindsExisting(t *testing.T) {
	s, mock := newTestStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM users WHERE chat_id = \$1`).
		WillReturnRows(sqlmock.NewRows(userRows()).AddRow(9, nil, nil, nil, nil, nil, 555))
	mock.ExpectCommit()

	var got User
	err := s.WithTx(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		got, err = tx.UpsertChatUser(ctx, 555)
		return err
	})

	require.NoError(t, err)
	require.Equal(t, int64(9), got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
