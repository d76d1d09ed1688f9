package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/buildit-project/buildit/internal/bierr"
	"github.com/buildit-project/buildit/internal/store"
)

type fakeTree struct {
	sha string
	err error
}

func (f fakeTree) UpdateBranch(ctx context.Context, branch string) (string, error) {
	return f.sha, f.err
}

func newTestFactory(t *testing.T) (*Factory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Factory{Store: store.NewWithDB(db), Tree: fakeTree{sha: "cafef00d"}}, mock
}

func TestCreateExpandsMainlineAndInsertsOneJobPerArch(t *testing.T) {
	f, mock := newTestFactory(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO pipelines`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "creation_time"}).AddRow(int64(1), time.Unix(1700000000, 0)))
	for i := 0; i < 7; i++ {
		mock.ExpectQuery(`INSERT INTO jobs`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "creation_time"}).AddRow(int64(100+i), time.Unix(1700000000, 0)))
	}
	mock.ExpectCommit()

	pl, jobs, err := f.Create(ctx, NewRequest{
		GitBranch: "stable",
		Packages:  []string{"gcc"},
		Archs:     []string{"mainline"},
		Source:    store.SourceManual,
	})

	require.NoError(t, err)
	require.Equal(t, "cafef00d", pl.GitSHA)
	require.Len(t, jobs, 7)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRejectsUnknownArch(t *testing.T) {
	f, _ := newTestFactory(t)
	_, _, err := f.Create(context.Background(), NewRequest{
		GitBranch: "stable",
		Packages:  []string{"gcc"},
		Archs:     []string{"sparc64"},
		Source:    store.SourceManual,
	})
	require.Error(t, err)
	require.Equal(t, bierr.InputInvalid, bierr.CategoryOf(err))
}

func TestCreateRejectsEmptyPackages(t *testing.T) {
	f, _ := newTestFactory(t)
	_, _, err := f.Create(context.Background(), NewRequest{
		GitBranch: "stable",
		Archs:     []string{"amd64"},
		Source:    store.SourceManual,
	})
	require.Error(t, err)
	require.Equal(t, bierr.InputInvalid, bierr.CategoryOf(err))
}

func TestCreateWrapsTreeFailureAsUpstream(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	f := &Factory{Store: store.NewWithDB(db), Tree: fakeTree{err: errBoom{}}}

	_, _, err = f.Create(context.Background(), NewRequest{
		GitBranch: "stable",
		Packages:  []string{"gcc"},
		Archs:     []string{"amd64"},
		Source:    store.SourceManual,
	})
	require.Error(t, err)
	require.Equal(t, bierr.Upstream, bierr.CategoryOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFromPRSkipsTreeUpdater(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	// Tree is a fakeTree that would error if ever called; CreateFromPR must
	// not call UpdateBranch at all.
	f := &Factory{Store: store.NewWithDB(db), Tree: fakeTree{err: errBoom{}}}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO pipelines`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "creation_time"}).AddRow(int64(2), time.Unix(1700000000, 0)))
	mock.ExpectQuery(`INSERT INTO jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "creation_time"}).AddRow(int64(200), time.Unix(1700000000, 0)))
	mock.ExpectCommit()

	pl, jobs, err := f.CreateFromPR(context.Background(), PRRequest{
		GitHubPR:  42,
		GitBranch: "feature/x",
		GitSHA:    "deadbeef",
		Packages:  []string{"gcc"},
		Archs:     []string{"amd64"},
	})
	require.NoError(t, err)
	require.Equal(t, "deadbeef", pl.GitSHA)
	require.NotNil(t, pl.GitHubPR)
	require.Equal(t, int64(42), *pl.GitHubPR)
	require.Len(t, jobs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

type errBoom struct{}

func (errBoom) Error() string { return "tree update failed" }

func TestParsePackageMarker(t *testing.T) {
	body := "Some description\n\n#buildit gcc binutils\n\nmore text"
	require.Equal(t, []string{"gcc", "binutils"}, ParsePackageMarker(body))
}

func TestParsePackageMarkerAbsent(t *testing.T) {
	require.Nil(t, ParsePackageMarker("no marker here"))
}

func TestParsePackageMarkerEmptyList(t *testing.T) {
	require.Nil(t, ParsePackageMarker("#buildit\nrest"))
}
