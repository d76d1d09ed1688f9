package httpapi

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buildit-project/buildit/internal/ingest"
	"github.com/buildit-project/buildit/internal/logfanout"
	"github.com/buildit-project/buildit/internal/pipeline"
	"github.com/buildit-project/buildit/internal/registry"
	"github.com/buildit-project/buildit/internal/scheduler"
	"github.com/buildit-project/buildit/internal/store"
)

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

type fakeTree struct {
	sha string
	err error
}

func (f fakeTree) UpdateBranch(ctx context.Context, branch string) (string, error) {
	return f.sha, f.err
}

type fakePRResolver struct {
	branch, sha, body string
	err               error
}

func (f fakePRResolver) ResolvePR(ctx context.Context, prNumber int64) (string, string, string, error) {
	return f.branch, f.sha, f.body, f.err
}

// newTestAPI wires a full API against a single sqlmock-backed store, the
// same pattern internal/pipeline, internal/registry, and internal/ingest's
// own tests use, so handler tests exercise the real query plans.
func newTestAPI(t *testing.T) (*API, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.NewWithDB(db)
	api := &API{
		Store:     st,
		Pipelines: &pipeline.Factory{Store: st},
		Scheduler: &scheduler.Scheduler{Store: st},
		Registry:  &registry.Registry{Store: st, LiveWindow: 5 * time.Minute},
		Ingest:    &ingest.Ingest{Store: st},
		Hub:       logfanout.NewHub(),
		Log:       zap.NewNop(),
	}
	return api, mock
}

func newTestServer(t *testing.T, api *API) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(api))
	t.Cleanup(srv.Close)
	return srv
}
