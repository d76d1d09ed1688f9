package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestHandleWorkerHeartbeatRejectsBadSecret(t *testing.T) {
	api, _ := newTestAPI(t)
	api.WorkerSecret = "s3cr3t"
	srv := newTestServer(t, api)

	body, _ := json.Marshal(heartbeatRequest{Secret: "wrong", Hostname: "w1", Arch: "amd64"})
	resp, err := http.Post(srv.URL+"/api/worker/heartbeat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWorkerHeartbeatUpserts(t *testing.T) {
	api, mock := newTestAPI(t)
	api.WorkerSecret = "s3cr3t"
	srv := newTestServer(t, api)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM workers WHERE hostname = \$1 AND arch = \$2`).
		WillReturnRows(sqlmock.NewRows(workerCols()))
	mock.ExpectQuery(`INSERT INTO workers`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "last_heartbeat_time"}).AddRow(int64(9), time.Now()))
	mock.ExpectCommit()

	body, _ := json.Marshal(heartbeatRequest{
		Secret: "s3cr3t", Hostname: "w1", Arch: "amd64",
		MemoryBytes: 1 << 30, LogicalCores: 4, FreeDiskBytes: 1 << 30,
	})
	resp, err := http.Post(srv.URL+"/api/worker/heartbeat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out workerResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, int64(9), out.WorkerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWorkerPollReturnsEmptyWhenNothingSchedulable(t *testing.T) {
	api, mock := newTestAPI(t)
	srv := newTestServer(t, api)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM workers WHERE hostname = \$1 AND arch = \$2`).
		WillReturnRows(sqlmock.NewRows(workerCols()).
			AddRow(1, "w1", "amd64", time.Now(), 1<<30, 4, 1<<30, nil, nil, true))
	mock.ExpectExec(`UPDATE jobs SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM jobs`).WillReturnRows(sqlmock.NewRows(jobCols()))
	mock.ExpectCommit()

	body, _ := json.Marshal(pollRequest{Hostname: "w1", Arch: "amd64", LogicalCores: 4, MemoryBytes: 1 << 30, FreeDiskBytes: 1 << 30})
	resp, err := http.Post(srv.URL+"/api/worker/poll", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out pollResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Nil(t, out.JobID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWorkerJobUpdateRecordsSuccess(t *testing.T) {
	api, mock := newTestAPI(t)
	srv := newTestServer(t, api)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM workers`).
		WillReturnRows(sqlmock.NewRows(workerCols()).
			AddRow(7, "w1", "amd64", time.Unix(1, 0), 1<<30, 4, 1<<30, nil, nil, true))
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(jobCols()).
			AddRow(5, 2, "amd64", "gcc", "running", time.Unix(2, 0),
				time.Unix(3, 0), nil, 7, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil))
	mock.ExpectQuery(`SELECT \* FROM pipelines WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(pipelineCols()).
			AddRow(2, "gcc", "amd64", "stable", "deadbeef", time.Unix(3, 0), "manual", nil, nil, nil))
	mock.ExpectExec(`UPDATE jobs SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	buildOK, pushOK := true, true
	body, _ := json.Marshal(jobUpdateRequest{
		JobID: 5, Hostname: "w1", Arch: "amd64",
		BuildSuccess: &buildOK, PushSuccess: &pushOK,
		SuccessfulPackages: []string{"gcc"}, ElapsedSecs: 120,
	})
	resp, err := http.Post(srv.URL+"/api/worker/job_update", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out jobUpdateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "success", out.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWorkerListReportsLiveness(t *testing.T) {
	api, mock := newTestAPI(t)
	srv := newTestServer(t, api)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM workers`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(`SELECT \* FROM workers ORDER BY arch`).
		WillReturnRows(sqlmock.NewRows(workerCols()).
			AddRow(1, "w1", "amd64", time.Now(), 1<<30, 4, 1<<30, nil, nil, true))
	mock.ExpectCommit()

	resp, err := http.Get(srv.URL + "/api/worker/list")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out workerListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Workers, 1)
	require.True(t, out.Workers[0].Live)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleJobInfoReturnsOutcome(t *testing.T) {
	api, mock := newTestAPI(t)
	srv := newTestServer(t, api)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(jobCols()).
			AddRow(5, 2, "amd64", "gcc", "success", time.Unix(2, 0),
				time.Unix(3, 0), time.Unix(4, 0), nil, 7, nil, nil, nil, nil, nil, true, true, "gcc", nil, nil, "http://log", int64(120), nil))
	mock.ExpectCommit()

	resp, err := http.Get(srv.URL + "/api/job/info?job_id=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out jobInfoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "success", out.Status)
	require.Equal(t, []string{"gcc"}, out.SuccessfulPackages)
	require.NoError(t, mock.ExpectationsWereMet())
}
