package httpapi

import (
	"context"
	"net/http"
	"sort"

	"github.com/buildit-project/buildit/internal/store"
)

type archCounters struct {
	Arch    string `json:"arch"`
	Created int64  `json:"created"`
	Running int64  `json:"running"`
	Success int64  `json:"success"`
	Failed  int64  `json:"failed"`
	Error   int64  `json:"error"`
}

type dashboardStatusResponse struct {
	Archs []archCounters `json:"archs"`
}

// handleDashboardStatus reports job counts grouped by arch and status, the
// aggregate the web dashboard polls to draw its fleet summary.
func (a *API) handleDashboardStatus(w http.ResponseWriter, r *http.Request) {
	var counts []store.StatusCount
	err := a.Store.WithTx(r.Context(), func(ctx context.Context, tx *store.Tx) error {
		var err error
		counts, err = tx.JobStatusCounts(ctx)
		return err
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	byArch := make(map[string]*archCounters)
	var archs []string
	for _, c := range counts {
		ac, ok := byArch[c.Arch]
		if !ok {
			ac = &archCounters{Arch: c.Arch}
			byArch[c.Arch] = ac
			archs = append(archs, c.Arch)
		}
		switch store.JobStatus(c.Status) {
		case store.JobCreated:
			ac.Created = c.Count
		case store.JobRunning:
			ac.Running = c.Count
		case store.JobSuccess:
			ac.Success = c.Count
		case store.JobFailed:
			ac.Failed = c.Count
		case store.JobError:
			ac.Error = c.Count
		}
	}
	sort.Strings(archs)

	resp := dashboardStatusResponse{Archs: make([]archCounters, 0, len(archs))}
	for _, arch := range archs {
		resp.Archs = append(resp.Archs, *byArch[arch])
	}
	writeJSON(w, http.StatusOK, resp)
}
