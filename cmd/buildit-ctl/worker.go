package main

import (
	"context"
	"flag"
	"fmt"
)

type workerListEntry struct {
	WorkerID      int64  `json:"worker_id"`
	Hostname      string `json:"hostname"`
	Arch          string `json:"arch"`
	Live          bool   `json:"live"`
	LogicalCores  int32  `json:"logical_cores"`
	MemoryBytes   int64  `json:"memory_bytes"`
	FreeDiskBytes int64  `json:"free_disk_bytes"`
}

type workerListResponse struct {
	Workers []workerListEntry `json:"workers"`
	Total   int64             `json:"total"`
}

func cmdWorkerList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("worker-list", flag.ExitOnError)
	page := fs.Int64("page", 1, "page number")
	itemsPerPage := fs.Int64("items_per_page", 20, "items per page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var resp workerListResponse
	q := queryInt64("page", *page)
	q.Set("items_per_page", fmt.Sprint(*itemsPerPage))
	if err := getJSON(ctx, "/api/worker/list", q, &resp); err != nil {
		return err
	}

	for _, w := range resp.Workers {
		live := "dead"
		if w.Live {
			live = "live"
		}
		fmt.Printf("%d\t%s\t%s\t%s\t%d cores\n", w.WorkerID, w.Hostname, w.Arch, live, w.LogicalCores)
	}
	if !plain() {
		fmt.Printf("--- %d total\n", resp.Total)
	}
	return nil
}

type jobInfoResponse struct {
	JobID              int64    `json:"job_id"`
	PipelineID         int64    `json:"pipeline_id"`
	Arch               string   `json:"arch"`
	Status             string   `json:"status"`
	BuildSuccess       *bool    `json:"build_success,omitempty"`
	PushSuccess        *bool    `json:"push_success,omitempty"`
	SuccessfulPackages []string `json:"successful_packages,omitempty"`
	FailedPackage      string   `json:"failed_package,omitempty"`
	SkippedPackages    []string `json:"skipped_packages,omitempty"`
	LogURL             string   `json:"log_url,omitempty"`
	ElapsedSecs        *int64   `json:"elapsed_secs,omitempty"`
	ErrorMessage       string   `json:"error_message,omitempty"`
}

func cmdJobInfo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("job-info", flag.ExitOnError)
	id := fs.Int64("id", 0, "job id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var resp jobInfoResponse
	if err := getJSON(ctx, "/api/job/info", queryInt64("job_id", *id), &resp); err != nil {
		return err
	}

	fmt.Printf("job %d (pipeline %d): %s status=%s\n",
		resp.JobID, resp.PipelineID, resp.Arch, resp.Status)
	if resp.FailedPackage != "" {
		fmt.Printf("failed package: %s\n", resp.FailedPackage)
	}
	if resp.LogURL != "" {
		fmt.Printf("log: %s\n", resp.LogURL)
	}
	if resp.ErrorMessage != "" {
		fmt.Printf("error: %s\n", resp.ErrorMessage)
	}
	return nil
}
