package main

import (
	"context"
	"flag"
	"fmt"
)

type pipelineIDResponse struct {
	ID int64 `json:"id"`
}

func cmdPipelineNew(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pipeline-new", flag.ExitOnError)
	branch := fs.String("branch", "", "git branch to build")
	packages := fs.String("packages", "", "comma-separated package list")
	archs := fs.String("archs", "", "comma-separated architecture list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var resp pipelineIDResponse
	err := postJSON(ctx, "/api/pipeline/new", map[string]string{
		"git_branch": *branch,
		"packages":   *packages,
		"archs":      *archs,
	}, &resp)
	if err != nil {
		return err
	}
	fmt.Printf("created pipeline %d\n", resp.ID)
	return nil
}

func cmdPipelineNewPR(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pipeline-new-pr", flag.ExitOnError)
	pr := fs.Int64("pr", 0, "pull request number")
	archs := fs.String("archs", "", "comma-separated architecture list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var resp pipelineIDResponse
	err := postJSON(ctx, "/api/pipeline/new_pr", map[string]interface{}{
		"pr":    *pr,
		"archs": *archs,
	}, &resp)
	if err != nil {
		return err
	}
	fmt.Printf("created pipeline %d\n", resp.ID)
	return nil
}

type pipelineInfoJob struct {
	JobID  int64  `json:"job_id"`
	Arch   string `json:"arch"`
	Status string `json:"status"`
}

type pipelineInfoResponse struct {
	PipelineID int64             `json:"pipeline_id"`
	Packages   string            `json:"packages"`
	Archs      string            `json:"archs"`
	GitBranch  string            `json:"git_branch"`
	GitSHA     string            `json:"git_sha"`
	GitHubPR   *int64            `json:"github_pr,omitempty"`
	Jobs       []pipelineInfoJob `json:"jobs"`
}

func cmdPipelineInfo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pipeline-info", flag.ExitOnError)
	id := fs.Int64("id", 0, "pipeline id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var resp pipelineInfoResponse
	if err := getJSON(ctx, "/api/pipeline/info", queryInt64("pipeline_id", *id), &resp); err != nil {
		return err
	}

	fmt.Printf("pipeline %d: %s@%s (packages: %s, archs: %s)\n",
		resp.PipelineID, resp.GitBranch, resp.GitSHA, resp.Packages, resp.Archs)
	if !plain() {
		fmt.Println("---")
	}
	for _, job := range resp.Jobs {
		fmt.Printf("job %d\t%s\t%s\n", job.JobID, job.Arch, job.Status)
	}
	return nil
}

type pipelineListEntry struct {
	PipelineID int64  `json:"pipeline_id"`
	Packages   string `json:"packages"`
	Archs      string `json:"archs"`
	GitBranch  string `json:"git_branch"`
	GitSHA     string `json:"git_sha"`
	GitHubPR   *int64 `json:"github_pr,omitempty"`
}

type pipelineListResponse struct {
	Pipelines []pipelineListEntry `json:"pipelines"`
	Total     int64               `json:"total"`
}

func cmdPipelineList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pipeline-list", flag.ExitOnError)
	page := fs.Int64("page", 1, "page number")
	itemsPerPage := fs.Int64("items_per_page", 20, "items per page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var resp pipelineListResponse
	q := queryInt64("page", *page)
	q.Set("items_per_page", fmt.Sprint(*itemsPerPage))
	if err := getJSON(ctx, "/api/pipeline/list", q, &resp); err != nil {
		return err
	}

	for _, pl := range resp.Pipelines {
		fmt.Printf("%d\t%s\t%s\t%s\n", pl.PipelineID, pl.GitBranch, pl.Archs, pl.Packages)
	}
	if !plain() {
		fmt.Printf("--- %d total\n", resp.Total)
	}
	return nil
}
