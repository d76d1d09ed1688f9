// Package webhook handles the hosting provider's issue_comment events: a
// bot-mention comment on a pull request either starts a PR build pipeline
// or requests a topic report, gated on organisation membership.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/buildit-project/buildit/internal/format"
	"github.com/buildit-project/buildit/internal/pipeline"
	"github.com/buildit-project/buildit/internal/store"
)

// GitHubClient is the narrow slice of the hosting-provider API the webhook
// needs: reading a pull request's head and body, posting a reply comment,
// and checking organisation membership before acting on a comment.
type GitHubClient interface {
	IsOrgMember(ctx context.Context, org, login string) (bool, error)
	GetPullRequest(ctx context.Context, owner, repo string, number int64) (headRef, headSHA, body string, err error)
	CreateIssueComment(ctx context.Context, owner, repo string, number int64, body string) error
}

// PipelineCreator is the slice of internal/pipeline the webhook needs,
// kept narrow so handler tests don't need a real store.
type PipelineCreator interface {
	CreateFromPR(ctx context.Context, req pipeline.PRRequest) (store.Pipeline, []store.Job, error)
}

// ReportGenerator produces a topic report for a branch. The real
// implementation shells out to the dickens topic-report tool, an external
// collaborator outside this module's scope, same as the package-metadata
// parser spec.md already treats as opaque.
type ReportGenerator interface {
	GenerateTopicReport(ctx context.Context, headRef string) (string, error)
}

// Paster uploads oversized report text to an external paste service and
// returns an id a comment can link to.
type Paster interface {
	Paste(ctx context.Context, title, body string) (id string, err error)
}

// pasteThreshold is the report size, in bytes, above which a report is
// pasted externally and linked rather than posted inline.
const pasteThreshold = 32 * 1024

// Handler processes issue_comment webhook deliveries.
type Handler struct {
	GitHub    GitHubClient
	Pipelines PipelineCreator
	Reports   ReportGenerator
	Paste     Paster
	Log       *zap.Logger

	Owner    string
	Repo     string
	Org      string
	BotLogin string // e.g. "@buildit-bot"; the exact mention token comments must lead with
}

type webhookPayload struct {
	Action  string `json:"action"`
	Comment struct {
		User struct {
			Login string `json:"login"`
		} `json:"user"`
		Body string `json:"body"`
	} `json:"comment"`
	Issue struct {
		Number int64 `json:"number"`
	} `json:"issue"`
}

// ServeHTTP decodes the delivery, acknowledges it immediately, and
// processes a qualifying comment in the background — mirroring the
// original handler's fire-and-forget tokio::spawn, since a slow GitHub API
// round trip must never hold up the webhook response.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-GitHub-Event") != "issue_comment" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "malformed webhook payload", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	if payload.Action != "created" {
		return
	}

	go func() {
		ctx := context.Background()
		if err := h.handleComment(ctx, payload.Comment.User.Login, payload.Comment.Body, payload.Issue.Number); err != nil && h.Log != nil {
			h.Log.Warn("failed to handle webhook comment",
				zap.Int64("pr", payload.Issue.Number),
				zap.Error(err))
		}
	}()
}

func (h *Handler) handleComment(ctx context.Context, login, body string, prNumber int64) error {
	fields := strings.Fields(body)
	if len(fields) == 0 || fields[0] != h.BotLogin {
		return nil
	}

	// Check the bot mention before the membership call to save an API
	// round trip on the overwhelming majority of comments that don't
	// address the bot at all.
	isMember, err := h.GitHub.IsOrgMember(ctx, h.Org, login)
	if err != nil {
		return err
	}
	if !isMember {
		return nil
	}

	if len(fields) < 2 {
		return nil
	}

	switch fields[1] {
	case "build":
		var archsToken string
		if len(fields) > 2 {
			archsToken = fields[2]
		}
		return h.handleBuild(ctx, prNumber, archsToken)
	case "dickens":
		return h.handleDickens(ctx, prNumber)
	default:
		if h.Log != nil {
			h.Log.Warn("unsupported webhook comment command", zap.String("command", fields[1]))
		}
		return nil
	}
}

func (h *Handler) handleBuild(ctx context.Context, prNumber int64, archsToken string) error {
	headRef, headSHA, body, err := h.GitHub.GetPullRequest(ctx, h.Owner, h.Repo, prNumber)
	if err != nil {
		return err
	}

	packages := pipeline.ParsePackageMarker(body)
	if len(packages) == 0 {
		return h.GitHub.CreateIssueComment(ctx, h.Owner, h.Repo, prNumber,
			"No #buildit package marker found in this pull request's description.")
	}

	archs := splitCSV(archsToken)
	if len(archs) == 0 {
		archs = []string{"mainline"}
	}

	pl, _, err := h.Pipelines.CreateFromPR(ctx, pipeline.PRRequest{
		GitHubPR:  prNumber,
		GitBranch: headRef,
		GitSHA:    headSHA,
		Packages:  packages,
		Archs:     archs,
	})
	if err != nil {
		return h.GitHub.CreateIssueComment(ctx, h.Owner, h.Repo, prNumber, "Failed to create pipeline: "+err.Error())
	}

	return h.GitHub.CreateIssueComment(ctx, h.Owner, h.Repo, prNumber, format.NewPipelineSummaryHTML(pl))
}

func (h *Handler) handleDickens(ctx context.Context, prNumber int64) error {
	if h.Reports == nil {
		return h.GitHub.CreateIssueComment(ctx, h.Owner, h.Repo, prNumber, "Topic reports are not available on this deployment.")
	}

	headRef, _, _, err := h.GitHub.GetPullRequest(ctx, h.Owner, h.Repo, prNumber)
	if err != nil {
		return err
	}

	report, err := h.Reports.GenerateTopicReport(ctx, headRef)
	if err != nil {
		return err
	}

	if len(report) <= pasteThreshold || h.Paste == nil {
		return h.GitHub.CreateIssueComment(ctx, h.Owner, h.Repo, prNumber, report)
	}

	id, err := h.Paste.Paste(ctx, "topic report for PR "+headRef, report)
	if err != nil {
		return err
	}
	return h.GitHub.CreateIssueComment(ctx, h.Owner, h.Repo, prNumber,
		"Topic report was too large to post inline and has been uploaded as paste "+id+".")
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
