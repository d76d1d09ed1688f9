// Package propagate fans a terminal job outcome out to the chat, PR
// comment, PR checklist, and check-run surfaces, retrying transient
// failures up to a shared attempt bound.
package propagate

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/buildit-project/buildit/internal/bierr"
	"github.com/buildit-project/buildit/internal/format"
	"github.com/buildit-project/buildit/internal/store"
)

// maxAttempts bounds the shared retry counter across all four surfaces, per
// spec §4.6.
const maxAttempts = 5

// ChatNotifier sends a formatted message to a chat channel. The concrete
// implementation in slack.go posts to a Slack channel; tests use a fake.
type ChatNotifier interface {
	Notify(ctx context.Context, channelID, body string) error
}

// GitHubClient is the narrow slice of the hosting-provider API the PR
// comment, checklist, and check-run surfaces need. github.go adapts
// google/go-github/v27 to this interface; tests use a fake.
type GitHubClient interface {
	ListIssueComments(ctx context.Context, owner, repo string, prNumber int64) ([]Comment, error)
	CreateIssueComment(ctx context.Context, owner, repo string, prNumber int64, body string) error
	DeleteIssueComment(ctx context.Context, owner, repo string, commentID int64) error
	GetPullRequestBody(ctx context.Context, owner, repo string, prNumber int64) (string, error)
	UpdatePullRequestBody(ctx context.Context, owner, repo string, prNumber int64, body string) error
	CompleteCheckRun(ctx context.Context, owner, repo string, checkRunID int64, success bool, title, summary string) error
}

// Comment is the subset of a PR comment propagation needs to read.
type Comment struct {
	ID     int64
	Author string
	Body   string
}

// Propagator fans out job outcomes. ChecklistMu serialises the PR-body
// read-modify-write across every job of every pipeline; it is owned here,
// constructed once by the caller and threaded through, never a package
// global.
type Propagator struct {
	Chat   ChatNotifier
	GitHub GitHubClient
	Log    *zap.Logger

	Owner    string
	Repo     string
	BotLogin string

	ChecklistMu sync.Mutex

	// Breaker trips after repeated upstream failures so a dead hosting
	// provider fails attempts immediately instead of burning the retry
	// budget on calls likely to time out. Nil disables it (used by tests).
	Breaker *gobreaker.CircuitBreaker
}

// NewPropagator builds a Propagator with a circuit breaker over its
// upstream calls, tripping after 5 consecutive failures and probing again
// after 30s half-open.
func NewPropagator(chat ChatNotifier, gh GitHubClient, log *zap.Logger, owner, repo, botLogin string) *Propagator {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "propagate",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Propagator{Chat: chat, GitHub: gh, Log: log, Owner: owner, Repo: repo, BotLogin: botLogin, Breaker: breaker}
}

// Propagate posts job's outcome to every surface the pipeline qualifies
// for, retrying the whole surface set up to maxAttempts times on a
// transient failure and logging (never returning an error — callers are
// fire-and-forget per spec §4.6's independent-retriable contract).
func (p *Propagator) Propagate(ctx context.Context, pipeline store.Pipeline, job store.Job, hostname string) {
	success := job.Status == store.JobSuccess

	// attemptID correlates every retry of this one logical propagation in
	// the logs, since maxAttempts retries of the same job outcome would
	// otherwise be indistinguishable from maxAttempts separate ones.
	attemptID := uuid.NewString()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := p.attemptGuarded(ctx, pipeline, job, hostname, success)
		if err == nil {
			return
		}
		if !bierr.CategoryOf(err).Retriable() {
			if p.Log != nil {
				p.Log.Error("propagation failed permanently",
					zap.Int64("job_id", job.ID), zap.String("attempt_id", attemptID), zap.Error(err))
			}
			return
		}
		if p.Log != nil {
			p.Log.Warn("propagation attempt failed, retrying",
				zap.Int64("job_id", job.ID), zap.String("attempt_id", attemptID), zap.Int("attempt", attempt), zap.Error(err))
		}
	}
	if p.Log != nil {
		p.Log.Error("propagation abandoned after max attempts",
			zap.Int64("job_id", job.ID), zap.String("attempt_id", attemptID))
	}
}

// attemptGuarded runs attempt through the circuit breaker when one is
// configured, so a hosting provider outage fails fast instead of spending
// the whole retry budget on calls likely to time out.
func (p *Propagator) attemptGuarded(ctx context.Context, pipeline store.Pipeline, job store.Job, hostname string, success bool) error {
	if p.Breaker == nil {
		return p.attempt(ctx, pipeline, job, hostname, success)
	}
	_, err := p.Breaker.Execute(func() (interface{}, error) {
		return nil, p.attempt(ctx, pipeline, job, hostname, success)
	})
	if err == gobreaker.ErrOpenState {
		return bierr.Errorf(bierr.Upstream, "circuit open: %w", err)
	}
	return err
}

func (p *Propagator) attempt(ctx context.Context, pipeline store.Pipeline, job store.Job, hostname string, success bool) error {
	if pipeline.Source == store.SourceChat && pipeline.ChatID != nil {
		if p.Chat == nil {
			return bierr.Errorf(bierr.InputInvalid, "chat surface not configured")
		}
		body := format.BuildResultMarkdown(pipeline, job, hostname, success)
		if err := p.Chat.Notify(ctx, formatChatID(*pipeline.ChatID), body); err != nil {
			return bierr.Errorf(bierr.Upstream, "sending chat message: %w", err)
		}
	}

	if job.ErrorMessage != nil && pipeline.GitHubPR != nil {
		return p.postErrorComment(ctx, pipeline, job, hostname)
	}

	if pipeline.GitHubPR != nil {
		if err := p.deleteStaleComments(ctx, pipeline, job); err != nil {
			return err
		}
		if err := p.updateChecklist(ctx, pipeline, job, success); err != nil {
			return err
		}
	}

	if job.GitHubCheckRunID != nil {
		if err := p.completeCheckRun(ctx, job, success); err != nil {
			return err
		}
	}
	return nil
}

// postErrorComment handles the infrastructure-error case: unlike a
// build/push result, there is no checklist state to flip, so the error is
// reported as a plain PR comment instead.
func (p *Propagator) postErrorComment(ctx context.Context, pipeline store.Pipeline, job store.Job, hostname string) error {
	if p.GitHub == nil {
		return bierr.Errorf(bierr.InputInvalid, "github client not configured")
	}
	body := hostname + "(" + job.Arch + ") build packages: " + job.Packages + " got error: " + orEmpty(job.ErrorMessage)
	if err := p.GitHub.CreateIssueComment(ctx, p.Owner, p.Repo, *pipeline.GitHubPR, body); err != nil {
		return bierr.Errorf(bierr.Upstream, "posting error comment: %w", err)
	}
	return nil
}

// deleteStaleComments removes this bot's prior result comment(s) for
// job.Arch, per spec §4.6.2: presence is encoded on the checklist instead,
// so no replacement comment is ever posted.
func (p *Propagator) deleteStaleComments(ctx context.Context, pipeline store.Pipeline, job store.Job) error {
	if p.GitHub == nil {
		return bierr.Errorf(bierr.InputInvalid, "github client not configured")
	}
	comments, err := p.GitHub.ListIssueComments(ctx, p.Owner, p.Repo, *pipeline.GitHubPR)
	if err != nil {
		return bierr.Errorf(bierr.Upstream, "listing pr comments: %w", err)
	}
	for _, c := range comments {
		if c.Author != p.BotLogin || !format.IsBotResultComment(c.Body) {
			continue
		}
		arch, ok := format.CommentArch(c.Body)
		if !ok || arch != job.Arch {
			continue
		}
		if err := p.GitHub.DeleteIssueComment(ctx, p.Owner, p.Repo, c.ID); err != nil {
			return bierr.Errorf(bierr.Upstream, "deleting stale comment %d: %w", c.ID, err)
		}
	}
	return nil
}

// updateChecklist flips job.Arch's checklist line in the PR body, guarded
// by ChecklistMu since the read-modify-write is not otherwise atomic.
func (p *Propagator) updateChecklist(ctx context.Context, pipeline store.Pipeline, job store.Job, success bool) error {
	label, ok := format.ArchLabel(job.Arch)
	if !ok {
		return bierr.Errorf(bierr.InputInvalid, "unknown architecture %s", job.Arch)
	}

	p.ChecklistMu.Lock()
	defer p.ChecklistMu.Unlock()

	body, err := p.GitHub.GetPullRequestBody(ctx, p.Owner, p.Repo, *pipeline.GitHubPR)
	if err != nil {
		return bierr.Errorf(bierr.Upstream, "reading pr body: %w", err)
	}

	var updated string
	if success {
		updated = strings.Replace(body, "- [ ] "+label, "- [x] "+label, 1)
	} else {
		updated = strings.Replace(body, "- [x] "+label, "- [ ] "+label, 1)
	}
	if updated == body {
		return nil
	}
	if err := p.GitHub.UpdatePullRequestBody(ctx, p.Owner, p.Repo, *pipeline.GitHubPR, updated); err != nil {
		return bierr.Errorf(bierr.Upstream, "writing pr body: %w", err)
	}
	return nil
}

func (p *Propagator) completeCheckRun(ctx context.Context, job store.Job, success bool) error {
	title := "Build failed"
	summary := format.BuildResultMarkdown(store.Pipeline{}, job, "", success)
	if success {
		title = "Build succeeded"
	}
	if err := p.GitHub.CompleteCheckRun(ctx, p.Owner, p.Repo, *job.GitHubCheckRunID, success, title, summary); err != nil {
		return bierr.Errorf(bierr.Upstream, "completing check run: %w", err)
	}
	return nil
}

func formatChatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
