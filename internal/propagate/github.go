package propagate

import (
	"context"

	"github.com/google/go-github/v27/github"
)

// ghClient adapts a *github.Client to GitHubClient.
type ghClient struct {
	client *github.Client
}

// NewGitHubClient builds the production GitHubClient over the given
// go-github client, which carries its own authentication (an
// oauth2.Transport-wrapped HTTP client holding the hosting-provider access
// token, per SPEC_FULL.md §6).
func NewGitHubClient(client *github.Client) GitHubClient {
	return &ghClient{client: client}
}

func (g *ghClient) ListIssueComments(ctx context.Context, owner, repo string, prNumber int64) ([]Comment, error) {
	comments, _, err := g.client.Issues.ListComments(ctx, owner, repo, int(prNumber), nil)
	if err != nil {
		return nil, err
	}
	out := make([]Comment, len(comments))
	for i, c := range comments {
		out[i] = Comment{ID: c.GetID(), Author: c.GetUser().GetLogin(), Body: c.GetBody()}
	}
	return out, nil
}

func (g *ghClient) CreateIssueComment(ctx context.Context, owner, repo string, prNumber int64, body string) error {
	_, _, err := g.client.Issues.CreateComment(ctx, owner, repo, int(prNumber), &github.IssueComment{Body: &body})
	return err
}

func (g *ghClient) DeleteIssueComment(ctx context.Context, owner, repo string, commentID int64) error {
	_, err := g.client.Issues.DeleteComment(ctx, owner, repo, commentID)
	return err
}

func (g *ghClient) GetPullRequestBody(ctx context.Context, owner, repo string, prNumber int64) (string, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, owner, repo, int(prNumber))
	if err != nil {
		return "", err
	}
	return pr.GetBody(), nil
}

func (g *ghClient) UpdatePullRequestBody(ctx context.Context, owner, repo string, prNumber int64, body string) error {
	_, _, err := g.client.PullRequests.Edit(ctx, owner, repo, int(prNumber), &github.PullRequest{Body: &body})
	return err
}

func (g *ghClient) CompleteCheckRun(ctx context.Context, owner, repo string, checkRunID int64, success bool, title, summary string) error {
	conclusion := "failure"
	if success {
		conclusion = "success"
	}
	_, _, err := g.client.Checks.UpdateCheckRun(ctx, owner, repo, checkRunID, github.UpdateCheckRunOptions{
		Status:     github.String("completed"),
		Conclusion: &conclusion,
		Output: &github.CheckRunOutput{
			Title:   &title,
			Summary: &summary,
		},
	})
	return err
}
