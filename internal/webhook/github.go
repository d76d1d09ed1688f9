package webhook

import (
	"context"

	"github.com/google/go-github/v27/github"
)

// ghClient adapts a *github.Client to GitHubClient.
type ghClient struct {
	client *github.Client
}

// NewGitHubClient builds the production GitHubClient, authenticated the
// same way propagate.NewGitHubClient's caller authenticates its own client.
func NewGitHubClient(client *github.Client) GitHubClient {
	return &ghClient{client: client}
}

func (g *ghClient) IsOrgMember(ctx context.Context, org, login string) (bool, error) {
	isMember, _, err := g.client.Organizations.IsMember(ctx, org, login)
	if err != nil {
		return false, err
	}
	return isMember, nil
}

func (g *ghClient) GetPullRequest(ctx context.Context, owner, repo string, number int64) (string, string, string, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, owner, repo, int(number))
	if err != nil {
		return "", "", "", err
	}
	return pr.GetHead().GetRef(), pr.GetHead().GetSHA(), pr.GetBody(), nil
}

func (g *ghClient) CreateIssueComment(ctx context.Context, owner, repo string, number int64, body string) error {
	_, _, err := g.client.Issues.CreateComment(ctx, owner, repo, int(number), &github.IssueComment{Body: &body})
	return err
}
