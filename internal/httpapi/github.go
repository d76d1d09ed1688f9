package httpapi

import (
	"context"

	"github.com/google/go-github/v27/github"
)

// githubPRResolver adapts a *github.Client to PRResolver, fetching a pull
// request's head branch, head commit, and body the same way
// internal/webhook's own github adapter does.
type githubPRResolver struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubPRResolver builds the production PRResolver.
func NewGitHubPRResolver(client *github.Client, owner, repo string) PRResolver {
	return &githubPRResolver{client: client, owner: owner, repo: repo}
}

func (g *githubPRResolver) ResolvePR(ctx context.Context, prNumber int64) (string, string, string, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, g.owner, g.repo, int(prNumber))
	if err != nil {
		return "", "", "", err
	}
	return pr.GetHead().GetRef(), pr.GetHead().GetSHA(), pr.GetBody(), nil
}
