package pipeline

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"golang.org/x/xerrors"
)

// GitTree implements TreeUpdater against a local checkout, fetching and
// resetting to a branch's upstream tip by shelling out to git rather than
// linking a Go git library.
type GitTree struct {
	// Path is the local checkout's root directory.
	Path string
	// Remote is the git remote to fetch from, e.g. "origin".
	Remote string
}

// NewGitTree builds a GitTree rooted at path, fetching from "origin".
func NewGitTree(path string) *GitTree {
	return &GitTree{Path: path, Remote: "origin"}
}

func (t *GitTree) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = t.Path
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", xerrors.Errorf("git %v: %w (%s)", args, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// UpdateBranch fetches branch from t.Remote and resolves it to the
// resulting commit hash. The local tree is left checked out at that
// commit; nothing is pushed.
func (t *GitTree) UpdateBranch(ctx context.Context, branch string) (string, error) {
	remote := t.Remote
	if remote == "" {
		remote = "origin"
	}
	if _, err := t.run(ctx, "fetch", remote, branch); err != nil {
		return "", err
	}
	sha, err := t.run(ctx, "rev-parse", "FETCH_HEAD")
	if err != nil {
		return "", err
	}
	if _, err := t.run(ctx, "reset", "--hard", sha); err != nil {
		return "", err
	}
	return sha, nil
}
