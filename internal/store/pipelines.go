package store

import (
	"context"
	"database/sql"
	"time"

	"golang.org/x/xerrors"
)

type pipelineRow struct {
	ID            int64         `db:"id"`
	Packages      string        `db:"packages"`
	Archs         string        `db:"archs"`
	GitBranch     string        `db:"git_branch"`
	GitSHA        string        `db:"git_sha"`
	CreationTime  time.Time     `db:"creation_time"`
	Source        string        `db:"source"`
	GitHubPR      sql.NullInt64 `db:"github_pr"`
	ChatID        sql.NullInt64 `db:"chat_id"`
	CreatorUserID sql.NullInt64 `db:"creator_user_id"`
}

func (r pipelineRow) toPipeline() Pipeline {
	p := Pipeline{
		ID:           r.ID,
		Packages:     r.Packages,
		Archs:        r.Archs,
		GitBranch:    r.GitBranch,
		GitSHA:       r.GitSHA,
		CreationTime: r.CreationTime,
		Source:       Source(r.Source),
	}
	if r.GitHubPR.Valid {
		p.GitHubPR = &r.GitHubPR.Int64
	}
	if r.ChatID.Valid {
		p.ChatID = &r.ChatID.Int64
	}
	if r.CreatorUserID.Valid {
		p.CreatorUserID = &r.CreatorUserID.Int64
	}
	return p
}

// InsertPipeline inserts one pipeline row and returns it with its assigned
// id and creation time. Pipelines are never mutated after insertion (spec
// §3 invariant).
func (t *Tx) InsertPipeline(ctx context.Context, p Pipeline) (Pipeline, error) {
	var id int64
	var created time.Time
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO pipelines (packages, archs, git_branch, git_sha, source, github_pr, chat_id, creator_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, creation_time
	`, p.Packages, p.Archs, p.GitBranch, p.GitSHA, string(p.Source), p.GitHubPR, p.ChatID, p.CreatorUserID).
		Scan(&id, &created)
	if err != nil {
		return Pipeline{}, xerrors.Errorf("inserting pipeline: %w", err)
	}
	p.ID = id
	p.CreationTime = created
	return p, nil
}

// GetPipeline loads a pipeline by id.
func (t *Tx) GetPipeline(ctx context.Context, id int64) (Pipeline, error) {
	var row pipelineRow
	err := t.tx.GetContext(ctx, &row, `SELECT * FROM pipelines WHERE id = $1`, id)
	if err != nil {
		return Pipeline{}, xerrors.Errorf("loading pipeline %d: %w", id, err)
	}
	return row.toPipeline(), nil
}

// ListPipelines returns a page of pipelines ordered by id, and the total
// row count. itemsPerPage == -1 returns every row unpaged (see
// /api/pipeline/list in spec §6).
func (t *Tx) ListPipelines(ctx context.Context, page, itemsPerPage int64) ([]Pipeline, int64, error) {
	var total int64
	if err := t.tx.GetContext(ctx, &total, `SELECT count(*) FROM pipelines`); err != nil {
		return nil, 0, xerrors.Errorf("counting pipelines: %w", err)
	}

	var rows []pipelineRow
	var err error
	if itemsPerPage == -1 {
		err = t.tx.SelectContext(ctx, &rows, `SELECT * FROM pipelines ORDER BY id`)
	} else {
		offset := (page - 1) * itemsPerPage
		err = t.tx.SelectContext(ctx, &rows, `SELECT * FROM pipelines ORDER BY id OFFSET $1 LIMIT $2`, offset, itemsPerPage)
	}
	if err != nil {
		return nil, 0, xerrors.Errorf("listing pipelines: %w", err)
	}

	out := make([]Pipeline, len(rows))
	for i, r := range rows {
		out[i] = r.toPipeline()
	}
	return out, total, nil
}
