package store

import (
	"context"
	"database/sql"

	"golang.org/x/xerrors"
)

type userRow struct {
	ID              int64          `db:"id"`
	GitHubLogin     sql.NullString `db:"github_login"`
	GitHubID        sql.NullInt64  `db:"github_id"`
	GitHubName      sql.NullString `db:"github_name"`
	GitHubAvatarURL sql.NullString `db:"github_avatar_url"`
	GitHubEmail     sql.NullString `db:"github_email"`
	ChatID          sql.NullInt64  `db:"chat_id"`
}

func (r userRow) toUser() User {
	u := User{ID: r.ID}
	if r.GitHubLogin.Valid {
		u.GitHubLogin = &r.GitHubLogin.String
	}
	if r.GitHubID.Valid {
		u.GitHubID = &r.GitHubID.Int64
	}
	if r.GitHubName.Valid {
		u.GitHubName = &r.GitHubName.String
	}
	if r.GitHubAvatarURL.Valid {
		u.GitHubAvatar = &r.GitHubAvatarURL.String
	}
	if r.GitHubEmail.Valid {
		u.GitHubEmail = &r.GitHubEmail.String
	}
	if r.ChatID.Valid {
		u.ChatID = &r.ChatID.Int64
	}
	return u
}

// GetUser loads a user by id.
func (t *Tx) GetUser(ctx context.Context, id int64) (User, error) {
	var row userRow
	if err := t.tx.GetContext(ctx, &row, `SELECT * FROM users WHERE id = $1`, id); err != nil {
		return User{}, xerrors.Errorf("loading user %d: %w", id, err)
	}
	return row.toUser(), nil
}

// FindUserByGitHubID looks up a user by their GitHub account id.
func (t *Tx) FindUserByGitHubID(ctx context.Context, githubID int64) (User, bool, error) {
	var row userRow
	err := t.tx.GetContext(ctx, &row, `SELECT * FROM users WHERE github_id = $1`, githubID)
	if isNoRows(err) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, xerrors.Errorf("looking up user by github id %d: %w", githubID, err)
	}
	return row.toUser(), true, nil
}

// FindUserByChatID looks up a user by their chat account id.
func (t *Tx) FindUserByChatID(ctx context.Context, chatID int64) (User, bool, error) {
	var row userRow
	err := t.tx.GetContext(ctx, &row, `SELECT * FROM users WHERE chat_id = $1`, chatID)
	if isNoRows(err) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, xerrors.Errorf("looking up user by chat id %d: %w", chatID, err)
	}
	return row.toUser(), true, nil
}

// UpsertGitHubUser inserts or refreshes a user identified by their GitHub
// account id, updating profile fields that may change between sightings.
func (t *Tx) UpsertGitHubUser(ctx context.Context, u User) (User, error) {
	if u.GitHubID == nil {
		return User{}, xerrors.New("UpsertGitHubUser requires GitHubID")
	}
	existing, found, err := t.FindUserByGitHubID(ctx, *u.GitHubID)
	if err != nil {
		return User{}, err
	}
	if found {
		_, err := t.tx.ExecContext(ctx, `
			UPDATE users SET github_login = $1, github_name = $2, github_avatar_url = $3, github_email = $4
			WHERE id = $5
		`, u.GitHubLogin, u.GitHubName, u.GitHubAvatar, u.GitHubEmail, existing.ID)
		if err != nil {
			return User{}, xerrors.Errorf("updating github user %d: %w", *u.GitHubID, err)
		}
		u.ID = existing.ID
		return u, nil
	}
	var id int64
	err = t.tx.QueryRowxContext(ctx, `
		INSERT INTO users (github_login, github_id, github_name, github_avatar_url, github_email)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, u.GitHubLogin, u.GitHubID, u.GitHubName, u.GitHubAvatar, u.GitHubEmail).Scan(&id)
	if err != nil {
		return User{}, xerrors.Errorf("inserting github user %d: %w", *u.GitHubID, err)
	}
	u.ID = id
	return u, nil
}

// UpsertChatUser inserts or finds a user identified by their chat account id.
func (t *Tx) UpsertChatUser(ctx context.Context, chatID int64) (User, error) {
	existing, found, err := t.FindUserByChatID(ctx, chatID)
	if err != nil {
		return User{}, err
	}
	if found {
		return existing, nil
	}
	var id int64
	err = t.tx.QueryRowxContext(ctx, `
		INSERT INTO users (chat_id) VALUES ($1) RETURNING id
	`, chatID).Scan(&id)
	if err != nil {
		return User{}, xerrors.Errorf("inserting chat user %d: %w", chatID, err)
	}
	return User{ID: id, ChatID: &chatID}, nil
}
