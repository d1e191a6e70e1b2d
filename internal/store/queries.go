package store

import (
	"context"

	"code-review-backend/internal/model"
)

// CreateRepositoryParams holds the fields for a new imported repository.
type CreateRepositoryParams struct {
	UserID          int64
	Provider        string
	RemoteRepoID    int64
	LinkedAccountID int64
	Owner           string
	Name            string
	FullName        string
	DefaultBranch   string
	Description     *string
	Private         bool
	Language        *string
	HTMLURL         string
}

// UpdateRepositoryMetadataParams holds the refreshable fields of an imported
// repository.
type UpdateRepositoryMetadataParams struct {
	ID            int64
	FullName      string
	DefaultBranch string
	Description   *string
	Private       bool
	Language      *string
	HTMLURL       string
}

const linkedAccountColumns = `id, user_id, provider, external_uid, access_token, username, email, avatar_url, created_at`

// GetLinkedAccount fetches the one account matching (user, provider, uid).
// Returns pgx.ErrNoRows when absent.
func (db *DB) GetLinkedAccount(ctx context.Context, userID int64, provider, externalUID string) (model.LinkedAccount, error) {
	var a model.LinkedAccount
	err := db.pool.QueryRow(ctx, `
		SELECT `+linkedAccountColumns+`
		FROM linked_accounts
		WHERE user_id = $1 AND provider = $2 AND external_uid = $3
	`, userID, provider, externalUID).Scan(
		&a.ID, &a.UserID, &a.Provider, &a.ExternalUID, &a.AccessToken,
		&a.Username, &a.Email, &a.AvatarURL, &a.CreatedAt,
	)
	return a, err
}

// FirstLinkedAccount fetches the oldest stored account for (user, provider).
func (db *DB) FirstLinkedAccount(ctx context.Context, userID int64, provider string) (model.LinkedAccount, error) {
	var a model.LinkedAccount
	err := db.pool.QueryRow(ctx, `
		SELECT `+linkedAccountColumns+`
		FROM linked_accounts
		WHERE user_id = $1 AND provider = $2
		ORDER BY id
		LIMIT 1
	`, userID, provider).Scan(
		&a.ID, &a.UserID, &a.Provider, &a.ExternalUID, &a.AccessToken,
		&a.Username, &a.Email, &a.AvatarURL, &a.CreatedAt,
	)
	return a, err
}

// GetLinkedAccountByID fetches an account by primary key.
func (db *DB) GetLinkedAccountByID(ctx context.Context, id int64) (model.LinkedAccount, error) {
	var a model.LinkedAccount
	err := db.pool.QueryRow(ctx, `
		SELECT `+linkedAccountColumns+`
		FROM linked_accounts
		WHERE id = $1
	`, id).Scan(
		&a.ID, &a.UserID, &a.Provider, &a.ExternalUID, &a.AccessToken,
		&a.Username, &a.Email, &a.AvatarURL, &a.CreatedAt,
	)
	return a, err
}

// ListLinkedAccounts lists every account a user holds for a provider.
func (db *DB) ListLinkedAccounts(ctx context.Context, userID int64, provider string) ([]model.LinkedAccount, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+linkedAccountColumns+`
		FROM linked_accounts
		WHERE user_id = $1 AND provider = $2
		ORDER BY id
	`, userID, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.LinkedAccount
	for rows.Next() {
		var a model.LinkedAccount
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.Provider, &a.ExternalUID, &a.AccessToken,
			&a.Username, &a.Email, &a.AvatarURL, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

const repositoryColumns = `id, user_id, provider, remote_repo_id, linked_account_id, owner, name, full_name, default_branch, description, private, language, html_url, created_at, updated_at`

func scanRepository(row interface{ Scan(...any) error }) (model.ImportedRepository, error) {
	var r model.ImportedRepository
	err := row.Scan(
		&r.ID, &r.UserID, &r.Provider, &r.RemoteRepoID, &r.LinkedAccountID,
		&r.Owner, &r.Name, &r.FullName, &r.DefaultBranch, &r.Description,
		&r.Private, &r.Language, &r.HTMLURL, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

// GetRepository fetches one of a user's imported repositories by id.
func (db *DB) GetRepository(ctx context.Context, userID, id int64) (model.ImportedRepository, error) {
	return scanRepository(db.pool.QueryRow(ctx, `
		SELECT `+repositoryColumns+`
		FROM imported_repositories
		WHERE id = $1 AND user_id = $2
	`, id, userID))
}

// GetRepositoryByRemoteID fetches an imported repository by its natural key.
func (db *DB) GetRepositoryByRemoteID(ctx context.Context, userID int64, provider string, remoteRepoID int64) (model.ImportedRepository, error) {
	return scanRepository(db.pool.QueryRow(ctx, `
		SELECT `+repositoryColumns+`
		FROM imported_repositories
		WHERE user_id = $1 AND provider = $2 AND remote_repo_id = $3
	`, userID, provider, remoteRepoID))
}

// ListRepositories lists a user's imported repositories, newest first.
func (db *DB) ListRepositories(ctx context.Context, userID int64) ([]model.ImportedRepository, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT `+repositoryColumns+`
		FROM imported_repositories
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []model.ImportedRepository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// CreateRepository inserts a new imported repository. The unique index on
// (user_id, provider, remote_repo_id) rejects duplicates.
func (db *DB) CreateRepository(ctx context.Context, arg CreateRepositoryParams) (model.ImportedRepository, error) {
	return scanRepository(db.pool.QueryRow(ctx, `
		INSERT INTO imported_repositories (
			user_id, provider, remote_repo_id, linked_account_id,
			owner, name, full_name, default_branch, description,
			private, language, html_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+repositoryColumns+`
	`,
		arg.UserID, arg.Provider, arg.RemoteRepoID, arg.LinkedAccountID,
		arg.Owner, arg.Name, arg.FullName, arg.DefaultBranch, arg.Description,
		arg.Private, arg.Language, arg.HTMLURL,
	))
}

// UpdateRepositoryMetadata refreshes the remote-sourced fields of an
// imported repository.
func (db *DB) UpdateRepositoryMetadata(ctx context.Context, arg UpdateRepositoryMetadataParams) (model.ImportedRepository, error) {
	return scanRepository(db.pool.QueryRow(ctx, `
		UPDATE imported_repositories SET
			full_name = $2,
			default_branch = $3,
			description = $4,
			private = $5,
			language = $6,
			html_url = $7,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+repositoryColumns+`
	`,
		arg.ID, arg.FullName, arg.DefaultBranch, arg.Description,
		arg.Private, arg.Language, arg.HTMLURL,
	))
}

const syncStatusColumns = `id, repository_id, state, last_synced_at, last_error, files_count, branches_count, updated_at`

func scanSyncStatus(row interface{ Scan(...any) error }) (model.SyncStatus, error) {
	var s model.SyncStatus
	err := row.Scan(
		&s.ID, &s.RepositoryID, &s.State, &s.LastSyncedAt,
		&s.LastError, &s.FilesCount, &s.BranchesCount, &s.UpdatedAt,
	)
	return s, err
}

// CreateSyncStatus creates the pending status row that accompanies a newly
// imported repository.
func (db *DB) CreateSyncStatus(ctx context.Context, repositoryID int64) (model.SyncStatus, error) {
	return scanSyncStatus(db.pool.QueryRow(ctx, `
		INSERT INTO sync_statuses (repository_id, state)
		VALUES ($1, 'pending')
		RETURNING `+syncStatusColumns+`
	`, repositoryID))
}

// GetSyncStatus fetches the status row for a repository.
func (db *DB) GetSyncStatus(ctx context.Context, repositoryID int64) (model.SyncStatus, error) {
	return scanSyncStatus(db.pool.QueryRow(ctx, `
		SELECT `+syncStatusColumns+`
		FROM sync_statuses
		WHERE repository_id = $1
	`, repositoryID))
}

// MarkSyncing transitions a repository's status to syncing.
func (db *DB) MarkSyncing(ctx context.Context, repositoryID int64) (model.SyncStatus, error) {
	return scanSyncStatus(db.pool.QueryRow(ctx, `
		UPDATE sync_statuses SET
			state = 'syncing',
			updated_at = NOW()
		WHERE repository_id = $1
		RETURNING `+syncStatusColumns+`
	`, repositoryID))
}

// MarkSyncFailed records a failed sync with its (pre-truncated) error.
func (db *DB) MarkSyncFailed(ctx context.Context, repositoryID int64, errMsg string) (model.SyncStatus, error) {
	return scanSyncStatus(db.pool.QueryRow(ctx, `
		UPDATE sync_statuses SET
			state = 'failed',
			last_error = $2,
			updated_at = NOW()
		WHERE repository_id = $1
		RETURNING `+syncStatusColumns+`
	`, repositoryID, errMsg))
}

// MarkSyncSuccess records a successful sync, clearing the error and stamping
// the sync time.
func (db *DB) MarkSyncSuccess(ctx context.Context, repositoryID int64, filesCount, branchesCount int) (model.SyncStatus, error) {
	return scanSyncStatus(db.pool.QueryRow(ctx, `
		UPDATE sync_statuses SET
			state = 'success',
			last_error = '',
			last_synced_at = NOW(),
			files_count = $2,
			branches_count = $3,
			updated_at = NOW()
		WHERE repository_id = $1
		RETURNING `+syncStatusColumns+`
	`, repositoryID, filesCount, branchesCount))
}
