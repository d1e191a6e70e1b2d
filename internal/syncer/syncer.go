// Package syncer orchestrates repository import and metadata sync: it
// resolves credentials, verifies remote identity, persists imported
// repositories and drives the SyncStatus state machine.
package syncer

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"

	apperrors "code-review-backend/internal/errors"
	"code-review-backend/internal/model"
	"code-review-backend/internal/pathfilter"
	"code-review-backend/internal/store"
)

// maxErrorLen caps the error text stored on a failed sync.
const maxErrorLen = 500

// Store is the slice of the persistence layer the syncer needs.
type Store interface {
	GetLinkedAccountByID(ctx context.Context, id int64) (model.LinkedAccount, error)
	GetRepositoryByRemoteID(ctx context.Context, userID int64, provider string, remoteRepoID int64) (model.ImportedRepository, error)
	CreateRepository(ctx context.Context, arg store.CreateRepositoryParams) (model.ImportedRepository, error)
	UpdateRepositoryMetadata(ctx context.Context, arg store.UpdateRepositoryMetadataParams) (model.ImportedRepository, error)
	CreateSyncStatus(ctx context.Context, repositoryID int64) (model.SyncStatus, error)
	MarkSyncing(ctx context.Context, repositoryID int64) (model.SyncStatus, error)
	MarkSyncFailed(ctx context.Context, repositoryID int64, errMsg string) (model.SyncStatus, error)
	MarkSyncSuccess(ctx context.Context, repositoryID int64, filesCount, branchesCount int) (model.SyncStatus, error)
}

// CredentialResolver resolves a user's linked-account token.
type CredentialResolver interface {
	Resolve(ctx context.Context, userID int64, provider, externalUID string) (model.LinkedAccount, error)
}

// RemoteClient is the slice of the remote API client the syncer needs.
type RemoteClient interface {
	GetRepository(ctx context.Context, owner, name string) (*model.RemoteRepo, error)
	ListTree(ctx context.Context, owner, repo, ref string) ([]model.Entry, error)
	CountBranches(ctx context.Context, owner, repo string) (int, error)
}

// ClientFactory builds a RemoteClient for a resolved access token.
type ClientFactory func(token string) RemoteClient

// Syncer imports repositories and refreshes their metadata on demand.
type Syncer struct {
	store    Store
	resolver CredentialResolver
	clients  ClientFactory
	filter   *pathfilter.Filter
	logger   *slog.Logger

	mu        sync.Mutex
	repoLocks map[int64]*sync.Mutex
}

// NewSyncer creates a new Syncer instance.
func NewSyncer(st Store, resolver CredentialResolver, clients ClientFactory, filter *pathfilter.Filter, logger *slog.Logger) *Syncer {
	return &Syncer{
		store:     st,
		resolver:  resolver,
		clients:   clients,
		filter:    filter,
		logger:    logger,
		repoLocks: make(map[int64]*sync.Mutex),
	}
}

// ImportRepository imports a remote repository for a user. The remote API is
// the source of truth: the client-claimed remote id must match what the API
// reports, which defends against spoofed identifiers. Importing the same
// repository twice updates the existing record instead of duplicating it; a
// pending SyncStatus is created only for newly created records.
func (s *Syncer) ImportRepository(ctx context.Context, userID int64, externalUID string, remoteRepoID int64, owner, name, branch string) (model.ImportedRepository, error) {
	acct, err := s.resolver.Resolve(ctx, userID, model.ProviderGitHub, externalUID)
	if err != nil {
		return model.ImportedRepository{}, err
	}

	remote, err := s.clients(acct.AccessToken).GetRepository(ctx, owner, name)
	if err != nil {
		return model.ImportedRepository{}, err
	}
	if remote.ID != remoteRepoID {
		return model.ImportedRepository{}, &apperrors.ErrIDMismatch{Claimed: remoteRepoID, Actual: remote.ID}
	}

	defaultBranch := remote.DefaultBranch
	if branch != "" {
		defaultBranch = branch
	}

	logger := s.logger.With("owner", owner, "repo", name, "user_id", userID)

	existing, err := s.store.GetRepositoryByRemoteID(ctx, userID, model.ProviderGitHub, remoteRepoID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		logger.Info("Repository not imported yet, creating new record")
		repo, err := s.store.CreateRepository(ctx, store.CreateRepositoryParams{
			UserID:          userID,
			Provider:        model.ProviderGitHub,
			RemoteRepoID:    remoteRepoID,
			LinkedAccountID: acct.ID,
			Owner:           remote.Owner,
			Name:            remote.Name,
			FullName:        remote.FullName,
			DefaultBranch:   defaultBranch,
			Description:     remote.Description,
			Private:         remote.Private,
			Language:        remote.Language,
			HTMLURL:         remote.HTMLURL,
		})
		if err != nil {
			return model.ImportedRepository{}, err
		}
		if _, err := s.store.CreateSyncStatus(ctx, repo.ID); err != nil {
			return model.ImportedRepository{}, err
		}
		return repo, nil
	} else if err != nil {
		return model.ImportedRepository{}, err
	}

	logger.Info("Repository already imported, updating metadata", "repo_id", existing.ID)
	return s.store.UpdateRepositoryMetadata(ctx, store.UpdateRepositoryMetadataParams{
		ID:            existing.ID,
		FullName:      remote.FullName,
		DefaultBranch: defaultBranch,
		Description:   remote.Description,
		Private:       remote.Private,
		Language:      remote.Language,
		HTMLURL:       remote.HTMLURL,
	})
}

// Sync refreshes a repository's metadata from the remote API and records the
// outcome on its SyncStatus row: syncing while in flight, then success (with
// a fresh timestamp and counts) or failed (with a truncated error). A
// per-repository lock serializes concurrent triggers so their status writes
// cannot interleave.
func (s *Syncer) Sync(ctx context.Context, repo model.ImportedRepository) (model.SyncStatus, error) {
	lock := s.repoLock(repo.ID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.store.MarkSyncing(ctx, repo.ID); err != nil {
		return model.SyncStatus{}, err
	}

	logger := s.logger.With("owner", repo.Owner, "repo", repo.Name, "repo_id", repo.ID)
	logger.Info("Syncing repository")

	status, err := s.refresh(ctx, repo)
	if err != nil {
		logger.Error("Failed to sync repository", "error", err)
		return s.store.MarkSyncFailed(ctx, repo.ID, truncate(err.Error()))
	}
	logger.Info("Repository synced", "files", status.FilesCount, "branches", status.BranchesCount)
	return status, nil
}

// refresh performs the remote fetches of one sync pass.
func (s *Syncer) refresh(ctx context.Context, repo model.ImportedRepository) (model.SyncStatus, error) {
	acct, err := s.store.GetLinkedAccountByID(ctx, repo.LinkedAccountID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return model.SyncStatus{}, &apperrors.ErrCredentialNotFound{Provider: repo.Provider}
	}
	if err != nil {
		return model.SyncStatus{}, err
	}
	// The account must still belong to this user and provider and carry a
	// token; anything else means the link was broken since import.
	if acct.UserID != repo.UserID || acct.Provider != repo.Provider || acct.AccessToken == "" {
		return model.SyncStatus{}, &apperrors.ErrCredentialNotFound{Provider: repo.Provider, ExternalUID: acct.ExternalUID}
	}

	client := s.clients(acct.AccessToken)
	remote, err := client.GetRepository(ctx, repo.Owner, repo.Name)
	if err != nil {
		return model.SyncStatus{}, err
	}

	updated, err := s.store.UpdateRepositoryMetadata(ctx, store.UpdateRepositoryMetadataParams{
		ID:            repo.ID,
		FullName:      remote.FullName,
		DefaultBranch: remote.DefaultBranch,
		Description:   remote.Description,
		Private:       remote.Private,
		Language:      remote.Language,
		HTMLURL:       remote.HTMLURL,
	})
	if err != nil {
		return model.SyncStatus{}, err
	}

	entries, err := client.ListTree(ctx, repo.Owner, repo.Name, updated.DefaultBranch)
	if err != nil {
		return model.SyncStatus{}, err
	}
	filesCount := 0
	for _, e := range entries {
		if e.Type == "file" && !s.filter.ShouldIgnore(e.Path) {
			filesCount++
		}
	}

	branchesCount, err := client.CountBranches(ctx, repo.Owner, repo.Name)
	if err != nil {
		return model.SyncStatus{}, err
	}

	return s.store.MarkSyncSuccess(ctx, repo.ID, filesCount, branchesCount)
}

// repoLock returns the mutex guarding one repository's sync.
func (s *Syncer) repoLock(repoID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.repoLocks[repoID]
	if !ok {
		lock = &sync.Mutex{}
		s.repoLocks[repoID] = lock
	}
	return lock
}

func truncate(msg string) string {
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen]
	}
	return msg
}
