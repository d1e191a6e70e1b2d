package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "code-review-backend/internal/errors"
	"code-review-backend/internal/model"
	"code-review-backend/internal/pathfilter"
	"code-review-backend/internal/store"
)

// MockStore is a mock of the Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetLinkedAccountByID(ctx context.Context, id int64) (model.LinkedAccount, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.LinkedAccount), args.Error(1)
}

func (m *MockStore) GetRepositoryByRemoteID(ctx context.Context, userID int64, provider string, remoteRepoID int64) (model.ImportedRepository, error) {
	args := m.Called(ctx, userID, provider, remoteRepoID)
	return args.Get(0).(model.ImportedRepository), args.Error(1)
}

func (m *MockStore) CreateRepository(ctx context.Context, arg store.CreateRepositoryParams) (model.ImportedRepository, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(model.ImportedRepository), args.Error(1)
}

func (m *MockStore) UpdateRepositoryMetadata(ctx context.Context, arg store.UpdateRepositoryMetadataParams) (model.ImportedRepository, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(model.ImportedRepository), args.Error(1)
}

func (m *MockStore) CreateSyncStatus(ctx context.Context, repositoryID int64) (model.SyncStatus, error) {
	args := m.Called(ctx, repositoryID)
	return args.Get(0).(model.SyncStatus), args.Error(1)
}

func (m *MockStore) MarkSyncing(ctx context.Context, repositoryID int64) (model.SyncStatus, error) {
	args := m.Called(ctx, repositoryID)
	return args.Get(0).(model.SyncStatus), args.Error(1)
}

func (m *MockStore) MarkSyncFailed(ctx context.Context, repositoryID int64, errMsg string) (model.SyncStatus, error) {
	args := m.Called(ctx, repositoryID, errMsg)
	return args.Get(0).(model.SyncStatus), args.Error(1)
}

func (m *MockStore) MarkSyncSuccess(ctx context.Context, repositoryID int64, filesCount, branchesCount int) (model.SyncStatus, error) {
	args := m.Called(ctx, repositoryID, filesCount, branchesCount)
	return args.Get(0).(model.SyncStatus), args.Error(1)
}

// fakeResolver returns a fixed account or error.
type fakeResolver struct {
	account model.LinkedAccount
	err     error
}

func (f *fakeResolver) Resolve(context.Context, int64, string, string) (model.LinkedAccount, error) {
	return f.account, f.err
}

// fakeClient is a canned RemoteClient.
type fakeClient struct {
	repo        *model.RemoteRepo
	repoErr     error
	treeEntries []model.Entry
	treeErr     error
	branches    int
	branchesErr error
}

func (f *fakeClient) GetRepository(context.Context, string, string) (*model.RemoteRepo, error) {
	return f.repo, f.repoErr
}

func (f *fakeClient) ListTree(context.Context, string, string, string) ([]model.Entry, error) {
	return f.treeEntries, f.treeErr
}

func (f *fakeClient) CountBranches(context.Context, string, string) (int, error) {
	return f.branches, f.branchesErr
}

func newTestSyncer(st Store, resolver CredentialResolver, client RemoteClient) *Syncer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSyncer(st, resolver, func(string) RemoteClient { return client }, pathfilter.New(nil), logger)
}

func TestSyncer_ImportRepository(t *testing.T) {
	ctx := context.Background()

	account := model.LinkedAccount{ID: 3, UserID: 7, Provider: "github", ExternalUID: "uid-a", AccessToken: "token"}
	remote := &model.RemoteRepo{
		ID:            555,
		Owner:         "octocat",
		Name:          "hello",
		FullName:      "octocat/hello",
		DefaultBranch: "main",
		HTMLURL:       "https://example.com/octocat/hello",
	}

	t.Run("creates repository and pending status on first import", func(t *testing.T) {
		mockSt := new(MockStore)
		s := newTestSyncer(mockSt, &fakeResolver{account: account}, &fakeClient{repo: remote})

		mockSt.On("GetRepositoryByRemoteID", ctx, int64(7), "github", int64(555)).
			Return(model.ImportedRepository{}, pgx.ErrNoRows).Once()
		created := model.ImportedRepository{ID: 10, UserID: 7, RemoteRepoID: 555}
		mockSt.On("CreateRepository", ctx, mock.MatchedBy(func(arg store.CreateRepositoryParams) bool {
			return arg.UserID == 7 && arg.RemoteRepoID == 555 && arg.LinkedAccountID == 3 && arg.DefaultBranch == "main"
		})).Return(created, nil).Once()
		mockSt.On("CreateSyncStatus", ctx, int64(10)).
			Return(model.SyncStatus{RepositoryID: 10, State: model.SyncPending}, nil).Once()

		repo, err := s.ImportRepository(ctx, 7, "uid-a", 555, "octocat", "hello", "")
		require.NoError(t, err)
		assert.Equal(t, created, repo)
		mockSt.AssertExpectations(t)
	})

	t.Run("second import updates instead of duplicating", func(t *testing.T) {
		mockSt := new(MockStore)
		s := newTestSyncer(mockSt, &fakeResolver{account: account}, &fakeClient{repo: remote})

		existing := model.ImportedRepository{ID: 10, UserID: 7, RemoteRepoID: 555}
		mockSt.On("GetRepositoryByRemoteID", ctx, int64(7), "github", int64(555)).Return(existing, nil).Once()
		updated := existing
		updated.FullName = "octocat/hello"
		mockSt.On("UpdateRepositoryMetadata", ctx, mock.Anything).Return(updated, nil).Once()

		repo, err := s.ImportRepository(ctx, 7, "uid-a", 555, "octocat", "hello", "")
		require.NoError(t, err)
		assert.Equal(t, updated, repo)
		mockSt.AssertExpectations(t)
		mockSt.AssertNotCalled(t, "CreateRepository", mock.Anything, mock.Anything)
		mockSt.AssertNotCalled(t, "CreateSyncStatus", mock.Anything, mock.Anything)
	})

	t.Run("rejects a spoofed remote id", func(t *testing.T) {
		mockSt := new(MockStore)
		s := newTestSyncer(mockSt, &fakeResolver{account: account}, &fakeClient{repo: remote})

		_, err := s.ImportRepository(ctx, 7, "uid-a", 999, "octocat", "hello", "")
		var mismatch *apperrors.ErrIDMismatch
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, int64(999), mismatch.Claimed)
		assert.Equal(t, int64(555), mismatch.Actual)
		mockSt.AssertNotCalled(t, "CreateRepository", mock.Anything, mock.Anything)
	})

	t.Run("fails when the credential cannot be resolved", func(t *testing.T) {
		mockSt := new(MockStore)
		credErr := &apperrors.ErrCredentialNotFound{Provider: "github", ExternalUID: "uid-a"}
		s := newTestSyncer(mockSt, &fakeResolver{err: credErr}, &fakeClient{repo: remote})

		_, err := s.ImportRepository(ctx, 7, "uid-a", 555, "octocat", "hello", "")
		var got *apperrors.ErrCredentialNotFound
		require.ErrorAs(t, err, &got)
	})

	t.Run("explicit branch overrides the remote default", func(t *testing.T) {
		mockSt := new(MockStore)
		s := newTestSyncer(mockSt, &fakeResolver{account: account}, &fakeClient{repo: remote})

		mockSt.On("GetRepositoryByRemoteID", ctx, int64(7), "github", int64(555)).
			Return(model.ImportedRepository{}, pgx.ErrNoRows).Once()
		mockSt.On("CreateRepository", ctx, mock.MatchedBy(func(arg store.CreateRepositoryParams) bool {
			return arg.DefaultBranch == "develop"
		})).Return(model.ImportedRepository{ID: 11}, nil).Once()
		mockSt.On("CreateSyncStatus", ctx, int64(11)).Return(model.SyncStatus{}, nil).Once()

		_, err := s.ImportRepository(ctx, 7, "uid-a", 555, "octocat", "hello", "develop")
		require.NoError(t, err)
		mockSt.AssertExpectations(t)
	})
}

func TestSyncer_Sync(t *testing.T) {
	ctx := context.Background()

	account := model.LinkedAccount{ID: 3, UserID: 7, Provider: "github", ExternalUID: "uid-a", AccessToken: "token"}
	repo := model.ImportedRepository{
		ID: 10, UserID: 7, Provider: "github", RemoteRepoID: 555,
		LinkedAccountID: 3, Owner: "octocat", Name: "hello", DefaultBranch: "main",
	}
	remote := &model.RemoteRepo{ID: 555, Owner: "octocat", Name: "hello", FullName: "octocat/hello", DefaultBranch: "main"}

	t.Run("successful sync transitions syncing then success with counts", func(t *testing.T) {
		mockSt := new(MockStore)
		client := &fakeClient{
			repo: remote,
			treeEntries: []model.Entry{
				{Path: "main.go", Type: "file"},
				{Path: "node_modules/x.js", Type: "file"}, // filtered out of the count
				{Path: "src", Type: "dir"},
				{Path: "src/app.go", Type: "file"},
			},
			branches: 4,
		}
		s := newTestSyncer(mockSt, &fakeResolver{account: account}, client)

		mockSt.On("MarkSyncing", ctx, int64(10)).Return(model.SyncStatus{State: model.SyncRunning}, nil).Once()
		mockSt.On("GetLinkedAccountByID", ctx, int64(3)).Return(account, nil).Once()
		mockSt.On("UpdateRepositoryMetadata", ctx, mock.Anything).Return(repo, nil).Once()
		final := model.SyncStatus{RepositoryID: 10, State: model.SyncSuccess, FilesCount: 2, BranchesCount: 4}
		mockSt.On("MarkSyncSuccess", ctx, int64(10), 2, 4).Return(final, nil).Once()

		status, err := s.Sync(ctx, repo)
		require.NoError(t, err)
		assert.Equal(t, model.SyncSuccess, status.State)
		assert.Equal(t, 2, status.FilesCount)
		mockSt.AssertExpectations(t)
		mockSt.AssertNotCalled(t, "MarkSyncFailed", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("remote failure transitions to failed with the error recorded", func(t *testing.T) {
		mockSt := new(MockStore)
		client := &fakeClient{repoErr: &apperrors.ErrRemote{StatusCode: 503, Msg: "unavailable"}}
		s := newTestSyncer(mockSt, &fakeResolver{account: account}, client)

		mockSt.On("MarkSyncing", ctx, int64(10)).Return(model.SyncStatus{State: model.SyncRunning}, nil).Once()
		mockSt.On("GetLinkedAccountByID", ctx, int64(3)).Return(account, nil).Once()
		mockSt.On("MarkSyncFailed", ctx, int64(10), mock.MatchedBy(func(msg string) bool {
			return strings.Contains(msg, "unavailable")
		})).Return(model.SyncStatus{State: model.SyncFailed, LastError: "remote API error (status 503): unavailable"}, nil).Once()

		status, err := s.Sync(ctx, repo)
		require.NoError(t, err)
		assert.Equal(t, model.SyncFailed, status.State)
		mockSt.AssertExpectations(t)
		mockSt.AssertNotCalled(t, "MarkSyncSuccess", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing credential transitions to failed", func(t *testing.T) {
		mockSt := new(MockStore)
		s := newTestSyncer(mockSt, &fakeResolver{account: account}, &fakeClient{repo: remote})

		mockSt.On("MarkSyncing", ctx, int64(10)).Return(model.SyncStatus{}, nil).Once()
		mockSt.On("GetLinkedAccountByID", ctx, int64(3)).Return(model.LinkedAccount{}, pgx.ErrNoRows).Once()
		mockSt.On("MarkSyncFailed", ctx, int64(10), mock.Anything).
			Return(model.SyncStatus{State: model.SyncFailed}, nil).Once()

		status, err := s.Sync(ctx, repo)
		require.NoError(t, err)
		assert.Equal(t, model.SyncFailed, status.State)
	})

	t.Run("stored error text is truncated", func(t *testing.T) {
		mockSt := new(MockStore)
		client := &fakeClient{repoErr: errors.New(strings.Repeat("x", 2000))}
		s := newTestSyncer(mockSt, &fakeResolver{account: account}, client)

		mockSt.On("MarkSyncing", ctx, int64(10)).Return(model.SyncStatus{}, nil).Once()
		mockSt.On("GetLinkedAccountByID", ctx, int64(3)).Return(account, nil).Once()
		mockSt.On("MarkSyncFailed", ctx, int64(10), mock.MatchedBy(func(msg string) bool {
			return len(msg) == maxErrorLen
		})).Return(model.SyncStatus{State: model.SyncFailed}, nil).Once()

		_, err := s.Sync(ctx, repo)
		require.NoError(t, err)
		mockSt.AssertExpectations(t)
	})

	t.Run("concurrent syncs of one repository serialize", func(t *testing.T) {
		mockSt := new(MockStore)
		client := &fakeClient{repo: remote, branches: 1}
		s := newTestSyncer(mockSt, &fakeResolver{account: account}, client)

		var inFlight, maxInFlight int
		var gate sync.Mutex
		enter := func(mock.Arguments) {
			gate.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			gate.Unlock()
		}
		leave := func(mock.Arguments) {
			gate.Lock()
			inFlight--
			gate.Unlock()
		}

		mockSt.On("MarkSyncing", ctx, int64(10)).Run(enter).Return(model.SyncStatus{}, nil)
		mockSt.On("GetLinkedAccountByID", ctx, int64(3)).Return(account, nil)
		mockSt.On("UpdateRepositoryMetadata", ctx, mock.Anything).Return(repo, nil)
		mockSt.On("MarkSyncSuccess", ctx, int64(10), 0, 1).Run(leave).
			Return(model.SyncStatus{State: model.SyncSuccess}, nil)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Sync(ctx, repo)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		gate.Lock()
		defer gate.Unlock()
		assert.Equal(t, 1, maxInFlight, "status writes of one repository must not interleave")
	})
}
