package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"

	"code-review-backend/internal/diff"
	apperrors "code-review-backend/internal/errors"
	"code-review-backend/internal/model"
	"code-review-backend/internal/pathfilter"
	"code-review-backend/internal/tree"
)

// Store is the slice of the persistence layer the handlers read directly.
type Store interface {
	GetLinkedAccountByID(ctx context.Context, id int64) (model.LinkedAccount, error)
	GetRepository(ctx context.Context, userID, id int64) (model.ImportedRepository, error)
	ListRepositories(ctx context.Context, userID int64) ([]model.ImportedRepository, error)
	GetSyncStatus(ctx context.Context, repositoryID int64) (model.SyncStatus, error)
}

// Resolver resolves linked-account credentials for the request user.
type Resolver interface {
	Resolve(ctx context.Context, userID int64, provider, externalUID string) (model.LinkedAccount, error)
	ConnectionStatus(ctx context.Context, userID int64, provider string) (model.ConnectionStatus, error)
}

// RemoteClient is the slice of the remote API client the handlers drive
// directly. It also satisfies tree.ContentsFetcher.
type RemoteClient interface {
	ListRepos(ctx context.Context) ([]model.RepoSummary, error)
	GetContents(ctx context.Context, owner, repo, path, ref string) ([]model.Entry, error)
	GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error)
	Compare(ctx context.Context, owner, repo, base, head string) (*model.CompareData, string, error)
}

// ClientFactory builds a RemoteClient for a resolved access token.
type ClientFactory func(token string) RemoteClient

// Importer is the orchestration surface the handlers trigger.
type Importer interface {
	ImportRepository(ctx context.Context, userID int64, externalUID string, remoteRepoID int64, owner, name, branch string) (model.ImportedRepository, error)
	Sync(ctx context.Context, repo model.ImportedRepository) (model.SyncStatus, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	store    Store
	resolver Resolver
	importer Importer
	clients  ClientFactory
	filter   *pathfilter.Filter
	logger   *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
// The authenticated user id arrives in the X-User-ID header, set by the
// upstream identity proxy; this service performs no login flow of its own.
func NewRouter(st Store, resolver Resolver, importer Importer, clients ClientFactory, filter *pathfilter.Filter, logger *slog.Logger) http.Handler {
	h := &Handler{
		store:    st,
		resolver: resolver,
		importer: importer,
		clients:  clients,
		filter:   filter,
		logger:   logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/github/repos", h.listRemoteRepos)
		r.Get("/github/repos/{owner}/{repo}/contents", h.getContents)
		r.Get("/github/repos/{owner}/{repo}/file", h.getFileContent)
		r.Get("/github/status", h.connectionStatus)

		r.Get("/repositories", h.listRepositories)
		r.Post("/repositories", h.importRepository)
		r.Get("/repositories/{id}", h.getRepository)
		r.Post("/repositories/{id}/sync", h.syncRepository)
		r.Get("/repositories/{id}/tree", h.getTree)
		r.Get("/repositories/{id}/diff", h.getDiff)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listRemoteRepos handles GET /v1/github/repos?github_uid=
func (h *Handler) listRemoteRepos(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	acct, err := h.resolver.Resolve(r.Context(), userID, model.ProviderGitHub, r.URL.Query().Get("github_uid"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	repos, err := h.clients(acct.AccessToken).ListRepos(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, repos)
}

// getContents handles GET /v1/github/repos/{owner}/{repo}/contents?path=&ref=&github_uid=
func (h *Handler) getContents(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	owner := chi.URLParam(r, "owner")
	repo := chi.URLParam(r, "repo")
	q := r.URL.Query()

	acct, err := h.resolver.Resolve(r.Context(), userID, model.ProviderGitHub, q.Get("github_uid"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	entries, err := h.clients(acct.AccessToken).GetContents(r.Context(), owner, repo, q.Get("path"), q.Get("ref"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

// getFileContent handles GET /v1/github/repos/{owner}/{repo}/file?path=&ref=&github_uid=
func (h *Handler) getFileContent(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	owner := chi.URLParam(r, "owner")
	repo := chi.URLParam(r, "repo")
	q := r.URL.Query()

	path := q.Get("path")
	if path == "" {
		h.respondError(w, &apperrors.ErrValidation{Msg: "path parameter is required"})
		return
	}

	acct, err := h.resolver.Resolve(r.Context(), userID, model.ProviderGitHub, q.Get("github_uid"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	content, err := h.clients(acct.AccessToken).GetFileContent(r.Context(), owner, repo, path, q.Get("ref"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{
		"content": content,
		"path":    path,
	})
}

// connectionStatus handles GET /v1/github/status
func (h *Handler) connectionStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	status, err := h.resolver.ConnectionStatus(r.Context(), userID, model.ProviderGitHub)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

type importRequest struct {
	GithubUID    string `json:"github_uid"`
	RemoteRepoID int64  `json:"remote_repo_id"`
	Owner        string `json:"owner"`
	Name         string `json:"name"`
	Branch       string `json:"branch"`
}

// importRepository handles POST /v1/repositories
func (h *Handler) importRepository(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, &apperrors.ErrValidation{Msg: "invalid JSON body"})
		return
	}
	if req.RemoteRepoID <= 0 {
		h.respondError(w, &apperrors.ErrValidation{Msg: "remote_repo_id is required"})
		return
	}
	if req.Owner == "" || req.Name == "" {
		h.respondError(w, &apperrors.ErrValidation{Msg: "owner and name are required"})
		return
	}

	repo, err := h.importer.ImportRepository(r.Context(), userID, req.GithubUID, req.RemoteRepoID, req.Owner, req.Name, req.Branch)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, repo)
}

// listRepositories handles GET /v1/repositories
func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	repos, err := h.store.ListRepositories(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, repos)
}

// getRepository handles GET /v1/repositories/{id}
func (h *Handler) getRepository(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	repo, ok := h.loadRepository(w, r, userID)
	if !ok {
		return
	}

	status, err := h.store.GetSyncStatus(r.Context(), repo.ID)
	if err != nil && !stderrors.Is(err, pgx.ErrNoRows) {
		h.respondError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"repository":  repo,
		"sync_status": status,
	})
}

// syncRepository handles POST /v1/repositories/{id}/sync
func (h *Handler) syncRepository(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	repo, ok := h.loadRepository(w, r, userID)
	if !ok {
		return
	}

	status, err := h.importer.Sync(r.Context(), repo)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// getTree handles GET /v1/repositories/{id}/tree?branch=&path=
func (h *Handler) getTree(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	repo, ok := h.loadRepository(w, r, userID)
	if !ok {
		return
	}
	q := r.URL.Query()

	branch := q.Get("branch")
	if branch == "" {
		branch = repo.DefaultBranch
	}

	client, ok := h.clientForRepo(w, r, repo)
	if !ok {
		return
	}

	builder := tree.NewBuilder(client, h.filter, h.logger)
	nodes, err := builder.Build(r.Context(), repo.Owner, repo.Name, branch, q.Get("path"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"branch": branch,
		"tree":   nodes,
	})
}

// getDiff handles GET /v1/repositories/{id}/diff?base=&head=
// base is required; head defaults to the repository's default branch.
func (h *Handler) getDiff(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	repo, ok := h.loadRepository(w, r, userID)
	if !ok {
		return
	}
	q := r.URL.Query()

	base := q.Get("base")
	if base == "" {
		h.respondError(w, &apperrors.ErrValidation{Msg: "base parameter is required"})
		return
	}
	head := q.Get("head")
	if head == "" {
		head = repo.DefaultBranch
	}

	client, ok := h.clientForRepo(w, r, repo)
	if !ok {
		return
	}

	meta, raw, err := client.Compare(r.Context(), repo.Owner, repo.Name, base, head)
	if err != nil {
		h.respondError(w, err)
		return
	}
	files := diff.Parse(meta.Files, raw)
	respondWithJSON(w, http.StatusOK, map[string]any{
		"base":          base,
		"head":          head,
		"ahead_by":      meta.AheadBy,
		"behind_by":     meta.BehindBy,
		"total_commits": meta.TotalCommits,
		"status":        meta.Status,
		"files":         files,
	})
}

// loadRepository fetches the {id} route repository scoped to the request
// user, responding with the appropriate error when it cannot.
func (h *Handler) loadRepository(w http.ResponseWriter, r *http.Request, userID int64) (model.ImportedRepository, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, &apperrors.ErrValidation{Msg: "invalid repository id"})
		return model.ImportedRepository{}, false
	}

	repo, err := h.store.GetRepository(r.Context(), userID, id)
	if stderrors.Is(err, pgx.ErrNoRows) {
		respondWithError(w, http.StatusNotFound, "Repository not found")
		return model.ImportedRepository{}, false
	}
	if err != nil {
		h.respondError(w, err)
		return model.ImportedRepository{}, false
	}
	return repo, true
}

// clientForRepo builds a remote client from the credential the repository
// was imported with.
func (h *Handler) clientForRepo(w http.ResponseWriter, r *http.Request, repo model.ImportedRepository) (RemoteClient, bool) {
	acct, err := h.store.GetLinkedAccountByID(r.Context(), repo.LinkedAccountID)
	if stderrors.Is(err, pgx.ErrNoRows) || (err == nil && acct.AccessToken == "") {
		h.respondError(w, &apperrors.ErrCredentialNotFound{Provider: repo.Provider, ExternalUID: acct.ExternalUID})
		return nil, false
	}
	if err != nil {
		h.respondError(w, err)
		return nil, false
	}
	return h.clients(acct.AccessToken), true
}

// userID extracts the authenticated user id the identity proxy attached.
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusUnauthorized, "Missing or invalid user identity")
		return 0, false
	}
	return id, true
}

// respondError maps application errors onto HTTP statuses: bad input and
// credential problems are the caller's to fix (400), missing resources are
// 404, upstream failures are 502 and anything else is 500. Internal details
// are logged, not leaked.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var (
		validationErr *apperrors.ErrValidation
		credErr       *apperrors.ErrCredentialNotFound
		mismatchErr   *apperrors.ErrIDMismatch
		notAFileErr   *apperrors.ErrNotAFile
		decodeErr     *apperrors.ErrDecode
		notFoundErr   *apperrors.ErrRemoteNotFound
		remoteErr     *apperrors.ErrRemote
	)
	switch {
	case stderrors.As(err, &validationErr),
		stderrors.As(err, &credErr),
		stderrors.As(err, &mismatchErr),
		stderrors.As(err, &notAFileErr),
		stderrors.As(err, &decodeErr):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case stderrors.As(err, &notFoundErr), stderrors.Is(err, pgx.ErrNoRows):
		respondWithError(w, http.StatusNotFound, err.Error())
	case stderrors.As(err, &remoteErr):
		h.logger.Error("Remote API failure", "error", err)
		respondWithError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("Internal error", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
