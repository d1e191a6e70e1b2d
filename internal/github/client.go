package github

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	apperrors "code-review-backend/internal/errors"
	"code-review-backend/internal/model"
)

const (
	// defaultTimeout bounds every remote call; raw diff bodies can be large
	// so the diff fetch gets a longer budget.
	defaultTimeout = 10 * time.Second
	diffTimeout    = 30 * time.Second

	// listPageSize caps listings at the API maximum; we do not paginate past
	// the first page.
	listPageSize = 100
)

// Client is a wrapper around the go-github client, bound to one access token.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// Factory builds a Client for a resolved access token. Callers construct one
// client per request since every request may resolve a different linked
// account.
type Factory func(token string) *Client

// NewFactory returns the production Factory.
func NewFactory(logger *slog.Logger) Factory {
	return func(token string) *Client {
		return NewClient(token, logger)
	}
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(token string, logger *slog.Logger) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return &Client{
		gh:     github.NewClient(tc),
		logger: logger,
	}
}

// NewClientWithBaseURL creates a Client that talks to a non-default API
// endpoint, such as a GitHub Enterprise instance or a local test server.
func NewClientWithBaseURL(token, baseURL string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	c := NewClient(token, logger)
	c.gh.BaseURL = u
	c.gh.UploadURL = u
	return c, nil
}

// ListRepos fetches the authenticated user's repositories, newest-updated
// first. Only the first page (100 items) is returned.
func (c *Client) ListRepos(ctx context.Context) ([]model.RepoSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: listPageSize},
	}
	repos, _, err := c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
	if err != nil {
		return nil, translateErr(err, "user repositories")
	}

	summaries := make([]model.RepoSummary, 0, len(repos))
	for _, r := range repos {
		summaries = append(summaries, model.RepoSummary{
			ID:            r.GetID(),
			Name:          r.GetName(),
			FullName:      r.GetFullName(),
			Private:       r.GetPrivate(),
			Description:   r.Description,
			Language:      r.Language,
			HTMLURL:       r.GetHTMLURL(),
			CloneURL:      r.GetCloneURL(),
			DefaultBranch: r.GetDefaultBranch(),
			UpdatedAt:     r.GetUpdatedAt().Time,
		})
	}
	return summaries, nil
}

// GetRepository fetches repository metadata and translates it to our
// internal model.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*model.RemoteRepo, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, translateErr(err, owner+"/"+name)
	}
	return &model.RemoteRepo{
		ID:            repo.GetID(),
		Owner:         repo.GetOwner().GetLogin(),
		Name:          repo.GetName(),
		FullName:      repo.GetFullName(),
		DefaultBranch: repo.GetDefaultBranch(),
		Description:   repo.Description,
		Private:       repo.GetPrivate(),
		Language:      repo.Language,
		HTMLURL:       repo.GetHTMLURL(),
		CreatedAt:     repo.GetCreatedAt().Time,
		UpdatedAt:     repo.GetUpdatedAt().Time,
	}, nil
}

// GetContents lists the entries at a path within a repository at the given
// ref. The remote API returns a single object (not a list) when the path is
// a file; that case is normalized to a one-element slice.
func (c *Client) GetContents(ctx context.Context, owner, repo, path, ref string) ([]model.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	file, dir, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, translateErr(err, owner+"/"+repo+"/"+path)
	}

	if file != nil {
		return []model.Entry{toEntry(file)}, nil
	}
	entries := make([]model.Entry, 0, len(dir))
	for _, item := range dir {
		entries = append(entries, toEntry(item))
	}
	return entries, nil
}

// GetFileContent fetches and decodes the content of a single file. It fails
// with ErrNotAFile when the path resolves to a directory and ErrDecode when
// the content is not valid UTF-8 text.
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	file, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", translateErr(err, owner+"/"+repo+"/"+path)
	}
	if file == nil || file.GetType() != "file" {
		return "", &apperrors.ErrNotAFile{Path: path}
	}

	content, err := file.GetContent()
	if err != nil {
		return "", &apperrors.ErrDecode{Path: path, Reason: err.Error()}
	}
	if !utf8.ValidString(content) {
		return "", &apperrors.ErrDecode{Path: path, Reason: "content is not valid UTF-8"}
	}
	return content, nil
}

// Compare fetches a two-ref comparison: the structured metadata (ahead/behind
// counts, per-file stats) and the raw unified-diff text. The two calls run
// concurrently.
func (c *Client) Compare(ctx context.Context, owner, repo, base, head string) (*model.CompareData, string, error) {
	var (
		cmp *github.CommitsComparison
		raw string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ctx, cancel := context.WithTimeout(gctx, defaultTimeout)
		defer cancel()
		res, _, err := c.gh.Repositories.CompareCommits(ctx, owner, repo, base, head, &github.ListOptions{PerPage: listPageSize})
		if err != nil {
			return translateErr(err, base+"..."+head)
		}
		cmp = res
		return nil
	})
	g.Go(func() error {
		ctx, cancel := context.WithTimeout(gctx, diffTimeout)
		defer cancel()
		res, _, err := c.gh.Repositories.CompareCommitsRaw(ctx, owner, repo, base, head, github.RawOptions{Type: github.Diff})
		if err != nil {
			return translateErr(err, base+"..."+head)
		}
		raw = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	data := &model.CompareData{
		AheadBy:      cmp.GetAheadBy(),
		BehindBy:     cmp.GetBehindBy(),
		TotalCommits: cmp.GetTotalCommits(),
		Status:       cmp.GetStatus(),
	}
	for _, f := range cmp.Files {
		data.Files = append(data.Files, model.FileStat{
			Filename:         f.GetFilename(),
			PreviousFilename: f.GetPreviousFilename(),
			Status:           f.GetStatus(),
			Additions:        f.GetAdditions(),
			Deletions:        f.GetDeletions(),
			Changes:          f.GetChanges(),
		})
	}
	return data, raw, nil
}

// ListTree fetches the full flat tree at a ref in a single call, used for
// sync-time file counting. Blobs map to "file" entries, trees to "dir".
func (c *Client) ListTree(ctx context.Context, owner, repo, ref string) ([]model.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tree, _, err := c.gh.Git.GetTree(ctx, owner, repo, ref, true)
	if err != nil {
		return nil, translateErr(err, owner+"/"+repo+"@"+ref)
	}
	if tree.GetTruncated() {
		c.logger.Warn("tree listing truncated by remote API", "owner", owner, "repo", repo, "ref", ref)
	}

	entries := make([]model.Entry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		kind := "file"
		if e.GetType() == "tree" {
			kind = "dir"
		}
		entries = append(entries, model.Entry{
			Name: e.GetPath(),
			Path: e.GetPath(),
			Type: kind,
			Size: e.GetSize(),
			SHA:  e.GetSHA(),
		})
	}
	return entries, nil
}

// CountBranches returns the number of branches on the first listing page.
func (c *Client) CountBranches(ctx context.Context, owner, repo string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	branches, _, err := c.gh.Repositories.ListBranches(ctx, owner, repo, &github.BranchListOptions{
		ListOptions: github.ListOptions{PerPage: listPageSize},
	})
	if err != nil {
		return 0, translateErr(err, owner+"/"+repo+" branches")
	}
	return len(branches), nil
}

func toEntry(rc *github.RepositoryContent) model.Entry {
	return model.Entry{
		Name:    rc.GetName(),
		Path:    rc.GetPath(),
		Type:    rc.GetType(),
		Size:    rc.GetSize(),
		SHA:     rc.GetSHA(),
		HTMLURL: rc.GetHTMLURL(),
	}
}

// translateErr maps go-github failures onto the application error taxonomy:
// upstream 404s become ErrRemoteNotFound, everything else ErrRemote with the
// upstream status attached when known.
func translateErr(err error, resource string) error {
	var ghErr *github.ErrorResponse
	if stderrors.As(err, &ghErr) {
		status := 0
		if ghErr.Response != nil {
			status = ghErr.Response.StatusCode
		}
		if status == http.StatusNotFound {
			return &apperrors.ErrRemoteNotFound{Resource: resource}
		}
		return &apperrors.ErrRemote{StatusCode: status, Msg: ghErr.Message}
	}
	return &apperrors.ErrRemote{Msg: err.Error()}
}
