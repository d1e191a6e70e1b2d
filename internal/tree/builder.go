// Package tree recursively fetches a repository's directory structure from
// the remote API, applying the path filter along the way.
package tree

import (
	"context"
	"log/slog"

	"code-review-backend/internal/model"
	"code-review-backend/internal/pathfilter"
)

// maxDepth caps recursion so a pathological repository structure cannot
// drive unbounded call volume. Directories at the cap are emitted with empty
// children.
const maxDepth = 20

// ContentsFetcher is the slice of the remote client the builder needs.
type ContentsFetcher interface {
	GetContents(ctx context.Context, owner, repo, path, ref string) ([]model.Entry, error)
}

// Builder walks remote directories depth-first and assembles TreeNodes.
type Builder struct {
	client ContentsFetcher
	filter *pathfilter.Filter
	logger *slog.Logger
}

// NewBuilder creates a Builder. The filter decides which entries are noise.
func NewBuilder(client ContentsFetcher, filter *pathfilter.Filter, logger *slog.Logger) *Builder {
	return &Builder{
		client: client,
		filter: filter,
		logger: logger,
	}
}

// Build returns the tree rooted at startPath on the given branch. Children
// preserve the order the remote API reports. A fetch failure on the root
// path is fatal; failures below it degrade to empty child lists so a partial
// tree is returned rather than nothing.
func (b *Builder) Build(ctx context.Context, owner, repo, branch, startPath string) ([]model.TreeNode, error) {
	return b.walk(ctx, owner, repo, branch, startPath, 0)
}

func (b *Builder) walk(ctx context.Context, owner, repo, branch, path string, depth int) ([]model.TreeNode, error) {
	entries, err := b.client.GetContents(ctx, owner, repo, path, branch)
	if err != nil {
		return nil, err
	}

	nodes := make([]model.TreeNode, 0, len(entries))
	for _, entry := range entries {
		if b.filter.ShouldIgnore(entry.Path) {
			continue
		}

		node := model.TreeNode{
			Name:        entry.Name,
			Path:        entry.Path,
			Kind:        "file",
			Size:        entry.Size,
			ContentHash: entry.SHA,
			RemoteURL:   entry.HTMLURL,
		}
		if entry.Type == "dir" {
			node.Kind = "dir"
			node.Children = []model.TreeNode{}
			if depth < maxDepth {
				children, err := b.walk(ctx, owner, repo, branch, entry.Path, depth+1)
				if err != nil {
					// Partial trees beat total failure: keep the directory
					// with empty children and carry on with its siblings.
					b.logger.Warn("subdirectory fetch failed, continuing traversal",
						"owner", owner, "repo", repo, "path", entry.Path, "error", err)
				} else {
					node.Children = children
				}
			}
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
