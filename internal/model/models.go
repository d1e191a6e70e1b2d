package model

import "time"

// ProviderGitHub is the only remote provider currently wired in; Google
// accounts are stored by the OAuth collaborator but have no repo surface.
const ProviderGitHub = "github"

// SyncState is the lifecycle state of a repository's metadata sync.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncRunning SyncState = "syncing"
	SyncSuccess SyncState = "success"
	SyncFailed  SyncState = "failed"
)

// LinkedAccount is one stored OAuth credential tying a user to one external
// provider account. A user may hold several per provider; (provider,
// external_uid) identifies exactly one. Written by the OAuth linking flow,
// read-only from this service's perspective.
type LinkedAccount struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Provider    string    `json:"provider"`
	ExternalUID string    `json:"external_uid"`
	AccessToken string    `json:"-"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	AvatarURL   string    `json:"avatar_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// ImportedRepository is a locally persisted record of a remote repository a
// user has chosen to track. Unique per (user, provider, remote_repo_id).
type ImportedRepository struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	Provider        string    `json:"provider"`
	RemoteRepoID    int64     `json:"remote_repo_id"`
	LinkedAccountID int64     `json:"linked_account_id"`
	Owner           string    `json:"owner"`
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	DefaultBranch   string    `json:"default_branch"`
	Description     *string   `json:"description"`
	Private         bool      `json:"private"`
	Language        *string   `json:"language"`
	HTMLURL         string    `json:"html_url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SyncStatus tracks the freshness of the last metadata refresh for an
// ImportedRepository. One row per repository.
type SyncStatus struct {
	ID            int64      `json:"id"`
	RepositoryID  int64      `json:"repository_id"`
	State         SyncState  `json:"state"`
	LastSyncedAt  *time.Time `json:"last_synced_at"`
	LastError     string     `json:"last_error"`
	FilesCount    int        `json:"files_count"`
	BranchesCount int        `json:"branches_count"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// RemoteRepo is repository metadata as reported by the remote API.
type RemoteRepo struct {
	ID            int64
	Owner         string
	Name          string
	FullName      string
	DefaultBranch string
	Description   *string
	Private       bool
	Language      *string
	HTMLURL       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RepoSummary is one entry in a remote repository listing.
type RepoSummary struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Private       bool      `json:"private"`
	Description   *string   `json:"description"`
	Language      *string   `json:"language"`
	HTMLURL       string    `json:"html_url"`
	CloneURL      string    `json:"clone_url"`
	DefaultBranch string    `json:"default_branch"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Entry is one file or directory in a remote directory listing.
type Entry struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Type    string `json:"type"` // "file" or "dir"
	Size    int    `json:"size"`
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
}

// TreeNode is one node of a recursively fetched repository tree. Children is
// populated for directories only and preserves remote listing order.
type TreeNode struct {
	Name        string     `json:"name"`
	Path        string     `json:"path"`
	Kind        string     `json:"kind"` // "file" or "dir"
	Size        int        `json:"size"`
	ContentHash string     `json:"content_hash"`
	RemoteURL   string     `json:"remote_url"`
	Children    []TreeNode `json:"children,omitempty"`
}

// DiffStatus classifies a file-level change within a two-ref comparison.
type DiffStatus string

const (
	DiffAdded    DiffStatus = "added"
	DiffRemoved  DiffStatus = "removed"
	DiffModified DiffStatus = "modified"
	DiffRenamed  DiffStatus = "renamed"
)

// FileDiff is one file's change record within a two-ref comparison. Hunks
// holds the raw @@ header lines in appearance order.
type FileDiff struct {
	Path      string     `json:"path"`
	OldPath   string     `json:"old_path,omitempty"`
	Status    DiffStatus `json:"status"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Changes   int        `json:"changes"`
	Hunks     []string   `json:"hunks"`
}

// FileStat is the authoritative per-file stat entry from the compare
// metadata response.
type FileStat struct {
	Filename         string
	PreviousFilename string
	Status           string
	Additions        int
	Deletions        int
	Changes          int
}

// CompareData is the structured half of a two-ref comparison.
type CompareData struct {
	AheadBy      int        `json:"ahead_by"`
	BehindBy     int        `json:"behind_by"`
	TotalCommits int        `json:"total_commits"`
	Status       string     `json:"status"`
	Files        []FileStat `json:"-"`
}

// AccountInfo is the public projection of a LinkedAccount for the
// connection-status endpoint.
type AccountInfo struct {
	UID       string `json:"uid"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// ConnectionStatus reports which external accounts a user has linked.
type ConnectionStatus struct {
	Connected bool          `json:"connected"`
	Accounts  []AccountInfo `json:"accounts"`
}
