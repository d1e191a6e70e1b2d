// Package credential resolves the correct stored OAuth token among a user's
// possibly many linked accounts for the same provider.
package credential

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	apperrors "code-review-backend/internal/errors"
	"code-review-backend/internal/model"
)

// AccountStore is the slice of the persistence layer the resolver needs.
type AccountStore interface {
	GetLinkedAccount(ctx context.Context, userID int64, provider, externalUID string) (model.LinkedAccount, error)
	FirstLinkedAccount(ctx context.Context, userID int64, provider string) (model.LinkedAccount, error)
	ListLinkedAccounts(ctx context.Context, userID int64, provider string) ([]model.LinkedAccount, error)
}

// Resolver looks up linked-account tokens. It never substitutes a mismatched
// credential: when a specific account is requested and absent, resolution
// fails instead of falling back to another account of the same provider.
type Resolver struct {
	store  AccountStore
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(store AccountStore, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve returns the linked account matching (user, provider, externalUID).
// With an empty externalUID the first stored account is used; which one is
// "first" is unspecified when several exist, so callers needing determinism
// must pass the uid.
func (r *Resolver) Resolve(ctx context.Context, userID int64, provider, externalUID string) (model.LinkedAccount, error) {
	var (
		acct model.LinkedAccount
		err  error
	)
	if externalUID != "" {
		acct, err = r.store.GetLinkedAccount(ctx, userID, provider, externalUID)
	} else {
		acct, err = r.store.FirstLinkedAccount(ctx, userID, provider)
	}
	if stderrors.Is(err, pgx.ErrNoRows) {
		return model.LinkedAccount{}, &apperrors.ErrCredentialNotFound{Provider: provider, ExternalUID: externalUID}
	}
	if err != nil {
		return model.LinkedAccount{}, err
	}

	if acct.AccessToken == "" {
		r.logger.Warn("linked account has no stored token",
			"user_id", userID, "provider", provider, "uid", acct.ExternalUID)
		return model.LinkedAccount{}, &apperrors.ErrCredentialNotFound{Provider: provider, ExternalUID: acct.ExternalUID}
	}
	return acct, nil
}

// ConnectionStatus lists the accounts a user has linked for a provider.
func (r *Resolver) ConnectionStatus(ctx context.Context, userID int64, provider string) (model.ConnectionStatus, error) {
	accounts, err := r.store.ListLinkedAccounts(ctx, userID, provider)
	if err != nil {
		return model.ConnectionStatus{}, err
	}

	status := model.ConnectionStatus{
		Connected: len(accounts) > 0,
		Accounts:  make([]model.AccountInfo, 0, len(accounts)),
	}
	for _, acct := range accounts {
		status.Accounts = append(status.Accounts, model.AccountInfo{
			UID:       acct.ExternalUID,
			Username:  acct.Username,
			Email:     acct.Email,
			AvatarURL: acct.AvatarURL,
		})
	}
	return status, nil
}
