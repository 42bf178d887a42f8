package repository

import (
	"context"

	"github.com/evikzub/CVTransformer/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
// Lookups that miss return an error wrapping apperrors.ErrNotFound.
type UserRepository interface {
	// Create inserts a new user. The store decides the role: the first user
	// created in an empty store becomes admin, every later one a plain user.
	// The count and insert happen atomically.
	Create(ctx context.Context, nu domain.NewUser) (*domain.User, error)

	// GetByID retrieves a user by internal identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByRemoteID retrieves a user by remote tracker identity.
	GetByRemoteID(ctx context.Context, remoteID int64) (*domain.User, error)

	// GetByUsername retrieves a user by exact username.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// TouchLastLogin sets the last-login timestamp to now.
	TouchLastLogin(ctx context.Context, id string) error

	// IncrementConversionCount adds one to the user's conversion counter.
	IncrementConversionCount(ctx context.Context, id string) error

	// SetRole changes the role of a user. Roles outside domain.ValidRoles are
	// rejected with an invalid input error.
	SetRole(ctx context.Context, id, role string) error

	// ListAll returns every user, newest first.
	ListAll(ctx context.Context) ([]*domain.User, error)

	// Delete removes a user.
	Delete(ctx context.Context, id string) error
}

// IdentityCache caches remote identities resolved by login name.
type IdentityCache interface {
	// Get returns the cached identity for login, or an error wrapping
	// apperrors.ErrNotFound on a miss.
	Get(ctx context.Context, login string) (*domain.RemoteIdentity, error)

	// Set stores identity under its login.
	Set(ctx context.Context, identity *domain.RemoteIdentity) error
}
