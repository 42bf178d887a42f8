// Package service holds the business logic: the session broker that turns
// remote credentials into local sessions, and the ticket engine that queries
// the remote tracker on behalf of a session.
package service

import (
	"context"

	"github.com/evikzub/CVTransformer/internal/domain"
)

// EventPublisher publishes domain events. Publishing is best effort: the
// services log failures and carry on.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
	PublishUserLoggedIn(ctx context.Context, user *domain.User) error
	PublishUserRoleChanged(ctx context.Context, userID, role string) error
	PublishUserDeleted(ctx context.Context, userID string) error
	PublishTicketCreated(ctx context.Context, user *domain.User, ticket *domain.Ticket, mode domain.AuthMode, conversion bool) error
}
