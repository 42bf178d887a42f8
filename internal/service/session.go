package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/evikzub/CVTransformer/internal/auth"
	"github.com/evikzub/CVTransformer/internal/domain"
	"github.com/evikzub/CVTransformer/internal/repository"
	"github.com/evikzub/CVTransformer/internal/tracker"
	apperrors "github.com/evikzub/CVTransformer/pkg/errors"
)

// SessionService authenticates users against the remote tracker and keeps
// the per-caller session consistent with the signed token it carries.
type SessionService struct {
	users   repository.UserRepository
	tracker tracker.IssueTracker
	tokens  *auth.JWTManager
	events  EventPublisher
	logger  *slog.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(
	users repository.UserRepository,
	tracker tracker.IssueTracker,
	tokens *auth.JWTManager,
	events EventPublisher,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		users:   users,
		tracker: tracker,
		tokens:  tokens,
		events:  events,
		logger:  logger,
	}
}

// --- Authentication ---

// Login verifies username and password with the remote tracker. On success
// the local user is created or touched, a token is issued, the credentials
// are cached in sess and sess becomes Authenticated. On failure sess is
// returned to Anonymous and the error carries the failure kind.
func (s *SessionService) Login(ctx context.Context, sess *domain.Session, username, password string) (*domain.User, error) {
	sess.BeginLogin()

	user, token, err := s.authenticate(ctx, username, password)
	if err != nil {
		sess.AbortLogin()
		return nil, err
	}

	sess.Authenticate(token)
	if err := sess.SetCredentials(domain.Credentials{Username: username, Password: password}); err != nil {
		s.logger.WarnContext(ctx, "failed to cache credentials",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.events.PublishUserLoggedIn(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user logged in event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.Int64("remote_id", user.RemoteID),
	)
	return user, nil
}

func (s *SessionService) authenticate(ctx context.Context, username, password string) (*domain.User, string, error) {
	identity, err := s.tracker.AuthenticateByPassword(ctx, username, password)
	if err != nil {
		return nil, "", err
	}
	if identity == nil || identity.ID == 0 {
		return nil, "", apperrors.MalformedResponse("cannot retrieve identity")
	}

	user, err := s.resolveUser(ctx, identity, username)
	if err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// resolveUser returns the local user bound to identity, creating it on the
// first login.
func (s *SessionService) resolveUser(ctx context.Context, identity *domain.RemoteIdentity, username string) (*domain.User, error) {
	user, err := s.users.GetByRemoteID(ctx, identity.ID)
	switch {
	case err == nil:
		if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
			return nil, err
		}
		return user, nil
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, err
	}

	login := strings.TrimSpace(identity.Login)
	if login == "" {
		login = username
	}

	user, err = s.users.Create(ctx, domain.NewUser{
		RemoteID: identity.ID,
		Username: login,
		Profile:  identity.Profile(),
	})
	if errors.Is(err, apperrors.ErrAlreadyExists) {
		// Lost a race with a concurrent first login of the same identity.
		return s.users.GetByRemoteID(ctx, identity.ID)
	}
	if err != nil {
		return nil, err
	}

	if err := s.events.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)
	return user, nil
}

// CurrentUser returns the user the session is authenticated as. A token
// inside its refresh window is rotated first. An invalid token, or one whose
// user no longer exists, expires the session.
func (s *SessionService) CurrentUser(ctx context.Context, sess *domain.Session) (*domain.User, bool) {
	token := sess.Token()
	if token == "" {
		return nil, false
	}

	if s.tokens.ShouldRefresh(token) {
		if fresh, ok := s.tokens.Refresh(token); ok {
			sess.ReplaceToken(fresh)
			token = fresh
		}
	}

	claims, ok := s.tokens.Verify(token)
	if !ok {
		sess.Expire()
		return nil, false
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			sess.Expire()
		} else {
			s.logger.ErrorContext(ctx, "failed to load session user",
				slog.String("user_id", claims.UserID),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}
	return user, true
}

// IsAuthenticated reports whether the session resolves to a user.
func (s *SessionService) IsAuthenticated(ctx context.Context, sess *domain.Session) bool {
	_, ok := s.CurrentUser(ctx, sess)
	return ok
}

// IsAdmin reports whether the session resolves to an admin.
func (s *SessionService) IsAdmin(ctx context.Context, sess *domain.Session) bool {
	user, ok := s.CurrentUser(ctx, sess)
	return ok && user.IsAdmin()
}

// Logout clears the token and cached credentials. Calling it again is a no-op.
func (s *SessionService) Logout(sess *domain.Session) {
	sess.Clear()
}

// --- Credential cache ---

// CachedCredentials returns the credentials captured at login or stored later.
func (s *SessionService) CachedCredentials(sess *domain.Session) (domain.Credentials, bool) {
	return sess.Credentials()
}

// StoreCredentials replaces the cached credentials of an authenticated session.
func (s *SessionService) StoreCredentials(sess *domain.Session, username, password string) error {
	c := domain.Credentials{Username: strings.TrimSpace(username), Password: password}
	if !c.Valid() {
		return apperrors.InvalidInput("username and password are required")
	}
	if sess.State() != domain.StateAuthenticated {
		return apperrors.Unauthorized("login required")
	}
	if err := sess.SetCredentials(c); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	return nil
}

// ClearCachedCredentials drops the cached credentials, leaving the token.
func (s *SessionService) ClearCachedCredentials(sess *domain.Session) {
	sess.ClearCredentials()
}

// --- Administration ---
//
// Callers check IsAdmin before invoking these.

// ListUsers returns every local user, newest first.
func (s *SessionService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.users.ListAll(ctx)
}

// SetRole changes the role of a user.
func (s *SessionService) SetRole(ctx context.Context, id, role string) error {
	if !domain.IsValidRole(role) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid role %q", role))
	}
	if err := s.users.SetRole(ctx, id, role); err != nil {
		return err
	}

	if err := s.events.PublishUserRoleChanged(ctx, id, role); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user role changed event",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user role changed",
		slog.String("user_id", id),
		slog.String("role", role),
	)
	return nil
}

// DeleteUser removes a user. Sessions of the deleted user expire on their
// next CurrentUser call.
func (s *SessionService) DeleteUser(ctx context.Context, id string) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.events.PublishUserDeleted(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user deleted event",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user deleted", slog.String("user_id", id))
	return nil
}

// Stats aggregates the user table.
func (s *SessionService) Stats(ctx context.Context) (domain.UserStats, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return domain.UserStats{}, err
	}
	return domain.ComputeUserStats(users), nil
}

// RecordConversion adds one to the user's conversion counter.
func (s *SessionService) RecordConversion(ctx context.Context, id string) error {
	return s.users.IncrementConversionCount(ctx, id)
}

// CheckTracker reports whether the remote tracker answers.
func (s *SessionService) CheckTracker(ctx context.Context) error {
	return s.tracker.Ping(ctx)
}
