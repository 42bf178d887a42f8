package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/evikzub/CVTransformer/internal/domain"
	"github.com/evikzub/CVTransformer/internal/service"
	"github.com/evikzub/CVTransformer/internal/session"
	"github.com/evikzub/CVTransformer/pkg/logger"
)

// SessionCookieName is the cookie carrying the opaque session id.
const SessionCookieName = "cvt_session"

type ctxKey int

const (
	sessionKey ctxKey = iota
	userKey
)

// sessionLoader binds every request to a session from the store, creating
// one when the cookie is missing or stale, and resolves the session user.
type sessionLoader struct {
	store    *session.Store
	sessions *service.SessionService
	secure   bool
	logger   *slog.Logger
}

func (l *sessionLoader) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := l.lookup(r)
		if sess == nil {
			sess = l.store.Create()
			l.setCookie(w, sess.ID())
		}

		ctx := context.WithValue(r.Context(), sessionKey, sess)
		ctx = logger.WithSessionID(ctx, fingerprint(sess.ID()))

		if user, ok := l.sessions.CurrentUser(ctx, sess); ok {
			ctx = context.WithValue(ctx, userKey, user)
			ctx = logger.WithUserID(ctx, user.ID)
		}
		ctx = logger.NewContext(ctx, logger.WithContext(ctx, l.logger))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (l *sessionLoader) lookup(r *http.Request) *domain.Session {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	sess, ok := l.store.Get(c.Value)
	if !ok {
		return nil
	}
	return sess
}

// rotate replaces the request's session with a fresh one. Called on login so
// a session id handed out before authentication never becomes privileged.
func (l *sessionLoader) rotate(w http.ResponseWriter, old *domain.Session) *domain.Session {
	if old != nil {
		l.store.Delete(old.ID())
	}
	sess := l.store.Create()
	l.setCookie(w, sess.ID())
	return sess
}

func (l *sessionLoader) destroy(w http.ResponseWriter, sess *domain.Session) {
	if sess != nil {
		l.store.Delete(sess.ID())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   l.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (l *sessionLoader) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   l.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionIdentity adapts the resolved user to middleware.RequireAuth.
func sessionIdentity(r *http.Request) (userID, role string, ok bool) {
	user := userFromContext(r.Context())
	if user == nil {
		return "", "", false
	}
	return user.ID, user.Role, true
}

func sessionFromContext(ctx context.Context) *domain.Session {
	sess, _ := ctx.Value(sessionKey).(*domain.Session)
	return sess
}

func userFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userKey).(*domain.User)
	return user
}

// fingerprint is a log-safe stand-in for a session id.
func fingerprint(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:6])
}
