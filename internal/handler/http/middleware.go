package http

import (
	"net/http"
	"strings"

	"github.com/evikzub/CVTransformer/internal/domain"
	apperrors "github.com/evikzub/CVTransformer/pkg/errors"
	"github.com/evikzub/CVTransformer/pkg/httputil"
)

// ContentTypeJSON enforces that requests with a body have Content-Type:
// application/json. Bodyless requests such as logout pass through.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength != 0 {
			ct := r.Header.Get("Content-Type")
			if !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RejectExpired answers 401 TOKEN_INVALID for a session whose token was
// found invalid, so clients can tell an expired login from a missing one.
// The session stays expired until the next login.
func RejectExpired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess := sessionFromContext(r.Context()); sess != nil && sess.State() == domain.StateExpired {
			httputil.WriteError(w, r, apperrors.TokenInvalid(), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
