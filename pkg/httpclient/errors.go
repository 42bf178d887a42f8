package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/evikzub/CVTransformer/pkg/errors"
)

// RemoteErrorResponse is the error body the issue tracker sends with 4xx
// replies, e.g. {"errors":["Subject cannot be blank"]}.
type RemoteErrorResponse struct {
	Errors []string `json:"errors"`
}

// ParseResponseError drains and closes a non-2xx response and maps it onto
// an AppError. Validation messages from the remote body are kept.
func ParseResponseError(resp *http.Response, remote string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.RemoteUnreachable(fmt.Errorf("%s returned status %d, read body: %w", remote, resp.StatusCode, err))
	}

	message := http.StatusText(resp.StatusCode)
	var parsed RemoteErrorResponse
	if json.Unmarshal(body, &parsed) == nil && len(parsed.Errors) > 0 {
		message = strings.Join(parsed.Errors, "; ")
	}

	return mapStatus(resp.StatusCode, remote, message)
}

func mapStatus(status int, remote, message string) error {
	qualified := fmt.Sprintf("%s: %s", remote, message)

	switch {
	case status == http.StatusUnauthorized:
		return apperrors.InvalidCredentials()
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualified)
	case status == http.StatusNotFound:
		return apperrors.NotFound(remote+" resource", message)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualified)
	case status == http.StatusGone:
		return apperrors.Gone(qualified)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(qualified)
	case status >= 500:
		return apperrors.RemoteUnreachable(fmt.Errorf("%s returned status %d", remote, status))
	default:
		return apperrors.MalformedResponse(fmt.Sprintf("%s returned unexpected status %d", remote, status))
	}
}
