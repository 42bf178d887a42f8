// Package redmine implements tracker.IssueTracker against the Redmine REST API.
package redmine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/evikzub/CVTransformer/internal/domain"
	"github.com/evikzub/CVTransformer/internal/tracker"
	apperrors "github.com/evikzub/CVTransformer/pkg/errors"
	"github.com/evikzub/CVTransformer/pkg/httpclient"
)

const (
	remoteName   = "redmine"
	apiKeyHeader = "X-Redmine-API-Key"

	// Defaults applied to every created issue.
	defaultTrackerID  = 1
	defaultStatusID   = 1
	defaultPriorityID = 2

	defaultAuthTimeout  = 10 * time.Second
	defaultQueryTimeout = 15 * time.Second

	maxResponseBytes = 4 << 20
)

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds the Redmine connection settings.
type Config struct {
	BaseURL          string
	APIKey           string
	DefaultProjectID string
	AuthTimeout      time.Duration
	QueryTimeout     time.Duration
}

var _ tracker.IssueTracker = (*Client)(nil)

// Client talks to a Redmine server.
type Client struct {
	cfg    Config
	http   HTTPDoer
	logger *slog.Logger
}

// NewClient creates a Redmine client. The base URL is required.
func NewClient(cfg Config, doer HTTPDoer, logger *slog.Logger) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("redmine base url is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid redmine base url: %w", err)
	}
	if cfg.DefaultProjectID == "" {
		cfg.DefaultProjectID = "1"
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = defaultAuthTimeout
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	return &Client{cfg: cfg, http: doer, logger: logger}, nil
}

// DefaultProjectID returns the project used when none is given.
func (c *Client) DefaultProjectID() string {
	return c.cfg.DefaultProjectID
}

// HasAPIKey reports whether a shared key is configured.
func (c *Client) HasAPIKey() bool {
	return c.cfg.APIKey != ""
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

type userEnvelope struct {
	User *domain.RemoteIdentity `json:"user"`
}

type usersEnvelope struct {
	Users []domain.RemoteIdentity `json:"users"`
}

// AuthenticateByPassword asks Redmine which account owns the credentials.
func (c *Client) AuthenticateByPassword(ctx context.Context, username, password string) (*domain.RemoteIdentity, error) {
	if username == "" || password == "" {
		return nil, apperrors.InvalidCredentials()
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.AuthTimeout)
	defer cancel()

	var env userEnvelope
	err := c.doJSON(ctx, tracker.ActAsUser(domain.Credentials{Username: username, Password: password}),
		http.MethodGet, "/users/current.json", nil, nil, http.StatusOK, &env)
	if err != nil {
		if errors.Is(err, apperrors.ErrForbidden) {
			return nil, apperrors.InvalidCredentials()
		}
		return nil, err
	}

	if env.User == nil || env.User.ID == 0 {
		return nil, apperrors.MalformedResponse("cannot retrieve identity")
	}
	if env.User.Login == "" {
		env.User.Login = username
	}

	return env.User, nil
}

// LookupIdentityByLogin finds the account whose login equals login exactly.
func (c *Client) LookupIdentityByLogin(ctx context.Context, login string) (*domain.RemoteIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AuthTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("name", login)

	var env usersEnvelope
	if err := c.doJSON(ctx, tracker.SharedKey(), http.MethodGet, "/users.json", q, nil, http.StatusOK, &env); err != nil {
		return nil, err
	}

	for i := range env.Users {
		if env.Users[i].Login == login {
			return &env.Users[i], nil
		}
	}

	return nil, apperrors.NotFound("remote user", login)
}

// ---------------------------------------------------------------------------
// Issues
// ---------------------------------------------------------------------------

type issuesEnvelope struct {
	Issues     []domain.RawIssue `json:"issues"`
	TotalCount *int              `json:"total_count"`
}

type issueEnvelope struct {
	Issue *domain.RawIssue `json:"issue"`
}

// ListIssues returns one page of issues.
func (c *Client) ListIssues(ctx context.Context, auth tracker.Auth, filter tracker.IssueFilter) (*tracker.IssueList, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	var env issuesEnvelope
	if err := c.doJSON(ctx, auth, http.MethodGet, "/issues.json", c.issueQuery(filter), nil, http.StatusOK, &env); err != nil {
		return nil, err
	}

	issues := env.Issues
	if issues == nil {
		issues = []domain.RawIssue{}
	}

	return &tracker.IssueList{Issues: issues, TotalCount: env.TotalCount}, nil
}

// issueQuery encodes filter with Redmine's f[]/op[]/v[] filter syntax.
func (c *Client) issueQuery(filter tracker.IssueFilter) url.Values {
	q := url.Values{}
	q.Set("set_filter", "1")
	q.Set("sort", "updated_on:desc")

	project := filter.ProjectID
	if project == "" {
		project = c.cfg.DefaultProjectID
	}
	q.Set("project_id", project)

	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}

	switch filter.Status {
	case domain.StatusOpen:
		addFilter(q, "status_id", "o")
	case domain.StatusClosed:
		addFilter(q, "status_id", "c")
	case domain.StatusAll:
		addFilter(q, "status_id", "*")
	}

	if filter.AssignedTo != "" {
		addFilter(q, "assigned_to_id", "=", filter.AssignedTo)
	}

	if len(filter.TrackerIDs) > 0 {
		ids := make([]string, len(filter.TrackerIDs))
		for i, id := range filter.TrackerIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		addFilter(q, "tracker_id", "=", ids...)
	}

	if r := filter.DateRange; r != nil {
		if r.End != nil {
			addFilter(q, "created_on", "><", r.StartDay(), r.EndDay())
		} else {
			addFilter(q, "created_on", ">=", r.StartDay())
		}
	}

	if s := strings.TrimSpace(filter.Search); s != "" {
		addFilter(q, "any_searchable", "~", s)
	}

	return q
}

func addFilter(q url.Values, field, op string, values ...string) {
	q.Add("f[]", field)
	q.Set("op["+field+"]", op)
	for _, v := range values {
		q.Add("v["+field+"][]", v)
	}
}

type createIssueRequest struct {
	Issue createIssueBody `json:"issue"`
}

type createIssueBody struct {
	ProjectID    string `json:"project_id"`
	Subject      string `json:"subject"`
	Description  string `json:"description"`
	TrackerID    int    `json:"tracker_id"`
	StatusID     int    `json:"status_id"`
	PriorityID   int    `json:"priority_id"`
	AssignedToID any    `json:"assigned_to_id,omitempty"`
}

// CreateIssue creates an issue. Redmine answers 201 with the stored record.
func (c *Client) CreateIssue(ctx context.Context, auth tracker.Auth, issue tracker.NewIssue) (*domain.RawIssue, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	body := createIssueBody{
		ProjectID:   issue.ProjectID,
		Subject:     issue.Subject,
		Description: issue.Description,
		TrackerID:   defaultTrackerID,
		StatusID:    defaultStatusID,
		PriorityID:  defaultPriorityID,
	}
	if body.ProjectID == "" {
		body.ProjectID = c.cfg.DefaultProjectID
	}
	if issue.AssignedTo != "" {
		if id, err := strconv.ParseInt(issue.AssignedTo, 10, 64); err == nil {
			body.AssignedToID = id
		} else {
			body.AssignedToID = issue.AssignedTo
		}
	}

	var env issueEnvelope
	err := c.doJSON(ctx, auth, http.MethodPost, "/issues.json", nil, createIssueRequest{Issue: body}, http.StatusCreated, &env)
	if err != nil {
		return nil, err
	}
	if env.Issue == nil || env.Issue.ID == 0 {
		return nil, apperrors.MalformedResponse("created issue missing from response")
	}

	return env.Issue, nil
}

// GetIssue fetches an issue by id.
func (c *Client) GetIssue(ctx context.Context, auth tracker.Auth, id int64) (*domain.RawIssue, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	path := "/issues/" + strconv.FormatInt(id, 10) + ".json"

	var env issueEnvelope
	if err := c.doJSON(ctx, auth, http.MethodGet, path, nil, nil, http.StatusOK, &env); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("ticket", strconv.FormatInt(id, 10))
		}
		return nil, err
	}
	if env.Issue == nil {
		return nil, apperrors.MalformedResponse("issue missing from response")
	}

	return env.Issue, nil
}

// Ping lists a single project to check reachability.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AuthTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("limit", "1")

	req, err := c.newRequest(ctx, http.MethodGet, "/projects.json", q, nil)
	if err != nil {
		return err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return apperrors.RemoteUnreachable(err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return apperrors.RemoteUnreachable(fmt.Errorf("%s returned status %d", remoteName, resp.StatusCode))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func apiKeyMissing() *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "TRACKER_NOT_CONFIGURED",
		Message: "shared API key is not configured",
		Status:  http.StatusServiceUnavailable,
		Err:     apperrors.ErrServiceUnavail,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, payload any) (*http.Request, error) {
	target := c.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", remoteName, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", remoteName, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) authorize(req *http.Request, auth tracker.Auth) error {
	switch auth.Mode {
	case domain.AuthActAsUser:
		if !auth.Credentials.Valid() {
			return apperrors.InvalidCredentials()
		}
		req.SetBasicAuth(auth.Credentials.Username, auth.Credentials.Password)
	case domain.AuthSharedKey:
		if c.cfg.APIKey == "" {
			return apiKeyMissing()
		}
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	default:
		return fmt.Errorf("unknown auth mode %q", auth.Mode)
	}
	return nil
}

// doJSON performs a call and decodes a successful reply into out. Any
// status other than want is mapped through httpclient.ParseResponseError.
func (c *Client) doJSON(ctx context.Context, auth tracker.Auth, method, path string, query url.Values, payload any, want int, out any) error {
	req, err := c.newRequest(ctx, method, path, query, payload)
	if err != nil {
		return err
	}
	if err := c.authorize(req, auth); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		msg := "redmine request failed"
		if httpclient.IsBreakerRejection(err) {
			msg = "redmine request rejected by circuit breaker"
		}
		c.logger.WarnContext(ctx, msg,
			slog.String("method", method),
			slog.String("path", path),
			slog.String("auth_mode", string(auth.Mode)),
			slog.String("error", err.Error()),
		)
		return apperrors.RemoteUnreachable(err)
	}

	c.logger.DebugContext(ctx, "redmine request",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("auth_mode", string(auth.Mode)),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode != want {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			drain(resp)
			return apperrors.MalformedResponse(fmt.Sprintf("%s returned unexpected status %d", remoteName, resp.StatusCode))
		}
		return httpclient.ParseResponseError(resp, remoteName)
	}
	defer drain(resp)

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return apperrors.MalformedResponse(fmt.Sprintf("decode %s response: %v", remoteName, err))
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
}
