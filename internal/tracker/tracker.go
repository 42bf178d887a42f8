// Package tracker defines the contract with the remote issue tracker. It is
// the only boundary through which the application talks to the network
// about issues and remote accounts.
package tracker

import (
	"context"

	"github.com/evikzub/CVTransformer/internal/domain"
)

// AssignToMe is the assignee token meaning "the authenticated account".
const AssignToMe = "me"

// Auth selects the credential a remote call is made with.
type Auth struct {
	Mode        domain.AuthMode
	Credentials domain.Credentials
}

// ActAsUser authorizes calls with the user's own credentials.
func ActAsUser(c domain.Credentials) Auth {
	return Auth{Mode: domain.AuthActAsUser, Credentials: c}
}

// SharedKey authorizes calls with the privileged shared key.
func SharedKey() Auth {
	return Auth{Mode: domain.AuthSharedKey}
}

// IssueFilter holds the constraints of an issue listing.
type IssueFilter struct {
	ProjectID string
	// AssignedTo is AssignToMe, a remote user id, or "" for no assignment scope.
	AssignedTo string
	// Status is empty when the status constraint is omitted.
	Status     domain.StatusFilter
	DateRange  *domain.DateRange
	Search     string
	TrackerIDs []int64
	Limit      int
	Offset     int
}

// IssueList is one page of raw issues. TotalCount is nil when the remote
// did not report one.
type IssueList struct {
	Issues     []domain.RawIssue
	TotalCount *int
}

// NewIssue is the payload of an issue creation.
type NewIssue struct {
	ProjectID   string
	Subject     string
	Description string
	// AssignedTo is AssignToMe, a remote user id, or "" to leave unassigned.
	AssignedTo string
}

// IssueTracker is the remote issue tracking service. Implementations map
// failures onto apperrors: bad credentials to ErrInvalidCredentials,
// transport failures to ErrRemoteUnreachable and undecodable replies to
// ErrMalformedResponse.
type IssueTracker interface {
	// AuthenticateByPassword returns the identity owning the credentials.
	AuthenticateByPassword(ctx context.Context, username, password string) (*domain.RemoteIdentity, error)

	// LookupIdentityByLogin resolves a login name with the shared key.
	LookupIdentityByLogin(ctx context.Context, login string) (*domain.RemoteIdentity, error)

	// ListIssues returns one page of issues matching filter.
	ListIssues(ctx context.Context, auth Auth, filter IssueFilter) (*IssueList, error)

	// CreateIssue creates an issue and returns the stored record.
	CreateIssue(ctx context.Context, auth Auth, issue NewIssue) (*domain.RawIssue, error)

	// GetIssue fetches a single issue by id.
	GetIssue(ctx context.Context, auth Auth, id int64) (*domain.RawIssue, error)

	// Ping checks that the tracker answers.
	Ping(ctx context.Context) error
}
