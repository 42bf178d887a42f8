package domain

import (
	"strings"
	"time"
)

// DefaultPerPage is the number of tickets shown per page.
const DefaultPerPage = 15

// IDName is a flattened id/name reference on a Ticket.
type IDName struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Ticket is the normalized view of a remote issue. It is rebuilt from the
// remote record on every query and never stored.
type Ticket struct {
	ID          int64      `json:"id"`
	Subject     string     `json:"subject"`
	Description string     `json:"description"`
	Status      IDName     `json:"status"`
	Priority    IDName     `json:"priority"`
	Tracker     IDName     `json:"tracker"`
	Author      IDName     `json:"author"`
	AssignedTo  *IDName    `json:"assigned_to,omitempty"`
	Project     IDName     `json:"project"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// TicketPage is one page of a ticket query. When Estimated is set the
// remote did not report a total and TotalCount is a lower-bound guess.
type TicketPage struct {
	Tickets    []Ticket `json:"tickets"`
	TotalCount int      `json:"total_count"`
	Estimated  bool     `json:"estimated"`
	Page       int      `json:"page"`
	PerPage    int      `json:"per_page"`
	TotalPages int      `json:"total_pages"`
	HasNext    bool     `json:"has_next"`
}

// TicketQuery holds the caller supplied filters of a ticket listing.
type TicketQuery struct {
	Status       StatusFilter
	Date         DateFilter
	Search       string
	Page         int
	AssignedToMe bool
}

// CreateTicketInput is the input of a ticket creation.
type CreateTicketInput struct {
	Subject       string `json:"subject"`
	Description   string `json:"description"`
	CandidateName string `json:"candidate_name"`
	Stack         string `json:"stack"`
	AssigneeID    *int64 `json:"assignee_id,omitempty"`
}

// IsConversion reports whether the ticket tracks a candidate CV conversion.
func (in CreateTicketInput) IsConversion() bool {
	return strings.TrimSpace(in.CandidateName) != "" && strings.TrimSpace(in.Stack) != ""
}

// FormatSubject applies the candidate naming convention. With both a
// candidate name and a stack the subject becomes "{name} ({stack})", followed
// by " - {subject}" when subject is non-empty and not equal to that prefix.
// Otherwise subject is returned unchanged.
func FormatSubject(subject, candidateName, stack string) string {
	candidateName = strings.TrimSpace(candidateName)
	stack = strings.TrimSpace(stack)
	if candidateName == "" || stack == "" {
		return subject
	}

	prefix := candidateName + " (" + stack + ")"
	subject = strings.TrimSpace(subject)
	if subject == "" || subject == prefix {
		return prefix
	}
	return prefix + " - " + subject
}

// NormalizeIssue projects a raw remote issue onto a Ticket. Missing
// sub-objects become zero values and a missing assignee stays nil.
// Timestamps that are absent or do not parse are left nil.
func NormalizeIssue(raw RawIssue) Ticket {
	t := Ticket{
		ID:          raw.ID,
		Subject:     raw.Subject,
		Description: raw.Description,
		Status:      flatten(raw.Status),
		Priority:    flatten(raw.Priority),
		Tracker:     flatten(raw.Tracker),
		Author:      flatten(raw.Author),
		Project:     flatten(raw.Project),
		CreatedAt:   parseRemoteTime(raw.CreatedOn),
		UpdatedAt:   parseRemoteTime(raw.UpdatedOn),
	}
	if raw.AssignedTo != nil {
		a := flatten(raw.AssignedTo)
		t.AssignedTo = &a
	}
	return t
}

func flatten(ref *RemoteRef) IDName {
	if ref == nil {
		return IDName{}
	}
	return IDName{ID: ref.ID, Name: ref.Name}
}

func parseRemoteTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
