package domain

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Role Validation Tests
// ============================================================================

func TestValidRoles_ContainsAll(t *testing.T) {
	assert.ElementsMatch(t, []string{RoleAdmin, RoleUser}, ValidRoles())
}

func TestIsValidRole(t *testing.T) {
	assert.True(t, IsValidRole(RoleAdmin))
	assert.True(t, IsValidRole(RoleUser))
	assert.False(t, IsValidRole(""))
	assert.False(t, IsValidRole("ADMIN"))
	assert.False(t, IsValidRole("superuser"))
}

// ============================================================================
// User Tests
// ============================================================================

func TestUser_IsAdmin(t *testing.T) {
	var nilUser *User
	assert.False(t, nilUser.IsAdmin())
	assert.False(t, (&User{Role: RoleUser}).IsAdmin())
	assert.True(t, (&User{Role: RoleAdmin}).IsAdmin())
}

func TestComputeUserStats(t *testing.T) {
	stats := ComputeUserStats([]*User{
		{Role: RoleAdmin, ConversionCount: 3},
		{Role: RoleUser, ConversionCount: 4},
		{Role: RoleUser},
	})
	assert.Equal(t, UserStats{TotalUsers: 3, TotalAdmins: 1, TotalConversions: 7}, stats)

	assert.Equal(t, UserStats{}, ComputeUserStats(nil))
}

// ============================================================================
// Remote Identity Tests
// ============================================================================

func TestRemoteIdentity_Profile(t *testing.T) {
	payload := `{
		"id": 7, "login": "jdoe", "firstname": "Jane", "lastname": "Doe",
		"custom_fields": [
			{"id": 1, "name": "Department", "value": "Recruiting"},
			{"id": 2, "name": "Skills", "value": ["Go", "SQL"]},
			{"id": 3, "name": "", "value": "ignored"},
			{"id": 4, "name": "Empty"}
		]
	}`

	var id RemoteIdentity
	require.NoError(t, json.Unmarshal([]byte(payload), &id))

	assert.Equal(t, int64(7), id.ID)
	assert.Equal(t, "jdoe", id.Login)
	assert.Equal(t, map[string]string{
		"Department": "Recruiting",
		"Skills":     "Go, SQL",
		"Empty":      "",
	}, id.Profile())
}

// ============================================================================
// Credentials Tests
// ============================================================================

func TestCredentials_NeverPrintPassword(t *testing.T) {
	c := Credentials{Username: "jdoe", Password: "hunter2"}
	assert.NotContains(t, fmt.Sprint(c), "hunter2")
	assert.NotContains(t, c.LogValue().String(), "hunter2")
	assert.Equal(t, slog.KindGroup, c.LogValue().Kind())
}

func TestCredentials_Valid(t *testing.T) {
	assert.True(t, Credentials{Username: "a", Password: "b"}.Valid())
	assert.False(t, Credentials{Username: "a"}.Valid())
	assert.False(t, Credentials{Password: "b"}.Valid())
}

// ============================================================================
// Session Tests
// ============================================================================

// xorSealer is a reversible stand-in for the secretbox sealer.
type xorSealer struct{ failOpen bool }

func (x xorSealer) Seal(p []byte) ([]byte, error) {
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = b ^ 0x5a
	}
	return out, nil
}

func (x xorSealer) Open(p []byte) ([]byte, error) {
	if x.failOpen {
		return nil, fmt.Errorf("open failed")
	}
	return x.Seal(p)
}

func TestSession_Lifecycle(t *testing.T) {
	s := NewSession("sess-1", nil)
	assert.Equal(t, "sess-1", s.ID())
	assert.Equal(t, StateAnonymous, s.State())
	assert.Empty(t, s.Token())

	s.BeginLogin()
	assert.Equal(t, StateAuthenticating, s.State())

	s.Authenticate("tok-1")
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, "tok-1", s.Token())

	s.ReplaceToken("tok-2")
	assert.Equal(t, "tok-2", s.Token())
	assert.Equal(t, StateAuthenticated, s.State())

	s.Expire()
	assert.Equal(t, StateExpired, s.State())
	assert.Empty(t, s.Token())

	s.Clear()
	s.Clear()
	assert.Equal(t, StateAnonymous, s.State())
}

func TestSession_ReplaceTokenIgnoredWithoutToken(t *testing.T) {
	s := NewSession("sess-1", nil)
	s.ReplaceToken("tok")
	assert.Empty(t, s.Token())
}

func TestSession_AbortLoginDropsState(t *testing.T) {
	s := NewSession("sess-1", nil)
	s.Authenticate("tok")
	require.NoError(t, s.SetCredentials(Credentials{Username: "u", Password: "p"}))

	s.BeginLogin()
	s.AbortLogin()

	assert.Equal(t, StateAnonymous, s.State())
	assert.Empty(t, s.Token())
	assert.False(t, s.HasCredentials())
}

func TestSession_CredentialsSealed(t *testing.T) {
	s := NewSession("sess-1", xorSealer{})
	require.NoError(t, s.SetCredentials(Credentials{Username: "jdoe", Password: "hunter2"}))
	assert.NotContains(t, string(s.creds), "hunter2")

	c, ok := s.Credentials()
	require.True(t, ok)
	assert.Equal(t, Credentials{Username: "jdoe", Password: "hunter2"}, c)

	s.ClearCredentials()
	_, ok = s.Credentials()
	assert.False(t, ok)
	assert.False(t, s.HasCredentials())
}

func TestSession_CredentialsPlain(t *testing.T) {
	s := NewSession("sess-1", nil)
	require.NoError(t, s.SetCredentials(Credentials{Username: "jdoe", Password: "pw"}))

	// Reading twice must not destroy the stored copy.
	_, ok := s.Credentials()
	require.True(t, ok)
	c, ok := s.Credentials()
	require.True(t, ok)
	assert.Equal(t, "pw", c.Password)
}

func TestSession_SetCredentialsRejectsIncomplete(t *testing.T) {
	s := NewSession("sess-1", nil)
	assert.Error(t, s.SetCredentials(Credentials{Username: "jdoe"}))
	assert.False(t, s.HasCredentials())
}

func TestSession_OpenFailureReportsAbsent(t *testing.T) {
	s := NewSession("sess-1", xorSealer{failOpen: true})
	require.NoError(t, s.SetCredentials(Credentials{Username: "jdoe", Password: "pw"}))
	_, ok := s.Credentials()
	assert.False(t, ok)
}

func TestSession_ClearWipesCredentials(t *testing.T) {
	s := NewSession("sess-1", nil)
	s.Authenticate("tok")
	require.NoError(t, s.SetCredentials(Credentials{Username: "jdoe", Password: "pw"}))
	buf := s.creds

	s.Clear()

	for _, b := range buf {
		require.Zero(t, b)
	}
	assert.Nil(t, s.creds)
}

func TestSession_Touch(t *testing.T) {
	s := NewSession("sess-1", nil)
	at := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	s.Touch(at)
	assert.Equal(t, at, s.LastSeen())
}

// ============================================================================
// Filter Tests
// ============================================================================

func TestParseStatusFilter(t *testing.T) {
	f, err := ParseStatusFilter("")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, f)

	for _, s := range []string{"open", "closed", "all"} {
		f, err := ParseStatusFilter(s)
		require.NoError(t, err)
		assert.Equal(t, StatusFilter(s), f)
	}

	_, err = ParseStatusFilter("pending")
	assert.Error(t, err)
}

func TestParseDateFilter(t *testing.T) {
	f, err := ParseDateFilter("")
	require.NoError(t, err)
	assert.Equal(t, DateThisWeek, f)

	for _, s := range []string{"this_week", "last_week", "this_month", "last_month", "all"} {
		f, err := ParseDateFilter(s)
		require.NoError(t, err)
		assert.Equal(t, DateFilter(s), f)
	}

	_, err = ParseDateFilter("yesterday")
	assert.Error(t, err)
}

func TestComputeDateRange(t *testing.T) {
	// 2024-05-15 is a Wednesday.
	wednesday := time.Date(2024, 5, 15, 16, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter DateFilter
		now    time.Time
		start  string
		end    string
	}{
		{"this week", DateThisWeek, wednesday, "2024-05-13", "2024-05-19"},
		{"last week", DateLastWeek, wednesday, "2024-05-06", "2024-05-12"},
		{"this month", DateThisMonth, wednesday, "2024-05-01", ""},
		{"last month", DateLastMonth, wednesday, "2024-04-01", ""},
		{"this week on monday", DateThisWeek, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), "2024-05-13", "2024-05-19"},
		{"this week on sunday", DateThisWeek, time.Date(2024, 5, 19, 23, 59, 0, 0, time.UTC), "2024-05-13", "2024-05-19"},
		{"last month in january", DateLastMonth, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), "2024-12-01", ""},
		{"last week across month", DateLastWeek, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), "2024-05-27", "2024-06-02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ComputeDateRange(tt.filter, tt.now)
			require.NotNil(t, r)
			assert.Equal(t, tt.start, r.StartDay())
			assert.Equal(t, tt.end, r.EndDay())
		})
	}
}

func TestComputeDateRange_WeeksDoNotOverlap(t *testing.T) {
	now := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	this := ComputeDateRange(DateThisWeek, now)
	last := ComputeDateRange(DateLastWeek, now)
	require.NotNil(t, this)
	require.NotNil(t, last)

	assert.True(t, last.End.Before(this.Start))
	assert.Equal(t, 24*time.Hour, this.Start.Sub(*last.End))
	assert.Equal(t, 6*24*time.Hour, last.End.Sub(last.Start))
}

func TestComputeDateRange_All(t *testing.T) {
	assert.Nil(t, ComputeDateRange(DateAll, time.Now()))
	assert.Nil(t, ComputeDateRange("bogus", time.Now()))
}

func TestSelectAuthMode(t *testing.T) {
	assert.Equal(t, AuthActAsUser, SelectAuthMode(true, false))
	assert.Equal(t, AuthSharedKey, SelectAuthMode(true, true))
	assert.Equal(t, AuthSharedKey, SelectAuthMode(false, false))
	assert.Equal(t, AuthSharedKey, SelectAuthMode(false, true))
}

// ============================================================================
// Ticket Tests
// ============================================================================

func TestFormatSubject(t *testing.T) {
	tests := []struct {
		name, subject, candidate, stack, want string
	}{
		{"full", "Fix bug", "Jane Doe", "Python", "Jane Doe (Python) - Fix bug"},
		{"empty subject", "", "Jane Doe", "Python", "Jane Doe (Python)"},
		{"subject equals prefix", "Jane Doe (Python)", "Jane Doe", "Python", "Jane Doe (Python)"},
		{"no candidate", "Fix bug", "", "Python", "Fix bug"},
		{"no stack", "Fix bug", "Jane Doe", "", "Fix bug"},
		{"nothing", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatSubject(tt.subject, tt.candidate, tt.stack))
		})
	}
}

func TestCreateTicketInput_IsConversion(t *testing.T) {
	assert.True(t, CreateTicketInput{CandidateName: "Jane", Stack: "Go"}.IsConversion())
	assert.False(t, CreateTicketInput{CandidateName: "Jane"}.IsConversion())
	assert.False(t, CreateTicketInput{CandidateName: " ", Stack: "Go"}.IsConversion())
}

func TestNormalizeIssue_Full(t *testing.T) {
	payload := `{
		"id": 42, "subject": "Jane Doe (Go)", "description": "cv",
		"status": {"id": 1, "name": "New"},
		"priority": {"id": 2, "name": "Normal"},
		"tracker": {"id": 5, "name": "CV"},
		"author": {"id": 7, "name": "Jane Recruiter"},
		"assigned_to": {"id": 8, "name": "Bob"},
		"project": {"id": 1, "name": "Hiring"},
		"created_on": "2024-05-15T10:00:00Z",
		"updated_on": "2024-05-16T11:30:00Z"
	}`
	var raw RawIssue
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))

	tk := NormalizeIssue(raw)

	assert.Equal(t, int64(42), tk.ID)
	assert.Equal(t, IDName{ID: 1, Name: "New"}, tk.Status)
	assert.Equal(t, IDName{ID: 2, Name: "Normal"}, tk.Priority)
	assert.Equal(t, IDName{ID: 5, Name: "CV"}, tk.Tracker)
	assert.Equal(t, IDName{ID: 7, Name: "Jane Recruiter"}, tk.Author)
	assert.Equal(t, IDName{ID: 1, Name: "Hiring"}, tk.Project)
	require.NotNil(t, tk.AssignedTo)
	assert.Equal(t, IDName{ID: 8, Name: "Bob"}, *tk.AssignedTo)
	require.NotNil(t, tk.CreatedAt)
	assert.Equal(t, time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC), *tk.CreatedAt)
	require.NotNil(t, tk.UpdatedAt)
}

func TestNormalizeIssue_MissingParts(t *testing.T) {
	tk := NormalizeIssue(RawIssue{ID: 1, Subject: "x", CreatedOn: "not a date"})

	assert.Nil(t, tk.AssignedTo)
	assert.Equal(t, IDName{}, tk.Status)
	assert.Equal(t, IDName{}, tk.Project)
	assert.Nil(t, tk.CreatedAt)
	assert.Nil(t, tk.UpdatedAt)
}
