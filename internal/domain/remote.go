package domain

import (
	"encoding/json"
	"strings"
)

// RemoteRef is an id/name pair as sent by the remote tracker.
type RemoteRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// RawIssue is an issue record exactly as the remote tracker returns it.
// Optional sub-objects are pointers so absence survives decoding.
type RawIssue struct {
	ID          int64      `json:"id"`
	Subject     string     `json:"subject"`
	Description string     `json:"description"`
	Status      *RemoteRef `json:"status,omitempty"`
	Priority    *RemoteRef `json:"priority,omitempty"`
	Tracker     *RemoteRef `json:"tracker,omitempty"`
	Author      *RemoteRef `json:"author,omitempty"`
	AssignedTo  *RemoteRef `json:"assigned_to,omitempty"`
	Project     *RemoteRef `json:"project,omitempty"`
	CreatedOn   string     `json:"created_on,omitempty"`
	UpdatedOn   string     `json:"updated_on,omitempty"`
}

// CustomField is a named profile attribute of a remote account. The tracker
// sends either a single string or a list of strings as the value.
type CustomField struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// StringValue flattens the field value, joining list values with ", ".
func (f CustomField) StringValue() string {
	if len(f.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.Value, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(f.Value, &list); err == nil {
		return strings.Join(list, ", ")
	}
	return strings.Trim(string(f.Value), `"`)
}

// RemoteIdentity is the account the remote tracker reports for a credential.
type RemoteIdentity struct {
	ID           int64         `json:"id"`
	Login        string        `json:"login"`
	FirstName    string        `json:"firstname"`
	LastName     string        `json:"lastname"`
	Mail         string        `json:"mail,omitempty"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`
}

// Profile converts the custom fields to a name to value map.
func (r *RemoteIdentity) Profile() map[string]string {
	profile := make(map[string]string, len(r.CustomFields))
	for _, f := range r.CustomFields {
		if f.Name == "" {
			continue
		}
		profile[f.Name] = f.StringValue()
	}
	return profile
}
