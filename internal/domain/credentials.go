package domain

import (
	"log/slog"
)

// Credentials is a remote username/password pair captured at login and used
// for act-as-user queries. It lives only inside a Session.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Valid reports whether both halves of the pair are present.
func (c Credentials) Valid() bool {
	return c.Username != "" && c.Password != ""
}

// LogValue keeps the password out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("username", c.Username))
}

// String keeps the password out of fmt output.
func (c Credentials) String() string {
	return "Credentials{" + c.Username + ", [REDACTED]}"
}
