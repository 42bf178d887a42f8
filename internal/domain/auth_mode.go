package domain

// AuthMode selects which credential authorizes a remote query.
type AuthMode string

const (
	// AuthActAsUser uses the session user's own remote credentials.
	AuthActAsUser AuthMode = "act_as_user"
	// AuthSharedKey uses the privileged shared API key.
	AuthSharedKey AuthMode = "shared_key"
)

// SelectAuthMode prefers the user's own credentials when they are cached,
// unless the operator asked for the shared key.
func SelectAuthMode(hasCachedCredentials, preferAPIKey bool) AuthMode {
	if hasCachedCredentials && !preferAPIKey {
		return AuthActAsUser
	}
	return AuthSharedKey
}
