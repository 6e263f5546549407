package api

import (
	"regexp"
	"strings"
)

type (
	// TenantID identifies one tenant (bot owner) in the engine
	TenantID string

	// UserID identifies one end user within a tenant's audience
	UserID string

	// FlowID is a unique identifier for a flow definition
	FlowID string

	// NodeID is a node identifier, unique within one flow
	NodeID string

	// EdgeID is a unique identifier for an edge within one flow
	EdgeID string

	// Label names the branch an edge represents for multi-outcome nodes
	Label string

	// SessionKey identifies one durable conversation session
	SessionKey struct {
		Tenant TenantID `json:"tenant"`
		User   UserID   `json:"user"`
	}
)

// InvalidIDChars matches characters not permitted in tenant and flow IDs.
// Valid characters are: letters, digits, underscore, dot, hyphen, plus, space
var InvalidIDChars = regexp.MustCompile(`[^a-zA-Z0-9_.\-+ ]`)

// SanitizeID lowercases an ID, removes invalid characters, replaces spaces
// with hyphens, and trims leading and trailing hyphens
func SanitizeID[T ~string](id T) T {
	lower := strings.ToLower(string(id))
	sanitized := InvalidIDChars.ReplaceAllString(lower, "")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	return T(strings.Trim(sanitized, "-"))
}

// Key builds the session key for a tenant and user pair
func Key(tenant TenantID, user UserID) SessionKey {
	return SessionKey{Tenant: tenant, User: user}
}

// String renders the session key as "tenant/user"
func (k SessionKey) String() string {
	return string(k.Tenant) + "/" + string(k.User)
}
