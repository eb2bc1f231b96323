// Package auth provides JWT authentication and the authorization oracle
// consulted before every API operation.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenType indicates whether a token is an access token or refresh token.
type TokenType string

const (
	// TokenTypeAccess is a short-lived token used for API authorization.
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh is a long-lived token used to obtain new access tokens.
	TokenTypeRefresh TokenType = "refresh"
)

// Role determines which actions a principal may perform.
type Role string

const (
	// RoleAdmin may perform every action, including location changes and
	// permanent version deletion.
	RoleAdmin Role = "admin"

	// RoleWriter may read and mutate bucket contents but not manage
	// locations or purge version history.
	RoleWriter Role = "writer"

	// RoleReader may only read.
	RoleReader Role = "reader"
)

// Claims represents the JWT claims carried by issued tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Username is the authenticated username (also the subject).
	Username string `json:"username"`

	// Role is the user's role ("admin", "writer" or "reader").
	Role Role `json:"role"`

	// TokenType indicates whether this is an access or refresh token.
	TokenType TokenType `json:"token_type"`
}

// IsAccessToken returns true if this is an access token.
func (c *Claims) IsAccessToken() bool {
	return c.TokenType == TokenTypeAccess
}

// IsRefreshToken returns true if this is a refresh token.
func (c *Claims) IsRefreshToken() bool {
	return c.TokenType == TokenTypeRefresh
}

// IsAdmin returns true if the user has the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Principal returns the principal these claims authenticate.
func (c *Claims) Principal() Principal {
	return Principal{Subject: c.Username, Role: c.Role}
}

// Principal identifies who is performing an operation.
type Principal struct {
	// Subject is the authenticated username, or "anonymous".
	Subject string

	// Role is empty for the anonymous principal.
	Role Role
}

// Anonymous is the principal used when authentication is disabled.
var Anonymous = Principal{Subject: "anonymous"}

// IsAnonymous returns true for the unauthenticated principal.
func (p Principal) IsAnonymous() bool {
	return p.Role == ""
}
