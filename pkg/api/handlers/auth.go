package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/arcafs/arca/pkg/auth"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	users      *auth.Users
	jwtService *auth.JWTService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users *auth.Users, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{
		users:      users,
		jwtService: jwtService,
	}
}

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the response body for POST /auth/login.
type LoginResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         UserResponse `json:"user"`
}

// UserResponse is a sanitized user representation for API responses.
type UserResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// RefreshRequest is the request body for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login handles POST /auth/login.
// Authenticates user credentials and returns a JWT token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		BadRequest(w, "username and password are required")
		return
	}

	principal, err := h.users.Authenticate(req.Username, req.Password)
	if err != nil {
		Unauthorized(w, "invalid username or password")
		return
	}

	h.writeTokenPair(w, principal)
}

// Refresh handles POST /auth/refresh.
// Returns a new token pair using a valid refresh token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.RefreshToken == "" {
		BadRequest(w, "refresh token is required")
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			Unauthorized(w, "refresh token has expired")
			return
		}
		Unauthorized(w, "invalid refresh token")
		return
	}

	// Re-resolve the account so removed users cannot refresh forever. The
	// role comes from the current configuration, not the old token.
	user, ok := h.users.Get(claims.Username)
	if !ok {
		Unauthorized(w, "user no longer exists")
		return
	}

	h.writeTokenPair(w, auth.Principal{Subject: user.Username, Role: user.Role})
}

// writeTokenPair issues tokens for the principal and writes the login
// response.
func (h *AuthHandler) writeTokenPair(w http.ResponseWriter, principal auth.Principal) {
	tokenPair, err := h.jwtService.GenerateTokenPair(principal)
	if err != nil {
		InternalServerError(w, "failed to generate token")
		return
	}

	WriteJSONOK(w, LoginResponse{
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		TokenType:    tokenPair.TokenType,
		ExpiresIn:    tokenPair.ExpiresIn,
		ExpiresAt:    tokenPair.ExpiresAt,
		User: UserResponse{
			Username: principal.Subject,
			Role:     string(principal.Role),
		},
	})
}
