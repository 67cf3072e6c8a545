package models

// TokenResponse is returned by login and refresh
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// LoginResponse represents the response to a successful login
type LoginResponse struct {
	TokenResponse
	User *User `json:"user"`
}

// SessionsResponse lists the caller's active sessions
type SessionsResponse struct {
	Sessions []Session `json:"sessions"`
}

// LoginHistoryResponse lists recent login attempts, newest first
type LoginHistoryResponse struct {
	Attempts []LoginAttempt `json:"attempts"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string `json:"message"`
}
