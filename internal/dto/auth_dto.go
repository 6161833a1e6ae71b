package dto

import "time"

// LoginRequest is the sign-in payload. The password of a student is their current verification code.
type LoginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	SessionID string `json:"session_id"`
}

// LoginResponse describes a successful sign-in.
type LoginResponse struct {
	Kind      string    `json:"kind"`
	Role      string    `json:"role"`
	StudentID string    `json:"student_id,omitempty"`
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Redirect  string    `json:"redirect"`
}

// RegisterRequest creates an identity together with its profile.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// RegisterResponse describes the created account.
type RegisterResponse struct {
	IdentityID string `json:"identity_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	StudentID  string `json:"student_id,omitempty"`
}

// LogoutRequest signs a session out.
type LogoutRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// ResendCodeRequest asks for a fresh verification code for the student owning the email.
type ResendCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// CodeIssuanceResponse reports a delivered verification code. Code is only
// populated for staff callers.
type CodeIssuanceResponse struct {
	StudentID string    `json:"student_id"`
	Email     string    `json:"email"`
	Code      string    `json:"verification_code,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
}

// MeResponse echoes the authenticated principal.
type MeResponse struct {
	IdentityID string `json:"identity_id"`
	Role       string `json:"role"`
	StudentID  string `json:"student_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

// SessionEventMessage is pushed over the session websocket.
type SessionEventMessage struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	SignedIn   bool      `json:"signed_in"`
	IdentityID string    `json:"identity_id,omitempty"`
	At         time.Time `json:"at"`
}

// NavigationMessage tells a connected client where to go next.
type NavigationMessage struct {
	Type        string `json:"type"`
	Destination string `json:"destination"`
	Reason      string `json:"reason,omitempty"`
}
