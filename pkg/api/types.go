package api

import "github.com/platinummonkey/tasktrack/pkg/auth"

// Response messages
const (
	MsgNoIDToken      = "Unauthorized: No ID token provided."
	MsgLoginFailed    = "Invalid ID token or authentication failed."
	MsgLoginSucceeded = "Login successful."
	MsgLoggedOut      = "Logged out."
	MsgInvalidBody    = "Invalid request body."
)

// LoginRequest is the POST /auth/login body. Username is optional; a
// present but empty value is still validated on first login.
type LoginRequest struct {
	IDToken  string  `json:"idToken"`
	Username *string `json:"username"`
}

// UserResponse is the public view of a user
type UserResponse struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Username  *string `json:"username"`
	Email     string  `json:"email"`
	SubjectID string  `json:"subjectId"`
}

// LoginResponse is returned by a successful login. Token is the plaintext
// session credential and is never shown again.
type LoginResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
	Token   string       `json:"token"`
}

func newUserResponse(u *auth.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		SubjectID: u.SubjectID,
	}
}
