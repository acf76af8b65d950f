// Package models defines the client-side data models of the StudySync
// session layer: the signed-in user, the token pair and the derived
// authentication state.
package models

import "encoding/json"

// User is the profile returned by the auth endpoints. The client treats it as
// opaque and replaces it wholesale on login and registration. Fields the
// client never reads are kept verbatim so that persisting a profile does not
// lose them.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Timezone    string `json:"timezone,omitempty"`

	Preferences json.RawMessage `json:"preferences,omitempty"`
	Analytics   json.RawMessage `json:"analytics,omitempty"`
	CreatedAt   json.RawMessage `json:"createdAt,omitempty"`
	UpdatedAt   json.RawMessage `json:"updatedAt,omitempty"`
}

// Clone returns a copy that shares no memory with u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.Preferences = cloneRaw(u.Preferences)
	out.Analytics = cloneRaw(u.Analytics)
	out.CreatedAt = cloneRaw(u.CreatedAt)
	out.UpdatedAt = cloneRaw(u.UpdatedAt)
	return &out
}

func cloneRaw(m json.RawMessage) json.RawMessage {
	if m == nil {
		return nil
	}
	return append(json.RawMessage(nil), m...)
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Timezone    string `json:"timezone"`
}

// AuthResponse is returned by login and registration.
type AuthResponse struct {
	User              *User      `json:"user"`
	Tokens            *TokenPair `json:"tokens"`
	RequiresTwoFactor bool       `json:"requiresTwoFactor,omitempty"`
}
