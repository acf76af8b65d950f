// Package common contains constants shared by the client's transport layers.
package common

const (
	// AuthorizationHeader carries "Bearer <access token>" on API calls.
	AuthorizationHeader = "Authorization"

	// RefreshTokenHeader carries the refresh token on /auth/refresh and
	// /auth/logout, keeping it apart from ordinary authenticated calls.
	RefreshTokenHeader = "X-Refresh-Token"

	// RequestIDHeader correlates client log lines with server ones.
	RequestIDHeader = "X-Request-ID"

	BearerPrefix = "Bearer "
)
