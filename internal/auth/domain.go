package auth

import "errors"

// ErrInvalidCredentials is returned when the API rejects a login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Identity is what a successful login stores in the dashboard session.
type Identity struct {
	Username    string
	DisplayName string
	Token       string
}
