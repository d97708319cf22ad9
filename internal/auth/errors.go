package auth

import "errors"

var (
	// ErrDuplicateUser is returned by Enroll when the username is taken.
	ErrDuplicateUser = errors.New("duplicate user")

	// ErrUnknownUser is returned by Login when no identity record matches.
	ErrUnknownUser = errors.New("unknown user")

	// ErrInvalidCredentials is returned when a password does not match, or
	// when an empty password is enrolled.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMalformed is returned by Validate when a token cannot be parsed or its
	// signature does not verify.
	ErrMalformed = errors.New("malformed token")

	// ErrExpired is returned by Validate when the token's expiry has passed.
	ErrExpired = errors.New("expired token")

	// ErrInvalidUsername is returned when a username breaks the naming rule.
	ErrInvalidUsername = errors.New("invalid username")
)
