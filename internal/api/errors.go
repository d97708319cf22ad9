package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/okra/internal/auth"
	"github.com/roach88/okra/internal/store"
	"github.com/roach88/okra/internal/tenant"
)

var (
	errNoSession  = errors.New("no session")
	errBadRequest = errors.New("bad request")
)

// statusFor maps failure kinds onto HTTP status codes. Client-correctable
// kinds get 4xx; anything unrecognized is a server fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, ErrBadCookie),
		errors.Is(err, auth.ErrMalformed),
		errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, tenant.ErrInvalidIdentity):
		return http.StatusBadRequest
	case errors.Is(err, errNoSession),
		errors.Is(err, auth.ErrExpired),
		errors.Is(err, auth.ErrUnknownUser),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrDuplicateUser), errors.Is(err, store.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, errThrottled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the JSON error body and stops the handler chain.
// Server faults are reported without detail; the full error is kept on the
// context for the access log.
func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":      msg,
		"request_id": RequestID(c),
	})
}
