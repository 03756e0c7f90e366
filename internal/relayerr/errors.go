// Package relayerr defines the delivery service error taxonomy and how each
// error is presented to callers.
package relayerr

import (
	"errors"
	"net/http"
)

var (
	ErrAuth                = errors.New("authentication failed")
	ErrTokenInvalid        = errors.New("token invalid")
	ErrPayloadTooLarge     = errors.New("payload too large")
	ErrDecryption          = errors.New("decryption failed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUnknownSession      = errors.New("unknown session")
	ErrSpamRejected        = errors.New("rejected by spam filter")
	ErrProfileExists       = errors.New("profile exists")
	ErrProfileInvalid      = errors.New("profile invalid")
	ErrUpstreamUnavailable = errors.New("all delivery services unavailable")
	ErrInvalidRequest      = errors.New("invalid request")
)

// rejected is the single message shared by auth, token and spam failures so
// a caller cannot tell them apart.
const rejected = "rejected"

// Public maps err to an HTTP status and a caller-facing message.
// Internal detail is never part of the message.
func Public(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ErrAuth),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrSpamRejected):
		return http.StatusUnauthorized, rejected
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "payload too large"
	case errors.Is(err, ErrDecryption):
		return http.StatusBadRequest, "malformed envelope"
	case errors.Is(err, ErrUnknownSession):
		return http.StatusNotFound, "unknown session"
	case errors.Is(err, ErrProfileExists):
		return http.StatusConflict, "profile exists"
	case errors.Is(err, ErrProfileInvalid):
		return http.StatusBadRequest, "profile invalid"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway, "delivery services unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
