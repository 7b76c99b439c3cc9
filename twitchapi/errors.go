package twitchapi

import (
	"errors"
	"fmt"
	"strings"
)

// Credential validation errors. ErrMissingClientID and ErrMissingClientSecret
// both wrap ErrMissingCredentials so callers can match the family or the field.
var (
	ErrMissingCredentials  = errors.New("twitch credentials incomplete")
	ErrMissingClientID     = fmt.Errorf("%w: client id not set", ErrMissingCredentials)
	ErrMissingClientSecret = fmt.Errorf("%w: client secret not set", ErrMissingCredentials)
)

// ErrUpstreamUnavailable indicates authentication or data fetch against Twitch failed.
// Whether it is recovered (synthetic fallback) or propagated depends on the
// caller's identity: built-in degrades, user-supplied credentials surface it.
var ErrUpstreamUnavailable = errors.New("twitch upstream unavailable")

// StatusError carries the upstream HTTP status alongside the response message.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream status %d", e.Code)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Message)
}

// upstreamErr wraps err (or a status) under ErrUpstreamUnavailable.
func upstreamErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, op, err)
}

// IsAuthRejection reports whether an upstream failure looks like a credential
// rejection (as opposed to an outage). Used to decide whether the anonymous
// query surface is worth trying and to label failure metrics.
func IsAuthRejection(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == 401 || se.Code == 403
	}
	lower := strings.ToLower(err.Error())
	patterns := []string{
		"401",
		"403",
		"unauthorized",
		"invalid client",
		"invalid oauth token",
		"access denied",
		"forbidden",
	}
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
