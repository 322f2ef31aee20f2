// Package auth checks bearer tokens for registry writes.
//
// It holds no storage: tokens come from configuration.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrMissingToken = errors.New("auth: missing bearer token")
)

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// Tokens accepts any one of a fixed set of shared tokens. An empty set
// denies everything.
type Tokens []string

func (t Tokens) Validate(token string) error {
	if token == "" {
		return ErrMissingToken
	}
	match := 0
	for _, want := range t {
		if want == "" {
			continue
		}
		match |= subtle.ConstantTimeCompare([]byte(want), []byte(token))
	}
	if match != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Authorize validates the bearer token carried by an Authorization header.
func Authorize(v Validator, header string) error {
	token, err := BearerToken(header)
	if err != nil {
		return err
	}
	return v.Validate(token)
}
