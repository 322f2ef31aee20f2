package auth

import (
	"errors"
	"testing"

	"github.com/danmuck/fracpack/internal/logging"
	"github.com/danmuck/fracpack/internal/testutil/testlog"
)

func TestTokensValidate(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		name    string
		stored  Tokens
		input   string
		wantErr error
	}{
		{name: "empty set denied", stored: nil, input: "abc", wantErr: ErrUnauthorized},
		{name: "blank stored token ignored", stored: Tokens{""}, input: "abc", wantErr: ErrUnauthorized},
		{name: "missing token", stored: Tokens{"abc"}, input: "", wantErr: ErrMissingToken},
		{name: "mismatched token denied", stored: Tokens{"abc"}, input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: Tokens{"abc"}, input: "abc", wantErr: nil},
		{name: "second token accepted", stored: Tokens{"abc", "def"}, input: "def", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logging.Logf("auth/tokens: stored=%d input=%q", len(tc.stored), tc.input)
			err := tc.stored.Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestAuthorizeHeader(t *testing.T) {
	testlog.Start(t)

	v := Tokens{"s3cret"}
	cases := []struct {
		header  string
		wantErr error
	}{
		{"Bearer s3cret", nil},
		{"bearer  s3cret ", nil},
		{"", ErrMissingToken},
		{"Basic s3cret", ErrMissingToken},
		{"Bearer", ErrMissingToken},
		{"Bearer nope", ErrUnauthorized},
	}
	for _, tc := range cases {
		if err := Authorize(v, tc.header); !errors.Is(err, tc.wantErr) {
			t.Fatalf("header %q: expected %v, got %v", tc.header, tc.wantErr, err)
		}
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)

	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})
	if err := validator.Validate("bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad token, got %v", err)
	}
	if err := Authorize(validator, "Bearer ok"); err != nil {
		t.Fatalf("expected success for ok token, got %v", err)
	}
}
