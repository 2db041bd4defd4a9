package utils

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrKindThroughWrapping(t *testing.T) {
	base := NewDomainError(KindWafChallenge, "challenge page")

	if ErrKind(base) != KindWafChallenge {
		t.Errorf("direct kind lost: %v", ErrKind(base))
	}

	wrapped := fmt.Errorf("calling provider: %w", base)
	if !IsKind(wrapped, KindWafChallenge) {
		t.Error("kind should survive fmt.Errorf wrapping")
	}

	rewrapped := WrapDomainError(KindInfrastructure, "outer", base)
	if ErrKind(rewrapped) != KindInfrastructure {
		t.Error("outermost kind should win")
	}
}

func TestErrKindOnPlainError(t *testing.T) {
	if ErrKind(errors.New("plain")) != "" {
		t.Error("plain errors have no kind")
	}
	if IsKind(nil, KindValidation) {
		t.Error("nil error matches no kind")
	}
}

func TestDomainErrorIsMatchesByKind(t *testing.T) {
	a := NewDomainError(KindSessionExpired, "first")
	b := NewDomainError(KindSessionExpired, "second")
	c := NewDomainError(KindValidation, "other")

	if !errors.Is(a, b) {
		t.Error("same-kind domain errors should match")
	}
	if errors.Is(a, c) {
		t.Error("different kinds should not match")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewDomainError(KindSessionExpired, "x"), "Session expired, please log in to the provider again"},
		{NewDomainError(KindWafChallenge, "x"), "Anti-bot verification required, will retry automatically"},
		{NewDomainError(KindInfrastructure, "upstream down"), "upstream down"},
	}
	for _, tt := range tests {
		if got := UserMessage(tt.err); got != tt.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}

	if got := UserMessage(NewDomainError(KindValidation, "bad hour")); !strings.HasPrefix(got, "Configuration error:") {
		t.Errorf("validation errors should be labeled configuration errors, got %q", got)
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapDomainError(KindInfrastructure, "request failed", cause)
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("cause missing from %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("unwrap chain should reach the cause")
	}
}
