package faults

import (
	"errors"
	"testing"
)

func TestIsCategory(t *testing.T) {
	t.Parallel()

	err := NewTypedError(ConfigurationError, "unsupported format .foo", nil)
	if !IsCategory(err, ConfigurationError) {
		t.Fatalf("expected configuration category match")
	}
	if IsCategory(err, NotFoundError) {
		t.Fatalf("expected not-found category mismatch")
	}

	wrapped := errors.New("wrap: " + err.Error())
	if IsCategory(wrapped, ConfigurationError) {
		t.Fatalf("plain wrapped string error must not match typed category")
	}

	joined := errors.Join(err, errors.New("other"))
	if !IsCategory(joined, ConfigurationError) {
		t.Fatalf("expected category match through errors.Join")
	}
}

func TestHelperConstructors(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := Transient("pull fr", cause)
	if !IsCategory(err, TransientError) {
		t.Fatalf("expected transient category")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to unwrap")
	}
	if got, want := err.Error(), "pull fr: connection reset"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	if !IsCategory(Integrity("changeset already executed"), IntegrityError) {
		t.Fatalf("expected integrity category")
	}
	if !IsCategory(NotAllowed("empty translation"), NotAllowedError) {
		t.Fatalf("expected not-allowed category")
	}
}
