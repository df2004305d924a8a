package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIs_MatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("pipeline: %w", MissingState("h-1"))

	if !errors.Is(err, ErrMissingState) {
		t.Fatalf("errors.Is(ErrMissingState): got false, want true")
	}
	if errors.Is(err, ErrMissingSignal) {
		t.Errorf("errors.Is(ErrMissingSignal): got true, want false")
	}
	if !Is(err, KindMissingState) {
		t.Errorf("Is(KindMissingState): got false, want true")
	}
}

func TestKindOf_Plain(t *testing.T) {
	if k := KindOf(errors.New("boom")); k != KindInternal {
		t.Errorf("KindOf(plain): got %s, want %s", k, KindInternal)
	}
}

func TestIsModelFailure(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{New(KindModelTimeout, "deadline"), true},
		{Wrap(KindModelUnavailable, errors.New("503"), "model"), true},
		{MissingSignal("2026-10-19"), false},
		{errors.New("other"), false},
	}
	for _, tt := range tests {
		if got := IsModelFailure(tt.err); got != tt.want {
			t.Errorf("IsModelFailure(%v): got %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindMissingState, http.StatusUnprocessableEntity},
		{KindOutOfRange, http.StatusBadRequest},
		{KindModelTimeout, http.StatusServiceUnavailable},
		{KindStorage, http.StatusInternalServerError},
		{KindForbidden, http.StatusForbidden},
		{KindConflict, http.StatusConflict},
	}
	for _, tt := range tests {
		if got := HTTPStatus(New(tt.kind, "x")); got != tt.want {
			t.Errorf("HTTPStatus(%s): got %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestError_Message(t *testing.T) {
	err := Wrap(KindStorage, errors.New("conn refused"), "ledger append")
	if got, want := err.Error(), "ledger append: conn refused"; got != want {
		t.Errorf("Error(): got %q, want %q", got, want)
	}
}
