package utils

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", E(CodeInvalidArgument, "Op", "bad", nil), http.StatusBadRequest},
		{"not found", E(CodeNotFound, "Op", "missing", ErrSessionNotFound), http.StatusNotFound},
		{"closed", E(CodeConflict, "Op", "closed", ErrSessionClosed), http.StatusConflict},
		{"too large", E(CodeTooLarge, "Op", "clip too large", ErrMedia), http.StatusRequestEntityTooLarge},
		{"timeout", E(CodeTimeout, "Op", "deadline", ErrTurnTimeout), http.StatusGatewayTimeout},
		{"bare not found", fmt.Errorf("wrap: %w", ErrNotFound), http.StatusNotFound},
		{"bare closed", ErrSessionClosed, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := E(CodeConflict, "DebateService.SubmitTurn", "session closed", ErrSessionClosed)
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatal("expected errors.Is to find ErrSessionClosed")
	}
	if !IsCode(err, CodeConflict) {
		t.Fatal("expected CONFLICT code")
	}
	if got := err.Error(); got != "DebateService.SubmitTurn: session closed: session closed" {
		t.Errorf("Error() = %q", got)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		v, lo, hi, want float64
	}{
		{-1, 0, 5, 0},
		{6, 0, 5, 5},
		{2.5, 0, 5, 2.5},
		{math.NaN(), 0, 5, 0},
	}
	for _, tt := range tests {
		if got := Clamp(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("Clamp(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestStd(t *testing.T) {
	got := Std([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(got-2) > 1e-9 {
		t.Errorf("Std() = %v, want 2", got)
	}
	if Std(nil) != 0 || Mean(nil) != 0 {
		t.Error("empty input should yield zero")
	}
}
