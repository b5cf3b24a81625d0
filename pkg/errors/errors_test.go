package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestAppErrorMatchesSentinelAndCause(t *testing.T) {
	err := Wrap(ErrExternalDependency, io.ErrUnexpectedEOF, "thesaurus lookup for %q", "car")
	wrapped := fmt.Errorf("expanding query: %w", err)

	if !errors.Is(wrapped, ErrExternalDependency) {
		t.Fatal("expected sentinel to match")
	}
	if !errors.Is(wrapped, io.ErrUnexpectedEOF) {
		t.Fatal("expected cause to match")
	}
	if ExitCode(wrapped) != ExitExternalError {
		t.Fatalf("exit code = %d, want %d", ExitCode(wrapped), ExitExternalError)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"duplicate", New(ErrDuplicateIndex, "basic"), ExitConflict},
		{"not found bare", fmt.Errorf("open: %w", ErrNotFound), ExitNotFound},
		{"pipeline", Newf(ErrPipelineType, "stage %d", 2), ExitUsage},
		{"unknown", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
