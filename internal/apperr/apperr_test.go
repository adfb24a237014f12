package apperr

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorString(t *testing.T) {
	err := New(DeviceUnavailable, "no working camera")
	want := "[device_unavailable] no working camera"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("track ended")
	err := Wrap(cause, DeviceUnavailable, "candidate rejected")

	if !errors.Is(err, cause) {
		t.Error("wrapped error should match cause via errors.Is")
	}
	if CodeOf(err) != DeviceUnavailable {
		t.Errorf("CodeOf = %q, want %q", CodeOf(err), DeviceUnavailable)
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != Internal {
		t.Errorf("CodeOf(plain) = %q, want %q", got, Internal)
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(NoQuestions, "empty sequence"))
	if !IsCode(err, NoQuestions) {
		t.Error("IsCode should see through fmt.Errorf wrapping")
	}
	if IsCode(err, SubmissionFailed) {
		t.Error("IsCode matched the wrong code")
	}
}

func TestIsPermissionDenied(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"os permission", os.ErrPermission, true},
		{"grpc permission denied", status.Error(codes.PermissionDenied, "mic blocked"), true},
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "no creds"), true},
		{"grpc unavailable", status.Error(codes.Unavailable, "transient"), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermissionDenied(tt.err); got != tt.want {
				t.Errorf("IsPermissionDenied = %v, want %v", got, tt.want)
			}
		})
	}
}
