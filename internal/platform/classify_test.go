package platform

import (
	"errors"
	"testing"
)

func TestClassifyDiagnostic(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   DiagnosticKind
	}{
		{
			name:   "empty output",
			output: "",
			want:   DiagnosticUnknown,
		},
		{
			name:   "function not found",
			output: "Error: Function not found on remote project",
			want:   DiagnosticNotFound,
		},
		{
			name:   "404 from API",
			output: "unexpected status: 404 Not Found",
			want:   DiagnosticNotFound,
		},
		{
			name:   "slug variant",
			output: "no function with slug hello-world",
			want:   DiagnosticNotFound,
		},
		{
			name:   "legacy bundle",
			output: "Error: cannot download: function uses legacy bundle format",
			want:   DiagnosticLegacyBundle,
		},
		{
			name:   "eszip mention",
			output: "failed to extract eszip archive",
			want:   DiagnosticLegacyBundle,
		},
		{
			name:   "container only",
			output: "function files are served by the edge runtime and not stored locally",
			want:   DiagnosticContainerOnly,
		},
		{
			name:   "auth failure",
			output: "401 Unauthorized: invalid access token",
			want:   DiagnosticAuthFailure,
		},
		{
			name:   "not-found wins over bundle chatter",
			output: "legacy bundle handling skipped: function not found",
			want:   DiagnosticNotFound,
		},
		{
			name:   "case insensitive",
			output: "ERROR: FUNCTION NOT FOUND",
			want:   DiagnosticNotFound,
		},
		{
			name:   "unrelated failure",
			output: "connection reset by peer",
			want:   DiagnosticUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyDiagnostic(tt.output)
			if got != tt.want {
				t.Errorf("ClassifyDiagnostic(%q) = %s, want %s", tt.output, got, tt.want)
			}
		})
	}
}

func TestDiagnosticKindErr(t *testing.T) {
	tests := []struct {
		kind DiagnosticKind
		want error
	}{
		{DiagnosticNotFound, ErrFunctionNotFound},
		{DiagnosticLegacyBundle, ErrLegacyBundle},
		{DiagnosticContainerOnly, ErrContainerOnly},
		{DiagnosticAuthFailure, ErrAuthFailed},
		{DiagnosticUnknown, nil},
	}

	for _, tt := range tests {
		got := tt.kind.Err()
		if !errors.Is(got, tt.want) {
			t.Errorf("%s.Err() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestIsTerminalRetrieval(t *testing.T) {
	if !IsTerminalRetrieval(ErrFunctionNotFound) {
		t.Error("not-found should terminate the retrieval chain")
	}
	if IsTerminalRetrieval(ErrLegacyBundle) {
		t.Error("legacy bundle failure must not terminate the chain")
	}
	if IsTerminalRetrieval(nil) {
		t.Error("nil error is not terminal")
	}
}
