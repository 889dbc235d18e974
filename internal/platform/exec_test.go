package platform

import (
	"context"
	"testing"
	"time"
)

func TestRunCapturesBothStreams(t *testing.T) {
	if !LookPath("sh") {
		t.Skip("sh not available")
	}

	res, err := Run(context.Background(), 10*time.Second, "",
		"sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if TrimOutput(res.Stdout) != "out" {
		t.Errorf("stdout = %q, want %q", TrimOutput(res.Stdout), "out")
	}
	if TrimOutput(res.Stderr) != "err" {
		t.Errorf("stderr = %q, want %q", TrimOutput(res.Stderr), "err")
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
}

func TestRunNonZeroExitKeepsStderr(t *testing.T) {
	if !LookPath("sh") {
		t.Skip("sh not available")
	}

	res, err := Run(context.Background(), 10*time.Second, "",
		"sh", "-c", "echo 'function not found' >&2; exit 1")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if res.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", res.ExitCode)
	}
	// The whole point of keeping stderr on failure: classification.
	if ClassifyDiagnostic(TrimOutput(res.Stderr)) != DiagnosticNotFound {
		t.Errorf("stderr %q not classified as not-found", TrimOutput(res.Stderr))
	}
}

func TestRunMissingBinary(t *testing.T) {
	res, err := Run(context.Background(), time.Second, "",
		"definitely-not-a-real-binary-xyz")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if res.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", res.ExitCode)
	}
}

func TestParseLines(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   []string
	}{
		{"empty", "", nil},
		{"single", "one\n", []string{"one"}},
		{"blank lines dropped", "a\n\n  \nb\n", []string{"a", "b"}},
		{"whitespace trimmed", "  a  \n\tb\n", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLines([]byte(tt.input))
			if len(got) != len(tt.want) {
				t.Fatalf("ParseLines(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
