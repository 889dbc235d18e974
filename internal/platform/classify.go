package platform

import "strings"

// DiagnosticKind is the closed set of failure categories stacksync can
// distinguish in the control tools' free-text output. The retrieval and
// deployment chains branch on these values, never on raw strings.
type DiagnosticKind int

const (
	// DiagnosticUnknown is the default: the output matched no known
	// pattern. Fallback strategies may still be attempted.
	DiagnosticUnknown DiagnosticKind = iota

	// DiagnosticNotFound means the platform reported the function does
	// not exist. Terminal for a retrieval chain.
	DiagnosticNotFound

	// DiagnosticLegacyBundle means the function is stored in the old
	// bundle format and needs the compatibility download mode.
	DiagnosticLegacyBundle

	// DiagnosticContainerOnly means the bytes exist only inside a
	// running runtime container.
	DiagnosticContainerOnly

	// DiagnosticAuthFailure means the credential or token was rejected.
	DiagnosticAuthFailure
)

// String returns a human-readable name for logs.
func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticNotFound:
		return "not-found"
	case DiagnosticLegacyBundle:
		return "legacy-bundle"
	case DiagnosticContainerOnly:
		return "container-only"
	case DiagnosticAuthFailure:
		return "auth-failure"
	default:
		return "unknown"
	}
}

// Diagnostic patterns observed in control CLI output across versions.
// Matching is case-insensitive substring search; the tool does not emit
// machine-readable error codes.
var (
	notFoundPatterns = []string{
		"function not found",
		"404 not found",
		"does not exist",
		"no function with slug",
	}

	legacyBundlePatterns = []string{
		"legacy bundle",
		"unsupported bundle format",
		"eszip",
		"entrypoint path is not",
	}

	containerOnlyPatterns = []string{
		"docker container",
		"edge runtime",
		"function is being served",
		"only available in the runtime",
	}

	authFailurePatterns = []string{
		"access token",
		"invalid credentials",
		"unauthorized",
		"401",
		"wrong password",
	}
)

// ClassifyDiagnostic maps the control tool's stderr output to a
// DiagnosticKind. Not-found wins over every other category: a genuine
// not-found must short-circuit retrieval even if the same output also
// mumbles about bundle formats.
func ClassifyDiagnostic(output string) DiagnosticKind {
	lower := strings.ToLower(output)

	if matchesAny(lower, notFoundPatterns) {
		return DiagnosticNotFound
	}
	if matchesAny(lower, legacyBundlePatterns) {
		return DiagnosticLegacyBundle
	}
	if matchesAny(lower, containerOnlyPatterns) {
		return DiagnosticContainerOnly
	}
	if matchesAny(lower, authFailurePatterns) {
		return DiagnosticAuthFailure
	}
	return DiagnosticUnknown
}

// Err maps a DiagnosticKind to the matching sentinel error, so callers
// can propagate typed failures checkable with errors.Is. Unknown maps
// to nil; the caller keeps its original error in that case.
func (k DiagnosticKind) Err() error {
	switch k {
	case DiagnosticNotFound:
		return ErrFunctionNotFound
	case DiagnosticLegacyBundle:
		return ErrLegacyBundle
	case DiagnosticContainerOnly:
		return ErrContainerOnly
	case DiagnosticAuthFailure:
		return ErrAuthFailed
	default:
		return nil
	}
}

func matchesAny(lower string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
