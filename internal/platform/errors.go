package platform

import "errors"

// Common errors returned by platform operations.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, platform.ErrFunctionNotFound) {
//	    // the function genuinely does not exist on that environment
//	}
var (
	// ErrAccessTokenMissing is returned when the process-wide platform
	// access token is not set. This is a precondition failure: nothing
	// useful can happen without it, so callers abort the whole run.
	ErrAccessTokenMissing = errors.New("platform access token not set")

	// ErrCLINotAvailable is returned when the control CLI binary is not
	// installed or not in PATH.
	ErrCLINotAvailable = errors.New("control CLI binary not available")

	// ErrLinkFailed is returned when the control CLI could not establish
	// a project link. Non-fatal to a run: callers proceed with reduced
	// capability.
	ErrLinkFailed = errors.New("project link failed")

	// ErrFunctionNotFound is returned when the platform reports that the
	// named function does not exist. Terminal for a retrieval chain:
	// no fallback strategy is attempted after it.
	ErrFunctionNotFound = errors.New("function not found")

	// ErrLegacyBundle is returned when a download fails because the
	// function is stored in the legacy bundle format.
	ErrLegacyBundle = errors.New("function uses legacy bundle format")

	// ErrContainerOnly is returned when the tool's diagnostics indicate
	// the function's bytes exist only inside a running runtime container.
	ErrContainerOnly = errors.New("function bytes only available in runtime container")

	// ErrContainerNotFound is returned when no running function-runtime
	// container matches the project.
	ErrContainerNotFound = errors.New("no matching runtime container")

	// ErrAuthFailed is returned when the platform rejects the credential
	// or token presented for an operation.
	ErrAuthFailed = errors.New("platform authentication failed")
)

// IsTerminalRetrieval returns true if err ends a retrieval chain with a
// definitive answer, meaning no further fallback strategy may run.
// Only a genuine not-found qualifies: every other failure still leaves
// open the possibility that another strategy can reach the bytes.
func IsTerminalRetrieval(err error) bool {
	return errors.Is(err, ErrFunctionNotFound)
}
