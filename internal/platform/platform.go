// Package platform wraps the hosted platform's control-plane tooling.
//
// Two external tools sit underneath everything stacksync does: the
// platform's control CLI (link/unlink, function download and deploy) and
// the local container runtime used by the platform's function emulator.
// Both are driven through os/exec with fixed timeouts, and both report
// failures as free-text diagnostics on stderr. This package turns those
// diagnostics into typed results so callers can branch on a closed enum
// instead of pattern-matching strings.
//
// The package deliberately exposes narrow interfaces (ControlCLI,
// ContainerRuntime) so the retrieval and deployment chains can be tested
// against fakes without any external binary installed.
package platform

import (
	"context"
	"time"
)

// Environment identifies one hosted project to operate against.
// Credential material is optional; operations that need it degrade
// when it is absent (see session.Manager).
type Environment struct {
	// Name is the operator-facing label ("staging", "prod").
	Name string

	// ProjectRef is the platform's opaque project identifier.
	ProjectRef string

	// Password is the database credential used when linking.
	// Empty means link without a credential (degraded session).
	Password string
}

// ControlCLI is the subset of the platform control tool that stacksync
// drives. Exactly one project can be linked at a time; Link replaces any
// existing link on the tool's side but callers should still Unlink first
// so the tool's local state stays coherent.
type ControlCLI interface {
	// Link establishes the tool's project link for env. If withCredential
	// is false the link is attempted without the database password.
	Link(ctx context.Context, env Environment, withCredential bool) error

	// Unlink tears down the current project link, whichever project it
	// points at. Unlinking when nothing is linked is not an error.
	Unlink(ctx context.Context) error

	// DownloadFunction materializes the named function's files into
	// destDir. legacy selects the compatibility bundle format used by
	// older runtimes. The returned error carries the tool's diagnostic
	// output for classification.
	DownloadFunction(ctx context.Context, name, destDir string, legacy bool) error

	// DeployFunction pushes the function files under srcDir to the
	// currently linked project.
	DeployFunction(ctx context.Context, name, srcDir string) error
}

// ContainerRuntime locates running function-runtime containers and copies
// artifact directories out of them. Used as the last retrieval fallback
// when a function's bytes exist only inside the emulator container.
type ContainerRuntime interface {
	// FindFunctionContainer returns the ID of the running container
	// serving functions for the given project ref, or ErrContainerNotFound.
	FindFunctionContainer(ctx context.Context, projectRef string) (string, error)

	// CopyOut copies srcPath (a directory inside the container) into
	// destDir on the local filesystem.
	CopyOut(ctx context.Context, containerID, srcPath, destDir string) error
}

// Default timeouts for external tool invocations. A timed-out call is the
// step's ordinary failure outcome, not a distinct error class.
const (
	LinkTimeout     = 60 * time.Second
	DownloadTimeout = 120 * time.Second
	DeployTimeout   = 300 * time.Second
	RuntimeTimeout  = 30 * time.Second
)
