package platform

import (
	"context"
	"fmt"
)

// CLI drives the platform control binary through os/exec. It implements
// ControlCLI.
type CLI struct {
	// binary is the control tool's executable name, normally "stackctl".
	binary string

	// workDir is the project directory the tool runs in. The tool keeps
	// its link state under this directory.
	workDir string
}

// NewCLI creates a CLI for the given binary name and working directory.
// Returns ErrCLINotAvailable if the binary is not in PATH.
func NewCLI(binary, workDir string) (*CLI, error) {
	if binary == "" {
		binary = "stackctl"
	}
	if !LookPath(binary) {
		return nil, fmt.Errorf("%w: %s", ErrCLINotAvailable, binary)
	}
	return &CLI{binary: binary, workDir: workDir}, nil
}

// Link implements ControlCLI.
func (c *CLI) Link(ctx context.Context, env Environment, withCredential bool) error {
	args := []string{"link", "--project-ref", env.ProjectRef}
	if withCredential && env.Password != "" {
		args = append(args, "--password", env.Password)
	}

	res, err := Run(ctx, LinkTimeout, c.workDir, c.binary, args...)
	if err != nil {
		if kindErr := ClassifyDiagnostic(TrimOutput(res.Stderr)).Err(); kindErr != nil {
			return fmt.Errorf("%w: linking %s: %s", kindErr, env.Name, TrimOutput(res.Stderr))
		}
		return fmt.Errorf("%w: %s: %v", ErrLinkFailed, env.Name, err)
	}
	return nil
}

// Unlink implements ControlCLI. An "not linked" complaint from the tool
// is treated as success; the desired state already holds.
func (c *CLI) Unlink(ctx context.Context) error {
	res, err := Run(ctx, LinkTimeout, c.workDir, c.binary, "unlink")
	if err != nil {
		stderr := TrimOutput(res.Stderr)
		if ClassifyDiagnostic(stderr) == DiagnosticNotFound {
			return nil
		}
		return fmt.Errorf("unlink failed: %v: %s", err, stderr)
	}
	return nil
}

// DownloadFunction implements ControlCLI.
func (c *CLI) DownloadFunction(ctx context.Context, name, destDir string, legacy bool) error {
	args := []string{"functions", "download", name, "--output-dir", destDir}
	if legacy {
		args = append(args, "--legacy-bundle")
	}

	res, err := Run(ctx, DownloadTimeout, c.workDir, c.binary, args...)
	if err != nil {
		stderr := TrimOutput(res.Stderr)
		if kindErr := ClassifyDiagnostic(stderr).Err(); kindErr != nil {
			return fmt.Errorf("%w: downloading %s: %s", kindErr, name, stderr)
		}
		return fmt.Errorf("downloading %s: %v: %s", name, err, stderr)
	}
	return nil
}

// DeployFunction implements ControlCLI.
func (c *CLI) DeployFunction(ctx context.Context, name, srcDir string) error {
	args := []string{"functions", "deploy", name, "--source-dir", srcDir}

	res, err := Run(ctx, DeployTimeout, c.workDir, c.binary, args...)
	if err != nil {
		stderr := TrimOutput(res.Stderr)
		if kindErr := ClassifyDiagnostic(stderr).Err(); kindErr != nil {
			return fmt.Errorf("%w: deploying %s: %s", kindErr, name, stderr)
		}
		return fmt.Errorf("deploying %s: %v: %s", name, err, stderr)
	}
	return nil
}
