package platform

import (
	"context"
	"fmt"
	"strings"
)

// DockerRuntime implements ContainerRuntime with the docker CLI.
// The platform's local function emulator runs one container per project,
// named with a well-known prefix followed by the project ref.
type DockerRuntime struct {
	// binary is the docker executable name, normally "docker".
	binary string

	// namePrefix is the runtime container name prefix ("edge-runtime").
	namePrefix string
}

// NewDockerRuntime creates a DockerRuntime. Returns ErrCLINotAvailable
// if the docker binary is not in PATH.
func NewDockerRuntime(binary, namePrefix string) (*DockerRuntime, error) {
	if binary == "" {
		binary = "docker"
	}
	if namePrefix == "" {
		namePrefix = "edge-runtime"
	}
	if !LookPath(binary) {
		return nil, fmt.Errorf("%w: %s", ErrCLINotAvailable, binary)
	}
	return &DockerRuntime{binary: binary, namePrefix: namePrefix}, nil
}

// FindFunctionContainer implements ContainerRuntime. It lists running
// containers whose name carries the runtime prefix and picks the one
// matching the project ref.
func (d *DockerRuntime) FindFunctionContainer(ctx context.Context, projectRef string) (string, error) {
	res, err := Run(ctx, RuntimeTimeout, "", d.binary,
		"ps", "--filter", "name="+d.namePrefix, "--format", "{{.ID}} {{.Names}}")
	if err != nil {
		return "", fmt.Errorf("listing runtime containers: %v: %s", err, TrimOutput(res.Stderr))
	}

	for _, line := range ParseLines(res.Stdout) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		id, name := fields[0], fields[1]
		if strings.Contains(name, projectRef) {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: prefix=%s project=%s", ErrContainerNotFound, d.namePrefix, projectRef)
}

// CopyOut implements ContainerRuntime via `docker cp`. The trailing "/."
// on the source copies directory contents rather than the directory
// itself, so destDir ends up holding the function files directly.
func (d *DockerRuntime) CopyOut(ctx context.Context, containerID, srcPath, destDir string) error {
	src := fmt.Sprintf("%s:%s/.", containerID, strings.TrimSuffix(srcPath, "/"))
	res, err := Run(ctx, RuntimeTimeout, "", d.binary, "cp", src, destDir)
	if err != nil {
		return fmt.Errorf("copying %s from container %s: %v: %s",
			srcPath, containerID, err, TrimOutput(res.Stderr))
	}
	return nil
}
