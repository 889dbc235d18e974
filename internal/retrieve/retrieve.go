// Package retrieve materializes function artifacts locally through an
// ordered chain of fallback strategies.
//
// The chain is the heart of the toolkit's graceful degradation: a direct
// CLI download, then the legacy-bundle compatibility mode, then copying
// the files out of a running runtime container. A definitive not-found
// from the platform short-circuits everything. Retrieval must never
// treat "could not inspect" the same as "does not exist", because that
// conflation would make the diff stage silently skip an artifact that in
// fact differs.
package retrieve

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"stacksync/internal/artifact"
	"stacksync/internal/platform"
	"stacksync/internal/session"
)

// Request carries everything one retrieval attempt needs.
type Request struct {
	// Env is the environment to retrieve from.
	Env platform.Environment

	// Session is the active link, or nil when linking failed and the
	// run continues degraded. Strategies that need the link decline.
	Session *session.Session

	// Name is the function name.
	Name string

	// DestDir is the scratch directory to materialize files into.
	DestDir string
}

// Strategy is one way of getting an artifact's bytes onto the local
// filesystem. Strategies are tried in chain order; each sees the error
// the previous one produced and may decline to run.
type Strategy interface {
	// Name identifies the strategy in logs and deployment records.
	Name() string

	// Applicable reports whether the strategy should run, given the
	// error from the previously attempted strategy (nil when no
	// strategy has run yet).
	Applicable(req Request, prev error) bool

	// Fetch materializes the function into req.DestDir.
	Fetch(ctx context.Context, req Request) error

	// AllowsMarker reports whether a successful Fetch that produced no
	// readable files counts as proof of existence (MarkerOnly) rather
	// than a failure.
	AllowsMarker() bool
}

// Retriever runs the strategy chain.
type Retriever struct {
	strategies []Strategy
	logger     *log.Logger
}

// NewRetriever creates a Retriever with the given chain, in order.
// If logger is nil, a default logger writing to stderr is used.
func NewRetriever(logger *log.Logger, strategies ...Strategy) *Retriever {
	if logger == nil {
		logger = log.New(os.Stderr, "[retrieve] ", log.LstdFlags)
	}
	return &Retriever{strategies: strategies, logger: logger}
}

// DefaultChain builds the production chain: direct download, legacy
// bundle mode, container copy-out.
func DefaultChain(cli platform.ControlCLI, runtime platform.ContainerRuntime, runtimeFunctionsDir string, logger *log.Logger) *Retriever {
	return NewRetriever(logger,
		&directStrategy{cli: cli},
		&legacyStrategy{cli: cli},
		&containerStrategy{runtime: runtime, functionsDir: runtimeFunctionsDir},
	)
}

// Retrieve runs the chain for one function and returns the resulting
// Artifact. Failure is expressed in the artifact's state, never as an
// error: a retrieval outcome is per-artifact data, not a run failure.
func (r *Retriever) Retrieve(ctx context.Context, req Request) artifact.Artifact {
	result := artifact.Artifact{Name: req.Name, State: artifact.Unretrieved}

	var prev error
	attempted := 0
	for _, strat := range r.strategies {
		if !strat.Applicable(req, prev) {
			continue
		}
		attempted++

		// Each attempt starts from an empty destination. A strategy
		// that failed mid-write must not leave partial files behind for
		// the next strategy's outcome to be judged by.
		if err := clearDir(req.DestDir); err != nil {
			r.logger.Printf("WARNING: %s: resetting %s: %v", req.Name, req.DestDir, err)
			result.State = artifact.RetrievalFailed
			result.Reason = artifact.FailureUnknown
			return result
		}

		err := strat.Fetch(ctx, req)
		if err == nil {
			done, art := r.finish(strat, req)
			if done {
				return art
			}
			// Succeeded but produced nothing usable: treat as this
			// strategy's failure and keep going.
			prev = fmt.Errorf("%s produced no files", strat.Name())
			r.logger.Printf("%s: %s succeeded without files, continuing chain", req.Name, strat.Name())
			continue
		}

		if platform.IsTerminalRetrieval(err) {
			r.logger.Printf("%s: not found on %s, chain stopped", req.Name, req.Env.Name)
			result.State = artifact.RetrievalFailed
			result.Reason = artifact.FailureNotFound
			return result
		}

		r.logger.Printf("%s: %s failed: %v", req.Name, strat.Name(), err)
		prev = err
	}

	// Exhausted without a definitive answer. This is the accepted
	// data-loss risk: the artifact is dropped from the comparable set
	// and will not be deployed even if it differs. Surface it loudly.
	r.logger.Printf("WARNING: %s: all %d applicable retrieval strategies exhausted on %s; artifact cannot be compared or deployed this run",
		req.Name, attempted, req.Env.Name)
	result.State = artifact.RetrievalFailed
	result.Reason = artifact.FailureUnknown
	return result
}

// clearDir removes the contents of dir, keeping dir itself.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// finish inspects the destination after a successful fetch and builds
// the terminal artifact. Returns done=false when the outcome does not
// terminate the chain.
func (r *Retriever) finish(strat Strategy, req Request) (bool, artifact.Artifact) {
	result := artifact.Artifact{Name: req.Name}

	hasFiles, err := artifact.HasFiles(req.DestDir)
	if err != nil {
		r.logger.Printf("%s: inspecting %s: %v", req.Name, req.DestDir, err)
		return false, result
	}

	if hasFiles {
		hash, err := artifact.HashTree(req.DestDir)
		if err != nil {
			r.logger.Printf("%s: hashing retrieved tree: %v", req.Name, err)
			return false, result
		}
		result.State = artifact.LocalFiles
		result.Dir = req.DestDir
		result.Hash = hash
		r.logger.Printf("%s: retrieved via %s (hash %s)", req.Name, strat.Name(), hash.Short())
		return true, result
	}

	if strat.AllowsMarker() {
		result.State = artifact.MarkerOnly
		r.logger.Printf("%s: exists on %s but bytes are not locally comparable (marker only)", req.Name, req.Env.Name)
		return true, result
	}
	return false, result
}
