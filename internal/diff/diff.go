// Package diff classifies source artifacts against the target
// environment.
//
// The engine is source-driven: it answers "what must be pushed from
// source", not "what exists only on target". When content cannot be
// compared (marker-only or failed retrieval on either side) the engine
// reports Indeterminate, which schedules as Changed. Redeploying an
// identical artifact costs a little time; silently leaving a stale
// target costs correctness.
package diff

import (
	"log"
	"os"

	"stacksync/internal/artifact"
	"stacksync/internal/inventory"
)

// Result classifies one source artifact relative to the target.
type Result int

const (
	// New: the name is absent from the target inventory.
	New Result = iota

	// Changed: both sides have content and the hashes differ.
	Changed

	// Unchanged: both sides have content and the hashes match.
	// Excluded from deployment.
	Unchanged

	// Indeterminate: the name exists on both sides but at least one
	// side's content is not comparable. Scheduled as Changed.
	Indeterminate
)

// String returns a human-readable name for logs and summaries.
func (r Result) String() string {
	switch r {
	case New:
		return "new"
	case Changed:
		return "changed"
	case Unchanged:
		return "unchanged"
	case Indeterminate:
		return "indeterminate"
	default:
		return "invalid"
	}
}

// NeedsDeploy reports whether the classification puts the artifact on
// the deployment schedule.
func (r Result) NeedsDeploy() bool {
	return r == New || r == Changed || r == Indeterminate
}

// Engine computes source-driven diffs.
type Engine struct {
	logger *log.Logger
}

// NewEngine creates an Engine. If logger is nil, a default logger
// writing to stderr is used.
func NewEngine(logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[diff] ", log.LstdFlags)
	}
	return &Engine{logger: logger}
}

// Diff classifies every name in the source inventory. Artifacts maps
// are keyed by name; a missing entry is treated as an unretrieved
// (not comparable) artifact.
//
// Classification is pure over its inputs: running it twice on identical
// snapshots yields the identical map.
func (e *Engine) Diff(
	source *inventory.Inventory, sourceArts map[string]artifact.Artifact,
	target *inventory.Inventory, targetArts map[string]artifact.Artifact,
) map[string]Result {
	results := make(map[string]Result, source.Len())

	for _, name := range source.Names {
		result := e.classify(name, sourceArts[name], target, targetArts[name])
		results[name] = result
		e.logger.Printf("%s: %s", name, result)
	}
	return results
}

func (e *Engine) classify(name string, src artifact.Artifact, target *inventory.Inventory, tgt artifact.Artifact) Result {
	// Absence from the target inventory is authoritative: the artifact
	// is New no matter what retrieval did or did not manage locally.
	if !target.Contains(name) {
		return New
	}

	if !src.Comparable() || !tgt.Comparable() {
		return Indeterminate
	}

	if src.Hash == tgt.Hash {
		return Unchanged
	}
	return Changed
}

// Counts aggregates a result map for reporting.
type Counts struct {
	New           int
	Changed       int
	Unchanged     int
	Indeterminate int
}

// Count tallies a result map.
func Count(results map[string]Result) Counts {
	var c Counts
	for _, r := range results {
		switch r {
		case New:
			c.New++
		case Changed:
			c.Changed++
		case Unchanged:
			c.Unchanged++
		case Indeterminate:
			c.Indeterminate++
		}
	}
	return c
}
