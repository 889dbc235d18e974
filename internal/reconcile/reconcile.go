// Package reconcile drives one end-to-end function reconciliation run:
// fetch both inventories, retrieve artifacts, diff, deploy the delta,
// and aggregate the outcome.
//
// All state is created fresh per run and discarded at run end. Nothing
// is persisted between runs; re-running is the recovery mechanism and is
// cheap because unchanged artifacts are skipped on re-diff.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"stacksync/internal/artifact"
	"stacksync/internal/deploy"
	"stacksync/internal/diff"
	"stacksync/internal/inventory"
	"stacksync/internal/platform"
	"stacksync/internal/retrieve"
	"stacksync/internal/session"
)

// Runner holds the collaborators for a reconciliation run.
type Runner struct {
	fetcher   *inventory.Fetcher
	retriever *retrieve.Retriever
	engine    *diff.Engine
	orch      *deploy.Orchestrator
	sessions  *session.Manager
	logger    *log.Logger
}

// NewRunner assembles a Runner. If logger is nil, a default logger
// writing to stderr is used.
func NewRunner(
	fetcher *inventory.Fetcher,
	retriever *retrieve.Retriever,
	engine *diff.Engine,
	orch *deploy.Orchestrator,
	sessions *session.Manager,
	logger *log.Logger,
) *Runner {
	if logger == nil {
		logger = log.New(os.Stderr, "[reconcile] ", log.LstdFlags)
	}
	return &Runner{
		fetcher:   fetcher,
		retriever: retriever,
		engine:    engine,
		orch:      orch,
		sessions:  sessions,
		logger:    logger,
	}
}

// Options configures one run.
type Options struct {
	// Source and Target are the environments to reconcile.
	Source, Target platform.Environment

	// Names optionally restricts the run to an allowlist of function
	// names (from a names file). Empty means the full source inventory.
	Names []string

	// Confirm, when non-nil, is asked before deployment starts, with
	// the scheduled artifact names. Returning false ends the run with
	// an empty schedule (vacuous success).
	Confirm func(scheduled []string) bool
}

// Summary is the aggregate outcome handed to reporting.
type Summary struct {
	// RunID uniquely names the run in logs and scratch paths.
	RunID string

	// Counts per diff classification.
	Counts diff.Counts

	// Scheduled is the number of artifacts that entered deployment.
	Scheduled int

	// Deployed and Failed count deployment outcomes.
	Deployed int
	Failed   int

	// Unretrievable lists source artifacts dropped because retrieval
	// failed; they were never scheduled and may silently differ.
	Unretrievable []string

	// Records holds one entry per scheduled artifact.
	Records []deploy.Record
}

// Success reports the run-level outcome: an empty schedule is a vacuous
// success, a non-empty schedule succeeds when at least one artifact
// deployed. Partial success is a valid terminal state.
func (s *Summary) Success() bool {
	return s.Scheduled == 0 || s.Deployed > 0
}

// Run executes the reconciliation. Only precondition failures and
// failure to obtain the inventories abort with an error; everything
// per-artifact is converted into that artifact's terminal state and
// reported through the Summary.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString()}

	workRoot, err := os.MkdirTemp("", "stacksync-"+summary.RunID[:8]+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch root: %w", err)
	}
	// Scratch state must not survive the run.
	defer os.RemoveAll(workRoot)

	// Make sure no link outlives the run either.
	defer func() {
		if err := r.sessions.ReleaseCurrent(ctx); err != nil {
			r.logger.Printf("WARNING: releasing final session: %v", err)
		}
	}()

	sourceInv, err := r.fetcher.Fetch(ctx, opts.Source)
	if err != nil {
		return nil, fmt.Errorf("source inventory: %w", err)
	}
	targetInv, err := r.fetcher.Fetch(ctx, opts.Target)
	if err != nil {
		// Without the target inventory every source artifact would
		// misclassify as New; re-running is cheaper than a wrong push.
		return nil, fmt.Errorf("target inventory: %w", err)
	}

	if len(opts.Names) > 0 {
		sourceInv = sourceInv.Restrict(opts.Names)
	}
	r.logger.Printf("run %s: %d source artifacts, %d on target",
		summary.RunID[:8], sourceInv.Len(), targetInv.Len())

	sourceArts := r.retrieveAll(ctx, opts.Source, sourceInv, filepath.Join(workRoot, "source"))

	// Only names present on both sides need target bytes: everything
	// else classifies from the inventories alone.
	compareInv := targetInv.Restrict(sourceInv.Names)
	targetArts := r.retrieveAll(ctx, opts.Target, compareInv, filepath.Join(workRoot, "target"))

	results := r.engine.Diff(sourceInv, sourceArts, targetInv, targetArts)
	summary.Counts = diff.Count(results)

	scheduled := r.schedule(sourceInv, sourceArts, results, summary)
	if len(scheduled) == 0 {
		r.logger.Printf("run %s: nothing to deploy", summary.RunID[:8])
		return summary, nil
	}

	if opts.Confirm != nil {
		names := make([]string, len(scheduled))
		for i, art := range scheduled {
			names[i] = art.Name
		}
		if !opts.Confirm(names) {
			r.logger.Printf("run %s: deployment declined by operator", summary.RunID[:8])
			return summary, nil
		}
	}

	// Deployment wants the target linked; a failed link degrades to the
	// API-only path inside the orchestrator.
	if _, err := r.sessions.Acquire(ctx, opts.Target); err != nil {
		r.logger.Printf("WARNING: linking target for deployment: %v", err)
	}

	summary.Scheduled = len(scheduled)
	summary.Records = r.orch.DeployAll(ctx, opts.Source, opts.Target, scheduled)
	summary.Deployed, summary.Failed = deploy.CountDeployed(summary.Records)

	r.logger.Printf("run %s: deployed=%d failed=%d", summary.RunID[:8], summary.Deployed, summary.Failed)
	return summary, nil
}

// retrieveAll materializes every artifact of the inventory under root,
// one subdirectory per artifact, in inventory order.
func (r *Runner) retrieveAll(ctx context.Context, env platform.Environment, inv *inventory.Inventory, root string) map[string]artifact.Artifact {
	arts := make(map[string]artifact.Artifact, inv.Len())
	if inv.Len() == 0 {
		return arts
	}

	sess, err := r.sessions.Acquire(ctx, env)
	if err != nil {
		// Degraded: retrieval strategies that need the link will skip.
		r.logger.Printf("WARNING: linking %s failed, continuing degraded: %v", env.Name, err)
		sess = nil
	}

	for _, name := range inv.Names {
		destDir := filepath.Join(root, name)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			r.logger.Printf("WARNING: %s: creating scratch dir: %v", name, err)
			arts[name] = artifact.Artifact{
				Name:   name,
				State:  artifact.RetrievalFailed,
				Reason: artifact.FailureUnknown,
			}
			continue
		}
		arts[name] = r.retriever.Retrieve(ctx, retrieve.Request{
			Env:     env,
			Session: sess,
			Name:    name,
			DestDir: destDir,
		})
	}
	return arts
}

// schedule selects the deployable subset in source-inventory order.
// Diff said what needs pushing; an artifact additionally needs content
// (LocalFiles) or at least proof of existence (MarkerOnly) to be
// deployable.
func (r *Runner) schedule(inv *inventory.Inventory, arts map[string]artifact.Artifact, results map[string]diff.Result, summary *Summary) []artifact.Artifact {
	var scheduled []artifact.Artifact
	for _, name := range inv.Names {
		result, ok := results[name]
		if !ok || !result.NeedsDeploy() {
			continue
		}

		art := arts[name]
		switch art.State {
		case artifact.LocalFiles, artifact.MarkerOnly:
			scheduled = append(scheduled, art)
		case artifact.RetrievalFailed:
			if art.Reason == artifact.FailureNotFound {
				// The platform says it does not exist; inventory lag.
				r.logger.Printf("%s: reported by inventory but not found on retrieval, skipping", name)
				continue
			}
			// Accepted data-loss risk: classified as needing deploy but
			// nothing retrievable to deploy. Must be loud.
			r.logger.Printf("WARNING: %s: classified %s but unretrievable from source; NOT deployed this run and may differ on target",
				name, result)
			summary.Unretrievable = append(summary.Unretrievable, name)
		default:
			r.logger.Printf("WARNING: %s: unexpected content state %s at scheduling, skipping", name, art.State)
		}
	}
	return scheduled
}
