// Package deploy drives scheduled artifacts through the deployment
// strategy chain and records one immutable outcome per artifact.
//
// The chain prefers the management-API deploy path, which keeps working
// after a project moves to the container-only execution model, and falls
// back to the control CLI's file-based deploy. Marker-only artifacts get
// one more retrieval attempt against the source environment before the
// chain gives up on them.
//
// A failed artifact never aborts the run: the next artifact is always
// attempted, and partial success is a valid terminal state.
package deploy

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"stacksync/internal/artifact"
	"stacksync/internal/mgmt"
	"stacksync/internal/platform"
	"stacksync/internal/retrieve"
	"stacksync/internal/session"
)

// Outcome is the terminal state of one artifact's deployment.
type Outcome int

const (
	// Deployed: some strategy in the chain succeeded.
	Deployed Outcome = iota

	// Failed: every applicable strategy failed.
	Failed
)

// String returns a human-readable name for logs and summaries.
func (o Outcome) String() string {
	if o == Deployed {
		return "deployed"
	}
	return "failed"
}

// Record is the immutable per-artifact deployment outcome. Created once
// per scheduled artifact, appended to the run's record list, never
// mutated.
type Record struct {
	// Name is the artifact name.
	Name string

	// Outcome is the terminal state.
	Outcome Outcome

	// Strategy names the strategy that succeeded; empty on failure.
	Strategy string

	// Diagnostic carries free-text detail for the report, usually the
	// last error on failure.
	Diagnostic string
}

// Strategy names recorded on success.
const (
	strategyAPI            = "management-api"
	strategyCLI            = "control-cli"
	strategySourceRetrieve = "source-retrieve+api"
)

// APIDeployer is the slice of the management API the orchestrator needs.
type APIDeployer interface {
	DeployFunction(ctx context.Context, projectRef, slug string, files []mgmt.DeployFile) error
}

// Orchestrator deploys scheduled artifacts to the target environment.
type Orchestrator struct {
	api       APIDeployer
	cli       platform.ControlCLI
	sessions  *session.Manager
	retriever *retrieve.Retriever

	// scratch allocates a fresh scratch directory for a deployment-time
	// re-retrieval. Each attempt gets its own directory.
	scratch func(name string) (string, error)

	logger *log.Logger
}

// NewOrchestrator creates an Orchestrator. If logger is nil, a default
// logger writing to stderr is used. If scratch is nil, os.MkdirTemp is
// used.
func NewOrchestrator(
	api APIDeployer,
	cli platform.ControlCLI,
	sessions *session.Manager,
	retriever *retrieve.Retriever,
	scratch func(name string) (string, error),
	logger *log.Logger,
) *Orchestrator {
	if logger == nil {
		logger = log.New(os.Stderr, "[deploy] ", log.LstdFlags)
	}
	if scratch == nil {
		scratch = func(name string) (string, error) {
			return os.MkdirTemp("", "stacksync-redeploy-"+name+"-*")
		}
	}
	return &Orchestrator{
		api:       api,
		cli:       cli,
		sessions:  sessions,
		retriever: retriever,
		scratch:   scratch,
		logger:    logger,
	}
}

// DeployAll runs the chain for every scheduled artifact, in schedule
// order, and returns one Record per artifact. Failures are recorded and
// the loop continues.
func (o *Orchestrator) DeployAll(ctx context.Context, source, target platform.Environment, arts []artifact.Artifact) []Record {
	records := make([]Record, 0, len(arts))
	for _, art := range arts {
		record := o.deployOne(ctx, source, target, art)
		records = append(records, record)

		if record.Outcome == Deployed {
			o.logger.Printf("%s: deployed via %s", record.Name, record.Strategy)
		} else {
			o.logger.Printf("WARNING: %s: deployment failed: %s", record.Name, record.Diagnostic)
		}
	}
	return records
}

// deployOne walks the strategy chain for a single artifact.
func (o *Orchestrator) deployOne(ctx context.Context, source, target platform.Environment, art artifact.Artifact) Record {
	switch art.State {
	case artifact.LocalFiles:
		return o.deployLocal(ctx, target, art)
	case artifact.MarkerOnly:
		return o.deployFromSource(ctx, source, target, art)
	default:
		// Scheduling filters these out; keep the record contract anyway.
		return Record{
			Name:       art.Name,
			Outcome:    Failed,
			Diagnostic: fmt.Sprintf("artifact not deployable in state %s", art.State),
		}
	}
}

// deployLocal pushes locally available files: management API first, CLI
// transport as fallback.
func (o *Orchestrator) deployLocal(ctx context.Context, target platform.Environment, art artifact.Artifact) Record {
	files, err := loadPayload(art.Dir)
	if err != nil {
		return Record{Name: art.Name, Outcome: Failed, Diagnostic: fmt.Sprintf("reading payload: %v", err)}
	}

	apiErr := o.api.DeployFunction(ctx, target.ProjectRef, art.Name, files)
	if apiErr == nil {
		return Record{Name: art.Name, Outcome: Deployed, Strategy: strategyAPI}
	}
	o.logger.Printf("%s: API deploy failed, trying CLI transport: %v", art.Name, apiErr)

	// CLI fallback needs the target linked.
	if _, err := o.sessions.Acquire(ctx, target); err != nil {
		return Record{
			Name:       art.Name,
			Outcome:    Failed,
			Diagnostic: fmt.Sprintf("api: %v; cli: cannot link target: %v", apiErr, err),
		}
	}
	if err := o.cli.DeployFunction(ctx, art.Name, art.Dir); err != nil {
		return Record{
			Name:       art.Name,
			Outcome:    Failed,
			Diagnostic: fmt.Sprintf("api: %v; cli: %v", apiErr, err),
		}
	}
	return Record{Name: art.Name, Outcome: Deployed, Strategy: strategyCLI}
}

// deployFromSource handles marker-only artifacts: switch the exclusive
// session back to the source, retrieve once more specifically for this
// deployment, deploy via the API, then restore the target link before
// the next artifact runs.
func (o *Orchestrator) deployFromSource(ctx context.Context, source, target platform.Environment, art artifact.Artifact) Record {
	destDir, err := o.scratch(art.Name)
	if err != nil {
		return Record{Name: art.Name, Outcome: Failed, Diagnostic: fmt.Sprintf("allocating scratch dir: %v", err)}
	}
	defer os.RemoveAll(destDir)

	// The session is exclusive: acquiring source implicitly releases
	// the target link; the deferred re-acquire restores it.
	srcSess, err := o.sessions.Acquire(ctx, source)
	if err != nil {
		o.logger.Printf("WARNING: %s: relinking source for re-retrieval failed: %v", art.Name, err)
		srcSess = nil
	}
	defer func() {
		if _, err := o.sessions.Acquire(ctx, target); err != nil {
			o.logger.Printf("WARNING: restoring target link failed: %v", err)
		}
	}()

	retried := o.retriever.Retrieve(ctx, retrieve.Request{
		Env:     source,
		Session: srcSess,
		Name:    art.Name,
		DestDir: destDir,
	})
	if retried.State != artifact.LocalFiles {
		return Record{
			Name:       art.Name,
			Outcome:    Failed,
			Diagnostic: fmt.Sprintf("source bytes unavailable on re-retrieval (%s)", retried.State),
		}
	}

	files, err := loadPayload(retried.Dir)
	if err != nil {
		return Record{Name: art.Name, Outcome: Failed, Diagnostic: fmt.Sprintf("reading payload: %v", err)}
	}
	if err := o.api.DeployFunction(ctx, target.ProjectRef, art.Name, files); err != nil {
		return Record{Name: art.Name, Outcome: Failed, Diagnostic: fmt.Sprintf("api after re-retrieval: %v", err)}
	}
	return Record{Name: art.Name, Outcome: Deployed, Strategy: strategySourceRetrieve}
}

// loadPayload reads the artifact tree into a deployment payload, using
// the same listing the content hash covers.
func loadPayload(dir string) ([]mgmt.DeployFile, error) {
	paths, err := artifact.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	files := make([]mgmt.DeployFile, 0, len(paths))
	for _, rel := range paths {
		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", rel, err)
		}
		files = append(files, mgmt.DeployFile{Path: rel, Content: content})
	}
	return files, nil
}

// CountDeployed tallies successful records.
func CountDeployed(records []Record) (deployed, failed int) {
	for _, r := range records {
		if r.Outcome == Deployed {
			deployed++
		} else {
			failed++
		}
	}
	return deployed, failed
}
