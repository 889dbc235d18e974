package deploy

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stacksync/internal/artifact"
	"stacksync/internal/mgmt"
	"stacksync/internal/platform"
	"stacksync/internal/retrieve"
	"stacksync/internal/session"
)

var (
	sourceEnv = platform.Environment{Name: "staging", ProjectRef: "ref-src"}
	targetEnv = platform.Environment{Name: "prod", ProjectRef: "ref-tgt"}
)

// fakeAPI scripts DeployFunction outcomes per slug and records calls.
type fakeAPI struct {
	errs  map[string]error
	calls []string // "ref/slug"
}

func (f *fakeAPI) DeployFunction(ctx context.Context, projectRef, slug string, files []mgmt.DeployFile) error {
	f.calls = append(f.calls, projectRef+"/"+slug)
	return f.errs[slug]
}

// recordingCLI tracks link order and scripts per-name CLI deploy errors.
type recordingCLI struct {
	links      []string // project refs in link order
	deploys    []string
	deployErrs map[string]error
}

func (c *recordingCLI) Link(ctx context.Context, env platform.Environment, withCredential bool) error {
	c.links = append(c.links, env.ProjectRef)
	return nil
}

func (c *recordingCLI) Unlink(ctx context.Context) error { return nil }

func (c *recordingCLI) DownloadFunction(ctx context.Context, name, destDir string, legacy bool) error {
	return nil
}

func (c *recordingCLI) DeployFunction(ctx context.Context, name, srcDir string) error {
	c.deploys = append(c.deploys, name)
	return c.deployErrs[name]
}

// fetchStrategy is a retrieval strategy that writes scripted files, for
// exercising the marker re-retrieval path without a platform.
type fetchStrategy struct {
	files map[string]string
	err   error
}

func (s *fetchStrategy) Name() string       { return "test-fetch" }
func (s *fetchStrategy) AllowsMarker() bool { return false }

func (s *fetchStrategy) Applicable(req retrieve.Request, prev error) bool { return prev == nil }

func (s *fetchStrategy) Fetch(ctx context.Context, req retrieve.Request) error {
	if s.err != nil {
		return s.err
	}
	for rel, content := range s.files {
		path := filepath.Join(req.DestDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type fixture struct {
	api      *fakeAPI
	cli      *recordingCLI
	sessions *session.Manager
	orch     *Orchestrator
}

func newFixture(t *testing.T, retrieval retrieve.Strategy) *fixture {
	t.Helper()
	api := &fakeAPI{errs: map[string]error{}}
	cli := &recordingCLI{deployErrs: map[string]error{}}
	sessions := session.NewManager(cli, quietLogger())

	if retrieval == nil {
		retrieval = &fetchStrategy{err: errors.New("no retrieval scripted")}
	}
	retriever := retrieve.NewRetriever(quietLogger(), retrieval)

	scratch := func(name string) (string, error) {
		return os.MkdirTemp(t.TempDir(), name+"-*")
	}
	return &fixture{
		api:      api,
		cli:      cli,
		sessions: sessions,
		orch:     NewOrchestrator(api, cli, sessions, retriever, scratch, quietLogger()),
	}
}

func localArtifact(t *testing.T, name string, files map[string]string) artifact.Artifact {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	hash, err := artifact.HashTree(dir)
	if err != nil {
		t.Fatal(err)
	}
	return artifact.Artifact{Name: name, State: artifact.LocalFiles, Dir: dir, Hash: hash}
}

func TestAPIDeploySucceeds(t *testing.T) {
	fx := newFixture(t, nil)
	art := localArtifact(t, "hello", map[string]string{"index.ts": "v1"})

	records := fx.orch.DeployAll(context.Background(), sourceEnv, targetEnv, []artifact.Artifact{art})

	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	r := records[0]
	if r.Outcome != Deployed || r.Strategy != "management-api" {
		t.Errorf("record = %+v, want deployed via management-api", r)
	}
	if len(fx.api.calls) != 1 || fx.api.calls[0] != "ref-tgt/hello" {
		t.Errorf("api calls = %v", fx.api.calls)
	}
	if len(fx.cli.deploys) != 0 {
		t.Error("CLI transport used although API succeeded")
	}
}

func TestCLIFallbackAfterAPIFailure(t *testing.T) {
	fx := newFixture(t, nil)
	fx.api.errs["hello"] = errors.New("api gateway 502")
	art := localArtifact(t, "hello", map[string]string{"index.ts": "v1"})

	records := fx.orch.DeployAll(context.Background(), sourceEnv, targetEnv, []artifact.Artifact{art})

	r := records[0]
	if r.Outcome != Deployed || r.Strategy != "control-cli" {
		t.Errorf("record = %+v, want deployed via control-cli", r)
	}
	if len(fx.cli.links) == 0 || fx.cli.links[len(fx.cli.links)-1] != "ref-tgt" {
		t.Errorf("target not linked for CLI fallback: links = %v", fx.cli.links)
	}
}

func TestBothTransportsFail(t *testing.T) {
	fx := newFixture(t, nil)
	fx.api.errs["hello"] = errors.New("api down")
	fx.cli.deployErrs["hello"] = errors.New("cli rejected")
	art := localArtifact(t, "hello", map[string]string{"index.ts": "v1"})

	records := fx.orch.DeployAll(context.Background(), sourceEnv, targetEnv, []artifact.Artifact{art})

	r := records[0]
	if r.Outcome != Failed {
		t.Fatalf("record = %+v, want failed", r)
	}
	// Diagnostic keeps both failures for the report.
	for _, fragment := range []string{"api down", "cli rejected"} {
		if !strings.Contains(r.Diagnostic, fragment) {
			t.Errorf("diagnostic %q missing %q", r.Diagnostic, fragment)
		}
	}
}

func TestPartialFailureContinues(t *testing.T) {
	// A failure on artifact A must not stop artifact B.
	fx := newFixture(t, nil)
	fx.api.errs["broken"] = errors.New("api down")
	fx.cli.deployErrs["broken"] = errors.New("cli down")

	arts := []artifact.Artifact{
		localArtifact(t, "broken", map[string]string{"index.ts": "x"}),
		localArtifact(t, "working", map[string]string{"index.ts": "y"}),
	}
	records := fx.orch.DeployAll(context.Background(), sourceEnv, targetEnv, arts)

	if len(records) != 2 {
		t.Fatalf("records = %d, want one per scheduled artifact", len(records))
	}
	if records[0].Name != "broken" || records[0].Outcome != Failed {
		t.Errorf("first record = %+v", records[0])
	}
	if records[1].Name != "working" || records[1].Outcome != Deployed {
		t.Errorf("second record = %+v", records[1])
	}

	deployed, failed := CountDeployed(records)
	if deployed != 1 || failed != 1 {
		t.Errorf("counts = %d/%d, want 1 deployed 1 failed", deployed, failed)
	}
}

func TestMarkerOnlyRedeploysFromSource(t *testing.T) {
	fx := newFixture(t, &fetchStrategy{files: map[string]string{"index.ts": "from-source"}})
	ctx := context.Background()

	// The run holds a target link when deployment starts.
	if _, err := fx.sessions.Acquire(ctx, targetEnv); err != nil {
		t.Fatal(err)
	}

	art := artifact.Artifact{Name: "hello", State: artifact.MarkerOnly}
	records := fx.orch.DeployAll(ctx, sourceEnv, targetEnv, []artifact.Artifact{art})

	r := records[0]
	if r.Outcome != Deployed || r.Strategy != "source-retrieve+api" {
		t.Fatalf("record = %+v, want deployed via source-retrieve+api", r)
	}

	// Exclusive session ping-pong: target, then source for the
	// re-retrieval, then target again before the next artifact.
	want := []string{"ref-tgt", "ref-src", "ref-tgt"}
	if len(fx.cli.links) != len(want) {
		t.Fatalf("links = %v, want %v", fx.cli.links, want)
	}
	for i := range want {
		if fx.cli.links[i] != want[i] {
			t.Errorf("links[%d] = %s, want %s", i, fx.cli.links[i], want[i])
		}
	}

	if cur := fx.sessions.Current(); cur == nil || cur.ProjectRef != "ref-tgt" {
		t.Error("target link not restored after marker deployment")
	}
}

func TestMarkerOnlyFailsWhenSourceBytesUnavailable(t *testing.T) {
	fx := newFixture(t, &fetchStrategy{err: errors.New("still unreachable")})

	art := artifact.Artifact{Name: "hello", State: artifact.MarkerOnly}
	records := fx.orch.DeployAll(context.Background(), sourceEnv, targetEnv, []artifact.Artifact{art})

	r := records[0]
	if r.Outcome != Failed {
		t.Fatalf("record = %+v, want failed", r)
	}
	if len(fx.api.calls) != 0 {
		t.Error("API deploy attempted without source bytes")
	}
}
