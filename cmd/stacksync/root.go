package main

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"stacksync/internal/config"
	"stacksync/internal/deploy"
	"stacksync/internal/diff"
	"stacksync/internal/inventory"
	"stacksync/internal/logging"
	"stacksync/internal/mgmt"
	"stacksync/internal/platform"
	"stacksync/internal/reconcile"
	"stacksync/internal/retrieve"
	"stacksync/internal/session"
)

var (
	cfgFile     string
	logFile     string
	askPassword bool
)

var rootCmd = &cobra.Command{
	Use:   "stacksync",
	Short: "Reconcile serverless functions, secrets, and storage between environments",
	Long: `stacksync promotes one environment's deployed state to another.

It compares what is actually deployed on the source and target projects,
computes the delta by content hash, and deploys only what is new or
changed. Nothing is persisted between runs; re-running after a partial
failure picks up exactly the artifacts that still differ.

Configuration lives in stacksync.yaml (current directory or
~/.config/stacksync). Credentials come from the environment:
  STACKSYNC_ACCESS_TOKEN        management API token (required)
  STACKSYNC_<ENV>_PASSWORD      per-environment database password`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: stacksync.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also log to this rotated file")
	rootCmd.PersistentFlags().BoolVar(&askPassword, "ask-password", false, "prompt for environment passwords instead of reading config")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Synchronization Commands:"},
		&cobra.Group{ID: "info", Title: "Inspection Commands:"},
	)
}

// app holds the loaded configuration and the shared log sink.
type app struct {
	cfg *config.Config
	out io.Writer
}

func loadApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	fileCfg := logging.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}
	if logFile != "" {
		fileCfg.Path = logFile
	}
	return &app{cfg: cfg, out: logging.Setup(fileCfg)}, nil
}

// environment resolves a named environment, optionally prompting for its
// password on the terminal.
func (a *app) environment(name string) (platform.Environment, error) {
	env, err := a.cfg.Environment(name)
	if err != nil {
		return platform.Environment{}, err
	}
	if askPassword && env.Password == "" {
		fmt.Fprintf(os.Stderr, "password for %s (empty for credential-less link): ", name)
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return platform.Environment{}, fmt.Errorf("reading password: %w", err)
		}
		env.Password = string(raw)
	}
	return env, nil
}

func (a *app) apiClient() (*mgmt.Client, error) {
	return mgmt.NewClientFromEnv(a.cfg.API.BaseURL)
}

// buildRunner wires the full reconciliation engine from configuration.
func (a *app) buildRunner() (*reconcile.Runner, *mgmt.Client, error) {
	api, err := a.apiClient()
	if err != nil {
		return nil, nil, err
	}
	cli, err := platform.NewCLI(a.cfg.CLI.Binary, a.cfg.CLI.WorkDir)
	if err != nil {
		return nil, nil, err
	}

	sessions := session.NewManager(cli, logging.New(a.out, "session"))

	var runtime platform.ContainerRuntime
	if dr, err := platform.NewDockerRuntime(a.cfg.Runtime.Binary, a.cfg.Runtime.NamePrefix); err == nil {
		runtime = dr
	} else {
		// No container runtime just narrows the retrieval chain.
		logging.New(a.out, "retrieve").Printf("WARNING: container runtime unavailable: %v", err)
	}
	retriever := retrieve.DefaultChain(cli, runtime, a.cfg.Runtime.FunctionsDir, logging.New(a.out, "retrieve"))

	orch := deploy.NewOrchestrator(api, cli, sessions, retriever, nil, logging.New(a.out, "deploy"))
	runner := reconcile.NewRunner(
		inventory.NewFetcher(api),
		retriever,
		diff.NewEngine(logging.New(a.out, "diff")),
		orch,
		sessions,
		logging.New(a.out, "reconcile"),
	)
	return runner, api, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
