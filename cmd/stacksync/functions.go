package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"stacksync/internal/inventory"
	"stacksync/internal/logging"
	"stacksync/internal/reconcile"
	"stacksync/internal/ui"
	"stacksync/internal/watchd"
)

var (
	syncSource    string
	syncTarget    string
	syncYes       bool
	syncNamesFile string
	syncReport    string
)

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "Work with deployed serverless functions",
}

var functionsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Deploy the functions that differ between two environments",
	Long: `Compare deployed functions on the source and target environments and
deploy only what is new or changed.

The comparison is content-based: each function's deployed file tree is
retrieved and hashed, so cosmetic redeployments with identical bytes are
skipped. Functions whose bytes cannot be compared are treated as changed
rather than silently skipped.

Example:
  stacksync functions sync --source staging --target prod
  stacksync functions sync --source staging --target prod --names promote.txt --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		opts, err := buildRunOptions(app)
		if err != nil {
			return err
		}

		runner, _, err := app.buildRunner()
		if err != nil {
			return err
		}
		summary, err := runner.Run(cmd.Context(), opts)
		if err != nil {
			return err
		}

		fmt.Print(ui.RenderSummary(syncSource, syncTarget, summary))
		if syncReport != "" {
			if err := summary.WriteReport(syncReport, syncSource, syncTarget); err != nil {
				return err
			}
		}
		if !summary.Success() {
			return fmt.Errorf("no artifact could be deployed (%d scheduled)", summary.Scheduled)
		}
		return nil
	},
}

var listEnv string

var functionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the functions deployed on an environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		env, err := app.environment(listEnv)
		if err != nil {
			return err
		}
		api, err := app.apiClient()
		if err != nil {
			return err
		}

		inv, err := inventory.NewFetcher(api).Fetch(cmd.Context(), env)
		if err != nil {
			return err
		}
		fmt.Print(ui.RenderInventory(env.Name, inv.Names))
		return nil
	},
}

var functionsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run the sync whenever watched directories change",
	Long: `Run in the foreground and start a sync run after each settled burst of
changes under the configured watch paths (watch.paths in stacksync.yaml).

Runs are never interactive in watch mode; confirmation is skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		if len(app.cfg.Watch.Paths) == 0 {
			return fmt.Errorf("watch.paths is empty in the configuration")
		}

		source, err := app.environment(syncSource)
		if err != nil {
			return err
		}
		target, err := app.environment(syncTarget)
		if err != nil {
			return err
		}
		runner, _, err := app.buildRunner()
		if err != nil {
			return err
		}

		logger := logging.New(app.out, "watch")
		run := func(ctx context.Context, names []string) error {
			summary, err := runner.Run(ctx, reconcile.Options{
				Source: source,
				Target: target,
				Names:  names,
			})
			if err != nil {
				return err
			}
			fmt.Print(ui.RenderSummary(syncSource, syncTarget, summary))
			return nil
		}

		w, err := watchd.New(app.cfg.Watch.Paths, app.cfg.Watch.Debounce, run, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		w.Start(ctx)
		defer w.Stop()

		<-ctx.Done()
		logger.Printf("shutting down after %d runs", w.Triggers())
		return nil
	},
}

// buildRunOptions resolves the environments, the optional allowlist, and
// the confirmation prompt for an interactive sync.
func buildRunOptions(app *app) (reconcile.Options, error) {
	var opts reconcile.Options

	source, err := app.environment(syncSource)
	if err != nil {
		return opts, err
	}
	target, err := app.environment(syncTarget)
	if err != nil {
		return opts, err
	}
	opts.Source = source
	opts.Target = target

	if syncNamesFile != "" {
		names, err := inventory.ReadNamesFile(syncNamesFile)
		if err != nil {
			return opts, err
		}
		opts.Names = names
	}

	if !syncYes && term.IsTerminal(int(syscall.Stdin)) {
		opts.Confirm = confirmDeployment
	}
	return opts, nil
}

func confirmDeployment(scheduled []string) bool {
	ok := false
	prompt := huh.NewConfirm().
		Title(fmt.Sprintf("Deploy %d functions to %s?", len(scheduled), syncTarget)).
		Description(strings.Join(scheduled, ", ")).
		Value(&ok)
	if err := prompt.Run(); err != nil {
		return false
	}
	return ok
}

func init() {
	for _, cmd := range []*cobra.Command{functionsSyncCmd, functionsWatchCmd} {
		cmd.Flags().StringVar(&syncSource, "source", "", "source environment name")
		cmd.Flags().StringVar(&syncTarget, "target", "", "target environment name")
		cmd.MarkFlagRequired("source")
		cmd.MarkFlagRequired("target")
	}
	functionsSyncCmd.Flags().BoolVarP(&syncYes, "yes", "y", false, "skip the confirmation prompt")
	functionsSyncCmd.Flags().StringVar(&syncNamesFile, "names", "", "file listing function names to restrict the run to")
	functionsSyncCmd.Flags().StringVar(&syncReport, "report", "", "write a YAML run report to this path")

	functionsListCmd.Flags().StringVar(&listEnv, "env", "", "environment name")
	functionsListCmd.MarkFlagRequired("env")

	functionsCmd.GroupID = "sync"
	functionsCmd.AddCommand(functionsSyncCmd, functionsListCmd, functionsWatchCmd)
	rootCmd.AddCommand(functionsCmd)
}
