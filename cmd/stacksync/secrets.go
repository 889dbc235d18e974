package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stacksync/internal/logging"
	"stacksync/internal/secrets"
	"stacksync/internal/ui"
)

var (
	secretsEnv       string
	secretsFile      string
	secretsOverwrite bool
	secretsDryRun    bool
)

var secretsCmd = &cobra.Command{
	Use:     "secrets",
	GroupID: "sync",
	Short:   "Push function secrets to an environment",
}

var secretsPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push secrets from an env file to an environment",
	Long: `Push KEY=VALUE pairs from an env-format file to the environment's
function secrets.

Secret values are write-only on the platform, so existing secrets cannot
be compared by value: without --overwrite only names missing on the
environment are pushed. Names listed under secrets.exclude in the
manifest are never touched.

Example:
  stacksync secrets push --env prod --file .env.prod
  stacksync secrets push --env prod --file .env.prod --overwrite --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		env, err := app.environment(secretsEnv)
		if err != nil {
			return err
		}
		api, err := app.apiClient()
		if err != nil {
			return err
		}

		desired, err := secrets.ParseEnvFile(secretsFile)
		if err != nil {
			return err
		}

		syncer := secrets.NewSyncer(api, logging.New(app.out, "secrets"))
		plan, err := syncer.Plan(cmd.Context(), env, desired, app.cfg.Secrets.Exclude, secretsOverwrite)
		if err != nil {
			return err
		}

		for _, sec := range plan.Push {
			fmt.Println("  push " + sec.Name)
		}
		for _, name := range plan.Skipped {
			fmt.Println("  skip " + name)
		}
		if secretsDryRun {
			fmt.Println(ui.Ok(fmt.Sprintf("dry run: %d secrets would be pushed", len(plan.Push))))
			return nil
		}

		if err := syncer.Apply(cmd.Context(), env, plan); err != nil {
			return err
		}
		fmt.Println(ui.Ok(fmt.Sprintf("pushed %d secrets to %s", len(plan.Push), env.Name)))
		return nil
	},
}

func init() {
	secretsPushCmd.Flags().StringVar(&secretsEnv, "env", "", "target environment name")
	secretsPushCmd.Flags().StringVar(&secretsFile, "file", "", "env-format file with the desired secrets")
	secretsPushCmd.Flags().BoolVar(&secretsOverwrite, "overwrite", false, "also push names already present")
	secretsPushCmd.Flags().BoolVar(&secretsDryRun, "dry-run", false, "plan only, push nothing")
	secretsPushCmd.MarkFlagRequired("env")
	secretsPushCmd.MarkFlagRequired("file")

	secretsCmd.AddCommand(secretsPushCmd)
	rootCmd.AddCommand(secretsCmd)
}
