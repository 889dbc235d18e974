package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stacksync/internal/config"
	"stacksync/internal/logging"
	"stacksync/internal/storage"
	"stacksync/internal/ui"
)

var (
	storageBucket       string
	storageTargetConfig string
)

var storageCmd = &cobra.Command{
	Use:     "storage",
	GroupID: "sync",
	Short:   "Mirror bucket contents between object stores",
}

var storageSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy objects missing or changed on the target store",
	Long: `Mirror one bucket from the store configured under storage: in the main
manifest to the store configured in a second manifest.

The mirror is additive: objects are matched by key and ETag, identical
objects are skipped, and nothing is ever deleted from the target.

Example:
  stacksync storage sync --bucket public-assets --target-config prod.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		targetCfg, err := config.Load(storageTargetConfig)
		if err != nil {
			return err
		}

		bucket := storageBucket
		if bucket == "" {
			bucket = app.cfg.Storage.Bucket
		}
		if bucket == "" {
			return fmt.Errorf("no bucket given (--bucket or storage.bucket)")
		}

		source, err := storage.NewStore(app.cfg.Storage)
		if err != nil {
			return err
		}
		target, err := storage.NewStore(targetCfg.Storage)
		if err != nil {
			return err
		}

		mirror := storage.NewMirror(source, target, logging.New(app.out, "storage"))
		copied, failed, err := mirror.Run(cmd.Context(), bucket)
		if err != nil {
			return err
		}

		if failed > 0 {
			fmt.Println(ui.Warn(fmt.Sprintf("copied %d objects, %d failed", copied, failed)))
			if copied == 0 {
				return fmt.Errorf("no object could be copied")
			}
			return nil
		}
		fmt.Println(ui.Ok(fmt.Sprintf("copied %d objects", copied)))
		return nil
	},
}

func init() {
	storageSyncCmd.Flags().StringVar(&storageBucket, "bucket", "", "bucket to mirror (default: storage.bucket)")
	storageSyncCmd.Flags().StringVar(&storageTargetConfig, "target-config", "", "manifest describing the target store")
	storageSyncCmd.MarkFlagRequired("target-config")

	storageCmd.AddCommand(storageSyncCmd)
	rootCmd.AddCommand(storageCmd)
}
