package cmd

import (
	"os"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taskdeck/config"
	"taskdeck/domain"
	"taskdeck/storage"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the full task collection to a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.New(cfg.StorageConnectionString, cfg.TasksTable)
		if err != nil {
			return err
		}
		tasks, err := store.FetchTasks(cmd.Context())
		if err != nil {
			return err
		}

		data, err := sonic.ConfigStd.MarshalIndent(tasks, "", "  ")
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = "tasks-" + domain.DateOf(time.Now()).String() + ".json"
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		log.Infof("exported %d tasks to %s", len(tasks), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default tasks-<date>.json)")
	rootCmd.AddCommand(exportCmd)
}
