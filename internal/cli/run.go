package cli

import (
	"github.com/spf13/cobra"

	"stock-orderflow/internal/app"
)

var runCSVPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the stream processing service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), app.RunOptions{CSVPath: runCSVPath})
	},
}

func init() {
	runCmd.Flags().StringVar(&runCSVPath, "csv", "", "Tape to replay (overrides feed.csv_path)")
}
