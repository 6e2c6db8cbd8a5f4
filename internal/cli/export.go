package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"stock-orderflow/internal/app"
)

var (
	exportTapePath  string
	exportPNGPath   string
	exportChipPath  string
	exportCSVPath   string
	exportInterval  time.Duration
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export WAD series and chip distribution as CSV and/or PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportTapePath == "" {
			return errors.New("--tape is required")
		}
		return getApp().Export(cmd.Context(), app.ExportOptions{
			TapePath:    exportTapePath,
			PNGPath:     exportPNGPath,
			ChipPNGPath: exportChipPath,
			CSVPath:     exportCSVPath,
			BarInterval: exportInterval,
			MaxPoints:   exportMaxPoints,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportTapePath, "tape", "", "Tape to export from")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write WAD PNG chart")
	exportCmd.Flags().StringVar(&exportChipPath, "chip-png", "", "Path to write chip histogram PNG")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write WAD CSV data")
	exportCmd.Flags().DurationVar(&exportInterval, "bar-interval", time.Minute, "OHLC aggregation interval")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
