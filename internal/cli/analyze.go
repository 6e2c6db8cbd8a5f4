package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"stock-orderflow/internal/app"
)

var (
	analyzeCSVPath   string
	analyzeInterval  time.Duration
	analyzeThreshold float64
	analyzeLookback  int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "离线分析一条 CSV 磁带: 阈值、大单、WAD 信号与筹码分布",
	RunE: func(cmd *cobra.Command, args []string) error {
		if analyzeCSVPath == "" {
			return errors.New("--csv is required")
		}
		return getApp().Analyze(cmd.Context(), app.AnalyzeOptions{
			CSVPath:         analyzeCSVPath,
			BarInterval:     analyzeInterval,
			SignalThreshold: analyzeThreshold,
			SignalLookback:  analyzeLookback,
		})
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeCSVPath, "csv", "", "Tape to analyze")
	analyzeCmd.Flags().DurationVar(&analyzeInterval, "bar-interval", time.Minute, "OHLC aggregation interval")
	analyzeCmd.Flags().Float64Var(&analyzeThreshold, "signal-threshold", 0, "WAD signal threshold (0 = auto)")
	analyzeCmd.Flags().IntVar(&analyzeLookback, "signal-lookback", 5, "WAD signal lookback in bars")
}
