package cli

import (
	"github.com/spf13/cobra"

	"stock-orderflow/internal/app"
)

var (
	simulateTrades int
	simulatePrice  float64
	simulateMean   int64
	simulateSpike  float64
	simulateSeed   int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一段单边放量行情并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Trades:     simulateTrades,
			BasePrice:  simulatePrice,
			MeanAmount: simulateMean,
			SpikeRatio: simulateSpike,
			Seed:       simulateSeed,
		})
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateTrades, "trades", 50, "合成批次的成交笔数")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 10, "合成批次的基准价格")
	simulateCmd.Flags().Int64Var(&simulateMean, "mean-amount", 100000, "合成批次的平均金额 (分)")
	simulateCmd.Flags().Float64Var(&simulateSpike, "spike-ratio", 5, "尖峰订单相对均值的倍数")
	simulateCmd.Flags().Int64Var(&simulateSeed, "seed", 0, "随机种子 (0 = 按时间)")
}
