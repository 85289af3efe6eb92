package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"tokenomics-indexer/internal/app"
)

var (
	simulateBurned    string
	simulateTreasury  string
	simulatePrice     float64
	simulateLiquidity float64
	simulateNotify    bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "使用给定数值演练一次索引流程（不写入存储）",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateBurned == "" || simulateTreasury == "" {
			return errors.New("--burned 与 --treasury 必须提供")
		}

		return getApp().Simulate(cmd.Context(), cmd.OutOrStdout(), app.SimulateOptions{
			BurnedSupply:        simulateBurned,
			TreasurySupply:      simulateTreasury,
			PriceUSD:            simulatePrice,
			OnChainLiquidityUSD: simulateLiquidity,
			Notify:              simulateNotify,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateBurned, "burned", "", "燃烧地址持有量（已按精度换算）")
	simulateCmd.Flags().StringVar(&simulateTreasury, "treasury", "", "国库地址持有量（已按精度换算）")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "代币美元价格")
	simulateCmd.Flags().Float64Var(&simulateLiquidity, "liquidity", 0, "链上流动性（美元）")
	simulateCmd.Flags().BoolVar(&simulateNotify, "notify", false, "失败或回退时发送告警")
}
