package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tranvictor/auctioneer/config"
)

func AddCommonFlagsToTransactionalCmds(c *cobra.Command) {
	c.PersistentFlags().
		StringVar(&config.TxType, "tx-type", "", "\"legacy\" or \"dynamic\". Empty takes the config file's value.")
	c.PersistentFlags().
		Float64Var(&config.GasMargin, "gas-margin", 0, "Share added on top of the estimated gas, 0.2 is 20%. Zero takes the config file's value.")
	c.PersistentFlags().
		DurationVar(&config.RPCTimeout, "rpc-timeout", 0, "Bound on each rpc round trip. Zero takes the config file's value.")
	c.PersistentFlags().
		BoolVarP(&config.Yes, "yes", "y", false, "Sign without asking for confirmation.")
}

func AddCommonFlagsToReadingCmds(c *cobra.Command) {
	c.PersistentFlags().
		BoolVar(&config.JSON, "json", false, "Print json instead of tables.")
	c.PersistentFlags().
		BoolVar(&config.TokensByLogs, "by-logs", false, "Find owned tokens from Transfer logs instead of walking the whole supply.")
	c.PersistentFlags().
		Uint64Var(&config.FromBlock, "from-block", 0, "First block searched by --by-logs.")
}
