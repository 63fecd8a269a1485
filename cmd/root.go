// Copyright © 2018 Victor Tran
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tranvictor/auctioneer/accounts"
	"github.com/tranvictor/auctioneer/config"
	"github.com/tranvictor/auctioneer/ui"
	"github.com/tranvictor/auctioneer/util"
)

var appUI ui.UI = ui.NewTerminalUI()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "auctioneer",
	Short: "Browse and take part in on-chain NFT auctions",
	Long: fmt.Sprintf(`Auctioneer is a command line client for an NFT auction dapp. It lists every
auction a factory contract created, shows what the selected account can do with
each of them and performs those actions: approve, start, bid, withdraw and end.
It also mints tokens into the collection, pins their artwork to IPFS and creates
new auctions.

Auctioneer keeps its files under %s:
	1. config.yaml: nodes per network, contract addresses, IPFS gateway, Pinata keys
	2. artifacts/: contract build artifacts whose "networks" section records deployments
	3. networks/: custom network definitions
	4. <address>.json: your registered accounts

Every config key can also be set with an %s_ prefixed env var, e.g. %s_PINATA_JWT.
Node urls per network can be overridden with the network's node env var, see
"auctioneer networks list".`,
		accounts.DefaultDir(), config.EnvPrefix, config.EnvPrefix,
	),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

// commandContext is cancelled on interrupt so scans and receipt waits stop.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.PersistentFlags().StringVarP(&config.Network, "network", "k", "", "network to use, see \"auctioneer networks list\". Defaults to the config file's network or mainnet.")
	rootCmd.PersistentFlags().StringVarP(&config.From, "from", "f", "", "account to act as: an address or a hint to look it up among your accounts. See \"auctioneer account list\".")
	rootCmd.PersistentFlags().StringVar(&config.ConfigFile, "config", "", "config file, default is "+accounts.DefaultDir()+"/config.yaml")
	rootCmd.PersistentFlags().IntVar(&config.Workers, "workers", 0, "how many auctions or tokens are read at once")
	rootCmd.PersistentFlags().StringVar(&config.Gateway, "gateway", "", "IPFS gateway used to resolve ipfs:// uris")
	rootCmd.PersistentFlags().StringVar(&config.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&config.Debug, "debug", false, "development logging with caller information")
	rootCmd.PersistentFlags().StringVar(&config.ArtifactsDir, "artifacts", "", "directory holding the contract artifacts")
	rootCmd.PersistentFlags().StringVar(&config.FactoryAddress, "factory", "", "auction factory address, overrides the artifacts")
	rootCmd.PersistentFlags().StringVar(&config.CollectionAddress, "collection", "", "nft collection address, overrides the artifacts")

	if err := rootCmd.Execute(); err != nil {
		util.DisplayError(appUI, err)
		os.Exit(1)
	}
}
