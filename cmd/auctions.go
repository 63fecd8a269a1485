package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tranvictor/auctioneer/aggregator"
	"github.com/tranvictor/auctioneer/config"
	"github.com/tranvictor/auctioneer/reconciler"
	"github.com/tranvictor/auctioneer/ui"
	"github.com/tranvictor/auctioneer/util"
)

// quietUI drops what the displays print so only json reaches stdout.
type quietUI struct {
	ui.UI
}

func (quietUI) Info(string, ...any) {}
func (quietUI) Success(string, ...any) {}
func (quietUI) Warn(string, ...any) {}
func (quietUI) Section(string) {}
func (quietUI) KeyValue([][2]string) {}
func (quietUI) Table(headers []string, rows [][]string) {}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(appUI.Writer(), string(out))
	return nil
}

// pickAuction resolves an auction argument against a fresh view.
func pickAuction(view reconciler.View, hint string) (*aggregator.AuctionSnapshot, error) {
	if !view.FactoryDeployed {
		return nil, fmt.Errorf("the auction factory is not deployed on %s", view.Identity.String())
	}
	return util.PickAuction(view.Auctions, hint)
}

var auctionsCmd = &cobra.Command{
	Use:   "auctions [auction]",
	Short: "List every auction, or show one in detail",
	Long: `Without argument, lists every auction the factory created, in the factory's order.
With an auction address, a position like #2 or a part of the token name, shows that
auction with what the --from account can do on it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		view, err := a.refresh(ctx)
		if err != nil {
			return err
		}
		if !view.FactoryDeployed {
			appUI.Warn("The auction factory is not deployed on %s. Put its artifact under %s or set --factory.",
				a.network.GetName(), settings.ArtifactsDir)
			return nil
		}
		now := time.Now()
		out := appUI
		if config.JSON {
			out = quietUI{appUI}
		}

		if len(args) == 0 {
			ds := util.DisplayAuctions(out, view.Auctions, now, a.network)
			if config.JSON {
				return printJSON(ds)
			}
			return nil
		}

		snap, err := pickAuction(view, args[0])
		if err != nil {
			return err
		}
		actions, err := a.controller.LegalActions(ctx, snap)
		if err != nil && a.session.Identity().HasAccount() {
			return err
		}
		d := util.DisplayAuction(out, snap, a.account(), actions, now, a.network)
		if config.JSON {
			return printJSON(d)
		}
		return nil
	},
}

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "List the collection tokens your account owns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		if err := a.requireAccount(); err != nil {
			return err
		}
		view, err := a.refresh(ctx)
		if err != nil {
			return err
		}
		if !view.CollectionDeployed {
			appUI.Warn("The nft collection is not deployed on %s.", a.network.GetName())
			return nil
		}
		if config.JSON {
			return printJSON(util.DisplayTokens(quietUI{appUI}, view.Tokens))
		}
		util.DisplayTokens(appUI, view.Tokens)
		balance, err := a.session.Balance(ctx)
		if err == nil {
			appUI.Info("Balance: %s %s", util.FormatAmount(balance, a.network), a.network.GetNativeTokenSymbol())
		}
		return nil
	},
}

func init() {
	AddCommonFlagsToReadingCmds(auctionsCmd)
	AddCommonFlagsToReadingCmds(tokensCmd)
	rootCmd.AddCommand(auctionsCmd)
	rootCmd.AddCommand(tokensCmd)
}
