package cmd

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/spf13/cobra"

	"github.com/tranvictor/auctioneer/aggregator"
	"github.com/tranvictor/auctioneer/lifecycle"
	"github.com/tranvictor/auctioneer/util"
)

type auctionAction func(ctx context.Context, a *app, snap *aggregator.AuctionSnapshot, args []string) (*lifecycle.Outcome, error)

// runAuctionAction loads the auction named by args[0] for the --from
// account, runs do on it and shows the result.
func runAuctionAction(action lifecycle.Action, do auctionAction) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
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
		snap, err := pickAuction(view, args[0])
		if err != nil {
			return err
		}
		a.preview.Action = string(action)
		a.preview.Token = fmt.Sprintf("%s (id %s)", snap.Name(), snap.NFTID)

		outcome, err := do(ctx, a, snap, args[1:])
		if err != nil {
			return err
		}
		util.DisplayOutcome(appUI, outcome)
		if refreshed, found := a.reconciler.View().Auction(snap.Address); found {
			actions, _ := a.controller.LegalActions(ctx, refreshed)
			util.DisplayAuction(appUI, refreshed, a.account(), actions, time.Now(), a.network)
		}
		return nil
	}
}

var approveCmd = &cobra.Command{
	Use:   "approve <auction>",
	Short: "Let your auction take custody of its token",
	Args:  cobra.ExactArgs(1),
	RunE: runAuctionAction(lifecycle.ActionApprove, func(ctx context.Context, a *app, snap *aggregator.AuctionSnapshot, _ []string) (*lifecycle.Outcome, error) {
		return a.controller.Approve(ctx, snap)
	}),
}

var startCmd = &cobra.Command{
	Use:   "start <auction>",
	Short: "Open your approved auction for bids",
	Args:  cobra.ExactArgs(1),
	RunE: runAuctionAction(lifecycle.ActionStart, func(ctx context.Context, a *app, snap *aggregator.AuctionSnapshot, _ []string) (*lifecycle.Outcome, error) {
		return a.controller.Start(ctx, snap)
	}),
}

var bidCmd = &cobra.Command{
	Use:   "bid <auction> [total]",
	Short: "Raise your total bid on an auction",
	Long: `Raises your total bid to the given amount, e.g. "1.5" or "1.5 ETH". Whatever you
already have in escrow with the auction counts toward it, only the rest is sent.
Without an amount you are asked for one.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAuctionAction(lifecycle.ActionBid, func(ctx context.Context, a *app, snap *aggregator.AuctionSnapshot, args []string) (*lifecycle.Outcome, error) {
		var amount *big.Int
		if len(args) > 0 {
			parsed, err := util.ConvertToAmount(args[0], a.network)
			if err != nil {
				return nil, err
			}
			amount = parsed
		} else {
			util.DisplayAuction(appUI, snap, a.account(), nil, time.Now(), a.network)
			amount = util.PromptAmount(appUI, "Your total bid", func(n *big.Int) error {
				_, err := lifecycle.ValidateBid(a.account(), snap, n)
				return err
			}, a.network)
		}
		if transfer, err := lifecycle.ValidateBid(a.account(), snap, amount); err == nil {
			a.preview.Details = [][2]string{
				{"Total bid", util.FormatAmount(amount, a.network) + " " + a.network.GetNativeTokenSymbol()},
				{"Sent now", util.FormatAmount(transfer, a.network) + " " + a.network.GetNativeTokenSymbol()},
			}
		}
		return a.controller.Bid(ctx, snap, amount)
	}),
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <auction>",
	Short: "Take back the escrow of a bid that was outbid",
	Args:  cobra.ExactArgs(1),
	RunE: runAuctionAction(lifecycle.ActionWithdraw, func(ctx context.Context, a *app, snap *aggregator.AuctionSnapshot, _ []string) (*lifecycle.Outcome, error) {
		return a.controller.Withdraw(ctx, snap)
	}),
}

var endCmd = &cobra.Command{
	Use:   "end <auction>",
	Short: "Settle an auction whose time is up",
	Args:  cobra.ExactArgs(1),
	RunE: runAuctionAction(lifecycle.ActionEnd, func(ctx context.Context, a *app, snap *aggregator.AuctionSnapshot, _ []string) (*lifecycle.Outcome, error) {
		return a.controller.End(ctx, snap)
	}),
}

func init() {
	for _, c := range []*cobra.Command{approveCmd, startCmd, bidCmd, withdrawCmd, endCmd} {
		AddCommonFlagsToTransactionalCmds(c)
		rootCmd.AddCommand(c)
	}
}
