package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tranvictor/auctioneer/aggregator"
	"github.com/tranvictor/auctioneer/lifecycle"
	"github.com/tranvictor/auctioneer/reconciler"
	"github.com/tranvictor/auctioneer/util"
)

var RescanInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [auction]",
	Short: "Keep the auction list up to date until interrupted",
	Long: `Prints the auction list every time it changes. The list is read again on every
rescan interval and whenever the node switches chains. With an auction argument,
its bids are followed live as well.`,
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
		var watched *aggregator.AuctionSnapshot
		if len(args) > 0 {
			if watched, err = pickAuction(view, args[0]); err != nil {
				return err
			}
		}

		unsubscribe := a.reconciler.Subscribe(func(v reconciler.View) {
			appUI.Section(time.Now().Format("15:04:05") + " " + v.Identity.String())
			util.DisplayAuctions(appUI, v.Auctions, time.Now(), a.network)
		})
		defer unsubscribe()
		a.reconciler.Start(ctx)
		defer a.reconciler.Stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			a.session.WatchNetwork(gctx, a.network.GetBlockTime()*4+time.Second)
			return nil
		})
		g.Go(func() error {
			ticker := time.NewTicker(RescanInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if err := a.reconciler.Refresh(gctx); err != nil && gctx.Err() == nil {
						log.Warn("rescan failed", zap.Error(err))
					}
				}
			}
		})
		if watched != nil {
			g.Go(func() error {
				return a.controller.WatchBids(gctx, watched, func(ev lifecycle.BidEvent) {
					appUI.Info("New bid of %s %s by %s on %s",
						util.FormatAmount(ev.Amount, a.network), a.network.GetNativeTokenSymbol(),
						ev.Sender.Hex(), watched.Name())
					a.reconciler.ApplyBid(ev)
				})
			})
		}
		return g.Wait()
	},
}

func init() {
	watchCmd.Flags().DurationVar(&RescanInterval, "interval", 30*time.Second, "time between two full rescans")
	rootCmd.AddCommand(watchCmd)
}
