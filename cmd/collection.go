package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/lifecycle"
	"github.com/tranvictor/auctioneer/pinning"
	"github.com/tranvictor/auctioneer/util"
)

var (
	StartingBid string
	Increment   string
	Duration    string
	NFTAddress  string

	ImagePath   string
	NFTName     string
	Description string
)

// collectionRef is --nft when given, the deployed collection otherwise.
func (a *app) collectionRef() (aucommon.ContractRef, error) {
	if NFTAddress != "" {
		addr, err := util.ConvertToAddress(NFTAddress)
		if err != nil {
			return aucommon.ContractRef{}, err
		}
		return aucommon.NFTRef(addr), nil
	}
	return a.session.ResolveDeployedAddress(aucommon.NFTArtifact)
}

var createCmd = &cobra.Command{
	Use:   "create <token id>",
	Short: "Create an auction for one of your tokens",
	Long: `Creates a new auction through the factory. The auction still has to be approved
and started before anyone can bid, see "approve" and "start".`,
	Args: cobra.ExactArgs(1),
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
		id, err := aucommon.ParseTokenID(args[0])
		if err != nil {
			return err
		}
		params := lifecycle.AuctionParams{TokenID: id}
		if params.StartingBid, err = util.ConvertToAmount(StartingBid, a.network); err != nil {
			return fmt.Errorf("starting bid: %w", err)
		}
		if params.Increment, err = util.ConvertToAmount(Increment, a.network); err != nil {
			return fmt.Errorf("increment: %w", err)
		}
		if params.Duration, err = util.ConvertToDuration(Duration); err != nil {
			return err
		}
		collection, err := a.collectionRef()
		if err != nil {
			return err
		}
		params.NFT = collection.Address
		factory, err := a.session.ResolveDeployedAddress(aucommon.AuctionFactoryArtifact)
		if err != nil {
			return err
		}

		a.preview.Action = string(lifecycle.ActionCreate)
		a.preview.Token = fmt.Sprintf("id %s of %s", id, collection.Address.Hex())
		a.preview.Details = [][2]string{
			{"Starting bid", util.FormatAmount(params.StartingBid, a.network) + " " + a.network.GetNativeTokenSymbol()},
			{"Increment", util.FormatAmount(params.Increment, a.network) + " " + a.network.GetNativeTokenSymbol()},
			{"Duration", (time.Duration(params.Duration) * time.Second).String()},
		}
		auction, outcome, err := a.controller.CreateAuction(ctx, factory, params)
		if err != nil {
			return err
		}
		util.DisplayOutcome(appUI, outcome)
		appUI.Info("Your auction is at %s. Next:\n> auctioneer approve %s", auction.Hex(), auction.Hex())
		return nil
	},
}

var mintCmd = &cobra.Command{
	Use:   "mint [metadata uri]",
	Short: "Mint a token into the collection",
	Long: `Mints a token pointing at the given metadata uri. With --image instead, the image
and a metadata document built from --name and --description are pinned to IPFS
through Pinata first. Pinata credentials come from the config file or the
AUCTIONEER_PINATA_JWT env var.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		if len(args) == 0 && ImagePath == "" {
			return aucommon.Rejected("give a metadata uri or an --image to pin")
		}
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		if err := a.requireAccount(); err != nil {
			return err
		}
		collection, err := a.collectionRef()
		if err != nil {
			return err
		}

		var uri string
		if len(args) > 0 {
			uri = args[0]
		} else {
			image, err := os.Open(ImagePath)
			if err != nil {
				return err
			}
			defer image.Close()
			name := NFTName
			if name == "" {
				name = util.PromptInputWithValidation(appUI, "Token name", func(s string) error {
					if s == "" {
						return fmt.Errorf("the name can't be empty")
					}
					return nil
				})
			}
			client := pinning.NewClient("", settings.Pinata, &http.Client{}, log)
			stop := appUI.Spinner("Pinning to IPFS")
			pinned, err := client.PinNFT(ctx, name, Description, image, filepath.Base(ImagePath), nil)
			stop()
			if err != nil {
				return err
			}
			appUI.KeyValue([][2]string{
				{"Image", pinned.ImageURI},
				{"Metadata", pinned.MetadataURI},
			})
			uri = pinned.MetadataURI
		}

		a.preview.Action = string(lifecycle.ActionMint)
		a.preview.Details = [][2]string{{"Token uri", uri}}
		id, outcome, err := a.controller.Mint(ctx, collection, uri)
		if err != nil {
			return err
		}
		util.DisplayOutcome(appUI, outcome)
		if id != nil {
			appUI.Info("Minted token id %s. Next:\n> auctioneer create %s", id, id)
		}
		return nil
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer <token id> <to>",
	Short: "Transfer one of your tokens",
	Args:  cobra.ExactArgs(2),
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
		id, err := aucommon.ParseTokenID(args[0])
		if err != nil {
			return err
		}
		to, err := util.ConvertToAddress(args[1])
		if err != nil {
			return err
		}
		collection, err := a.collectionRef()
		if err != nil {
			return err
		}
		a.preview.Action = string(lifecycle.ActionTransfer)
		a.preview.Token = fmt.Sprintf("id %s of %s", id, collection.Address.Hex())
		a.preview.Details = [][2]string{{"Recipient", to.Hex()}}
		outcome, err := a.controller.Transfer(ctx, collection, to, id)
		if err != nil {
			return err
		}
		util.DisplayOutcome(appUI, outcome)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&StartingBid, "starting-bid", "", "starting bid, e.g. 0.1 or \"0.1 ETH\"")
	createCmd.Flags().StringVar(&Increment, "increment", "", "minimum raise over the highest bid")
	createCmd.Flags().StringVar(&Duration, "duration", "24", "duration in hours, or in seconds with an s suffix")
	_ = createCmd.MarkFlagRequired("starting-bid")
	_ = createCmd.MarkFlagRequired("increment")

	mintCmd.Flags().StringVar(&ImagePath, "image", "", "image file to pin to IPFS")
	mintCmd.Flags().StringVar(&NFTName, "name", "", "token name in the pinned metadata")
	mintCmd.Flags().StringVar(&Description, "description", "", "token description in the pinned metadata")

	for _, c := range []*cobra.Command{createCmd, mintCmd, transferCmd} {
		c.Flags().StringVar(&NFTAddress, "nft", "", "collection address, default is the deployed collection")
		AddCommonFlagsToTransactionalCmds(c)
		rootCmd.AddCommand(c)
	}
}
