package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tranvictor/auctioneer/accounts"
	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/config"
	"github.com/tranvictor/auctioneer/logger"
)

// settings is the config file with the command line flags written over it.
var settings *config.File

var log = zap.NewNop()

func loadSettings(cmd *cobra.Command, args []string) error {
	f, err := config.Load(config.ConfigFile, accounts.DefaultDir())
	if err != nil {
		return err
	}
	writeFlags(f)
	settings = f
	log = logger.Setup(f.LogLevel, config.Debug)
	log.Debug("settings loaded",
		zap.String("network", f.Network),
		zap.String("artifacts", f.ArtifactsDir),
		zap.Int("workers", f.Workers),
	)
	return nil
}

// writeFlags lets every flag that was set win over the file.
func writeFlags(f *config.File) {
	if config.Network != "" {
		f.Network = config.Network
	}
	if config.From != "" {
		f.From = config.From
	}
	if config.Workers > 0 {
		f.Workers = config.Workers
	}
	if config.Gateway != "" {
		f.Gateway = config.Gateway
	}
	if config.LogLevel != "" {
		f.LogLevel = config.LogLevel
	}
	if config.ArtifactsDir != "" {
		f.ArtifactsDir = config.ArtifactsDir
	}
	if config.TxType != "" {
		f.TxType = strings.ToLower(config.TxType)
	}
	if config.GasMargin > 0 {
		f.GasMargin = config.GasMargin
	}
	if config.RPCTimeout > 0 {
		f.RPCTimeout = config.RPCTimeout
	}
	if f.Contracts == nil {
		f.Contracts = map[string]string{}
	}
	if config.FactoryAddress != "" {
		f.Contracts[strings.ToLower(aucommon.AuctionFactoryArtifact)] = config.FactoryAddress
	}
	if config.CollectionAddress != "" {
		f.Contracts[strings.ToLower(aucommon.NFTArtifact)] = config.CollectionAddress
	}
}
