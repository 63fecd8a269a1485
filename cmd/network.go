package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tranvictor/auctioneer/networks"
)

var (
	NetworkConfig string
	NetworkForce  bool
)

var addNetworkCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a network to the supported networks list locally",
	Long: `--network-config takes a json file path OR a json string in the following format:
	{
		"name": "network_name",
		"alternative_names": ["alternative_name_1"],
		"chain_id": 31337,
		"native_token_symbol": "ETH",
		"native_token_decimal": 18,
		"block_time": 2,
		"node_variable_name": "MY_NETWORK_NODE",
		"default_nodes": {
			"node_name_1": "node_url_1"
		},
		"deployment_aliases": ["5777"]
	}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		content := strings.TrimSpace(NetworkConfig)
		if content == "" {
			return fmt.Errorf("pass the network json with --network-config")
		}
		if !strings.HasPrefix(content, "{") {
			raw, err := os.ReadFile(content)
			if err != nil {
				return fmt.Errorf("couldn't read the network config file: %w", err)
			}
			content = string(raw)
		}
		newNetwork, err := networks.NewNetworkFromJSON([]byte(content))
		if err != nil {
			return err
		}

		registry := networks.Default()
		if err := registry.LoadCustomNetworks(settings.NetworksDir); err != nil {
			return err
		}
		for _, name := range append([]string{newNetwork.GetName()}, newNetwork.GetAlternativeNames()...) {
			if _, err := registry.Get(name); err == nil && !NetworkForce {
				return fmt.Errorf("network with name %s already exists, use --force to replace it", name)
			}
		}
		if err := networks.SaveCustomNetwork(settings.NetworksDir, newNetwork); err != nil {
			return fmt.Errorf("failed to save the new network: %w", err)
		}
		appUI.Success("Network %s with chain ID %d saved to %s.", newNetwork.GetName(), newNetwork.GetChainID(), settings.NetworksDir)
		return nil
	},
}

var listNetworkCmd = &cobra.Command{
	Use:   "list",
	Short: "Show all of supported networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := networks.Default()
		if err := registry.LoadCustomNetworks(settings.NetworksDir); err != nil {
			return err
		}
		for i, n := range registry.List() {
			nodes := settings.NodesFor(n.GetName())
			if nodes == nil {
				nodes = networks.Nodes(n)
			}
			appUI.Section(fmt.Sprintf("%d. %s", i+1, n.GetName()))
			rows := [][2]string{
				{"Chain ID", fmt.Sprintf("%d", n.GetChainID())},
				{"Also known as", strings.Join(n.GetAlternativeNames(), ", ")},
				{"Native token", n.GetNativeTokenSymbol()},
				{"Node env var", n.GetNodeVariableName()},
			}
			names := make([]string, 0, len(nodes))
			for name := range nodes {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				rows = append(rows, [2]string{name, nodes[name]})
			}
			appUI.KeyValue(rows)
		}
		appUI.Info("To add a network:\n> auctioneer networks add --network-config <json>")
		appUI.Info("To delete one, delete its json file in %s.", settings.NetworksDir)
		return nil
	},
}

var networkCmd = &cobra.Command{
	Use:     "networks",
	Aliases: []string{"network"},
	Short:   "Manage the networks auctioneer supports",
}

func init() {
	addNetworkCmd.Flags().StringVar(&NetworkConfig, "network-config", "", "path to the network config json file, or the json itself")
	addNetworkCmd.Flags().BoolVar(&NetworkForce, "force", false, "replace a network of the same name")

	networkCmd.AddCommand(listNetworkCmd)
	networkCmd.AddCommand(addNetworkCmd)
	rootCmd.AddCommand(networkCmd)
}
