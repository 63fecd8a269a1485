package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tranvictor/auctioneer/pinning"
)

const EnvPrefix = "AUCTIONEER"

// File is the content of config.yaml. Every key can also come from an
// AUCTIONEER_ prefixed env var, e.g. AUCTIONEER_PINATA_JWT.
type File struct {
	Network      string              `mapstructure:"network"`
	From         string              `mapstructure:"from"`
	Nodes        map[string][]string `mapstructure:"nodes"`
	ArtifactsDir string              `mapstructure:"artifacts_dir"`
	NetworksDir  string              `mapstructure:"networks_dir"`
	Gateway      string              `mapstructure:"gateway"`
	Workers      int                 `mapstructure:"workers"`
	RPCTimeout   time.Duration       `mapstructure:"rpc_timeout"`
	LogLevel     string              `mapstructure:"log_level"`
	TxType       string              `mapstructure:"tx_type"`
	GasMargin    float64             `mapstructure:"gas_margin"`
	CacheFile    string              `mapstructure:"cache_file"`
	// Contracts overrides deployment addresses per artifact name.
	Contracts map[string]string   `mapstructure:"contracts"`
	Pinata    pinning.Credentials `mapstructure:"pinata"`
}

func defaults(v *viper.Viper, dir string) {
	v.SetDefault("network", "mainnet")
	v.SetDefault("artifacts_dir", filepath.Join(dir, "artifacts"))
	v.SetDefault("networks_dir", filepath.Join(dir, "networks"))
	v.SetDefault("gateway", "https://ipfs.io")
	v.SetDefault("workers", 4)
	v.SetDefault("rpc_timeout", 30*time.Second)
	v.SetDefault("log_level", "warn")
	v.SetDefault("tx_type", "dynamic")
	v.SetDefault("gas_margin", 0.2)
	v.SetDefault("cache_file", filepath.Join(dir, "metadata_cache.json"))
	// nested keys need a default to be reachable through env vars
	v.SetDefault("pinata.jwt", "")
	v.SetDefault("pinata.api_key", "")
	v.SetDefault("pinata.api_secret", "")
}

// Load reads path, or config.yaml in dir when path is empty. A missing
// default file is fine, a missing explicit one is not.
func Load(path string, dir string) (*File, error) {
	v := viper.New()
	defaults(v, dir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("couldn't read config: %w", err)
		}
	}

	f := &File{}
	if err := v.Unmarshal(f); err != nil {
		return nil, fmt.Errorf("couldn't decode config: %w", err)
	}
	return f, nil
}

// NodesFor returns the configured node urls for a network, keyed by name.
func (f *File) NodesFor(network string) map[string]string {
	urls := f.Nodes[strings.ToLower(network)]
	if len(urls) == 0 {
		return nil
	}
	nodes := map[string]string{}
	for i, url := range urls {
		nodes[fmt.Sprintf("config-%d", i+1)] = url
	}
	return nodes
}
