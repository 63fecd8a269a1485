// Package config holds the values set by command line flags and the
// optional config file.
package config

import "time"

var Network string

var (
	From       string
	ConfigFile string
	LogLevel   string
	Debug      bool

	Workers    int
	Gateway    string
	RPCTimeout time.Duration
	TxType     string
	GasMargin  float64
	Yes        bool

	FactoryAddress    string
	CollectionAddress string
	ArtifactsDir      string

	TokensByLogs bool
	FromBlock    uint64
	JSON         bool
)
