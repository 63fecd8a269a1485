package networks

import (
	"os"
	"strings"
)

// CustomNodeName is the node name used when the network's node variable is
// set in the environment.
const CustomNodeName = "custom-node"

// Nodes returns the rpc endpoints to use for n. A node url in the network's
// environment variable replaces the defaults.
func Nodes(n Network) map[string]string {
	if n.GetNodeVariableName() != "" {
		if url := strings.TrimSpace(os.Getenv(n.GetNodeVariableName())); url != "" {
			return map[string]string{CustomNodeName: url}
		}
	}
	res := map[string]string{}
	for name, url := range n.GetDefaultNodes() {
		res[name] = url
	}
	return res
}

// WithNodes overrides the endpoints of n, keeping everything else.
func WithNodes(n Network, nodes map[string]string) Network {
	return &withNodes{Network: n, nodes: nodes}
}

type withNodes struct {
	Network
	nodes map[string]string
}

func (w *withNodes) GetDefaultNodes() map[string]string {
	return w.nodes
}

func (w *withNodes) GetNodeVariableName() string {
	return ""
}
