package networks

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var builtinNetworks = []Network{
	EthereumMainnet,
	Sepolia,
	Local,
}

var ErrNetworkNotFound = errors.New("network not found")

// Registry indexes networks by name, alternative name and chain id.
type Registry struct {
	mu           sync.RWMutex
	networks     map[string]Network
	networksByID map[uint64]Network
}

func NewRegistry(networks ...Network) (*Registry, error) {
	r := &Registry{
		networks:     map[string]Network{},
		networksByID: map[uint64]Network{},
	}
	for _, n := range networks {
		if err := r.add(n, false); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(n Network, override bool) error {
	names := append([]string{n.GetName()}, n.GetAlternativeNames()...)
	if !override {
		for _, name := range names {
			if _, found := r.networks[strings.ToLower(name)]; found {
				return fmt.Errorf("network with name or alternative name of '%s' already exists", name)
			}
		}
	}
	for _, name := range names {
		r.networks[strings.ToLower(name)] = n
	}
	r.networksByID[n.GetChainID()] = n
	return nil
}

// Add registers n, replacing any network sharing its name or chain id.
func (r *Registry) Add(n Network) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.add(n, true)
}

func (r *Registry) Get(name string) (Network, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, found := r.networks[strings.ToLower(strings.TrimSpace(name))]
	if !found {
		return nil, fmt.Errorf("network name '%s': %w", name, ErrNetworkNotFound)
	}
	return res, nil
}

func (r *Registry) GetByID(id uint64) (Network, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, found := r.networksByID[id]
	if !found {
		return nil, fmt.Errorf("network id %d: %w", id, ErrNetworkNotFound)
	}
	return res, nil
}

// List returns each distinct network once, ordered by chain id.
func (r *Registry) List() []Network {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]Network, 0, len(r.networksByID))
	for _, n := range r.networksByID {
		res = append(res, n)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].GetChainID() < res[j].GetChainID() })
	return res
}

func (r *Registry) Names() []string {
	res := []string{}
	for _, n := range r.List() {
		res = append(res, n.GetName())
		res = append(res, n.GetAlternativeNames()...)
	}
	return res
}

// LoadCustomNetworks adds every *.json network definition under dir. Files
// that fail to parse are skipped with a warning.
func (r *Registry) LoadCustomNetworks(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("failed to glob json files in %s: %w", dir, err)
	}
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", file, err)
		}
		network, err := NewNetworkFromJSON(content)
		if err != nil {
			zap.L().Warn("skipping custom network", zap.String("file", file), zap.Error(err))
			continue
		}
		if _, err := r.Get(network.GetName()); err == nil {
			zap.L().Info("custom network overrides built-in", zap.String("network", network.GetName()))
		}
		r.Add(network)
	}
	return nil
}

// SaveCustomNetwork persists n under dir so later runs pick it up.
func SaveCustomNetwork(dir string, n *GenericNetwork) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	content, err := json.MarshalIndent(n.Config(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal network config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, n.GetName()+".json"), content, 0o644)
}

func NewNetworkFromJSON(content []byte) (*GenericNetwork, error) {
	networkConfig := GenericNetworkConfig{}
	if err := json.Unmarshal(content, &networkConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal network config: %w", err)
	}
	if networkConfig.Name == "" || networkConfig.ChainID == 0 {
		return nil, fmt.Errorf("network config needs a name and a chain id")
	}
	return NewGenericNetwork(networkConfig), nil
}

var globalSupportedNetworks = mustRegistry(builtinNetworks...)

func mustRegistry(networks ...Network) *Registry {
	r, err := NewRegistry(networks...)
	if err != nil {
		panic(err)
	}
	return r
}

func Default() *Registry {
	return globalSupportedNetworks
}

func GetNetwork(name string) (Network, error) {
	return globalSupportedNetworks.Get(name)
}

func GetNetworkByID(id uint64) (Network, error) {
	return globalSupportedNetworks.GetByID(id)
}

func GetSupportedNetworks() []Network {
	return globalSupportedNetworks.List()
}

func GetSupportedNetworkNames() []string {
	return globalSupportedNetworks.Names()
}
