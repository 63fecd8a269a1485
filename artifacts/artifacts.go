// Package artifacts reads truffle style contract build artifacts: the ABI of a
// contract plus its per-network deployment table.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	aucommon "github.com/tranvictor/auctioneer/common"
)

type Deployment struct {
	Address         string `json:"address"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

type Artifact struct {
	ContractName string                `json:"contractName"`
	ABI          json.RawMessage       `json:"abi"`
	Networks     map[string]Deployment `json:"networks"`

	parsed *abi.ABI
}

func ParseArtifact(content []byte) (*Artifact, error) {
	a := &Artifact{}
	if err := json.Unmarshal(content, a); err != nil {
		return nil, fmt.Errorf("couldn't decode artifact: %w", err)
	}
	if a.ContractName == "" {
		return nil, fmt.Errorf("artifact has no contractName")
	}
	if len(a.ABI) > 0 && string(a.ABI) != "null" {
		parsed, err := abi.JSON(strings.NewReader(string(a.ABI)))
		if err != nil {
			return nil, fmt.Errorf("artifact %s has an invalid abi: %w", a.ContractName, err)
		}
		a.parsed = &parsed
	}
	return a, nil
}

// Store holds artifacts by contract name. The built-in ABIs are always
// known; only their deployments are missing until loaded or overridden.
type Store struct {
	mu        sync.RWMutex
	artifacts map[string]*Artifact
}

func NewStore() *Store {
	s := &Store{artifacts: map[string]*Artifact{}}
	for _, name := range []string{
		aucommon.AuctionFactoryArtifact,
		aucommon.AuctionArtifact,
		aucommon.NFTArtifact,
	} {
		parsed, _ := aucommon.ABIByArtifactName(name)
		s.artifacts[name] = &Artifact{
			ContractName: name,
			Networks:     map[string]Deployment{},
			parsed:       parsed,
		}
	}
	return s
}

// LoadDir adds every *.json artifact found in dir. A missing dir is not an
// error: every lookup will report ErrNotDeployed instead.
func (s *Store) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("failed to glob artifacts in %s: %w", dir, err)
	}
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read artifact %s: %w", file, err)
		}
		a, err := ParseArtifact(content)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		s.Add(a)
	}
	return nil
}

// Add merges a into the store. Deployments of an already known contract are
// merged, with a's entries winning.
func (s *Store) Add(a *Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, found := s.artifacts[a.ContractName]
	if !found {
		if a.Networks == nil {
			a.Networks = map[string]Deployment{}
		}
		s.artifacts[a.ContractName] = a
		return
	}
	if a.parsed != nil {
		existing.parsed = a.parsed
	}
	for id, d := range a.Networks {
		existing.Networks[id] = d
	}
}

// SetAddress records a deployment by hand, e.g. from the config file.
func (s *Store) SetAddress(name string, deploymentID string, addr common.Address) {
	s.Add(&Artifact{
		ContractName: name,
		Networks:     map[string]Deployment{deploymentID: {Address: addr.Hex()}},
	})
}

// Resolve returns the deployed contract for the first candidate deployment
// id that has an entry. The absence of every candidate wraps
// ErrNotDeployed.
func (s *Store) Resolve(name string, deploymentIDs []string) (aucommon.ContractRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, found := s.artifacts[name]
	if !found || a.parsed == nil {
		return aucommon.ContractRef{}, fmt.Errorf("%s: no artifact: %w", name, aucommon.ErrNotDeployed)
	}
	for _, id := range deploymentIDs {
		d, found := a.Networks[id]
		if !found || !common.IsHexAddress(d.Address) {
			continue
		}
		addr := common.HexToAddress(d.Address)
		if addr == aucommon.ZeroAddress {
			continue
		}
		return aucommon.NewContractRef(name, a.parsed, addr), nil
	}
	return aucommon.ContractRef{}, fmt.Errorf(
		"%s on network %s: %w", name, strings.Join(deploymentIDs, "/"), aucommon.ErrNotDeployed,
	)
}
