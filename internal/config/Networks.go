/*

This file contains the static per-network table used for voting and veBAL sync.

The default table is embedded from networks.yaml. Deployments can point NETWORKS_FILE
at their own copy to change RPCs, subgraphs or contract addresses without a rebuild.

*/

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MainnetChainID is the chain holding the canonical veBAL locks and the gauge controller.
const MainnetChainID uint64 = 1

var (
	ErrUnknownNetwork     = errors.New("unknown network")
	ErrMissingContract    = errors.New("contract address not configured")
	ErrDuplicateNetwork   = errors.New("duplicate network")
	ErrMissingMainnetNode = errors.New("networks table has no mainnet entry")
)

//go:embed networks.yaml
var defaultNetworksYAML []byte

// NetworkContracts holds the contract addresses used on a network.
type NetworkContracts struct {
	GaugeController           string `yaml:"gaugeController"`
	VeBAL                     string `yaml:"veBAL"`
	OmniVotingEscrow          string `yaml:"omniVotingEscrow"`
	GaugeWorkingBalanceHelper string `yaml:"gaugeWorkingBalanceHelper"`
}

// Network is one entry of the static network table.
type Network struct {
	ChainID           uint64           `yaml:"chainId" json:"chain_id"`
	Key               string           `yaml:"key" json:"key"`
	Name              string           `yaml:"name" json:"name"`
	LayerZeroChainID  uint16           `yaml:"layerZeroChainId" json:"layer_zero_chain_id"`
	SupportsVeBalSync bool             `yaml:"supportsVeBalSync" json:"supports_vebal_sync"`
	RPC               string           `yaml:"rpc" json:"-"`
	Subgraph          string           `yaml:"subgraph" json:"-"`
	Contracts         NetworkContracts `yaml:"contracts" json:"-"`
}

// Networks is the loaded network table. Populated by LoadConfig.
var Networks []Network

// ParseNetworks decodes a YAML network table and validates it.
func ParseNetworks(data []byte) ([]Network, error) {
	var networks []Network
	if err := yaml.Unmarshal(data, &networks); err != nil {
		return nil, fmt.Errorf("failed to parse networks table: %w", err)
	}

	seen := make(map[uint64]struct{}, len(networks))
	hasMainnet := false
	for _, n := range networks {
		if _, dup := seen[n.ChainID]; dup {
			return nil, fmt.Errorf("%w: chain id %d", ErrDuplicateNetwork, n.ChainID)
		}
		seen[n.ChainID] = struct{}{}
		if n.ChainID == MainnetChainID {
			hasMainnet = true
		}
	}
	if !hasMainnet {
		return nil, ErrMissingMainnetNode
	}
	return networks, nil
}

// loadNetworks loads the embedded table, or the file named by NETWORKS_FILE.
func loadNetworks() error {
	data := defaultNetworksYAML
	if path, ok := os.LookupEnv("NETWORKS_FILE"); ok && path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read NETWORKS_FILE %s: %w", path, err)
		}
		data = fileData
	}

	networks, err := ParseNetworks(data)
	if err != nil {
		return err
	}
	Networks = networks
	return nil
}

// DefaultNetworks returns the embedded network table.
func DefaultNetworks() []Network {
	networks, err := ParseNetworks(defaultNetworksYAML)
	if err != nil {
		panic(err)
	}
	return networks
}

// NetworkByID finds a network in the given table.
func NetworkByID(networks []Network, chainID uint64) (Network, error) {
	for _, n := range networks {
		if n.ChainID == chainID {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("%w: %d", ErrUnknownNetwork, chainID)
}

// NetworkByKey finds a network by its short key (e.g. "arbitrum").
func NetworkByKey(networks []Network, key string) (Network, error) {
	for _, n := range networks {
		if n.Key == key {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("%w: %s", ErrUnknownNetwork, key)
}

// VeBalSyncNetworks returns the networks that support veBAL cross-chain sync,
// in table order.
func VeBalSyncNetworks(networks []Network) []Network {
	out := make([]Network, 0, len(networks))
	for _, n := range networks {
		if n.SupportsVeBalSync {
			out = append(out, n)
		}
	}
	return out
}

// Mainnet returns the mainnet entry of the given table.
func Mainnet(networks []Network) (Network, error) {
	return NetworkByID(networks, MainnetChainID)
}

// RequireContract returns the address or a validation error naming the contract.
func RequireContract(network Network, name, address string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("%w: %s on %s", ErrMissingContract, name, network.Key)
	}
	return address, nil
}
