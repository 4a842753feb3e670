package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoints are the remote services the dashboard talks to.
type Endpoints struct {
	// FullNodeURL is the Sui JSON-RPC endpoint.
	FullNodeURL string
	// StatsAPIURL is the off-chain pool statistics endpoint (full URL, GET).
	StatsAPIURL string
	// RouterAPIURL is the base URL of the swap routing aggregator.
	RouterAPIURL string
	// WalletBridgeURL is the base URL of the signer bridge for the connected wallet.
	WalletBridgeURL string
}

// Protocol identifies the on-chain CLMM deployment.
type Protocol struct {
	// PackageID is the original CLMM package; event and struct types are rooted here.
	PackageID string
	// IntegratePackageID hosts the pool_script entry functions payloads call into.
	IntegratePackageID string
	// GlobalConfigID is the shared GlobalConfig object passed to every entry call.
	GlobalConfigID string
	// RewarderVaultID is the shared RewarderGlobalVault reward claims draw from.
	RewarderVaultID string
}

func loadEndpointConfig() (Endpoints, error) {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var (
		ep  Endpoints
		err error
	)

	if ep.FullNodeURL, err = getEnv("SUI_FULLNODE_URL"); err != nil {
		return ep, err
	}
	if ep.StatsAPIURL, err = getEnv("STATS_API_URL"); err != nil {
		return ep, err
	}
	if ep.RouterAPIURL, err = getEnv("ROUTER_API_URL"); err != nil {
		return ep, err
	}
	if ep.WalletBridgeURL, err = getEnv("WALLET_BRIDGE_URL"); err != nil {
		return ep, err
	}

	log.Debug().
		Str("FullNodeURL", ep.FullNodeURL).
		Str("StatsAPIURL", ep.StatsAPIURL).
		Str("RouterAPIURL", ep.RouterAPIURL).
		Str("WalletBridgeURL", ep.WalletBridgeURL).
		Msg("Endpoint configuration loaded successfully.")

	return ep, nil
}

func loadProtocolConfig() (Protocol, error) {
	var (
		p   Protocol
		err error
	)

	if p.PackageID, err = getEnv("CLMM_PACKAGE_ID"); err != nil {
		return p, err
	}
	if p.IntegratePackageID, err = getEnv("CLMM_INTEGRATE_PACKAGE_ID"); err != nil {
		return p, err
	}
	if p.GlobalConfigID, err = getEnv("CLMM_GLOBAL_CONFIG_ID"); err != nil {
		return p, err
	}
	if p.RewarderVaultID, err = getEnv("CLMM_REWARDER_VAULT_ID"); err != nil {
		return p, err
	}

	return p, nil
}
