// Package network resolves which Solana network is active and produces a
// prioritized, health-checked list of RPC endpoints for it.
package network

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Network identifiers. "mainnet" is accepted as an alias for mainnet-beta on
// input; the canonical id is always one of these values.
const (
	MainnetBeta = "mainnet-beta"
	Devnet      = "devnet"
	Testnet     = "testnet"
)

// USDC mint addresses. The devnet mint is the circle-published devnet USDC;
// testnet has no official USDC so the devnet mint is reused there.
const (
	usdcMintMainnet = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	usdcMintDevnet  = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
)

// Submission timeout budgets. Mainnet gets a longer budget because RPC
// indexing and cold starts are measurably slower there than on dev networks.
const (
	mainnetSubmitTimeout = 90 * time.Second
	devnetSubmitTimeout  = 30 * time.Second
)

// Profile is the resolved set of network parameters for the active
// environment. It is computed once per process lifetime and cached.
type Profile struct {
	Network       string
	RPCEndpoints  []string
	TokenMint     solana.PublicKey
	Commitment    rpc.CommitmentType
	SubmitTimeout time.Duration
}

// Primary returns the highest-priority RPC endpoint.
func (p *Profile) Primary() string {
	return p.RPCEndpoints[0]
}

// Canonicalize maps accepted network names to canonical ids. It returns an
// error for unknown names so that a typoed override cannot silently select
// the wrong network.
func Canonicalize(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mainnet", "mainnet-beta":
		return MainnetBeta, nil
	case "devnet":
		return Devnet, nil
	case "testnet":
		return Testnet, nil
	default:
		return "", fmt.Errorf("unknown network: %q", name)
	}
}

// Options configure profile resolution.
type Options struct {
	// BuildRelease marks a release build. Release builds must never resolve
	// to a non-production network.
	BuildRelease bool

	// Override is the explicit, authoritative network override (validated;
	// wins over everything).
	Override string

	// DevOverridePath is the dev-only runtime override file. Only honored
	// in debug builds.
	DevOverridePath string

	// Paid provider keys. Providers with a key present are prepended to the
	// public endpoint list, highest trust first.
	HeliusAPIKey    string
	QuickNodeAPIKey string
	QuickNodeHost   string
}

// selectNetwork applies the resolution precedence:
// explicit validated override, then build-type default, then the dev-only
// runtime override. A rejected override and an ignored dev override are
// reported separately so the caller can log them before discarding.
func selectNetwork(opts Options) (network, ignoredDevOverride, rejectedOverride string) {
	if opts.Override != "" {
		n, err := Canonicalize(opts.Override)
		if err == nil {
			return n, "", ""
		}
		// A typoed override must never silently select a different
		// network without a trace.
		rejectedOverride = opts.Override
	}

	devOverride := readDevOverride(opts.DevOverridePath)

	if opts.BuildRelease {
		// Production builds resolve the production network id regardless of
		// any non-authoritative override.
		if devOverride != "" && devOverride != MainnetBeta {
			return MainnetBeta, devOverride, rejectedOverride
		}
		return MainnetBeta, "", rejectedOverride
	}

	if devOverride != "" {
		return devOverride, "", rejectedOverride
	}
	return Devnet, "", rejectedOverride
}

func readDevOverride(path string) string {
	if path == "" {
		return ""
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	n, err := Canonicalize(string(raw))
	if err != nil {
		return ""
	}
	return n
}

// endpoints builds the prioritized endpoint list for a network: configured
// paid providers in front (Helius first), then the public endpoint.
func endpoints(network string, opts Options) []string {
	var list []string

	if opts.HeliusAPIKey != "" {
		switch network {
		case MainnetBeta:
			list = append(list, "https://mainnet.helius-rpc.com/?api-key="+opts.HeliusAPIKey)
		case Devnet:
			list = append(list, "https://devnet.helius-rpc.com/?api-key="+opts.HeliusAPIKey)
		}
	}

	if opts.QuickNodeAPIKey != "" && opts.QuickNodeHost != "" {
		list = append(list, fmt.Sprintf("https://%s/%s/", opts.QuickNodeHost, opts.QuickNodeAPIKey))
	}

	switch network {
	case MainnetBeta:
		list = append(list, rpc.MainNetBeta_RPC)
	case Devnet:
		list = append(list, rpc.DevNet_RPC)
	case Testnet:
		list = append(list, rpc.TestNet_RPC)
	}

	return list
}

func buildProfile(network string, opts Options) *Profile {
	mint := usdcMintMainnet
	timeout := mainnetSubmitTimeout
	if network != MainnetBeta {
		mint = usdcMintDevnet
		timeout = devnetSubmitTimeout
	}

	return &Profile{
		Network:       network,
		RPCEndpoints:  endpoints(network, opts),
		TokenMint:     solana.MustPublicKeyFromBase58(mint),
		Commitment:    rpc.CommitmentConfirmed,
		SubmitTimeout: timeout,
	}
}
