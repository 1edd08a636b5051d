package network

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/singleflight"

	"github.com/split-wallet/split-wallet/internal/logger"
)

const healthProbeTimeout = 3 * time.Second

// Resolver resolves the network profile once per process lifetime and hands
// out live RPC connections with health fallback. Concurrent first callers
// are coalesced onto one resolution.
type Resolver struct {
	opts Options

	mu      sync.RWMutex
	profile *Profile
	group   singleflight.Group

	// probe checks endpoint liveness. Overridable in tests.
	probe func(ctx context.Context, endpoint string) error
}

// NewResolver creates a resolver for the given options.
func NewResolver(opts Options) *Resolver {
	return &Resolver{
		opts:  opts,
		probe: probeHealth,
	}
}

// Profile returns the cached network profile, resolving it on first use.
func (r *Resolver) Profile(ctx context.Context) *Profile {
	r.mu.RLock()
	if p := r.profile; p != nil {
		r.mu.RUnlock()
		return p
	}
	r.mu.RUnlock()

	v, _, _ := r.group.Do("profile", func() (interface{}, error) {
		r.mu.RLock()
		if p := r.profile; p != nil {
			r.mu.RUnlock()
			return p, nil
		}
		r.mu.RUnlock()

		network, ignoredDevOverride, rejectedOverride := selectNetwork(r.opts)
		if rejectedOverride != "" {
			logger.Error(ctx, "rejecting malformed network override",
				"requested", rejectedOverride, "resolved", network)
		}
		if ignoredDevOverride != "" {
			logger.Warn(ctx, "ignoring dev network override in release build",
				"requested", ignoredDevOverride, "resolved", network)
		}

		p := buildProfile(network, r.opts)
		logger.Info(ctx, "resolved network profile",
			"network", p.Network, "endpoints", len(p.RPCEndpoints))

		r.mu.Lock()
		r.profile = p
		r.mu.Unlock()
		return p, nil
	})
	return v.(*Profile)
}

// Network returns the resolved canonical network id.
func (r *Resolver) Network(ctx context.Context) string {
	return r.Profile(ctx).Network
}

// Invalidate drops the cached profile so the next call recomputes it. Used
// by tests and the dev-only runtime override.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.profile = nil
	r.mu.Unlock()
}

// Connection returns an RPC client for the first endpoint whose liveness
// probe succeeds, walking the prioritized list in order. When every probe
// fails it returns a client for the primary endpoint anyway: callers get a
// concrete (if likely-failing) connection and own the retry, rather than an
// exception here.
func (r *Resolver) Connection(ctx context.Context) *rpc.Client {
	profile := r.Profile(ctx)

	for _, endpoint := range profile.RPCEndpoints {
		if err := r.probe(ctx, endpoint); err != nil {
			logger.Warn(ctx, "rpc endpoint unhealthy, trying next",
				"endpoint", redactEndpoint(endpoint), "error", err)
			continue
		}
		return rpc.New(endpoint)
	}

	logger.Error(ctx, "all rpc endpoints unhealthy, returning primary",
		"endpoint", redactEndpoint(profile.Primary()))
	return rpc.New(profile.Primary())
}

func probeHealth(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	_, err := rpc.New(endpoint).GetHealth(ctx)
	return err
}

// redactEndpoint strips everything after the query string so provider API
// keys never reach logs.
func redactEndpoint(endpoint string) string {
	for i := 0; i < len(endpoint); i++ {
		if endpoint[i] == '?' {
			return endpoint[:i] + "?..."
		}
	}
	return endpoint
}
