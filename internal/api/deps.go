package api

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/split-wallet/split-wallet/internal/signer"
)

// SigningService is the subset of signer.Service used by the API layer.
// It is an interface to allow handler-level unit tests without RPC access.
type SigningService interface {
	SponsorAddress() solana.PublicKey
	SponsorBalance(ctx context.Context) (uint64, error)
	SignAndSubmit(ctx context.Context, req signer.Request) (*signer.Response, error)
}
