// Package wallet implements the device-side wallet service: it guarantees a
// credential exists for the current user, answers balance queries and
// prepares unsigned transfers for backend co-signing.
package wallet

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/split-wallet/split-wallet/internal/logger"
	"github.com/split-wallet/split-wallet/internal/network"
	"github.com/split-wallet/split-wallet/internal/recovery"
	apperrors "github.com/split-wallet/split-wallet/pkg/errors"
)

const tokenDecimals = 6 // USDC

// rpcClient is the subset of the Solana RPC client used by the wallet
// service. An interface so tests run without a network.
type rpcClient interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
}

// WalletInfo is the result of EnsureWallet.
type WalletInfo struct {
	Address      solana.PublicKey
	Created      bool
	RecoveredVia string
}

// Balance holds raw on-chain balances: lamports for SOL and micro units for
// the token.
type Balance struct {
	Lamports   uint64
	TokenMicro uint64
}

// PreparedTransfer is an unsigned (user-partial-signed) transaction ready
// for backend co-signing.
type PreparedTransfer struct {
	SerializedTransaction string // base64
	DeclaredNetwork       string
	Blockhash             solana.Hash
}

// SponsorSource provides the backend fee sponsor's public address.
type SponsorSource interface {
	SponsorAddress(ctx context.Context) (solana.PublicKey, error)
}

// Service is the client-side wallet service.
type Service struct {
	recovery *recovery.Service
	resolver *network.Resolver
	sponsor  SponsorSource

	// connect returns a live RPC client. Overridable in tests.
	connect func(ctx context.Context) rpcClient
}

// NewService creates a wallet service.
func NewService(rec *recovery.Service, resolver *network.Resolver, sponsor SponsorSource) *Service {
	return &Service{
		recovery: rec,
		resolver: resolver,
		sponsor:  sponsor,
		connect: func(ctx context.Context) rpcClient {
			return resolver.Connection(ctx)
		},
	}
}

// EnsureWallet recovers the user's credential, or creates one when recovery
// finds nothing. Every new-credential store is read-back verified before
// success is reported: returning an address the user could not later
// retrieve would orphan funds, so a failed verification retries the store
// once and then surfaces storage_unavailable.
func (s *Service) EnsureWallet(ctx context.Context, userID, email string) (*WalletInfo, error) {
	res, err := s.recovery.RecoverWallet(ctx, userID, email)
	if err == nil {
		cred, decodeErr := DecodeCredential(res.Credential)
		if decodeErr != nil {
			// Recovered bytes that fail verification are as good as absent.
			logger.Warn(ctx, "recovered credential failed verification",
				"owner", logger.OwnerTag(userID), "error", decodeErr)
			return s.createWallet(ctx, userID, email)
		}
		defer cred.Zero()
		return &WalletInfo{
			Address:      cred.Address(),
			RecoveredVia: res.RecoveredVia,
		}, nil
	}

	if !apperrors.IsCode(err, apperrors.ErrCodeRecoveryNotFound) {
		return nil, err
	}
	return s.createWallet(ctx, userID, email)
}

func (s *Service) createWallet(ctx context.Context, userID, email string) (*WalletInfo, error) {
	cred, err := NewCredential()
	if err != nil {
		return nil, fmt.Errorf("failed to generate credential: %w", err)
	}
	defer cred.Zero()

	encoded, err := cred.Encode()
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		if !s.recovery.StoreWallet(ctx, userID, email, encoded) {
			continue
		}
		if s.verifyReadBack(ctx, userID, email, cred.Address()) {
			logger.Info(ctx, "created new wallet credential",
				"owner", logger.OwnerTag(userID), "attempt", attempt+1)
			return &WalletInfo{Address: cred.Address(), Created: true}, nil
		}
		logger.Warn(ctx, "read-back verification failed after store",
			"owner", logger.OwnerTag(userID), "attempt", attempt+1)
	}

	return nil, apperrors.ErrStorageUnavailable
}

// verifyReadBack confirms that a just-stored credential can actually be
// recovered and resolves to the expected address.
func (s *Service) verifyReadBack(ctx context.Context, userID, email string, want solana.PublicKey) bool {
	res, err := s.recovery.RecoverWallet(ctx, userID, email)
	if err != nil {
		return false
	}
	cred, err := DecodeCredential(res.Credential)
	if err != nil {
		return false
	}
	defer cred.Zero()
	return cred.Address().Equals(want)
}

// GetBalance returns the SOL and token balances for an address. A missing
// associated token account reads as a zero token balance.
func (s *Service) GetBalance(ctx context.Context, address solana.PublicKey) (*Balance, error) {
	profile := s.resolver.Profile(ctx)
	client := s.connect(ctx)

	solRes, err := client.GetBalance(ctx, address, profile.Commitment)
	if err != nil {
		return nil, fmt.Errorf("failed to get SOL balance: %w", err)
	}

	balance := &Balance{Lamports: solRes.Value}

	ata, _, err := solana.FindAssociatedTokenAddress(address, profile.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token account address: %w", err)
	}

	tokenRes, err := client.GetTokenAccountBalance(ctx, ata, profile.Commitment)
	if err != nil {
		// No ATA yet means the user simply has no token balance.
		return balance, nil
	}
	if tokenRes.Value != nil {
		var micro uint64
		if _, err := fmt.Sscan(tokenRes.Value.Amount, &micro); err == nil {
			balance.TokenMicro = micro
		}
	}

	return balance, nil
}

// PrepareTransfer builds a token transfer, partial-signed by the user, with
// the backend sponsor as fee payer. The blockhash is fetched immediately
// before building, not reused from an earlier step, to minimize expiry
// between build and backend submission.
func (s *Service) PrepareTransfer(ctx context.Context, cred *Credential, to solana.PublicKey, amountMicro uint64) (*PreparedTransfer, error) {
	profile := s.resolver.Profile(ctx)
	client := s.connect(ctx)

	sponsor, err := s.sponsor.SponsorAddress(ctx)
	if err != nil {
		return nil, err
	}

	from := cred.Address()
	sourceATA, _, err := solana.FindAssociatedTokenAddress(from, profile.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive source token account: %w", err)
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(to, profile.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive destination token account: %w", err)
	}

	instructions := make([]solana.Instruction, 0, 2)

	// The recipient may not hold this token yet; the sponsor pays the rent
	// for their associated token account.
	destInfo, err := client.GetAccountInfo(ctx, destATA)
	if err != nil || destInfo.Value == nil {
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(
			sponsor,
			to,
			profile.TokenMint,
		).Build())
	}

	instructions = append(instructions, token.NewTransferCheckedInstruction(
		amountMicro,
		tokenDecimals,
		sourceATA,
		profile.TokenMint,
		destATA,
		from,
		[]solana.PublicKey{},
	).Build())

	recent, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(sponsor),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	// The user signs their own transfer; the sponsor signature is attached
	// by the backend.
	if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(from) {
			return &cred.PrivateKey
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	return &PreparedTransfer{
		SerializedTransaction: base64.StdEncoding.EncodeToString(raw),
		DeclaredNetwork:       profile.Network,
		Blockhash:             recent.Value.Blockhash,
	}, nil
}
