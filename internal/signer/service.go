// Package signer implements the backend transaction signing service: it
// validates a client-built transaction against the active network, attaches
// the fee-sponsor signature and shepherds the transaction to a terminal
// outcome.
package signer

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"

	"github.com/split-wallet/split-wallet/internal/logger"
	"github.com/split-wallet/split-wallet/internal/network"
	apperrors "github.com/split-wallet/split-wallet/pkg/errors"
)

// Request is a client's signing request. DeclaredNetwork is the network the
// client built the transaction for; it must match the backend's resolved
// network or the request is rejected before any signature is produced.
type Request struct {
	SerializedTransaction string
	DeclaredNetwork       string
	ClientTimestamp       time.Time
}

// Response is the terminal success result.
type Response struct {
	Signature solana.Signature
	Network   string
}

// Terminal outcomes recorded in the audit log and metrics.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeRejected  = "rejected"
	OutcomeTimedOut  = "timed_out"
	OutcomeFailed    = "failed"
)

// AuditEntry is one signing request's terminal record.
type AuditEntry struct {
	ID              uuid.UUID
	DeclaredNetwork string
	Outcome         string
	Signature       string
	ErrorKind       string
	Duration        time.Duration
}

// AuditLog records terminal signing outcomes. Implementations must not
// block the signing path on failure; recording is best effort.
type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes signing outcomes for the metrics endpoint.
type MetricsRecorder interface {
	ObserveSigning(outcome string, duration time.Duration)
}

// rpcClient is the RPC surface the signer needs. *rpc.Client satisfies it.
type rpcClient interface {
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
}

const defaultPollInterval = 2 * time.Second

// Service signs and submits client transactions with the sponsor paying
// network fees.
type Service struct {
	sponsor  *Sponsor
	resolver *network.Resolver
	audit    AuditLog
	metrics  MetricsRecorder

	// connect returns a live RPC client. Overridable in tests.
	connect func(ctx context.Context) rpcClient

	pollInterval time.Duration

	// submitTimeout overrides the profile's budget when positive.
	submitTimeout time.Duration
}

// NewService creates the signing service. audit and metrics may be nil; the
// signer works without either.
func NewService(sponsor *Sponsor, resolver *network.Resolver, audit AuditLog, metrics MetricsRecorder) *Service {
	s := &Service{
		sponsor:      sponsor,
		resolver:     resolver,
		audit:        audit,
		metrics:      metrics,
		pollInterval: defaultPollInterval,
	}
	s.connect = func(ctx context.Context) rpcClient {
		return s.resolver.Connection(ctx)
	}
	return s
}

// SetSubmitTimeout overrides the environment-derived submission budget.
func (s *Service) SetSubmitTimeout(d time.Duration) {
	s.submitTimeout = d
}

// SponsorAddress returns the fee sponsor's public address.
func (s *Service) SponsorAddress() solana.PublicKey {
	return s.sponsor.Address()
}

// SponsorBalance returns the sponsor's SOL balance in lamports. Operators
// watch this to keep the sponsor funded.
func (s *Service) SponsorBalance(ctx context.Context) (uint64, error) {
	out, err := s.connect(ctx).GetBalance(ctx, s.sponsor.Address(), s.resolver.Profile(ctx).Commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch sponsor balance: %w", err)
	}
	return out.Value, nil
}

// SignAndSubmit drives a request through
// received, networkValidated, feePayerAttached, signed, submitted and then
// confirmed or timedOut. A network mismatch rejects the request before the
// sponsor key is touched. Once the fee payer check has passed the request
// runs to a terminal state even if the caller's context is cancelled.
func (s *Service) SignAndSubmit(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resolved := s.resolver.Network(ctx)

	sig, err := s.process(ctx, req, resolved)

	duration := time.Since(start)
	outcome, errKind := classifyOutcome(err)
	s.recordTerminal(ctx, AuditEntry{
		ID:              uuid.New(),
		DeclaredNetwork: req.DeclaredNetwork,
		Outcome:         outcome,
		Signature:       signatureString(sig),
		ErrorKind:       errKind,
		Duration:        duration,
	})

	if err != nil {
		logger.Warn(ctx, "signing request did not confirm",
			"outcome", outcome, "error_kind", errKind,
			"network", resolved, "duration_ms", duration.Milliseconds())
		return nil, err
	}

	logger.Info(ctx, "transaction confirmed",
		"signature", sig.String(), "network", resolved,
		"duration_ms", duration.Milliseconds())
	return &Response{Signature: sig, Network: resolved}, nil
}

func (s *Service) process(ctx context.Context, req Request, resolved string) (solana.Signature, error) {
	var none solana.Signature

	raw, err := base64.StdEncoding.DecodeString(req.SerializedTransaction)
	if err != nil {
		return none, apperrors.InvalidTransaction("serialized transaction is not valid base64")
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return none, apperrors.InvalidTransaction("serialized transaction could not be decoded")
	}

	declared, err := network.Canonicalize(req.DeclaredNetwork)
	if err != nil || declared != resolved {
		return none, apperrors.NetworkMismatch(req.DeclaredNetwork, resolved)
	}

	// The fee payer is the first required signer. The client builds the
	// transaction with the sponsor in that slot; anything else would make
	// the user pay fees or sign for an unknown account.
	if len(tx.Message.AccountKeys) == 0 || !tx.Message.AccountKeys[0].Equals(s.sponsor.Address()) {
		return none, apperrors.InvalidTransaction("fee payer is not the sponsor")
	}

	// Past this point the request is not cancellable: a sponsor signature
	// is about to exist, so the transaction must reach a terminal state.
	ctx = context.WithoutCancel(ctx)

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return none, apperrors.InvalidTransaction("transaction message failed to serialize")
	}
	sponsorSig, err := s.sponsor.signMessage(message)
	if err != nil {
		return none, fmt.Errorf("sponsor signing failed: %w", err)
	}
	if len(tx.Signatures) < int(tx.Message.Header.NumRequiredSignatures) {
		padded := make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
		copy(padded, tx.Signatures)
		tx.Signatures = padded
	}
	tx.Signatures[0] = sponsorSig

	profile := s.resolver.Profile(ctx)
	conn := s.connect(ctx)

	budget := profile.SubmitTimeout
	if s.submitTimeout > 0 {
		budget = s.submitTimeout
	}
	submitCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	txSig, err := conn.SendTransactionWithOpts(submitCtx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		if isInsufficientFunds(err) {
			return none, apperrors.InsufficientSponsorFunds(err.Error())
		}
		if submitCtx.Err() != nil {
			return none, apperrors.SubmissionTimeout("")
		}
		return none, apperrors.NewWithDetail(apperrors.ErrCodeSubmissionFailed,
			"Transaction submission failed", err.Error(), 502)
	}

	if err := s.awaitConfirmation(submitCtx, conn, txSig); err != nil {
		if submitCtx.Err() != nil {
			// The transaction was accepted by the RPC node; it may still
			// land after the budget runs out.
			return txSig, apperrors.SubmissionTimeout(txSig.String())
		}
		return txSig, apperrors.NewWithDetail(apperrors.ErrCodeSubmissionFailed,
			"Transaction failed on chain", err.Error(), 502)
	}

	return txSig, nil
}

// awaitConfirmation polls signature status until the transaction reaches
// confirmed (or better) or the context's budget expires.
func (s *Service) awaitConfirmation(ctx context.Context, conn rpcClient, sig solana.Signature) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		out, err := conn.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			// Transient RPC errors just cost a poll cycle.
			continue
		}
		if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
			continue
		}

		status := out.Value[0]
		if status.Err != nil {
			return fmt.Errorf("transaction failed on chain: %v", status.Err)
		}
		switch status.ConfirmationStatus {
		case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
			return nil
		}
	}
}

func (s *Service) recordTerminal(ctx context.Context, entry AuditEntry) {
	// Recording must survive caller cancellation.
	ctx = context.WithoutCancel(ctx)
	if s.audit != nil {
		s.audit.Record(ctx, entry)
	}
	if s.metrics != nil {
		s.metrics.ObserveSigning(entry.Outcome, entry.Duration)
	}
}

func classifyOutcome(err error) (outcome, errKind string) {
	if err == nil {
		return OutcomeConfirmed, ""
	}
	appErr, ok := apperrors.IsAppError(err)
	if !ok {
		return OutcomeFailed, apperrors.ErrCodeInternalError
	}
	switch appErr.Code {
	case apperrors.ErrCodeNetworkMismatch, apperrors.ErrCodeInvalidTransaction:
		return OutcomeRejected, appErr.Code
	case apperrors.ErrCodeSubmissionTimeout:
		return OutcomeTimedOut, appErr.Code
	default:
		return OutcomeFailed, appErr.Code
	}
}

func isInsufficientFunds(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "insufficient funds") ||
		strings.Contains(msg, "insufficient lamports")
}

func signatureString(sig solana.Signature) string {
	if sig.IsZero() {
		return ""
	}
	return sig.String()
}
