package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/split-wallet/split-wallet/internal/logger"
	"github.com/split-wallet/split-wallet/internal/signer"
)

// SigningLogRepo persists one row per signing request terminal outcome.
type SigningLogRepo struct {
	db *pgxpool.Pool
}

// NewSigningLogRepo creates a new signing log repository
func NewSigningLogRepo(db *pgxpool.Pool) *SigningLogRepo {
	return &SigningLogRepo{db: db}
}

// Record inserts the terminal outcome of a signing request. Failures are
// logged and swallowed: the audit trail must never take the signing path
// down with it.
func (r *SigningLogRepo) Record(ctx context.Context, entry signer.AuditEntry) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO signing_log (
			id, declared_network, outcome, signature, error_kind, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		entry.ID.String(),
		entry.DeclaredNetwork,
		entry.Outcome,
		nullable(entry.Signature),
		nullable(entry.ErrorKind),
		entry.Duration.Milliseconds(),
		time.Now(),
	)
	if err != nil {
		logger.Error(ctx, "failed to record signing outcome",
			"id", entry.ID, "outcome", entry.Outcome, "error", err)
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ signer.AuditLog = (*SigningLogRepo)(nil)
