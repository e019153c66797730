package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ClearExpiredRestoreCodes nulls out password restoration codes past their
// expiry. The function is idempotent - safe to run repeatedly.
//
// Returns the number of rows updated.
func ClearExpiredRestoreCodes(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	query := `
		UPDATE users
		SET restore_code_hash = NULL,
		    restore_code_expires_at = NULL
		WHERE restore_code_expires_at IS NOT NULL
		  AND restore_code_expires_at < NOW()
	`

	tag, err := pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired restore codes: %w", err)
	}

	return tag.RowsAffected(), nil
}

// DeleteOldAuditEvents deletes audit_log rows older than the specified days.
// The function is idempotent - safe to run repeatedly.
//
// Returns the number of rows deleted.
func DeleteOldAuditEvents(ctx context.Context, pool *pgxpool.Pool, retentionDays int) (int64, error) {
	query := `
		DELETE FROM audit_log
		WHERE created_at < NOW() - INTERVAL '1 day' * $1
	`

	tag, err := pool.Exec(ctx, query, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit events: %w", err)
	}

	return tag.RowsAffected(), nil
}

// RunRetentionJob executes both retention operations and logs the results.
// This is the main entry point called by the cron scheduler.
func RunRetentionJob(ctx context.Context, pool *pgxpool.Pool, auditDays int) error {
	log.Info().
		Int("audit_retention_days", auditDays).
		Msg("Starting retention job")

	startTime := time.Now()

	codesCleared, err := ClearExpiredRestoreCodes(ctx, pool)
	if err != nil {
		log.Error().Err(err).Msg("Failed to clear expired restore codes")
		return fmt.Errorf("restore code cleanup failed: %w", err)
	}

	eventsDeleted, err := DeleteOldAuditEvents(ctx, pool, auditDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete old audit events")
		return fmt.Errorf("audit event cleanup failed: %w", err)
	}

	duration := time.Since(startTime)

	log.Info().
		Int64("restore_codes_cleared", codesCleared).
		Int64("audit_events_deleted", eventsDeleted).
		Dur("duration", duration).
		Msg("Retention job completed")

	return nil
}
