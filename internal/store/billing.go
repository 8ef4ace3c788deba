package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/models"
)

// StartSessionBilling opens an active billing row for a session. Exactly
// one active row may exist per running session (spec §8); a second call for
// the same session fails SessionBillingExists via the primary key.
func (s *PostgresStore) StartSessionBilling(ctx context.Context, b *models.SessionBilling) error {
	if b.StartTime.IsZero() {
		b.StartTime = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_billing (session_id, user_id, hourly_rate, start_time, active)
		VALUES ($1, $2, $3, $4, TRUE)
	`, b.SessionID, b.UserID, b.HourlyRate, b.StartTime)
	if err != nil {
		if isUniqueViolation(err) {
			return sferrors.Conflict("store.StartSessionBilling",
				fmt.Sprintf("session %s already has an active billing row", b.SessionID))
		}
		return sferrors.Wrap("store.StartSessionBilling", "insert failed", err)
	}
	b.Active = true
	return nil
}

// StopSessionBilling atomically completes the active billing row and debits
// the computed cost from the user's credit balance. Only the first call for
// a given session transitions active -> completed; a second call returns
// NotFound ("not_active") with no further deduction.
func (s *PostgresStore) StopSessionBilling(ctx context.Context, sessionID string, endTime time.Time, totalHours, totalCost float64) (*models.SessionBilling, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, sferrors.Wrap("store.StopSessionBilling", "begin tx failed", err)
	}
	defer tx.Rollback()

	var userID string
	err = tx.QueryRowContext(ctx, `
		SELECT user_id FROM session_billing WHERE session_id = $1 AND active = TRUE FOR UPDATE
	`, sessionID).Scan(&userID)
	if err == sql.ErrNoRows {
		return nil, sferrors.NotFound("store.StopSessionBilling",
			fmt.Sprintf("session %s has no active billing row", sessionID))
	}
	if err != nil {
		return nil, sferrors.Wrap("store.StopSessionBilling", "query failed", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE session_billing
		SET end_time = $1, total_hours = $2, total_cost = $3, active = FALSE
		WHERE session_id = $4
	`, endTime, totalHours, totalCost, sessionID)
	if err != nil {
		return nil, sferrors.Wrap("store.StopSessionBilling", "update failed", err)
	}

	var balance float64
	if err := tx.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance); err != nil {
		return nil, sferrors.Wrap("store.StopSessionBilling", "balance query failed", err)
	}
	deduction := totalCost
	if deduction > balance {
		// Session creation is permitted on any positive balance (spec §7);
		// a session that outlives its funding still completes billing, it
		// simply takes the user to (or past) zero rather than failing here.
		deduction = balance
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET credits = credits - $1, updated_at = $2 WHERE id = $3
	`, deduction, time.Now(), userID); err != nil {
		return nil, sferrors.Wrap("store.StopSessionBilling", "balance update failed", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, user_id, kind, amount, session_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New().String(), userID, models.TxnDeduction, -deduction, sessionID, time.Now()); err != nil {
		return nil, sferrors.Wrap("store.StopSessionBilling", "ledger insert failed", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, sferrors.Wrap("store.StopSessionBilling", "commit failed", err)
	}

	return &models.SessionBilling{
		SessionID:  sessionID,
		UserID:     userID,
		StartTime:  endTime.Add(-time.Duration(totalHours * float64(time.Hour))),
		EndTime:    &endTime,
		TotalHours: totalHours,
		TotalCost:  totalCost,
		Active:     false,
	}, nil
}

func (s *PostgresStore) GetSessionBillingInfo(ctx context.Context, sessionID string) (*models.SessionBilling, error) {
	b := &models.SessionBilling{SessionID: sessionID}
	var endTime sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, hourly_rate, start_time, end_time, total_hours, total_cost, active
		FROM session_billing WHERE session_id = $1
	`, sessionID).Scan(&b.UserID, &b.HourlyRate, &b.StartTime, &endTime, &b.TotalHours, &b.TotalCost, &b.Active)
	if err == sql.ErrNoRows {
		return nil, sferrors.NotFound("store.GetSessionBillingInfo", fmt.Sprintf("no billing row for session %s", sessionID))
	}
	if err != nil {
		return nil, sferrors.Wrap("store.GetSessionBillingInfo", "query failed", err)
	}
	if endTime.Valid {
		b.EndTime = &endTime.Time
	}
	return b, nil
}
