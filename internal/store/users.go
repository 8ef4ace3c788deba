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

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.UserType == "" {
		u.UserType = models.UserFree
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, user_type, credits, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Email, u.UserType, u.Credits, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return sferrors.Wrap("store.CreateUser", "insert failed", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, user_type, credits, created_at, updated_at
		FROM users WHERE id = $1
	`, userID).Scan(&u.ID, &u.Email, &u.UserType, &u.Credits, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, sferrors.NotFound("store.GetUser", fmt.Sprintf("user %s not found", userID))
	}
	if err != nil {
		return nil, sferrors.Wrap("store.GetUser", "query failed", err)
	}
	return u, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, u *models.User) error {
	u.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET email = $1, user_type = $2, updated_at = $3 WHERE id = $4
	`, u.Email, u.UserType, u.UpdatedAt, u.ID)
	if err != nil {
		return sferrors.Wrap("store.UpdateUser", "update failed", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sferrors.NotFound("store.UpdateUser", fmt.Sprintf("user %s not found", u.ID))
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return sferrors.Wrap("store.DeleteUser", "delete failed", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sferrors.NotFound("store.DeleteUser", fmt.Sprintf("user %s not found", userID))
	}
	return nil
}

func (s *PostgresStore) GetUserCredits(ctx context.Context, userID string) (float64, error) {
	var credits float64
	err := s.db.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&credits)
	if err == sql.ErrNoRows {
		return 0, sferrors.NotFound("store.GetUserCredits", fmt.Sprintf("user %s not found", userID))
	}
	if err != nil {
		return 0, sferrors.Wrap("store.GetUserCredits", "query failed", err)
	}
	return credits, nil
}

// AddCredits appends a ledger row and updates the running balance in one
// transaction, so u.credits stays equal to the sum of all ledger rows.
func (s *PostgresStore) AddCredits(ctx context.Context, userID string, amount float64, kind models.CreditTransactionKind) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sferrors.Wrap("store.AddCredits", "begin tx failed", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE users SET credits = credits + $1, updated_at = $2 WHERE id = $3
	`, amount, time.Now(), userID)
	if err != nil {
		return sferrors.Wrap("store.AddCredits", "balance update failed", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sferrors.NotFound("store.AddCredits", fmt.Sprintf("user %s not found", userID))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, user_id, kind, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New().String(), userID, kind, amount, time.Now())
	if err != nil {
		return sferrors.Wrap("store.AddCredits", "ledger insert failed", err)
	}

	if err := tx.Commit(); err != nil {
		return sferrors.Wrap("store.AddCredits", "commit failed", err)
	}
	return nil
}

// DeductCredits atomically debits a user's balance and appends a ledger
// row, failing with InsufficientCredits (balance unchanged, no ledger row)
// rather than clamping to zero, per spec §4.1/§7/§8.
func (s *PostgresStore) DeductCredits(ctx context.Context, userID string, amount float64, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sferrors.Wrap("store.DeductCredits", "begin tx failed", err)
	}
	defer tx.Rollback()

	var balance float64
	err = tx.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return sferrors.NotFound("store.DeductCredits", fmt.Sprintf("user %s not found", userID))
	}
	if err != nil {
		return sferrors.Wrap("store.DeductCredits", "balance query failed", err)
	}

	if balance < amount {
		return sferrors.InsufficientCredits("store.DeductCredits",
			fmt.Sprintf("balance %.4f is less than requested deduction %.4f", balance, amount))
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET credits = credits - $1, updated_at = $2 WHERE id = $3
	`, amount, time.Now(), userID)
	if err != nil {
		return sferrors.Wrap("store.DeductCredits", "balance update failed", err)
	}

	var sessionIDArg interface{}
	if sessionID != "" {
		sessionIDArg = sessionID
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, user_id, kind, amount, session_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New().String(), userID, models.TxnDeduction, -amount, sessionIDArg, time.Now())
	if err != nil {
		return sferrors.Wrap("store.DeductCredits", "ledger insert failed", err)
	}

	if err := tx.Commit(); err != nil {
		return sferrors.Wrap("store.DeductCredits", "commit failed", err)
	}
	return nil
}
