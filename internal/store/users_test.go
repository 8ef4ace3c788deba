package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/models"
)

func TestDeductCredits_InsufficientCredits_LeavesBalanceUntouched(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT credits FROM users WHERE id = \\$1 FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(10.0))
	mock.ExpectRollback()

	err = s.DeductCredits(ctx, "user-1", 10.01, "")
	require.Error(t, err)
	assert.Equal(t, sferrors.InsufficientCreditsKind, sferrors.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeductCredits_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT credits FROM users WHERE id = \\$1 FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(25.0))
	mock.ExpectExec("UPDATE users SET credits").
		WithArgs(0.075, sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_transactions").
		WithArgs(sqlmock.AnyArg(), "user-1", models.TxnDeduction, -0.075, "session-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = s.DeductCredits(ctx, "user-1", 0.075, "session-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUser_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT id, email, user_type, credits, created_at, updated_at").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = s.GetUser(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, sferrors.NotFoundKind, sferrors.KindOf(err))
}
