package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
)

func TestStopSessionBilling_NoActiveRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id FROM session_billing WHERE session_id = \\$1 AND active = TRUE FOR UPDATE").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectRollback()

	_, err = s.StopSessionBilling(context.Background(), "sess-1", time.Now(), 1.0, 0.05)
	require.Error(t, err)
	assert.Equal(t, sferrors.NotFoundKind, sferrors.KindOf(err))
}

func TestStopSessionBilling_DeductionClampedToBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	endTime := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id FROM session_billing WHERE session_id = \\$1 AND active = TRUE FOR UPDATE").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-1"))
	mock.ExpectExec("UPDATE session_billing").
		WithArgs(endTime, 10.0, 5.0, "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT credits FROM users WHERE id = \\$1 FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(2.0))
	mock.ExpectExec("UPDATE users SET credits = credits - \\$1").
		WithArgs(2.0, sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_transactions").
		WithArgs(sqlmock.AnyArg(), "user-1", sqlmock.AnyArg(), -2.0, "sess-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := s.StopSessionBilling(context.Background(), "sess-1", endTime, 10.0, 5.0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, result.TotalCost)
	assert.NoError(t, mock.ExpectationsWereMet())
}
