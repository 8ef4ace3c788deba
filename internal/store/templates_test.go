package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
)

func TestGetTemplate_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	mock.ExpectQuery("SELECT (.+) FROM templates WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err = s.GetTemplate(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, sferrors.NotFoundKind, sferrors.KindOf(err))
}

func TestIncrementTemplateUsage_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	mock.ExpectExec("UPDATE templates SET usage_count = usage_count \\+ 1 WHERE id = \\$1").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.IncrementTemplateUsage(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, sferrors.NotFoundKind, sferrors.KindOf(err))
}

func TestIncrementTemplateUsage_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	mock.ExpectExec("UPDATE templates SET usage_count = usage_count \\+ 1 WHERE id = \\$1").
		WithArgs("tmpl-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.IncrementTemplateUsage(context.Background(), "tmpl-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
