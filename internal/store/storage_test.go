package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/models"
)

func TestCreateStorageResource_ConflictOnDuplicateDefault(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	r := &models.StorageResource{WorkspaceID: "ws-1", Type: models.StorageBucket, SizeGB: 10, IsDefault: true}

	mock.ExpectExec("INSERT INTO storage_resources").WillReturnError(&pq.Error{Code: "23505"})

	err = s.CreateStorageResource(context.Background(), r)
	require.Error(t, err)
	assert.Equal(t, sferrors.ConflictKind, sferrors.KindOf(err))
}

func TestBucketName_PrefixesWorkspaceID(t *testing.T) {
	s := &PostgresStore{minioBucketPrefix: "sessionforge-"}
	assert.Equal(t, "sessionforge-ws-1", s.bucketName("ws-1"))
}

func TestCreateStorageResource_SkipsBucketProvisioningWithoutMinioClient(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// NewForTesting never configures a minio client, so a bucket-type
	// resource must still insert cleanly with no object-storage call.
	s := NewForTesting(db)
	r := &models.StorageResource{WorkspaceID: "ws-1", Type: models.StorageBucket, SizeGB: 10}

	mock.ExpectExec("INSERT INTO storage_resources").WillReturnResult(sqlmock.NewResult(1, 1))

	err = s.CreateStorageResource(context.Background(), r)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDefaultStorageResource_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	mock.ExpectQuery("SELECT (.+) FROM storage_resources WHERE workspace_id = \\$1 AND type = \\$2 AND is_default = TRUE").
		WithArgs("ws-1", models.StorageFilestore).
		WillReturnRows(sqlmock.NewRows(nil))

	_, err = s.GetDefaultStorageResource(context.Background(), "ws-1", models.StorageFilestore)
	require.Error(t, err)
	assert.Equal(t, sferrors.NotFoundKind, sferrors.KindOf(err))
}

func TestAttachStorage_DefaultsAccessModeToRW(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	a := &models.SessionAttachment{SessionID: "sess-1", StorageID: "store-1", MountPath: "/data"}

	mock.ExpectExec("INSERT INTO session_attachments").
		WithArgs(sqlmock.AnyArg(), "sess-1", "store-1", "/data", models.AccessRW, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = s.AttachStorage(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, models.AccessRW, a.AccessMode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAttachments_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	mock.ExpectQuery("SELECT (.+) FROM session_attachments WHERE session_id = \\$1").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "storage_id", "mount_path", "access_mode", "created_at"}))

	out, err := s.ListAttachments(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Empty(t, out)
}
