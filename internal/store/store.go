// Package store is the durable system of record: users, credits, workspaces,
// sessions, session billing rows, storage resources, attachments, and
// templates, backed by PostgreSQL via database/sql and lib/pq.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sessionforge/sessionforge/internal/logger"
	"github.com/sessionforge/sessionforge/internal/models"
)

// Store is the interface every other subsystem depends on (spec.md §4.1/§6.1).
type Store interface {
	// Users and credits
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, userID string) error
	GetUserCredits(ctx context.Context, userID string) (float64, error)
	AddCredits(ctx context.Context, userID string, amount float64, kind models.CreditTransactionKind) error
	DeductCredits(ctx context.Context, userID string, amount float64, sessionID string) error

	// Sessions
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	UpdateSession(ctx context.Context, s *models.Session) error
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context, workspaceID string) ([]*models.Session, error)
	ListActiveSessionsForMonitor(ctx context.Context) ([]*models.Session, error)

	// Session billing
	StartSessionBilling(ctx context.Context, b *models.SessionBilling) error
	StopSessionBilling(ctx context.Context, sessionID string, endTime time.Time, totalHours, totalCost float64) (*models.SessionBilling, error)
	GetSessionBillingInfo(ctx context.Context, sessionID string) (*models.SessionBilling, error)

	// Storage
	CreateStorageResource(ctx context.Context, r *models.StorageResource) error
	GetDefaultStorageResource(ctx context.Context, workspaceID string, t models.StorageType) (*models.StorageResource, error)
	AttachStorage(ctx context.Context, a *models.SessionAttachment) error
	ListAttachments(ctx context.Context, sessionID string) ([]*models.SessionAttachment, error)

	// Templates
	GetTemplate(ctx context.Context, templateID string) (*models.Template, error)
	IncrementTemplateUsage(ctx context.Context, templateID string) error

	Close() error
}

// PostgresStore implements Store against a pooled *sql.DB connection. minio
// is nil whenever no object-storage endpoint is configured, in which case
// bucket resources are recorded in Postgres only.
type PostgresStore struct {
	db                *sql.DB
	minio             *minio.Client
	minioBucketPrefix string
	minioRegion       string
}

// Config carries connection parameters, validated the way the teacher's
// db.Config is before building a DSN.
type Config struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
	ConnIdleTime time.Duration

	// MinioEndpoint left empty disables bucket provisioning: storage_type=bucket
	// resources are still recorded in Postgres, just without a backing bucket.
	MinioEndpoint     string
	MinioAccessKey    string
	MinioSecretKey    string
	MinioUseSSL       bool
	MinioRegion       string
	MinioBucketPrefix string
}

var dsnSchemeRe = regexp.MustCompile(`^postgres(ql)?://`)

func validateConfig(cfg Config) error {
	if cfg.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if !dsnSchemeRe.MatchString(cfg.URL) {
		return fmt.Errorf("database URL must use postgres:// or postgresql:// scheme")
	}
	return nil
}

// New opens a pooled connection and runs migrations.
func New(cfg Config) (*PostgresStore, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnLifetime)
	}
	if cfg.ConnIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db}

	if cfg.MinioEndpoint != "" {
		mc, err := minio.New(cfg.MinioEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
			Secure: cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		s.minio = mc
		s.minioRegion = cfg.MinioRegion
	}
	s.minioBucketPrefix = cfg.MinioBucketPrefix
	if s.minioBucketPrefix == "" {
		s.minioBucketPrefix = "sessionforge-"
	}

	if err := s.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// NewForTesting wraps an already-open *sql.DB (typically a sqlmock
// connection) without running migrations or pinging, mirroring the
// teacher's NewDatabaseForTesting constructor.
func NewForTesting(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB { return s.db }

func (s *PostgresStore) Close() error { return s.db.Close() }

// Migrate applies the schema idempotently: every statement is safe to run
// against an already-migrated database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := logger.Store()
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			user_type TEXT NOT NULL DEFAULT 'free',
			credits DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,

		`CREATE TABLE IF NOT EXISTS credit_transactions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			kind TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			session_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_credit_transactions_user_created ON credit_transactions(user_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS workspaces (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			name TEXT NOT NULL,
			namespace TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workspaces_user ON workspaces(user_id)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL REFERENCES workspaces(id),
			user_id TEXT NOT NULL REFERENCES users(id),
			namespace TEXT NOT NULL,
			provider TEXT NOT NULL,
			status TEXT NOT NULL,
			template_id TEXT,
			tier TEXT NOT NULL DEFAULT 'small',
			cpu_cores DOUBLE PRECISION NOT NULL DEFAULT 0,
			memory_gb DOUBLE PRECISION NOT NULL DEFAULT 0,
			gpu_count INTEGER NOT NULL DEFAULT 0,
			image_spec TEXT,
			env JSONB NOT NULL DEFAULT '{}',
			ttl_minutes INTEGER NOT NULL DEFAULT 60,
			needs_shell BOOLEAN NOT NULL DEFAULT FALSE,
			long_lived BOOLEAN NOT NULL DEFAULT FALSE,
			expected_duration_minutes INTEGER NOT NULL DEFAULT 0,
			url TEXT,
			websocket_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON sessions(workspace_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
		`ALTER TABLE sessions ADD COLUMN IF NOT EXISTS url TEXT`,
		`ALTER TABLE sessions ADD COLUMN IF NOT EXISTS websocket_url TEXT`,

		`CREATE TABLE IF NOT EXISTS session_billing (
			session_id TEXT PRIMARY KEY REFERENCES sessions(id),
			user_id TEXT NOT NULL REFERENCES users(id),
			hourly_rate DOUBLE PRECISION NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ,
			total_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_billing_active ON session_billing(active)`,

		`CREATE TABLE IF NOT EXISTS storage_resources (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL REFERENCES workspaces(id),
			type TEXT NOT NULL,
			size_gb DOUBLE PRECISION NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_storage_default_per_workspace_type
			ON storage_resources(workspace_id, type) WHERE is_default`,

		`CREATE TABLE IF NOT EXISTS session_attachments (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			storage_id TEXT NOT NULL REFERENCES storage_resources(id),
			mount_path TEXT NOT NULL,
			access_mode TEXT NOT NULL DEFAULT 'RW',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_attachments_session ON session_attachments(session_id)`,

		`CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			tier TEXT NOT NULL DEFAULT 'small',
			image_spec TEXT,
			storage_type TEXT,
			storage_size_gb DOUBLE PRECISION NOT NULL DEFAULT 0,
			env_vars JSONB NOT NULL DEFAULT '{}',
			default_ttl_minutes INTEGER NOT NULL DEFAULT 60,
			usage_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w (stmt: %.60s...)", err, stmt)
		}
	}

	log.Info().Int("statements", len(statements)).Msg("store migrated")
	return nil
}
