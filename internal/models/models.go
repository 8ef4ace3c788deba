// Package models holds the domain types shared by the Store, ProviderDriver,
// billing engine, session manager, and session monitor.
package models

import "time"

// UserType gates a user's hourly billing rate and quota tier.
type UserType string

const (
	UserFree       UserType = "free"
	UserPro        UserType = "pro"
	UserEnterprise UserType = "enterprise"
	UserAdmin      UserType = "admin"
)

// User is a billable account.
type User struct {
	ID        string
	Email     string
	UserType  UserType
	Credits   float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Workspace groups a user's sessions and storage resources.
type Workspace struct {
	ID        string
	UserID    string
	Name      string
	Namespace string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionStatus tracks a session through its lifecycle.
type SessionStatus string

const (
	StatusCreating    SessionStatus = "creating"
	StatusRunning     SessionStatus = "running"
	StatusTerminated  SessionStatus = "terminated"
	StatusFailed      SessionStatus = "failed"
	StatusExpired     SessionStatus = "expired"
)

// ProviderKind names a ProviderDriver backend.
type ProviderKind string

const (
	ProviderAuto ProviderKind = "auto"
	ProviderJobs ProviderKind = "jobs"
	ProviderPods ProviderKind = "pods"
)

// ResourceTier selects a billing multiplier and a default resource package.
type ResourceTier string

const (
	TierSmall  ResourceTier = "small"
	TierMedium ResourceTier = "medium"
	TierLarge  ResourceTier = "large"
	TierGPU    ResourceTier = "gpu"
)

// ResourceSpec describes the compute shape of a session.
type ResourceSpec struct {
	Tier       ResourceTier
	CPUCores   float64
	MemoryGB   float64
	GPUCount   int
	ImageSpec  string
}

// Session is a running (or once-running) unit of compute.
type Session struct {
	ID                string
	WorkspaceID       string
	UserID            string
	Namespace         string
	Provider          ProviderKind
	Status            SessionStatus
	TemplateID        string
	ResourceSpec      ResourceSpec
	Env               map[string]string
	TTLMinutes        int
	NeedsShell        bool
	LongLived         bool
	ExpectedDuration  int // minutes, as given at creation time
	URL               string
	WebsocketURL      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SessionInfo is the external-facing shape returned by the session manager
// and provider drivers — a subset/projection of Session plus live status.
type SessionInfo struct {
	ID           string
	WorkspaceID  string
	Namespace    string
	User         string
	Provider     ProviderKind
	Status       SessionStatus
	URL          string
	WebsocketURL string
	CreatedAt    time.Time
}

// ExecResult is the outcome of a synchronous or polled-async execute call.
type ExecResult struct {
	Success    bool
	ReturnCode int
	Stdout     string
	Stderr     string
	JobID      string
	JobName    string
	Status     string // "completed", "submitted", "running", "timeout"
}

// SessionBilling is the active-or-completed billing row for one session.
type SessionBilling struct {
	SessionID   string
	UserID      string
	HourlyRate  float64
	StartTime   time.Time
	EndTime     *time.Time
	TotalHours  float64
	TotalCost   float64
	Active      bool
}

// CreditTransactionKind distinguishes ledger entry types.
type CreditTransactionKind string

const (
	TxnPurchase    CreditTransactionKind = "purchase"
	TxnDeduction   CreditTransactionKind = "deduction"
	TxnBonus       CreditTransactionKind = "bonus"
)

// CreditTransaction is one append-only ledger row.
type CreditTransaction struct {
	ID        string
	UserID    string
	Kind      CreditTransactionKind
	Amount    float64 // positive for credit, negative for debit
	SessionID string  // optional, set for session-deduction rows
	CreatedAt time.Time
}

// StorageType names a StorageResource backend.
type StorageType string

const (
	StorageBucket    StorageType = "bucket"
	StorageFilestore StorageType = "filestore"
)

// AccessMode controls attachment permissions.
type AccessMode string

const (
	AccessRW AccessMode = "RW"
	AccessRO AccessMode = "RO"
)

// StorageResource is a provisioned piece of persistent storage.
type StorageResource struct {
	ID          string
	WorkspaceID string
	Type        StorageType
	SizeGB      float64
	IsDefault   bool
	CreatedAt   time.Time
}

// SessionAttachment links a session to a StorageResource.
type SessionAttachment struct {
	ID         string
	SessionID  string
	StorageID  string
	MountPath  string
	AccessMode AccessMode
	CreatedAt  time.Time
}

// Template is a reusable session configuration.
type Template struct {
	ID                string
	Name              string
	ResourceTier      ResourceTier
	ImageSpec         string
	StorageType        StorageType
	StorageSizeGB      float64
	EnvVars           map[string]string
	DefaultTTLMinutes int
	UsageCount        int
	CreatedAt         time.Time
}

// CreateSessionRequest is the input to Manager.CreateSession, matching
// spec.md §6.2's recognized fields.
type CreateSessionRequest struct {
	Provider                 ProviderKind
	TemplateID               string
	WorkspaceID              string
	Namespace                string
	User                     string
	TTLMinutes               int
	ResourcePackage          ResourceTier
	ResourceSpec             *ResourceSpec
	ImageSpec                string
	RequestPersistentStorage bool
	PersistentStorageSizeGB  float64
	RequestBucket            bool
	BucketSizeGB             float64
	Env                      map[string]string
	NeedsShell               bool
	LongLived                bool
	ExpectedDurationMinutes  int
}
