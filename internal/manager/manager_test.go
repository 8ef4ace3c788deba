package manager

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionforge/sessionforge/internal/billing"
	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/models"
	"github.com/sessionforge/sessionforge/internal/provider"
)

// fakeStore is a minimal in-memory store.Store used to exercise the manager
// without a database, mirroring the teacher's hand-rolled test doubles
// rather than pulling in sqlmock for call sequences this wide.
type fakeStore struct {
	users       map[string]*models.User
	sessions    map[string]*models.Session
	billing     map[string]*models.SessionBilling
	templates   map[string]*models.Template
	storage     []*models.StorageResource
	attachments []*models.SessionAttachment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     map[string]*models.User{"user-1": {ID: "user-1", UserType: models.UserFree, Credits: 10}},
		sessions:  map[string]*models.Session{},
		billing:   map[string]*models.SessionBilling{},
		templates: map[string]*models.Template{},
	}
}

func (f *fakeStore) CreateUser(ctx context.Context, u *models.User) error { f.users[u.ID] = u; return nil }
func (f *fakeStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, sferrors.NotFound("fakeStore.GetUser", userID)
	}
	return u, nil
}
func (f *fakeStore) UpdateUser(ctx context.Context, u *models.User) error { f.users[u.ID] = u; return nil }
func (f *fakeStore) DeleteUser(ctx context.Context, userID string) error  { delete(f.users, userID); return nil }
func (f *fakeStore) GetUserCredits(ctx context.Context, userID string) (float64, error) {
	u, ok := f.users[userID]
	if !ok {
		return 0, sferrors.NotFound("fakeStore.GetUserCredits", userID)
	}
	return u.Credits, nil
}
func (f *fakeStore) AddCredits(ctx context.Context, userID string, amount float64, kind models.CreditTransactionKind) error {
	f.users[userID].Credits += amount
	return nil
}
func (f *fakeStore) DeductCredits(ctx context.Context, userID string, amount float64, sessionID string) error {
	f.users[userID].Credits -= amount
	return nil
}

func (f *fakeStore) CreateSession(ctx context.Context, s *models.Session) error {
	f.sessions[s.ID] = s
	return nil
}
func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return f.sessions[sessionID], nil
}
func (f *fakeStore) UpdateSession(ctx context.Context, s *models.Session) error {
	f.sessions[s.ID] = s
	return nil
}
func (f *fakeStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, ok := f.sessions[sessionID]; !ok {
		return sferrors.NotFound("fakeStore.DeleteSession", sessionID)
	}
	delete(f.sessions, sessionID)
	return nil
}
func (f *fakeStore) ListSessions(ctx context.Context, workspaceID string) ([]*models.Session, error) {
	var out []*models.Session
	for _, s := range f.sessions {
		if s.WorkspaceID == workspaceID {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeStore) ListActiveSessionsForMonitor(ctx context.Context) ([]*models.Session, error) {
	var out []*models.Session
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) StartSessionBilling(ctx context.Context, b *models.SessionBilling) error {
	b.Active = true
	f.billing[b.SessionID] = b
	return nil
}
func (f *fakeStore) StopSessionBilling(ctx context.Context, sessionID string, endTime time.Time, totalHours, totalCost float64) (*models.SessionBilling, error) {
	b, ok := f.billing[sessionID]
	if !ok {
		return nil, sferrors.NotFound("fakeStore.StopSessionBilling", sessionID)
	}
	b.Active = false
	b.TotalHours = totalHours
	b.TotalCost = totalCost
	return b, nil
}
func (f *fakeStore) GetSessionBillingInfo(ctx context.Context, sessionID string) (*models.SessionBilling, error) {
	b, ok := f.billing[sessionID]
	if !ok {
		return nil, sferrors.NotFound("fakeStore.GetSessionBillingInfo", sessionID)
	}
	return b, nil
}

func (f *fakeStore) CreateStorageResource(ctx context.Context, r *models.StorageResource) error {
	r.ID = fmt.Sprintf("storage-%d", len(f.storage)+1)
	f.storage = append(f.storage, r)
	return nil
}
func (f *fakeStore) GetDefaultStorageResource(ctx context.Context, workspaceID string, t models.StorageType) (*models.StorageResource, error) {
	for _, r := range f.storage {
		if r.WorkspaceID == workspaceID && r.Type == t && r.IsDefault {
			return r, nil
		}
	}
	return nil, sferrors.NotFound("fakeStore.GetDefaultStorageResource", workspaceID)
}
func (f *fakeStore) AttachStorage(ctx context.Context, a *models.SessionAttachment) error {
	f.attachments = append(f.attachments, a)
	return nil
}
func (f *fakeStore) ListAttachments(ctx context.Context, sessionID string) ([]*models.SessionAttachment, error) {
	return nil, nil
}

func (f *fakeStore) GetTemplate(ctx context.Context, templateID string) (*models.Template, error) {
	t, ok := f.templates[templateID]
	if !ok {
		return nil, sferrors.NotFound("fakeStore.GetTemplate", templateID)
	}
	return t, nil
}
func (f *fakeStore) IncrementTemplateUsage(ctx context.Context, templateID string) error {
	if t, ok := f.templates[templateID]; ok {
		t.UsageCount++
	}
	return nil
}

func (f *fakeStore) Close() error { return nil }

func TestCreateSession_RollsBackProviderOnBillingFailure(t *testing.T) {
	// This test exercises manager.go's rollback path with a store whose
	// StartSessionBilling always fails: GetUser for the billing engine
	// looks up a user that doesn't exist, causing billing.StartSessionBilling
	// to fail, which should trigger a rollback Delete on the provider.
	fs := newFakeStore()
	delete(fs.users, "user-1") // force billing engine's GetUser to fail

	jobsMock := provider.NewMock(models.ProviderJobs)
	podsMock := provider.NewMock(models.ProviderPods)
	billingEngine := billing.New(fs, billing.DefaultPricing())

	core := New(fs, billingEngine, jobsMock, podsMock, nil, nil, nil)

	req := &models.CreateSessionRequest{
		WorkspaceID: "ws-1",
		User:        "user-1",
		Provider:    models.ProviderJobs,
	}

	_, err := core.CreateSession(context.Background(), req)
	require.Error(t, err)

	// Confirm the provider-side session was rolled back: no sessions should
	// remain tracked by the jobs mock after the rollback delete.
	for id := range fs.sessions {
		t.Fatalf("store should not have a session record after rollback, found %s", id)
	}
}

func TestApplyTemplate_CallerEnvWinsOnConflict(t *testing.T) {
	fs := newFakeStore()
	fs.templates["tmpl-1"] = &models.Template{
		ID:                "tmpl-1",
		ResourceTier:      models.TierMedium,
		ImageSpec:         "python:3.11",
		DefaultTTLMinutes: 120,
		EnvVars:           map[string]string{"PYTHONPATH": "/workspace", "FOO": "template-value"},
	}
	billingEngine := billing.New(fs, billing.DefaultPricing())
	core := New(fs, billingEngine, provider.NewMock(models.ProviderJobs), provider.NewMock(models.ProviderPods), nil, nil, nil)

	req := &models.CreateSessionRequest{
		TemplateID: "tmpl-1",
		TTLMinutes: 60,
		Env:        map[string]string{"FOO": "caller-value"},
	}

	err := core.applyTemplate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "caller-value", req.Env["FOO"])
	assert.Equal(t, "/workspace", req.Env["PYTHONPATH"])
	assert.Equal(t, 120, req.TTLMinutes)
	assert.Equal(t, 1, fs.templates["tmpl-1"].UsageCount)
}

func TestApplyTemplate_UnknownTemplateNotFound(t *testing.T) {
	fs := newFakeStore()
	billingEngine := billing.New(fs, billing.DefaultPricing())
	core := New(fs, billingEngine, provider.NewMock(models.ProviderJobs), provider.NewMock(models.ProviderPods), nil, nil, nil)

	req := &models.CreateSessionRequest{TemplateID: "missing"}
	err := core.applyTemplate(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, sferrors.NotFoundKind, sferrors.KindOf(err))
}

func TestCreateSession_ProvisionsAndAttachesRequestedBucket(t *testing.T) {
	fs := newFakeStore()
	fs.users["user-1"].Credits = 100
	billingEngine := billing.New(fs, billing.DefaultPricing())
	core := New(fs, billingEngine, provider.NewMock(models.ProviderJobs), provider.NewMock(models.ProviderPods), nil, nil, nil)

	req := &models.CreateSessionRequest{
		WorkspaceID:   "ws-1",
		User:          "user-1",
		Provider:      models.ProviderJobs,
		RequestBucket: true,
		BucketSizeGB:  50,
	}

	info, err := core.CreateSession(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, fs.storage, 1)
	assert.Equal(t, models.StorageBucket, fs.storage[0].Type)
	assert.Equal(t, 50.0, fs.storage[0].SizeGB)
	require.Len(t, fs.attachments, 1)
	assert.Equal(t, info.ID, fs.attachments[0].SessionID)
	assert.Less(t, fs.users["user-1"].Credits, 100.0, "storage creation should have debited credits")
}

func TestCreateSession_SkipsStorageAttachmentOnInsufficientCredits(t *testing.T) {
	fs := newFakeStore()
	fs.users["user-1"].Credits = 0
	billingEngine := billing.New(fs, billing.DefaultPricing())
	core := New(fs, billingEngine, provider.NewMock(models.ProviderJobs), provider.NewMock(models.ProviderPods), nil, nil, nil)

	req := &models.CreateSessionRequest{
		WorkspaceID:              "ws-1",
		User:                     "user-1",
		Provider:                 models.ProviderJobs,
		RequestPersistentStorage: true,
		PersistentStorageSizeGB:  50,
	}

	info, err := core.CreateSession(context.Background(), req)
	require.NoError(t, err, "a storage billing failure must not fail session creation")
	assert.Contains(t, fs.sessions, info.ID)
	assert.Empty(t, fs.storage, "no storage resource should be created without sufficient credits")
	assert.Empty(t, fs.attachments)
}

func TestDeleteSession_NotFound(t *testing.T) {
	fs := newFakeStore()
	billingEngine := billing.New(fs, billing.DefaultPricing())
	core := New(fs, billingEngine, provider.NewMock(models.ProviderJobs), provider.NewMock(models.ProviderPods), nil, nil, nil)

	err := core.DeleteSession(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, sferrors.NotFoundKind, sferrors.KindOf(err))
}
