package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionforge/sessionforge/internal/billing"
	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/manager"
	"github.com/sessionforge/sessionforge/internal/models"
	"github.com/sessionforge/sessionforge/internal/provider"
)

// fakeStore is a small in-memory store.Store double, local to this package's
// tests so the monitor's five ordered checks can be driven deterministically
// instead of through a live database.
type fakeStore struct {
	users    map[string]*models.User
	sessions map[string]*models.Session
	billing  map[string]*models.SessionBilling
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]*models.User{"user-1": {ID: "user-1", UserType: models.UserFree, Credits: 10}},
		sessions: map[string]*models.Session{},
		billing:  map[string]*models.SessionBilling{},
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
	return nil, nil
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
	return b, nil
}
func (f *fakeStore) GetSessionBillingInfo(ctx context.Context, sessionID string) (*models.SessionBilling, error) {
	b, ok := f.billing[sessionID]
	if !ok {
		return nil, sferrors.NotFound("fakeStore.GetSessionBillingInfo", sessionID)
	}
	return b, nil
}

func (f *fakeStore) CreateStorageResource(ctx context.Context, r *models.StorageResource) error { return nil }
func (f *fakeStore) GetDefaultStorageResource(ctx context.Context, workspaceID string, t models.StorageType) (*models.StorageResource, error) {
	return nil, sferrors.NotFound("fakeStore.GetDefaultStorageResource", workspaceID)
}
func (f *fakeStore) AttachStorage(ctx context.Context, a *models.SessionAttachment) error { return nil }
func (f *fakeStore) ListAttachments(ctx context.Context, sessionID string) ([]*models.SessionAttachment, error) {
	return nil, nil
}

func (f *fakeStore) GetTemplate(ctx context.Context, templateID string) (*models.Template, error) {
	return nil, sferrors.NotFound("fakeStore.GetTemplate", templateID)
}
func (f *fakeStore) IncrementTemplateUsage(ctx context.Context, templateID string) error { return nil }

func (f *fakeStore) Close() error { return nil }

func newTestMonitor(fs *fakeStore, jobsMock *provider.Mock, limits Limits) (*Monitor, *manager.Core) {
	billingEngine := billing.New(fs, billing.DefaultPricing())
	mgr := manager.New(fs, billingEngine, jobsMock, jobsMock, nil, nil, nil)
	mon := New(fs, mgr, billingEngine, nil, limits)
	return mon, mgr
}

func defaultLimits() Limits {
	return Limits{
		CheckInterval: time.Minute,
		MaxDuration:   24 * time.Hour,
		MaxCostUSD:    100,
		MinSessionAge: time.Minute,
		GracePeriod:   5 * time.Minute,
	}
}

func TestCheckSession_SkipsSessionYoungerThanMinAge(t *testing.T) {
	fs := newFakeStore()
	jobsMock := provider.NewMock(models.ProviderJobs)
	limits := defaultLimits()
	limits.MinSessionAge = time.Hour
	mon, _ := newTestMonitor(fs, jobsMock, limits)

	sess := &models.Session{ID: "sess-1", UserID: "user-1", Provider: models.ProviderJobs, CreatedAt: time.Now()}
	fs.sessions[sess.ID] = sess

	err := mon.checkSession(context.Background(), sess)
	require.NoError(t, err)
	assert.Contains(t, fs.sessions, "sess-1")
}

func TestCheckSession_OrphanMissingEverywhereIsSkippedSafely(t *testing.T) {
	fs := newFakeStore()
	jobsMock := provider.NewMock(models.ProviderJobs)
	limits := defaultLimits()
	limits.GracePeriod = time.Hour
	mon, _ := newTestMonitor(fs, jobsMock, limits)

	// s is handed to checkSession the way Sweep would (from a prior
	// ListActiveSessionsForMonitor snapshot) but is absent from both the
	// store and every provider by the time checkSession runs it through
	// mgr.GetSession's cascade — the true orphan case. kill's own
	// re-confirmation then also finds nothing and aborts without error,
	// since there is nothing left to delete.
	sess := &models.Session{ID: "sess-1", UserID: "user-1", Provider: models.ProviderJobs, CreatedAt: time.Now().Add(-2 * time.Hour)}

	err := mon.checkSession(context.Background(), sess)
	require.NoError(t, err)
	assert.NotContains(t, fs.sessions, "sess-1")
}

func TestCheckSession_KillsExtremeDuration(t *testing.T) {
	fs := newFakeStore()
	jobsMock := provider.NewMock(models.ProviderJobs)
	limits := defaultLimits()
	limits.MaxDuration = time.Hour
	limits.GracePeriod = 0
	mon, mgr := newTestMonitor(fs, jobsMock, limits)

	req := &models.CreateSessionRequest{WorkspaceID: "ws-1", User: "user-1", Provider: models.ProviderJobs}
	info, err := mgr.CreateSession(context.Background(), req)
	require.NoError(t, err)

	sess := fs.sessions[info.ID]
	sess.CreatedAt = time.Now().Add(-2 * time.Hour)
	fs.billing[info.ID].StartTime = time.Now().Add(-2 * time.Hour)

	err = mon.checkSession(context.Background(), sess)
	require.NoError(t, err)
	assert.NotContains(t, fs.sessions, info.ID)
}

func TestKill_SkipsWithinGracePeriodForNonOrphanReasons(t *testing.T) {
	fs := newFakeStore()
	jobsMock := provider.NewMock(models.ProviderJobs)
	limits := defaultLimits()
	limits.GracePeriod = time.Hour
	mon, mgr := newTestMonitor(fs, jobsMock, limits)

	req := &models.CreateSessionRequest{WorkspaceID: "ws-1", User: "user-1", Provider: models.ProviderJobs}
	info, err := mgr.CreateSession(context.Background(), req)
	require.NoError(t, err)

	sess := fs.sessions[info.ID] // CreatedAt is "now", well within the grace period

	err = mon.kill(context.Background(), sess, "extreme_cost_exceeded")
	require.NoError(t, err)
	assert.Contains(t, fs.sessions, info.ID, "session should survive a kill attempt inside the grace period")
}

func TestKill_OrphanIgnoresGracePeriod(t *testing.T) {
	fs := newFakeStore()
	jobsMock := provider.NewMock(models.ProviderJobs)
	limits := defaultLimits()
	limits.GracePeriod = time.Hour
	mon, mgr := newTestMonitor(fs, jobsMock, limits)

	req := &models.CreateSessionRequest{WorkspaceID: "ws-1", User: "user-1", Provider: models.ProviderJobs}
	info, err := mgr.CreateSession(context.Background(), req)
	require.NoError(t, err)

	sess := fs.sessions[info.ID]

	err = mon.kill(context.Background(), sess, "orphaned_session")
	require.NoError(t, err)
	assert.NotContains(t, fs.sessions, info.ID, "orphan kill must not be held back by the grace period")
}

func TestClampRate_BoundsToRange(t *testing.T) {
	assert.Equal(t, 0.0, clampRate(-5))
	assert.Equal(t, 1000.0, clampRate(5000))
	assert.Equal(t, 0.05, clampRate(0.05))
}
