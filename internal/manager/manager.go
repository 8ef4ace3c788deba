// Package manager implements the session manager: the single component
// that creates, looks up, lists, and deletes sessions across the cache,
// the durable store, and whichever ProviderDriver backend holds the live
// workload. Grounded directly on
// original_source/server/services/sessions/manager.py's control flow,
// reimplemented with an explicit Core rather than the Python module's
// singleton-with-module-globals shape.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sessionforge/sessionforge/internal/billing"
	"github.com/sessionforge/sessionforge/internal/cache"
	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/lock"
	"github.com/sessionforge/sessionforge/internal/logger"
	"github.com/sessionforge/sessionforge/internal/models"
	"github.com/sessionforge/sessionforge/internal/notify"
	"github.com/sessionforge/sessionforge/internal/provider"
	"github.com/sessionforge/sessionforge/internal/store"
)

const sessionCacheTTL = 5 * time.Minute

// Core threads every dependency the session manager needs through explicit
// fields instead of package-level state, so tests can construct one with a
// mock store/provider/cache and multiple Cores can run side by side in one
// process.
type Core struct {
	Store   store.Store
	Billing *billing.Engine
	Jobs    provider.Driver
	Pods    provider.Driver
	Cache   *cache.Cache
	Locker  *lock.Locker
	Notify  *notify.Publisher

	restored bool
}

func New(s store.Store, b *billing.Engine, jobs, pods provider.Driver, c *cache.Cache, l *lock.Locker, n *notify.Publisher) *Core {
	return &Core{Store: s, Billing: b, Jobs: jobs, Pods: pods, Cache: c, Locker: l, Notify: n}
}

func (c *Core) driverFor(kind models.ProviderKind) provider.Driver {
	if kind == models.ProviderJobs {
		return c.Jobs
	}
	return c.Pods
}

// resolveProvider applies spec's fallback rule: an explicit provider that
// isn't one of the two supported backends is logged and replaced by the
// same priority selection used for ProviderAuto, rather than rejected.
func resolveProvider(req *models.CreateSessionRequest) models.ProviderKind {
	log := logger.Manager()
	switch req.Provider {
	case models.ProviderJobs, models.ProviderPods:
		return req.Provider
	case models.ProviderAuto, "":
		return provider.Select(req)
	default:
		log.Warn().Str("requested_provider", string(req.Provider)).Msg("requested provider not supported, falling back to selection")
		return provider.Select(req)
	}
}

// applyTemplate overlays a template's resource/image/storage defaults onto
// req, merges env with the caller winning on key conflicts, conditionally
// adopts the template's default TTL, and increments the template's usage
// counter. Unknown template_id fails with NotFound.
func (c *Core) applyTemplate(ctx context.Context, req *models.CreateSessionRequest) error {
	tmpl, err := c.Store.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return err
	}
	if tmpl == nil {
		return sferrors.NotFound("manager.applyTemplate", fmt.Sprintf("template %s not found", req.TemplateID))
	}

	req.ResourcePackage = tmpl.ResourceTier
	req.ImageSpec = tmpl.ImageSpec

	switch tmpl.StorageType {
	case models.StorageBucket:
		req.RequestBucket = true
		req.BucketSizeGB = tmpl.StorageSizeGB
	case models.StorageFilestore:
		req.RequestPersistentStorage = true
		req.PersistentStorageSizeGB = tmpl.StorageSizeGB
	}

	merged := make(map[string]string, len(tmpl.EnvVars)+len(req.Env))
	for k, v := range tmpl.EnvVars {
		merged[k] = v
	}
	for k, v := range req.Env {
		merged[k] = v // caller wins on conflict
	}
	req.Env = merged

	if req.TTLMinutes == 60 {
		req.TTLMinutes = tmpl.DefaultTTLMinutes
	}

	if err := c.Store.IncrementTemplateUsage(ctx, req.TemplateID); err != nil {
		logger.Manager().Warn().Err(err).Str("template_id", req.TemplateID).Msg("failed to increment template usage")
	}
	return nil
}

// CreateSession provisions a session through the selected ProviderDriver,
// opens its billing row, and persists it. A provider create failure is
// propagated without writing anything to the store. A billing-start
// failure after a successful provider create triggers a best-effort
// rollback delete of the just-created workload.
func (c *Core) CreateSession(ctx context.Context, req *models.CreateSessionRequest) (*models.SessionInfo, error) {
	log := logger.Manager()

	if req.TTLMinutes == 0 {
		req.TTLMinutes = 60
	}

	if req.TemplateID != "" {
		if err := c.applyTemplate(ctx, req); err != nil {
			return nil, err
		}
	}

	req.Provider = resolveProvider(req)
	driver := c.driverFor(req.Provider)

	sessionID := uuid.New().String()

	info, err := driver.Create(ctx, req, sessionID)
	if err != nil {
		return nil, err
	}

	tier := models.TierSmall
	if req.ResourceSpec != nil {
		tier = req.ResourceSpec.Tier
	} else if req.ResourcePackage != "" {
		tier = req.ResourcePackage
	}

	if _, err := c.Billing.StartSessionBilling(ctx, sessionID, req.User, tier); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("billing start failed, rolling back provider create")
		if delErr := driver.Delete(context.Background(), sessionID); delErr != nil {
			log.Error().Err(delErr).Str("session_id", sessionID).Msg("rollback delete also failed")
		}
		return nil, err
	}

	sess := &models.Session{
		ID:               sessionID,
		WorkspaceID:      req.WorkspaceID,
		UserID:           req.User,
		Namespace:        req.Namespace,
		Provider:         req.Provider,
		Status:           info.Status,
		TemplateID:       req.TemplateID,
		ResourceSpec:     resourceSpecOf(req),
		Env:              req.Env,
		TTLMinutes:       req.TTLMinutes,
		NeedsShell:       req.NeedsShell,
		LongLived:        req.LongLived,
		ExpectedDuration: req.ExpectedDurationMinutes,
		URL:              info.URL,
		WebsocketURL:     info.WebsocketURL,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if err := c.Store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	if c.Cache != nil {
		_ = c.Cache.Set(ctx, cache.SessionKey(sessionID), sess, sessionCacheTTL)
	}
	if c.Notify != nil {
		_ = c.Notify.PublishCreated(sessionID, req.User)
	}

	if req.RequestBucket || req.RequestPersistentStorage {
		c.provisionStorage(ctx, req, sessionID)
	}

	log.Info().Str("session_id", sessionID).Str("provider", string(req.Provider)).Msg("session created")
	return info, nil
}

// provisionStorage best-effort creates (or reuses) the workspace's default
// storage resource and attaches it to sessionID, billing the owner for
// 30 days of retention first. Mirrors the spec's "pre-known attachments are
// best-effort" step: a billing or storage failure here is logged and does
// not fail session creation, since the session itself is already live.
const storageDefaultDurationDays = 30

func (c *Core) provisionStorage(ctx context.Context, req *models.CreateSessionRequest, sessionID string) {
	log := logger.Manager()

	var storageType models.StorageType
	var sizeGB float64
	switch {
	case req.RequestBucket:
		storageType, sizeGB = models.StorageBucket, req.BucketSizeGB
	case req.RequestPersistentStorage:
		storageType, sizeGB = models.StorageFilestore, req.PersistentStorageSizeGB
	}
	if sizeGB <= 0 {
		sizeGB = 10
	}

	if _, err := c.Billing.ProcessStorageCreationBilling(ctx, req.User, sessionID, storageType, sizeGB, storageDefaultDurationDays); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Str("storage_type", string(storageType)).
			Msg("storage billing failed, skipping storage attachment")
		return
	}

	resource, err := c.Store.GetDefaultStorageResource(ctx, req.WorkspaceID, storageType)
	if err != nil {
		resource = &models.StorageResource{WorkspaceID: req.WorkspaceID, Type: storageType, SizeGB: sizeGB, IsDefault: true}
		if err := c.Store.CreateStorageResource(ctx, resource); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("storage resource provisioning failed")
			return
		}
	}

	attachment := &models.SessionAttachment{SessionID: sessionID, StorageID: resource.ID, MountPath: "/data", AccessMode: models.AccessRW}
	if err := c.Store.AttachStorage(ctx, attachment); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("storage attachment failed")
	}
}

func resourceSpecOf(req *models.CreateSessionRequest) models.ResourceSpec {
	if req.ResourceSpec != nil {
		return *req.ResourceSpec
	}
	return models.ResourceSpec{Tier: req.ResourcePackage, ImageSpec: req.ImageSpec}
}

// GetSession looks the session up through cache, then store, then falls
// back to asking every provider directly — mirroring the cascade in the
// Python original's get_session.
func (c *Core) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if c.Cache != nil {
		var cached models.Session
		if err := c.Cache.Get(ctx, cache.SessionKey(sessionID), &cached); err == nil {
			c.refreshFromProvider(ctx, &cached)
			return &cached, nil
		}
	}

	sess, err := c.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		c.refreshFromProvider(ctx, sess)
		if c.Cache != nil {
			_ = c.Cache.Set(ctx, cache.SessionKey(sessionID), sess, sessionCacheTTL)
		}
		return sess, nil
	}

	for _, kind := range []models.ProviderKind{models.ProviderJobs, models.ProviderPods} {
		info, err := c.driverFor(kind).Get(ctx, sessionID)
		if err != nil || info == nil {
			continue
		}
		return sessionFromInfo(info, kind), nil
	}

	return nil, nil
}

func (c *Core) refreshFromProvider(ctx context.Context, sess *models.Session) {
	driver := c.driverFor(sess.Provider)
	if driver == nil {
		return
	}
	info, err := driver.Get(ctx, sess.ID)
	if err != nil || info == nil {
		return
	}
	sess.Status = info.Status
}

func sessionFromInfo(info *models.SessionInfo, kind models.ProviderKind) *models.Session {
	return &models.Session{
		ID:          info.ID,
		WorkspaceID: info.WorkspaceID,
		UserID:      info.User,
		Namespace:   info.Namespace,
		Provider:    kind,
		Status:      info.Status,
		URL:         info.URL,
		CreatedAt:   info.CreatedAt,
	}
}

// ListSessions unions the store's record of a workspace's sessions with
// whatever the cache independently knows about, refreshing live status
// from each session's provider on a best-effort basis.
func (c *Core) ListSessions(ctx context.Context, workspaceID string) ([]*models.Session, error) {
	sessions, err := c.Store.ListSessions(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.Provider == "" {
			s.Provider = models.ProviderPods
		}
		c.refreshFromProvider(ctx, s)
	}
	return sessions, nil
}

// DeleteSession resolves the session across cache/store/providers, removes
// it from the cache and store, and fires the ProviderDriver delete without
// waiting for it to complete so the caller is never blocked on teardown.
func (c *Core) DeleteSession(ctx context.Context, sessionID string) error {
	log := logger.Manager()

	var lk *lock.Lock
	if c.Locker != nil {
		acquired, err := c.Locker.TryAcquire(ctx, sessionID, 5*time.Second)
		if err == nil {
			lk = acquired
			defer lk.Unlock(context.Background())
		}
	}

	sess, err := c.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return sferrors.NotFound("manager.DeleteSession", fmt.Sprintf("session %s not found", sessionID))
	}

	if c.Cache != nil {
		_ = c.Cache.Delete(ctx, cache.SessionKey(sessionID))
	}
	if err := c.Store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}

	if _, err := c.Billing.StopSessionBilling(ctx, sessionID); err != nil && sferrors.KindOf(err) != sferrors.NotFoundKind {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("billing stop failed during delete")
	}

	driver := c.driverFor(sess.Provider)
	go func(id string) {
		if err := driver.Delete(context.Background(), id); err != nil {
			log.Error().Err(err).Str("session_id", id).Msg("fire-and-forget provider delete failed")
		}
	}(sessionID)

	if c.Notify != nil {
		_ = c.Notify.PublishDeleted(sessionID, sess.UserID)
	}

	log.Info().Str("session_id", sessionID).Msg("session deleted")
	return nil
}

// Execute runs a command against a session, resolving it the same way
// GetSession does before delegating to its ProviderDriver.
func (c *Core) Execute(ctx context.Context, sessionID, command string, timeout time.Duration, async bool) (*models.ExecResult, error) {
	sess, err := c.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, sferrors.NotFound("manager.Execute", fmt.Sprintf("session %s not found", sessionID))
	}
	return c.driverFor(sess.Provider).Execute(ctx, sessionID, command, timeout, async)
}

// GetJobStatus polls an async Execute call's outcome.
func (c *Core) GetJobStatus(ctx context.Context, sessionID, jobID, jobName string) (*models.ExecResult, error) {
	sess, err := c.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, sferrors.NotFound("manager.GetJobStatus", fmt.Sprintf("session %s not found", sessionID))
	}
	return c.driverFor(sess.Provider).GetJobStatus(ctx, sessionID, jobID, jobName)
}

// OpenShell resolves the session and opens an interactive shell stream
// against its provider, for internal/shell to bridge over WebSocket.
func (c *Core) OpenShell(ctx context.Context, sessionID string) (provider.ShellStream, *models.Session, error) {
	sess, err := c.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, sferrors.NotFound("manager.OpenShell", fmt.Sprintf("session %s not found", sessionID))
	}
	stream, err := c.driverFor(sess.Provider).OpenShell(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return stream, sess, nil
}

// RestoreOnStartup reconstructs in-memory/cache state for sessions that
// were left running in the store across a restart, defaulting to the pods
// backend when a session's recorded provider is unrecognized. Guarded so
// that only one call across the process (or, under the distributed lock,
// across a fleet of instances sharing one cache) performs the sweep.
func (c *Core) RestoreOnStartup(ctx context.Context) error {
	if c.restored {
		return nil
	}

	if c.Locker != nil {
		lk, err := c.Locker.TryAcquire(ctx, "startup-restore", 10*time.Second)
		if err != nil {
			logger.Manager().Warn().Err(err).Msg("could not acquire startup-restore lock, skipping")
			return nil
		}
		defer lk.Unlock(context.Background())
	}

	if c.Cache != nil {
		acquired, err := c.Cache.SetNX(ctx, cache.StartupRestoreLockKey(), true, time.Minute)
		if err == nil && !acquired {
			c.restored = true
			return nil
		}
		// First instance up since the restart: any cached session entries
		// predate it and may carry stale status, so clear them before the
		// sweep below repopulates from the store and each provider.
		if err := c.Cache.DeletePattern(ctx, cache.SessionPattern()); err != nil {
			logger.Manager().Warn().Err(err).Msg("failed to clear stale session cache before restore")
		}
	}

	sessions, err := c.Store.ListActiveSessionsForMonitor(ctx)
	if err != nil {
		return err
	}

	log := logger.Manager()
	restored, unknownProvider := 0, 0
	for _, s := range sessions {
		if s.Provider != models.ProviderJobs && s.Provider != models.ProviderPods {
			s.Provider = models.ProviderPods
			unknownProvider++
		}
		info, err := c.driverFor(s.Provider).Get(ctx, s.ID)
		if err != nil || info == nil {
			log.Warn().Str("session_id", s.ID).Msg("restored session from store only, not found in provider")
			continue
		}
		if c.Cache != nil {
			_ = c.Cache.Set(ctx, cache.SessionKey(s.ID), s, sessionCacheTTL)
		}
		restored++
	}

	log.Info().Int("restored", restored).Int("unknown_provider_defaulted", unknownProvider).Msg("startup restoration complete")
	c.restored = true
	return nil
}
