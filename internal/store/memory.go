package store

import (
	"context"
	"sync"
	"time"

	"github.com/formpilot/deviceauth/internal/models"

	log "github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ AuthorizationStore = (*MemoryStore)(nil)

// memRecord wraps a record with bookkeeping the interface does not expose.
type memRecord struct {
	auth *models.PendingAuthorization
	// decidedAt marks when the record left pending; terminal records are
	// purged once decidedAt + retention has passed.
	decidedAt time.Time
}

// MemoryStore implements AuthorizationStore with process-local maps.
// Every record schedules its own expiry timer as an optimization for prompt
// transitions; the periodic sweep is the source of truth and also enforces
// the retention purge. Suitable for single-instance deployments only; use
// RedisStore when browser and CLI traffic may land on different instances.
type MemoryStore struct {
	mu       sync.RWMutex
	byDevice map[string]*memRecord
	byUser   map[string]string // userCode -> deviceCode
	timers   map[string]*time.Timer

	retention time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore creates a memory store and starts its sweep loop.
func NewMemoryStore(sweepInterval, retention time.Duration) *MemoryStore {
	s := &MemoryStore{
		byDevice:  make(map[string]*memRecord),
		byUser:    make(map[string]string),
		timers:    make(map[string]*time.Timer),
		retention: retention,
		done:      make(chan struct{}),
	}
	go s.sweepLoop(sweepInterval)
	return s
}

// Create stores a new pending record and arms its expiry timer.
func (s *MemoryStore) Create(ctx context.Context, auth *models.PendingAuthorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed() {
		return ErrClosed
	}
	if _, exists := s.byDevice[auth.DeviceCode]; exists {
		return ErrDeviceCodeConflict
	}
	if _, exists := s.byUser[auth.UserCode]; exists {
		return ErrUserCodeConflict
	}

	cp := *auth
	s.byDevice[auth.DeviceCode] = &memRecord{auth: &cp}
	s.byUser[auth.UserCode] = auth.DeviceCode

	deviceCode := auth.DeviceCode
	s.timers[deviceCode] = time.AfterFunc(time.Until(auth.ExpiresAt), func() {
		s.markExpired(deviceCode)
	})

	return nil
}

// FindByDeviceCode returns a copy of the record, lazily reporting expiry.
func (s *MemoryStore) FindByDeviceCode(
	ctx context.Context,
	deviceCode string,
) (*models.PendingAuthorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.byDevice[deviceCode]
	if !exists {
		return nil, ErrNotFound
	}
	return viewOf(rec.auth), nil
}

// FindByUserCode returns a copy of the record, lazily reporting expiry.
func (s *MemoryStore) FindByUserCode(
	ctx context.Context,
	userCode string,
) (*models.PendingAuthorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deviceCode, exists := s.byUser[userCode]
	if !exists {
		return nil, ErrNotFound
	}
	rec, exists := s.byDevice[deviceCode]
	if !exists {
		return nil, ErrNotFound
	}
	return viewOf(rec.auth), nil
}

// Approve transitions a pending record to approved. Single winner: callers
// racing this call (or Deny) on the same record observe false.
func (s *MemoryStore) Approve(
	ctx context.Context,
	userCode string,
	user models.User,
	accessToken string,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.livePending(userCode)
	if rec == nil {
		return false, nil
	}

	now := time.Now()
	rec.auth.Status = models.StatusApproved
	rec.auth.UserID = user.ID
	rec.auth.User = user
	rec.auth.AccessToken = accessToken
	rec.auth.ApprovedAt = now
	rec.decidedAt = now
	s.stopTimer(rec.auth.DeviceCode)
	return true, nil
}

// Deny transitions a pending record to denied under the same contract.
func (s *MemoryStore) Deny(ctx context.Context, userCode string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.livePending(userCode)
	if rec == nil {
		return false, nil
	}

	rec.auth.Status = models.StatusDenied
	rec.decidedAt = time.Now()
	s.stopTimer(rec.auth.DeviceCode)
	return true, nil
}

// Health always succeeds for the memory store unless closed.
func (s *MemoryStore) Health(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed() {
		return ErrClosed
	}
	return nil
}

// Close stops the sweep loop and all pending expiry timers.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		defer s.mu.Unlock()
		for code, t := range s.timers {
			t.Stop()
			delete(s.timers, code)
		}
	})
	return nil
}

// livePending resolves a user code to its record if, and only if, the record
// is still pending and unexpired. Expired-but-pending records are transitioned
// in place so a losing approve/deny call never reanimates them.
func (s *MemoryStore) livePending(userCode string) *memRecord {
	deviceCode, exists := s.byUser[userCode]
	if !exists {
		return nil
	}
	rec, exists := s.byDevice[deviceCode]
	if !exists {
		return nil
	}
	if rec.auth.Status != models.StatusPending {
		return nil
	}
	if rec.auth.IsExpired() {
		s.expireLocked(rec)
		return nil
	}
	return rec
}

// markExpired is the per-record timer callback.
func (s *MemoryStore) markExpired(deviceCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.byDevice[deviceCode]
	if !exists || rec.auth.Status != models.StatusPending {
		return
	}
	s.expireLocked(rec)
}

func (s *MemoryStore) expireLocked(rec *memRecord) {
	rec.auth.Status = models.StatusExpired
	rec.decidedAt = rec.auth.ExpiresAt
	s.stopTimer(rec.auth.DeviceCode)
}

func (s *MemoryStore) stopTimer(deviceCode string) {
	if t, exists := s.timers[deviceCode]; exists {
		t.Stop()
		delete(s.timers, deviceCode)
	}
}

// sweepLoop force-transitions overdue pending records and purges terminal
// records past the retention window. It is the correctness backstop for any
// lost per-record timer.
func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired, purged := 0, 0
	for deviceCode, rec := range s.byDevice {
		if rec.auth.Status == models.StatusPending && now.After(rec.auth.ExpiresAt) {
			s.expireLocked(rec)
			expired++
		}
		if rec.auth.Status != models.StatusPending && now.After(rec.decidedAt.Add(s.retention)) {
			delete(s.byDevice, deviceCode)
			delete(s.byUser, rec.auth.UserCode)
			s.stopTimer(deviceCode)
			purged++
		}
	}

	if expired > 0 || purged > 0 {
		log.WithFields(log.Fields{
			"expired": expired,
			"purged":  purged,
			"live":    len(s.byDevice),
		}).Debug("authorization store sweep")
	}
}

func (s *MemoryStore) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// viewOf copies a record for return to callers, applying the lazy expiry
// check so reads never observe a false pending after the deadline.
func viewOf(auth *models.PendingAuthorization) *models.PendingAuthorization {
	cp := *auth
	if cp.Status == models.StatusPending && cp.IsExpired() {
		cp.Status = models.StatusExpired
	}
	return &cp
}
