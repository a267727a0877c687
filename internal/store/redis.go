package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/formpilot/deviceauth/internal/models"

	"github.com/redis/go-redis/v9"
)

// Key prefixes. The user-code key holds the device code, the device-code
// key holds the record JSON; both carry the same TTL.
const (
	redisDevicePrefix = "deviceauth:d:"
	redisUserPrefix   = "deviceauth:u:"
)

// decideScript performs the single-winner transition: it re-reads the record
// inside Redis and replaces it only while the status is still pending and the
// deadline has not passed. ARGV[1] is the replacement JSON, ARGV[2] the
// current unix time.
var decideScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
  return 0
end
local rec = cjson.decode(cur)
if rec['status'] ~= 'pending' then
  return 0
end
if tonumber(rec['expires_unix']) <= tonumber(ARGV[2]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'KEEPTTL')
return 1
`)

// redisRecord adds the numeric deadline the decide script compares against.
type redisRecord struct {
	models.PendingAuthorization
	ExpiresUnix int64 `json:"expires_unix"`
}

// Compile-time interface check.
var _ AuthorizationStore = (*RedisStore)(nil)

// RedisStore implements AuthorizationStore on a TTL-capable external
// key-value store, so browser and CLI requests may land on different server
// instances. Redis key expiry plays the role of the background sweep: keys
// live until the record deadline plus the retention window and are then
// purged by Redis itself. Lazy expiry is still applied on every read.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisStore creates a redis-backed store and verifies connectivity.
func NewRedisStore(
	ctx context.Context,
	opts *redis.Options,
	retention time.Duration,
) (*RedisStore, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return &RedisStore{client: client, retention: retention}, nil
}

// Create stores a new pending record. Uniqueness of both codes is enforced
// with SETNX; the key TTL covers the full lifecycle including retention.
func (s *RedisStore) Create(ctx context.Context, auth *models.PendingAuthorization) error {
	ttl := time.Until(auth.ExpiresAt) + s.retention
	if ttl <= 0 {
		return fmt.Errorf("refusing to store an already expired record")
	}

	payload, err := json.Marshal(redisRecord{
		PendingAuthorization: *auth,
		ExpiresUnix:          auth.ExpiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode authorization record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, redisUserPrefix+auth.UserCode, auth.DeviceCode, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve user code: %w", err)
	}
	if !ok {
		return ErrUserCodeConflict
	}

	ok, err = s.client.SetNX(ctx, redisDevicePrefix+auth.DeviceCode, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store authorization record: %w", err)
	}
	if !ok {
		// Release the user-code reservation before reporting the conflict.
		_ = s.client.Del(ctx, redisUserPrefix+auth.UserCode).Err()
		return ErrDeviceCodeConflict
	}

	return nil
}

// FindByDeviceCode returns the record view, lazily reporting expiry.
func (s *RedisStore) FindByDeviceCode(
	ctx context.Context,
	deviceCode string,
) (*models.PendingAuthorization, error) {
	return s.load(ctx, redisDevicePrefix+deviceCode)
}

// FindByUserCode resolves the user-code mapping and returns the record view.
func (s *RedisStore) FindByUserCode(
	ctx context.Context,
	userCode string,
) (*models.PendingAuthorization, error) {
	deviceCode, err := s.client.Get(ctx, redisUserPrefix+userCode).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user code: %w", err)
	}
	return s.load(ctx, redisDevicePrefix+deviceCode)
}

// Approve transitions a pending record to approved via the decide script.
func (s *RedisStore) Approve(
	ctx context.Context,
	userCode string,
	user models.User,
	accessToken string,
) (bool, error) {
	rec, key, err := s.pendingForDecision(ctx, userCode)
	if err != nil || rec == nil {
		return false, err
	}

	now := time.Now()
	rec.Status = models.StatusApproved
	rec.UserID = user.ID
	rec.User = user
	rec.AccessToken = accessToken
	rec.ApprovedAt = now
	return s.decide(ctx, key, rec)
}

// Deny transitions a pending record to denied via the decide script.
func (s *RedisStore) Deny(ctx context.Context, userCode string) (bool, error) {
	rec, key, err := s.pendingForDecision(ctx, userCode)
	if err != nil || rec == nil {
		return false, err
	}

	rec.Status = models.StatusDenied
	return s.decide(ctx, key, rec)
}

// Health pings the backend.
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client connection; Redis owns record expiry.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) load(ctx context.Context, key string) (*models.PendingAuthorization, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization record: %w", err)
	}

	var rec redisRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode authorization record: %w", err)
	}
	return viewOf(&rec.PendingAuthorization), nil
}

// pendingForDecision fetches the current record when it is still eligible
// for a decision. A nil record with nil error means "not applicable" and
// maps to a false decision result.
func (s *RedisStore) pendingForDecision(
	ctx context.Context,
	userCode string,
) (*models.PendingAuthorization, string, error) {
	deviceCode, err := s.client.Get(ctx, redisUserPrefix+userCode).Result()
	if errors.Is(err, redis.Nil) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve user code: %w", err)
	}

	key := redisDevicePrefix + deviceCode
	rec, err := s.load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	if rec.Status != models.StatusPending {
		return nil, "", nil
	}
	return rec, key, nil
}

func (s *RedisStore) decide(
	ctx context.Context,
	key string,
	rec *models.PendingAuthorization,
) (bool, error) {
	payload, err := json.Marshal(redisRecord{
		PendingAuthorization: *rec,
		ExpiresUnix:          rec.ExpiresAt.Unix(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode authorization record: %w", err)
	}

	res, err := decideScript.Run(
		ctx,
		s.client,
		[]string{key},
		string(payload),
		time.Now().Unix(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("decision script failed: %w", err)
	}
	return res == 1, nil
}
