package store

import (
	"context"
	"errors"

	"github.com/formpilot/deviceauth/internal/models"
)

var (
	// ErrNotFound is returned when neither code resolves to a live record
	ErrNotFound = errors.New("authorization record not found")

	// ErrUserCodeConflict is returned when a generated user code collides
	// with another live pending record. Callers regenerate and retry.
	ErrUserCodeConflict = errors.New("user code already in use")

	// ErrDeviceCodeConflict is returned on a device code key conflict.
	// With 256 bits of entropy this indicates an internal fault, not a
	// condition to retry.
	ErrDeviceCodeConflict = errors.New("device code already in use")

	// ErrClosed is returned when the store has been shut down
	ErrClosed = errors.New("authorization store is closed")
)

// AuthorizationStore holds pending authorization records, keyed by both the
// device code and the user code. Reads apply a lazy expiry check: a pending
// record observed past its deadline reports StatusExpired even if background
// cleanup has not yet run. Approve and Deny are linearizable per record;
// exactly one concurrent decision wins.
type AuthorizationStore interface {
	// Create stores a new pending record and schedules its expiry.
	Create(ctx context.Context, auth *models.PendingAuthorization) error

	// FindByDeviceCode returns the record view for a device code.
	FindByDeviceCode(ctx context.Context, deviceCode string) (*models.PendingAuthorization, error)

	// FindByUserCode returns the record view for a (normalized) user code.
	FindByUserCode(ctx context.Context, userCode string) (*models.PendingAuthorization, error)

	// Approve transitions a pending record to approved, stamping the user
	// snapshot and the freshly minted access token. Returns false without
	// error when the record is missing, already decided, or expired.
	Approve(ctx context.Context, userCode string, user models.User, accessToken string) (bool, error)

	// Deny transitions a pending record to denied under the same contract.
	Deny(ctx context.Context, userCode string) (bool, error)

	// Health reports whether the backing store is reachable.
	Health(ctx context.Context) error

	// Close stops expiry timers and background sweeps.
	Close() error
}
