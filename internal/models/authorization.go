package models

import "time"

// AuthorizationStatus is the lifecycle state of a pending authorization.
// Transitions are monotonic: a record leaves StatusPending at most once.
type AuthorizationStatus string

const (
	StatusPending  AuthorizationStatus = "pending"
	StatusApproved AuthorizationStatus = "approved"
	StatusDenied   AuthorizationStatus = "denied"
	StatusExpired  AuthorizationStatus = "expired"
)

// DeviceInfo describes the device that initiated an authorization request.
// It is a closed structure on purpose: free-form metadata maps make the
// record invariants impossible to check.
type DeviceInfo struct {
	Platform string `json:"platform"`
	Version  string `json:"version"`
	Hostname string `json:"hostname"`
}

// PendingAuthorization tracks one device-code/user-code pair from creation
// to a terminal decision. Owned exclusively by the authorization store.
type PendingAuthorization struct {
	DeviceCode string              `json:"device_code"`
	UserCode   string              `json:"user_code"`
	ClientID   string              `json:"client_id"`
	DeviceName string              `json:"device_name,omitempty"`
	DeviceInfo DeviceInfo          `json:"device_info"`
	Scope      string              `json:"scope,omitempty"`
	Status     AuthorizationStatus `json:"status"`

	// Set only on transition to StatusApproved.
	UserID      string `json:"user_id,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	User        User   `json:"user,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	ApprovedAt time.Time `json:"approved_at,omitempty"`
}

// IsExpired reports whether the record's TTL has elapsed.
func (p *PendingAuthorization) IsExpired() bool {
	return time.Now().After(p.ExpiresAt)
}

// Terminal reports whether the record has left the pending state.
func (p *PendingAuthorization) Terminal() bool {
	return p.Status != StatusPending
}
