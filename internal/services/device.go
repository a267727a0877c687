package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/formpilot/deviceauth/internal/config"
	"github.com/formpilot/deviceauth/internal/metrics"
	"github.com/formpilot/deviceauth/internal/models"
	"github.com/formpilot/deviceauth/internal/store"
	"github.com/formpilot/deviceauth/internal/util"

	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidRequest       = errors.New("unknown or malformed code")
	ErrAuthorizationPending = errors.New("authorization decision pending")
	ErrAccessDenied         = errors.New("authorization denied by user")
	ErrExpiredToken         = errors.New("device code expired")
)

// userCodeAttempts bounds regeneration on live user-code collisions.
const userCodeAttempts = 5

// CreateRequest is the input to Create: opaque client metadata fixed at
// creation time.
type CreateRequest struct {
	ClientID   string
	DeviceName string
	DeviceInfo models.DeviceInfo
	Scope      string
}

// DeviceService is the authorization state machine: create, approve, deny,
// poll, expire. Protocol outcomes ("not found", "already decided",
// "expired") are ordinary return values; only store failures surface as
// errors.
type DeviceService struct {
	store   store.AuthorizationStore
	tokens  *TokenService
	config  *config.Config
	metrics metrics.Recorder
}

func NewDeviceService(
	s store.AuthorizationStore,
	ts *TokenService,
	cfg *config.Config,
	rec metrics.Recorder,
) *DeviceService {
	return &DeviceService{store: s, tokens: ts, config: cfg, metrics: rec}
}

// Create stores a new pending authorization and returns the wire response
// for the initiating device. User-code collisions with live records are
// regenerated; a device-code conflict is a fatal internal error given 256
// bits of entropy.
func (s *DeviceService) Create(
	ctx context.Context,
	req CreateRequest,
) (*models.DeviceAuthResponse, error) {
	if req.ClientID == "" {
		return nil, ErrInvalidRequest
	}

	deviceCode, err := util.NewDeviceCode()
	if err != nil {
		s.metrics.RecordAuthorizationCreated(false)
		return nil, err
	}

	now := time.Now()
	auth := &models.PendingAuthorization{
		DeviceCode: deviceCode,
		ClientID:   req.ClientID,
		DeviceName: req.DeviceName,
		DeviceInfo: req.DeviceInfo,
		Scope:      req.Scope,
		Status:     models.StatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.config.DeviceCodeExpiration),
	}

	for attempt := 0; ; attempt++ {
		userCode, err := util.NewUserCode()
		if err != nil {
			s.metrics.RecordAuthorizationCreated(false)
			return nil, err
		}
		auth.UserCode = userCode

		err = s.store.Create(ctx, auth)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrUserCodeConflict) && attempt < userCodeAttempts-1 {
			continue
		}
		s.metrics.RecordAuthorizationCreated(false)
		return nil, fmt.Errorf("failed to store authorization: %w", err)
	}

	log.WithFields(log.Fields{
		"client_id":   req.ClientID,
		"device_name": req.DeviceName,
		"user_code":   util.FormatUserCode(auth.UserCode),
	}).Info("device authorization created")

	s.metrics.RecordAuthorizationCreated(true)
	return &models.DeviceAuthResponse{
		DeviceCode:      deviceCode,
		UserCode:        util.FormatUserCode(auth.UserCode),
		VerificationURI: s.config.BaseURL + "/device",
		VerificationURIComplete: s.config.BaseURL + "/device?user_code=" +
			util.FormatUserCode(auth.UserCode),
		ExpiresIn: int(s.config.DeviceCodeExpiration.Seconds()),
		Interval:  s.config.PollingInterval,
	}, nil
}

// VerifyUserCode resolves a user code to the pending record, for the
// approval surface's confirmation display. Expired and decided records are
// protocol outcomes, reported through the returned record's status.
func (s *DeviceService) VerifyUserCode(
	ctx context.Context,
	userCode string,
) (*models.PendingAuthorization, error) {
	auth, err := s.store.FindByUserCode(ctx, util.NormalizeUserCode(userCode))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidRequest
	}
	if err != nil {
		return nil, err
	}
	return auth, nil
}

// Approve transitions a pending authorization to approved on behalf of the
// verified identity. The access token is minted before the transition, so
// approve never returns true with an empty token. Returns false for any
// precondition failure: not found, already decided, or expired.
func (s *DeviceService) Approve(
	ctx context.Context,
	userCode string,
	user models.User,
) (bool, error) {
	code := util.NormalizeUserCode(userCode)

	auth, err := s.store.FindByUserCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if auth.Status != models.StatusPending {
		return false, nil
	}

	accessToken, err := s.tokens.Mint(user, auth.ClientID, auth.Scope)
	if err != nil {
		return false, err
	}

	ok, err := s.store.Approve(ctx, code, user, accessToken)
	if err != nil {
		return false, err
	}
	if ok {
		s.metrics.RecordAuthorizationDecision("approved")
		log.WithFields(log.Fields{
			"user_id":   user.ID,
			"client_id": auth.ClientID,
			"user_code": util.FormatUserCode(code),
		}).Info("device authorization approved")
	}
	return ok, nil
}

// Deny transitions a pending authorization to denied under the same
// contract as Approve.
func (s *DeviceService) Deny(ctx context.Context, userCode string) (bool, error) {
	code := util.NormalizeUserCode(userCode)

	ok, err := s.store.Deny(ctx, code)
	if err != nil {
		return false, err
	}
	if ok {
		s.metrics.RecordAuthorizationDecision("denied")
		log.WithField("user_code", util.FormatUserCode(code)).Info("device authorization denied")
	}
	return ok, nil
}

// PollForToken maps the current record status to the wire-level outcome for
// the polling device. The caller must present the client_id the code was
// issued to. An approved record always yields a token response with a
// non-empty access token.
func (s *DeviceService) PollForToken(
	ctx context.Context,
	deviceCode, clientID string,
) (*models.TokenResponse, error) {
	auth, err := s.store.FindByDeviceCode(ctx, deviceCode)
	if errors.Is(err, store.ErrNotFound) {
		s.metrics.RecordTokenPoll("invalid")
		return nil, ErrInvalidRequest
	}
	if err != nil {
		return nil, err
	}

	if auth.ClientID != clientID {
		s.metrics.RecordTokenPoll("denied")
		log.WithFields(log.Fields{
			"client_id": clientID,
			"issued_to": auth.ClientID,
		}).Warn("token poll with mismatched client_id")
		return nil, ErrAccessDenied
	}

	switch auth.Status {
	case models.StatusPending:
		s.metrics.RecordTokenPoll("pending")
		return nil, ErrAuthorizationPending
	case models.StatusDenied:
		s.metrics.RecordTokenPoll("denied")
		return nil, ErrAccessDenied
	case models.StatusExpired:
		s.metrics.RecordTokenPoll("expired")
		return nil, ErrExpiredToken
	case models.StatusApproved:
		s.metrics.RecordTokenPoll("approved")
		return &models.TokenResponse{
			AccessToken: auth.AccessToken,
			TokenType:   "Bearer",
			ExpiresIn:   int(s.config.JWTExpiration.Seconds()),
			Scope:       auth.Scope,
			User:        auth.User,
		}, nil
	default:
		return nil, fmt.Errorf("unexpected authorization status %q", auth.Status)
	}
}
