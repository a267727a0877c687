package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/formpilot/deviceauth/internal/config"
	"github.com/formpilot/deviceauth/internal/metrics"
	"github.com/formpilot/deviceauth/internal/models"
	"github.com/formpilot/deviceauth/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:              "http://localhost:8080",
		JWTSecret:            "test-secret",
		JWTExpiration:        time.Hour,
		DeviceCodeExpiration: 15 * time.Minute,
		PollingInterval:      5,
		IdentityCacheTTL:     time.Minute,
	}
}

func setupDeviceService(t *testing.T) (*DeviceService, *store.MemoryStore) {
	s := store.NewMemoryStore(time.Hour, 5*time.Minute)
	t.Cleanup(func() { _ = s.Close() })

	cfg := testConfig()
	ts := NewTokenService(cfg, metrics.NewNoopMetrics())
	t.Cleanup(ts.Close)

	return NewDeviceService(s, ts, cfg, metrics.NewNoopMetrics()), s
}

func testUser() models.User {
	return models.User{
		ID:                 uuid.New().String(),
		Email:              "user@example.com",
		SubscriptionTier:   "pro",
		SubscriptionStatus: "active",
		Balances:           models.Balances{Credits: 100, BonusCredits: 10},
	}
}

func TestCreate(t *testing.T) {
	svc, _ := setupDeviceService(t)

	resp, err := svc.Create(context.Background(), CreateRequest{
		ClientID:   "formpilot-cli",
		DeviceName: "laptop",
		Scope:      "read write",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.DeviceCode)
	assert.Len(t, resp.UserCode, 9) // two groups of four plus the hyphen
	assert.Equal(t, "-", string(resp.UserCode[4]))
	assert.Equal(t, "http://localhost:8080/device", resp.VerificationURI)
	assert.Equal(t,
		"http://localhost:8080/device?user_code="+resp.UserCode,
		resp.VerificationURIComplete)
	assert.Equal(t, 900, resp.ExpiresIn)
	assert.Equal(t, 5, resp.Interval)
}

func TestCreate_MissingClientID(t *testing.T) {
	svc, _ := setupDeviceService(t)

	_, err := svc.Create(context.Background(), CreateRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestVerifyUserCode(t *testing.T) {
	svc, _ := setupDeviceService(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, CreateRequest{
		ClientID:   "formpilot-cli",
		DeviceName: "laptop",
		DeviceInfo: models.DeviceInfo{Platform: "linux", Hostname: "laptop"},
	})
	require.NoError(t, err)

	// Lowercase input with the display hyphen resolves the same record.
	auth, err := svc.VerifyUserCode(ctx, strings.ToLower(resp.UserCode))
	require.NoError(t, err)
	assert.Equal(t, "formpilot-cli", auth.ClientID)
	assert.Equal(t, "laptop", auth.DeviceName)
	assert.Equal(t, "linux", auth.DeviceInfo.Platform)
	assert.Equal(t, models.StatusPending, auth.Status)
}

func TestVerifyUserCode_Unknown(t *testing.T) {
	svc, _ := setupDeviceService(t)

	_, err := svc.VerifyUserCode(context.Background(), "ZZZZ-ZZZZ")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestApproveThenPoll(t *testing.T) {
	svc, _ := setupDeviceService(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, CreateRequest{ClientID: "formpilot-cli", Scope: "read"})
	require.NoError(t, err)

	// Before the decision the poll reports pending.
	_, err = svc.PollForToken(ctx, resp.DeviceCode, "formpilot-cli")
	assert.ErrorIs(t, err, ErrAuthorizationPending)

	user := testUser()
	ok, err := svc.Approve(ctx, resp.UserCode, user)
	require.NoError(t, err)
	require.True(t, ok)

	// The first poll after approval already carries the token.
	token, err := svc.PollForToken(ctx, resp.DeviceCode, "formpilot-cli")
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, 3600, token.ExpiresIn)
	assert.Equal(t, "read", token.Scope)
	assert.Equal(t, user.Email, token.User.Email)
	assert.Empty(t, token.RefreshToken)
}

func TestApprove_SecondDecisionLoses(t *testing.T) {
	svc, _ := setupDeviceService(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, CreateRequest{ClientID: "formpilot-cli"})
	require.NoError(t, err)

	ok, err := svc.Approve(ctx, resp.UserCode, testUser())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.Deny(ctx, resp.UserCode)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApprove_UnknownCode(t *testing.T) {
	svc, _ := setupDeviceService(t)

	ok, err := svc.Approve(context.Background(), "ZZZZ-ZZZZ", testUser())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDenyThenPoll(t *testing.T) {
	svc, _ := setupDeviceService(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, CreateRequest{ClientID: "formpilot-cli"})
	require.NoError(t, err)

	ok, err := svc.Deny(ctx, resp.UserCode)
	require.NoError(t, err)
	require.True(t, ok)

	// Denied is terminal on every subsequent poll.
	_, err = svc.PollForToken(ctx, resp.DeviceCode, "formpilot-cli")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = svc.PollForToken(ctx, resp.DeviceCode, "formpilot-cli")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestPoll_UnknownDeviceCode(t *testing.T) {
	svc, _ := setupDeviceService(t)

	_, err := svc.PollForToken(context.Background(), "no-such-code", "formpilot-cli")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestPoll_WrongClientID(t *testing.T) {
	svc, _ := setupDeviceService(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, CreateRequest{ClientID: "formpilot-cli"})
	require.NoError(t, err)

	ok, err := svc.Approve(ctx, resp.UserCode, testUser())
	require.NoError(t, err)
	require.True(t, ok)

	// The code is bound to the client it was issued to; any other
	// client_id is rejected even after approval.
	_, err = svc.PollForToken(ctx, resp.DeviceCode, "some-other-client")
	assert.ErrorIs(t, err, ErrAccessDenied)

	// The rightful client still gets the token.
	token, err := svc.PollForToken(ctx, resp.DeviceCode, "formpilot-cli")
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
}

func TestExpiredCode(t *testing.T) {
	s := store.NewMemoryStore(time.Hour, 5*time.Minute)
	t.Cleanup(func() { _ = s.Close() })

	cfg := testConfig()
	cfg.DeviceCodeExpiration = 20 * time.Millisecond
	ts := NewTokenService(cfg, metrics.NewNoopMetrics())
	t.Cleanup(ts.Close)
	svc := NewDeviceService(s, ts, cfg, metrics.NewNoopMetrics())

	ctx := context.Background()
	resp, err := svc.Create(ctx, CreateRequest{ClientID: "formpilot-cli"})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	// A late approval is rejected, and the poll reports expiry.
	ok, err := svc.Approve(ctx, resp.UserCode, testUser())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.PollForToken(ctx, resp.DeviceCode, "formpilot-cli")
	assert.ErrorIs(t, err, ErrExpiredToken)
}
