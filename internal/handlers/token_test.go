package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/formpilot/deviceauth/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_Pending(t *testing.T) {
	env := setupTestEnv(t)
	auth := env.authorize(t)

	w := env.postForm(t, "/device/token", url.Values{
		"grant_type":  {GrantTypeDeviceCode},
		"device_code": {auth.DeviceCode},
		"client_id":   {"formpilot-cli"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "authorization_pending", errorCode(t, w))
}

func TestToken_Approved(t *testing.T) {
	env := setupTestEnv(t)
	auth := env.authorize(t)
	bearer := env.identityToken(t)

	w := env.postJSON(t, "/device/approve", bearer, gin.H{"user_code": auth.UserCode})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.postForm(t, "/device/token", url.Values{
		"grant_type":  {GrantTypeDeviceCode},
		"device_code": {auth.DeviceCode},
		"client_id":   {"formpilot-cli"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var token models.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))
	assert.NotEmpty(t, token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, 3600, token.ExpiresIn)
	assert.Equal(t, "read write", token.Scope)
	assert.Equal(t, "approver@example.com", token.User.Email)
}

func TestToken_WrongClientID(t *testing.T) {
	env := setupTestEnv(t)
	auth := env.authorize(t)
	bearer := env.identityToken(t)

	w := env.postJSON(t, "/device/approve", bearer, gin.H{"user_code": auth.UserCode})
	require.Equal(t, http.StatusOK, w.Code)

	// The device code was issued to formpilot-cli; another client_id must
	// never receive the token.
	w = env.postForm(t, "/device/token", url.Values{
		"grant_type":  {GrantTypeDeviceCode},
		"device_code": {auth.DeviceCode},
		"client_id":   {"some-other-client"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "access_denied", errorCode(t, w))
	assert.NotContains(t, w.Body.String(), "access_token")
}

func TestToken_Denied(t *testing.T) {
	env := setupTestEnv(t)
	auth := env.authorize(t)
	bearer := env.identityToken(t)

	w := env.postJSON(t, "/device/deny", bearer, gin.H{"user_code": auth.UserCode})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.postForm(t, "/device/token", url.Values{
		"grant_type":  {GrantTypeDeviceCode},
		"device_code": {auth.DeviceCode},
		"client_id":   {"formpilot-cli"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "access_denied", errorCode(t, w))
}

func TestToken_UnknownDeviceCode(t *testing.T) {
	env := setupTestEnv(t)

	w := env.postForm(t, "/device/token", url.Values{
		"grant_type":  {GrantTypeDeviceCode},
		"device_code": {"no-such-code"},
		"client_id":   {"formpilot-cli"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", errorCode(t, w))
}

func TestToken_MissingParameters(t *testing.T) {
	env := setupTestEnv(t)

	w := env.postForm(t, "/device/token", url.Values{
		"grant_type": {GrantTypeDeviceCode},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", errorCode(t, w))
}

func TestToken_RefreshGrantRejected(t *testing.T) {
	env := setupTestEnv(t)

	w := env.postForm(t, "/device/token", url.Values{
		"grant_type":    {GrantTypeRefreshToken},
		"refresh_token": {"whatever"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unsupported_grant_type", errorCode(t, w))
}

func TestToken_UnknownGrantType(t *testing.T) {
	env := setupTestEnv(t)

	w := env.postForm(t, "/device/token", url.Values{
		"grant_type": {"client_credentials"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unsupported_grant_type", errorCode(t, w))
}
