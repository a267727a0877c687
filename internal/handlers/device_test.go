package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/formpilot/deviceauth/internal/config"
	"github.com/formpilot/deviceauth/internal/metrics"
	"github.com/formpilot/deviceauth/internal/middleware"
	"github.com/formpilot/deviceauth/internal/models"
	"github.com/formpilot/deviceauth/internal/services"
	"github.com/formpilot/deviceauth/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router *gin.Engine
	tokens *services.TokenService
	device *services.DeviceService
}

func setupTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		BaseURL:              "http://localhost:8080",
		JWTSecret:            "test-secret",
		JWTExpiration:        time.Hour,
		DeviceCodeExpiration: 15 * time.Minute,
		PollingInterval:      5,
		IdentityCacheTTL:     time.Minute,
	}

	s := store.NewMemoryStore(time.Hour, 5*time.Minute)
	t.Cleanup(func() { _ = s.Close() })
	tokens := services.NewTokenService(cfg, metrics.NewNoopMetrics())
	t.Cleanup(tokens.Close)
	device := services.NewDeviceService(s, tokens, cfg, metrics.NewNoopMetrics())

	dh := NewDeviceHandler(device)
	th := NewTokenHandler(device)

	router := gin.New()
	group := router.Group("/device")
	group.POST("/authorize", dh.Authorize)
	group.POST("/token", th.Token)

	guarded := group.Group("")
	guarded.Use(middleware.RequireIdentity(tokens))
	guarded.POST("/verify", dh.Verify)
	guarded.POST("/approve", dh.Approve)
	guarded.POST("/deny", dh.Deny)

	return &testEnv{router: router, tokens: tokens, device: device}
}

func (e *testEnv) postJSON(t *testing.T, path, bearer string, body any) *httptest.ResponseRecorder {
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) authorize(t *testing.T) models.DeviceAuthResponse {
	w := e.postJSON(t, "/device/authorize", "", gin.H{
		"client_id":   "formpilot-cli",
		"device_name": "laptop",
		"scope":       "read write",
		"device_info": gin.H{"platform": "linux", "hostname": "laptop"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.DeviceAuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (e *testEnv) identityToken(t *testing.T) string {
	token, err := e.tokens.Mint(models.User{
		ID:    uuid.New().String(),
		Email: "approver@example.com",
	}, "", "")
	require.NoError(t, err)
	return token
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestAuthorize_JSON(t *testing.T) {
	env := setupTestEnv(t)
	resp := env.authorize(t)

	assert.NotEmpty(t, resp.DeviceCode)
	assert.Regexp(t, `^[A-Z2-9]{4}-[A-Z2-9]{4}$`, resp.UserCode)
	assert.Equal(t, "http://localhost:8080/device", resp.VerificationURI)
	assert.Contains(t, resp.VerificationURIComplete, "user_code="+resp.UserCode)
	assert.Equal(t, 900, resp.ExpiresIn)
	assert.Equal(t, 5, resp.Interval)
}

func TestAuthorize_Form(t *testing.T) {
	env := setupTestEnv(t)

	w := env.postForm(t, "/device/authorize", url.Values{
		"client_id": {"formpilot-cli"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.DeviceAuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.DeviceCode)
}

func TestAuthorize_MissingClientID(t *testing.T) {
	env := setupTestEnv(t)

	w := env.postJSON(t, "/device/authorize", "", gin.H{"device_name": "laptop"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", errorCode(t, w))
}

func TestVerify(t *testing.T) {
	env := setupTestEnv(t)
	auth := env.authorize(t)
	bearer := env.identityToken(t)

	w := env.postJSON(t, "/device/verify", bearer, gin.H{"user_code": auth.UserCode})
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, auth.UserCode, body["user_code"])
	assert.Equal(t, "formpilot-cli", body["client_id"])
	assert.Equal(t, "laptop", body["device_name"])
	assert.Equal(t, "pending", body["status"])
}

func TestVerify_UnknownCode(t *testing.T) {
	env := setupTestEnv(t)
	bearer := env.identityToken(t)

	w := env.postJSON(t, "/device/verify", bearer, gin.H{"user_code": "ZZZZ-ZZZZ"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", errorCode(t, w))
}

func TestApprove(t *testing.T) {
	env := setupTestEnv(t)
	auth := env.authorize(t)
	bearer := env.identityToken(t)

	w := env.postJSON(t, "/device/approve", bearer, gin.H{"user_code": auth.UserCode})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"approved":true`)
}

func TestApprove_NoIdentity(t *testing.T) {
	env := setupTestEnv(t)
	auth := env.authorize(t)

	w := env.postJSON(t, "/device/approve", "", gin.H{"user_code": auth.UserCode})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_request", errorCode(t, w))
}

func TestApprove_BadIdentity(t *testing.T) {
	env := setupTestEnv(t)
	auth := env.authorize(t)

	w := env.postJSON(t, "/device/approve", "not-a-jwt", gin.H{"user_code": auth.UserCode})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "access_denied", errorCode(t, w))
}

func TestApprove_AlreadyDecided(t *testing.T) {
	env := setupTestEnv(t)
	auth := env.authorize(t)
	bearer := env.identityToken(t)

	w := env.postJSON(t, "/device/deny", bearer, gin.H{"user_code": auth.UserCode})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.postJSON(t, "/device/approve", bearer, gin.H{"user_code": auth.UserCode})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", errorCode(t, w))
}

func TestDeny(t *testing.T) {
	env := setupTestEnv(t)
	auth := env.authorize(t)
	bearer := env.identityToken(t)

	w := env.postJSON(t, "/device/deny", bearer, gin.H{"user_code": auth.UserCode})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"denied":true`)
}
