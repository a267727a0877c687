package handlers

import (
	"errors"
	"net/http"

	"github.com/formpilot/deviceauth/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	// https://datatracker.ietf.org/doc/html/rfc8628#section-3.4
	GrantTypeDeviceCode = "urn:ietf:params:oauth:grant-type:device_code"
	// https://datatracker.ietf.org/doc/html/rfc6749#section-6
	GrantTypeRefreshToken = "refresh_token"
)

// TokenHandler exposes POST /device/token, the endpoint the device polls.
type TokenHandler struct {
	deviceService *services.DeviceService
}

func NewTokenHandler(ds *services.DeviceService) *TokenHandler {
	return &TokenHandler{deviceService: ds}
}

// Token dispatches on grant_type. Only the device-code grant is supported;
// the refresh grant is deliberately rejected so an expired session forces a
// full re-login.
func (h *TokenHandler) Token(c *gin.Context) {
	grantType := c.PostForm("grant_type")

	switch grantType {
	case GrantTypeDeviceCode:
		h.handleDeviceCodeGrant(c)
	case GrantTypeRefreshToken:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported_grant_type",
			"error_description": "refresh tokens are not supported, run login again",
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported_grant_type",
			"error_description": "Supported grant types: device_code",
		})
	}
}

// handleDeviceCodeGrant maps the record status to the RFC 8628 wire
// outcomes: authorization_pending, access_denied, expired_token, or the
// token response.
func (h *TokenHandler) handleDeviceCodeGrant(c *gin.Context) {
	deviceCode := c.PostForm("device_code")
	clientID := c.PostForm("client_id")

	if deviceCode == "" || clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "device_code and client_id are required",
		})
		return
	}

	resp, err := h.deviceService.PollForToken(c.Request.Context(), deviceCode, clientID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAuthorizationPending):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "authorization_pending",
			})
		case errors.Is(err, services.ErrAccessDenied):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "access_denied",
			})
		case errors.Is(err, services.ErrExpiredToken):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "expired_token",
			})
		case errors.Is(err, services.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": "unknown device_code",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":             "server_error",
				"error_description": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}
