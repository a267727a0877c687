package handlers

import (
	"errors"
	"net/http"

	"github.com/formpilot/deviceauth/internal/middleware"
	"github.com/formpilot/deviceauth/internal/models"
	"github.com/formpilot/deviceauth/internal/services"
	"github.com/formpilot/deviceauth/internal/util"

	"github.com/gin-gonic/gin"
)

// DeviceHandler exposes the device authorization endpoints: authorize and
// token for the polling device, verify/approve/deny for the approval
// surface.
type DeviceHandler struct {
	deviceService *services.DeviceService
}

func NewDeviceHandler(ds *services.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceService: ds}
}

type authorizeRequest struct {
	ClientID   string            `json:"client_id" form:"client_id"`
	Scope      string            `json:"scope" form:"scope"`
	DeviceName string            `json:"device_name" form:"device_name"`
	DeviceInfo models.DeviceInfo `json:"device_info"`
}

// Authorize handles POST /device/authorize.
// This is called by the CLI to start the device flow.
func (h *DeviceHandler) Authorize(c *gin.Context) {
	var req authorizeRequest
	if c.ContentType() == "application/json" {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": "malformed request body",
			})
			return
		}
	} else {
		req.ClientID = c.PostForm("client_id")
		req.Scope = c.PostForm("scope")
		req.DeviceName = c.PostForm("device_name")
	}

	if req.ClientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "client_id is required",
		})
		return
	}

	resp, err := h.deviceService.Create(c.Request.Context(), services.CreateRequest{
		ClientID:   req.ClientID,
		DeviceName: req.DeviceName,
		DeviceInfo: req.DeviceInfo,
		Scope:      req.Scope,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

type userCodeRequest struct {
	UserCode string `json:"user_code" form:"user_code" binding:"required"`
}

// Verify handles POST /device/verify: it resolves a user code to the device
// metadata shown on the confirmation page.
func (h *DeviceHandler) Verify(c *gin.Context) {
	var req userCodeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "user_code is required",
		})
		return
	}

	auth, err := h.deviceService.VerifyUserCode(c.Request.Context(), req.UserCode)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": "user code not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_code":   util.FormatUserCode(auth.UserCode),
		"client_id":   auth.ClientID,
		"device_name": auth.DeviceName,
		"device_info": auth.DeviceInfo,
		"scope":       auth.Scope,
		"status":      auth.Status,
		"expires_at":  auth.ExpiresAt,
	})
}

// Approve handles POST /device/approve. The verified human identity comes
// from the bearer middleware; a false decision is "not applicable", not a
// server fault.
func (h *DeviceHandler) Approve(c *gin.Context) {
	user, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "access_denied",
		})
		return
	}

	var req userCodeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "user_code is required",
		})
		return
	}

	approved, err := h.deviceService.Approve(c.Request.Context(), req.UserCode, user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": err.Error(),
		})
		return
	}
	if !approved {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "code not found, already decided, or expired",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"approved": true})
}

// Deny handles POST /device/deny under the same contract as Approve.
func (h *DeviceHandler) Deny(c *gin.Context) {
	if _, ok := middleware.IdentityFrom(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "access_denied",
		})
		return
	}

	var req userCodeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "user_code is required",
		})
		return
	}

	denied, err := h.deviceService.Deny(c.Request.Context(), req.UserCode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": err.Error(),
		})
		return
	}
	if !denied {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "code not found, already decided, or expired",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"denied": true})
}
