package auth

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/homemic/sleep-server/pkg/response"
)

// TokenRequest is the body for POST /auth/token.
type TokenRequest struct {
	DeviceKey string `json:"device_key" binding:"required"`
	Client    string `json:"client,omitempty"`
}

// Handler exchanges the configured device key for a dashboard JWT. There are
// no user accounts: a deployment serves one household, with one shared key
// per installation.
type Handler struct {
	jwt       *JWTService
	deviceKey string
	logger    *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(jwt *JWTService, deviceKey string, logger *zap.Logger) *Handler {
	return &Handler{jwt: jwt, deviceKey: deviceKey, logger: logger}
}

// Token handles POST /auth/token.
func (h *Handler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "device_key required")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.DeviceKey), []byte(h.deviceKey)) != 1 {
		response.Unauthorized(c, "invalid device key")
		return
	}
	client := req.Client
	if client == "" {
		client = "dashboard"
	}
	token, err := h.jwt.Generate(client)
	if err != nil {
		h.logger.Error("generate token", zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, gin.H{"token": token})
}
