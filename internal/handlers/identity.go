package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lan-chat/internal/identity"
	"lan-chat/internal/logging"
	"lan-chat/internal/middleware"
	"lan-chat/internal/models"
	"lan-chat/internal/observability"
	"lan-chat/internal/repositories"
)

// TokenIssuer issues and verifies identity tokens.
type TokenIssuer interface {
	Issue(userID string) (string, error)
	Parse(token string) (string, error)
}

// IdentityHandler serves the identity and profile HTTP endpoints.
type IdentityHandler struct {
	users  repositories.UserRepository
	tokens TokenIssuer
	hub    Broadcaster
}

// NewIdentityHandler builds an IdentityHandler.
func NewIdentityHandler(users repositories.UserRepository, tokens TokenIssuer, hub Broadcaster) *IdentityHandler {
	return &IdentityHandler{users: users, tokens: tokens, hub: hub}
}

// Issue hands out a durable identity on first contact and refreshes it afterwards.
// A still-valid token in the body keeps the same user id.
func (h *IdentityHandler) Issue(c *gin.Context) {
	var req struct {
		Hostname string `json:"hostname" binding:"max=255"`
		Token    string `json:"token"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	userID := ""
	if req.Token != "" {
		if id, err := h.tokens.Parse(req.Token); err == nil {
			userID = id
		}
	}
	if userID == "" {
		userID = identity.NewUserID()
	}

	address := observability.IPFromRequest(c.Request)
	hostname := strings.TrimSpace(req.Hostname)
	if hostname == "" {
		hostname = address
	}

	user, err := h.users.Ensure(c.Request.Context(), userID, hostname, address)
	if err != nil {
		logging.Component("identity").Error().Err(err).Str("request_id", observability.RequestID(c)).Msg("ensure user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register identity"})
		return
	}
	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// Me returns the caller's profile.
func (h *IdentityHandler) Me(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), middleware.UserID(c))
	if errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateMe edits the caller's profile and tells every connected client.
func (h *IdentityHandler) UpdateMe(c *gin.Context) {
	var req struct {
		DisplayName *string `json:"displayName" binding:"omitempty,min=1,max=64"`
		Avatar      *string `json:"avatar" binding:"omitempty,max=512"`
		Bio         *string `json:"bio" binding:"omitempty,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DisplayName != nil {
		trimmed := strings.TrimSpace(*req.DisplayName)
		if trimmed == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "displayName cannot be blank"})
			return
		}
		req.DisplayName = &trimmed
	}

	userID := middleware.UserID(c)
	user, err := h.users.UpdateProfile(c.Request.Context(), userID, models.ProfileUpdate{
		DisplayName: req.DisplayName,
		Avatar:      req.Avatar,
		Bio:         req.Bio,
	})
	if errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		return
	}
	h.hub.BroadcastAll("user:updated", gin.H{"user": user}, "")
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
