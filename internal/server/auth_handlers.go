package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openshelf/librarium/internal/auth"
	"github.com/openshelf/librarium/internal/users"
)

type registerRequestPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponsePayload struct {
	ID           string         `json:"id"`
	Username     string         `json:"username"`
	Email        string         `json:"email"`
	Role         users.Role     `json:"role"`
	AuthProvider users.Provider `json:"authProvider"`
	Profile      *users.Profile `json:"profile,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastLogin    time.Time      `json:"lastLogin,omitempty"`
}

func userResponse(user *users.User) userResponsePayload {
	payload := userResponsePayload{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		Role:         user.Role,
		AuthProvider: user.AuthProvider,
		CreatedAt:    user.CreatedAt,
		LastLogin:    user.LastLogin,
	}
	if user.Profile != (users.Profile{}) {
		profile := user.Profile
		payload.Profile = &profile
	}
	return payload
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	userID, err := h.authService.Register(c.Request.Context(), request.Username, request.Email, request.Password)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "user registered successfully",
		"userId":  userID,
	})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, token, err := h.authService.Login(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	h.writeSessionCookie(c, token)
	c.JSON(http.StatusOK, gin.H{
		"message": "login successful",
		"user":    userResponse(user),
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	token, err := c.Cookie(h.cookie.Name)
	if err == nil && token != "" {
		if err := h.sessions.Destroy(c.Request.Context(), token); err != nil {
			h.logger.Error("session destroy failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not log out"})
			return
		}
	}
	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "logout successful"})
}

func (h *httpHandler) handleProfile(c *gin.Context) {
	resolved := sessionFromContext(c)

	user, err := h.users.FindByID(c.Request.Context(), resolved.Snapshot.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("profile lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, userResponse(user))
}

func (h *httpHandler) handleGitHubRedirect(c *gin.Context) {
	state, err := h.state.Issue()
	if err != nil {
		h.logger.Error("state token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.Redirect(http.StatusFound, h.github.AuthCodeURL(state))
}

func (h *httpHandler) handleGitHubCallback(c *gin.Context) {
	if providerError := c.Query("error"); providerError != "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization denied by provider"})
		return
	}
	if err := h.state.Verify(c.Query("state")); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid oauth state"})
		return
	}

	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		return
	}

	identity, err := h.github.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Warn("github code exchange failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization grant rejected"})
		return
	}

	resolution, err := h.resolver.Resolve(c.Request.Context(), identity)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	h.writeSessionCookie(c, resolution.Token)
	c.JSON(http.StatusOK, gin.H{
		"message": "login successful",
		"outcome": resolution.Outcome,
		"user":    userResponse(resolution.User),
	})
}

func (h *httpHandler) writeSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(h.cookie.SameSite)
	c.SetCookie(h.cookie.Name, token, int(h.cookie.TTL.Seconds()), "/", "", h.cookie.Secure, true)
}

func (h *httpHandler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(h.cookie.SameSite)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}

// writeDomainError maps typed auth failures onto wire status codes. Store
// failures collapse into an opaque 500.
func (h *httpHandler) writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, auth.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
	case errors.Is(err, auth.ErrIdentityConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "account is linked to a different identity"})
	default:
		h.logger.Error("auth flow failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
