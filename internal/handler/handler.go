package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"streamwatch/internal/auth"
	"streamwatch/internal/models"
	"streamwatch/internal/repository"
	"streamwatch/internal/service"
	"streamwatch/internal/timeutil"
)

const userIDKey = "userID"

// Handler handles all HTTP requests
type Handler struct {
	users      *repository.UserRepository
	subs       *repository.PushSubscriptionRepository
	scan       *service.ScanService
	tokens     *auth.TokenManager
	scanSecret string
}

// NewHandler creates a new Handler
func NewHandler(
	users *repository.UserRepository,
	subs *repository.PushSubscriptionRepository,
	scan *service.ScanService,
	tokens *auth.TokenManager,
	scanSecret string,
) *Handler {
	return &Handler{
		users:      users,
		subs:       subs,
		scan:       scan,
		tokens:     tokens,
		scanSecret: strings.TrimSpace(scanSecret),
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// Health check must allow unauthenticated ping for probes
	r.GET("/api/health", h.Health)

	// Scheduled scan trigger, guarded by the shared scan secret
	r.GET("/api/cron/check-new-episodes", h.RunScan)

	api := r.Group("/api")

	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	// Subscribing works anonymously; the row is claimed once a session is present.
	notifications := api.Group("/notifications", h.sessionMiddleware)
	notifications.POST("/subscribe", h.Subscribe)
	notifications.POST("/unsubscribe", h.Unsubscribe)
	notifications.GET("/preferences", h.requireSession, h.GetPreferences)
	notifications.POST("/preferences", h.requireSession, h.UpdatePreferences)
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RunScan triggers one scan pass. The caller must present the pre-shared
// scan secret; this endpoint is meant for a trusted scheduler, not end users.
// GET /api/cron/check-new-episodes
func (h *Handler) RunScan(c *gin.Context) {
	if !h.authorizeScan(c.GetHeader("Authorization")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	result, err := h.scan.Run()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"usersChecked":      result.UsersChecked,
		"newEpisodes":       result.NewEpisodes,
		"notificationsSent": result.NotificationsSent,
		"timestamp":         timeutil.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) authorizeScan(authHeader string) bool {
	if h.scanSecret == "" {
		return false
	}
	parts := strings.SplitN(strings.TrimSpace(authHeader), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(parts[1]), []byte(h.scanSecret)) == 1
}

// subscribeRequest mirrors the browser PushSubscription JSON shape
type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Subscribe stores or refreshes a device's push subscription, keyed by
// endpoint. An authenticated session claims the subscription for that user.
// POST /api/notifications/subscribe
func (h *Handler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription data"})
		return
	}
	if req.Keys.P256dh == "" || req.Keys.Auth == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing subscription keys"})
		return
	}

	sub := &models.PushSubscription{
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
		UserID:   c.GetString(userIDKey),
	}
	if err := h.subs.Upsert(sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Subscription saved",
		"subscription": sub,
	})
}

// Unsubscribe removes a subscription by endpoint. A missing endpoint is
// still success so retried unsubscribes stay idempotent.
// POST /api/notifications/unsubscribe
func (h *Handler) Unsubscribe(c *gin.Context) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription data"})
		return
	}

	found, err := h.subs.DeleteByEndpoint(req.Endpoint)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	message := "Subscription removed"
	if !found {
		message = "Subscription not found"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

// GetPreferences returns the notification flags of the user's most recent
// subscription, or defaults when none exists.
// GET /api/notifications/preferences
func (h *Handler) GetPreferences(c *gin.Context) {
	sub, err := h.subs.GetLatestByUser(c.GetString(userIDKey))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	prefs := models.DefaultPreferences()
	if sub != nil {
		prefs = models.NotificationPreferences{
			Enabled:          sub.Enabled,
			NewEpisodes:      sub.NewEpisodes,
			WatchlistUpdates: sub.WatchlistUpdates,
			Recommendations:  sub.Recommendations,
		}
	}

	c.JSON(http.StatusOK, prefs)
}

// preferencesRequest carries optional flags; omitted flags default to true,
// matching the subscription row defaults.
type preferencesRequest struct {
	Enabled          *bool `json:"enabled"`
	NewEpisodes      *bool `json:"newEpisodes"`
	WatchlistUpdates *bool `json:"watchlistUpdates"`
	Recommendations  *bool `json:"recommendations"`
}

// UpdatePreferences applies the supplied flags to all of the user's
// subscriptions.
// POST /api/notifications/preferences
func (h *Handler) UpdatePreferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid preferences data"})
		return
	}

	prefs := models.NotificationPreferences{
		Enabled:          boolOrTrue(req.Enabled),
		NewEpisodes:      boolOrTrue(req.NewEpisodes),
		WatchlistUpdates: boolOrTrue(req.WatchlistUpdates),
		Recommendations:  boolOrTrue(req.Recommendations),
	}

	if err := h.subs.UpdatePreferencesByUser(c.GetString(userIDKey), prefs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Preferences updated"})
}

// sessionMiddleware resolves an optional bearer session token into a user
// ID. An absent or invalid token is not an error here; handlers that need a
// user also install requireSession.
func (h *Handler) sessionMiddleware(c *gin.Context) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		if userID, err := h.tokens.Verify(parts[1]); err == nil {
			c.Set(userIDKey, userID)
		}
	}
	c.Next()
}

// requireSession rejects requests that did not resolve to a user
func (h *Handler) requireSession(c *gin.Context) {
	if c.GetString(userIDKey) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		c.Abort()
		return
	}
	c.Next()
}

func boolOrTrue(b *bool) bool {
	if b == nil {
		return true
	}
	return *b
}
