// Package httpapi serves the operational HTTP endpoints: health, Prometheus
// metrics and the read-only reminder preview.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/logging"
	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/dmitrijs2005/lfras/internal/server/services"
	"github.com/dmitrijs2005/lfras/internal/timex"
)

const contextKeyActor = "actor"

type previewer interface {
	RunDate(t time.Time) time.Time
	Preview(ctx context.Context, actor models.Actor, runDate time.Time, job string) ([]services.PlannedReminder, error)
}

type authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Actor, error)
}

// HealthFunc reports whether a dependency is reachable.
type HealthFunc func(ctx context.Context) error

type Handler struct {
	reminders previewer
	auth      authenticator
	health    HealthFunc
	logger    logging.Logger
	now       func() time.Time
}

func NewHandler(r previewer, a authenticator, health HealthFunc, l logging.Logger) *Handler {
	return &Handler{reminders: r, auth: a, health: health, logger: l.With("module", "httpapi"), now: time.Now}
}

// Router builds the gin engine. gatherer is exposed on /metrics.
func (h *Handler) Router(gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(requestID(), h.accessLog(), gin.Recovery())

	r.GET("/healthz", h.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1")
	v1.Use(h.bearerAuth())
	{
		v1.GET("/reminders/preview", h.previewReminders)
	}
	return r
}

func (h *Handler) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if h.health != nil {
		if err := h.health(ctx); err != nil {
			h.logger.Warn(ctx, "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) previewReminders(c *gin.Context) {
	actor := c.MustGet(contextKeyActor).(models.Actor)
	if actor.SupplierID != nil {
		abortError(c, http.StatusForbidden, "FORBIDDEN", "reminder preview is limited to evaluator users")
		return
	}

	runDate := h.reminders.RunDate(h.now())
	if d := c.Query("date"); d != "" {
		parsed, err := timex.ParseDate(d)
		if err != nil {
			abortError(c, http.StatusBadRequest, "INVALID_DATE", err.Error())
			return
		}
		runDate = parsed
	}

	planned, err := h.reminders.Preview(c.Request.Context(), actor, runDate, c.Query("job"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownJob):
			abortError(c, http.StatusBadRequest, "INVALID_JOB", err.Error())
			return
		case errors.Is(err, common.ErrorForbidden):
			abortError(c, http.StatusForbidden, "FORBIDDEN", "reminder preview is limited to evaluator users")
			return
		}
		h.logger.Error(c.Request.Context(), "preview failed", "error", err)
		abortError(c, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_date":  runDate.Format(time.DateOnly),
		"reminders": planned,
	})
}

func (h *Handler) bearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || scheme != "Bearer" || token == "" {
			abortError(c, http.StatusUnauthorized, "MISSING_AUTHORIZATION", "Authorization header must be a Bearer token")
			return
		}

		actor, err := h.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, common.ErrorUnauthorized) || errors.Is(err, common.ErrInvalidToken) {
				abortError(c, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
				return
			}
			h.logger.Error(c.Request.Context(), "authentication failed", "error", err)
			abortError(c, http.StatusInternalServerError, "INTERNAL", "internal error")
			return
		}

		c.Set(contextKeyActor, actor)
		c.Next()
	}
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		)
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Request = c.Request.WithContext(logging.ContextWith(c.Request.Context(), "request_id", id))
		c.Next()
	}
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}
