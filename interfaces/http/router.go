package httpiface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"journal-relay/application/journal"
	"journal-relay/application/mood"
	"journal-relay/application/relay"
	domain "journal-relay/domain/chat"
	"journal-relay/domain/persistence"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// UserIDHeader is set by the authentication gateway in front of the service
const UserIDHeader = "X-User-ID"

const (
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
	corsAllowMethods = "GET, POST, OPTIONS"
	streamBufferSize = 4096
)

type RelayService interface {
	Open(ctx context.Context, req *domain.RelayRequest) *relay.Result
}

type JournalService interface {
	CreateEntry(ctx context.Context, userID uuid.UUID) (*persistence.JournalEntry, error)
	ListEntries(ctx context.Context, userID uuid.UUID, since *time.Time) ([]*persistence.JournalEntry, error)
	ListMessages(ctx context.Context, userID, entryID uuid.UUID) ([]*persistence.ConversationMessage, error)
	AddMessages(ctx context.Context, userID, entryID uuid.UUID, msgs []journal.NewMessage) ([]*persistence.ConversationMessage, error)
	Mood(ctx context.Context, userID, entryID uuid.UUID) (mood.Result, error)
	Export(ctx context.Context, userID uuid.UUID, format string, now time.Time) (*journal.ExportFile, error)
	SaveSummary(ctx context.Context, userID uuid.UUID, weekStart time.Time, content string) (*persistence.WeeklySummary, error)
	ListSummaries(ctx context.Context, userID uuid.UUID) ([]*persistence.WeeklySummary, error)
}

// HealthChecker reports database connectivity
type HealthChecker interface {
	Health(ctx context.Context) error
}

// CircuitReporter exposes the per-model circuit breaker states of the gateway
type CircuitReporter interface {
	GetCircuitStates() map[string]gobreaker.State
}

type Router struct {
	relay       RelayService
	corsOrigins []string
	journal     JournalService
	db          HealthChecker
	processor   persistence.EventProcessor
	circuits    CircuitReporter
}

func NewRouter(relayService RelayService, corsOrigins []string) *Router {
	return &Router{
		relay:       relayService,
		corsOrigins: corsOrigins,
	}
}

// NewRouterWithJournal creates a router that also serves the journal API
func NewRouterWithJournal(
	relayService RelayService,
	corsOrigins []string,
	journalService JournalService,
	db HealthChecker,
	processor persistence.EventProcessor,
) *Router {
	return &Router{
		relay:       relayService,
		corsOrigins: corsOrigins,
		journal:     journalService,
		db:          db,
		processor:   processor,
	}
}

// SetCircuitReporter adds the gateway circuit states to the health report
func (r *Router) SetCircuitReporter(circuits CircuitReporter) {
	r.circuits = circuits
}

func (r *Router) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(r.corsMiddleware())

	router.GET("/live", r.liveness)
	router.GET("/ready", r.readiness)
	router.GET("/health", r.healthCheck)

	router.POST("/chat", r.relayChat)
	router.POST("/functions/v1/chat", r.relayChat)

	if r.journal != nil {
		api := router.Group("/")
		api.Use(r.userIDMiddleware())
		api.POST("/entries", r.createEntry)
		api.GET("/entries", r.listEntries)
		api.GET("/entries/:id/messages", r.listMessages)
		api.POST("/entries/:id/messages", r.addMessages)
		api.GET("/entries/:id/mood", r.entryMood)
		api.GET("/export", r.exportJournal)
		api.POST("/summaries", r.saveSummary)
		api.GET("/summaries", r.listSummaries)
	}

	return router
}

// corsMiddleware also answers preflight requests for any path
func (r *Router) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqOrigin := c.GetHeader("Origin")
		if reqOrigin == "" {
			c.Header("Access-Control-Allow-Origin", strings.Join(r.corsOrigins, ", "))
		} else {
			allowOrigin := ""
			if len(r.corsOrigins) == 1 && r.corsOrigins[0] == "*" {
				allowOrigin = "*"
			} else {
				for _, allowed := range r.corsOrigins {
					if allowed == reqOrigin {
						allowOrigin = reqOrigin
						break
					}
				}
			}
			if allowOrigin != "" {
				c.Header("Access-Control-Allow-Origin", allowOrigin)
			}
		}
		c.Header("Access-Control-Allow-Methods", corsAllowMethods)
		c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (r *Router) userIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(UserIDHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, domain.ErrorResponse{Error: "Missing required header: " + UserIDHeader})
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil || userID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, domain.ErrorResponse{Error: "Invalid user ID"})
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

func userIDFrom(c *gin.Context) uuid.UUID {
	return c.MustGet("user_id").(uuid.UUID)
}

func (r *Router) healthCheck(c *gin.Context) {
	checks := gin.H{
		"api": "ok",
	}

	overallOK := true

	if r.db != nil {
		if err := r.db.Health(c.Request.Context()); err != nil {
			checks["db"] = gin.H{"ok": false, "error": err.Error()}
			overallOK = false
		} else {
			checks["db"] = gin.H{"ok": true}
		}
	}

	if r.processor != nil {
		ph := r.processor.Health()
		checks["processor"] = ph
		if !ph.IsRunning {
			overallOK = false
		}
	}

	// An open circuit only affects one model, the service itself stays healthy
	if r.circuits != nil {
		states := make(map[string]string)
		for model, state := range r.circuits.GetCircuitStates() {
			states[model] = state.String()
		}
		checks["circuit_breakers"] = states
	}

	status := "healthy"
	code := http.StatusOK
	if !overallOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "journal-relay",
		"version":   "1.0.0",
		"checks":    checks,
	})
}

// liveness probe: process is up and serving HTTP
func (r *Router) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// readiness probe: dependencies healthy and ready to serve traffic
func (r *Router) readiness(c *gin.Context) {
	checks := gin.H{}
	ready := true

	if r.db != nil {
		if err := r.db.Health(c.Request.Context()); err != nil {
			checks["db"] = gin.H{"ok": false, "error": err.Error()}
			ready = false
		} else {
			checks["db"] = gin.H{"ok": true}
		}
	}

	if r.processor != nil {
		ph := r.processor.Health()
		checks["processor"] = ph
		if !ph.IsRunning {
			ready = false
		}
	}

	if ready {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"status":    "not_ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// relayChat passes the gateway's event stream through unchanged
func (r *Router) relayChat(c *gin.Context) {
	var req domain.RelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Error("Chat relay error")
		c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: relay.ErrorMessage(err)})
		return
	}

	result := r.relay.Open(c.Request.Context(), &req)
	if result.Body == nil {
		c.JSON(result.Status, domain.ErrorResponse{Error: result.Error})
		return
	}
	defer result.Body.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(result.Status)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	buf := make([]byte, streamBufferSize)
	for {
		n, err := result.Body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				logrus.WithError(werr).Debug("Client went away during relay stream")
				return
			}
			c.Writer.Flush()
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			logrus.WithError(err).Warn("Relay stream interrupted")
			return
		}
	}
}

// journalError maps service errors to status codes
func (r *Router) journalError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, journal.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: err.Error()})
	case errors.Is(err, persistence.ErrNotFound):
		c.JSON(http.StatusNotFound, domain.ErrorResponse{Error: "Entry not found"})
	default:
		logrus.WithError(err).Errorf("Failed to %s", action)
		c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "Failed to " + action})
	}
}

func entryIDParam(c *gin.Context) (uuid.UUID, bool) {
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid entry ID format"})
		return uuid.Nil, false
	}
	return entryID, true
}

func (r *Router) createEntry(c *gin.Context) {
	entry, err := r.journal.CreateEntry(c.Request.Context(), userIDFrom(c))
	if err != nil {
		r.journalError(c, err, "create entry")
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (r *Router) listEntries(c *gin.Context) {
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid since parameter, expected RFC3339"})
			return
		}
		since = &parsed
	}

	entries, err := r.journal.ListEntries(c.Request.Context(), userIDFrom(c), since)
	if err != nil {
		r.journalError(c, err, "list entries")
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (r *Router) listMessages(c *gin.Context) {
	entryID, ok := entryIDParam(c)
	if !ok {
		return
	}

	msgs, err := r.journal.ListMessages(c.Request.Context(), userIDFrom(c), entryID)
	if err != nil {
		r.journalError(c, err, "list messages")
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// AddMessagesRequest is the body of POST /entries/:id/messages
type AddMessagesRequest struct {
	Messages []journal.NewMessage `json:"messages"`
}

func (r *Router) addMessages(c *gin.Context) {
	entryID, ok := entryIDParam(c)
	if !ok {
		return
	}

	var req AddMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid request format"})
		return
	}

	rows, err := r.journal.AddMessages(c.Request.Context(), userIDFrom(c), entryID, req.Messages)
	if err != nil {
		r.journalError(c, err, "store messages")
		return
	}
	c.JSON(http.StatusCreated, rows)
}

func (r *Router) entryMood(c *gin.Context) {
	entryID, ok := entryIDParam(c)
	if !ok {
		return
	}

	result, err := r.journal.Mood(c.Request.Context(), userIDFrom(c), entryID)
	if err != nil {
		r.journalError(c, err, "analyze mood")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *Router) exportJournal(c *gin.Context) {
	format := c.DefaultQuery("format", journal.FormatJSON)

	file, err := r.journal.Export(c.Request.Context(), userIDFrom(c), format, time.Now())
	if err != nil {
		r.journalError(c, err, "export journal")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// SummaryRequest is the body of POST /summaries
type SummaryRequest struct {
	WeekStart time.Time `json:"week_start"`
	Content   string    `json:"content"`
}

func (r *Router) saveSummary(c *gin.Context) {
	var req SummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid request format"})
		return
	}

	summary, err := r.journal.SaveSummary(c.Request.Context(), userIDFrom(c), req.WeekStart, req.Content)
	if err != nil {
		r.journalError(c, err, "save summary")
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func (r *Router) listSummaries(c *gin.Context) {
	summaries, err := r.journal.ListSummaries(c.Request.Context(), userIDFrom(c))
	if err != nil {
		r.journalError(c, err, "list summaries")
		return
	}
	c.JSON(http.StatusOK, summaries)
}
