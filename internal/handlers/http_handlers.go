package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"eventwall/internal/models"
	"eventwall/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/pkg/errors"
)

const defaultRecordLimit = 50

// StreamOptions tunes the server-sent event streams.
type StreamOptions struct {
	Buffer    int
	Heartbeat time.Duration
}

// HTTPHandler holds the dependencies for the HTTP handlers, like the engine.
type HTTPHandler struct {
	engine *services.Engine
	stream StreamOptions
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(engine *services.Engine, stream StreamOptions) *HTTPHandler {
	if stream.Buffer < 1 {
		stream.Buffer = 64
	}
	if stream.Heartbeat <= 0 {
		stream.Heartbeat = 15 * time.Second
	}
	return &HTTPHandler{engine: engine, stream: stream}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)

	api := router.Group("/api")
	for _, kind := range models.Kinds {
		admin := h.engine.Admin(kind)
		g := api.Group("/" + string(kind))
		g.GET("", h.List(admin))
		g.GET("/code/:code", h.GetByCode(admin))
		g.GET("/:id", h.Get(admin))
		g.DELETE("/:id", h.Delete(admin))
		g.GET("/:id/records", h.Records(admin))
		g.GET("/:id/stream", h.Stream(admin))
	}

	checkin := api.Group("/checkin")
	checkin.POST("", h.CreateCheckin)
	checkin.PATCH("/:id", h.UpdateCheckin)
	checkin.POST("/:id/submit", h.SubmitCheckin)
	checkin.GET("/:id/stats", h.CheckinStats)

	vote := api.Group("/vote")
	vote.POST("", h.CreateVote)
	vote.PATCH("/:id", h.UpdateVote)
	vote.POST("/:id/submit", h.SubmitVote)
	vote.GET("/:id/results", h.VoteResults)

	lottery := api.Group("/lottery")
	lottery.POST("", h.CreateLottery)
	lottery.PATCH("/:id", h.UpdateLottery)
	lottery.POST("/:id/draw", h.Draw)
	lottery.POST("/:id/reset", h.ResetLottery)
	lottery.GET("/:id/prizes", h.Prizes)
	lottery.GET("/:id/remaining", h.RemainingDraws)

	form := api.Group("/form")
	form.POST("", h.CreateForm)
	form.PATCH("/:id", h.UpdateForm)
	form.POST("/:id/submit", h.SubmitForm)
}

// RequestLogger logs one line per request through the process logger.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infof("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Health reports liveness together with the number of watched activities.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"watched": h.engine.Bus.Topics(),
	})
}

// statusOf maps engine errors to HTTP status codes.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrRecordNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, models.ErrDuplicateSubmission):
		return http.StatusConflict, "duplicate_submission"
	case errors.Is(err, models.ErrVerifyCodeRequired):
		return http.StatusForbidden, "verify_code_required"
	case errors.Is(err, models.ErrInvalidVerifyCode):
		return http.StatusForbidden, "invalid_verify_code"
	case errors.Is(err, models.ErrDrawLimitExceeded):
		return http.StatusTooManyRequests, "draw_limit_exceeded"
	case errors.Is(err, models.ErrInvalidOption):
		return http.StatusUnprocessableEntity, "invalid_option"
	case errors.Is(err, models.ErrCardinality):
		return http.StatusUnprocessableEntity, "cardinality"
	case errors.Is(err, models.ErrValidation):
		return http.StatusUnprocessableEntity, "validation"
	}
	return http.StatusInternalServerError, "internal"
}

func fail(c *gin.Context, err error) {
	status, code := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %+v", c.Request.Method, c.Request.URL.Path, err)
	}
	body := gin.H{"error": err.Error(), "code": code}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		body["field"] = verr.Field
	}
	c.AbortWithStatusJSON(status, body)
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
		return false
	}
	return true
}

// bindOptional is bind for requests whose fields are all optional; an empty
// body leaves req at its zero value.
func bindOptional(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
		return false
	}
	return true
}

func limitOf(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return defaultRecordLimit
	}
	return limit
}

func respond(c *gin.Context, status int, v any, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(status, v)
}

// List returns every activity of the kind, newest first.
func (h *HTTPHandler) List(admin services.Admin) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, admin.Snapshots())
	}
}

func (h *HTTPHandler) Get(admin services.Admin) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := admin.Snapshot(c.Param("id"))
		respond(c, http.StatusOK, v, err)
	}
}

// GetByCode resolves the short code participants type in.
func (h *HTTPHandler) GetByCode(admin services.Admin) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := admin.SnapshotByCode(c.Param("code"))
		respond(c, http.StatusOK, v, err)
	}
}

func (h *HTTPHandler) Delete(admin services.Admin) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !admin.Delete(c.Param("id")) {
			fail(c, models.ErrNotFound)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Records returns the latest participant records, newest first. Verify codes
// are never included.
func (h *HTTPHandler) Records(admin services.Admin) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := admin.Recent(c.Param("id"), limitOf(c))
		respond(c, http.StatusOK, v, err)
	}
}
