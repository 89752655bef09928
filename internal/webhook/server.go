package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Server exposes the processor over HTTP.
type Server struct {
	processor *Processor
	logger    *slog.Logger
}

// NewServer wires the processor into a gin router.
func NewServer(processor *Processor, logger *slog.Logger) *Server {
	return &Server{processor: processor, logger: logger}
}

// Router builds the HTTP routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)
	r.POST("/webhooks/:source", s.handleWebhook)
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.processor.Metrics())
}

func (s *Server) handleWebhook(c *gin.Context) {
	source := c.Param("source")
	if !s.processor.KnownSource(source) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "unknown_source",
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.processor.MaxBodyBytes()))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"success": false,
			"error":   "body_too_large",
		})
		return
	}

	signature := c.GetHeader(s.processor.cfg.SignatureHeader)
	timestamp := c.GetHeader(s.processor.cfg.TimestampHeader)

	result, err := s.processor.Process(c.Request.Context(), source, body, signature, timestamp)
	if err != nil {
		status, code := classifyError(err)
		s.logger.Warn("webhook rejected",
			"source", source,
			"status", status,
			"error", err,
		)
		c.JSON(status, gin.H{
			"success": false,
			"error":   code,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"eventId":  result.EventID,
		"handlers": result.Handlers,
		"message":  "event processed",
	})
}

// classifyError maps validation failures to HTTP status and a
// machine-readable error code. Handler failures are the server's
// problem, not the sender's, so they map to 500.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnknownSource):
		return http.StatusNotFound, "unknown_source"
	case errors.Is(err, ErrMissingSignature):
		return http.StatusUnauthorized, "missing_signature"
	case errors.Is(err, ErrBadSignature):
		return http.StatusUnauthorized, "invalid_signature"
	case errors.Is(err, ErrMissingTimestamp):
		return http.StatusBadRequest, "missing_timestamp"
	case errors.Is(err, ErrStaleTimestamp):
		return http.StatusBadRequest, "stale_timestamp"
	case errors.Is(err, ErrMalformedPayload):
		return http.StatusBadRequest, "malformed_payload"
	default:
		return http.StatusInternalServerError, "handler_failure"
	}
}
