// Package validation exposes the duplicate gate over HTTP.
package validation

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"

	"api-rate-validator/internal/fingerprint"
	"api-rate-validator/internal/gate"
)

type Handler struct {
	gate      *gate.Gate
	bodyLimit int64
	now       func() time.Time
	log       logr.Logger
}

func NewHandler(g *gate.Gate, bodyLimit int64, log logr.Logger) *Handler {
	return &Handler{
		gate:      g,
		bodyLimit: bodyLimit,
		now:       time.Now,
		log:       log.WithName("validation"),
	}
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/validate", h.Validate)
	r.POST("/health", h.Health)
	r.GET("/health", h.Health)
}

// Validate admits a request unless an identical one (same client, same
// payload) was admitted within the cache TTL.
//
// @Summary      Validate a request for duplicates
// @Description  Admits the body once per client within the TTL window. Top-level JSON key order is ignored.
// @Tags         validation
// @Accept       json
// @Accept       plain
// @Produce      json
// @Param        client header string true "client identifier"
// @Param        body body object false "arbitrary JSON payload"
// @Success      200 {object} SuccessResponse
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      413 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /validate [post]
func (h *Handler) Validate(c *gin.Context) {
	// without a client the body is never read; the gate reports the header
	payload := fingerprint.Absent()
	if _, ok := gate.ClientID(c.Request.Header); ok {
		p, status, msg := h.readPayload(c)
		if status != 0 {
			c.JSON(status, ErrorResponse{
				StatusCode: status,
				Message:    msg,
				Error:      http.StatusText(status),
			})
			return
		}
		payload = p
	}

	if err := h.gate.Validate(c.Request.Context(), payload, c.Request.Header); err != nil {
		h.writeGateError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message:   MsgProcessed,
		Timestamp: timestamp(h.now()),
	})
}

// Health always reports ok.
//
// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200 {object} HealthResponse
// @Router       /health [post]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: timestamp(h.now()),
	})
}

// readPayload decodes the body by content type: JSON (or no content type)
// is parsed, anything else is taken as text. A non-zero status means the
// body was rejected.
func (h *Handler) readPayload(c *gin.Context) (fingerprint.Payload, int, string) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.bodyLimit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fingerprint.Payload{}, http.StatusRequestEntityTooLarge, MsgBodyTooLarge
		}
		h.log.Error(err, "read body")
		return fingerprint.Payload{}, http.StatusBadRequest, "failed to read request body"
	}

	if !isJSON(c.GetHeader("Content-Type")) {
		if len(body) == 0 {
			return fingerprint.Absent(), 0, ""
		}
		return fingerprint.Text(string(body)), 0, ""
	}

	payload, err := fingerprint.Parse(body)
	if err != nil {
		return fingerprint.Payload{}, http.StatusBadRequest, MsgInvalidJSON
	}
	return payload, 0, ""
}

func isJSON(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func (h *Handler) writeGateError(c *gin.Context, err error) {
	var gerr *gate.Error
	if !errors.As(err, &gerr) {
		h.log.Error(err, "validate")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			StatusCode: http.StatusInternalServerError,
			Message:    MsgInternalError,
		})
		return
	}

	status := gerr.Kind.StatusCode()
	switch gerr.Kind {
	case gate.InvalidRequest:
		c.JSON(status, ErrorResponse{
			StatusCode: status,
			Message:    gerr.Message,
			Error:      http.StatusText(status),
		})
	case gate.DuplicateRequest:
		c.JSON(status, ErrorResponse{
			StatusCode: status,
			Message:    gerr.Message,
			Error:      gate.ErrorTagDuplicate,
			Timestamp:  timestamp(gerr.Timestamp),
		})
	default:
		// cache errors stay in the logs
		c.JSON(status, ErrorResponse{
			StatusCode: status,
			Message:    MsgInternalError,
		})
	}
}
