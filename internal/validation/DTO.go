package validation

import "time"

// isoMillis matches JavaScript's Date.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z"

func timestamp(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

const (
	MsgProcessed     = "request processed successfully"
	MsgInvalidJSON   = "invalid JSON body"
	MsgBodyTooLarge  = "request body too large"
	MsgInternalError = "internal server error"
)

type SuccessResponse struct {
	Message   string `json:"message" example:"request processed successfully"`
	Timestamp string `json:"timestamp" example:"2026-10-16T09:00:00.000Z"`
}

type ErrorResponse struct {
	StatusCode int    `json:"statusCode" example:"400"`
	Message    string `json:"message" example:"client header is required"`
	Error      string `json:"error,omitempty" example:"Bad Request"`
	Timestamp  string `json:"timestamp,omitempty" example:"2026-10-16T09:00:00.000Z"`
}

type HealthResponse struct {
	Status    string `json:"status" example:"ok"`
	Timestamp string `json:"timestamp" example:"2026-10-16T09:00:00.000Z"`
}
