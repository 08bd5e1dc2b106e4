// Package httpx carries command chains over HTTP: a gin handler on the
// receiving side and a Transport on the client side.
package httpx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/danmuck/remotectl/internal/observability"
	"github.com/danmuck/remotectl/internal/protocol/frame"
	"github.com/danmuck/remotectl/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	ChainMediaType  = "application/x-remotectl-command-chain"
	ResultMediaType = "application/x-remotectl-result"
)

// Executor is the receiving side, usually a *server.Receiver.
type Executor interface {
	Execute(ctx context.Context, in io.Reader, out io.Writer) error
}

type Handler struct {
	exec    Executor
	limits  frame.Limits
	limiter *MapLimiter
	now     func() time.Time
}

// NewHandler serves exec. A nil limiter disables rate limiting.
func NewHandler(exec Executor, limits frame.Limits, limiter *MapLimiter) *Handler {
	if limits.MaxPayloadBytes == 0 {
		limits = frame.DefaultLimits()
	}
	return &Handler{exec: exec, limits: limits, limiter: limiter, now: time.Now}
}

// Serve accepts one chain per request and answers with its Result frame.
func (h *Handler) Serve(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		h.reject(c, http.StatusUnsupportedMediaType, "command chains must be sent with POST")
		return
	}
	if mt, _, err := mime.ParseMediaType(c.GetHeader("Content-Type")); err != nil || mt != ChainMediaType {
		h.reject(c, http.StatusUnsupportedMediaType, "expected Content-Type "+ChainMediaType)
		return
	}
	if !h.limiter.Allow(c.ClientIP(), h.now()) {
		observability.RecordReject("rate_limited")
		h.reject(c, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, int64(frame.FixedHeaderLen)+int64(h.limits.MaxPayloadBytes))
	var out bytes.Buffer
	if err := h.exec.Execute(c.Request.Context(), body, &out); err != nil {
		status := StatusFor(err)
		log.Error().
			Err(err).
			Int("status", status).
			Str("request_id", observability.RequestIDFrom(c)).
			Msg("chain request failed")
		h.reject(c, status, http.StatusText(status))
		return
	}
	c.Data(http.StatusOK, ResultMediaType, out.Bytes())
}

func (h *Handler) reject(c *gin.Context, status int, msg string) {
	c.String(status, msg)
	c.Abort()
}

// StatusFor maps a protocol condition onto an HTTP status.
func StatusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, frame.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, server.ErrContextUnavailable), errors.Is(err, server.ErrWriteResult):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
