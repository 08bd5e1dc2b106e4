package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/remotectl/internal/auth"
	"github.com/danmuck/remotectl/internal/observability"
	"github.com/danmuck/remotectl/internal/ops"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	// DefaultPath is where chains are posted.
	DefaultPath = "/v1/chains"
	// OpsPath lists the operations op-dialect chains may reference.
	OpsPath = "/v1/ops"
)

type RouterConfig struct {
	NodeID      string
	Path        string
	CORSOrigins []string
	// Auth guards the chain and ops routes when set. /health and /metrics
	// stay open.
	Auth auth.Validator
	// Ops is served on OpsPath when set.
	Ops *ops.Registry
}

// NewRouter builds the receiver's gin engine with recovery, request ids,
// request logging and metrics, CORS, /health, /metrics, the chain route and
// the ops listing.
func NewRouter(cfg RouterConfig, h *Handler) *gin.Engine {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.NodeID == "" {
		cfg.NodeID = "remotectl"
	}
	observability.RegisterMetrics()
	started := time.Now()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.NodeID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"node":   cfg.NodeID,
			"uptime": time.Since(started).String(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var guard []gin.HandlerFunc
	if cfg.Auth != nil {
		guard = append(guard, RequireToken(cfg.Auth))
	}
	r.Any(cfg.Path, append(guard, h.Serve)...)
	if cfg.Ops != nil {
		r.GET(OpsPath, append(guard, listOps(cfg.NodeID, cfg.Ops))...)
	}
	return r
}

func listOps(node string, reg *ops.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"node": node,
			"ops":  reg.ListMetadata(),
		})
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

// NewServer serves handler over HTTP/1.1 and cleartext HTTP/2.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ListenAndServe runs srv until ctx is done, then shuts it down.
func ListenAndServe(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("receiver listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("receiver shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
