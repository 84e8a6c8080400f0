package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	mw "github.com/richardliu001/ledger-service/http"
	"github.com/richardliu001/ledger-service/internal/config"
	"github.com/richardliu001/ledger-service/internal/service"
	"go.uber.org/zap"
)

// NewRouter builds the gin engine. A non-positive RPS disables rate limiting.
func NewRouter(ledger *service.Ledger, rl config.RateLimitConfig, requestTimeout time.Duration, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(mw.RecoveryMiddleware(log))
	r.Use(mw.LoggingMiddleware(log))
	if rl.RPS > 0 {
		r.Use(mw.RateLimitMiddleware(rl.RPS, rl.Burst))
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := r.Group("/v1", mw.CallerIdentity(), mw.TimeoutMiddleware(requestTimeout))
	RegisterHandlers(v1, ledger, log)
	return r
}
