package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"account-service/internal/core/config"
	"account-service/internal/core/server"
	mdw "account-service/internal/transport/http/middleware"
)

// EngineOptions 两个 engine 共用的中间件参数
type EngineOptions struct {
	Mode   string
	Limits config.Limits
}

func newEngine(l *zap.Logger, name string, o EngineOptions) *gin.Engine {
	lim := o.Limits
	r := server.NewRouter(server.Options{Mode: o.Mode, CORSOrigins: lim.CORSOrigins})

	// 中间件
	r.Use(
		mdw.Recovery(l),
		mdw.RequestID(),
		mdw.RateLimit(rate.Limit(orDefault(lim.RPS, 200)), orDefaultInt(lim.Burst, 400)),
		mdw.ConcurrencyLimit(int64(orDefaultInt(int(lim.MaxConcurrency), 300))),
		mdw.MaxBodyBytes(int64(orDefaultInt(int(lim.MaxBodyMB), 1))<<20),
		mdw.Timeout(time.Duration(orDefaultInt(lim.TimeoutSec, 10))*time.Second),
		mdw.Metrics(name),
		mdw.AccessLog(l),
	)

	// 健康检查 + 指标
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func NewAPIEngine(l *zap.Logger, reg *Registry, o EngineOptions) *gin.Engine {
	r := newEngine(l, "api", o)

	// 各模块自己决定哪些路由需要鉴权
	api := r.Group("/api/v1")
	reg.MountAllAPI(api)
	return r
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
