package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"account-service/internal/core/auth"
	"account-service/internal/domain"
	mdw "account-service/internal/transport/http/middleware"
)

func NewAdminEngine(l *zap.Logger, reg *Registry, jwter *auth.JWTer, o EngineOptions) *gin.Engine {
	r := newEngine(l, "admin", o)

	// 管理端 v1（统一要求 admin 角色）
	admin := r.Group("/admin/v1")
	admin.Use(mdw.AuthJWT(jwter, domain.RoleAdmin))
	reg.MountAllAdmin(admin)
	return r
}
