package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"account-service/internal/core/auth"
	"account-service/internal/transport/http/ez"
	resp "account-service/internal/transport/http/response"
)

const KeyClaims = "claims"

func bearer(c *gin.Context) (string, bool) {
	ah := c.GetHeader("Authorization")
	if !strings.HasPrefix(ah, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(ah, "Bearer "), true
}

func setPrincipal(c *gin.Context, claims *auth.Claims) {
	c.Set(KeyClaims, claims)
	c.Set(ez.CtxUserID, claims.UID)
	c.Set(ez.CtxEmail, claims.Email)
	c.Set(ez.CtxRole, claims.Role)
}

func AuthJWT(j *auth.JWTer, requireRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "missing token"))
			return
		}
		claims, err := j.Parse(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "invalid token"))
			return
		}
		if requireRole != "" && claims.Role != requireRole {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeForbidden, "forbidden"))
			return
		}
		setPrincipal(c, claims)
		c.Next()
	}
}

// AuthJWTOptional 有合法 token 就写入身份，没有或无效时按匿名继续
func AuthJWTOptional(j *auth.JWTer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok, ok := bearer(c); ok {
			if claims, err := j.Parse(tok); err == nil {
				setPrincipal(c, claims)
			}
		}
		c.Next()
	}
}
