package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	resp "account-service/internal/transport/http/response"
)

// MaxBodyBytes 声明了 Content-Length 的超限请求直接拒绝；
// 其余包一层 MaxBytesReader，读到超限时由 ez 绑定阶段报错
func MaxBodyBytes(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeBadRequest, "request body too large"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
