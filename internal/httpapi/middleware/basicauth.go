package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/snapquestion/internal/auth"
	"github.com/suPer8Hu/snapquestion/internal/common"
)

// AdminRequired guards operator endpoints with HTTP basic auth against a
// bcrypt hash. With no hash configured the endpoints are closed.
func AdminRequired(user, passwordHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
			!auth.CheckPassword(passwordHash, p) {
			c.Header("WWW-Authenticate", `Basic realm="snapquestion-admin"`)
			common.Abort(c, http.StatusUnauthorized, 40102, "unauthorized")
			return
		}
		c.Next()
	}
}
