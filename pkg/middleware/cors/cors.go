package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const allowedHeaders = "Authorization, Content-Type, X-Requested-With, X-Request-ID"
const allowedMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"

// New builds a CORS middleware from a whitelist of origins. An empty
// whitelist allows every origin.
func New(origins []string) gin.HandlerFunc {
	allowed := normalize(origins)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Vary", "Origin")

		if origin := reflectOrigin(allowed, c.GetHeader("Origin")); origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", allowedHeaders)
			h.Set("Access-Control-Allow-Methods", allowedMethods)
			h.Set("Access-Control-Max-Age", "600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func normalize(origins []string) map[string]struct{} {
	set := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return set
}

// reflectOrigin returns the value for Access-Control-Allow-Origin, or ""
// when the request origin is not whitelisted.
func reflectOrigin(allowed map[string]struct{}, origin string) string {
	if len(allowed) == 0 {
		if origin == "" {
			return "*"
		}
		return origin
	}
	if origin == "" {
		return ""
	}
	if _, ok := allowed[strings.TrimRight(origin, "/")]; ok {
		return origin
	}
	return ""
}
