package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aura-polls/backend/internal/validation"
	"github.com/aura-polls/backend/pkg/response"
)

// SameOrigin rejects mutating requests whose Origin (or, failing that, Referer)
// does not match the serving origin. Requests carrying neither header are rejected.
// publicOrigin may be empty, in which case the origin is derived from the request.
func SameOrigin(publicOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		serving := publicOrigin
		if serving == "" {
			serving = requestOrigin(c.Request)
		}
		if !validation.IsSameOrigin(serving, c.GetHeader("Origin"), c.GetHeader("Referer")) {
			response.Forbidden(c, "Forbidden")
			c.Abort()
			return
		}
		c.Next()
	}
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.TrimSpace(strings.Split(p, ",")[0])
	}
	return scheme + "://" + r.Host
}
