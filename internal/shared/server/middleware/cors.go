package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS answers preflights and sets CORS headers for allowed origins. An entry
// of the form "https://*.example.org" allows every subdomain of example.org,
// which covers ERP instances deployed per country office.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allow := newOriginMatcher(allowedOrigins)

	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" && allow(origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Operator-Id, X-Request-Id")
			h.Set("Access-Control-Expose-Headers", "X-Request-Id")
			h.Set("Access-Control-Max-Age", "600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func newOriginMatcher(allowedOrigins []string) func(string) bool {
	exact := make(map[string]struct{})
	type wildcard struct{ scheme, suffix string }
	var wildcards []wildcard
	for _, o := range allowedOrigins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if scheme, host, ok := strings.Cut(o, "://*."); ok {
			wildcards = append(wildcards, wildcard{scheme: scheme + "://", suffix: "." + host})
			continue
		}
		exact[o] = struct{}{}
	}
	return func(origin string) bool {
		if _, ok := exact[origin]; ok {
			return true
		}
		for _, w := range wildcards {
			rest, ok := strings.CutPrefix(origin, w.scheme)
			if ok && strings.HasSuffix(rest, w.suffix) && len(rest) > len(w.suffix) {
				return true
			}
		}
		return false
	}
}
