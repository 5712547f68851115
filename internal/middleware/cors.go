package middleware

import (
	"net/http"
	"strings"
)

const (
	corsMethods = "GET,POST,PUT,DELETE,OPTIONS"
	corsHeaders = "Content-Type, Authorization, X-User-ID, X-Notify-Token, X-Request-ID"
	// ETag 需要暴露给浏览器，客户端直传分片后要读取它再确认
	corsExposed = "ETag, X-Request-ID"
)

// CORS 允许指定来源跨域访问，"*" 表示任意来源。
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := map[string]struct{}{}
	for _, origin := range allowedOrigins {
		switch value := strings.TrimSpace(origin); value {
		case "":
		case "*":
			allowAll = true
		default:
			allowed[value] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			_, listed := allowed[origin]
			permitted := origin != "" && (allowAll || listed)

			if permitted {
				h := w.Header()
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Expose-Headers", corsExposed)
				h.Set("Access-Control-Max-Age", "600")
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions && permitted {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
