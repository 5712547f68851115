package api

import (
	"net/http"

	"filedrive/internal/config"
	fdmiddleware "filedrive/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 汇总需要挂载的端点，nil 的分组不注册。
type Handlers struct {
	Uploads       *UploadHandler
	Files         *FileHandler
	Notifications *NotificationHandler
}

// NewRouter 构建 HTTP 路由。auth 是按配置选出的鉴权中间件。
func NewRouter(cfg *config.Config, auth func(http.Handler) http.Handler, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(fdmiddleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(fdmiddleware.Metrics())

	// 健康检查不需要鉴权
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	if h.Notifications != nil {
		r.Group(func(r chi.Router) {
			r.Use(fdmiddleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
			h.Notifications.RegisterRoutes(r)
		})
	}

	r.Group(func(r chi.Router) {
		if auth != nil {
			r.Use(auth)
		}
		r.Use(fdmiddleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		if h.Uploads != nil {
			h.Uploads.RegisterRoutes(r)
		}
		if h.Files != nil {
			h.Files.RegisterRoutes(r)
		}
	})

	return r
}
