package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"filedrive/internal/logging"
	"filedrive/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/minio/minio-go/v7/pkg/notification"
)

// NotificationHandler 接收对象存储的上传完成通知，不走用户鉴权。
type NotificationHandler struct {
	uploads *service.UploadCoordinator
	token   string
	log     logging.Logger
}

func NewNotificationHandler(uploads *service.UploadCoordinator, token string, log logging.Logger) *NotificationHandler {
	if log == nil {
		log = logging.Nop()
	}
	return &NotificationHandler{uploads: uploads, token: token, log: log.With("component", "notifications")}
}

func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/storage/notifications", h.Notify)
}

// notifyRequest 兼容两种载荷：{"fileUrl": "..."}，或 MinIO/S3 的 bucket 事件。
type notifyRequest struct {
	FileURL string               `json:"fileUrl"`
	Records []notification.Event `json:"Records"`
}

type notifyResult struct {
	Confirmed []string `json:"confirmed"`
	Skipped   int      `json:"skipped"`
}

func (h *NotificationHandler) Notify(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid notification token")
		return
	}

	// 事件载荷的字段随存储厂商变化，不做严格校验
	var req notifyRequest
	if err := decodeJSONLenient(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// 单个 URL 的形式直接返回记录或错误
	if req.FileURL != "" {
		record, err := h.uploads.ConfirmSingle(r.Context(), req.FileURL)
		if err != nil {
			writeServiceError(w, r, h.log, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Data: record})
		return
	}

	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "fileUrl or Records is required")
		return
	}

	result := notifyResult{Confirmed: []string{}}
	for _, ev := range req.Records {
		if ev.EventName != "" && !strings.Contains(ev.EventName, "ObjectCreated") {
			result.Skipped++
			continue
		}
		record, err := h.uploads.ConfirmSingle(r.Context(), ev.S3.Object.Key)
		switch {
		case err == nil:
			result.Confirmed = append(result.Confirmed, record.ID)
		case errors.Is(err, service.ErrUpstream):
			// 让存储端重投
			writeServiceError(w, r, h.log, err)
			return
		default:
			h.log.Info(r.Context(), "notification skipped", "key", ev.S3.Object.Key, "event", ev.EventName, "reason", err)
			result.Skipped++
		}
	}
	writeJSON(w, http.StatusOK, envelope{Data: result})
}

// authorized 校验共享口令，未配置时放行。
func (h *NotificationHandler) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	got := r.Header.Get("X-Notify-Token")
	if got == "" {
		if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
			got = strings.TrimPrefix(bearer, "Bearer ")
		}
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}
