package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"filedrive/internal/logging"
	"filedrive/internal/service"

	"github.com/go-chi/chi/v5"
)

// UploadHandler 暴露上传协调器的端点。涉及单个文件的操作先校验归属。
type UploadHandler struct {
	uploads  *service.UploadCoordinator
	log      logging.Logger
	staleAge time.Duration
}

func NewUploadHandler(uploads *service.UploadCoordinator, log logging.Logger, staleAge time.Duration) *UploadHandler {
	if log == nil {
		log = logging.Nop()
	}
	return &UploadHandler{uploads: uploads, log: log, staleAge: staleAge}
}

func (h *UploadHandler) RegisterRoutes(r chi.Router) {
	r.Route("/uploads", func(r chi.Router) {
		r.Get("/", h.ListInProgress)
		r.Post("/single", h.InitiateSingle)
		r.Post("/multipart", h.InitiateMultipart)
		r.Post("/stale/collect", h.CollectStale)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Resume)
			r.Delete("/", h.Cancel)
			r.Post("/complete", h.Complete)
			r.Post("/fail", h.MarkFailed)
			r.Post("/chunks/{chunk}/authorize", h.AuthorizeChunk)
			r.Put("/chunks/{chunk}", h.AcknowledgeChunk)
		})
	})
}

type initiateRequest struct {
	Name         string     `json:"name"`
	MimeType     string     `json:"mime_type"`
	SizeBytes    int64      `json:"size_bytes"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	TotalChunks  int        `json:"total_chunks,omitempty"`
}

func (req initiateRequest) input(userID string) service.InitiateInput {
	return service.InitiateInput{
		UserID:       userID,
		Name:         req.Name,
		MimeType:     req.MimeType,
		SizeBytes:    req.SizeBytes,
		LastModified: req.LastModified,
		TotalChunks:  req.TotalChunks,
	}
}

func (h *UploadHandler) InitiateSingle(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req initiateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	up, err := h.uploads.InitiateSingle(r.Context(), req.input(userID))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Data: up})
}

func (h *UploadHandler) InitiateMultipart(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req initiateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	up, err := h.uploads.InitiateMultipart(r.Context(), req.input(userID))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Data: up})
}

func (h *UploadHandler) AuthorizeChunk(w http.ResponseWriter, r *http.Request) {
	fileID, ok := h.ownedFile(w, r)
	if !ok {
		return
	}
	chunk, ok := intPathParam(w, r, "chunk")
	if !ok {
		return
	}

	auth, err := h.uploads.AuthorizeChunk(r.Context(), fileID, chunk)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: auth})
}

type acknowledgeRequest struct {
	ETag string `json:"etag"`
}

func (h *UploadHandler) AcknowledgeChunk(w http.ResponseWriter, r *http.Request) {
	fileID, ok := h.ownedFile(w, r)
	if !ok {
		return
	}
	chunk, ok := intPathParam(w, r, "chunk")
	if !ok {
		return
	}
	var req acknowledgeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// 浏览器拿到的 ETag 带引号，存储时统一去掉
	etag := strings.Trim(strings.TrimSpace(req.ETag), `"`)
	if err := h.uploads.AcknowledgeChunk(r.Context(), fileID, chunk, etag); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeRequest struct {
	UploadID string `json:"upload_id"`
}

func (h *UploadHandler) Complete(w http.ResponseWriter, r *http.Request) {
	fileID, ok := h.ownedFile(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.uploads.Complete(r.Context(), fileID, req.UploadID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: record})
}

// Cancel 是幂等的：文件已不存在同样返回 204。
func (h *UploadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	fileID, ok := pathParam(w, r, "id")
	if !ok {
		return
	}

	err := h.uploads.CheckOwner(r.Context(), fileID, userID)
	if err == nil {
		err = h.uploads.Cancel(r.Context(), fileID)
	}
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UploadHandler) MarkFailed(w http.ResponseWriter, r *http.Request) {
	fileID, ok := h.ownedFile(w, r)
	if !ok {
		return
	}
	if err := h.uploads.MarkFailed(r.Context(), fileID); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UploadHandler) Resume(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	fileID, ok := pathParam(w, r, "id")
	if !ok {
		return
	}

	state, err := h.uploads.Resume(r.Context(), fileID, userID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: state})
}

func (h *UploadHandler) ListInProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	uploads, err := h.uploads.ListInProgress(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: uploads})
}

type collectRequest struct {
	MaxAge string `json:"max_age,omitempty"`
}

// CollectStale 回收调用者名下的陈旧 ledger，max_age 缺省取配置值。
func (h *UploadHandler) CollectStale(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	maxAge := h.staleAge
	if r.ContentLength != 0 {
		var req collectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.MaxAge != "" {
			d, err := time.ParseDuration(req.MaxAge)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid max_age: "+err.Error())
				return
			}
			maxAge = d
		}
	}

	collected, err := h.uploads.GarbageCollectStale(r.Context(), userID, maxAge)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"collected": collected, "max_age": maxAge.String()}})
}

// ownedFile 取路径中的文件 id，并确认属于调用者。
func (h *UploadHandler) ownedFile(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return "", false
	}
	fileID, ok := pathParam(w, r, "id")
	if !ok {
		return "", false
	}
	if err := h.uploads.CheckOwner(r.Context(), fileID, userID); err != nil {
		writeServiceError(w, r, h.log, err)
		return "", false
	}
	return fileID, true
}
