package api

import (
	"net/http"

	"filedrive/internal/logging"
	"filedrive/internal/middleware"
	"filedrive/internal/repository"
	"filedrive/internal/service"

	"github.com/go-chi/chi/v5"
)

// FileHandler 提供已上传文件、分享与用户登记的端点。
type FileHandler struct {
	service *service.FileService
	log     logging.Logger
}

func NewFileHandler(s *service.FileService, log logging.Logger) *FileHandler {
	if log == nil {
		log = logging.Nop()
	}
	return &FileHandler{service: s, log: log}
}

func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/user", h.UpsertUser)
	r.Route("/files", func(r chi.Router) {
		r.Get("/", h.ListFiles)
		r.Get("/shared", h.ListShared)
		r.Get("/{id}", h.GetFile)
		r.Get("/{id}/download", h.DownloadFile)
		r.Delete("/{id}", h.DeleteFile)
		r.Post("/{id}/share", h.ShareFile)
	})
}

type userRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// UpsertUser 登记当前调用者；请求体可选，缺省使用 token 里的资料。
func (h *FileHandler) UpsertUser(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	user := repository.User{ID: id.UserID, Email: id.Email, Name: id.Name}
	if r.ContentLength > 0 {
		var req userRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Email != "" {
			user.Email = req.Email
		}
		if req.Name != "" {
			user.Name = req.Name
		}
	}

	out, err := h.service.UpsertUser(r.Context(), user)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: out})
}

// ListFiles 返回调用者已上传的文件，支持 limit/offset 分页。
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	files, err := h.service.ListFiles(r.Context(), userID, queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: nonNil(files)})
}

func (h *FileHandler) ListShared(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	files, err := h.service.ListShared(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: nonNil(files)})
}

func (h *FileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	fileID, ok := pathParam(w, r, "id")
	if !ok {
		return
	}

	file, err := h.service.GetFile(r.Context(), fileID, userID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: file})
}

// DownloadFile 返回签名下载地址，内容由客户端直接从对象存储读取。
func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	fileID, ok := pathParam(w, r, "id")
	if !ok {
		return
	}

	dl, err := h.service.DownloadURL(r.Context(), fileID, userID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: dl})
}

func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	fileID, ok := pathParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteFile(r.Context(), fileID, userID); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"id": fileID, "deleted": true}})
}

type shareRequest struct {
	Recipients []string `json:"recipients"`
}

func (h *FileHandler) ShareFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	fileID, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	var req shareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.ShareFile(r.Context(), fileID, userID, req.Recipients); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNil(files []repository.FileRecord) []repository.FileRecord {
	if files == nil {
		return []repository.FileRecord{}
	}
	return files
}
