package api

import (
	"errors"
	"net/http"

	"filedrive/internal/logging"
	"filedrive/internal/service"
)

// writeServiceError 把服务层错误分类映射为状态码。
// Forbidden 与 NotFound 对外不可区分；upstream 细节只进日志。
func writeServiceError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidChunk), errors.Is(err, service.ErrNoCompletedChunks):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUpstream):
		var upErr *service.UpstreamError
		op := ""
		if errors.As(err, &upErr) {
			op = upErr.Op
		}
		log.Error(r.Context(), "upstream failure", "op", op, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "upstream service unavailable, retry later")
	default:
		log.Error(r.Context(), "unhandled error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
