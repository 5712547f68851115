package storage

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound 表示对象存储端不认识该 multipart session。
var ErrSessionNotFound = errors.New("storage: upload session not found")

// Part 是提交给对象存储 complete 接口的分片，必须按 Number 升序且不重复。
type Part struct {
	Number int
	ETag   string
}

// Authorizer 签发有时效的直传 URL。
type Authorizer interface {
	AuthorizeUpload(ctx context.Context, path string, ttl time.Duration) (string, error)
	AuthorizeDownload(ctx context.Context, path string, ttl time.Duration) (string, error)
	AuthorizeChunk(ctx context.Context, path, sessionID string, chunkNumber int, ttl time.Duration) (string, error)
}

// Sessions 管理对象存储端的 multipart 会话。
type Sessions interface {
	OpenSession(ctx context.Context, path string) (string, error)
	CompleteSession(ctx context.Context, path, sessionID string, parts []Part) error
	// AbortSession 幂等，会话不存在时不报错。
	AbortSession(ctx context.Context, path, sessionID string) error
}

// Gateway 组合了对象存储网关的全部能力。
type Gateway interface {
	Authorizer
	Sessions
	Delete(ctx context.Context, path string) error
	// ObjectExists 查询对象是否已存在，不存在不算错误。
	ObjectExists(ctx context.Context, path string) (bool, error)
	// ObjectURL 返回对象组装完成后的可寻址地址。
	ObjectURL(path string) string
}
