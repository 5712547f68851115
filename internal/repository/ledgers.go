package repository

import (
	"context"
	"time"
)

// CompletedChunk 是一个已确认的分片及其 completion token（对象存储返回的 ETag）。
type CompletedChunk struct {
	ChunkNumber int    `json:"chunk_number"`
	Token       string `json:"etag"`
}

// ChunkLedger 记录一次 multipart 上传的分片完成情况，以及用于续传的元数据快照。
type ChunkLedger struct {
	FileID      string           `json:"file_id"`
	SessionID   string           `json:"upload_session_id"`
	OwnerID     string           `json:"owner_id"`
	FileName    string           `json:"file_name"`
	MimeType    string           `json:"mime_type"`
	SizeBytes   int64            `json:"size_bytes"`
	TotalChunks int              `json:"total_chunks"`
	Completed   []CompletedChunk `json:"completed_chunks"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// LedgerRepository 负责 ledger 的持久化，Completed 总是按分片号升序返回。
type LedgerRepository interface {
	Create(ctx context.Context, ledger *ChunkLedger) error
	Get(ctx context.Context, fileID string) (*ChunkLedger, error)
	// AddChunk 幂等地加入分片并刷新 updated_at；ledger 不存在时返回 ErrNotFound。
	AddChunk(ctx context.Context, fileID string, chunk CompletedChunk, at time.Time) error
	// Delete 幂等，记录不存在时不报错。
	Delete(ctx context.Context, fileID string) error
	ListByOwner(ctx context.Context, ownerID string) ([]ChunkLedger, error)
	ListByOwnerUpdatedBefore(ctx context.Context, ownerID string, cutoff time.Time) ([]ChunkLedger, error)
}
