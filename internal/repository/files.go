package repository

import (
	"context"
	"time"
)

// FileRecord 代表数据库中的文件元数据。
type FileRecord struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	Name            string     `json:"name"`
	MimeType        string     `json:"mime_type"`
	SizeBytes       int64      `json:"size_bytes"`
	LastModified    *time.Time `json:"last_modified,omitempty"`
	StoragePath     string     `json:"storage_path"`
	ObjectURL       *string    `json:"object_url,omitempty"`
	Status          FileStatus `json:"status"`
	UploadSessionID *string    `json:"upload_session_id,omitempty"`
	TotalChunks     *int       `json:"total_chunks,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SessionID 返回 upload session id，没有时为空串。
func (r *FileRecord) SessionID() string {
	if r == nil || r.UploadSessionID == nil {
		return ""
	}
	return *r.UploadSessionID
}

// ListFilesParams 用于分页检索某个用户的文件。
type ListFilesParams struct {
	OwnerID  string
	Statuses []FileStatus
	Limit    int
	Offset   int
}

// FileRepository 统一文件元数据持久层接口。
type FileRepository interface {
	Create(ctx context.Context, record *FileRecord) (*FileRecord, error)
	GetByID(ctx context.Context, id string) (*FileRecord, error)
	List(ctx context.Context, params ListFilesParams) ([]FileRecord, error)
	// UpdateStatus 以 from 为前置条件更新状态；离开 multipart 状态时同时清空 session id。
	UpdateStatus(ctx context.Context, id string, from, to FileStatus) error
	// MarkUploaded 以 from 为前置条件写入 uploaded 状态与最终对象地址。
	MarkUploaded(ctx context.Context, id string, from FileStatus, objectURL string) error
	Delete(ctx context.Context, id string) error
	// DeleteIfStatus 仅当当前状态属于 statuses 时删除；状态不符返回 ErrConflict。
	DeleteIfStatus(ctx context.Context, id string, statuses ...FileStatus) error
}
