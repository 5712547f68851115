package repository

import (
	"context"
	"time"
)

// User 是经过身份校验的用户。
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UserRepository interface {
	Upsert(ctx context.Context, user *User) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

// SharePermission 目前只有只读。
type SharePermission string

const SharePermissionRead SharePermission = "read"

// FileShare 授予 recipient 对文件的访问权限。
type FileShare struct {
	FileID      string          `json:"file_id"`
	RecipientID string          `json:"recipient_id"`
	Permission  SharePermission `json:"permission"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ShareRepository interface {
	// Create 重复分享同一 recipient 时忽略。
	Create(ctx context.Context, shares []FileShare) error
	ListSharedWith(ctx context.Context, recipientID string) ([]FileRecord, error)
}
