package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"filedrive/internal/logging"
	"filedrive/internal/repository"
	"filedrive/internal/storage"
)

// FileService 封装上传状态机之外的文件与用户操作。
type FileService struct {
	store       repository.Store
	gateway     storage.Gateway
	log         logging.Logger
	downloadTTL time.Duration
	now         func() time.Time
}

func NewFileService(store repository.Store, gateway storage.Gateway, log logging.Logger, downloadTTL time.Duration) *FileService {
	if downloadTTL <= 0 {
		downloadTTL = 10 * time.Minute
	}
	if log == nil {
		log = logging.Nop()
	}
	return &FileService{
		store:       store,
		gateway:     gateway,
		log:         log.With("component", "files"),
		downloadTTL: downloadTTL,
		now:         time.Now,
	}
}

// UpsertUser 登记经过身份校验的用户，重复调用只更新资料。
func (s *FileService) UpsertUser(ctx context.Context, user repository.User) (*repository.User, error) {
	if strings.TrimSpace(user.ID) == "" {
		return nil, invalidInput("user id is required")
	}
	out, err := s.store.Users().Upsert(ctx, &user)
	if err != nil {
		return nil, upstream("upsert user", err)
	}
	return out, nil
}

// ListFiles 列出 ownerID 已上传完成的文件。
func (s *FileService) ListFiles(ctx context.Context, ownerID string, limit, offset int) ([]repository.FileRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	records, err := s.store.Files().List(ctx, repository.ListFilesParams{
		OwnerID:  ownerID,
		Statuses: []repository.FileStatus{repository.FileStatusUploaded},
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, upstream("list files", err)
	}
	return records, nil
}

// GetFile 返回 ownerID 名下的文件；不属于调用者时返回 ErrForbidden。
func (s *FileService) GetFile(ctx context.Context, fileID, ownerID string) (*repository.FileRecord, error) {
	record, err := s.store.Files().GetByID(ctx, fileID)
	if err != nil {
		return nil, fileErr("get file record", err)
	}
	if record.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return record, nil
}

type Download struct {
	FileID      string    `json:"file_id"`
	Name        string    `json:"name"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// DownloadURL 为已上传的文件签发下载地址。
func (s *FileService) DownloadURL(ctx context.Context, fileID, ownerID string) (*Download, error) {
	record, err := s.GetFile(ctx, fileID, ownerID)
	if err != nil {
		return nil, err
	}
	if record.Status != repository.FileStatusUploaded {
		return nil, invalidInput("file %s is not uploaded", fileID)
	}

	expiresAt := s.now().UTC().Add(s.downloadTTL)
	u, err := s.gateway.AuthorizeDownload(ctx, record.StoragePath, s.downloadTTL)
	if err != nil {
		return nil, upstream("authorize download", err)
	}
	return &Download{FileID: fileID, Name: record.Name, DownloadURL: u, ExpiresAt: expiresAt}, nil
}

// DeleteFile 删除文件记录与对象。进行中的 multipart 上传需要走取消流程。
func (s *FileService) DeleteFile(ctx context.Context, fileID, ownerID string) error {
	record, err := s.GetFile(ctx, fileID, ownerID)
	if err != nil {
		return err
	}
	if record.Status.IsMultipartActive() {
		return invalidTransition(record.Status, repository.FileStatusDeleted)
	}

	if record.Status == repository.FileStatusUploaded {
		if err := s.gateway.Delete(ctx, record.StoragePath); err != nil {
			return upstream("delete object", err)
		}
	}
	if err := s.store.Files().Delete(ctx, fileID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return upstream("delete file record", err)
	}

	s.log.Info(ctx, "file deleted", "file_id", fileID, "status", record.Status)
	return nil
}

// ShareFile 授予 recipients 只读权限，重复分享会被忽略。
func (s *FileService) ShareFile(ctx context.Context, fileID, ownerID string, recipients []string) error {
	record, err := s.GetFile(ctx, fileID, ownerID)
	if err != nil {
		return err
	}
	if record.Status != repository.FileStatusUploaded {
		return invalidInput("file %s is not uploaded", fileID)
	}

	now := s.now().UTC()
	seen := make(map[string]struct{}, len(recipients))
	shares := make([]repository.FileShare, 0, len(recipients))
	for _, r := range recipients {
		r = strings.TrimSpace(r)
		if r == "" || r == ownerID {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		shares = append(shares, repository.FileShare{
			FileID:      fileID,
			RecipientID: r,
			Permission:  repository.SharePermissionRead,
			CreatedAt:   now,
		})
	}
	if len(shares) == 0 {
		return invalidInput("at least one recipient is required")
	}

	if err := s.store.Shares().Create(ctx, shares); err != nil {
		return upstream("create shares", err)
	}
	s.log.Info(ctx, "file shared", "file_id", fileID, "recipients", len(shares))
	return nil
}

func (s *FileService) ListShared(ctx context.Context, recipientID string) ([]repository.FileRecord, error) {
	records, err := s.store.Shares().ListSharedWith(ctx, recipientID)
	if err != nil {
		return nil, upstream("list shared files", err)
	}
	return records, nil
}
