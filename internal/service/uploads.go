package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"filedrive/internal/logging"
	"filedrive/internal/repository"
	"filedrive/internal/storage"

	"github.com/google/uuid"
)

const defaultMimeType = "application/octet-stream"

// UploadOptions 控制签名 URL 时效与可注入的时钟、id 生成器。
type UploadOptions struct {
	UploadURLTTL  time.Duration
	ChunkURLTTL   time.Duration
	MaxUploadSize int64
	Now           func() time.Time
	NewID         func() string
}

// UploadCoordinator 编排单次上传与 multipart 上传的完整生命周期。
//
// 元数据存储与对象存储不在同一个事务里，因此涉及两者的操作一律先做存储端动作、
// 再落本地状态：本地没写成功时，存储端最多留下一个可回收的会话。
type UploadCoordinator struct {
	store   repository.Store
	gateway storage.Gateway
	ledger  *ChunkLedger
	log     logging.Logger

	uploadTTL time.Duration
	chunkTTL  time.Duration
	maxSize   int64
	now       func() time.Time
	newID     func() string
}

func NewUploadCoordinator(store repository.Store, gateway storage.Gateway, log logging.Logger, opts UploadOptions) *UploadCoordinator {
	if opts.UploadURLTTL <= 0 {
		opts.UploadURLTTL = 15 * time.Minute
	}
	if opts.ChunkURLTTL <= 0 {
		opts.ChunkURLTTL = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if log == nil {
		log = logging.Nop()
	}

	return &UploadCoordinator{
		store:     store,
		gateway:   gateway,
		ledger:    NewChunkLedger(store.Ledgers(), opts.Now),
		log:       log.With("component", "uploads"),
		uploadTTL: opts.UploadURLTTL,
		chunkTTL:  opts.ChunkURLTTL,
		maxSize:   opts.MaxUploadSize,
		now:       opts.Now,
		newID:     opts.NewID,
	}
}

// InitiateInput 是客户端声明的文件信息。TotalChunks 只对 multipart 有意义。
type InitiateInput struct {
	UserID       string
	Name         string
	MimeType     string
	SizeBytes    int64
	LastModified *time.Time
	TotalChunks  int
}

type SingleUpload struct {
	FileID    string    `json:"file_id"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type MultipartUpload struct {
	FileID      string `json:"file_id"`
	SessionID   string `json:"upload_id"`
	TotalChunks int    `json:"total_chunks"`
}

type ChunkAuthorization struct {
	FileID      string    `json:"file_id"`
	SessionID   string    `json:"upload_id"`
	ChunkNumber int       `json:"chunk_number"`
	UploadURL   string    `json:"upload_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ResumeState 是续传所需的快照，Missing 为尚未确认的分片号。
type ResumeState struct {
	FileID      string                      `json:"file_id"`
	SessionID   string                      `json:"upload_id"`
	FileName    string                      `json:"file_name"`
	MimeType    string                      `json:"mime_type"`
	SizeBytes   int64                       `json:"size_bytes"`
	TotalChunks int                         `json:"total_chunks"`
	Completed   []repository.CompletedChunk `json:"completed_chunks"`
	Missing     []int                       `json:"missing_chunks"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// UploadProgress 是进行中上传的展示信息。
type UploadProgress struct {
	FileID          string    `json:"file_id"`
	FileName        string    `json:"file_name"`
	SizeBytes       int64     `json:"size_bytes"`
	TotalChunks     int       `json:"total_chunks"`
	CompletedChunks int       `json:"completed_chunks"`
	UpdatedAt       time.Time `json:"last_updated_at"`
}

// StoragePath 返回文件在对象存储中的 key。
func StoragePath(userID, fileID string) string {
	return fmt.Sprintf("user/%s/%s", userID, fileID)
}

// InitiateSingle 签发单次上传 URL 并登记 authorized_single 记录。
func (c *UploadCoordinator) InitiateSingle(ctx context.Context, input InitiateInput) (*SingleUpload, error) {
	if err := c.validateInitiate(input); err != nil {
		return nil, err
	}
	if err := c.requireUser(ctx, input.UserID); err != nil {
		return nil, err
	}

	fileID := c.newID()
	path := StoragePath(input.UserID, fileID)
	expiresAt := c.now().UTC().Add(c.uploadTTL)

	uploadURL, err := c.gateway.AuthorizeUpload(ctx, path, c.uploadTTL)
	if err != nil {
		return nil, upstream("authorize upload", err)
	}

	record := c.newRecord(fileID, path, input, repository.FileStatusAuthorizedSingle)
	if _, err := c.store.Files().Create(ctx, record); err != nil {
		return nil, fileErr("create file record", err)
	}

	uploadsInitiated.WithLabelValues("single").Inc()
	c.log.Info(ctx, "single upload authorized", "file_id", fileID, "user_id", input.UserID, "size", input.SizeBytes)

	return &SingleUpload{FileID: fileID, UploadURL: uploadURL, ExpiresAt: expiresAt}, nil
}

// InitiateMultipart 先在对象存储开启会话，再在同一事务里写入记录与 ledger。
// 落库失败时尽力 abort 会话；abort 也失败的会话记为孤儿。
func (c *UploadCoordinator) InitiateMultipart(ctx context.Context, input InitiateInput) (*MultipartUpload, error) {
	if input.TotalChunks < 1 {
		return nil, invalidInput("total_chunks must be at least 1")
	}
	if err := c.validateInitiate(input); err != nil {
		return nil, err
	}
	if err := c.requireUser(ctx, input.UserID); err != nil {
		return nil, err
	}

	fileID := c.newID()
	path := StoragePath(input.UserID, fileID)

	sessionID, err := c.gateway.OpenSession(ctx, path)
	if err != nil {
		return nil, upstream("open session", err)
	}

	record := c.newRecord(fileID, path, input, repository.FileStatusMultipartInitiated)
	record.UploadSessionID = &sessionID
	record.TotalChunks = &input.TotalChunks

	err = c.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if _, err := tx.Files().Create(ctx, record); err != nil {
			return fileErr("create file record", err)
		}
		_, err := c.ledger.in(tx).Open(ctx, OpenLedgerInput{
			FileID:      fileID,
			SessionID:   sessionID,
			OwnerID:     input.UserID,
			FileName:    record.Name,
			MimeType:    record.MimeType,
			SizeBytes:   input.SizeBytes,
			TotalChunks: input.TotalChunks,
		})
		return err
	})
	if err != nil {
		c.abortOrphan(ctx, fileID, path, sessionID)
		return nil, classify("persist multipart upload", err)
	}

	uploadsInitiated.WithLabelValues("multipart").Inc()
	c.log.Info(ctx, "multipart upload initiated",
		"file_id", fileID, "user_id", input.UserID, "upload_id", sessionID, "total_chunks", input.TotalChunks)

	return &MultipartUpload{FileID: fileID, SessionID: sessionID, TotalChunks: input.TotalChunks}, nil
}

// AuthorizeChunk 签发分片上传 URL。第一次调用把状态推进到 multipart_in_progress，
// 之后的调用不再改变状态；ledger 不受影响。
func (c *UploadCoordinator) AuthorizeChunk(ctx context.Context, fileID string, chunkNumber int) (*ChunkAuthorization, error) {
	record, err := c.getRecord(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !record.Status.IsMultipartActive() {
		return nil, invalidTransition(record.Status, repository.FileStatusMultipartInProgress)
	}
	if total := totalChunks(record); chunkNumber < 1 || chunkNumber > total {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidChunk, chunkNumber, total)
	}

	if record.Status == repository.FileStatusMultipartInitiated {
		if record, err = c.startProgress(ctx, record); err != nil {
			return nil, err
		}
	}

	expiresAt := c.now().UTC().Add(c.chunkTTL)
	uploadURL, err := c.gateway.AuthorizeChunk(ctx, record.StoragePath, record.SessionID(), chunkNumber, c.chunkTTL)
	if err != nil {
		return nil, upstream("authorize chunk", err)
	}

	return &ChunkAuthorization{
		FileID:      fileID,
		SessionID:   record.SessionID(),
		ChunkNumber: chunkNumber,
		UploadURL:   uploadURL,
		ExpiresAt:   expiresAt,
	}, nil
}

// startProgress 用条件更新保证 initiated -> in_progress 只发生一次；
// 并发请求输掉竞争时重新读取记录。
func (c *UploadCoordinator) startProgress(ctx context.Context, record *repository.FileRecord) (*repository.FileRecord, error) {
	err := c.store.Files().UpdateStatus(ctx, record.ID, repository.FileStatusMultipartInitiated, repository.FileStatusMultipartInProgress)
	switch {
	case err == nil:
		record.Status = repository.FileStatusMultipartInProgress
		c.log.Debug(ctx, "multipart upload in progress", "file_id", record.ID)
		return record, nil
	case errors.Is(err, repository.ErrConflict):
		current, err := c.getRecord(ctx, record.ID)
		if err != nil {
			return nil, err
		}
		if current.Status != repository.FileStatusMultipartInProgress {
			return nil, invalidTransition(current.Status, repository.FileStatusMultipartInProgress)
		}
		return current, nil
	default:
		return nil, fileErr("update file status", err)
	}
}

// AcknowledgeChunk 登记客户端上传完成的分片，重复确认是幂等的。
func (c *UploadCoordinator) AcknowledgeChunk(ctx context.Context, fileID string, chunkNumber int, token string) error {
	if strings.TrimSpace(token) == "" {
		return invalidInput("etag is required")
	}
	if err := c.ledger.Acknowledge(ctx, fileID, chunkNumber, token); err != nil {
		return err
	}
	chunksAcknowledged.Inc()
	return nil
}

// Complete 用 ledger 中的分片列表组装对象。只有对象存储确认后才改本地状态，
// 因此存储端失败可以直接重试。
func (c *UploadCoordinator) Complete(ctx context.Context, fileID, sessionID string) (*repository.FileRecord, error) {
	record, err := c.getRecord(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !record.Status.IsMultipartActive() {
		return nil, invalidTransition(record.Status, repository.FileStatusUploaded)
	}
	if sessionID == "" || record.SessionID() != sessionID {
		return nil, fmt.Errorf("upload session %w", ErrNotFound)
	}

	parts, err := c.ledger.CompletedParts(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, ErrNoCompletedChunks
	}
	if record.Status != repository.FileStatusMultipartInProgress {
		return nil, invalidTransition(record.Status, repository.FileStatusUploaded)
	}

	if err := c.completeSession(ctx, record, parts); err != nil {
		return nil, err
	}

	objectURL := c.gateway.ObjectURL(record.StoragePath)
	var done *repository.FileRecord
	err = c.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.Files().MarkUploaded(ctx, fileID, repository.FileStatusMultipartInProgress, objectURL); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return invalidTransition(record.Status, repository.FileStatusUploaded)
			}
			return fileErr("mark uploaded", err)
		}
		if err := c.ledger.in(tx).Close(ctx, fileID); err != nil {
			return err
		}
		var err error
		done, err = tx.Files().GetByID(ctx, fileID)
		return fileErr("get file record", err)
	})
	if err != nil {
		return nil, classify("finish multipart upload", err)
	}

	uploadsFinished.WithLabelValues("uploaded").Inc()
	c.log.Info(ctx, "multipart upload completed", "file_id", fileID, "parts", len(parts))
	return done, nil
}

// completeSession 在对象存储端组装对象。会话已不存在但对象已经组装好，
// 说明上一次 Complete 在本地落库前失败，此时视为存储端已完成。
func (c *UploadCoordinator) completeSession(ctx context.Context, record *repository.FileRecord, parts []storage.Part) error {
	err := c.gateway.CompleteSession(ctx, record.StoragePath, record.SessionID(), parts)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrSessionNotFound) {
		return upstream("complete session", err)
	}

	exists, statErr := c.gateway.ObjectExists(ctx, record.StoragePath)
	if statErr != nil {
		return upstream("stat object", statErr)
	}
	if !exists {
		return fmt.Errorf("upload session %w", ErrNotFound)
	}
	c.log.Warn(ctx, "upload session already completed, resuming local persist",
		"file_id", record.ID, "upload_id", record.SessionID())
	return nil
}

// Cancel 放弃进行中的 multipart 上传，删除 ledger 与记录。文件不存在时视为成功。
func (c *UploadCoordinator) Cancel(ctx context.Context, fileID string) error {
	record, err := c.getRecord(ctx, fileID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !record.Status.IsMultipartActive() {
		return invalidTransition(record.Status, repository.FileStatusDeleted)
	}

	// 存储端会话由生命周期策略兜底回收，这里失败只记日志。
	if err := c.gateway.AbortSession(ctx, record.StoragePath, record.SessionID()); err != nil {
		c.log.Warn(ctx, "abort upload session failed", "file_id", fileID, "upload_id", record.SessionID(), "error", err)
	}

	// 删除以 multipart 状态为前置条件，并发的 Complete 先落库时放弃删除
	err = c.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		err := tx.Files().DeleteIfStatus(ctx, fileID,
			repository.FileStatusMultipartInitiated, repository.FileStatusMultipartInProgress)
		switch {
		case errors.Is(err, repository.ErrConflict):
			return errCancelConflict
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return fileErr("delete file record", err)
		}
		return c.ledger.in(tx).Close(ctx, fileID)
	})
	if errors.Is(err, errCancelConflict) {
		current, getErr := c.getRecord(ctx, fileID)
		if getErr != nil {
			return getErr
		}
		return invalidTransition(current.Status, repository.FileStatusDeleted)
	}
	if err != nil {
		return classify("cancel upload", err)
	}

	uploadsFinished.WithLabelValues("cancelled").Inc()
	c.log.Info(ctx, "multipart upload cancelled", "file_id", fileID)
	return nil
}

// Resume 返回续传快照。非本人发起的上传返回 ErrForbidden。
func (c *UploadCoordinator) Resume(ctx context.Context, fileID, userID string) (*ResumeState, error) {
	ledger, err := c.ledger.Snapshot(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if ledger.OwnerID != userID {
		return nil, ErrForbidden
	}

	done := make(map[int]struct{}, len(ledger.Completed))
	for _, chunk := range ledger.Completed {
		done[chunk.ChunkNumber] = struct{}{}
	}
	missing := make([]int, 0, ledger.TotalChunks-len(done))
	for n := 1; n <= ledger.TotalChunks; n++ {
		if _, ok := done[n]; !ok {
			missing = append(missing, n)
		}
	}

	return &ResumeState{
		FileID:      ledger.FileID,
		SessionID:   ledger.SessionID,
		FileName:    ledger.FileName,
		MimeType:    ledger.MimeType,
		SizeBytes:   ledger.SizeBytes,
		TotalChunks: ledger.TotalChunks,
		Completed:   ledger.Completed,
		Missing:     missing,
		UpdatedAt:   ledger.UpdatedAt,
	}, nil
}

func (c *UploadCoordinator) ListInProgress(ctx context.Context, userID string) ([]UploadProgress, error) {
	ledgers, err := c.ledger.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]UploadProgress, len(ledgers))
	for i, l := range ledgers {
		out[i] = UploadProgress{
			FileID:          l.FileID,
			FileName:        l.FileName,
			SizeBytes:       l.SizeBytes,
			TotalChunks:     l.TotalChunks,
			CompletedChunks: len(l.Completed),
			UpdatedAt:       l.UpdatedAt,
		}
	}
	return out, nil
}

// GarbageCollectStale 只删除陈旧的 ledger，文件记录与存储端会话保持不变，
// 留给独立的对账流程处理。返回被回收的文件 id。
func (c *UploadCoordinator) GarbageCollectStale(ctx context.Context, userID string, maxAge time.Duration) ([]string, error) {
	if maxAge <= 0 {
		return nil, invalidInput("max age must be positive")
	}

	stale, err := c.ledger.ListStale(ctx, userID, maxAge)
	if err != nil {
		return nil, err
	}

	collected := make([]string, 0, len(stale))
	for _, l := range stale {
		if err := c.ledger.Close(ctx, l.FileID); err != nil {
			return collected, err
		}
		collected = append(collected, l.FileID)
	}

	if len(collected) > 0 {
		staleLedgersCollected.Add(float64(len(collected)))
		c.log.Info(ctx, "stale uploads collected", "user_id", userID, "count", len(collected), "max_age", maxAge)
	}
	return collected, nil
}

// ConfirmSingle 处理对象存储的上传完成通知。location 可以是对象 URL，
// 也可以是 bucket 内的 key；重复通知对已上传的记录无副作用。
func (c *UploadCoordinator) ConfirmSingle(ctx context.Context, location string) (*repository.FileRecord, error) {
	fileID, ok := FileIDFromLocation(location)
	if !ok {
		return nil, invalidInput("cannot resolve file id from %q", location)
	}

	record, err := c.getRecord(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if record.Status == repository.FileStatusUploaded {
		return record, nil
	}
	if record.Status != repository.FileStatusAuthorizedSingle {
		return nil, invalidTransition(record.Status, repository.FileStatusUploaded)
	}

	objectURL := c.gateway.ObjectURL(record.StoragePath)
	err = c.store.Files().MarkUploaded(ctx, fileID, repository.FileStatusAuthorizedSingle, objectURL)
	if errors.Is(err, repository.ErrConflict) {
		// 并发通知已经先一步写入
		current, err := c.getRecord(ctx, fileID)
		if err != nil {
			return nil, err
		}
		if current.Status != repository.FileStatusUploaded {
			return nil, invalidTransition(current.Status, repository.FileStatusUploaded)
		}
		return current, nil
	}
	if err != nil {
		return nil, fileErr("mark uploaded", err)
	}

	uploadsFinished.WithLabelValues("uploaded").Inc()
	c.log.Info(ctx, "single upload confirmed", "file_id", fileID)
	return c.getRecord(ctx, fileID)
}

// MarkFailed 是进入 failed 的唯一入口，由外部显式调用。
// multipart 记录会一并关闭 ledger 并尽力 abort 存储端会话。
func (c *UploadCoordinator) MarkFailed(ctx context.Context, fileID string) error {
	record, err := c.getRecord(ctx, fileID)
	if err != nil {
		return err
	}
	if !record.Status.CanTransition(repository.FileStatusFailed) {
		return invalidTransition(record.Status, repository.FileStatusFailed)
	}

	multipart := record.Status.IsMultipartActive()
	if multipart {
		if err := c.gateway.AbortSession(ctx, record.StoragePath, record.SessionID()); err != nil {
			c.log.Warn(ctx, "abort upload session failed", "file_id", fileID, "upload_id", record.SessionID(), "error", err)
		}
	}

	err = c.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.Files().UpdateStatus(ctx, fileID, record.Status, repository.FileStatusFailed); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return invalidTransition(record.Status, repository.FileStatusFailed)
			}
			return fileErr("update file status", err)
		}
		if multipart {
			return c.ledger.in(tx).Close(ctx, fileID)
		}
		return nil
	})
	if err != nil {
		return classify("mark failed", err)
	}

	uploadsFinished.WithLabelValues("failed").Inc()
	c.log.Warn(ctx, "upload marked failed", "file_id", fileID, "previous_status", record.Status)
	return nil
}

// CheckOwner 确认文件存在且属于 userID。
func (c *UploadCoordinator) CheckOwner(ctx context.Context, fileID, userID string) error {
	record, err := c.getRecord(ctx, fileID)
	if err != nil {
		return err
	}
	if record.OwnerID != userID {
		return ErrForbidden
	}
	return nil
}

// FileIDFromLocation 从 ".../user/{userId}/{fileId}" 形式的 URL 或 key 中取出文件 id。
// 文件名部分若带 "_" 后缀，只取前缀。
func FileIDFromLocation(location string) (string, bool) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", false
	}

	p := location
	if u, err := url.Parse(location); err == nil && u.Scheme != "" {
		p = u.Path
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}

	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i := 0; i+2 < len(segments); i++ {
		if segments[i] != "user" || segments[i+1] == "" {
			continue
		}
		id := segments[i+2]
		if idx := strings.Index(id, "_"); idx >= 0 {
			id = id[:idx]
		}
		if id != "" {
			return id, true
		}
	}
	return "", false
}

func (c *UploadCoordinator) validateInitiate(input InitiateInput) error {
	switch {
	case strings.TrimSpace(input.UserID) == "":
		return invalidInput("user id is required")
	case strings.TrimSpace(input.Name) == "":
		return invalidInput("file name is required")
	case input.SizeBytes < 0:
		return invalidInput("size must not be negative")
	case c.maxSize > 0 && input.SizeBytes > c.maxSize:
		return invalidInput("size %d exceeds limit %d", input.SizeBytes, c.maxSize)
	default:
		return nil
	}
}

func (c *UploadCoordinator) requireUser(ctx context.Context, userID string) error {
	if _, err := c.store.Users().GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return upstream("get user", err)
	}
	return nil
}

func (c *UploadCoordinator) newRecord(fileID, path string, input InitiateInput, status repository.FileStatus) *repository.FileRecord {
	mimeType := strings.TrimSpace(input.MimeType)
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	now := c.now().UTC()
	return &repository.FileRecord{
		ID:           fileID,
		OwnerID:      input.UserID,
		Name:         strings.TrimSpace(input.Name),
		MimeType:     mimeType,
		SizeBytes:    input.SizeBytes,
		LastModified: input.LastModified,
		StoragePath:  path,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (c *UploadCoordinator) getRecord(ctx context.Context, fileID string) (*repository.FileRecord, error) {
	record, err := c.store.Files().GetByID(ctx, fileID)
	if err != nil {
		return nil, fileErr("get file record", err)
	}
	return record, nil
}

// abortOrphan 在本地落库失败后回收存储端会话。请求的 ctx 可能已取消，因此脱离取消信号。
func (c *UploadCoordinator) abortOrphan(ctx context.Context, fileID, path, sessionID string) {
	ctx = context.WithoutCancel(ctx)
	if err := c.gateway.AbortSession(ctx, path, sessionID); err != nil {
		orphanSessions.Inc()
		c.log.Error(ctx, "orphan upload session", "file_id", fileID, "path", path, "upload_id", sessionID, "error", err)
		return
	}
	c.log.Warn(ctx, "upload session aborted after persist failure", "file_id", fileID, "upload_id", sessionID)
}

func totalChunks(record *repository.FileRecord) int {
	if record.TotalChunks == nil {
		return 0
	}
	return *record.TotalChunks
}

// fileErr 把文件仓储错误映射到服务层分类。err 为 nil 时返回 nil。
func fileErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("file %w", ErrNotFound)
	case errors.Is(err, repository.ErrAlreadyExists):
		return fmt.Errorf("file %w", ErrAlreadyExists)
	default:
		return upstream(op, err)
	}
}

// classify 保留已经分类的错误，其余（如事务提交失败）归为 upstream。
func classify(op string, err error) error {
	for _, known := range []error{
		ErrNotFound, ErrForbidden, ErrInvalidTransition, ErrInvalidChunk,
		ErrNoCompletedChunks, ErrAlreadyExists, ErrInvalidInput, ErrUpstream,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return upstream(op, err)
}
