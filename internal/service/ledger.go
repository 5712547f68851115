package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"filedrive/internal/repository"
	"filedrive/internal/storage"
)

// OpenLedgerInput 是创建 ledger 时快照的上传元数据。
type OpenLedgerInput struct {
	FileID      string
	SessionID   string
	OwnerID     string
	FileName    string
	MimeType    string
	SizeBytes   int64
	TotalChunks int
}

// ChunkLedger 记录每个 multipart 上传已完成的分片。
// updated_at 是判断上传是否陈旧的唯一时钟，每次确认分片都会刷新。
type ChunkLedger struct {
	repo repository.LedgerRepository
	now  func() time.Time
}

func NewChunkLedger(repo repository.LedgerRepository, now func() time.Time) *ChunkLedger {
	if now == nil {
		now = time.Now
	}
	return &ChunkLedger{repo: repo, now: now}
}

// in 返回绑定到事务内仓储的副本。
func (l *ChunkLedger) in(tx repository.Store) *ChunkLedger {
	return &ChunkLedger{repo: tx.Ledgers(), now: l.now}
}

func (l *ChunkLedger) Open(ctx context.Context, input OpenLedgerInput) (*repository.ChunkLedger, error) {
	if input.TotalChunks < 1 {
		return nil, invalidInput("total chunks must be at least 1")
	}
	now := l.now().UTC()
	ledger := &repository.ChunkLedger{
		FileID:      input.FileID,
		SessionID:   input.SessionID,
		OwnerID:     input.OwnerID,
		FileName:    input.FileName,
		MimeType:    input.MimeType,
		SizeBytes:   input.SizeBytes,
		TotalChunks: input.TotalChunks,
		Completed:   []repository.CompletedChunk{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.repo.Create(ctx, ledger); err != nil {
		return nil, ledgerErr("create ledger", err)
	}
	return ledger, nil
}

// Acknowledge 幂等地登记分片；重复确认不会覆盖已有 token，但仍刷新 updated_at。
func (l *ChunkLedger) Acknowledge(ctx context.Context, fileID string, chunkNumber int, token string) error {
	ledger, err := l.repo.Get(ctx, fileID)
	if err != nil {
		return ledgerErr("get ledger", err)
	}
	if chunkNumber < 1 || chunkNumber > ledger.TotalChunks {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidChunk, chunkNumber, ledger.TotalChunks)
	}

	chunk := repository.CompletedChunk{ChunkNumber: chunkNumber, Token: token}
	if err := l.repo.AddChunk(ctx, fileID, chunk, l.now().UTC()); err != nil {
		return ledgerErr("add chunk", err)
	}
	return nil
}

func (l *ChunkLedger) Snapshot(ctx context.Context, fileID string) (*repository.ChunkLedger, error) {
	ledger, err := l.repo.Get(ctx, fileID)
	if err != nil {
		return nil, ledgerErr("get ledger", err)
	}
	return ledger, nil
}

// CompletedParts 按分片号升序返回，对象存储的 complete 接口依赖这一顺序。
func (l *ChunkLedger) CompletedParts(ctx context.Context, fileID string) ([]storage.Part, error) {
	ledger, err := l.Snapshot(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return partsOf(ledger.Completed), nil
}

// Close 删除 ledger，不存在时同样成功。
func (l *ChunkLedger) Close(ctx context.Context, fileID string) error {
	if err := l.repo.Delete(ctx, fileID); err != nil {
		return ledgerErr("delete ledger", err)
	}
	return nil
}

func (l *ChunkLedger) ListActive(ctx context.Context, userID string) ([]repository.ChunkLedger, error) {
	ledgers, err := l.repo.ListByOwner(ctx, userID)
	if err != nil {
		return nil, ledgerErr("list ledgers", err)
	}
	return ledgers, nil
}

// ListStale 返回 updated_at 早于 now-age 的 ledger。
func (l *ChunkLedger) ListStale(ctx context.Context, userID string, age time.Duration) ([]repository.ChunkLedger, error) {
	cutoff := l.now().UTC().Add(-age)
	ledgers, err := l.repo.ListByOwnerUpdatedBefore(ctx, userID, cutoff)
	if err != nil {
		return nil, ledgerErr("list stale ledgers", err)
	}
	return ledgers, nil
}

func partsOf(chunks []repository.CompletedChunk) []storage.Part {
	parts := make([]storage.Part, len(chunks))
	for i, c := range chunks {
		parts[i] = storage.Part{Number: c.ChunkNumber, ETag: c.Token}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })
	return parts
}

// ledgerErr 把仓储错误映射到服务层分类，其余视为元数据存储故障。
func ledgerErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("ledger %w", ErrNotFound)
	case errors.Is(err, repository.ErrAlreadyExists):
		return fmt.Errorf("ledger %w", ErrAlreadyExists)
	default:
		return upstream(op, err)
	}
}
