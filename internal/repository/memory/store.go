// Package memory 提供进程内的 repository.Store 实现，用于本地开发与测试。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"filedrive/internal/repository"
)

type ledgerEntry struct {
	ledger repository.ChunkLedger
	chunks map[int]string
}

type state struct {
	files   map[string]repository.FileRecord
	ledgers map[string]*ledgerEntry
	users   map[string]repository.User
	shares  map[string]map[string]repository.FileShare
}

func newState() *state {
	return &state{
		files:   map[string]repository.FileRecord{},
		ledgers: map[string]*ledgerEntry{},
		users:   map[string]repository.User{},
		shares:  map[string]map[string]repository.FileShare{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.files {
		out.files[k] = cloneRecord(v)
	}
	for k, v := range s.ledgers {
		chunks := make(map[int]string, len(v.chunks))
		for n, token := range v.chunks {
			chunks[n] = token
		}
		out.ledgers[k] = &ledgerEntry{ledger: v.ledger, chunks: chunks}
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.shares {
		m := make(map[string]repository.FileShare, len(v))
		for r, share := range v {
			m[r] = share
		}
		out.shares[k] = m
	}
	return out
}

// Store 用一把互斥锁串行化所有访问；WithTx 持锁执行并在出错时恢复快照。
type Store struct {
	mu   *sync.Mutex
	st   *state
	inTx bool
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{mu: &sync.Mutex{}, st: newState(), now: time.Now}
}

func (s *Store) lock() {
	if !s.inTx {
		s.mu.Lock()
	}
}

func (s *Store) unlock() {
	if !s.inTx {
		s.mu.Unlock()
	}
}

func (s *Store) Files() repository.FileRepository     { return &fileRepo{s} }
func (s *Store) Ledgers() repository.LedgerRepository { return &ledgerRepo{s} }
func (s *Store) Users() repository.UserRepository     { return &userRepo{s} }
func (s *Store) Shares() repository.ShareRepository   { return &shareRepo{s} }

// WithTx 实现 repository.Store。
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) (err error) {
	if s.inTx {
		return fn(ctx, s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			*s.st = *snapshot
			panic(p)
		}
		if err != nil {
			*s.st = *snapshot
		}
	}()

	return fn(ctx, &Store{mu: s.mu, st: s.st, inTx: true, now: s.now})
}

type fileRepo struct{ s *Store }

func (r *fileRepo) Create(ctx context.Context, record *repository.FileRecord) (*repository.FileRecord, error) {
	r.s.lock()
	defer r.s.unlock()

	if _, ok := r.s.st.files[record.ID]; ok {
		return nil, repository.ErrAlreadyExists
	}
	rec := cloneRecord(*record)
	now := r.s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	r.s.st.files[rec.ID] = rec
	out := cloneRecord(rec)
	return &out, nil
}

func (r *fileRepo) GetByID(ctx context.Context, id string) (*repository.FileRecord, error) {
	r.s.lock()
	defer r.s.unlock()

	rec, ok := r.s.st.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneRecord(rec)
	return &out, nil
}

func (r *fileRepo) List(ctx context.Context, params repository.ListFilesParams) ([]repository.FileRecord, error) {
	r.s.lock()
	defer r.s.unlock()

	var out []repository.FileRecord
	for _, rec := range r.s.st.files {
		if rec.OwnerID != params.OwnerID || !statusIn(rec.Status, params.Statuses) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if params.Offset > 0 {
		if params.Offset >= len(out) {
			return nil, nil
		}
		out = out[params.Offset:]
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fileRepo) UpdateStatus(ctx context.Context, id string, from, to repository.FileStatus) error {
	r.s.lock()
	defer r.s.unlock()

	rec, err := r.expect(id, from)
	if err != nil {
		return err
	}
	rec.Status = to
	if !to.IsMultipartActive() {
		rec.UploadSessionID = nil
	}
	rec.UpdatedAt = r.s.now().UTC()
	r.s.st.files[id] = rec
	return nil
}

func (r *fileRepo) MarkUploaded(ctx context.Context, id string, from repository.FileStatus, objectURL string) error {
	r.s.lock()
	defer r.s.unlock()

	rec, err := r.expect(id, from)
	if err != nil {
		return err
	}
	rec.Status = repository.FileStatusUploaded
	rec.ObjectURL = &objectURL
	rec.UploadSessionID = nil
	rec.UpdatedAt = r.s.now().UTC()
	r.s.st.files[id] = rec
	return nil
}

// Delete 与 Postgres 外键级联保持一致：同时删除 ledger 与分享记录。
func (r *fileRepo) Delete(ctx context.Context, id string) error {
	r.s.lock()
	defer r.s.unlock()

	if _, ok := r.s.st.files[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.st.files, id)
	delete(r.s.st.ledgers, id)
	delete(r.s.st.shares, id)
	return nil
}

func (r *fileRepo) DeleteIfStatus(ctx context.Context, id string, statuses ...repository.FileStatus) error {
	r.s.lock()
	defer r.s.unlock()

	rec, ok := r.s.st.files[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !statusIn(rec.Status, statuses) {
		return repository.ErrConflict
	}
	delete(r.s.st.files, id)
	delete(r.s.st.ledgers, id)
	delete(r.s.st.shares, id)
	return nil
}

func (r *fileRepo) expect(id string, from repository.FileStatus) (repository.FileRecord, error) {
	rec, ok := r.s.st.files[id]
	if !ok {
		return repository.FileRecord{}, repository.ErrNotFound
	}
	if rec.Status != from {
		return repository.FileRecord{}, repository.ErrConflict
	}
	return rec, nil
}

type ledgerRepo struct{ s *Store }

func (r *ledgerRepo) Create(ctx context.Context, ledger *repository.ChunkLedger) error {
	r.s.lock()
	defer r.s.unlock()

	if _, ok := r.s.st.ledgers[ledger.FileID]; ok {
		return repository.ErrAlreadyExists
	}
	entry := &ledgerEntry{ledger: *ledger, chunks: map[int]string{}}
	entry.ledger.Completed = nil
	for _, c := range ledger.Completed {
		if _, ok := entry.chunks[c.ChunkNumber]; !ok {
			entry.chunks[c.ChunkNumber] = c.Token
		}
	}
	r.s.st.ledgers[ledger.FileID] = entry
	return nil
}

func (r *ledgerRepo) Get(ctx context.Context, fileID string) (*repository.ChunkLedger, error) {
	r.s.lock()
	defer r.s.unlock()

	entry, ok := r.s.st.ledgers[fileID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := entry.snapshot()
	return &out, nil
}

func (r *ledgerRepo) AddChunk(ctx context.Context, fileID string, chunk repository.CompletedChunk, at time.Time) error {
	r.s.lock()
	defer r.s.unlock()

	entry, ok := r.s.st.ledgers[fileID]
	if !ok {
		return repository.ErrNotFound
	}
	if _, exists := entry.chunks[chunk.ChunkNumber]; !exists {
		entry.chunks[chunk.ChunkNumber] = chunk.Token
	}
	entry.ledger.UpdatedAt = at
	return nil
}

func (r *ledgerRepo) Delete(ctx context.Context, fileID string) error {
	r.s.lock()
	defer r.s.unlock()

	delete(r.s.st.ledgers, fileID)
	return nil
}

func (r *ledgerRepo) ListByOwner(ctx context.Context, ownerID string) ([]repository.ChunkLedger, error) {
	return r.filter(func(l repository.ChunkLedger) bool { return l.OwnerID == ownerID })
}

func (r *ledgerRepo) ListByOwnerUpdatedBefore(ctx context.Context, ownerID string, cutoff time.Time) ([]repository.ChunkLedger, error) {
	return r.filter(func(l repository.ChunkLedger) bool {
		return l.OwnerID == ownerID && l.UpdatedAt.Before(cutoff)
	})
}

func (r *ledgerRepo) filter(keep func(repository.ChunkLedger) bool) ([]repository.ChunkLedger, error) {
	r.s.lock()
	defer r.s.unlock()

	var out []repository.ChunkLedger
	for _, entry := range r.s.st.ledgers {
		if keep(entry.ledger) {
			out = append(out, entry.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (e *ledgerEntry) snapshot() repository.ChunkLedger {
	out := e.ledger
	out.Completed = make([]repository.CompletedChunk, 0, len(e.chunks))
	for n, token := range e.chunks {
		out.Completed = append(out.Completed, repository.CompletedChunk{ChunkNumber: n, Token: token})
	}
	sort.Slice(out.Completed, func(i, j int) bool {
		return out.Completed[i].ChunkNumber < out.Completed[j].ChunkNumber
	})
	return out
}

type userRepo struct{ s *Store }

func (r *userRepo) Upsert(ctx context.Context, user *repository.User) (*repository.User, error) {
	r.s.lock()
	defer r.s.unlock()

	now := r.s.now().UTC()
	out := *user
	if existing, ok := r.s.st.users[user.ID]; ok {
		out.CreatedAt = existing.CreatedAt
	} else {
		out.CreatedAt = now
	}
	out.UpdatedAt = now
	r.s.st.users[user.ID] = out
	return &out, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	r.s.lock()
	defer r.s.unlock()

	u, ok := r.s.st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

type shareRepo struct{ s *Store }

func (r *shareRepo) Create(ctx context.Context, shares []repository.FileShare) error {
	r.s.lock()
	defer r.s.unlock()

	for _, share := range shares {
		byRecipient, ok := r.s.st.shares[share.FileID]
		if !ok {
			byRecipient = map[string]repository.FileShare{}
			r.s.st.shares[share.FileID] = byRecipient
		}
		if _, exists := byRecipient[share.RecipientID]; !exists {
			byRecipient[share.RecipientID] = share
		}
	}
	return nil
}

func (r *shareRepo) ListSharedWith(ctx context.Context, recipientID string) ([]repository.FileRecord, error) {
	r.s.lock()
	defer r.s.unlock()

	var out []repository.FileRecord
	for fileID, byRecipient := range r.s.st.shares {
		if _, ok := byRecipient[recipientID]; !ok {
			continue
		}
		if rec, ok := r.s.st.files[fileID]; ok {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func statusIn(status repository.FileStatus, statuses []repository.FileStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func cloneRecord(rec repository.FileRecord) repository.FileRecord {
	out := rec
	if rec.LastModified != nil {
		t := *rec.LastModified
		out.LastModified = &t
	}
	if rec.ObjectURL != nil {
		u := *rec.ObjectURL
		out.ObjectURL = &u
	}
	if rec.UploadSessionID != nil {
		s := *rec.UploadSessionID
		out.UploadSessionID = &s
	}
	if rec.TotalChunks != nil {
		n := *rec.TotalChunks
		out.TotalChunks = &n
	}
	return out
}
