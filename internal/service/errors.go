package service

import (
	"errors"
	"fmt"

	"filedrive/internal/repository"
)

// 对外暴露的错误分类。调用方用 errors.Is 判断。
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidChunk      = errors.New("chunk number out of range")
	ErrNoCompletedChunks = errors.New("no completed chunks")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUpstream          = errors.New("upstream failure")

	// ErrUserNotFound 属于 NotFound 分类。
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

	// errCancelConflict 只在 Cancel 的事务内使用，表示记录已离开 multipart 状态。
	errCancelConflict = errors.New("record left multipart state")
)

// UpstreamError 表示网关或元数据存储调用失败，Op 标识失败的子操作。
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrUpstream) 对任意 UpstreamError 成立。
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

func upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func invalidTransition(from, to repository.FileStatus) error {
	if from == repository.FileStatusNone {
		from = "none"
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
