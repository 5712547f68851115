package repository

import "errors"

// ErrNotFound 表示目标记录不存在。
var ErrNotFound = errors.New("repository: record not found")

// ErrAlreadyExists 表示主键冲突。
var ErrAlreadyExists = errors.New("repository: record already exists")

// ErrConflict 表示条件更新未命中（记录状态已被并发修改）。
var ErrConflict = errors.New("repository: conditional update did not match")
