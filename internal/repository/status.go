package repository

// FileStatus 描述上传生命周期。
type FileStatus string

const (
	FileStatusAuthorizedSingle    FileStatus = "authorized_single"
	FileStatusMultipartInitiated  FileStatus = "multipart_initiated"
	FileStatusMultipartInProgress FileStatus = "multipart_in_progress"
	FileStatusUploaded            FileStatus = "uploaded"
	FileStatusFailed              FileStatus = "failed"

	// FileStatusNone 与 FileStatusDeleted 只出现在状态转换表里，从不落库。
	FileStatusNone    FileStatus = ""
	FileStatusDeleted FileStatus = "deleted"
)

var transitions = map[FileStatus][]FileStatus{
	FileStatusNone:                {FileStatusAuthorizedSingle, FileStatusMultipartInitiated},
	FileStatusAuthorizedSingle:    {FileStatusUploaded, FileStatusFailed},
	FileStatusMultipartInitiated:  {FileStatusMultipartInProgress, FileStatusDeleted, FileStatusFailed},
	FileStatusMultipartInProgress: {FileStatusUploaded, FileStatusDeleted, FileStatusFailed},
	FileStatusUploaded:            {FileStatusFailed},
}

// Valid 判断是否为可持久化的状态值。
func (s FileStatus) Valid() bool {
	switch s {
	case FileStatusAuthorizedSingle, FileStatusMultipartInitiated, FileStatusMultipartInProgress,
		FileStatusUploaded, FileStatusFailed:
		return true
	default:
		return false
	}
}

// IsMultipartActive 当且仅当记录持有 upload session 与 ledger 时返回 true。
func (s FileStatus) IsMultipartActive() bool {
	return s == FileStatusMultipartInitiated || s == FileStatusMultipartInProgress
}

// CanTransition 查询状态转换表。
func (s FileStatus) CanTransition(to FileStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
