package models

import "time"

// UploadedFile is a user-uploaded document owned by exactly one session.
// Only the extracted plain text is retained; the raw bytes are discarded
// after extraction.
type UploadedFile struct {
	SessionID  string    `json:"session_id"`
	Name       string    `json:"file_name"`
	Extension  string    `json:"file_type"`
	Size       int64     `json:"file_size"`
	Content    string    `json:"-"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// FileInfo is the metadata view returned by list endpoints.
type FileInfo struct {
	Name       string    `json:"file_name"`
	Extension  string    `json:"file_type"`
	Size       int64     `json:"file_size"`
	UploadedAt time.Time `json:"uploaded_at"`
}
