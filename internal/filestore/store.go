package filestore

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"hrchat/internal/models"
)

// Rejection reasons carried by ValidationError.
const (
	ReasonInvalidType = "invalid_type"
	ReasonTooLarge    = "too_large"
)

// ErrNotFound reports a remove on a file the session does not own.
var ErrNotFound = errors.New("file not found")

// ValidationError rejects an upload before it reaches extraction or storage.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Store keeps extracted text of uploaded documents in memory, keyed by the
// owning session. Contents never touch disk; restart loses them, which is the
// accepted lifetime for this service.
type Store struct {
	mu         sync.Mutex
	files      map[string][]*models.UploadedFile
	maxBytes   int64
	quotaBytes int64
	allowed    map[string]struct{}
	now        func() time.Time
}

// NewStore builds a store accepting files up to maxBytes each and at most
// quotaBytes total per session (0 disables the quota). Allowed extensions are
// lowercase with a leading dot, e.g. ".pdf".
func NewStore(maxBytes, quotaBytes int64, allowedExts []string) *Store {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	if len(allowedExts) == 0 {
		allowedExts = []string{".pdf", ".xlsx"}
	}
	allowed := make(map[string]struct{}, len(allowedExts))
	for _, ext := range allowedExts {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	return &Store{
		files:      make(map[string][]*models.UploadedFile),
		maxBytes:   maxBytes,
		quotaBytes: quotaBytes,
		allowed:    allowed,
		now:        time.Now,
	}
}

// Validate checks name extension and size against the allow-set and cap.
// Size is checked regardless of extension and vice versa.
func (s *Store) Validate(name string, size int64) error {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := s.allowed[ext]; !ok {
		exts := s.allowedList()
		return &ValidationError{
			Reason:  ReasonInvalidType,
			Message: fmt.Sprintf("file type not allowed, only %s are supported", strings.Join(exts, ", ")),
		}
	}
	if size > s.maxBytes {
		return &ValidationError{
			Reason:  ReasonTooLarge,
			Message: fmt.Sprintf("file too large, maximum size is %dMB", s.maxBytes>>20),
		}
	}
	return nil
}

// Store saves one extracted document for the session. Multiple files may
// accumulate per session; storing never touches session history.
func (s *Store) Store(sessionID, name string, size int64, content string) (*models.UploadedFile, error) {
	if err := s.Validate(name, size); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quotaBytes > 0 {
		var used int64
		for _, f := range s.files[sessionID] {
			used += f.Size
		}
		if used+size > s.quotaBytes {
			return nil, &ValidationError{
				Reason:  ReasonTooLarge,
				Message: "session storage quota exceeded",
			}
		}
	}

	file := &models.UploadedFile{
		SessionID:  sessionID,
		Name:       filepath.Base(name),
		Extension:  strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."),
		Size:       size,
		Content:    content,
		UploadedAt: s.now(),
	}
	s.files[sessionID] = append(s.files[sessionID], file)
	return file, nil
}

// List returns metadata for the session's files, oldest first.
func (s *Store) List(sessionID string) []models.FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := s.files[sessionID]
	out := make([]models.FileInfo, 0, len(files))
	for _, f := range files {
		out = append(out, models.FileInfo{
			Name:       f.Name,
			Extension:  f.Extension,
			Size:       f.Size,
			UploadedAt: f.UploadedAt,
		})
	}
	return out
}

// Content returns the session's files with extracted text, oldest first.
// Copies are returned so callers never observe concurrent mutation.
func (s *Store) Content(sessionID string) []*models.UploadedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := s.files[sessionID]
	out := make([]*models.UploadedFile, 0, len(files))
	for _, f := range files {
		cp := *f
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out
}

// Count reports how many files the session owns.
func (s *Store) Count(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files[sessionID])
}

// Remove deletes one file by name for the session.
func (s *Store) Remove(sessionID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := s.files[sessionID]
	for i, f := range files {
		if f.Name == name {
			s.files[sessionID] = append(files[:i], files[i+1:]...)
			if len(s.files[sessionID]) == 0 {
				delete(s.files, sessionID)
			}
			return nil
		}
	}
	return ErrNotFound
}

// Clear deletes all files for a session and returns the count removed.
// Calling it twice is safe: the second call returns zero.
func (s *Store) Clear(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.files[sessionID])
	delete(s.files, sessionID)
	return n
}

// Sweep deletes files older than maxAge across all sessions, independent of
// session liveness, and returns the count removed.
func (s *Store) Sweep(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-maxAge)
	removed := 0
	for sessionID, files := range s.files {
		kept := files[:0]
		for _, f := range files {
			if f.UploadedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, f)
		}
		if len(kept) == 0 {
			delete(s.files, sessionID)
		} else {
			s.files[sessionID] = kept
		}
	}
	return removed
}

func (s *Store) allowedList() []string {
	exts := make([]string, 0, len(s.allowed))
	for ext := range s.allowed {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
