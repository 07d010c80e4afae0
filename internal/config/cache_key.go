package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key for a user's login session (single device).
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// AttemptDraftsKey returns the cache key for a user's per-question code buffers.
func (r *CacheKeyStruct) AttemptDraftsKey(examID string, userID int) string {
	return fmt.Sprintf("user:%d:exam:%s:drafts", userID, examID)
}

// SelectionHistoryKey returns the cache key for a user's question selection history
// on an exam (bounded list of past attempts' question ids).
func (r *CacheKeyStruct) SelectionHistoryKey(examID string, userID int) string {
	return fmt.Sprintf("user:%d:exam:%s:selection_history", userID, examID)
}

// ExamCatalogKey returns the cache key for one page of the published exam catalog.
func (r *CacheKeyStruct) ExamCatalogKey(page, perPage int) string {
	return fmt.Sprintf("catalog:exams:%d:%d", page, perPage)
}

// AttemptGraceLockKey returns the cache key marking an attempt as inside the
// violation grace window, during which writes are rejected.
func (r *CacheKeyStruct) AttemptGraceLockKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:grace_lock", attemptID)
}

// UserActiveExamKey returns the cache key for a user's currently active exam.
func (r *CacheKeyStruct) UserActiveExamKey(userID int) string {
	return fmt.Sprintf("user:%d:active_exam", userID)
}

var CacheKey = NewCacheKeyStruct()
