package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionSnapshotKey returns the storage key of a student's resumable session on a paper
func (r *CacheKeyStruct) SessionSnapshotKey(studentID int, paperID string) string {
	return fmt.Sprintf("student:%d:paper:%s:snapshot", studentID, paperID)
}

// PaperPayloadKey returns the cache key for a paper's full definition
func (r *CacheKeyStruct) PaperPayloadKey(paperID string) string {
	return fmt.Sprintf("paper:%s:payload", paperID)
}

// SessionRegistryKey identifies a live session in the in-process registry
func (r *CacheKeyStruct) SessionRegistryKey(studentID int, paperID string) string {
	return fmt.Sprintf("%d:%s", studentID, paperID)
}

var CacheKey = NewCacheKeyStruct()
