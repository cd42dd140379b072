package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamPaperKey returns the cache key for a published exam's paper
func (r *CacheKeyStruct) ExamPaperKey(examID string) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}

// ExamAnswerKey returns the cache key for an exam's grading key
func (r *CacheKeyStruct) ExamAnswerKey(examID string) string {
	return fmt.Sprintf("exam:%s:key", examID)
}

// StudentSessionKey returns the key holding the JTI of a student's active token
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("student:%d:session", studentID)
}

// SessionRecordKey returns the key of a student's resumable exam session record
func (r *CacheKeyStruct) SessionRecordKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:session", studentID, examID)
}

// SessionResultKey returns the key of a student's last submission outcome
func (r *CacheKeyStruct) SessionResultKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:result", studentID, examID)
}

// StudentAnswersKey returns the cache key for a student's autosaved answers
func (r *CacheKeyStruct) StudentAnswersKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:answers", studentID, examID)
}

// SubmissionLockKey returns the key that marks a student exam as submitted
func (r *CacheKeyStruct) SubmissionLockKey(studentExamID string) string {
	return fmt.Sprintf("student_exam:%s:submitted", studentExamID)
}

var CacheKey = NewCacheKeyStruct()
