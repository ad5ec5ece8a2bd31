// Package progress tracks per-student curriculum advancement: the record store,
// the transition rules that gate it, and read-only projections over it.
package progress

import (
	"fmt"
	"time"
)

// Status is the position of a (student, topic) pair in the advancement workflow.
type Status string

const (
	StatusLocked          Status = "locked"
	StatusInProgress      Status = "in_progress"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusExamUnlocked    Status = "exam_unlocked"
	StatusExamCompleted   Status = "exam_completed"
	StatusFailed          Status = "failed"
	StatusCompleted       Status = "completed"
)

// Statuses lists every valid status in workflow order.
var Statuses = []Status{
	StatusLocked,
	StatusInProgress,
	StatusPendingApproval,
	StatusApproved,
	StatusExamUnlocked,
	StatusExamCompleted,
	StatusFailed,
	StatusCompleted,
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusLocked, StatusInProgress, StatusPendingApproval, StatusApproved,
		StatusExamUnlocked, StatusExamCompleted, StatusFailed, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus converts a stored value back into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, v)
	}
	return s, nil
}

// pastApproval reports whether the approval gate has already been passed.
func (s Status) pastApproval() bool {
	switch s {
	case StatusApproved, StatusExamUnlocked, StatusExamCompleted, StatusFailed, StatusCompleted:
		return true
	}
	return false
}

// examScored reports whether the status carries an exam score.
func (s Status) examScored() bool {
	return s == StatusExamCompleted || s == StatusFailed || s == StatusCompleted
}

// Record is the progress of one student on one topic.
type Record struct {
	StudentID           string    `json:"student_id"`
	TopicID             string    `json:"topic_id"`
	CourseID            string    `json:"course_id"`
	Status              Status    `json:"status"`
	ApprovedByTeacherID *string   `json:"approved_by_teacher_id"`
	ExamScore           *int      `json:"exam_score"`
	ExamAttempts        int       `json:"exam_attempts"`
	LastUpdatedAt       time.Time `json:"last_updated_at"`
}

// Summary is course-level progress derived from the records.
type Summary struct {
	StudentID string  `json:"student_id"`
	CourseID  string  `json:"course_id"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

func summarize(studentID, courseID string, records []Record) Summary {
	sum := Summary{StudentID: studentID, CourseID: courseID, Total: len(records)}
	for _, r := range records {
		if r.Status == StatusCompleted {
			sum.Completed++
		}
	}
	if sum.Total > 0 {
		sum.Percent = float64(sum.Completed) * 100 / float64(sum.Total)
	}
	return sum
}
