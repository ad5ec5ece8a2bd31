package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/p-n-ai/pai-progress/internal/curriculum"
)

// Catalog is the read-only curriculum view the store and machine consult.
// *curriculum.Graph satisfies it.
type Catalog interface {
	Topic(id string) (curriculum.Topic, error)
	TopicsForCourse(courseID string) ([]curriculum.Topic, error)
	FirstTopic(courseID string) (curriculum.Topic, error)
	NextTopic(topicID string) (curriculum.Topic, bool, error)
}

// UpdateFunc mutates rec in place and reports whether anything changed.
// Returning an error aborts the update and nothing is written.
type UpdateFunc func(rec *Record) (changed bool, err error)

// Store persists progress records. Records are created lazily with the
// default status for their topic; a student not enrolled in the topic's
// course is unknown and yields ErrNotFound.
type Store interface {
	// Enroll registers the student in a course and creates a record for
	// every topic in it. Enrolling twice is a no-op.
	Enroll(ctx context.Context, studentID, courseID string) error
	StudentsInCourse(ctx context.Context, courseID string) ([]string, error)

	Get(ctx context.Context, studentID, topicID string) (Record, error)
	ListForStudentCourse(ctx context.Context, studentID, courseID string) ([]Record, error)

	// Update runs fn against the current record while holding exclusive
	// access to the (student, topic) key.
	Update(ctx context.Context, studentID, topicID string, fn UpdateFunc) (Record, error)
	Save(ctx context.Context, rec Record) error
}

// initialRecord builds the default record: the first topic of a course starts
// in progress, every other topic starts locked.
func initialRecord(catalog Catalog, studentID string, topic curriculum.Topic, now time.Time) (Record, error) {
	first, err := catalog.FirstTopic(topic.CourseID)
	if err != nil {
		return Record{}, notFound(err)
	}
	status := StatusLocked
	if first.ID == topic.ID {
		status = StatusInProgress
	}
	return Record{
		StudentID:     studentID,
		TopicID:       topic.ID,
		CourseID:      topic.CourseID,
		Status:        status,
		LastUpdatedAt: now,
	}, nil
}

func lookupTopic(catalog Catalog, topicID string) (curriculum.Topic, error) {
	t, err := catalog.Topic(topicID)
	if err != nil {
		return curriculum.Topic{}, notFound(err)
	}
	return t, nil
}

func validateIDs(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty identifier", ErrInvalidInput)
		}
	}
	return nil
}

// checkRecord verifies a record before an upsert through Save.
func checkRecord(rec Record) error {
	if err := validateIDs(rec.StudentID, rec.TopicID); err != nil {
		return err
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, rec.Status)
	}
	if rec.ExamScore != nil && (*rec.ExamScore < 0 || *rec.ExamScore > 100) {
		return fmt.Errorf("%w: exam score %d out of range", ErrInvalidInput, *rec.ExamScore)
	}
	if rec.ExamScore != nil && !rec.Status.examScored() {
		return fmt.Errorf("%w: exam score set on %s record", ErrInvalidInput, rec.Status)
	}
	// Completed is also reached by topics without an exam.
	if rec.ExamScore == nil && rec.Status.examScored() && rec.Status != StatusCompleted {
		return fmt.Errorf("%w: %s record needs an exam score", ErrInvalidInput, rec.Status)
	}
	if rec.ApprovedByTeacherID != nil && !rec.Status.pastApproval() {
		return fmt.Errorf("%w: approver set on %s record", ErrInvalidInput, rec.Status)
	}
	return nil
}
