package progress

import (
	"errors"
	"fmt"

	"github.com/p-n-ai/pai-progress/internal/curriculum"
)

// Error kinds for errors.Is checks at the transport boundary.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("concurrent modification")
)

// TransitionError describes a rejected guard. It matches ErrInvalidTransition.
type TransitionError struct {
	Op        Op
	StudentID string
	TopicID   string
	Status    Status
	Reason    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s/%s from %s: %s", e.Op, e.StudentID, e.TopicID, e.Status, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func rejectTransition(op Op, rec *Record, reason string) error {
	return &TransitionError{
		Op:        op,
		StudentID: rec.StudentID,
		TopicID:   rec.TopicID,
		Status:    rec.Status,
		Reason:    reason,
	}
}

// notFound maps curriculum lookup failures onto ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, curriculum.ErrTopicNotFound) || errors.Is(err, curriculum.ErrCourseNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

func notEnrolled(studentID, courseID string) error {
	return fmt.Errorf("%w: student %s is not enrolled in course %s", ErrNotFound, studentID, courseID)
}

// errorKind names the error class for metrics and logs.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
