package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-progress/internal/curriculum"
)

// MachineConfig holds dependencies and policy for the state machine.
type MachineConfig struct {
	Catalog Catalog
	Store   Store
	Events  EventLogger
	Metrics *Metrics
	Clock   func() time.Time

	// AutoCascade runs CheckAndUpdateProgress after every transition that
	// lands in Completed.
	AutoCascade bool
	// ManualExamUnlock makes approval of an exam-bearing topic stop at
	// Approved; a teacher must then call UnlockExam.
	ManualExamUnlock bool
	// MaxExamAttempts bounds CompleteExam calls per topic. Zero means unbounded.
	MaxExamAttempts int
}

// Machine applies the progress transition rules. It is the only writer of
// progress records and is safe for concurrent use; serialization per
// (student, topic) is delegated to the Store.
type Machine struct {
	catalog          Catalog
	store            Store
	events           EventLogger
	metrics          *Metrics
	now              func() time.Time
	autoCascade      bool
	manualExamUnlock bool
	maxExamAttempts  int
}

// NewMachine creates a state machine.
func NewMachine(cfg MachineConfig) *Machine {
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore(cfg.Catalog)
	}
	return &Machine{
		catalog:          cfg.Catalog,
		store:            store,
		events:           events,
		metrics:          cfg.Metrics,
		now:              clock,
		autoCascade:      cfg.AutoCascade,
		manualExamUnlock: cfg.ManualExamUnlock,
		maxExamAttempts:  cfg.MaxExamAttempts,
	}
}

// Enroll registers a student in a course, creating the default records.
func (m *Machine) Enroll(ctx context.Context, studentID, courseID string) error {
	if err := m.store.Enroll(ctx, studentID, courseID); err != nil {
		m.metrics.rejected(OpEnroll, err)
		return err
	}
	slog.Info("student enrolled", "student_id", studentID, "course_id", courseID)
	return nil
}

// MarkTopicComplete records that the student finished the topic's material.
func (m *Machine) MarkTopicComplete(ctx context.Context, studentID, topicID string) (Record, error) {
	return m.apply(ctx, OpMarkComplete, "", studentID, topicID,
		func(topic curriculum.Topic, r *Record) (bool, error) {
			if r.Status != StatusInProgress {
				return false, rejectTransition(OpMarkComplete, r, "topic is not in progress")
			}
			switch {
			case topic.RequiresTeacherApproval:
				r.Status = StatusPendingApproval
			case topic.HasExam():
				r.Status = StatusExamUnlocked
			default:
				r.Status = StatusCompleted
			}
			return true, nil
		})
}

// ApproveTopicCompletion records a teacher's sign-off. A teacher may approve a
// topic the student has not yet submitted; that counts as completing it.
// Approving a topic that is already past the approval gate succeeds without
// changing it.
func (m *Machine) ApproveTopicCompletion(ctx context.Context, teacherID, studentID, topicID string) (Record, error) {
	if err := validateIDs(teacherID); err != nil {
		m.metrics.rejected(OpApprove, err)
		return Record{}, fmt.Errorf("teacher id: %w", err)
	}
	return m.apply(ctx, OpApprove, teacherID, studentID, topicID,
		func(topic curriculum.Topic, r *Record) (bool, error) {
			if r.Status.pastApproval() {
				return false, nil
			}
			if r.Status != StatusPendingApproval && r.Status != StatusInProgress {
				return false, rejectTransition(OpApprove, r, "topic is not awaiting approval")
			}
			r.ApprovedByTeacherID = &teacherID
			switch {
			case !topic.HasExam():
				r.Status = StatusCompleted
			case m.manualExamUnlock:
				r.Status = StatusApproved
			default:
				r.Status = StatusExamUnlocked
			}
			return true, nil
		})
}

// UnlockExam opens the exam for a topic awaiting or holding approval.
// Unlocking an exam that is already open or taken succeeds without changes.
func (m *Machine) UnlockExam(ctx context.Context, teacherID, studentID, topicID string) (Record, error) {
	if err := validateIDs(teacherID); err != nil {
		m.metrics.rejected(OpUnlockExam, err)
		return Record{}, fmt.Errorf("teacher id: %w", err)
	}
	return m.apply(ctx, OpUnlockExam, teacherID, studentID, topicID,
		func(topic curriculum.Topic, r *Record) (bool, error) {
			if !topic.HasExam() {
				return false, rejectTransition(OpUnlockExam, r, "topic has no exam")
			}
			switch r.Status {
			case StatusExamUnlocked, StatusExamCompleted, StatusFailed, StatusCompleted:
				return false, nil
			case StatusPendingApproval, StatusApproved:
				if r.ApprovedByTeacherID == nil {
					r.ApprovedByTeacherID = &teacherID
				}
				r.Status = StatusExamUnlocked
				return true, nil
			default:
				return false, rejectTransition(OpUnlockExam, r, "topic is not approved")
			}
		})
}

// CompleteExam records an exam score. A failed exam may be retaken; every
// call overwrites the score and recomputes the outcome.
func (m *Machine) CompleteExam(ctx context.Context, studentID, topicID string, score int) (Record, error) {
	if score < 0 || score > 100 {
		err := fmt.Errorf("%w: score %d outside 0-100", ErrInvalidInput, score)
		m.metrics.rejected(OpCompleteExam, err)
		return Record{}, err
	}
	return m.apply(ctx, OpCompleteExam, "", studentID, topicID,
		func(topic curriculum.Topic, r *Record) (bool, error) {
			if !topic.HasExam() {
				return false, rejectTransition(OpCompleteExam, r, "topic has no exam")
			}
			switch r.Status {
			case StatusExamUnlocked, StatusExamCompleted, StatusFailed:
			default:
				return false, rejectTransition(OpCompleteExam, r, "exam is not open")
			}
			if m.maxExamAttempts > 0 && r.ExamAttempts >= m.maxExamAttempts {
				return false, rejectTransition(OpCompleteExam, r,
					fmt.Sprintf("exam attempt limit %d reached", m.maxExamAttempts))
			}
			s := score
			r.ExamScore = &s
			r.ExamAttempts++
			if score >= *topic.PassingScore {
				r.Status = StatusCompleted
			} else {
				r.Status = StatusFailed
			}
			return true, nil
		})
}

// CheckAndUpdateProgress unlocks the next topic of the course once topicID is
// Completed. It reports whether a topic was unlocked and is safe to call any
// number of times.
func (m *Machine) CheckAndUpdateProgress(ctx context.Context, studentID, topicID string) (bool, error) {
	cur, err := m.store.Get(ctx, studentID, topicID)
	if err != nil {
		m.metrics.rejected(OpCascade, err)
		return false, err
	}
	if cur.Status != StatusCompleted {
		return false, nil
	}

	next, ok, err := m.catalog.NextTopic(topicID)
	if err != nil {
		err = notFound(err)
		m.metrics.rejected(OpCascade, err)
		return false, err
	}
	if !ok {
		return false, nil
	}

	ready, err := m.prerequisitesMet(ctx, studentID, next)
	if err != nil {
		m.metrics.rejected(OpCascade, err)
		return false, err
	}
	if !ready {
		slog.Debug("next topic prerequisites incomplete",
			"student_id", studentID, "topic_id", next.ID)
		return false, nil
	}

	var unlocked bool
	_, err = m.apply(ctx, OpCascade, "", studentID, next.ID,
		func(_ curriculum.Topic, r *Record) (bool, error) {
			unlocked = r.Status == StatusLocked
			if !unlocked {
				return false, nil
			}
			r.Status = StatusInProgress
			return true, nil
		})
	if err != nil {
		return false, err
	}
	return unlocked, nil
}

func (m *Machine) prerequisitesMet(ctx context.Context, studentID string, topic curriculum.Topic) (bool, error) {
	for _, req := range topic.Prerequisites.Required {
		rec, err := m.store.Get(ctx, studentID, req)
		if err != nil {
			return false, err
		}
		if rec.Status != StatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

type step func(topic curriculum.Topic, r *Record) (bool, error)

// apply runs one guarded transition through Store.Update, then publishes the
// event. Nothing is written when the step rejects.
func (m *Machine) apply(ctx context.Context, op Op, actorID, studentID, topicID string, fn step) (Record, error) {
	topic, err := m.catalog.Topic(topicID)
	if err != nil {
		err = notFound(err)
		m.metrics.rejected(op, err)
		return Record{}, err
	}

	var from Status
	var changed bool
	rec, err := m.store.Update(ctx, studentID, topicID, func(r *Record) (bool, error) {
		from = r.Status
		ok, err := fn(topic, r)
		if err != nil || !ok {
			changed = false
			return false, err
		}
		r.LastUpdatedAt = m.now()
		changed = true
		return true, nil
	})
	if err != nil {
		m.metrics.rejected(op, err)
		var te *TransitionError
		if errors.As(err, &te) {
			slog.Debug("transition rejected", "op", op, "student_id", studentID,
				"topic_id", topicID, "status", te.Status, "reason", te.Reason)
		} else if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidInput) {
			slog.Error("progress update failed", "op", op, "student_id", studentID,
				"topic_id", topicID, "error", err)
		}
		return Record{}, err
	}
	if !changed {
		return rec, nil
	}

	m.metrics.applied(op, rec.Status)
	slog.Info("progress transition",
		"op", op,
		"student_id", studentID,
		"topic_id", topicID,
		"from", from,
		"to", rec.Status,
	)

	event := TransitionEvent{
		ID:        uuid.NewString(),
		Op:        op,
		StudentID: studentID,
		TopicID:   topicID,
		CourseID:  rec.CourseID,
		From:      from,
		To:        rec.Status,
		ActorID:   actorID,
		Score:     rec.ExamScore,
		CreatedAt: rec.LastUpdatedAt,
	}
	if op != OpCompleteExam {
		event.Score = nil
	}
	if err := m.events.LogEvent(event); err != nil {
		slog.Warn("failed to log progress event", "op", op, "error", err)
	}

	if m.autoCascade && rec.Status == StatusCompleted && op != OpCascade {
		if _, err := m.CheckAndUpdateProgress(ctx, studentID, topicID); err != nil {
			slog.Warn("automatic cascade failed", "student_id", studentID,
				"topic_id", topicID, "error", err)
		}
	}

	return rec, nil
}
