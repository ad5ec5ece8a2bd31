package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Op names a state machine operation.
type Op string

const (
	OpMarkComplete Op = "mark_topic_complete"
	OpApprove      Op = "approve_topic_completion"
	OpUnlockExam   Op = "unlock_exam"
	OpCompleteExam Op = "complete_exam"
	OpCascade      Op = "check_and_update_progress"
	OpEnroll       Op = "enroll"
)

// TransitionEvent records one applied transition.
type TransitionEvent struct {
	ID        string    `json:"id"`
	Op        Op        `json:"op"`
	StudentID string    `json:"student_id"`
	TopicID   string    `json:"topic_id"`
	CourseID  string    `json:"course_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ActorID   string    `json:"actor_id,omitempty"`
	Score     *int      `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventLogger receives transition events after they are committed.
type EventLogger interface {
	LogEvent(event TransitionEvent) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(TransitionEvent) error {
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []TransitionEvent
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []TransitionEvent{},
	}
}

func (l *MemoryEventLogger) LogEvent(event TransitionEvent) error {
	if event.Op == "" {
		return fmt.Errorf("op is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []TransitionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]TransitionEvent{}, l.events...)
}

// PostgresEventLogger inserts events into the progress_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

func (l *PostgresEventLogger) LogEvent(event TransitionEvent) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if event.Op == "" {
		return fmt.Errorf("op is required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	_, err := l.pool.Exec(ctx,
		`INSERT INTO progress_events
		   (id, op, student_id, topic_id, course_id, from_status, to_status, actor_id, score, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID,
		string(event.Op),
		event.StudentID,
		event.TopicID,
		event.CourseID,
		string(event.From),
		string(event.To),
		nullIfEmpty(event.ActorID),
		event.Score,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"op", event.Op,
		"student_id", event.StudentID,
		"topic_id", event.TopicID,
	)
	return nil
}

// MultiEventLogger fans an event out to several loggers. Every logger is
// called; the first error is returned.
type MultiEventLogger []EventLogger

func (m MultiEventLogger) LogEvent(event TransitionEvent) error {
	var first error
	for _, l := range m {
		if err := l.LogEvent(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Broadcaster delivers events to live subscribers. Slow subscribers drop
// events rather than block the machine.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[chan TransitionEvent]struct{}
	buffer int
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold buffer events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{
		subs:   make(map[chan TransitionEvent]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a subscriber. Call cancel to unsubscribe; it closes the channel.
func (b *Broadcaster) Subscribe() (events <-chan TransitionEvent, cancel func()) {
	ch := make(chan TransitionEvent, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) LogEvent(event TransitionEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			slog.Warn("dropping progress event for slow subscriber", "event_id", event.ID)
		}
	}
	return nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
