package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisMaxRetries   = 16
	defaultRedisRetryBackoff = 5 * time.Millisecond
	maxRedisRetryBackoff     = 250 * time.Millisecond
)

// redisReader is the read subset shared by *redis.Client and *redis.Tx.
type redisReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SIsMember(ctx context.Context, key string, member any) *redis.BoolCmd
}

// RedisStore is a Redis-backed Store. Updates from one process are queued on
// a per-key mutex. Across processes they are optimistic: the record key is
// WATCHed, fn runs against the read value, and the write commits in
// MULTI/EXEC only if no other client touched the key in between. A lost race
// is retried after a jittered exponential backoff.
type RedisStore struct {
	// MaxRetries bounds optimistic retries per Update before ErrConflict.
	MaxRetries int
	// RetryBackoff is the first wait after a lost race; later waits grow
	// exponentially up to 250ms.
	RetryBackoff time.Duration

	client  *redis.Client
	catalog Catalog
	prefix  string
	now     func() time.Time
	locks   keyLocks
}

// NewRedisStore creates a store that keeps its keys under prefix.
func NewRedisStore(client *redis.Client, catalog Catalog, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if prefix == "" {
		prefix = "progress"
	}
	return &RedisStore{
		MaxRetries:   defaultRedisMaxRetries,
		RetryBackoff: defaultRedisRetryBackoff,
		client:       client,
		catalog:      catalog,
		prefix:       prefix,
		now:          time.Now,
	}, nil
}

func (s *RedisStore) recordKey(studentID, topicID string) string {
	return fmt.Sprintf("%s:record:%s:%s", s.prefix, studentID, topicID)
}

func (s *RedisStore) enrollmentKey(courseID string) string {
	return fmt.Sprintf("%s:enrollment:%s", s.prefix, courseID)
}

func (s *RedisStore) Enroll(ctx context.Context, studentID, courseID string) error {
	if err := validateIDs(studentID, courseID); err != nil {
		return err
	}
	topics, err := s.catalog.TopicsForCourse(courseID)
	if err != nil {
		return notFound(err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, t := range topics {
			rec, err := initialRecord(s.catalog, studentID, t, s.now())
			if err != nil {
				return err
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal progress: %w", err)
			}
			p.SetNX(ctx, s.recordKey(studentID, t.ID), data, 0)
		}
		p.SAdd(ctx, s.enrollmentKey(courseID), studentID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("enroll: %w", err)
	}
	return nil
}

func (s *RedisStore) StudentsInCourse(ctx context.Context, courseID string) ([]string, error) {
	if _, err := s.catalog.TopicsForCourse(courseID); err != nil {
		return nil, notFound(err)
	}
	ids, err := s.client.SMembers(ctx, s.enrollmentKey(courseID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RedisStore) Get(ctx context.Context, studentID, topicID string) (Record, error) {
	if err := validateIDs(studentID, topicID); err != nil {
		return Record{}, err
	}
	return s.loadOrCreate(ctx, studentID, topicID)
}

func (s *RedisStore) ListForStudentCourse(ctx context.Context, studentID, courseID string) ([]Record, error) {
	if err := validateIDs(studentID, courseID); err != nil {
		return nil, err
	}
	topics, err := s.catalog.TopicsForCourse(courseID)
	if err != nil {
		return nil, notFound(err)
	}

	out := make([]Record, 0, len(topics))
	for _, t := range topics {
		rec, err := s.loadOrCreate(ctx, studentID, t.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) loadOrCreate(ctx context.Context, studentID, topicID string) (Record, error) {
	topic, err := lookupTopic(s.catalog, topicID)
	if err != nil {
		return Record{}, err
	}
	if err := s.checkEnrolled(ctx, s.client, studentID, topic.CourseID); err != nil {
		return Record{}, err
	}

	key := s.recordKey(studentID, topicID)
	def, err := initialRecord(s.catalog, studentID, topic, s.now())
	if err != nil {
		return Record{}, err
	}
	data, err := json.Marshal(def)
	if err != nil {
		return Record{}, fmt.Errorf("marshal progress: %w", err)
	}
	if err := s.client.SetNX(ctx, key, data, 0).Err(); err != nil {
		return Record{}, fmt.Errorf("create progress: %w", err)
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return Record{}, fmt.Errorf("get progress: %w", err)
	}
	return decodeRecord(raw)
}

func (s *RedisStore) Update(ctx context.Context, studentID, topicID string, fn UpdateFunc) (Record, error) {
	if err := validateIDs(studentID, topicID); err != nil {
		return Record{}, err
	}
	topic, err := lookupTopic(s.catalog, topicID)
	if err != nil {
		return Record{}, err
	}
	key := s.recordKey(studentID, topicID)

	unlock := s.locks.lock(key)
	defer unlock()

	var result Record
	attempt := 0
	op := func() error {
		attempt++
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			if err := s.checkEnrolled(ctx, tx, studentID, topic.CourseID); err != nil {
				return err
			}

			rec, existed, err := s.read(ctx, tx, key)
			if err != nil {
				return err
			}
			if !existed {
				if rec, err = initialRecord(s.catalog, studentID, topic, s.now()); err != nil {
					return err
				}
			}

			changed, err := fn(&rec)
			if err != nil {
				return err
			}
			result = rec
			if !changed && existed {
				return nil
			}

			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal progress: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, data, 0)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			slog.Debug("progress update raced, retrying",
				"student_id", studentID, "topic_id", topicID, "attempt", attempt)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	err = backoff.Retry(op, s.retryPolicy(ctx))
	if errors.Is(err, redis.TxFailedErr) {
		return Record{}, fmt.Errorf("%w: %s/%s after %d attempts", ErrConflict, studentID, topicID, attempt)
	}
	if err != nil {
		return Record{}, err
	}
	return result, nil
}

func (s *RedisStore) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.RetryBackoff
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultRedisRetryBackoff
	}
	b.MaxInterval = maxRedisRetryBackoff
	b.MaxElapsedTime = 0
	retries := s.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	topic, err := lookupTopic(s.catalog, rec.TopicID)
	if err != nil {
		return err
	}
	rec.CourseID = topic.CourseID
	if rec.LastUpdatedAt.IsZero() {
		rec.LastUpdatedAt = s.now()
	}

	_, err = s.Update(ctx, rec.StudentID, rec.TopicID, func(cur *Record) (bool, error) {
		*cur = rec
		return true, nil
	})
	return err
}

func (s *RedisStore) read(ctx context.Context, c redisReader, key string) (Record, bool, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get progress: %w", err)
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *RedisStore) checkEnrolled(ctx context.Context, c redisReader, studentID, courseID string) error {
	ok, err := c.SIsMember(ctx, s.enrollmentKey(courseID), studentID).Result()
	if err != nil {
		return fmt.Errorf("lookup enrollment: %w", err)
	}
	if !ok {
		return notEnrolled(studentID, courseID)
	}
	return nil
}

func decodeRecord(raw []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode progress: %w", err)
	}
	if !rec.Status.Valid() {
		return Record{}, fmt.Errorf("decode progress: unknown status %q", rec.Status)
	}
	return rec, nil
}

// keyLocks hands out one mutex per key and drops it once no caller holds or
// waits on it.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyLocks) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
