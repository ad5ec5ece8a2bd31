package progress

import (
	"context"
	"sort"
	"sync"
	"time"
)

type recordKey struct {
	studentID string
	topicID   string
}

// MemoryStore is an in-memory Store. Updates to one key are serialized by a
// per-key mutex; different keys proceed in parallel.
type MemoryStore struct {
	catalog Catalog
	now     func() time.Time

	mu          sync.RWMutex
	records     map[recordKey]Record
	enrollments map[string]map[string]struct{} // course -> students
	locks       map[recordKey]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory store over catalog.
func NewMemoryStore(catalog Catalog) *MemoryStore {
	return &MemoryStore{
		catalog:     catalog,
		now:         time.Now,
		records:     make(map[recordKey]Record),
		enrollments: make(map[string]map[string]struct{}),
		locks:       make(map[recordKey]*sync.Mutex),
	}
}

func (s *MemoryStore) Enroll(_ context.Context, studentID, courseID string) error {
	if err := validateIDs(studentID, courseID); err != nil {
		return err
	}
	topics, err := s.catalog.TopicsForCourse(courseID)
	if err != nil {
		return notFound(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	students, ok := s.enrollments[courseID]
	if !ok {
		students = make(map[string]struct{})
		s.enrollments[courseID] = students
	}
	students[studentID] = struct{}{}

	for _, t := range topics {
		k := recordKey{studentID, t.ID}
		if _, exists := s.records[k]; exists {
			continue
		}
		rec, err := initialRecord(s.catalog, studentID, t, s.now())
		if err != nil {
			return err
		}
		s.records[k] = rec
	}
	return nil
}

func (s *MemoryStore) StudentsInCourse(_ context.Context, courseID string) ([]string, error) {
	if _, err := s.catalog.TopicsForCourse(courseID); err != nil {
		return nil, notFound(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.enrollments[courseID]))
	for id := range s.enrollments[courseID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Get(_ context.Context, studentID, topicID string) (Record, error) {
	if err := validateIDs(studentID, topicID); err != nil {
		return Record{}, err
	}
	topic, err := lookupTopic(s.catalog, topicID)
	if err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(studentID, topic.ID, topic.CourseID)
}

// getLocked returns the record, creating the default one if needed.
// Caller holds s.mu for writing.
func (s *MemoryStore) getLocked(studentID, topicID, courseID string) (Record, error) {
	if _, ok := s.enrollments[courseID][studentID]; !ok {
		return Record{}, notEnrolled(studentID, courseID)
	}
	k := recordKey{studentID, topicID}
	if rec, ok := s.records[k]; ok {
		return cloneRecord(rec), nil
	}
	topic, err := lookupTopic(s.catalog, topicID)
	if err != nil {
		return Record{}, err
	}
	rec, err := initialRecord(s.catalog, studentID, topic, s.now())
	if err != nil {
		return Record{}, err
	}
	s.records[k] = rec
	return rec, nil
}

func (s *MemoryStore) ListForStudentCourse(_ context.Context, studentID, courseID string) ([]Record, error) {
	if err := validateIDs(studentID, courseID); err != nil {
		return nil, err
	}
	topics, err := s.catalog.TopicsForCourse(courseID)
	if err != nil {
		return nil, notFound(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(topics))
	for _, t := range topics {
		rec, err := s.getLocked(studentID, t.ID, courseID)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, studentID, topicID string, fn UpdateFunc) (Record, error) {
	if err := validateIDs(studentID, topicID); err != nil {
		return Record{}, err
	}
	topic, err := lookupTopic(s.catalog, topicID)
	if err != nil {
		return Record{}, err
	}

	lock := s.keyLock(recordKey{studentID, topicID})
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	rec, err := s.getLocked(studentID, topicID, topic.CourseID)
	s.mu.Unlock()
	if err != nil {
		return Record{}, err
	}

	// rec is a copy, so an aborted update leaves the stored record intact.
	next := cloneRecord(rec)
	changed, err := fn(&next)
	if err != nil {
		return Record{}, err
	}
	if !changed {
		return rec, nil
	}

	s.mu.Lock()
	s.records[recordKey{studentID, topicID}] = cloneRecord(next)
	s.mu.Unlock()
	return next, nil
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
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

	k := recordKey{rec.StudentID, rec.TopicID}
	lock := s.keyLock(k)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrollments[topic.CourseID][rec.StudentID]; !ok {
		return notEnrolled(rec.StudentID, topic.CourseID)
	}
	s.records[k] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) keyLock(k recordKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[k]
	if !ok {
		l = &sync.Mutex{}
		s.locks[k] = l
	}
	return l
}

// cloneRecord copies the pointer fields so callers cannot alias stored state.
func cloneRecord(r Record) Record {
	if r.ApprovedByTeacherID != nil {
		v := *r.ApprovedByTeacherID
		r.ApprovedByTeacherID = &v
	}
	if r.ExamScore != nil {
		v := *r.ExamScore
		r.ExamScore = &v
	}
	return r
}
