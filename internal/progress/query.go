package progress

import (
	"context"
)

// QueryService serves read-only projections of progress. It never changes a
// record's status.
type QueryService struct {
	catalog Catalog
	store   Store
}

// NewQueryService creates a query service.
func NewQueryService(catalog Catalog, store Store) *QueryService {
	return &QueryService{catalog: catalog, store: store}
}

// GetStudentProgress returns the student's records for a course in topic order.
func (q *QueryService) GetStudentProgress(ctx context.Context, studentID, courseID string) ([]Record, error) {
	return q.store.ListForStudentCourse(ctx, studentID, courseID)
}

// GetTopicProgress returns one record. It fails with ErrNotFound when the
// topic is unknown or the student is not enrolled in the topic's course.
func (q *QueryService) GetTopicProgress(ctx context.Context, studentID, topicID string) (Record, error) {
	return q.store.Get(ctx, studentID, topicID)
}

// CourseProgress derives completed/total for the student's course.
func (q *QueryService) CourseProgress(ctx context.Context, studentID, courseID string) (Summary, error) {
	records, err := q.store.ListForStudentCourse(ctx, studentID, courseID)
	if err != nil {
		return Summary{}, err
	}
	return summarize(studentID, courseID, records), nil
}
