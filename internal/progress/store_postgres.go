package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-progress/internal/platform/database"
)

const dbTimeout = 5 * time.Second

const recordColumns = `student_id, topic_id, course_id, status, approved_by_teacher_id,
	exam_score, exam_attempts, last_updated_at`

// PostgresStore is a PostgreSQL-backed Store. Updates take a row lock with
// SELECT ... FOR UPDATE inside a transaction.
type PostgresStore struct {
	pool    *pgxpool.Pool
	catalog Catalog
	now     func() time.Time
}

// NewPostgresStore creates a store over an already-migrated database.
func NewPostgresStore(pool *pgxpool.Pool, catalog Catalog) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool, catalog: catalog, now: time.Now}, nil
}

func (s *PostgresStore) Enroll(ctx context.Context, studentID, courseID string) error {
	if err := validateIDs(studentID, courseID); err != nil {
		return err
	}
	topics, err := s.catalog.TopicsForCourse(courseID)
	if err != nil {
		return notFound(err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO enrollments (student_id, course_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			studentID, courseID,
		); err != nil {
			return fmt.Errorf("insert enrollment: %w", err)
		}
		for _, t := range topics {
			rec, err := initialRecord(s.catalog, studentID, t, s.now())
			if err != nil {
				return err
			}
			if err := insertDefault(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) StudentsInCourse(ctx context.Context, courseID string) ([]string, error) {
	if _, err := s.catalog.TopicsForCourse(courseID); err != nil {
		return nil, notFound(err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT student_id FROM enrollments WHERE course_id = $1 ORDER BY student_id`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan enrollments: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Get(ctx context.Context, studentID, topicID string) (Record, error) {
	if err := validateIDs(studentID, topicID); err != nil {
		return Record{}, err
	}
	topic, err := lookupTopic(s.catalog, topicID)
	if err != nil {
		return Record{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var rec Record
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		rec, err = s.loadOrCreate(ctx, tx, studentID, topic.ID, topic.CourseID, false)
		return err
	})
	return rec, err
}

func (s *PostgresStore) ListForStudentCourse(ctx context.Context, studentID, courseID string) ([]Record, error) {
	if err := validateIDs(studentID, courseID); err != nil {
		return nil, err
	}
	topics, err := s.catalog.TopicsForCourse(courseID)
	if err != nil {
		return nil, notFound(err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	out := make([]Record, 0, len(topics))
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, t := range topics {
			rec, err := s.loadOrCreate(ctx, tx, studentID, t.ID, courseID, false)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, studentID, topicID string, fn UpdateFunc) (Record, error) {
	if err := validateIDs(studentID, topicID); err != nil {
		return Record{}, err
	}
	topic, err := lookupTopic(s.catalog, topicID)
	if err != nil {
		return Record{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var result Record
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rec, err := s.loadOrCreate(ctx, tx, studentID, topic.ID, topic.CourseID, true)
		if err != nil {
			return err
		}
		changed, err := fn(&rec)
		if err != nil {
			return err
		}
		if changed {
			if err := upsertRecord(ctx, tx, rec); err != nil {
				return err
			}
		}
		result = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return result, nil
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
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

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := checkEnrolled(ctx, tx, rec.StudentID, rec.CourseID); err != nil {
			return err
		}
		return upsertRecord(ctx, tx, rec)
	})
}

// loadOrCreate reads the record inside tx, inserting the default first if the
// row does not exist yet. With lock set the row stays locked until tx ends.
func (s *PostgresStore) loadOrCreate(ctx context.Context, tx pgx.Tx, studentID, topicID, courseID string, lock bool) (Record, error) {
	if err := checkEnrolled(ctx, tx, studentID, courseID); err != nil {
		return Record{}, err
	}

	topic, err := lookupTopic(s.catalog, topicID)
	if err != nil {
		return Record{}, err
	}
	def, err := initialRecord(s.catalog, studentID, topic, s.now())
	if err != nil {
		return Record{}, err
	}
	if err := insertDefault(ctx, tx, def); err != nil {
		return Record{}, err
	}

	query := `SELECT ` + recordColumns + ` FROM student_curriculum_progress
		 WHERE student_id = $1 AND topic_id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	rec, err := scanRecord(tx.QueryRow(ctx, query, studentID, topicID))
	if err != nil {
		return Record{}, fmt.Errorf("select progress: %w", err)
	}
	return rec, nil
}

func checkEnrolled(ctx context.Context, tx pgx.Tx, studentID, courseID string) error {
	var one int
	err := tx.QueryRow(ctx,
		`SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2`,
		studentID, courseID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return notEnrolled(studentID, courseID)
	}
	if err != nil {
		return fmt.Errorf("lookup enrollment: %w", err)
	}
	return nil
}

func insertDefault(ctx context.Context, tx pgx.Tx, rec Record) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO student_curriculum_progress (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, NULL, NULL, 0, $5)
		 ON CONFLICT (student_id, topic_id) DO NOTHING`,
		rec.StudentID, rec.TopicID, rec.CourseID, string(rec.Status), rec.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert default progress: %w", err)
	}
	return nil
}

func upsertRecord(ctx context.Context, tx pgx.Tx, rec Record) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO student_curriculum_progress (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (student_id, topic_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   approved_by_teacher_id = EXCLUDED.approved_by_teacher_id,
		   exam_score = EXCLUDED.exam_score,
		   exam_attempts = EXCLUDED.exam_attempts,
		   last_updated_at = EXCLUDED.last_updated_at`,
		rec.StudentID,
		rec.TopicID,
		rec.CourseID,
		string(rec.Status),
		rec.ApprovedByTeacherID,
		rec.ExamScore,
		rec.ExamAttempts,
		rec.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var status string
	if err := row.Scan(
		&rec.StudentID,
		&rec.TopicID,
		&rec.CourseID,
		&status,
		&rec.ApprovedByTeacherID,
		&rec.ExamScore,
		&rec.ExamAttempts,
		&rec.LastUpdatedAt,
	); err != nil {
		return Record{}, err
	}
	st, err := ParseStatus(status)
	if err != nil {
		return Record{}, err
	}
	rec.Status = st
	return rec, nil
}
