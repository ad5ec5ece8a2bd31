package progress_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-progress/internal/progress"
)

func TestQueryService_GetStudentProgress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	records, err := f.query.GetStudentProgress(ctx, "s1", "math")
	if err != nil {
		t.Fatalf("GetStudentProgress() error = %v", err)
	}
	want := []string{"A", "B", "C"}
	if len(records) != len(want) {
		t.Fatalf("len(records) = %d, want %d", len(records), len(want))
	}
	for i, id := range want {
		if records[i].TopicID != id {
			t.Errorf("records[%d] = %s, want %s", i, records[i].TopicID, id)
		}
	}

	if _, err := f.query.GetStudentProgress(ctx, "s1", "history"); !errors.Is(err, progress.ErrNotFound) {
		t.Errorf("unknown course error = %v, want ErrNotFound", err)
	}
	if _, err := f.query.GetStudentProgress(ctx, "s1", "art"); !errors.Is(err, progress.ErrNotFound) {
		t.Errorf("unenrolled course error = %v, want ErrNotFound", err)
	}
}

func TestQueryService_ReadsDoNotChangeStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.query.GetTopicProgress(ctx, "s1", "B"); err != nil {
			t.Fatalf("GetTopicProgress() error = %v", err)
		}
	}
	if got := f.status(t, "B"); got != progress.StatusLocked {
		t.Errorf("B = %s after reads, want locked", got)
	}
	if len(f.events.Events()) != 0 {
		t.Error("reads should not emit events")
	}
}

func TestQueryService_CourseProgress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, _ = f.machine.MarkTopicComplete(ctx, "s1", "A")

	sum, err := f.query.CourseProgress(ctx, "s1", "math")
	if err != nil {
		t.Fatalf("CourseProgress() error = %v", err)
	}
	if sum.Completed != 1 || sum.Total != 3 {
		t.Errorf("summary = %d/%d, want 1/3", sum.Completed, sum.Total)
	}
	if sum.Percent < 33.3 || sum.Percent > 33.4 {
		t.Errorf("Percent = %v, want ~33.3", sum.Percent)
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[progress.Status]string{
		progress.StatusLocked:          "Locked",
		progress.StatusPendingApproval: "Pending Approval",
		progress.StatusExamUnlocked:    "Exam Unlocked",
	}
	for status, want := range tests {
		if got := progress.StatusLabel(status); got != want {
			t.Errorf("StatusLabel(%s) = %q, want %q", status, got, want)
		}
	}
}

func TestQueryService_WriteCourseReport(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.store.Enroll(ctx, "s2", "math"); err != nil {
		t.Fatalf("Enroll(s2) error = %v", err)
	}
	advanceToPendingB(t, f)
	_, _ = f.machine.ApproveTopicCompletion(ctx, "teacher-1", "s1", "B")
	_, _ = f.machine.CompleteExam(ctx, "s1", "B", 40)

	var buf bytes.Buffer
	if err := f.query.WriteCourseReport(ctx, "math", &buf); err != nil {
		t.Fatalf("WriteCourseReport() error = %v", err)
	}

	book, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer book.Close()

	rows, err := book.GetRows("Progress")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want header + 2 students", len(rows))
	}
	wantHeader := []string{"Student", "Variables", "Equations", "Inequalities", "Completed %"}
	for i, want := range wantHeader {
		if rows[0][i] != want {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], want)
		}
	}
	if rows[1][0] != "s1" || rows[1][1] != "Completed" || rows[1][2] != "Failed (40)" {
		t.Errorf("s1 row = %v", rows[1])
	}
	if rows[2][0] != "s2" || rows[2][1] != "In Progress" || rows[2][2] != "Locked" {
		t.Errorf("s2 row = %v", rows[2])
	}

	if err := f.query.WriteCourseReport(ctx, "history", &buf); !errors.Is(err, progress.ErrNotFound) {
		t.Errorf("unknown course error = %v, want ErrNotFound", err)
	}
}
