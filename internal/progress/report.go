package progress

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const reportSheet = "Progress"

// StatusLabel renders a status for people, e.g. "Pending Approval".
func StatusLabel(s Status) string {
	// A Caser is stateful and must not be shared between goroutines.
	return cases.Title(language.English).String(strings.ReplaceAll(string(s), "_", " "))
}

// WriteCourseReport writes an XLSX workbook with one row per enrolled student
// and one column per topic, followed by the completion percentage.
func (q *QueryService) WriteCourseReport(ctx context.Context, courseID string, w io.Writer) error {
	topics, err := q.catalog.TopicsForCourse(courseID)
	if err != nil {
		return notFound(err)
	}
	students, err := q.store.StudentsInCourse(ctx, courseID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, 0, len(topics)+2)
	header = append(header, "Student")
	for _, t := range topics {
		name := t.Name
		if name == "" {
			name = t.ID
		}
		header = append(header, name)
	}
	header = append(header, "Completed %")
	if err := f.SetSheetRow(reportSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, studentID := range students {
		records, err := q.store.ListForStudentCourse(ctx, studentID, courseID)
		if err != nil {
			return err
		}
		row := make([]any, 0, len(records)+2)
		row = append(row, studentID)
		for _, r := range records {
			label := StatusLabel(r.Status)
			if r.ExamScore != nil {
				label = fmt.Sprintf("%s (%d)", label, *r.ExamScore)
			}
			row = append(row, label)
		}
		row = append(row, summarize(studentID, courseID, records).Percent)

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row for %s: %w", studentID, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
