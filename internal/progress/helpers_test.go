package progress_test

import (
	"testing"

	"github.com/p-n-ai/pai-progress/internal/curriculum"
)

func intPtr(v int) *int { return &v }

// testCatalog builds course "math": A (no approval, no exam), B (approval,
// pass 70), C (no approval, pass 50, requires A and B); and course "art"
// with a single exam-less topic.
func testCatalog(t *testing.T) *curriculum.Graph {
	t.Helper()
	g, err := curriculum.NewGraph([]curriculum.Topic{
		{ID: "A", Name: "Variables", CourseID: "math", SequenceIndex: 1},
		{ID: "B", Name: "Equations", CourseID: "math", SequenceIndex: 2, RequiresTeacherApproval: true, PassingScore: intPtr(70)},
		{ID: "C", Name: "Inequalities", CourseID: "math", SequenceIndex: 3, PassingScore: intPtr(50),
			Prerequisites: curriculum.Prerequisites{Required: []string{"A", "B"}}},
		{ID: "P", Name: "Painting", CourseID: "art", SequenceIndex: 1},
	})
	if err != nil {
		t.Fatalf("NewGraph() error = %v", err)
	}
	return g
}
