package curriculum

// Topic is one teachable unit within a course, loaded from YAML.
type Topic struct {
	ID                      string        `yaml:"id" json:"id"`
	Name                    string        `yaml:"name" json:"name"`
	CourseID                string        `yaml:"course_id" json:"course_id"`
	SequenceIndex           int           `yaml:"sequence_index" json:"sequence_index"`
	RequiresTeacherApproval bool          `yaml:"requires_teacher_approval" json:"requires_teacher_approval"`
	PassingScore            *int          `yaml:"passing_score" json:"passing_score,omitempty"`
	Prerequisites           Prerequisites `yaml:"prerequisites" json:"prerequisites"`
}

// HasExam reports whether the topic ends with a scored exam.
func (t Topic) HasExam() bool {
	return t.PassingScore != nil
}

// Prerequisites holds topics that must be completed before this one unlocks.
type Prerequisites struct {
	Required    []string `yaml:"required" json:"required,omitempty"`
	Recommended []string `yaml:"recommended" json:"recommended,omitempty"`
}
