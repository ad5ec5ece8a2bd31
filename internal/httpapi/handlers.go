package httpapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/p-n-ai/pai-progress/internal/progress"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type examRequest struct {
	Score *int `json:"score" binding:"required"`
}

// courseProgressView is a student's course records with the derived summary.
type courseProgressView struct {
	Summary progress.Summary  `json:"summary"`
	Topics  []progress.Record `json:"topics"`
}

type checkView struct {
	Unlocked bool `json:"unlocked"`
}

func (s *server) listCourses(c *gin.Context) {
	success(c, s.catalog.Courses())
}

func (s *server) listTopics(c *gin.Context) {
	topics, err := s.catalog.TopicsForCourse(c.Param("courseId"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, topics)
}

func (s *server) enroll(c *gin.Context) {
	courseID, studentID := c.Param("courseId"), c.Param("studentId")
	if err := s.machine.Enroll(c.Request.Context(), studentID, courseID); err != nil {
		fail(c, err)
		return
	}
	records, err := s.query.GetStudentProgress(c.Request.Context(), studentID, courseID)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, records)
}

func (s *server) studentProgress(c *gin.Context) {
	ctx := c.Request.Context()
	studentID, courseID := c.Param("studentId"), c.Param("courseId")

	records, err := s.query.GetStudentProgress(ctx, studentID, courseID)
	if err != nil {
		fail(c, err)
		return
	}
	summary, err := s.query.CourseProgress(ctx, studentID, courseID)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, courseProgressView{Summary: summary, Topics: records})
}

func (s *server) topicProgress(c *gin.Context) {
	rec, err := s.query.GetTopicProgress(c.Request.Context(), c.Param("studentId"), c.Param("topicId"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, rec)
}

func (s *server) markComplete(c *gin.Context) {
	rec, err := s.machine.MarkTopicComplete(c.Request.Context(), c.Param("studentId"), c.Param("topicId"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, rec)
}

func (s *server) approve(c *gin.Context) {
	rec, err := s.machine.ApproveTopicCompletion(c.Request.Context(),
		actorFrom(c).ID, c.Param("studentId"), c.Param("topicId"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, rec)
}

func (s *server) unlockExam(c *gin.Context) {
	rec, err := s.machine.UnlockExam(c.Request.Context(),
		actorFrom(c).ID, c.Param("studentId"), c.Param("topicId"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, rec)
}

func (s *server) completeExam(c *gin.Context) {
	var req examRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: %v", progress.ErrInvalidInput, err))
		return
	}
	rec, err := s.machine.CompleteExam(c.Request.Context(), c.Param("studentId"), c.Param("topicId"), *req.Score)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, rec)
}

func (s *server) checkProgress(c *gin.Context) {
	unlocked, err := s.machine.CheckAndUpdateProgress(c.Request.Context(), c.Param("studentId"), c.Param("topicId"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, checkView{Unlocked: unlocked})
}

func (s *server) courseReport(c *gin.Context) {
	courseID := c.Param("courseId")

	var buf bytes.Buffer
	if err := s.query.WriteCourseReport(c.Request.Context(), courseID, &buf); err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-progress.xlsx"`, courseID))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
