// Package httpapi exposes curriculum progress over HTTP with gin.
package httpapi

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/p-n-ai/pai-progress/internal/access"
	"github.com/p-n-ai/pai-progress/internal/curriculum"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

const readyTimeout = 2 * time.Second

// Catalog lists the curriculum served by the API.
type Catalog interface {
	Courses() []string
	TopicsForCourse(courseID string) ([]curriculum.Topic, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Registry is where request metrics are registered and gathered from.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// Config wires the router's dependencies. Feed, Registry and Checks are
// optional.
type Config struct {
	Catalog  Catalog
	Machine  *progress.Machine
	Query    *progress.QueryService
	Auth     *access.Authenticator
	Feed     *progress.Broadcaster
	Registry Registry
	Checks   map[string]HealthChecker
}

type server struct {
	catalog Catalog
	machine *progress.Machine
	query   *progress.QueryService
	feed    *progress.Broadcaster
	checks  map[string]HealthChecker
}

// NewRouter builds the HTTP handler.
func NewRouter(cfg Config) *gin.Engine {
	s := &server{
		catalog: cfg.Catalog,
		machine: cfg.Machine,
		query:   cfg.Query,
		feed:    cfg.Feed,
		checks:  cfg.Checks,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	if cfg.Registry != nil {
		r.Use(NewHTTPMetrics(cfg.Registry).middleware())
		h := promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})
		r.GET("/metrics", gin.WrapH(h))
	}

	r.GET("/healthz", s.healthz)
	r.GET("/readyz", s.readyz)

	staff := requireRole(access.RoleTeacher, access.RoleAdmin)
	self := requireSelfOrStaff()

	api := r.Group("/api", authenticate(cfg.Auth, false))
	{
		api.GET("/courses", s.listCourses)
		api.GET("/courses/:courseId/topics", s.listTopics)
		api.POST("/courses/:courseId/students/:studentId/enroll", staff, s.enroll)
		api.GET("/courses/:courseId/report.xlsx", staff, s.courseReport)

		students := api.Group("/students/:studentId")
		students.GET("/courses/:courseId/progress", self, s.studentProgress)
		students.GET("/topics/:topicId/progress", self, s.topicProgress)
		students.POST("/topics/:topicId/complete", self, s.markComplete)
		students.POST("/topics/:topicId/approve", staff, s.approve)
		students.POST("/topics/:topicId/unlock-exam", staff, s.unlockExam)
		students.POST("/topics/:topicId/exam", self, s.completeExam)
		students.POST("/topics/:topicId/check", s.checkProgress)
	}
	r.GET("/api/ws/progress", authenticate(cfg.Auth, true), staff, s.progressFeed)

	return r
}

func (s *server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *server) readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	var failed []string
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failed": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
