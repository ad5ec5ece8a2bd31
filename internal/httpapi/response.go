package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/p-n-ai/pai-progress/internal/access"
	"github.com/p-n-ai/pai-progress/internal/curriculum"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

// Response is the JSON envelope for every API reply.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

// fail writes the error envelope and aborts the chain. Unclassified errors are
// logged and reported without detail.
func fail(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(code, Response{Code: code, Message: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, access.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, progress.ErrNotFound),
		errors.Is(err, curriculum.ErrCourseNotFound),
		errors.Is(err, curriculum.ErrTopicNotFound):
		return http.StatusNotFound
	case errors.Is(err, progress.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, progress.ErrInvalidTransition),
		errors.Is(err, progress.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errFeedDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
