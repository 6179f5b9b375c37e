// Package httpapi is the REST surface of the lesson scheduler.
package httpapi

import (
	"net/http"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Handler struct {
	users       *service.UserService
	courses     *service.CourseService
	enrollments *service.EnrollmentService
	lessons     *service.LessonService
	reconciler  *service.Reconciler
	logger      *zap.Logger
	now         func() time.Time
}

func NewHandler(
	users *service.UserService,
	courses *service.CourseService,
	enrollments *service.EnrollmentService,
	lessons *service.LessonService,
	reconciler *service.Reconciler,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		users:       users,
		courses:     courses,
		enrollments: enrollments,
		lessons:     lessons,
		reconciler:  reconciler,
		logger:      logger,
		now:         time.Now,
	}
}

// uuidParam parses a path parameter, answering 400 when it is not a UUID.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  name + " must be a UUID",
			"reason": "invalid_id",
		})
		return uuid.Nil, false
	}
	return id, true
}

// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
