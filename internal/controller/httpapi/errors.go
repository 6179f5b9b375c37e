package httpapi

import (
	"errors"
	"net/http"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Stable reason codes returned next to the human readable error.
const (
	reasonInvalidRequest   = "invalid_request"
	reasonValidationFailed = "validation_failed"
	reasonCourseNotFound   = "course_not_found"
	reasonUserNotFound     = "user_not_found"
	reasonLessonNotFound   = "lesson_not_found"
	reasonAlreadyEnrolled  = "already_enrolled"
	reasonNotEnrolled      = "not_enrolled"
	reasonCourseFull       = "course_full"
	reasonScheduleClash    = "schedule_clash"
	reasonLessonCompleted  = "lesson_completed"
	reasonNotAMentor       = "not_a_mentor"
	reasonNotAStudent      = "not_a_student"
	reasonLessonCanceled   = "lesson_canceled"
	reasonNoMeeting        = "no_meeting"
	reasonProvisionBusy    = "provisioning_in_progress"
	reasonProvisioning     = "provisioning_failed"
	reasonTelegramLinked   = "telegram_linked"
	reasonInternal         = "internal_error"
)

var sentinelStatus = []struct {
	err    error
	status int
	reason string
}{
	{service.ErrCourseNotFound, http.StatusNotFound, reasonCourseNotFound},
	{service.ErrUserNotFound, http.StatusNotFound, reasonUserNotFound},
	{service.ErrLessonNotFound, http.StatusNotFound, reasonLessonNotFound},
	{service.ErrNotEnrolled, http.StatusNotFound, reasonNotEnrolled},
	{service.ErrAlreadyEnrolled, http.StatusConflict, reasonAlreadyEnrolled},
	{service.ErrCourseFull, http.StatusConflict, reasonCourseFull},
	{service.ErrLessonCompleted, http.StatusConflict, reasonLessonCompleted},
	{service.ErrLessonCanceled, http.StatusConflict, reasonLessonCanceled},
	{service.ErrNoMeeting, http.StatusConflict, reasonNoMeeting},
	{service.ErrProvisionBusy, http.StatusConflict, reasonProvisionBusy},
	{service.ErrTelegramLinked, http.StatusConflict, reasonTelegramLinked},
	{service.ErrNotAMentor, http.StatusUnprocessableEntity, reasonNotAMentor},
	{service.ErrNotAStudent, http.StatusUnprocessableEntity, reasonNotAStudent},
	{service.ErrProvisioning, http.StatusBadGateway, reasonProvisioning},
}

// writeError maps a service error to a status code and reason.
func (h *Handler) writeError(c *gin.Context, err error) {
	var clash *service.ScheduleClashError
	if errors.As(err, &clash) {
		c.JSON(http.StatusConflict, gin.H{
			"error":  err.Error(),
			"reason": reasonScheduleClash,
			"conflicting_course": gin.H{
				"id":    clash.CourseID,
				"title": clash.Title,
			},
		})
		return
	}

	var verr *model.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  verr.Message,
			"reason": reasonValidationFailed,
			"fields": verr.Fields,
		})
		return
	}

	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			c.JSON(s.status, gin.H{"error": err.Error(), "reason": s.reason})
			return
		}
	}

	h.logger.Error("Request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "reason": reasonInternal})
}

// writeBindError reports a request body that failed to decode or validate.
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]model.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, model.FieldError{Field: fe.Field(), Error: "failed on " + fe.Tag()})
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid request",
			"reason": reasonValidationFailed,
			"fields": fields,
		})
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": reasonInvalidRequest})
}
