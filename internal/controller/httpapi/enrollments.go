package httpapi

import (
	"errors"
	"net/http"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type provisioningFailureResponse struct {
	LessonID uuid.UUID `json:"lesson_id"`
	Error    string    `json:"error"`
}

type enrollmentResponse struct {
	Enrollment           *model.Enrollment             `json:"enrollment"`
	LessonIDs            []uuid.UUID                   `json:"lesson_ids"`
	ProvisioningFailures []provisioningFailureResponse `json:"provisioning_failures"`
}

func newEnrollmentResponse(r *service.EnrollmentResult) enrollmentResponse {
	resp := enrollmentResponse{
		Enrollment:           r.Enrollment,
		LessonIDs:            nonNil(r.LessonIDs),
		ProvisioningFailures: []provisioningFailureResponse{},
	}
	for _, f := range r.ProvisioningFailures {
		resp.ProvisioningFailures = append(resp.ProvisioningFailures, provisioningFailureResponse{
			LessonID: f.LessonID,
			Error:    f.Err.Error(),
		})
	}
	return resp
}

// POST /api/v1/students/:studentId/enrollments/:courseId
func (h *Handler) Enroll(c *gin.Context) {
	studentID, ok := uuidParam(c, "studentId")
	if !ok {
		return
	}
	courseID, ok := uuidParam(c, "courseId")
	if !ok {
		return
	}

	if _, err := h.users.GetByID(c, studentID); err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.enrollments.Enroll(c, studentID, courseID)
	if err != nil {
		if result == nil {
			h.writeError(c, err)
			return
		}
		// enrolled, but lessons could not be stored; the client can retry materialization
		h.logger.Warn("Enrollment kept without lessons",
			zap.String("student_id", studentID.String()),
			zap.String("course_id", courseID.String()),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusCreated, newEnrollmentResponse(result))
}

// DELETE /api/v1/students/:studentId/enrollments/:courseId[?cancel_lessons=true]
func (h *Handler) CancelEnrollment(c *gin.Context) {
	studentID, ok := uuidParam(c, "studentId")
	if !ok {
		return
	}
	courseID, ok := uuidParam(c, "courseId")
	if !ok {
		return
	}

	if err := h.enrollments.CancelEnrollment(c, studentID, courseID); err != nil {
		h.writeError(c, err)
		return
	}

	var canceled int64
	if c.Query("cancel_lessons") == "true" {
		n, err := h.enrollments.CancelFutureLessons(c, studentID, courseID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		canceled = n
	}

	c.JSON(http.StatusOK, gin.H{"canceled_lessons": canceled})
}

// GET /api/v1/students/:studentId/courses
func (h *Handler) ListStudentCourses(c *gin.Context) {
	studentID, ok := uuidParam(c, "studentId")
	if !ok {
		return
	}

	courses, err := h.enrollments.ListStudentCourses(c, studentID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"courses": nonNil(courses)})
}

// POST /api/v1/courses/:id/students/:studentId/materialize
func (h *Handler) Materialize(c *gin.Context) {
	courseID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	studentID, ok := uuidParam(c, "studentId")
	if !ok {
		return
	}

	ids, err := h.enrollments.Rematerialize(c, studentID, courseID)
	result := &service.EnrollmentResult{LessonIDs: ids}
	if err != nil {
		var merr *service.MaterializationError
		if !errors.As(err, &merr) {
			h.writeError(c, err)
			return
		}
		result.ProvisioningFailures = merr.Failures
	}

	c.JSON(http.StatusOK, newEnrollmentResponse(result))
}
