package httpapi

import (
	"net/http"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/render"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type bookLessonRequest struct {
	MentorID  string    `json:"mentor_id" binding:"required,uuid"`
	StudentID string    `json:"student_id" binding:"required,uuid"`
	Subject   string    `json:"subject" binding:"required"`
	StartTime time.Time `json:"start_time" binding:"required"`
}

// POST /api/v1/lessons
func (h *Handler) BookLesson(c *gin.Context) {
	var req bookLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	lesson, err := h.lessons.BookLesson(c, service.BookingRequest{
		// formats were checked by the binding tags
		MentorID:  uuid.MustParse(req.MentorID),
		StudentID: uuid.MustParse(req.StudentID),
		Subject:   req.Subject,
		StartTime: req.StartTime,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, lesson)
}

// POST /api/v1/lessons/:id/provision
func (h *Handler) ProvisionLesson(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	lesson, err := h.lessons.ProvisionLesson(c, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, lesson)
}

// POST /api/v1/lessons/:id/recording
func (h *Handler) RefreshRecording(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	lesson, err := h.reconciler.RefreshRecording(c, id, h.now())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, lesson)
}

// GET /api/v1/lessons/:id
func (h *Handler) GetLesson(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	lesson, err := h.lessons.GetLesson(c, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, lesson)
}

// POST /api/v1/lessons/:id/cancel
func (h *Handler) CancelLesson(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	lesson, err := h.lessons.CancelLesson(c, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, lesson)
}

// DELETE /api/v1/lessons/:id
func (h *Handler) DeleteLesson(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.lessons.DeleteLesson(c, id); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GET /api/v1/students/:studentId/lessons
func (h *Handler) ListStudentLessons(c *gin.Context) {
	studentID, ok := uuidParam(c, "studentId")
	if !ok {
		return
	}

	lessons, err := h.lessons.ListStudentLessons(c, studentID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lessons": nonNil(lessons)})
}

// GET /api/v1/mentors/:mentorId/lessons
func (h *Handler) ListMentorLessons(c *gin.Context) {
	mentorID, ok := uuidParam(c, "mentorId")
	if !ok {
		return
	}

	lessons, err := h.lessons.ListMentorLessons(c, mentorID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lessons": nonNil(lessons)})
}

// GET /api/v1/students/:studentId/lessons/week.png?date=YYYY-MM-DD
func (h *Handler) StudentWeekImage(c *gin.Context) {
	studentID, ok := uuidParam(c, "studentId")
	if !ok {
		return
	}

	now := h.now().UTC()
	day := now
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD", "reason": reasonInvalidRequest})
			return
		}
		day = parsed
	}

	weekStart, lessons, err := h.lessons.StudentWeek(c, studentID, day)
	if err != nil {
		h.writeError(c, err)
		return
	}

	png, err := render.Week(weekStart, lessons, now)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}
