package httpapi

import (
	"net/http"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

type createCourseRequest struct {
	MentorID           string    `json:"mentor_id" binding:"required,uuid"`
	Title              string    `json:"title" binding:"required"`
	Description        string    `json:"description"`
	Subject            string    `json:"subject"`
	DaysOfWeek         []string  `json:"days_of_week" binding:"required,min=1,unique,dive,weekday"`
	StartTime          string    `json:"start_time" binding:"required,clock"`
	SessionDuration    int       `json:"session_duration" binding:"required,gt=0"`
	Timezone           string    `json:"timezone" binding:"omitempty,tz"`
	EnrollmentDeadline time.Time `json:"enrollment_deadline" binding:"required"`
	StartDate          string    `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate            string    `json:"end_date" binding:"required,datetime=2006-01-02"`
	MinStudents        int       `json:"min_students" binding:"required,gt=0"`
	MaxStudents        int       `json:"max_students" binding:"required,gtefield=MinStudents"`
}

func (r createCourseRequest) toModel() (*model.Course, error) {
	days := make([]model.Weekday, 0, len(r.DaysOfWeek))
	for _, d := range r.DaysOfWeek {
		days = append(days, model.Weekday(d))
	}
	schedule, err := model.NewSchedule(days, model.MustClockTime(r.StartTime), r.SessionDuration, r.Timezone)
	if err != nil {
		return nil, err
	}

	start, _ := time.Parse(dateLayout, r.StartDate)
	end, _ := time.Parse(dateLayout, r.EndDate)

	return &model.Course{
		MentorID:    uuid.MustParse(r.MentorID),
		Title:       r.Title,
		Description: r.Description,
		Subject:     r.Subject,
		Schedule:    schedule,
		Timeline: model.Timeline{
			EnrollmentDeadline: r.EnrollmentDeadline,
			StartDate:          start,
			EndDate:            end,
		},
		EnrollmentSettings: model.EnrollmentSettings{
			MinStudents: r.MinStudents,
			MaxStudents: r.MaxStudents,
		},
	}, nil
}

// POST /api/v1/courses
func (h *Handler) CreateCourse(c *gin.Context) {
	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	course, err := req.toModel()
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.courses.CreateCourse(c, course); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, course)
}

// GET /api/v1/courses/:id
func (h *Handler) GetCourse(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	course, err := h.courses.GetCourse(c, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, course)
}

// GET /api/v1/courses/:id/students
func (h *Handler) ListCourseStudents(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	students, err := h.enrollments.ListCourseStudents(c, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"students": nonNil(students)})
}

// GET /api/v1/courses/:id/lessons
func (h *Handler) ListCourseLessons(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if _, err := h.courses.GetCourse(c, id); err != nil {
		h.writeError(c, err)
		return
	}

	lessons, err := h.lessons.ListCourseLessons(c, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lessons": nonNil(lessons)})
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
