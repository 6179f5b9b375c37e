package httpapi

import (
	"net/http"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/gin-gonic/gin"
)

type availabilityWindowRequest struct {
	Day   string `json:"day" binding:"required,weekday"`
	Start string `json:"start" binding:"required,clock"`
	End   string `json:"end" binding:"required,clock"`
}

type createUserRequest struct {
	Role         string                      `json:"role" binding:"required,oneof=student mentor"`
	Name         string                      `json:"name" binding:"required"`
	Email        string                      `json:"email" binding:"omitempty,email"`
	HourlyRate   float64                     `json:"hourly_rate" binding:"gte=0"`
	Availability []availabilityWindowRequest `json:"availability" binding:"omitempty,dive"`
}

func (r createUserRequest) toModel() *model.User {
	user := &model.User{
		Role:       model.Role(r.Role),
		Name:       r.Name,
		Email:      r.Email,
		HourlyRate: r.HourlyRate,
	}
	for _, w := range r.Availability {
		// formats were checked by the binding tags
		user.Availability = append(user.Availability, model.AvailabilityWindow{
			Day:   model.Weekday(w.Day),
			Start: model.MustClockTime(w.Start),
			End:   model.MustClockTime(w.End),
		})
	}
	return user
}

// POST /api/v1/users
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	user := req.toModel()
	if err := h.users.RegisterUser(c, user); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// GET /api/v1/users/:id
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	user, err := h.users.GetByID(c, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}
