package httpapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterOptions configures NewRouter. A nil RateLimit disables rate limiting.
type RouterOptions struct {
	AllowedOrigins []string
	RateLimit      gin.HandlerFunc
}

func NewRouter(h *Handler, opts RouterOptions, logger *zap.Logger) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(RequestLogger(logger), gin.Recovery())

	config := cors.DefaultConfig()
	if len(opts.AllowedOrigins) > 0 {
		config.AllowOrigins = opts.AllowedOrigins
	} else {
		config.AllowAllOrigins = true
	}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	r.Use(cors.New(config))

	r.GET("/healthz", h.Health)

	api := r.Group("/api/v1")
	if opts.RateLimit != nil {
		api.Use(opts.RateLimit)
	}
	{
		api.POST("/users", h.CreateUser)
		api.GET("/users/:id", h.GetUser)

		courses := api.Group("/courses")
		{
			courses.POST("", h.CreateCourse)
			courses.GET("/:id", h.GetCourse)
			courses.GET("/:id/students", h.ListCourseStudents)
			courses.GET("/:id/lessons", h.ListCourseLessons)
			courses.POST("/:id/students/:studentId/materialize", h.Materialize)
		}

		students := api.Group("/students/:studentId")
		{
			students.POST("/enrollments/:courseId", h.Enroll)
			students.DELETE("/enrollments/:courseId", h.CancelEnrollment)
			students.GET("/courses", h.ListStudentCourses)
			students.GET("/lessons", h.ListStudentLessons)
			students.GET("/lessons/week.png", h.StudentWeekImage)
		}

		api.GET("/mentors/:mentorId/lessons", h.ListMentorLessons)

		lessons := api.Group("/lessons")
		{
			lessons.POST("", h.BookLesson)
			lessons.GET("/:id", h.GetLesson)
			lessons.POST("/:id/provision", h.ProvisionLesson)
			lessons.POST("/:id/recording", h.RefreshRecording)
			lessons.POST("/:id/cancel", h.CancelLesson)
			lessons.DELETE("/:id", h.DeleteLesson)
		}
	}

	return r
}
