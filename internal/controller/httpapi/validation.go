package httpapi

import (
	"sync"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// registerValidators adds the weekday, clock and timezone tags to gin's validator.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
			return model.Weekday(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, err := model.ParseClockTime(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("tz", func(fl validator.FieldLevel) bool {
			_, err := time.LoadLocation(fl.Field().String())
			return err == nil
		})
	})
}
