package service

import "time"

func (s *EnrollmentService) SetClock(now func() time.Time) { s.now = now }

func (s *LessonService) SetClock(now func() time.Time) { s.now = now }
