// Package memory keeps every record in process memory. It backs tests and local
// runs without DB_DSN.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/google/uuid"
)

type pair struct {
	student uuid.UUID
	course  uuid.UUID
}

type lessonKey struct {
	course  uuid.UUID
	student uuid.UUID
	start   int64
}

// Store implements the service storage contracts. One mutex serializes all access,
// which also makes enrollment transactions exclusive.
type Store struct {
	mu          sync.Mutex
	users       map[uuid.UUID]model.User
	courses     map[uuid.UUID]model.Course
	enrollments map[pair]model.Enrollment
	lessons     map[uuid.UUID]model.Lesson
	lessonKeys  map[lessonKey]uuid.UUID
	claims      map[uuid.UUID]time.Time
	now         func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:       make(map[uuid.UUID]model.User),
		courses:     make(map[uuid.UUID]model.Course),
		enrollments: make(map[pair]model.Enrollment),
		lessons:     make(map[uuid.UUID]model.Lesson),
		lessonKeys:  make(map[lessonKey]uuid.UUID),
		claims:      make(map[uuid.UUID]time.Time),
		now:         time.Now,
	}
}

var (
	_ service.UserStore       = (*Store)(nil)
	_ service.CourseStore     = (*Store)(nil)
	_ service.EnrollmentStore = (*Store)(nil)
	_ service.LessonStore     = (*Store)(nil)
)

// Users

func (s *Store) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUser(_ context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) GetUserByTelegramID(_ context.Context, telegramID int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.TelegramID != nil && *u.TelegramID == telegramID {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (s *Store) SetTelegramID(_ context.Context, id uuid.UUID, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return service.ErrUserNotFound
	}
	if u.TelegramID != nil && *u.TelegramID != telegramID {
		return service.ErrTelegramLinked
	}
	// telegram_id is unique
	for otherID, other := range s.users {
		if otherID != id && other.TelegramID != nil && *other.TelegramID == telegramID {
			other.TelegramID = nil
			s.users[otherID] = other
		}
	}
	u.TelegramID = &telegramID
	s.users[id] = u
	return nil
}

func (s *Store) UnlinkTelegram(_ context.Context, telegramID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, u := range s.users {
		if u.TelegramID != nil && *u.TelegramID == telegramID {
			u.TelegramID = nil
			s.users[id] = u
			return true, nil
		}
	}
	return false, nil
}

// Courses

func (s *Store) CreateCourse(_ context.Context, course *model.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if course.ID == uuid.Nil {
		course.ID = uuid.New()
	}
	if course.CreatedAt.IsZero() {
		course.CreatedAt = s.now()
	}
	s.courses[course.ID] = *course
	return nil
}

func (s *Store) GetCourse(_ context.Context, id uuid.UUID) (*model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCourse(id), nil
}

func (s *Store) getCourse(id uuid.UUID) *model.Course {
	c, ok := s.courses[id]
	if !ok {
		return nil
	}
	return &c
}

func (s *Store) ListStudentCourses(_ context.Context, studentID uuid.UUID) ([]*model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.studentCourses(studentID), nil
}

func (s *Store) studentCourses(studentID uuid.UUID) []*model.Course {
	var out []*model.Course
	for p := range s.enrollments {
		if p.student != studentID {
			continue
		}
		if c := s.getCourse(p.course); c != nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) ListCourseStudents(_ context.Context, courseID uuid.UUID) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type enrolled struct {
		user *model.User
		at   time.Time
	}
	var rows []enrolled
	for p, e := range s.enrollments {
		if p.course != courseID {
			continue
		}
		if u, ok := s.users[p.student]; ok {
			rows = append(rows, enrolled{user: &u, at: e.CreatedAt})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].at.Before(rows[j].at) })

	out := make([]*model.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.user)
	}
	return out, nil
}

// Enrollments

// InEnrollmentTx holds the store lock for the whole of fn and restores the
// enrollment set if fn fails.
func (s *Store) InEnrollmentTx(_ context.Context, _, _ uuid.UUID, fn func(tx service.EnrollmentTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := make(map[pair]model.Enrollment, len(s.enrollments))
	for k, v := range s.enrollments {
		backup[k] = v
	}

	if err := fn(&enrollmentTx{s: s}); err != nil {
		s.enrollments = backup
		return err
	}
	return nil
}

// enrollmentTx runs with Store.mu already held.
type enrollmentTx struct {
	s *Store
}

func (tx *enrollmentTx) GetCourse(_ context.Context, id uuid.UUID) (*model.Course, error) {
	return tx.s.getCourse(id), nil
}

func (tx *enrollmentTx) IsEnrolled(_ context.Context, studentID, courseID uuid.UUID) (bool, error) {
	_, ok := tx.s.enrollments[pair{student: studentID, course: courseID}]
	return ok, nil
}

func (tx *enrollmentTx) CountEnrolled(_ context.Context, courseID uuid.UUID) (int, error) {
	n := 0
	for p := range tx.s.enrollments {
		if p.course == courseID {
			n++
		}
	}
	return n, nil
}

func (tx *enrollmentTx) ListStudentCourses(_ context.Context, studentID uuid.UUID) ([]*model.Course, error) {
	return tx.s.studentCourses(studentID), nil
}

func (tx *enrollmentTx) CreateEnrollment(_ context.Context, enrollment *model.Enrollment) error {
	tx.s.enrollments[pair{student: enrollment.StudentID, course: enrollment.CourseID}] = *enrollment
	return nil
}

func (tx *enrollmentTx) DeleteEnrollment(_ context.Context, studentID, courseID uuid.UUID) (bool, error) {
	k := pair{student: studentID, course: courseID}
	if _, ok := tx.s.enrollments[k]; !ok {
		return false, nil
	}
	delete(tx.s.enrollments, k)
	return true, nil
}

// Lessons

func keyOf(l *model.Lesson) lessonKey {
	return lessonKey{course: l.CourseID, student: l.StudentID, start: l.StartTime.UnixNano()}
}

func (s *Store) CreateLesson(_ context.Context, lesson *model.Lesson) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lesson.CourseID != uuid.Nil {
		if id, ok := s.lessonKeys[keyOf(lesson)]; ok {
			*lesson = s.lessons[id]
			return false, nil
		}
	}

	if lesson.ID == uuid.Nil {
		lesson.ID = uuid.New()
	}
	now := s.now()
	lesson.CreatedAt, lesson.UpdatedAt = now, now
	s.lessons[lesson.ID] = *lesson
	if lesson.CourseID != uuid.Nil {
		s.lessonKeys[keyOf(lesson)] = lesson.ID
	}
	return true, nil
}

func (s *Store) GetLesson(_ context.Context, id uuid.UUID) (*model.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lessons[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

// update applies fn to a stored lesson. Missing lessons are ignored, like an
// UPDATE matching no rows.
func (s *Store) update(id uuid.UUID, fn func(l *model.Lesson)) {
	l, ok := s.lessons[id]
	if !ok {
		return
	}
	fn(&l)
	l.UpdatedAt = s.now()
	s.lessons[id] = l
}

func (s *Store) SetProvisioning(_ context.Context, id uuid.UUID, meetingID, meetingLink string, status model.LessonStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claims, id)
	s.update(id, func(l *model.Lesson) {
		if meetingID != "" && l.MeetingID == "" {
			l.MeetingID, l.MeetingLink = meetingID, meetingLink
		}
		if !l.Status.Terminal() {
			l.Status = status
		}
	})
	return nil
}

func (s *Store) ClaimProvisioning(_ context.Context, id uuid.UUID, now time.Time, staleAfter time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lessons[id]
	if !ok || l.MeetingID != "" || l.Status.Terminal() {
		return false, nil
	}
	if at, held := s.claims[id]; held && at.After(now.Add(-staleAfter)) {
		return false, nil
	}
	s.claims[id] = now
	return true, nil
}

func (s *Store) SetStatus(_ context.Context, id uuid.UUID, status model.LessonStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.update(id, func(l *model.Lesson) { l.Status = status })
	return nil
}

func (s *Store) DeleteLesson(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lessons[id]
	if !ok {
		return false, nil
	}
	if s.lessonKeys[keyOf(&l)] == id {
		delete(s.lessonKeys, keyOf(&l))
	}
	delete(s.lessons, id)
	delete(s.claims, id)
	return true, nil
}

func (s *Store) filterLessons(keep func(l *model.Lesson) bool) []*model.Lesson {
	var out []*model.Lesson
	for _, l := range s.lessons {
		l := l
		if keep(&l) {
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (s *Store) ListByCourse(_ context.Context, courseID uuid.UUID) ([]*model.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterLessons(func(l *model.Lesson) bool { return l.CourseID == courseID }), nil
}

func (s *Store) ListByStudent(_ context.Context, studentID uuid.UUID) ([]*model.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterLessons(func(l *model.Lesson) bool { return l.StudentID == studentID }), nil
}

func (s *Store) ListByMentor(_ context.Context, mentorID uuid.UUID) ([]*model.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterLessons(func(l *model.Lesson) bool { return l.MentorID == mentorID }), nil
}

func (s *Store) ListByStudentBetween(_ context.Context, studentID uuid.UUID, from, to time.Time) ([]*model.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterLessons(func(l *model.Lesson) bool {
		return l.StudentID == studentID && !l.StartTime.Before(from) && l.StartTime.Before(to)
	}), nil
}

func (s *Store) CancelUpcoming(_ context.Context, courseID, studentID uuid.UUID, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, l := range s.lessons {
		if l.CourseID != courseID || l.StudentID != studentID || l.Status.Terminal() || !l.StartTime.After(now) {
			continue
		}
		s.update(id, func(l *model.Lesson) { l.Status = model.LessonStatusCanceled })
		n++
	}
	return n, nil
}

func (s *Store) CompleteEnded(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, l := range s.lessons {
		if l.Status.Terminal() || !l.EndTime.Before(now) {
			continue
		}
		s.update(id, func(l *model.Lesson) { l.Status = model.LessonStatusCompleted })
		n++
	}
	return n, nil
}

// ListAwaitingRecording returns the lessons polled least recently first; lessons
// never polled come before all others.
func (s *Store) ListAwaitingRecording(_ context.Context, limit int) ([]*model.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.filterLessons(func(l *model.Lesson) bool { return l.AwaitingRecording() })
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].RecordingPolledAt, out[j].RecordingPolledAt
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AttachRecording(_ context.Context, id uuid.UUID, recordingURL string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lessons[id]
	if !ok || l.RecordingURL != "" {
		return false, nil
	}
	s.update(id, func(l *model.Lesson) {
		l.RecordingURL = recordingURL
		l.RecordingChecked = true
		l.RecordingUnavailable = false
		l.RecordingPolledAt = &at
	})
	return true, nil
}

func (s *Store) RecordRecordingMiss(_ context.Context, id uuid.UUID, seenAttempts, maxAttempts int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.update(id, func(l *model.Lesson) {
		if l.RecordingAttempts != seenAttempts {
			return
		}
		l.RecordingAttempts++
		l.RecordingPolledAt = &at
		if maxAttempts > 0 && l.RecordingAttempts >= maxAttempts {
			l.RecordingUnavailable = true
		}
	})
	return nil
}

func (s *Store) MarkRecordingPolled(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.update(id, func(l *model.Lesson) { l.RecordingPolledAt = &at })
	return nil
}
