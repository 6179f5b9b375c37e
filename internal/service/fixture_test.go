package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/model"
	"github.com/Freeeeeet/lesson_scheduler/internal/provisioning"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository/memory"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errProviderDown = errors.New("provider down")

// fakeGateway hands out sequential meeting ids and can fail selected starts.
type fakeGateway struct {
	mu          sync.Mutex
	created     int
	failStarts  map[time.Time]bool
	recordings  map[string][]provisioning.Recording
	listErrors  map[string]bool
	listCalls   map[string]int
	lastHost    string
	lastMinutes int
	// delay holds CreateMeeting open so concurrent callers overlap.
	delay time.Duration
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		failStarts: make(map[time.Time]bool),
		recordings: make(map[string][]provisioning.Recording),
		listErrors: make(map[string]bool),
		listCalls:  make(map[string]int),
	}
}

func (g *fakeGateway) CreateMeeting(_ context.Context, _ string, start time.Time, minutes int, host string) (*provisioning.Meeting, error) {
	time.Sleep(g.delay)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failStarts[start.UTC()] {
		return nil, &provisioning.Error{Op: "create meeting", Err: errProviderDown}
	}
	g.created++
	g.lastHost, g.lastMinutes = host, minutes
	id := fmt.Sprintf("m-%d", g.created)
	return &provisioning.Meeting{ExternalMeetingID: id, JoinURL: "https://meet.example/" + id}, nil
}

func (g *fakeGateway) ListRecordings(_ context.Context, id string) ([]provisioning.Recording, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.listCalls[id]++
	if g.listErrors[id] {
		return nil, &provisioning.Error{Op: "list recordings", Err: errProviderDown}
	}
	return g.recordings[id], nil
}

func (g *fakeGateway) createdCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.created
}

type capturingNotifier struct {
	mu         sync.Mutex
	enrolled   []int
	recordings []string
}

func (n *capturingNotifier) NotifyEnrolled(_ context.Context, _ *model.User, _ *model.Course, lessons int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enrolled = append(n.enrolled, lessons)
	return nil
}

func (n *capturingNotifier) NotifyRecording(_ context.Context, _ *model.User, lesson *model.Lesson) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recordings = append(n.recordings, lesson.RecordingURL)
	return nil
}

type fixture struct {
	store       *memory.Store
	gateway     *fakeGateway
	notifier    *capturingNotifier
	users       *service.UserService
	courses     *service.CourseService
	lessons     *service.LessonService
	enrollments *service.EnrollmentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zap.NewNop()
	store := memory.NewStore()
	gateway := newFakeGateway()
	notifier := &capturingNotifier{}

	lessons := service.NewLessonService(store, store, store, gateway, service.LessonOptions{}, logger)
	return &fixture{
		store:       store,
		gateway:     gateway,
		notifier:    notifier,
		users:       service.NewUserService(store, logger),
		courses:     service.NewCourseService(store, store, logger),
		lessons:     lessons,
		enrollments: service.NewEnrollmentService(store, store, store, lessons, nil, notifier, logger),
	}
}

func (f *fixture) reconciler(opts service.ReconcilerOptions) *service.Reconciler {
	return service.NewReconciler(f.store, f.store, f.gateway, f.notifier, opts, zap.NewNop())
}

func (f *fixture) mentor(t *testing.T) *model.User {
	t.Helper()
	u := &model.User{Role: model.RoleMentor, Name: "Ada", Email: "ada@example.com", HourlyRate: 40}
	require.NoError(t, f.users.RegisterUser(context.Background(), u))
	return u
}

func (f *fixture) student(t *testing.T) *model.User {
	t.Helper()
	u := &model.User{Role: model.RoleStudent, Name: "Student"}
	require.NoError(t, f.users.RegisterUser(context.Background(), u))
	return u
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// january2024 spans Monday 1 Jan to Wednesday 10 Jan.
var january2024 = model.Timeline{
	EnrollmentDeadline: date(2023, time.December, 25),
	StartDate:          date(2024, time.January, 1),
	EndDate:            date(2024, time.January, 10),
}

func (f *fixture) course(t *testing.T, mentor *model.User, start string, maxStudents int, days ...model.Weekday) *model.Course {
	t.Helper()
	sched, err := model.NewSchedule(days, model.MustClockTime(start), 60, "")
	require.NoError(t, err)

	c := &model.Course{
		MentorID:           mentor.ID,
		Title:              "Algebra " + start,
		Subject:            "math",
		Schedule:           sched,
		Timeline:           january2024,
		EnrollmentSettings: model.EnrollmentSettings{MinStudents: 1, MaxStudents: maxStudents},
	}
	require.NoError(t, f.courses.CreateCourse(context.Background(), c))
	return c
}
