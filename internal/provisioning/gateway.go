// Package provisioning is the boundary to the video-conferencing provider.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Meeting is what the provider returns for a newly created session.
type Meeting struct {
	ExternalMeetingID string
	JoinURL           string
}

// Recording is one asset of a finished meeting.
type Recording struct {
	MediaType string
	PlayURL   string
}

// Gateway is the narrow contract the scheduling core depends on.
type Gateway interface {
	CreateMeeting(ctx context.Context, topic string, start time.Time, durationMinutes int, hostIdentity string) (*Meeting, error)
	// ListRecordings returns an empty slice when nothing is available yet.
	ListRecordings(ctx context.Context, externalMeetingID string) ([]Recording, error)
}

// Error wraps any transport, auth or provider failure. It is always retryable.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provisioning %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Retryable() bool { return true }

// ErrNotConfigured is returned by Unconfigured.
var ErrNotConfigured = errors.New("conferencing provider is not configured")

// Unconfigured fails every call. Lessons are still created, without links.
type Unconfigured struct{}

func (Unconfigured) CreateMeeting(context.Context, string, time.Time, int, string) (*Meeting, error) {
	return nil, &Error{Op: "create meeting", Err: ErrNotConfigured}
}

func (Unconfigured) ListRecordings(context.Context, string) ([]Recording, error) {
	return nil, &Error{Op: "list recordings", Err: ErrNotConfigured}
}

// PlayableRecording picks the first MP4 asset that has a play URL.
func PlayableRecording(recs []Recording) (Recording, bool) {
	for _, r := range recs {
		if strings.EqualFold(r.MediaType, "MP4") && r.PlayURL != "" {
			return r, true
		}
	}
	return Recording{}, false
}
