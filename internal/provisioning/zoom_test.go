package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeZoom struct {
	tokenCalls   int32
	lastMeeting  zoomCreateMeetingRequest
	recordings   map[string]string // meeting id -> raw JSON body
	failMeetings bool
}

func (f *fakeZoom) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		assert.Equal(t, "account_credentials", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "acc", r.URL.Query().Get("account_id"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	})
	mux.HandleFunc("/v2/users/mentor@example.com/meetings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if f.failMeetings {
			http.Error(w, `{"code":124,"message":"Invalid access token."}`, http.StatusUnauthorized)
			return
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastMeeting))
		_, _ = w.Write([]byte(`{"id":85746065432,"join_url":"https://zoom.us/j/85746065432"}`))
	})
	mux.HandleFunc("/v2/meetings/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/v2/meetings/") : len(r.URL.Path)-len("/recordings")]
		body, ok := f.recordings[id]
		if !ok {
			http.Error(w, `{"code":3301,"message":"This recording does not exist."}`, http.StatusNotFound)
			return
		}
		if body == "" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(body))
	})
	return mux
}

func newTestGateway(t *testing.T, f *fakeZoom) *ZoomGateway {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewZoomGateway(ZoomConfig{
		AccountID:    "acc",
		ClientID:     "id",
		ClientSecret: "secret",
		APIURL:       srv.URL + "/v2",
		OAuthURL:     srv.URL + "/oauth/token",
	}, srv.Client(), zap.NewNop())
}

func TestZoomGateway_CreateMeeting(t *testing.T) {
	f := &fakeZoom{}
	g := newTestGateway(t, f)

	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	m, err := g.CreateMeeting(context.Background(), "Algebra - Class", start, 60, "mentor@example.com")
	require.NoError(t, err)

	assert.Equal(t, "85746065432", m.ExternalMeetingID)
	assert.Equal(t, "https://zoom.us/j/85746065432", m.JoinURL)
	assert.Equal(t, "Algebra - Class", f.lastMeeting.Topic)
	assert.Equal(t, 2, f.lastMeeting.Type)
	assert.Equal(t, "2024-01-01T10:00:00Z", f.lastMeeting.StartTime)
	assert.Equal(t, 60, f.lastMeeting.Duration)
	assert.Equal(t, "cloud", f.lastMeeting.Settings.AutoRecording)

	// token is cached between calls
	_, err = g.CreateMeeting(context.Background(), "Algebra - Class", start, 60, "mentor@example.com")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.tokenCalls))
}

func TestZoomGateway_CreateMeetingFailure(t *testing.T) {
	g := newTestGateway(t, &fakeZoom{failMeetings: true})

	_, err := g.CreateMeeting(context.Background(), "x", time.Now(), 30, "mentor@example.com")
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "create meeting", perr.Op)
	assert.True(t, perr.Retryable())
}

func TestZoomGateway_TokenRefreshAfterExpiry(t *testing.T) {
	f := &fakeZoom{}
	g := newTestGateway(t, f)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	_, err := g.CreateMeeting(context.Background(), "x", now, 30, "mentor@example.com")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = g.CreateMeeting(context.Background(), "x", now, 30, "mentor@example.com")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.tokenCalls))
}

func TestZoomGateway_ListRecordings(t *testing.T) {
	f := &fakeZoom{recordings: map[string]string{
		"111": `{"recording_files":[{"file_type":"M4A","play_url":"https://zoom.us/rec/a"},{"file_type":"MP4","play_url":"https://zoom.us/rec/v"}]}`,
		"222": "",
	}}
	g := newTestGateway(t, f)
	ctx := context.Background()

	recs, err := g.ListRecordings(ctx, "111")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	rec, ok := PlayableRecording(recs)
	require.True(t, ok)
	assert.Equal(t, "https://zoom.us/rec/v", rec.PlayURL)

	recs, err = g.ListRecordings(ctx, "999")
	require.NoError(t, err, "404 means not yet available")
	assert.Empty(t, recs)

	_, err = g.ListRecordings(ctx, "222")
	var perr *Error
	assert.ErrorAs(t, err, &perr)
}

func TestPlayableRecording(t *testing.T) {
	_, ok := PlayableRecording(nil)
	assert.False(t, ok)

	_, ok = PlayableRecording([]Recording{{MediaType: "MP4"}})
	assert.False(t, ok, "mp4 without play url is not playable")

	rec, ok := PlayableRecording([]Recording{{MediaType: "mp4", PlayURL: "u"}})
	assert.True(t, ok)
	assert.Equal(t, "u", rec.PlayURL)
}

func TestUnconfigured(t *testing.T) {
	var g Gateway = Unconfigured{}
	_, err := g.CreateMeeting(context.Background(), "x", time.Now(), 30, "h")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = g.ListRecordings(context.Background(), "1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
