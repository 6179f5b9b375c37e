package provisioning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultZoomAPIURL   = "https://api.zoom.us/v2"
	DefaultZoomOAuthURL = "https://zoom.us/oauth/token"
)

// ZoomConfig holds Server-to-Server OAuth credentials.
type ZoomConfig struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	APIURL       string
	OAuthURL     string
}

// ZoomGateway implements Gateway on top of the Zoom REST API.
type ZoomGateway struct {
	cfg    ZoomConfig
	client *http.Client
	logger *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	now         func() time.Time
}

// NewZoomGateway builds a gateway. A nil client means http.DefaultClient.
func NewZoomGateway(cfg ZoomConfig, client *http.Client, logger *zap.Logger) *ZoomGateway {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultZoomAPIURL
	}
	if cfg.OAuthURL == "" {
		cfg.OAuthURL = DefaultZoomOAuthURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ZoomGateway{
		cfg:    cfg,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

type zoomTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached account_credentials token, refreshing it a minute
// before it expires.
func (g *ZoomGateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && g.now().Before(g.tokenExpiry) {
		return g.token, nil
	}

	q := url.Values{}
	q.Set("grant_type", "account_credentials")
	q.Set("account_id", g.cfg.AccountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.OAuthURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(g.cfg.ClientID + ":" + g.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	var tok zoomTokenResponse
	if err := g.do(req, &tok); err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("get access token: empty token")
	}

	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl > time.Minute {
		ttl -= time.Minute
	}
	g.token = tok.AccessToken
	g.tokenExpiry = g.now().Add(ttl)

	return g.token, nil
}

type zoomMeetingSettings struct {
	HostVideo        bool   `json:"host_video"`
	ParticipantVideo bool   `json:"participant_video"`
	JoinBeforeHost   bool   `json:"join_before_host"`
	MuteUponEntry    bool   `json:"mute_upon_entry"`
	AutoRecording    string `json:"auto_recording"`
	WaitingRoom      bool   `json:"waiting_room"`
}

type zoomCreateMeetingRequest struct {
	Topic     string              `json:"topic"`
	Type      int                 `json:"type"`
	StartTime string              `json:"start_time"`
	Duration  int                 `json:"duration"`
	Timezone  string              `json:"timezone"`
	Settings  zoomMeetingSettings `json:"settings"`
}

type zoomMeetingResponse struct {
	ID      json.Number `json:"id"`
	JoinURL string      `json:"join_url"`
}

// CreateMeeting schedules a cloud-recorded meeting hosted by hostIdentity (an email).
func (g *ZoomGateway) CreateMeeting(ctx context.Context, topic string, start time.Time, durationMinutes int, hostIdentity string) (*Meeting, error) {
	const op = "create meeting"

	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	body, err := json.Marshal(zoomCreateMeetingRequest{
		Topic:     topic,
		Type:      2, // scheduled
		StartTime: start.UTC().Format("2006-01-02T15:04:05Z"),
		Duration:  durationMinutes,
		Timezone:  "UTC",
		Settings: zoomMeetingSettings{
			HostVideo:        true,
			ParticipantVideo: true,
			MuteUponEntry:    true,
			AutoRecording:    "cloud",
		},
	})
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	endpoint := fmt.Sprintf("%s/users/%s/meetings", g.cfg.APIURL, url.PathEscape(hostIdentity))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var resp zoomMeetingResponse
	if err := g.do(req, &resp); err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	if resp.JoinURL == "" {
		return nil, &Error{Op: op, Err: fmt.Errorf("response has no join url")}
	}

	g.logger.Debug("Zoom meeting created",
		zap.String("meeting_id", resp.ID.String()),
		zap.String("host", hostIdentity),
		zap.Time("start_time", start),
	)

	return &Meeting{ExternalMeetingID: resp.ID.String(), JoinURL: resp.JoinURL}, nil
}

type zoomRecordingsResponse struct {
	RecordingFiles []struct {
		FileType string `json:"file_type"`
		PlayURL  string `json:"play_url"`
	} `json:"recording_files"`
}

// ListRecordings returns the recording files of a meeting. Zoom answers 404 until
// the cloud recording is processed; that is reported as an empty list.
func (g *ZoomGateway) ListRecordings(ctx context.Context, externalMeetingID string) ([]Recording, error) {
	const op = "list recordings"

	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	endpoint := fmt.Sprintf("%s/meetings/%s/recordings", g.cfg.APIURL, url.PathEscape(externalMeetingID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var resp zoomRecordingsResponse
	if err := g.do(req, &resp); err != nil {
		if se, ok := err.(*statusError); ok && se.code == http.StatusNotFound {
			return []Recording{}, nil
		}
		return nil, &Error{Op: op, Err: err}
	}

	recs := make([]Recording, 0, len(resp.RecordingFiles))
	for _, f := range resp.RecordingFiles {
		recs = append(recs, Recording{MediaType: f.FileType, PlayURL: f.PlayURL})
	}
	return recs, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return "unexpected status " + strconv.Itoa(e.code) + ": " + e.body
}

func (g *ZoomGateway) do(req *http.Request, out interface{}) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
