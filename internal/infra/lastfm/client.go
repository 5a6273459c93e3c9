// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/oyama27/vinylog/internal/infra/signature"
)

// Client is a Last.fm API client for the authorized user flows.
type Client struct {
	apiKey       string
	sharedSecret string
	baseURL      string
	authBaseURL  string
	httpClient   *http.Client
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey       string
	SharedSecret string
}

// Session is an authorized user session returned by the token exchange.
type Session struct {
	Name string // Account name
	Key  string // Long-lived session key
}

// TrackInfo is the track metadata sent with now-playing and scrobble calls.
type TrackInfo struct {
	Artist      string
	Track       string
	Album       string
	TrackNumber int // 1-based, zero omits the parameter
	DurationSec int // seconds, zero omits the parameter
}

// APIError represents an error response from the Last.fm API.
type APIError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("last.fm API error %d: %s", e.Code, e.Message)
}

// Unauthorized reports whether the error means the user has not granted or
// has withdrawn access, as opposed to a service failure.
func (e *APIError) Unauthorized() bool {
	// 4: authentication failed, 9: invalid session key,
	// 14: token not authorized, 15: token expired
	switch e.Code {
	case 4, 9, 14, 15:
		return true
	}
	return false
}

type getSessionResponse struct {
	Session struct {
		Name string `json:"name"`
		Key  string `json:"key"`
	} `json:"session"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	if cfg.SharedSecret == "" {
		return nil, errors.New("last.fm shared secret is required")
	}

	return &Client{
		apiKey:       cfg.APIKey,
		sharedSecret: cfg.SharedSecret,
		baseURL:      "https://ws.audioscrobbler.com/2.0/",
		authBaseURL:  "https://www.last.fm/api/auth/",
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// AuthURL returns the page where the user grants access. The service sends
// the user back to callbackURL with a one-time token attached.
func (c *Client) AuthURL(callbackURL string) string {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("cb", callbackURL)
	return c.authBaseURL + "?" + params.Encode()
}

// GetSession exchanges a callback token for a long-lived session.
// Reference: https://www.last.fm/api/show/auth.getSession
func (c *Client) GetSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, errors.New("token is required")
	}

	params := map[string]string{
		"method": "auth.getSession",
		"token":  token,
	}

	var resp getSessionResponse
	if err := c.signedCall(ctx, params, &resp); err != nil {
		return nil, err
	}
	if resp.Session.Key == "" {
		return nil, errors.New("session exchange returned no key")
	}

	return &Session{
		Name: resp.Session.Name,
		Key:  resp.Session.Key,
	}, nil
}

// NowPlaying reports the track currently on the platter.
// Reference: https://www.last.fm/api/show/track.updateNowPlaying
func (c *Client) NowPlaying(ctx context.Context, sessionKey string, t TrackInfo) error {
	params := map[string]string{
		"method": "track.updateNowPlaying",
		"sk":     sessionKey,
	}
	applyTrackParams(params, t)

	return c.signedCall(ctx, params, nil)
}

// Scrobble reports a completed listen. The timestamp sent upstream is when
// playback of the track began, so a retried call produces an identical
// payload and the service collapses it as a duplicate.
// Reference: https://www.last.fm/api/show/track.scrobble
func (c *Client) Scrobble(ctx context.Context, sessionKey string, t TrackInfo, startedAt time.Time) error {
	params := map[string]string{
		"method":    "track.scrobble",
		"sk":        sessionKey,
		"timestamp": strconv.FormatInt(startedAt.Unix(), 10),
	}
	applyTrackParams(params, t)

	return c.signedCall(ctx, params, nil)
}

// applyTrackParams fills the track metadata parameters. Optional fields are
// omitted when zero.
func applyTrackParams(params map[string]string, t TrackInfo) {
	params["artist"] = t.Artist
	params["track"] = t.Track
	if t.Album != "" {
		params["album"] = t.Album
	}
	if t.TrackNumber > 0 {
		params["trackNumber"] = strconv.Itoa(t.TrackNumber)
	}
	if t.DurationSec > 0 {
		params["duration"] = strconv.Itoa(t.DurationSec)
	}
}

// signedCall sends a signed form POST. The api_sig parameter covers every
// parameter except format, which is appended after signing.
func (c *Client) signedCall(ctx context.Context, params map[string]string, out any) error {
	params["api_key"] = c.apiKey
	params["api_sig"] = signature.APISig(params, c.sharedSecret)
	params["format"] = "json"

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	// Check for Last.fm API errors; the service reports them in the body
	// for both 200 and 4xx responses.
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
		return &apiErr
	}

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("last.fm returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return errors.Wrap(err, "failed to parse response")
		}
	}
	return nil
}
