// Package main provides the vinylog CLI entry point for testing.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"

	"github.com/oyama27/vinylog/internal/domain/play"
	"github.com/oyama27/vinylog/internal/domain/release"
	"github.com/oyama27/vinylog/internal/infra/discogs"
)

var (
	app     = kingpin.New("vinylcli", "vinylog playback session client for testing")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	uidFile = app.Flag("uid-file", "File holding the identity cookie").Default(defaultUIDFile()).String()

	// start command
	startCmd     = app.Command("start", "Start a session from a Discogs release")
	startRelease = startCmd.Arg("release-id", "Discogs release ID").Required().String()

	// current command
	currentCmd = app.Command("current", "Show the current session")

	// playback commands
	pauseCmd  = app.Command("pause", "Pause a running session")
	pauseID   = pauseCmd.Arg("session-id", "Session ID").Required().String()
	resumeCmd = app.Command("resume", "Resume a paused session")
	resumeID  = resumeCmd.Arg("session-id", "Session ID").Required().String()
	nextCmd   = app.Command("next", "Finish the current track and move to the next")
	nextID    = nextCmd.Arg("session-id", "Session ID").Required().String()
	skipCmd   = app.Command("skip", "Skip the current track without scrobbling")
	skipID    = skipCmd.Arg("session-id", "Session ID").Required().String()
	endCmd    = app.Command("end", "End a session")
	endID     = endCmd.Arg("session-id", "Session ID").Required().String()

	// auth commands
	statusCmd         = app.Command("status", "Show service connections")
	connectCmd        = app.Command("connect", "Start connecting a service")
	connectService    = connectCmd.Arg("service", "Service name").Required().Enum("lastfm", "discogs")
	disconnectCmd     = app.Command("disconnect", "Disconnect a service")
	disconnectService = disconnectCmd.Arg("service", "Service name").Required().Enum("lastfm", "discogs")

	// catalog commands
	searchCmd   = app.Command("search", "Search the Discogs catalog")
	searchQuery = searchCmd.Arg("query", "Search query").Required().String()
	searchPg    = searchCmd.Flag("page", "Result page").Default("1").Int()

	collectionCmd = app.Command("collection", "List your Discogs collection")
	collectionPg  = collectionCmd.Flag("page", "Result page").Default("1").Int()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Create client
	client := newAPIClient(*server, *uidFile)

	ctx := context.Background()

	// Execute command
	switch command {
	case startCmd.FullCommand():
		start(ctx, client, *startRelease)
	case currentCmd.FullCommand():
		current(ctx, client)
	case pauseCmd.FullCommand():
		sessionOp(ctx, client, *pauseID, "pause")
	case resumeCmd.FullCommand():
		sessionOp(ctx, client, *resumeID, "resume")
	case nextCmd.FullCommand():
		sessionOp(ctx, client, *nextID, "next")
	case skipCmd.FullCommand():
		sessionOp(ctx, client, *skipID, "skip")
	case endCmd.FullCommand():
		sessionOp(ctx, client, *endID, "end")
	case statusCmd.FullCommand():
		status(ctx, client)
	case connectCmd.FullCommand():
		connect(ctx, client, *connectService)
	case disconnectCmd.FullCommand():
		disconnect(ctx, client, *disconnectService)
	case searchCmd.FullCommand():
		search(ctx, client, *searchQuery, *searchPg)
	case collectionCmd.FullCommand():
		collection(ctx, client, *collectionPg)
	}
}

type sessionEnvelope struct {
	Session *play.Session `json:"session"`
}

type startRequest struct {
	ReleaseID string `json:"releaseId"`
}

type statusResponse struct {
	LastfmConnected  bool   `json:"lastfmConnected"`
	DiscogsConnected bool   `json:"discogsConnected"`
	LastfmUser       string `json:"lastfmUser"`
	DiscogsUser      string `json:"discogsUser"`
}

type connectResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func start(ctx context.Context, client *apiClient, releaseID string) {
	var resp sessionEnvelope
	if err := client.do(ctx, http.MethodPost, "/session/start", startRequest{ReleaseID: releaseID}, &resp); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Session started! ID: %s\n", resp.Session.ID)
	printSession(resp.Session)
}

func current(ctx context.Context, client *apiClient) {
	var resp sessionEnvelope
	if err := client.do(ctx, http.MethodGet, "/session/current", nil, &resp); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if resp.Session == nil {
		fmt.Println("No current session.")
		return
	}
	printSession(resp.Session)
}

func sessionOp(ctx context.Context, client *apiClient, sessionID, op string) {
	var resp sessionEnvelope
	if err := client.do(ctx, http.MethodPost, "/session/"+url.PathEscape(sessionID)+"/"+op, nil, &resp); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	printSession(resp.Session)
}

func status(ctx context.Context, client *apiClient) {
	var resp statusResponse
	if err := client.do(ctx, http.MethodGet, "/auth/status", nil, &resp); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Connections:")
	fmt.Printf("  Last.fm: %s\n", formatConnection(resp.LastfmConnected, resp.LastfmUser))
	fmt.Printf("  Discogs: %s\n", formatConnection(resp.DiscogsConnected, resp.DiscogsUser))
}

func connect(ctx context.Context, client *apiClient, service string) {
	var resp connectResponse
	if err := client.do(ctx, http.MethodPost, "/auth/"+service+"/start", nil, &resp); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Open this URL in your browser to connect %s:\n\n  %s\n", service, resp.RedirectURL)
}

func disconnect(ctx context.Context, client *apiClient, service string) {
	if err := client.do(ctx, http.MethodPost, "/auth/"+service+"/disconnect", nil, nil); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Disconnected %s.\n", service)
}

func search(ctx context.Context, client *apiClient, query string, page int) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("page", strconv.Itoa(page))

	var resp discogs.SearchPage
	if err := client.do(ctx, http.MethodGet, "/catalog/search?"+q.Encode(), nil, &resp); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if len(resp.Results) == 0 {
		fmt.Println("No results.")
		return
	}
	for _, r := range resp.Results {
		line := fmt.Sprintf("  %-9d %s", r.ID, r.Title)
		if r.Year != "" {
			line += fmt.Sprintf(" (%s)", r.Year)
		}
		if len(r.Format) > 0 {
			line += fmt.Sprintf(" [%s]", strings.Join(r.Format, ", "))
		}
		fmt.Println(line)
	}
	fmt.Printf("\nPage %d of %d (%d items)\n", resp.Pagination.Page, resp.Pagination.Pages, resp.Pagination.Items)
}

func collection(ctx context.Context, client *apiClient, page int) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))

	var resp discogs.CollectionPage
	if err := client.do(ctx, http.MethodGet, "/catalog/collection?"+q.Encode(), nil, &resp); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if len(resp.Releases) == 0 {
		fmt.Println("Collection is empty.")
		return
	}
	for _, r := range resp.Releases {
		line := fmt.Sprintf("  %-9d %s - %s", r.ID, r.Artist, r.Title)
		if r.Year > 0 {
			line += fmt.Sprintf(" (%d)", r.Year)
		}
		fmt.Println(line)
	}
	fmt.Printf("\nPage %d of %d (%d items)\n", resp.Pagination.Page, resp.Pagination.Pages, resp.Pagination.Items)
}

func printSession(s *play.Session) {
	fmt.Println("\nSession:")
	fmt.Printf("  ID: %s\n", s.ID)
	fmt.Printf("  State: %s\n", formatState(s.State))
	fmt.Printf("  Release: %s\n", formatRelease(s.Release))
	fmt.Printf("  Started: %s\n", time.UnixMilli(s.StartedAt).Local().Format("2006-01-02 15:04:05"))

	fmt.Println("\nTracks:")
	for i, tr := range s.Release.Tracks {
		fmt.Println(formatTrackLine(s, i, tr))
	}
	fmt.Println()
}

func formatTrackLine(s *play.Session, i int, tr release.Track) string {
	marker := " "
	if i == s.CurrentIndex && s.State != play.StateEnded {
		marker = "▶"
	}

	line := fmt.Sprintf("  %s %-4s %s", marker, tr.Position, tr.Title)
	if tr.DurationSec != nil {
		line += fmt.Sprintf(" [%d:%02d]", *tr.DurationSec/60, *tr.DurationSec%60)
	}
	if i < len(s.Tracks) {
		if mark := formatTrackStatus(s.Tracks[i].Status); mark != "" {
			line += "  " + mark
		}
	}
	return line
}

func formatState(state play.State) string {
	switch state {
	case play.StateRunning:
		return "▶️  Running"
	case play.StatePaused:
		return "⏸  Paused"
	case play.StateEnded:
		return "⏹  Ended"
	default:
		return "❓ Unknown"
	}
}

func formatTrackStatus(status play.TrackStatus) string {
	switch status {
	case play.TrackScrobbled:
		return "✅ scrobbled"
	case play.TrackSkipped:
		return "⏭  skipped"
	default:
		return ""
	}
}

func formatRelease(rel release.Release) string {
	s := fmt.Sprintf("%s - %s", rel.Artist, rel.Title)
	if rel.Year != nil {
		s += fmt.Sprintf(" (%d)", *rel.Year)
	}
	return s
}

func formatConnection(connected bool, user string) string {
	if !connected {
		return "❌ not connected"
	}
	if user != "" {
		return "✅ connected as " + user
	}
	return "✅ connected"
}

// apiClient is a thin JSON client for the vinylog server. The identity
// cookie is kept in a local file so repeated invocations act as the same
// user.
type apiClient struct {
	base    string
	http    *http.Client
	uid     string
	uidPath string
}

func newAPIClient(base, uidPath string) *apiClient {
	c := &apiClient{
		base:    strings.TrimRight(base, "/"),
		http:    http.DefaultClient,
		uidPath: uidPath,
	}
	if data, err := os.ReadFile(uidPath); err == nil {
		c.uid = strings.TrimSpace(string(data))
	}
	return c
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.uid != "" {
		req.AddCookie(&http.Cookie{Name: "vinylog_uid", Value: c.uid})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.saveIdentity(resp)

	if resp.StatusCode >= 400 {
		var envelope errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Code != "" {
			return fmt.Errorf("[%s] %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) saveIdentity(resp *http.Response) {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "vinylog_uid" && cookie.Value != "" && cookie.Value != c.uid {
			c.uid = cookie.Value
			_ = os.WriteFile(c.uidPath, []byte(cookie.Value), 0o600)
		}
	}
}

func defaultUIDFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vinylog-uid"
	}
	return filepath.Join(home, ".vinylog-uid")
}
