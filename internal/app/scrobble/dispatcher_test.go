package scrobble

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oyama27/vinylog/internal/domain/play"
	"github.com/oyama27/vinylog/internal/domain/release"
	"github.com/oyama27/vinylog/internal/infra/lastfm"
)

type fakeLastfm struct {
	nowPlaying []lastfm.TrackInfo
	scrobbles  []scrobbleCall
	err        error
}

type scrobbleCall struct {
	info      lastfm.TrackInfo
	startedAt time.Time
}

func (f *fakeLastfm) NowPlaying(ctx context.Context, sessionKey string, t lastfm.TrackInfo) error {
	f.nowPlaying = append(f.nowPlaying, t)
	return f.err
}

func (f *fakeLastfm) Scrobble(ctx context.Context, sessionKey string, t lastfm.TrackInfo, startedAt time.Time) error {
	f.scrobbles = append(f.scrobbles, scrobbleCall{info: t, startedAt: startedAt})
	return f.err
}

func testSession() *play.Session {
	dur := 291
	rel := release.Release{
		ID:     "249504",
		Title:  "Selected Ambient Works 85-92",
		Artist: "Aphex Twin",
		Tracks: []release.Track{
			{Position: "A1", Title: "Xtal", Artist: "Aphex Twin", DurationSec: &dur, Index: 0},
			{Position: "A2", Title: "Tha", Artist: "Aphex Twin", Index: 1},
		},
	}
	return play.NewSession("sid", "uid", rel, 1700000000000)
}

func TestScrobbleUsesRecordedStart(t *testing.T) {
	client := &fakeLastfm{}
	d := New(client)

	d.Scrobble(context.Background(), "sk", testSession(), 0)

	require.Len(t, client.scrobbles, 1)
	call := client.scrobbles[0]
	assert.Equal(t, int64(1700000000), call.startedAt.Unix())
	assert.Equal(t, "Xtal", call.info.Track)
	assert.Equal(t, "Aphex Twin", call.info.Artist)
	assert.Equal(t, "Selected Ambient Works 85-92", call.info.Album)
	assert.Equal(t, 1, call.info.TrackNumber)
	assert.Equal(t, 291, call.info.DurationSec)
}

func TestScrobbleWithoutStartAnchor(t *testing.T) {
	client := &fakeLastfm{}
	d := New(client)

	// Track 1 never became current, so it has no start anchor.
	d.Scrobble(context.Background(), "sk", testSession(), 1)

	assert.Empty(t, client.scrobbles)
}

func TestDispatchSwallowsFailures(t *testing.T) {
	client := &fakeLastfm{err: errors.New("upstream down")}
	d := New(client)
	sess := testSession()

	// Neither call may panic or surface the error.
	d.Scrobble(context.Background(), "sk", sess, 0)
	d.NowPlaying(context.Background(), "sk", sess)

	assert.Len(t, client.scrobbles, 1)
	assert.Len(t, client.nowPlaying, 1)
}

func TestNowPlayingCurrentTrack(t *testing.T) {
	client := &fakeLastfm{}
	d := New(client)
	sess := testSession()
	sess.Advance(1700000100000)

	d.NowPlaying(context.Background(), "sk", sess)

	require.Len(t, client.nowPlaying, 1)
	assert.Equal(t, "Tha", client.nowPlaying[0].Track)
	// Unknown duration stays omitted.
	assert.Equal(t, 0, client.nowPlaying[0].DurationSec)
}
