package session

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oyama27/vinylog/internal/domain/play"
	"github.com/oyama27/vinylog/internal/domain/release"
	"github.com/oyama27/vinylog/internal/infra/store"
)

type fakeCatalog struct {
	rel   *release.Release
	err   error
	calls int
}

func (f *fakeCatalog) GetRelease(ctx context.Context, id int64) (*release.Release, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rel, nil
}

type fakeTokens struct {
	key string
	err error
}

func (f *fakeTokens) LastfmSessionKey(ctx context.Context, userID string) (string, error) {
	return f.key, f.err
}

type fakeScrobbler struct {
	nowPlaying []int
	scrobbles  []int
}

func (f *fakeScrobbler) NowPlaying(ctx context.Context, sessionKey string, sess *play.Session) {
	f.nowPlaying = append(f.nowPlaying, sess.CurrentIndex)
}

func (f *fakeScrobbler) Scrobble(ctx context.Context, sessionKey string, sess *play.Session, trackIndex int) {
	f.scrobbles = append(f.scrobbles, trackIndex)
}

type testRig struct {
	engine    *Engine
	repo      *Repo
	catalog   *fakeCatalog
	tokens    *fakeTokens
	scrobbler *fakeScrobbler
	nowMs     int64
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	st, err := store.New("memory", nil)
	require.NoError(t, err)

	rig := &testRig{
		repo:      NewRepo(st, time.Hour),
		catalog:   &fakeCatalog{rel: scenarioRelease()},
		tokens:    &fakeTokens{key: "sk123"},
		scrobbler: &fakeScrobbler{},
		nowMs:     1700000000000,
	}
	rig.engine = NewEngine(rig.repo, rig.catalog, rig.tokens, rig.scrobbler)
	rig.engine.now = func() time.Time { return time.UnixMilli(rig.nowMs) }
	return rig
}

func scenarioRelease() *release.Release {
	d1, d2 := 240, 180
	return &release.Release{
		ID:     "555",
		Title:  "Two Sides",
		Artist: "The Act",
		Tracks: []release.Track{
			{Position: "A1", Title: "Opener", Artist: "The Act", DurationSec: &d1, Index: 0},
			{Position: "A2", Title: "Closer", Artist: "The Act", DurationSec: &d2, Index: 1},
		},
	}
}

func TestStart(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sess, err := rig.engine.Start(ctx, "uid", "555")
	require.NoError(t, err)

	assert.Equal(t, play.StateRunning, sess.State)
	assert.Equal(t, 0, sess.CurrentIndex)
	assert.Equal(t, play.TrackPending, sess.Tracks[0].Status)
	require.NotNil(t, sess.Tracks[0].StartedAt)
	assert.Equal(t, rig.nowMs, *sess.Tracks[0].StartedAt)

	// Now-playing went out for track zero, no scrobble yet.
	assert.Equal(t, []int{0}, rig.scrobbler.nowPlaying)
	assert.Empty(t, rig.scrobbler.scrobbles)

	current, err := rig.engine.Current(ctx, "uid")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, sess.ID, current.ID)
}

func TestStartInvalidReleaseID(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	for _, bad := range []string{"abc", "12x", "-5", "0"} {
		_, err := rig.engine.Start(ctx, "uid", bad)
		assert.ErrorIs(t, err, ErrInvalidRelease, "releaseID %q", bad)
	}

	// Validation happens before any catalog traffic.
	assert.Equal(t, 0, rig.catalog.calls)
}

func TestStartWithoutToken(t *testing.T) {
	rig := newTestRig(t)
	rig.tokens.key = ""

	_, err := rig.engine.Start(context.Background(), "uid", "555")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, rig.catalog.calls)
}

func TestStartEmptyTracklist(t *testing.T) {
	rig := newTestRig(t)
	rig.catalog.rel = &release.Release{ID: "556", Title: "All Headings"}

	_, err := rig.engine.Start(context.Background(), "uid", "556")
	assert.ErrorIs(t, err, ErrNoTracks)
}

func TestStartCatalogErrorPassesThrough(t *testing.T) {
	rig := newTestRig(t)
	upstream := errors.New("catalog exploded")
	rig.catalog.err = upstream

	_, err := rig.engine.Start(context.Background(), "uid", "555")
	assert.ErrorIs(t, err, upstream)
}

func TestTwoTrackWalk(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sess, err := rig.engine.Start(ctx, "uid", "555")
	require.NoError(t, err)
	startMs := rig.nowMs

	rig.nowMs += 240_000
	sess, err = rig.engine.Advance(ctx, "uid", sess.ID)
	require.NoError(t, err)

	assert.Equal(t, play.TrackScrobbled, sess.Tracks[0].Status)
	assert.Equal(t, 1, sess.CurrentIndex)
	assert.Equal(t, play.StateRunning, sess.State)
	require.NotNil(t, sess.Tracks[1].StartedAt)
	assert.Equal(t, rig.nowMs, *sess.Tracks[1].StartedAt)
	// The outgoing track keeps its original start anchor.
	assert.Equal(t, startMs, *sess.Tracks[0].StartedAt)

	rig.nowMs += 180_000
	sess, err = rig.engine.Advance(ctx, "uid", sess.ID)
	require.NoError(t, err)

	assert.Equal(t, play.TrackScrobbled, sess.Tracks[1].Status)
	assert.Equal(t, play.StateEnded, sess.State)
	assert.Equal(t, 1, sess.CurrentIndex)

	assert.Equal(t, []int{0, 1}, rig.scrobbler.scrobbles)
	assert.Equal(t, []int{0, 1}, rig.scrobbler.nowPlaying)
}

func TestPauseResume(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sess, err := rig.engine.Start(ctx, "uid", "555")
	require.NoError(t, err)

	paused, err := rig.engine.Pause(ctx, "uid", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, play.StatePaused, paused.State)

	_, err = rig.engine.Pause(ctx, "uid", sess.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	resumed, err := rig.engine.Resume(ctx, "uid", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, play.StateRunning, resumed.State)

	_, err = rig.engine.Resume(ctx, "uid", sess.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	// The walk position and statuses never move on pause or resume.
	assert.Equal(t, 0, resumed.CurrentIndex)
	assert.Equal(t, play.TrackPending, resumed.Tracks[0].Status)
	assert.Equal(t, play.TrackPending, resumed.Tracks[1].Status)
}

func TestAdvanceRequiresRunning(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sess, err := rig.engine.Start(ctx, "uid", "555")
	require.NoError(t, err)

	_, err = rig.engine.Pause(ctx, "uid", sess.ID)
	require.NoError(t, err)

	_, err = rig.engine.Advance(ctx, "uid", sess.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAdvanceTokenRevokedMidSession(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sess, err := rig.engine.Start(ctx, "uid", "555")
	require.NoError(t, err)

	rig.tokens.key = ""
	_, err = rig.engine.Advance(ctx, "uid", sess.ID)
	assert.ErrorIs(t, err, ErrNotConnected)

	// The failed action mutated nothing.
	reloaded, err := rig.engine.Current(ctx, "uid")
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.CurrentIndex)
	assert.Equal(t, play.TrackPending, reloaded.Tracks[0].Status)
}

func TestEndIdempotent(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sess, err := rig.engine.Start(ctx, "uid", "555")
	require.NoError(t, err)

	ended, err := rig.engine.End(ctx, "uid", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, play.StateEnded, ended.State)
	assert.Equal(t, play.TrackScrobbled, ended.Tracks[0].Status)
	assert.Len(t, rig.scrobbler.scrobbles, 1)

	// A second end succeeds without another dispatch.
	again, err := rig.engine.End(ctx, "uid", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, play.StateEnded, again.State)
	assert.Len(t, rig.scrobbler.scrobbles, 1)
}

func TestEndFromPaused(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sess, err := rig.engine.Start(ctx, "uid", "555")
	require.NoError(t, err)
	_, err = rig.engine.Pause(ctx, "uid", sess.ID)
	require.NoError(t, err)

	ended, err := rig.engine.End(ctx, "uid", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, play.StateEnded, ended.State)
	assert.Len(t, rig.scrobbler.scrobbles, 1)
}

func TestSkip(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sess, err := rig.engine.Start(ctx, "uid", "555")
	require.NoError(t, err)

	// Skipping needs no listening-service token.
	rig.tokens.key = ""
	sess, err = rig.engine.Skip(ctx, "uid", sess.ID)
	require.NoError(t, err)

	assert.Equal(t, play.TrackSkipped, sess.Tracks[0].Status)
	assert.Nil(t, sess.Tracks[0].ScrobbledAt)
	assert.Equal(t, 1, sess.CurrentIndex)
	assert.Empty(t, rig.scrobbler.scrobbles)
	// No token, so no now-playing for the incoming track either.
	assert.Equal(t, []int{0}, rig.scrobbler.nowPlaying)
}

func TestSkipLastTrackEndsSession(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sess, err := rig.engine.Start(ctx, "uid", "555")
	require.NoError(t, err)
	sess, err = rig.engine.Skip(ctx, "uid", sess.ID)
	require.NoError(t, err)
	sess, err = rig.engine.Skip(ctx, "uid", sess.ID)
	require.NoError(t, err)

	assert.Equal(t, play.StateEnded, sess.State)
	assert.Equal(t, play.TrackSkipped, sess.Tracks[1].Status)
	assert.Empty(t, rig.scrobbler.scrobbles)
}

func TestForeignSessionReadsAsMissing(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sess, err := rig.engine.Start(ctx, "uid", "555")
	require.NoError(t, err)

	_, err = rig.engine.Pause(ctx, "other-uid", sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = rig.engine.Pause(ctx, "uid", "no-such-session")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCorruptedIndexIsFatal(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sess, err := rig.engine.Start(ctx, "uid", "555")
	require.NoError(t, err)

	sess.CurrentIndex = 5
	require.NoError(t, rig.repo.Save(ctx, sess))

	_, err = rig.engine.Pause(ctx, "uid", sess.ID)
	assert.ErrorIs(t, err, ErrTrackIndex)

	// Never silently repaired.
	reloaded, err := rig.repo.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.CurrentIndex)
}

func TestCurrentNone(t *testing.T) {
	rig := newTestRig(t)

	sess, err := rig.engine.Current(context.Background(), "uid")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestCurrentSurvivesEnd(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	sess, err := rig.engine.Start(ctx, "uid", "555")
	require.NoError(t, err)
	_, err = rig.engine.End(ctx, "uid", sess.ID)
	require.NoError(t, err)

	current, err := rig.engine.Current(ctx, "uid")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, play.StateEnded, current.State)
}
