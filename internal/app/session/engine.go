// Package session provides the engine driving playback sessions.
package session

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/oyama27/vinylog/internal/domain/play"
	"github.com/oyama27/vinylog/internal/domain/release"
)

// Engine errors, mapped to stable wire codes at the API boundary.
var (
	ErrNotFound       = errors.New("session not found")
	ErrInvalidState   = errors.New("invalid session state for this action")
	ErrInvalidRelease = errors.New("release id must be a positive number")
	ErrNotConnected   = errors.New("listening service is not connected")
	ErrNoTracks       = errors.New("release has no playable tracks")
	ErrTrackIndex     = errors.New("session track index out of range")
)

// Catalog fetches and normalizes catalog releases.
type Catalog interface {
	GetRelease(ctx context.Context, id int64) (*release.Release, error)
}

// TokenSource resolves the caller's listening-service session key. An
// empty key means the service is not connected.
type TokenSource interface {
	LastfmSessionKey(ctx context.Context, userID string) (string, error)
}

// Scrobbler dispatches listening reports. Implementations log and swallow
// upstream failures; a dispatch can never fail a transition.
type Scrobbler interface {
	NowPlaying(ctx context.Context, sessionKey string, sess *play.Session)
	Scrobble(ctx context.Context, sessionKey string, sess *play.Session, trackIndex int)
}

// Engine drives the session state machine. Every transition is triggered
// by a user action; nothing advances sessions in the background. State is
// persisted before reports are dispatched, so the session the user sees
// never depends on listening-service health.
type Engine struct {
	repo      *Repo
	catalog   Catalog
	tokens    TokenSource
	scrobbler Scrobbler
	now       func() time.Time
}

// NewEngine creates a new session engine.
func NewEngine(repo *Repo, catalog Catalog, tokens TokenSource, scrobbler Scrobbler) *Engine {
	return &Engine{
		repo:      repo,
		catalog:   catalog,
		tokens:    tokens,
		scrobbler: scrobbler,
		now:       time.Now,
	}
}

// Start fetches the release and opens a new running session on its first
// track, replacing the user's current session. The release id is validated
// before any network call.
func (e *Engine) Start(ctx context.Context, userID, releaseID string) (*play.Session, error) {
	id, err := strconv.ParseInt(releaseID, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.Wrapf(ErrInvalidRelease, "got %q", releaseID)
	}

	key, err := e.sessionKey(ctx, userID)
	if err != nil {
		return nil, err
	}

	rel, err := e.catalog.GetRelease(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(rel.Tracks) == 0 {
		return nil, ErrNoTracks
	}

	sess := play.NewSession(uuid.NewString(), userID, *rel, e.now().UnixMilli())
	if err := e.repo.Save(ctx, sess); err != nil {
		return nil, err
	}
	if err := e.repo.SetCurrent(ctx, userID, sess.ID); err != nil {
		return nil, err
	}

	e.scrobbler.NowPlaying(ctx, key, sess)

	zlog.Info().Msgf("session started: id=%s user=%s release=%s tracks=%d", sess.ID, userID, rel.ID, len(rel.Tracks))
	return sess, nil
}

// Pause stops the clock on a running session.
func (e *Engine) Pause(ctx context.Context, userID, id string) (*play.Session, error) {
	sess, err := e.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.State != play.StateRunning {
		return nil, errors.Wrapf(ErrInvalidState, "cannot pause a %s session", sess.State)
	}

	sess.State = play.StatePaused
	if err := e.repo.Save(ctx, sess); err != nil {
		return nil, err
	}

	zlog.Debug().Msgf("session paused: id=%s", sess.ID)
	return sess, nil
}

// Resume restarts a paused session. The current track and all statuses
// stay untouched.
func (e *Engine) Resume(ctx context.Context, userID, id string) (*play.Session, error) {
	sess, err := e.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.State != play.StatePaused {
		return nil, errors.Wrapf(ErrInvalidState, "cannot resume a %s session", sess.State)
	}

	sess.State = play.StateRunning
	if err := e.repo.Save(ctx, sess); err != nil {
		return nil, err
	}

	zlog.Debug().Msgf("session resumed: id=%s", sess.ID)
	return sess, nil
}

// Advance closes out the current track with a scrobble and moves to the
// next one, ending the session past the last track. The scrobble timestamp
// is the track's recorded start, never the wall clock.
func (e *Engine) Advance(ctx context.Context, userID, id string) (*play.Session, error) {
	sess, err := e.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.State != play.StateRunning {
		return nil, errors.Wrapf(ErrInvalidState, "cannot advance a %s session", sess.State)
	}

	key, err := e.sessionKey(ctx, userID)
	if err != nil {
		return nil, err
	}

	nowMs := e.now().UnixMilli()
	outgoing := sess.CurrentIndex
	sess.Tracks[outgoing].MarkScrobbled(nowMs)
	advanced := sess.Advance(nowMs)

	if err := e.repo.Save(ctx, sess); err != nil {
		return nil, err
	}

	e.scrobbler.Scrobble(ctx, key, sess, outgoing)
	if advanced {
		e.scrobbler.NowPlaying(ctx, key, sess)
	} else {
		zlog.Info().Msgf("session ended after last track: id=%s", sess.ID)
	}
	return sess, nil
}

// Skip moves to the next track without scrobbling the outgoing one, for
// when the needle is lifted early. No listening-service token is needed;
// the now-playing for the incoming track is sent only when one is present.
func (e *Engine) Skip(ctx context.Context, userID, id string) (*play.Session, error) {
	sess, err := e.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.State != play.StateRunning {
		return nil, errors.Wrapf(ErrInvalidState, "cannot skip in a %s session", sess.State)
	}

	nowMs := e.now().UnixMilli()
	outgoing := sess.CurrentIndex
	sess.Tracks[outgoing].MarkSkipped()
	advanced := sess.Advance(nowMs)

	if err := e.repo.Save(ctx, sess); err != nil {
		return nil, err
	}

	if advanced {
		if key, err := e.tokens.LastfmSessionKey(ctx, userID); err == nil && key != "" {
			e.scrobbler.NowPlaying(ctx, key, sess)
		}
	}

	zlog.Debug().Msgf("track skipped: session=%s track=%d", sess.ID, outgoing)
	return sess, nil
}

// End closes the session, scrobbling the current track. Ending an already
// ended session is a no-op success and dispatches nothing.
func (e *Engine) End(ctx context.Context, userID, id string) (*play.Session, error) {
	sess, err := e.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.State == play.StateEnded {
		return sess, nil
	}

	key, err := e.sessionKey(ctx, userID)
	if err != nil {
		return nil, err
	}

	nowMs := e.now().UnixMilli()
	outgoing := sess.CurrentIndex
	sess.Tracks[outgoing].MarkScrobbled(nowMs)
	sess.State = play.StateEnded

	if err := e.repo.Save(ctx, sess); err != nil {
		return nil, err
	}

	e.scrobbler.Scrobble(ctx, key, sess, outgoing)

	zlog.Info().Msgf("session ended: id=%s user=%s", sess.ID, userID)
	return sess, nil
}

// Current returns the user's current session, nil when there is none. An
// ended session stays current until the next Start replaces it.
func (e *Engine) Current(ctx context.Context, userID string) (*play.Session, error) {
	sess, err := e.repo.Current(ctx, userID)
	if err != nil || sess == nil {
		return nil, err
	}
	if sess.State != play.StateEnded && !sess.IndexValid() {
		return nil, errors.Wrapf(ErrTrackIndex, "index %d with %d tracks", sess.CurrentIndex, len(sess.Release.Tracks))
	}
	return sess, nil
}

// load fetches a session and checks ownership and index sanity. A foreign
// session reads as absent so session ids do not leak across users. An out
// of range index is corrupted state and is never silently repaired.
func (e *Engine) load(ctx context.Context, userID, id string) (*play.Session, error) {
	sess, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrNotFound
	}
	if sess.State != play.StateEnded && !sess.IndexValid() {
		return nil, errors.Wrapf(ErrTrackIndex, "index %d with %d tracks", sess.CurrentIndex, len(sess.Release.Tracks))
	}
	return sess, nil
}

// sessionKey requires a stored listening-service token for transitions
// that report upstream.
func (e *Engine) sessionKey(ctx context.Context, userID string) (string, error) {
	key, err := e.tokens.LastfmSessionKey(ctx, userID)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", ErrNotConnected
	}
	return key, nil
}
