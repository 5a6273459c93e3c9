// Package scrobble dispatches listening reports for session transitions.
package scrobble

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/oyama27/vinylog/internal/domain/play"
	"github.com/oyama27/vinylog/internal/domain/release"
	"github.com/oyama27/vinylog/internal/infra/lastfm"
)

// dispatchTimeout bounds each upstream call so a hung listening service
// cannot stall the user action that triggered it.
const dispatchTimeout = 5 * time.Second

// LastfmClient is the slice of the listening-service client the dispatcher
// needs.
type LastfmClient interface {
	NowPlaying(ctx context.Context, sessionKey string, t lastfm.TrackInfo) error
	Scrobble(ctx context.Context, sessionKey string, t lastfm.TrackInfo, startedAt time.Time) error
}

// Dispatcher sends now-playing and scrobble calls as side effects of
// session transitions. Upstream failures are logged and swallowed; the
// session state the user sees never depends on listening-service health.
type Dispatcher struct {
	client LastfmClient
}

// New creates a new dispatcher.
func New(client LastfmClient) *Dispatcher {
	return &Dispatcher{client: client}
}

// NowPlaying reports the session's current track as in progress.
func (d *Dispatcher) NowPlaying(ctx context.Context, sessionKey string, sess *play.Session) {
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	track := sess.CurrentTrack()
	if err := d.client.NowPlaying(ctx, sessionKey, trackInfo(sess, track)); err != nil {
		zlog.Warn().Msgf("now-playing dispatch failed: session=%s track=%d error=%v", sess.ID, track.Index, err)
		return
	}
	zlog.Debug().Msgf("now-playing dispatched: session=%s track=%q", sess.ID, track.Title)
}

// Scrobble reports the track at trackIndex, timestamped with its recorded
// start. A retried transition therefore produces an identical payload the
// service collapses as a duplicate.
func (d *Dispatcher) Scrobble(ctx context.Context, sessionKey string, sess *play.Session, trackIndex int) {
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	track := sess.Release.Tracks[trackIndex]
	state := sess.Tracks[trackIndex]
	if state.StartedAt == nil {
		zlog.Warn().Msgf("scrobble dropped, track has no start anchor: session=%s track=%d", sess.ID, trackIndex)
		return
	}

	startedAt := time.UnixMilli(*state.StartedAt)
	if err := d.client.Scrobble(ctx, sessionKey, trackInfo(sess, track), startedAt); err != nil {
		zlog.Warn().Msgf("scrobble dispatch failed: session=%s track=%d error=%v", sess.ID, trackIndex, err)
		return
	}
	zlog.Info().Msgf("scrobble dispatched: session=%s track=%q startedAt=%d", sess.ID, track.Title, startedAt.Unix())
}

func trackInfo(sess *play.Session, track release.Track) lastfm.TrackInfo {
	info := lastfm.TrackInfo{
		Artist:      track.Artist,
		Track:       track.Title,
		Album:       sess.Release.Title,
		TrackNumber: track.Index + 1,
	}
	if track.DurationSec != nil {
		info.DurationSec = *track.DurationSec
	}
	return info
}
