// Package play provides the playback session domain entity.
package play

import (
	"github.com/oyama27/vinylog/internal/domain/release"
)

// State represents the lifecycle state of a session. Ended is terminal.
type State string

const (
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
)

// TrackStatus represents the reporting status of one session track. A track
// leaves pending at most once.
type TrackStatus string

const (
	TrackPending   TrackStatus = "pending"
	TrackScrobbled TrackStatus = "scrobbled"
	TrackSkipped   TrackStatus = "skipped"
)

// Session represents one play-through of a release by one user. The release
// is an embedded snapshot taken at start time.
type Session struct {
	ID           string          `json:"id"`           // Session UUID
	UserID       string          `json:"userId"`       // Internal user ID, never a service identity
	Release      release.Release `json:"release"`      // Normalized release snapshot
	State        State           `json:"state"`        // running, paused or ended
	CurrentIndex int             `json:"currentIndex"` // Index of the track on the platter
	StartedAt    int64           `json:"startedAt"`    // Session start, epoch ms
	Tracks       []TrackState    `json:"tracks"`       // One entry per release track, same order
}

// TrackState tracks the playback and reporting progress of one track.
type TrackState struct {
	Index       int         `json:"index"`       // Matches release track index
	StartedAt   *int64      `json:"startedAt"`   // When the track became current, epoch ms
	Status      TrackStatus `json:"status"`      // pending, scrobbled or skipped
	ScrobbledAt *int64      `json:"scrobbledAt"` // When the scrobble was sent, epoch ms
}

// NewSession creates a running session over rel with track zero started at
// nowMs.
func NewSession(id, userID string, rel release.Release, nowMs int64) *Session {
	tracks := make([]TrackState, len(rel.Tracks))
	for i := range tracks {
		tracks[i] = TrackState{Index: i, Status: TrackPending}
	}
	if len(tracks) > 0 {
		tracks[0].StartedAt = &nowMs
	}
	return &Session{
		ID:           id,
		UserID:       userID,
		Release:      rel,
		State:        StateRunning,
		CurrentIndex: 0,
		StartedAt:    nowMs,
		Tracks:       tracks,
	}
}

// IndexValid reports whether CurrentIndex addresses a release track.
func (s *Session) IndexValid() bool {
	return s.CurrentIndex >= 0 && s.CurrentIndex < len(s.Release.Tracks)
}

// CurrentTrack returns the release track at CurrentIndex. Callers must have
// checked IndexValid.
func (s *Session) CurrentTrack() release.Track {
	return s.Release.Tracks[s.CurrentIndex]
}

// CurrentState returns the track state at CurrentIndex. Callers must have
// checked IndexValid.
func (s *Session) CurrentState() *TrackState {
	return &s.Tracks[s.CurrentIndex]
}

// Advance moves CurrentIndex to the next track and marks it started at
// nowMs. Past the last track the session ends and CurrentIndex keeps its
// final valid value; Advance then returns false.
func (s *Session) Advance(nowMs int64) bool {
	if s.CurrentIndex+1 >= len(s.Release.Tracks) {
		s.State = StateEnded
		return false
	}
	s.CurrentIndex++
	s.Tracks[s.CurrentIndex].StartedAt = &nowMs
	return true
}

// MarkScrobbled records that the track was reported at nowMs.
func (t *TrackState) MarkScrobbled(nowMs int64) {
	t.Status = TrackScrobbled
	t.ScrobbledAt = &nowMs
}

// MarkSkipped records that the track was passed over without a report.
func (t *TrackState) MarkSkipped() {
	t.Status = TrackSkipped
}
