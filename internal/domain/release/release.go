// Package release provides the normalized catalog release entity.
package release

// Release is an immutable snapshot of a catalog release, normalized once
// when a session starts. Sessions embed a copy, so later catalog edits do
// not affect playback in flight.
type Release struct {
	ID       string  `json:"id"`       // Catalog release ID
	Title    string  `json:"title"`    // Release title
	Artist   string  `json:"artist"`   // Primary artist, "Unknown Artist" when absent
	Year     *int    `json:"year"`     // Release year (nil when unknown)
	CoverURL *string `json:"coverUrl"` // Cover image URL (nil when absent)
	Tracks   []Track `json:"tracks"`   // Playable tracks in catalog order
}

// Track is a single playable track of a normalized release.
type Track struct {
	Position    string  `json:"position"`    // Catalog position, e.g. "A1"; ordinal when absent
	Title       string  `json:"title"`       // Track title, "Untitled" when absent
	Artist      string  `json:"artist"`      // Track artist, falls back to release artist
	DurationSec *int    `json:"durationSec"` // Duration in seconds (nil when unknown)
	Side        *string `json:"side"`        // Record side A-D (nil for numeric positions)
	Index       int     `json:"index"`       // 0-based ordinal after heading rows are dropped
}
