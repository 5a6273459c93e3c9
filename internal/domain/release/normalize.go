package release

import (
	"strconv"
	"strings"
)

const (
	unknownArtist = "Unknown Artist"
	untitled      = "Untitled"
)

// Raw mirrors the subset of a catalog release payload that normalization
// consumes.
type Raw struct {
	ID        int64       `json:"id"`
	Title     string      `json:"title"`
	Year      int         `json:"year"`
	Artists   []RawArtist `json:"artists"`
	Images    []RawImage  `json:"images"`
	Tracklist []RawTrack  `json:"tracklist"`
}

// RawArtist is an artist credit on a raw release or track.
type RawArtist struct {
	Name string `json:"name"`
}

// RawImage is an image attached to a raw release.
type RawImage struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

// RawTrack is a tracklist row of a raw release. Rows with type "heading"
// are section separators, not playable tracks.
type RawTrack struct {
	Position string      `json:"position"`
	Type     string      `json:"type_"`
	Title    string      `json:"title"`
	Duration string      `json:"duration"`
	Artists  []RawArtist `json:"artists"`
}

// Normalize converts a raw catalog payload into a Release. Heading rows are
// dropped, indexes are assigned contiguously from zero, and every missing
// field degrades to a display fallback or nil rather than an error.
func Normalize(raw Raw) *Release {
	rel := &Release{
		ID:     strconv.FormatInt(raw.ID, 10),
		Title:  raw.Title,
		Artist: firstArtist(raw.Artists, unknownArtist),
	}
	if raw.Year > 0 {
		year := raw.Year
		rel.Year = &year
	}
	if uri := coverURI(raw.Images); uri != "" {
		rel.CoverURL = &uri
	}

	for _, rt := range raw.Tracklist {
		if rt.Type == "heading" {
			continue
		}
		idx := len(rel.Tracks)

		title := strings.TrimSpace(rt.Title)
		if title == "" {
			title = untitled
		}

		position := strings.TrimSpace(rt.Position)
		if position == "" {
			position = strconv.Itoa(idx + 1)
		}

		rel.Tracks = append(rel.Tracks, Track{
			Position:    position,
			Title:       title,
			Artist:      firstArtist(rt.Artists, rel.Artist),
			DurationSec: parseDurationSec(rt.Duration),
			Side:        sideOf(position),
			Index:       idx,
		})
	}

	return rel
}

// parseDurationSec parses catalog duration strings of the form "H:MM:SS",
// "MM:SS" or "SS" into seconds. Anything malformed yields nil, never an
// error.
func parseDurationSec(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return nil
	}

	total := 0
	for _, part := range parts {
		if !isDigits(part) {
			return nil
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil
		}
		total = total*60 + n
	}
	return &total
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// sideOf derives the record side from the first letter of a position.
// Only sides A through D exist on the supported formats.
func sideOf(position string) *string {
	if position == "" {
		return nil
	}
	first := strings.ToUpper(position[:1])
	if first < "A" || first > "D" {
		return nil
	}
	return &first
}

func firstArtist(artists []RawArtist, fallback string) string {
	if len(artists) > 0 {
		if name := strings.TrimSpace(artists[0].Name); name != "" {
			return name
		}
	}
	return fallback
}

// coverURI prefers the primary image and falls back to the first one with
// a URI.
func coverURI(images []RawImage) string {
	for _, img := range images {
		if img.Type == "primary" && img.URI != "" {
			return img.URI
		}
	}
	for _, img := range images {
		if img.URI != "" {
			return img.URI
		}
	}
	return ""
}
