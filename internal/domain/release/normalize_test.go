package release

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

func TestParseDurationSec(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *int
	}{
		{name: "minutes and seconds", input: "3:45", want: intPtr(225)},
		{name: "hours minutes seconds", input: "1:02:03", want: intPtr(3723)},
		{name: "seconds only", input: "45", want: intPtr(45)},
		{name: "zero minutes", input: "0:30", want: intPtr(30)},
		{name: "leading zeros", input: "03:05", want: intPtr(185)},
		{name: "surrounding whitespace", input: " 4:20 ", want: intPtr(260)},
		{name: "empty", input: "", want: nil},
		{name: "whitespace only", input: "   ", want: nil},
		{name: "non numeric part", input: "3:ab", want: nil},
		{name: "too many segments", input: "1:2:3:4", want: nil},
		{name: "negative", input: "-3", want: nil},
		{name: "explicit plus sign", input: "+3", want: nil},
		{name: "empty segment", input: "3:", want: nil},
		{name: "inner whitespace", input: "3: 45", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseDurationSec(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestSideOf(t *testing.T) {
	tests := []struct {
		name     string
		position string
		want     *string
	}{
		{name: "side A", position: "A1", want: strPtr("A")},
		{name: "lowercase side", position: "b2", want: strPtr("B")},
		{name: "bare side letter", position: "D", want: strPtr("D")},
		{name: "letter beyond D", position: "E1", want: nil},
		{name: "numeric position", position: "12", want: nil},
		{name: "empty", position: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sideOf(tt.position)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestNormalize(t *testing.T) {
	raw := Raw{
		ID:    249504,
		Title: "Selected Ambient Works 85-92",
		Year:  1992,
		Artists: []RawArtist{
			{Name: "Aphex Twin"},
		},
		Images: []RawImage{
			{Type: "secondary", URI: "https://img.example/extra.jpg"},
			{Type: "primary", URI: "https://img.example/cover.jpg"},
		},
		Tracklist: []RawTrack{
			{Position: "A1", Type: "track", Title: "Xtal", Duration: "4:51"},
			{Position: "A2", Type: "track", Title: "Tha", Duration: "9:01"},
			{Position: "", Type: "heading", Title: "Side B"},
			{Position: "B1", Type: "track", Title: "Pulsewidth", Duration: "3:47"},
		},
	}

	rel := Normalize(raw)

	assert.Equal(t, "249504", rel.ID)
	assert.Equal(t, "Selected Ambient Works 85-92", rel.Title)
	assert.Equal(t, "Aphex Twin", rel.Artist)
	require.NotNil(t, rel.Year)
	assert.Equal(t, 1992, *rel.Year)
	require.NotNil(t, rel.CoverURL)
	assert.Equal(t, "https://img.example/cover.jpg", *rel.CoverURL)

	// The heading row is dropped and indexes stay contiguous.
	require.Len(t, rel.Tracks, 3)
	for i, tr := range rel.Tracks {
		assert.Equal(t, i, tr.Index)
	}
	assert.Equal(t, "Xtal", rel.Tracks[0].Title)
	assert.Equal(t, "Pulsewidth", rel.Tracks[2].Title)
	assert.Equal(t, "B1", rel.Tracks[2].Position)

	require.NotNil(t, rel.Tracks[0].Side)
	assert.Equal(t, "A", *rel.Tracks[0].Side)
	require.NotNil(t, rel.Tracks[0].DurationSec)
	assert.Equal(t, 291, *rel.Tracks[0].DurationSec)

	// Track artist falls back to the release artist.
	assert.Equal(t, "Aphex Twin", rel.Tracks[1].Artist)
}

func TestNormalizeFallbacks(t *testing.T) {
	raw := Raw{
		ID: 7,
		Tracklist: []RawTrack{
			{Position: "", Type: "track", Title: "", Duration: ""},
			{Position: "", Type: "track", Title: "  ", Duration: "oops"},
		},
	}

	rel := Normalize(raw)

	assert.Equal(t, "7", rel.ID)
	assert.Equal(t, "Unknown Artist", rel.Artist)
	assert.Nil(t, rel.Year)
	assert.Nil(t, rel.CoverURL)

	require.Len(t, rel.Tracks, 2)

	// Blank positions are synthesized as 1-based ordinals.
	assert.Equal(t, "1", rel.Tracks[0].Position)
	assert.Equal(t, "2", rel.Tracks[1].Position)
	assert.Nil(t, rel.Tracks[0].Side)

	assert.Equal(t, "Untitled", rel.Tracks[0].Title)
	assert.Equal(t, "Untitled", rel.Tracks[1].Title)
	assert.Equal(t, "Unknown Artist", rel.Tracks[0].Artist)
	assert.Nil(t, rel.Tracks[0].DurationSec)
	assert.Nil(t, rel.Tracks[1].DurationSec)
}

func TestNormalizeTrackArtistOverride(t *testing.T) {
	raw := Raw{
		ID:      99,
		Artists: []RawArtist{{Name: "Various"}},
		Tracklist: []RawTrack{
			{Position: "A1", Type: "track", Title: "Opener", Artists: []RawArtist{{Name: "Guest Act"}}},
			{Position: "A2", Type: "track", Title: "Follow Up"},
		},
	}

	rel := Normalize(raw)

	require.Len(t, rel.Tracks, 2)
	assert.Equal(t, "Guest Act", rel.Tracks[0].Artist)
	assert.Equal(t, "Various", rel.Tracks[1].Artist)
}
