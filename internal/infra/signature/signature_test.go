package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaintext(t *testing.T) {
	tests := []struct {
		name           string
		consumerSecret string
		tokenSecret    string
		want           string
	}{
		{
			name:           "both secrets",
			consumerSecret: "consumer",
			tokenSecret:    "token",
			want:           "consumer&token",
		},
		{
			name:           "empty token secret",
			consumerSecret: "consumer",
			tokenSecret:    "",
			want:           "consumer&",
		},
		{
			name:           "space is percent encoded",
			consumerSecret: "con sumer",
			tokenSecret:    "",
			want:           "con%20sumer&",
		},
		{
			name:           "reserved characters are escaped",
			consumerSecret: "a&b",
			tokenSecret:    "c/d",
			want:           "a%26b&c%2Fd",
		},
		{
			name:           "unreserved characters pass through",
			consumerSecret: "a-b._~",
			tokenSecret:    "x",
			want:           "a-b._~&x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Plaintext(tt.consumerSecret, tt.tokenSecret)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAPISig(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		secret string
		want   string
	}{
		{
			name: "session exchange parameters",
			params: map[string]string{
				"api_key": "key123",
				"method":  "auth.getSession",
				"token":   "tok456",
			},
			secret: "secret789",
			want:   "dad7310733feb22209dff541ebb76cba",
		},
		{
			name: "format and api_sig are excluded",
			params: map[string]string{
				"api_key": "abc",
				"method":  "track.scrobble",
				"sk":      "sess",
				"format":  "json",
				"api_sig": "bogus",
			},
			secret: "mysecret",
			want:   "70e293b53a977c47d147e847104d8704",
		},
		{
			name:   "empty parameter set signs the secret alone",
			params: map[string]string{},
			secret: "mysecret",
			want:   "06c219e5bc8378f3a8a3f83b4b7e4649",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := APISig(tt.params, tt.secret)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAPISigDeterministic(t *testing.T) {
	params := map[string]string{
		"artist":  "Boards of Canada",
		"track":   "Roygbiv",
		"api_key": "k",
		"sk":      "s",
	}
	first := APISig(params, "sec")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, APISig(params, "sec"))
	}
}
