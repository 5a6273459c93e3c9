// Package token provides stored credentials for the external music services.
package token

import "github.com/cockroachdb/errors"

// Service identifies an external music service.
type Service string

const (
	ServiceLastfm  Service = "lastfm"
	ServiceDiscogs Service = "discogs"
)

// ParseService validates a service name received from the wire.
func ParseService(s string) (Service, error) {
	switch Service(s) {
	case ServiceLastfm, ServiceDiscogs:
		return Service(s), nil
	default:
		return "", errors.Newf("unknown service: %s", s)
	}
}

// Token is a long-lived credential for one external service.
type Token struct {
	Service           Service `json:"service"`                     // Owning service
	AccessToken       string  `json:"accessToken"`                 // Session key or OAuth access token
	AccessTokenSecret string  `json:"accessTokenSecret,omitempty"` // OAuth 1.0a token secret (catalog service only)
	Username          string  `json:"username,omitempty"`          // Account name reported at exchange time
	StoredAt          int64   `json:"storedAt"`                    // When the exchange completed, epoch ms
}

// Record holds both service slots for one user, persisted as one value.
// Clearing one slot never touches the other.
type Record struct {
	Lastfm  *Token `json:"lastfm"`
	Discogs *Token `json:"discogs"`
}

// Token returns the slot for svc, nil when not connected.
func (r *Record) Token(svc Service) *Token {
	switch svc {
	case ServiceLastfm:
		return r.Lastfm
	case ServiceDiscogs:
		return r.Discogs
	default:
		return nil
	}
}

// SetToken stores t in the slot for svc.
func (r *Record) SetToken(svc Service, t *Token) {
	switch svc {
	case ServiceLastfm:
		r.Lastfm = t
	case ServiceDiscogs:
		r.Discogs = t
	}
}

// Clear empties the slot for svc.
func (r *Record) Clear(svc Service) {
	r.SetToken(svc, nil)
}
