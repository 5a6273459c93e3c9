// Package auth runs the credential exchanges that connect a user to the
// listening service and the catalog, and stores the resulting tokens.
package auth

import (
	"context"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/oyama27/vinylog/internal/domain/token"
	"github.com/oyama27/vinylog/internal/infra/discogs"
	"github.com/oyama27/vinylog/internal/infra/lastfm"
	"github.com/oyama27/vinylog/internal/infra/store"
)

var (
	// ErrConfig is returned when a flow needs service credentials or a
	// callback URL that were never configured. No network call is made.
	ErrConfig = errors.New("service is not configured")

	// ErrInvalidState is returned when a callback carries no state, an
	// unknown state, or a state that was already consumed.
	ErrInvalidState = errors.New("auth state is unknown or already used")

	// ErrDenied is returned when the user declined authorization or the
	// service rejected the handed-back token.
	ErrDenied = errors.New("authorization was denied")
)

// LastfmClient is the slice of the listening-service client the flows use.
type LastfmClient interface {
	AuthURL(callbackURL string) string
	GetSession(ctx context.Context, token string) (*lastfm.Session, error)
}

// DiscogsClient is the slice of the catalog client the flows use.
type DiscogsClient interface {
	RequestToken(ctx context.Context, callbackURL string) (*discogs.RequestTokenResult, error)
	AccessToken(ctx context.Context, requestToken, requestSecret, verifier string) (*discogs.AccessTokenResult, error)
	Identity(ctx context.Context, token, tokenSecret string) (*discogs.Identity, error)
	AuthorizeURL(requestToken string) string
}

// Config carries the callback URLs registered with each service and the
// lifetime of one-time state records.
type Config struct {
	LastfmCallbackURL  string
	DiscogsCallbackURL string
	StateTTL           time.Duration
}

// Status reports which services hold a stored credential for a user.
type Status struct {
	LastfmConnected  bool   `json:"lastfmConnected"`
	DiscogsConnected bool   `json:"discogsConnected"`
	LastfmUser       string `json:"lastfmUser,omitempty"`
	DiscogsUser      string `json:"discogsUser,omitempty"`
}

// Manager drives both authorization round trips. Each flow mints a
// one-time state before redirecting out and consumes it on the way back,
// so a callback can never be bound to a different user than the one who
// started it.
type Manager struct {
	cfg     Config
	tokens  *Tokens
	states  *states
	lastfm  LastfmClient
	discogs DiscogsClient
	now     func() time.Time
}

// NewManager creates the flow manager. Either client may be nil when its
// service is not configured; the matching flows then fail with ErrConfig
// before any network traffic.
func NewManager(cfg Config, st store.Store, lf LastfmClient, dc DiscogsClient) *Manager {
	return &Manager{
		cfg:     cfg,
		tokens:  NewTokens(st),
		states:  &states{store: st, ttl: cfg.StateTTL},
		lastfm:  lf,
		discogs: dc,
		now:     time.Now,
	}
}

// StartLastfm mints a one-time state for userID and returns the service's
// authorize URL carrying the callback with that state.
func (m *Manager) StartLastfm(ctx context.Context, userID string) (string, error) {
	if m.lastfm == nil || m.cfg.LastfmCallbackURL == "" {
		return "", errors.Wrap(ErrConfig, "last.fm")
	}

	state := uuid.NewString()
	if err := m.states.create(ctx, token.ServiceLastfm, state, stateRecord{UserID: userID}); err != nil {
		return "", err
	}

	cb, err := callbackWithState(m.cfg.LastfmCallbackURL, state)
	if err != nil {
		return "", err
	}

	zlog.Debug().Msgf("last.fm auth started: user=%s", userID)
	return m.lastfm.AuthURL(cb), nil
}

// CallbackLastfm finishes the single-token exchange. The state is consumed
// before anything else, so a replayed callback fails with ErrInvalidState.
func (m *Manager) CallbackLastfm(ctx context.Context, svcToken, state string) error {
	if m.lastfm == nil {
		return errors.Wrap(ErrConfig, "last.fm")
	}
	if state == "" {
		return errors.Wrap(ErrInvalidState, "missing state")
	}

	rec, err := m.states.take(ctx, token.ServiceLastfm, state)
	if err != nil {
		return err
	}
	if svcToken == "" {
		return errors.Wrap(ErrDenied, "callback carried no token")
	}

	sess, err := m.lastfm.GetSession(ctx, svcToken)
	if err != nil {
		var apiErr *lastfm.APIError
		if errors.As(err, &apiErr) && apiErr.Unauthorized() {
			return errors.Wrap(ErrDenied, apiErr.Message)
		}
		return err
	}

	err = m.tokens.Set(ctx, rec.UserID, &token.Token{
		Service:     token.ServiceLastfm,
		AccessToken: sess.Key,
		Username:    sess.Name,
		StoredAt:    m.now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	zlog.Info().Msgf("last.fm connected: user=%s account=%s", rec.UserID, sess.Name)
	return nil
}

// StartDiscogs opens the OAuth dance: fetches an unauthorized token pair,
// stores the secret under the token, and returns the authorize URL.
func (m *Manager) StartDiscogs(ctx context.Context, userID string) (string, error) {
	if m.discogs == nil || m.cfg.DiscogsCallbackURL == "" {
		return "", errors.Wrap(ErrConfig, "discogs")
	}

	result, err := m.discogs.RequestToken(ctx, m.cfg.DiscogsCallbackURL)
	if err != nil {
		if errors.Is(err, discogs.ErrNotConfigured) {
			return "", errors.Wrap(ErrConfig, "discogs")
		}
		return "", err
	}

	rec := stateRecord{UserID: userID, RequestSecret: result.Secret}
	if err := m.states.create(ctx, token.ServiceDiscogs, result.Token, rec); err != nil {
		return "", err
	}

	zlog.Debug().Msgf("discogs auth started: user=%s", userID)
	return m.discogs.AuthorizeURL(result.Token), nil
}

// CallbackDiscogs finishes the OAuth dance. The request token doubles as
// the state key, so an unknown or replayed token fails with
// ErrInvalidState before any exchange is attempted.
func (m *Manager) CallbackDiscogs(ctx context.Context, oauthToken, verifier string) error {
	if m.discogs == nil {
		return errors.Wrap(ErrConfig, "discogs")
	}
	if oauthToken == "" || verifier == "" {
		return errors.Wrap(ErrDenied, "callback missing token or verifier")
	}

	rec, err := m.states.take(ctx, token.ServiceDiscogs, oauthToken)
	if err != nil {
		return err
	}

	access, err := m.discogs.AccessToken(ctx, oauthToken, rec.RequestSecret, verifier)
	if err != nil {
		return err
	}

	identity, err := m.discogs.Identity(ctx, access.Token, access.Secret)
	if err != nil {
		return err
	}

	err = m.tokens.Set(ctx, rec.UserID, &token.Token{
		Service:           token.ServiceDiscogs,
		AccessToken:       access.Token,
		AccessTokenSecret: access.Secret,
		Username:          identity.Username,
		StoredAt:          m.now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	zlog.Info().Msgf("discogs connected: user=%s account=%s", rec.UserID, identity.Username)
	return nil
}

// Disconnect drops the stored credential for one service. Disconnecting a
// service that was never connected succeeds.
func (m *Manager) Disconnect(ctx context.Context, userID string, svc token.Service) error {
	if err := m.tokens.Clear(ctx, userID, svc); err != nil {
		return err
	}
	zlog.Info().Msgf("service disconnected: user=%s service=%s", userID, svc)
	return nil
}

// Status reports the user's stored connections.
func (m *Manager) Status(ctx context.Context, userID string) (*Status, error) {
	rec, err := m.tokens.Record(ctx, userID)
	if err != nil {
		return nil, err
	}

	st := &Status{}
	if rec.Lastfm != nil {
		st.LastfmConnected = true
		st.LastfmUser = rec.Lastfm.Username
	}
	if rec.Discogs != nil {
		st.DiscogsConnected = true
		st.DiscogsUser = rec.Discogs.Username
	}
	return st, nil
}

// LastfmSessionKey returns the user's stored session key, or "" when the
// service is not connected. An unconfigured service reads as disconnected
// even if a key survives in the store from an earlier configuration.
func (m *Manager) LastfmSessionKey(ctx context.Context, userID string) (string, error) {
	if m.lastfm == nil {
		return "", nil
	}
	rec, err := m.tokens.Record(ctx, userID)
	if err != nil {
		return "", err
	}
	if rec.Lastfm == nil {
		return "", nil
	}
	return rec.Lastfm.AccessToken, nil
}

// DiscogsToken returns the user's stored token pair, or nil when the
// catalog is not connected.
func (m *Manager) DiscogsToken(ctx context.Context, userID string) (*token.Token, error) {
	rec, err := m.tokens.Record(ctx, userID)
	if err != nil {
		return nil, err
	}
	return rec.Discogs, nil
}

func callbackWithState(callbackURL, state string) (string, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", errors.Wrapf(ErrConfig, "invalid callback URL %q", callbackURL)
	}
	q := u.Query()
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
