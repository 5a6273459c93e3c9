package session

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"

	"github.com/oyama27/vinylog/internal/domain/play"
	"github.com/oyama27/vinylog/internal/infra/store"
)

const (
	sessionKeyPrefix = "session:"
	currentKeyPrefix = "session:current:"
)

// Repo persists session snapshots and the per-user current pointer.
// Snapshots expire after the configured TTL so abandoned sessions age out.
type Repo struct {
	store store.Store
	ttl   time.Duration
}

// NewRepo creates a session repository.
func NewRepo(st store.Store, ttl time.Duration) *Repo {
	return &Repo{store: st, ttl: ttl}
}

// Save writes the session snapshot.
func (r *Repo) Save(ctx context.Context, sess *play.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "failed to encode session")
	}
	return r.store.Set(ctx, sessionKeyPrefix+sess.ID, data, r.ttl)
}

// SetCurrent points the user's current-session key at sessionID.
func (r *Repo) SetCurrent(ctx context.Context, userID, sessionID string) error {
	return r.store.Set(ctx, currentKeyPrefix+userID, []byte(sessionID), r.ttl)
}

// Get loads a session snapshot by id.
func (r *Repo) Get(ctx context.Context, id string) (*play.Session, error) {
	data, err := r.store.Get(ctx, sessionKeyPrefix+id)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to load session")
	}

	var sess play.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.Wrap(err, "failed to decode session")
	}
	return &sess, nil
}

// Current resolves the user's current session. A missing pointer or an
// expired snapshot means there is no current session, which is a valid
// state, not an error.
func (r *Repo) Current(ctx context.Context, userID string) (*play.Session, error) {
	data, err := r.store.Get(ctx, currentKeyPrefix+userID)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to load current pointer")
	}

	sess, err := r.Get(ctx, string(data))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}
