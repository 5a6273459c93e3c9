package auth

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"

	"github.com/oyama27/vinylog/internal/domain/token"
	"github.com/oyama27/vinylog/internal/infra/store"
)

const stateKeyPrefix = "authstate:"

// stateRecord binds an in-flight authorization round trip to the user who
// started it. RequestSecret is only set for the OAuth 1.0a flow.
type stateRecord struct {
	UserID        string `json:"userId"`
	RequestSecret string `json:"requestSecret,omitempty"`
}

// states keeps one-time state records with a short TTL. A record is
// consumed on first read, so a replayed callback cannot match it again.
type states struct {
	store store.Store
	ttl   time.Duration
}

func (s *states) create(ctx context.Context, svc token.Service, key string, rec stateRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to encode auth state")
	}
	return s.store.Set(ctx, stateKey(svc, key), data, s.ttl)
}

func (s *states) take(ctx context.Context, svc token.Service, key string) (*stateRecord, error) {
	data, err := s.store.Take(ctx, stateKey(svc, key))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, errors.Wrap(ErrInvalidState, "state not found or already used")
		}
		return nil, errors.Wrap(err, "failed to load auth state")
	}

	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "failed to decode auth state")
	}
	return &rec, nil
}

func stateKey(svc token.Service, key string) string {
	return stateKeyPrefix + string(svc) + ":" + key
}
