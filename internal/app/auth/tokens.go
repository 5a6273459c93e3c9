package auth

import (
	"context"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"

	"github.com/oyama27/vinylog/internal/domain/token"
	"github.com/oyama27/vinylog/internal/infra/store"
)

const tokenKeyPrefix = "token:"

// Tokens persists the per-user credential record. Both service slots live
// in one value, so a write to one slot always rewrites the record with the
// other slot intact.
type Tokens struct {
	store store.Store
}

// NewTokens creates the token repository.
func NewTokens(st store.Store) *Tokens {
	return &Tokens{store: st}
}

// Record loads the user's credential record, empty when nothing is stored.
func (t *Tokens) Record(ctx context.Context, userID string) (*token.Record, error) {
	data, err := t.store.Get(ctx, tokenKeyPrefix+userID)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return &token.Record{}, nil
		}
		return nil, errors.Wrap(err, "failed to load token record")
	}

	var rec token.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "failed to decode token record")
	}
	return &rec, nil
}

// Set stores tok in its service slot, leaving the other slot untouched.
func (t *Tokens) Set(ctx context.Context, userID string, tok *token.Token) error {
	rec, err := t.Record(ctx, userID)
	if err != nil {
		return err
	}
	rec.SetToken(tok.Service, tok)
	return t.save(ctx, userID, rec)
}

// Clear empties one service slot. Clearing an absent token succeeds.
func (t *Tokens) Clear(ctx context.Context, userID string, svc token.Service) error {
	rec, err := t.Record(ctx, userID)
	if err != nil {
		return err
	}
	rec.Clear(svc)
	return t.save(ctx, userID, rec)
}

func (t *Tokens) save(ctx context.Context, userID string, rec *token.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to encode token record")
	}
	return t.store.Set(ctx, tokenKeyPrefix+userID, data, 0)
}
