package override

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"grimm.is/holdover/internal/clock"
	"grimm.is/holdover/internal/state"
)

// Persisted layout. Both keys are written and removed together.
const (
	Bucket    = "override"
	KeyPolicy = "holdover-policy"
	KeyTTL    = "holdover-ttl"
)

// ErrCorruptRecord is returned by Load when only one of the two keys exists
// or the expiry is not an integer.
var ErrCorruptRecord = errors.New("saved override record is corrupt")

// RecordStore persists the SavedOverride.
type RecordStore interface {
	Save(ctx context.Context, prior string, ttl time.Duration) (*SavedOverride, error)
	Load(ctx context.Context) (*SavedOverride, error)
	Clear(ctx context.Context) error
}

// PolicyStore keeps the SavedOverride in a state.Store bucket.
// It performs no retries; callers decide what a failure means.
type PolicyStore struct {
	store state.Store
	clock clock.Clock
}

// NewPolicyStore creates the override bucket if needed.
func NewPolicyStore(ctx context.Context, store state.Store, clk clock.Clock) (*PolicyStore, error) {
	if err := state.EnsureBucket(ctx, store, Bucket); err != nil {
		return nil, fmt.Errorf("create %s bucket: %w", Bucket, err)
	}
	return &PolicyStore{store: store, clock: clock.OrReal(clk)}, nil
}

// Save records prior with an absolute expiry of now+ttl in one write.
func (p *PolicyStore) Save(ctx context.Context, prior string, ttl time.Duration) (*SavedOverride, error) {
	rec := &SavedOverride{
		PriorPolicy: prior,
		ExpiresAt:   clock.EpochSeconds(p.clock) + int64(ttl/time.Second),
	}
	err := p.store.SetMany(ctx, Bucket, map[string][]byte{
		KeyPolicy: []byte(rec.PriorPolicy),
		KeyTTL:    []byte(strconv.FormatInt(rec.ExpiresAt, 10)),
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Load returns the saved record, or nil with no error when there is none.
func (p *PolicyStore) Load(ctx context.Context) (*SavedOverride, error) {
	vals, err := p.store.GetMany(ctx, Bucket, KeyPolicy, KeyTTL)
	if err != nil {
		return nil, err
	}

	policy, hasPolicy := vals[KeyPolicy]
	ttl, hasTTL := vals[KeyTTL]
	switch {
	case !hasPolicy && !hasTTL:
		return nil, nil
	case hasPolicy != hasTTL:
		return nil, ErrCorruptRecord
	}

	expires, err := strconv.ParseInt(string(ttl), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrCorruptRecord, KeyTTL, ttl)
	}
	return &SavedOverride{PriorPolicy: string(policy), ExpiresAt: expires}, nil
}

// Clear removes the record. Clearing an absent record succeeds.
func (p *PolicyStore) Clear(ctx context.Context) error {
	return p.store.DeleteMany(ctx, Bucket, KeyPolicy, KeyTTL)
}
