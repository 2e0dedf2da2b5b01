package ports

import (
	"context"
	"time"

	"github.com/layer-3/authbridge/core"
)

// CredentialCache holds one credential record per identity.
// Get returns (nil, nil) when no record exists.
type CredentialCache interface {
	Get(ctx context.Context, identity core.Identity) (*core.CredentialRecord, error)
	Set(ctx context.Context, identity core.Identity, record *core.CredentialRecord, ttl time.Duration) error
	Delete(ctx context.Context, identity core.Identity) error
}

// RevocationStore records per-identity session cutoffs.
// Sessions issued at or before the cutoff are no longer valid.
type RevocationStore interface {
	RevokeBefore(ctx context.Context, identity core.Identity, cutoff time.Time, ttl time.Duration) error
	Cutoff(ctx context.Context, identity core.Identity) (time.Time, bool, error)
}
