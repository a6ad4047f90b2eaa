// Package idempotency guards the off-chain ledger against applying the same
// on-chain settlement twice. A claim is inserted before the ledger-mutating
// side effect it represents; the unique constraint on the signature is the
// sole serialization point across concurrent handlers.
package idempotency

import (
	"context"
	"errors"
)

// ErrAlreadyClaimed indicates the settlement signature was already claimed,
// meaning its ledger effect has been or is being applied. Callers treat this
// as an idempotent replay, not a failure.
var ErrAlreadyClaimed = errors.New("settlement already claimed")

// Register is a durable set of already-applied settlement signatures.
type Register interface {
	// Claim inserts a new claim for the signature. Insert-first: a unique
	// constraint violation maps to ErrAlreadyClaimed. Never check-then-insert;
	// two concurrent handlers would both pass the check.
	Claim(ctx context.Context, signature string) error

	// Release deletes a claim. Used only as a compensating action when the
	// paired ledger mutation failed before anything was recorded, so the
	// whole operation can be retried from scratch.
	Release(ctx context.Context, signature string) error

	// IsClaimed is a defensive existence check before starting expensive
	// work. It must never substitute for Claim.
	IsClaimed(ctx context.Context, signature string) (bool, error)
}
