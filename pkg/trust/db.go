package trust

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Query identifies a set of stored trust lists.
type Query struct {
	// SignerKID is the kid of the signer. Empty matches all signers.
	SignerKID []byte
	// Validity is the period the trust list must cover. A trust list l
	// fulfills it if l.valid_from <= Validity.From and
	// l.valid_until >= Validity.Until. Zero ends are not checked.
	Validity Window
}

// MarshalJSON marshals the query for well formated log output.
func (q Query) MarshalJSON() ([]byte, error) {
	j := struct {
		SignerKID  string    `json:"signer_kid"`
		ValidFrom  time.Time `json:"valid_from"`
		ValidUntil time.Time `json:"valid_until"`
	}{
		SignerKID:  fmt.Sprintf("%x", q.SignerKID),
		ValidFrom:  q.Validity.From,
		ValidUntil: q.Validity.Until,
	}
	return json.Marshal(j)
}

// Matches reports whether a trust list with window w satisfies the validity
// of the query.
func (q Query) Matches(w Window) bool {
	return (q.Validity.From.IsZero() || !w.From.After(q.Validity.From)) &&
		(q.Validity.Until.IsZero() || !w.Until.Before(q.Validity.Until))
}

// DB is the database interface for signed trust lists. Lists are stored as
// received; verification happens when they are loaded. An unverified list
// carrying a legitimate signer kid and a later window shadows the genuine
// one in LatestTrustList, and LoadRepository then fails closed. Use
// InsertVerified to keep such lists out.
type DB interface {
	// TrustLists looks up all trust lists that match the query.
	TrustLists(context.Context, Query) ([][]byte, error)
	// LatestTrustList returns the trust list of the signer with the latest
	// window start, or nil if there is none.
	LatestTrustList(ctx context.Context, signerKID []byte) ([]byte, error)
	// InsertTrustList inserts the given signed trust list. Returns true if it
	// was not yet in the DB.
	InsertTrustList(ctx context.Context, raw []byte) (bool, error)

	Close() error
}

// InsertVerified authenticates raw against the trust anchors of dec and
// inserts it into db. The window is not checked.
func InsertVerified(ctx context.Context, db DB, dec *Decoder, raw []byte) (bool, error) {
	if _, err := dec.Authenticate(raw); err != nil {
		return false, err
	}
	return db.InsertTrustList(ctx, raw)
}

// LoadRepository builds a Repository from the latest trust list of the
// signer stored in db.
func LoadRepository(ctx context.Context, db DB, signerKID []byte, dec *Decoder) (*Repository, error) {
	raw, err := db.LatestTrustList(ctx, signerKID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trust list: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: signer %x", ErrNotFound, signerKID)
	}
	return newRepository(raw, dec), nil
}
