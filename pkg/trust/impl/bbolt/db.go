// Package bbolt implements the trust list database on top of bbolt.
package bbolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
	"time"

	"go.etcd.io/bbolt"

	"github.com/fancl20/hcert/pkg/trust"
)

var bucketTrustLists = []byte("trustlists")

type bboltDB struct {
	db *bbolt.DB
}

// New opens the database at path. Trust lists are grouped in one bucket per
// signer kid and keyed by their window, so the last key of a bucket is the
// most recent list.
func New(path string, opts *bbolt.Options) (trust.DB, error) {
	db, err := bbolt.Open(path, 0600, opts)
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTrustLists)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &bboltDB{
		db: db,
	}, nil
}

// TrustLists looks up all trust lists that match the query.
func (b *bboltDB) TrustLists(ctx context.Context, query trust.Query) ([][]byte, error) {
	var lists [][]byte
	if err := b.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTrustLists)
		var signers [][]byte
		if len(query.SignerKID) > 0 {
			signers = append(signers, []byte(hex.EncodeToString(query.SignerKID)))
		} else {
			b.ForEachBucket(func(k []byte) error {
				signers = append(signers, k)
				return nil
			})
		}

		for _, k := range signers {
			sb := b.Bucket(k)
			if sb == nil {
				continue
			}
			c := sb.Cursor()

			for k, v := c.First(); k != nil; k, v = c.Next() {
				w, err := windowOf(k)
				if err != nil {
					return err
				}
				if query.Matches(w) {
					lists = append(lists, slices.Clone(v))
				}
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return lists, nil
}

// LatestTrustList returns the trust list of the signer with the latest
// window start.
func (b *bboltDB) LatestTrustList(ctx context.Context, signerKID []byte) ([]byte, error) {
	var raw []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTrustLists).Bucket([]byte(hex.EncodeToString(signerKID)))
		if b == nil {
			return nil
		}
		if _, v := b.Cursor().Last(); v != nil {
			raw = slices.Clone(v)
		}
		return nil
	})
	return raw, err
}

// InsertTrustList inserts the given signed trust list. Returns true if it was
// not yet in the DB. A different list of the same signer and window is a
// conflict.
func (b *bboltDB) InsertTrustList(ctx context.Context, raw []byte) (bool, error) {
	env, err := trust.Parse(raw)
	if err != nil {
		return false, err
	}
	w, err := env.Window()
	if err != nil {
		return false, err
	}

	var existed bool
	if err := b.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketTrustLists).CreateBucketIfNotExists([]byte(hex.EncodeToString(env.KID)))
		if err != nil {
			return err
		}
		key := windowKey(w)
		if v := b.Get(key); v != nil {
			if !bytes.Equal(v, raw) {
				return fmt.Errorf("%w: signer %x already has a list for %s", trust.ErrConflict, env.KID, w.From)
			}
			existed = true
			return nil
		}
		return b.Put(key, slices.Clone(raw))
	}); err != nil {
		return false, err
	}

	return !existed, nil
}

func (b *bboltDB) Close() error {
	return b.db.Close()
}

func windowKey(w trust.Window) []byte {
	var key [16]byte
	binary.BigEndian.PutUint64(key[:8], uint64(w.From.Unix()))
	binary.BigEndian.PutUint64(key[8:], uint64(w.Until.Unix()))
	return key[:]
}

func windowOf(key []byte) (trust.Window, error) {
	if len(key) != 16 {
		return trust.Window{}, fmt.Errorf("invalid trust list key length %d", len(key))
	}
	return trust.Window{
		From:  unix(binary.BigEndian.Uint64(key[:8])),
		Until: unix(binary.BigEndian.Uint64(key[8:])),
	}, nil
}

func unix(sec uint64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}
