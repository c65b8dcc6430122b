// Package store persists the Resolver's durable state in a single bbolt
// database: per-chain cursors (§3.1), cross-chain orders (§3.1/§4.3), the
// (chain, txID, logIndex) de-dup set event handling is keyed on (§4.3.2),
// and in-memory-only secrets mirrored here only long enough to survive a
// restart (§3.3). Bucket layout and the byte-key conventions follow
// channeldb/channel.go's approach (top-level bucket per concern, composite
// keys built with bytes.Buffer / binary.BigEndian) rather than inventing a
// new persistence idiom.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coreos/bbolt"
)

var (
	cursorBucket  = []byte("cursors")
	orderBucket   = []byte("orders")
	dedupBucket   = []byte("event-dedup")
	secretBucket  = []byte("secrets")
)

// ErrNotFound is returned when a lookup key has no stored value.
var ErrNotFound = fmt.Errorf("store: not found")

// Store wraps a bbolt database with the Resolver's bucket conventions.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt database at path and
// ensures every top-level bucket this package uses exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %v", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{cursorBucket, orderBucket, dedupBucket, secretBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// OpenReadOnly opens the database at path for concurrent read access
// alongside a writer process holding it open (bbolt's read-only mode uses
// a shared file lock). Used by cmd/resolverctl's introspection
// subcommands (get-order, get-stats) so they can run against a
// live resolverd without contending for its exclusive write lock.
func OpenReadOnly(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout:  5 * time.Second,
		ReadOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s read-only: %v", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetCursor returns the highest fully-processed block height recorded for
// chain, or 0 if none has been recorded yet (I5: the cursor only ever
// moves forward, enforced by SetCursor).
func (s *Store) GetCursor(chain string) (uint64, error) {
	var height uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(cursorBucket)
		v := b.Get([]byte(chain))
		if v == nil {
			return nil
		}
		height = binary.BigEndian.Uint64(v)
		return nil
	})
	return height, err
}

// SetCursor persists height for chain. Returns an error rather than
// silently ignoring a regression, since a caller accidentally moving the
// cursor backwards would violate I5 and cause events to be redelivered as
// if fresh (harmless, since onEvent is idempotent) but is still a bug
// worth surfacing.
func (s *Store) SetCursor(chain string, height uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(cursorBucket)
		cur := b.Get([]byte(chain))
		if cur != nil && binary.BigEndian.Uint64(cur) > height {
			return fmt.Errorf("store: cursor regression for %s: have %d, got %d",
				chain, binary.BigEndian.Uint64(cur), height)
		}
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], height)
		return b.Put([]byte(chain), v[:])
	})
}

// dedupKey builds the composite (chain, txID, logIndex) key de-dup lookups
// and writes are keyed on, mirroring channeldb's chanPoint-as-key
// convention.
func dedupKey(chain, txID string, logIndex uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString(chain)
	buf.WriteByte(':')
	buf.WriteString(txID)
	buf.WriteByte(':')
	binary.Write(&buf, binary.BigEndian, logIndex)
	return buf.Bytes()
}

// SeenEvent reports whether (chain, txID, logIndex) has already been
// applied, and if not, marks it seen — an atomic check-and-set so two
// concurrent callers can never both treat the same event as fresh.
func (s *Store) SeenEvent(chain, txID string, logIndex uint32) (alreadySeen bool, err error) {
	key := dedupKey(chain, txID, logIndex)
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(dedupBucket)
		if b.Get(key) != nil {
			alreadySeen = true
			return nil
		}
		var stamp [8]byte
		binary.BigEndian.PutUint64(stamp[:], uint64(time.Now().Unix()))
		return b.Put(key, stamp[:])
	})
	return alreadySeen, err
}

// PruneDedupOlderThan deletes de-dup entries recorded before cutoff,
// mirroring the retention-horizon GC spec.md §3.3 describes for terminal
// orders. Without this the de-dup set would grow unboundedly.
func (s *Store) PruneDedupOlderThan(cutoff time.Time) error {
	cutoffUnix := uint64(cutoff.Unix())
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(dedupBucket)
		c := b.Cursor()
		var stale [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(v) == 8 && binary.BigEndian.Uint64(v) < cutoffUnix {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutOrder upserts order, JSON-encoded under its OrderHash. JSON rather
// than a hand-rolled binary layout (channeldb/channel.go's approach) because
// the order schema is still evolving relative to the stable wire formats
// channeldb had to support; there's no cross-process compatibility
// requirement forcing a fixed binary encoding here.
func (s *Store) PutOrder(orderHash [32]byte, order interface{}) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(orderBucket).Put(orderHash[:], data)
	})
}

// GetOrder loads the order stored under orderHash into dst, an
// out-parameter in the encoding/json sense (a pointer to the order struct
// the caller owns).
func (s *Store) GetOrder(orderHash [32]byte, dst interface{}) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(orderBucket).Get(orderHash[:])
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, dst)
	})
}

// DeleteOrder removes an order's persisted record, called once it has been
// garbage-collected past the terminal-state retention horizon.
func (s *Store) DeleteOrder(orderHash [32]byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(orderBucket).Delete(orderHash[:])
	})
}

// ForEachOrder iterates every persisted order, JSON-decoding each into a
// fresh value passed to fn. Used at startup to rehydrate the Resolver's
// in-memory order table (§3.3's "Resolver owns all mutation of order
// state" — the store is the system of record it rehydrates from).
func (s *Store) ForEachOrder(fn func(orderHash [32]byte, data []byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(orderBucket)
		return b.ForEach(func(k, v []byte) error {
			var hash [32]byte
			copy(hash[:], k)
			return fn(hash, v)
		})
	})
}

// PutSecret persists a revealed secret keyed by orderHash, so a restart
// mid-swap doesn't lose the one piece of state that lets the Resolver
// finish claiming the other side (§3.3).
func (s *Store) PutSecret(orderHash [32]byte, secret [32]byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(secretBucket).Put(orderHash[:], secret[:])
	})
}

// GetSecret returns the secret stored for orderHash, if any.
func (s *Store) GetSecret(orderHash [32]byte) (secret [32]byte, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(secretBucket).Get(orderHash[:])
		if v == nil {
			return nil
		}
		ok = true
		copy(secret[:], v)
		return nil
	})
	return secret, ok, err
}

// DeleteSecret clears a secret once its order reaches a terminal state,
// per §3.3 ("cleared with the order").
func (s *Store) DeleteSecret(orderHash [32]byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(secretBucket).Delete(orderHash[:])
	})
}
