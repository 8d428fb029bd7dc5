// Package journal keeps an append-only record of lease events in a bbolt
// database. The journal is meant for auditing: it is never read back into
// the lease store.
package journal

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/caddyserver/caddy"
	"github.com/google/uuid"
	"github.com/nextdhcp/nextpool/core/events"
	bolt "go.etcd.io/bbolt"
)

// SchemaVersion is the version of the on-disk layout written by this package
const SchemaVersion = 2

var (
	// ErrClosed is returned when appending to a closed journal
	ErrClosed = errors.New("journal closed")

	// ErrNewerSchema is returned when the database has been written by a
	// newer version
	ErrNewerSchema = errors.New("journal schema is newer than supported")

	metaBucket    = []byte("meta")
	eventsBucket  = []byte("events")
	byOwnerBucket = []byte("by-owner")

	versionKey = []byte("version")
)

type (
	// Journal is an append-only lease event log
	Journal struct {
		path string

		l      sync.Mutex
		db     *bolt.DB
		closed bool
	}

	// Record is a single journal entry
	Record struct {
		Seq     uint64          `json:"-"`
		ID      uuid.UUID       `json:"id"`
		Event   caddy.EventName `json:"event"`
		IP      string          `json:"ip"`
		HwAddr  string          `json:"hwaddr"`
		Expires time.Time       `json:"expires"`
		At      time.Time       `json:"at"`
	}

	// migration upgrades the database from version n-1 to n
	migration func(tx *bolt.Tx) error
)

// migrations is indexed by the version they produce
var migrations = map[int]migration{
	1: func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(eventsBucket)
		return err
	},
	2: func(tx *bolt.Tx) error {
		idx, err := tx.CreateBucketIfNotExists(byOwnerBucket)
		if err != nil {
			return err
		}

		return tx.Bucket(eventsBucket).ForEach(func(k, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				// skip corrupt entries but keep migrating the rest
				return nil
			}

			hw, err := net.ParseMAC(r.HwAddr)
			if err != nil {
				return nil
			}

			return idx.Put(ownerKey(hw, binary.BigEndian.Uint64(k)), nil)
		})
	},
}

// Open opens or creates the journal at path and migrates it to
// SchemaVersion
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0660, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}

	if err := migrate(db, SchemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal %s: %w", path, err)
	}

	return &Journal{path: path, db: db}, nil
}

// Version returns the schema version stored in db. A database without
// meta bucket has version 0
func Version(tx *bolt.Tx) int {
	meta := tx.Bucket(metaBucket)
	if meta == nil {
		return 0
	}

	v := meta.Get(versionKey)
	if len(v) != 8 {
		return 0
	}

	return int(binary.BigEndian.Uint64(v))
}

func migrate(db *bolt.DB, target int) error {
	return db.Update(func(tx *bolt.Tx) error {
		current := Version(tx)
		if current > target {
			return fmt.Errorf("%w: %d > %d", ErrNewerSchema, current, target)
		}

		for v := current + 1; v <= target; v++ {
			m, ok := migrations[v]
			if !ok {
				return fmt.Errorf("no migration to version %d", v)
			}

			if err := m(tx); err != nil {
				return fmt.Errorf("migration to version %d: %w", v, err)
			}
		}

		return setVersion(tx, target)
	})
}

func setVersion(tx *bolt.Tx, v int) error {
	meta, err := tx.CreateBucketIfNotExists(metaBucket)
	if err != nil {
		return err
	}

	return meta.Put(versionKey, itob(uint64(v)))
}

// Path returns the file path of the journal
func (j *Journal) Path() string {
	return j.path
}

// Append writes e to the journal
func (j *Journal) Append(e *events.LeaseEvent) error {
	j.l.Lock()
	defer j.l.Unlock()

	if j.closed {
		return ErrClosed
	}

	r := Record{
		ID:      e.ID,
		Event:   e.Name,
		IP:      e.Lease.IP().String(),
		HwAddr:  e.Lease.Owner.String(),
		Expires: e.Lease.Expires.UTC(),
		At:      e.At.UTC(),
	}

	blob, err := json.Marshal(r)
	if err != nil {
		return err
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(eventsBucket)

		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}

		if err := bucket.Put(itob(seq), blob); err != nil {
			return err
		}

		if len(e.Lease.Owner) == 0 {
			return nil
		}

		return tx.Bucket(byOwnerBucket).Put(ownerKey(e.Lease.Owner, seq), nil)
	})
}

// Records returns all journal entries in the order they have been written
func (j *Journal) Records(ctx context.Context) ([]Record, error) {
	var records []Record

	err := j.view(func(tx *bolt.Tx) error {
		c := tx.Bucket(eventsBucket).Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			r, err := decode(k, v)
			if err != nil {
				continue
			}

			records = append(records, r)
		}

		return nil
	})

	return records, err
}

// History returns all journal entries of the client hw
func (j *Journal) History(ctx context.Context, hw net.HardwareAddr) ([]Record, error) {
	var records []Record

	err := j.view(func(tx *bolt.Tx) error {
		entries := tx.Bucket(eventsBucket)
		c := tx.Bucket(byOwnerBucket).Cursor()

		prefix := []byte(hw)
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			seq := k[len(prefix):]
			if len(seq) != 8 {
				continue
			}

			v := entries.Get(seq)
			if v == nil {
				continue
			}

			r, err := decode(seq, v)
			if err != nil {
				continue
			}

			records = append(records, r)
		}

		return nil
	})

	return records, err
}

// Close closes the journal. Further calls to Append return ErrClosed
func (j *Journal) Close() error {
	j.l.Lock()
	defer j.l.Unlock()

	if j.closed {
		return nil
	}

	j.closed = true
	return j.db.Close()
}

func (j *Journal) view(fn func(tx *bolt.Tx) error) error {
	j.l.Lock()
	defer j.l.Unlock()

	if j.closed {
		return ErrClosed
	}

	return j.db.View(fn)
}

func decode(k, v []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(v, &r); err != nil {
		return r, err
	}

	r.Seq = binary.BigEndian.Uint64(k)
	return r, nil
}

func ownerKey(hw net.HardwareAddr, seq uint64) []byte {
	return append(append([]byte{}, hw...), itob(seq)...)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
