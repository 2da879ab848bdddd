package stores

import (
	"context"
	"encoding/binary"

	"bridge/relayer/internal/models"

	"github.com/cockroachdb/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketCursors = []byte("cursors")

	ErrCursorRegression = errors.New("cursor regression")
)

// CursorStore persists, per role, the highest fully processed block.
type CursorStore interface {
	Load(ctx context.Context, role models.Role) (block uint64, found bool, err error)
	// Store fails with ErrCursorRegression when block is below the stored value.
	Store(ctx context.Context, role models.Role, block uint64) error
}

type BoltCursorStore struct {
	db *bolt.DB
}

func NewBoltCursorStore(path string) (*BoltCursorStore, error) {
	db, err := openBolt(path, bucketCursors)
	if err != nil {
		return nil, err
	}
	return &BoltCursorStore{db: db}, nil
}

func (s *BoltCursorStore) Load(ctx context.Context, role models.Role) (uint64, bool, error) {
	var (
		block uint64
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCursors).Get([]byte(role))
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return errors.Newf("corrupt cursor for %s: %d bytes", role, len(v))
		}
		block, found = binary.BigEndian.Uint64(v), true
		return nil
	})
	return block, found, err
}

func (s *BoltCursorStore) Store(ctx context.Context, role models.Role, block uint64) error {
	if !role.Valid() {
		return errors.Newf("invalid role %q", role)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCursors)
		if v := b.Get([]byte(role)); len(v) == 8 {
			if prev := binary.BigEndian.Uint64(v); block < prev {
				return errors.Wrapf(ErrCursorRegression, "%s: %d < %d", role, block, prev)
			}
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, block)
		return b.Put([]byte(role), buf)
	})
}

func (s *BoltCursorStore) Close() error {
	return s.db.Close()
}

// LoadAll returns the cursors that exist, keyed by role.
func LoadAll(ctx context.Context, cs CursorStore) (map[models.Role]uint64, error) {
	out := make(map[models.Role]uint64, len(models.Roles))
	for _, role := range models.Roles {
		block, found, err := cs.Load(ctx, role)
		if err != nil {
			return nil, err
		}
		if found {
			out[role] = block
		}
	}
	return out, nil
}
