package stores

import (
	"context"
	"encoding/json"
	"time"

	"bridge/relayer/internal/models"

	"github.com/cockroachdb/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketEvents = []byte("events")

	ErrRecordNotFound = errors.New("event record not found")
)

const openTimeout = 2 * time.Second

// EventLog is the processed-event log: one record per bridge event identity.
type EventLog interface {
	Get(ctx context.Context, id string) (*models.EventRecord, error)
	Put(ctx context.Context, rec *models.EventRecord) error
	Scan(ctx context.Context, visit func(*models.EventRecord) error) error
}

type BoltEventLog struct {
	db *bolt.DB
}

// openBolt gives up after openTimeout when another process holds the file.
func openBolt(path string, buckets ...[]byte) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, e := tx.CreateBucketIfNotExists(b); e != nil {
				return e
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewBoltEventLog(path string) (*BoltEventLog, error) {
	db, err := openBolt(path, bucketEvents)
	if err != nil {
		return nil, err
	}
	return &BoltEventLog{db: db}, nil
}

func (s *BoltEventLog) Put(ctx context.Context, rec *models.EventRecord) error {
	if rec.ID == "" {
		return errors.New("event record without id")
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).Put([]byte(rec.ID), blob)
	})
}

func (s *BoltEventLog) Get(ctx context.Context, id string) (*models.EventRecord, error) {
	var out models.EventRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketEvents).Get([]byte(id))
		if v == nil {
			return ErrRecordNotFound
		}
		return json.Unmarshal(v, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Scans all records in key order
func (s *BoltEventLog) Scan(ctx context.Context, visit func(*models.EventRecord) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var rec models.EventRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if err := visit(&rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltEventLog) Close() error {
	return s.db.Close()
}

// FilterStatus collects the records whose status is in statuses, or all
// records when statuses is empty.
func FilterStatus(ctx context.Context, log EventLog, statuses ...models.Status) ([]*models.EventRecord, error) {
	want := make(map[models.Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []*models.EventRecord
	err := log.Scan(ctx, func(rec *models.EventRecord) error {
		if len(want) == 0 || want[rec.Status] {
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}
