package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"ragpipe/internal/adapter/memstore"
	"ragpipe/internal/domain"
)

var (
	bucketRecords = []byte("records")
	bucketIDs     = []byte("ids") // record id -> sequence key
	bucketMeta    = []byte("meta")
)

// BoltIndex persists records in BoltDB and searches an in-memory copy by
// brute force.
type BoltIndex struct {
	db       *bbolt.DB
	mu       sync.Mutex
	manifest *domain.IndexManifest
	cache    *memstore.Index
}

type storedRecord struct {
	ID      string    `json:"id"`
	Path    string    `json:"path"`
	Content string    `json:"content"`
	Vector  []float32 `json:"v"`
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*BoltIndex, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrStoreInit, path, err)
	}
	return &BoltIndex{db: db}, nil
}

// Init creates the buckets, records the manifest on first use and loads
// existing records into memory.
func (s *BoltIndex) Init(ctx context.Context, manifest domain.IndexManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manifest != nil {
		return s.manifest.Compatible(manifest)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketRecords); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketIDs); err != nil {
			return err
		}

		data, err := reconcileManifest(meta.Get([]byte(manifestKey)), manifest)
		if err != nil {
			return err
		}
		if data != nil {
			return meta.Put([]byte(manifestKey), data)
		}
		return nil
	})
	if err != nil {
		return wrap(domain.ErrStoreInit, err)
	}

	cache := memstore.NewIndex()
	if err := cache.Init(ctx, manifest); err != nil {
		return err
	}
	records, err := s.loadRecords()
	if err != nil {
		return fmt.Errorf("%w: load records: %v", domain.ErrStoreInit, err)
	}
	cache.Load(records)

	s.cache = cache
	s.manifest = &manifest
	return nil
}

// loadRecords reads every record in insertion order.
func (s *BoltIndex) loadRecords() ([]domain.StoredRecord, error) {
	var records []domain.StoredRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var stored storedRecord
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("record %x: %w", k, err)
			}
			id, err := uuid.Parse(stored.ID)
			if err != nil {
				return fmt.Errorf("record %x: %w", k, err)
			}
			records = append(records, domain.StoredRecord{
				ID:      id,
				Path:    stored.Path,
				Content: stored.Content,
				Vector:  stored.Vector,
			})
			return nil
		})
	})
	return records, err
}

// Insert writes the batch in a single transaction. A duplicate record
// ID aborts the transaction, discarding the records already put.
func (s *BoltIndex) Insert(ctx context.Context, records []domain.StoredRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manifest == nil {
		return fmt.Errorf("%w: index not initialized", domain.ErrStoreWrite)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	for _, r := range records {
		if len(r.Vector) != s.manifest.Dimension {
			return fmt.Errorf("%w: vector dimension mismatch: expected %d, got %d", domain.ErrStoreWrite, s.manifest.Dimension, len(r.Vector))
		}
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		ids := tx.Bucket(bucketIDs)
		for _, r := range records {
			id := r.ID[:]
			if ids.Get(id) != nil {
				return fmt.Errorf("duplicate record id %s", r.ID)
			}
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(storedRecord{
				ID:      r.ID.String(),
				Path:    r.Path,
				Content: r.Content,
				Vector:  r.Vector,
			})
			if err != nil {
				return err
			}
			key := seqKey(seq)
			if err := b.Put(key, data); err != nil {
				return err
			}
			if err := ids.Put(id, key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}

	s.cache.Load(records)
	return nil
}

func (s *BoltIndex) Search(ctx context.Context, query []float32, k int) ([]domain.SimilarityResult, error) {
	cache, err := s.loaded(domain.ErrStoreQuery)
	if err != nil {
		return nil, err
	}
	return cache.Search(ctx, query, k)
}

func (s *BoltIndex) Count(ctx context.Context) (int, error) {
	cache, err := s.loaded(domain.ErrStoreQuery)
	if err != nil {
		return 0, err
	}
	return cache.Count(ctx)
}

func (s *BoltIndex) loaded(kind error) (*memstore.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil {
		return nil, fmt.Errorf("%w: index not initialized", kind)
	}
	return s.cache, nil
}

func (s *BoltIndex) Close() error {
	return s.db.Close()
}

// seqKey encodes a sequence number so keys sort in insertion order.
func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
