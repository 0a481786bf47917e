package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ferryline/photoferry/config"
	"github.com/ferryline/photoferry/model"
)

var (
	ErrKeyNotFound    error = errors.New("key not found")
	ErrBucketNotFound error = errors.New("bucket not found")
)

// Catalog is a durable inventory of the remote namespace, keyed by remote
// path. It is advisory: transfer correctness never depends on it, so it
// may lag behind or be rebuilt at will.
type Catalog struct {
	db     *bbolt.DB
	bucket string
}

// Open opens (and if needed creates) the catalog database.
func Open(cfg *config.CatalogConfig) (*Catalog, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog config: %w", err)
	}
	if !cfg.Enabled() {
		return nil, fmt.Errorf("catalog path is empty")
	}

	db, err := bbolt.Open(cfg.Path, cfg.Mode, nil)
	if err != nil {
		return nil, err
	}
	db.NoSync = cfg.NoSync

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cfg.Bucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Catalog{
		db:     db,
		bucket: cfg.Bucket,
	}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Observe records a discovered entry, preserving the first-seen timestamp
// of an already known path.
func (c *Catalog) Observe(e model.RemoteEntry) error {
	now := time.Now().UTC()
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(c.bucket))
		if b == nil {
			return ErrBucketNotFound
		}

		entry := model.CatalogEntry{
			Size:      e.Size,
			ModTime:   e.ModTime,
			Ext:       e.Ext,
			Dir:       e.Dir,
			FirstSeen: now,
			LastSeen:  now,
		}
		if prev := b.Get([]byte(e.Path)); prev != nil {
			var old model.CatalogEntry
			if err := json.Unmarshal(prev, &old); err == nil && !old.FirstSeen.IsZero() {
				entry.FirstSeen = old.FirstSeen
			}
		}

		val, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(e.Path), val)
	})
}

func (c *Catalog) Get(path string) (*model.CatalogEntry, error) {
	var entry model.CatalogEntry
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(c.bucket))
		if b == nil {
			return ErrBucketNotFound
		}
		val := b.Get([]byte(path))
		if val == nil {
			return ErrKeyNotFound
		}
		return json.Unmarshal(val, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ByDir returns the entries directly in and below one remote directory.
func (c *Catalog) ByDir(dir string) (map[string]model.CatalogEntry, error) {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	results := make(map[string]model.CatalogEntry)

	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(c.bucket))
		if b == nil {
			return ErrBucketNotFound
		}

		cur := b.Cursor()
		for k, v := cur.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = cur.Next() {
			var entry model.CatalogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshal error for key %s: %w", k, err)
			}
			results[string(k)] = entry
		}
		return nil
	})

	return results, err
}

func (c *Catalog) DumpAll() (map[string]model.CatalogEntry, error) {
	results := make(map[string]model.CatalogEntry)

	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(c.bucket))
		if b == nil {
			return ErrBucketNotFound
		}

		return b.ForEach(func(k, v []byte) error {
			var entry model.CatalogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshal error for key %s: %w", k, err)
			}
			results[string(k)] = entry
			return nil
		})
	})

	return results, err
}

func (c *Catalog) Count() (int64, error) {
	var count int64 = 0
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(c.bucket))
		if b == nil {
			return ErrBucketNotFound
		}
		return b.ForEach(func(k, v []byte) error {
			count++
			return nil
		})
	})
	return count, err
}

// Prune deletes entries not seen since the cutoff, returning how many
// were removed. Used after a full scan to drop files deleted remotely.
func (c *Catalog) Prune(cutoff time.Time) (int, error) {
	removed := 0
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(c.bucket))
		if b == nil {
			return ErrBucketNotFound
		}

		cur := b.Cursor()
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			var entry model.CatalogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshal error for key %s: %w", k, err)
			}
			if entry.LastSeen.Before(cutoff) {
				if err := cur.Delete(); err != nil {
					return err
				}
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// IterateBatches streams catalog entries in batches of the specified size.
// Uses short-lived sequential transactions to allow interleaved write operations.
func (c *Catalog) IterateBatches(ctx context.Context, batchSize int) (<-chan map[string]model.CatalogEntry, <-chan error) {
	batchCh := make(chan map[string]model.CatalogEntry)
	errCh := make(chan error, 1)

	go func() {
		defer close(batchCh)
		defer close(errCh)

		var nextKey []byte = nil // Position tracker for resuming iteration

		for {
			batch, resumeKey, err := c.readOneBatch(ctx, nextKey, batchSize)
			if err != nil {
				errCh <- err
				return
			}

			if len(batch) == 0 {
				return
			}

			select {
			case batchCh <- batch:
				if resumeKey == nil {
					return
				}
				nextKey = resumeKey
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return batchCh, errCh
}

// readOneBatch reads a single batch of entries in a short-lived transaction.
// Returns the batch, the next key to resume from, and any error.
func (c *Catalog) readOneBatch(ctx context.Context, startKey []byte, batchSize int) (
	batch map[string]model.CatalogEntry,
	nextKey []byte,
	err error,
) {
	batch = make(map[string]model.CatalogEntry, batchSize)

	err = c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(c.bucket))
		if b == nil {
			return ErrBucketNotFound
		}

		cursor := b.Cursor()

		var k, v []byte
		if startKey == nil {
			k, v = cursor.First()
		} else {
			k, v = cursor.Seek(startKey)
		}

		for ; k != nil && len(batch) < batchSize; k, v = cursor.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var entry model.CatalogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshal error for key %s: %w", k, err)
			}

			batch[string(k)] = entry
		}

		// Keys are only valid inside the transaction, so the resume key is
		// deep copied before the read lock is released.
		if k != nil {
			nextKey = append([]byte(nil), k...)
		}

		return nil
	})

	return batch, nextKey, err
}
