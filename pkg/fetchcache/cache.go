package fetchcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Adda-Baaj/broker-scraper/internal/logger"
)

const (
	dbFileName  = "fetch.db"
	bucketName  = "discovery"
	openTimeout = 2 * time.Second
)

// Cache stores small per-site discovery artifacts (category and feed URL lists) between runs.
type Cache struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

type entry struct {
	StoredAt time.Time `json:"stored_at"`
	Values   []string  `json:"values"`
}

// Open creates dir when needed and opens the bbolt database inside it.
func Open(dir string, ttl time.Duration) (*Cache, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, dbFileName), 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache bucket: %w", err)
	}

	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// Close releases the database file lock.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Get returns the values stored under key when they are younger than the cache ttl.
func (c *Cache) Get(key string) ([]string, bool) {
	if c == nil || c.db == nil {
		return nil, false
	}

	var e entry
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil
		}
		found = true
		return nil
	})
	if !found {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(e.StoredAt) > c.ttl {
		return nil, false
	}
	return e.Values, true
}

// Put stores values under key, stamped with the current time.
func (c *Cache) Put(key string, values []string) error {
	if c == nil || c.db == nil {
		return nil
	}
	raw, err := json.Marshal(entry{StoredAt: c.now(), Values: values})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), raw)
	})
}

// Clear removes the cache directory entirely. It reports whether anything was removed; a missing
// directory is not an error.
func Clear(dir string, log logger.Logger) (bool, error) {
	log = logger.Ensure(log)

	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.InfoObj("No cache to clear.", "cache_clear", map[string]any{"dir": dir})
			return false, nil
		}
		return false, fmt.Errorf("stat cache dir: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		log.ErrorObj("Failed to clear cache", "cache_clear", map[string]any{
			"dir":   dir,
			"error": err.Error(),
		})
		return false, fmt.Errorf("remove cache dir: %w", err)
	}
	log.InfoObj("Cache cleared successfully.", "cache_clear", map[string]any{"dir": dir})
	return true, nil
}
