// Package cache persists extracted reference text on disk between runs.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type CachedResponse struct {
	Hash      string          `json:"hash"`
	Key       string          `json:"key,omitempty"`
	Response  json.RawMessage `json:"response"`
	CreatedAt time.Time       `json:"created_at"`
}

type Cache struct {
	cacheDir string
	ttl      time.Duration
}

// New creates dir if needed and drops expired entries.
func New(dir string, ttl time.Duration) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating cache directory: %w", err)
	}

	cache := &Cache{
		cacheDir: dir,
		ttl:      ttl,
	}

	_ = cache.CleanExpired()

	return cache, nil
}

func (c *Cache) Dir() string {
	return c.cacheDir
}

// GenerateHash returns the SHA256 hex digest of content.
func (c *Cache) GenerateHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// Get returns the cached value for hash. Expired entries are removed and
// reported as missing.
func (c *Cache) Get(hash string) (json.RawMessage, bool, error) {
	filePath := c.path(hash)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("error reading cache: %w", err)
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, fmt.Errorf("error decoding cache entry: %w", err)
	}

	if c.ttl > 0 && time.Since(cached.CreatedAt) > c.ttl {
		_ = os.Remove(filePath)
		return nil, false, nil
	}

	return cached.Response, true, nil
}

// GetString is Get for entries stored as a JSON string.
func (c *Cache) GetString(key string) (string, bool, error) {
	raw, found, err := c.Get(c.GenerateHash(key))
	if err != nil || !found {
		return "", false, err
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, fmt.Errorf("error decoding cache entry: %w", err)
	}
	return s, true, nil
}

// Set stores response under hash.
func (c *Cache) Set(hash string, response interface{}) error {
	return c.set(hash, "", response)
}

// SetString stores value keyed by the hash of key.
func (c *Cache) SetString(key, value string) error {
	return c.set(c.GenerateHash(key), key, value)
}

func (c *Cache) set(hash, key string, response interface{}) error {
	responseData, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("error encoding response: %w", err)
	}

	cached := CachedResponse{
		Hash:      hash,
		Key:       key,
		Response:  responseData,
		CreatedAt: time.Now(),
	}

	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding cache entry: %w", err)
	}

	// atomic replace
	tmp, err := os.CreateTemp(c.cacheDir, hash+".*.tmp")
	if err != nil {
		return fmt.Errorf("error saving cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("error saving cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("error saving cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(hash)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("error saving cache: %w", err)
	}

	return nil
}

// CleanExpired removes entries older than the TTL.
func (c *Cache) CleanExpired() error {
	if c.ttl <= 0 {
		return nil
	}

	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		return fmt.Errorf("error reading cache directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if time.Since(info.ModTime()) > c.ttl {
			_ = os.Remove(filepath.Join(c.cacheDir, entry.Name()))
		}
	}

	return nil
}

// Clean removes the whole cache directory.
func (c *Cache) Clean() error {
	return os.RemoveAll(c.cacheDir)
}

func (c *Cache) path(hash string) string {
	return filepath.Join(c.cacheDir, hash+".json")
}
