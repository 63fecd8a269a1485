package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Cache is a string to string map persisted as one json file. An empty
// path keeps it in memory only.
type Cache struct {
	mu     sync.Mutex
	path   string
	loaded bool
	Data   map[string]string `json:"Data"`
}

func New(path string) *Cache {
	return &Cache{path: path, Data: map[string]string{}}
}

func (c *Cache) load() {
	if c.loaded {
		return
	}
	c.loaded = true
	if c.path == "" {
		return
	}
	content, err := os.ReadFile(c.path)
	if err != nil {
		return
	}
	// a corrupted cache file is treated as empty
	stored := map[string]string{}
	if err := json.Unmarshal(content, &struct {
		Data *map[string]string `json:"Data"`
	}{&stored}); err != nil {
		return
	}
	for k, v := range stored {
		c.Data[k] = v
	}
}

func (c *Cache) persist() error {
	if c.path == "" {
		return nil
	}
	jsonData, err := json.MarshalIndent(struct {
		Data map[string]string `json:"Data"`
	}{c.Data}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path, jsonData, 0o644)
}

func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()
	value, found := c.Data[key]
	return value, found
}

func (c *Cache) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()
	c.Data[key] = value
	return c.persist()
}
