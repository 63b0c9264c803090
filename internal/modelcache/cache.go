// Package modelcache wraps the on-disk model catalog cache described by
// spec.md §6: a {cached_at, data} JSON envelope with a 24 hour expiry,
// read and written through the same afs abstraction the secret store
// uses for file storage.
package modelcache

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/viant/afs"

	"github.com/lucidloop/deskagent/internal/errkind"
)

const defaultTTL = 24 * time.Hour

// envelope is the on-disk shape of cache/models.json.
type envelope struct {
	CachedAt time.Time       `json:"cached_at"`
	Data     json.RawMessage `json:"data"`
}

// Cache reads and writes the model catalog cache file at Path.
type Cache struct {
	path string
	fs   afs.Service
	ttl  time.Duration
}

// New returns a Cache rooted at path with the default 24 hour TTL.
func New(path string) *Cache {
	return &Cache{path: path, fs: afs.New(), ttl: defaultTTL}
}

// WithTTL overrides the default expiry window.
func (c *Cache) WithTTL(ttl time.Duration) *Cache {
	c.ttl = ttl
	return c
}

// Load returns the cached data if present and not expired. A missing
// file or an expired entry both report ok=false without error.
func (c *Cache) Load(ctx context.Context, out interface{}) (ok bool, err error) {
	raw, err := c.fs.DownloadWithURL(ctx, c.path)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errkind.Wrap(err, errkind.IO, "read model cache %s", c.path)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, errkind.Wrap(err, errkind.Protocol, "parse model cache %s", c.path)
	}

	if time.Since(env.CachedAt) > c.ttl {
		return false, nil
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, errkind.Wrap(err, errkind.Protocol, "decode model cache payload")
	}
	return true, nil
}

// Save writes data into the cache envelope, stamping cached_at as now.
func (c *Cache) Save(ctx context.Context, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return errkind.Wrap(err, errkind.Internal, "marshal model cache payload")
	}

	env := envelope{CachedAt: time.Now(), Data: payload}
	raw, err := json.Marshal(env)
	if err != nil {
		return errkind.Wrap(err, errkind.Internal, "marshal model cache envelope")
	}

	if err := c.fs.Upload(ctx, c.path, 0o644, bytes.NewReader(raw)); err != nil {
		return errkind.Wrap(err, errkind.IO, "write model cache %s", c.path)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if os.IsNotExist(err) {
		return true
	}
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(strings.ToLower(err.Error()), "no such file")
}
