package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/dekarrin/rezi"
)

// cachedResult is what a cache hit resolves to, skipping re-processing of an
// unchanged input.
type cachedResult struct {
	OutputPath          string
	HasPreprocessorCode bool
}

// cacheEntry is the on-disk rezi-encoded record for one input path.
type cacheEntry struct {
	Path      string
	Hash      string
	OptionKey string
	Result    cachedResult
}

// cacheStore is a flat, path-keyed incremental-processing cache. It exists
// purely as a performance optimization (§4.4); omitting --cache reproduces
// spec.md's behavior exactly. A cache miss, a missing cache file, or an
// undecodable one yields an empty cache; any other error reading the cache
// file is returned by loadCache.
type cacheStore struct {
	entries map[string]cacheEntry
	dirty   bool
}

func loadCache(path string) (*cacheStore, error) {
	c := &cacheStore{entries: map[string]cacheEntry{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}

	var list []cacheEntry
	if _, err := rezi.Dec(data, &list); err != nil {
		// A corrupt or incompatible cache file degrades to a clean cache
		// rather than failing the run.
		return c, nil
	}
	for _, e := range list {
		c.entries[e.Path] = e
	}
	return c, nil
}

func (c *cacheStore) lookup(path, src string, cfg Config) (cachedResult, bool) {
	entry, ok := c.entries[path]
	if !ok {
		return cachedResult{}, false
	}
	if entry.Hash != contentHash(src) || entry.OptionKey != optionKey(cfg) {
		return cachedResult{}, false
	}
	if _, err := os.Stat(entry.Result.OutputPath); err != nil {
		return cachedResult{}, false
	}
	return entry.Result, true
}

func (c *cacheStore) record(path, src string, cfg Config, result cachedResult) {
	c.entries[path] = cacheEntry{
		Path:      path,
		Hash:      contentHash(src),
		OptionKey: optionKey(cfg),
		Result:    result,
	}
	c.dirty = true
}

func (c *cacheStore) save(path string) error {
	if !c.dirty {
		return nil
	}
	list := make([]cacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		list = append(list, e)
	}
	data, err := rezi.Enc(list)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func contentHash(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

// optionKey folds the subset of Config that changes generated output into a
// single comparable string, so a cache entry invalidates whenever
// line-numbering or debug mode flips even if the source itself hasn't.
func optionKey(cfg Config) string {
	key := ""
	if cfg.AddLineNumbers {
		key += "L"
	}
	if cfg.Debug {
		key += "D"
	}
	return key + "/" + cfg.OutputExtension
}
