package tts

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"
)

// CachedEngine wraps an Engine with an on-disk cache keyed by the synthesis
// inputs (engine, text, voice, speed). Resubmitting a project, or retrying
// failed (scene, format) pairs, reuses the audio instead of synthesizing
// the same script again. Concurrent requests for one key synthesize once.
type CachedEngine struct {
	inner Engine
	dir   string
	group singleflight.Group
}

// cacheMeta is the sidecar persisted next to each cached audio file.
type cacheMeta struct {
	Duration float64 `json:"duration"`
	Words    []Word  `json:"words,omitempty"`
}

// NewCachedEngine wraps inner with a cache rooted at dir, creating it if
// needed.
func NewCachedEngine(inner Engine, dir string) (*CachedEngine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tts cache: %w", err)
	}
	return &CachedEngine{inner: inner, dir: dir}, nil
}

func (c *CachedEngine) Name() string { return c.inner.Name() }

func (c *CachedEngine) Voices(ctx context.Context) ([]Voice, error) {
	return c.inner.Voices(ctx)
}

// Synthesize returns the cached audio when present, ignoring outPath: the
// result points into the cache directory, which outlives any job work dir.
func (c *CachedEngine) Synthesize(ctx context.Context, text, voice string, speed float64, outPath string) (Result, error) {
	key := cacheKey(c.inner.Name(), text, voice, speed)
	audioPath := filepath.Join(c.dir, key+".wav")
	metaPath := filepath.Join(c.dir, key+".json")

	v, err, _ := c.group.Do(key, func() (any, error) {
		if res, ok := c.lookup(audioPath, metaPath); ok {
			return res, nil
		}
		res, err := c.inner.Synthesize(ctx, text, voice, speed, audioPath)
		if err != nil {
			return Result{}, err
		}
		c.store(metaPath, res)
		res.AudioPath = audioPath
		return res, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (c *CachedEngine) lookup(audioPath, metaPath string) (Result, bool) {
	if _, err := os.Stat(audioPath); err != nil {
		return Result{}, false
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return Result{}, false
	}
	var meta cacheMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Result{}, false
	}
	return Result{AudioPath: audioPath, Duration: meta.Duration, Words: meta.Words}, true
}

func (c *CachedEngine) store(metaPath string, res Result) {
	data, err := json.Marshal(cacheMeta{Duration: res.Duration, Words: res.Words})
	if err != nil {
		return
	}
	// A failed sidecar write only costs a future cache miss.
	os.WriteFile(metaPath, data, 0o644)
}

func cacheKey(engine, text, voice string, speed float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%.3f", engine, text, voice, speed)
	return fmt.Sprintf("%x", h.Sum(nil))[:32]
}
