// Package cache stores validated agent outputs keyed by the exact request sent
// to the model.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ResultCache is a store of validated outputs. A miss is (nil, false, nil).
type ResultCache interface {
	Get(ctx context.Context, key string) (map[string]interface{}, bool, error)
	Set(ctx context.Context, key string, value map[string]interface{}, ttl time.Duration) error
}

// NopCache never hits and never stores.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (map[string]interface{}, bool, error) {
	return nil, false, nil
}

func (NopCache) Set(context.Context, string, map[string]interface{}, time.Duration) error {
	return nil
}

// Key derives a cache key from everything that determines the model's answer.
// schema is the marshalled output schema. Settings that cannot be encoded as
// JSON (NaN, for one) make the request uncacheable.
func Key(model, instructions, prompt string, schema []byte, settings map[string]interface{}) (string, error) {
	h := sha256.New()
	for _, part := range []string{model, instructions, prompt} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(schema)
	h.Write([]byte{0})
	if len(settings) > 0 {
		// map keys are marshalled in sorted order
		raw, err := json.Marshal(settings)
		if err != nil {
			return "", fmt.Errorf("failed to encode settings for cache key: %w", err)
		}
		h.Write(raw)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
