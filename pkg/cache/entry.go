package cache

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// KeyID derives the storage identifier for a logical key: the hex encoded
// BLAKE2b-256 digest of the key bytes.
func KeyID(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Entry is a stored value together with its lifetime.
type Entry struct {
	Key       string
	Value     json.RawMessage
	CreatedAt time.Time
	ExpiresAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is no longer valid at now.
// An entry is valid only while now is strictly before ExpiresAt.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Decode unmarshals the stored value into dst. Numbers decode as json.Number
// when dst is an interface, so integers keep their exact value.
func (e Entry) Decode(dst any) error {
	dec := json.NewDecoder(bytes.NewReader(e.Value))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("failed to decode value for %q: %w", e.Key, err)
	}
	return nil
}

// envelope is the on-disk form of an Entry.
type envelope struct {
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	Created    time.Time       `json:"created"`
	Expires    time.Time       `json:"expires"`
	TTLSeconds float64         `json:"ttl_seconds"`
}

func encodeEntry(e Entry) ([]byte, error) {
	data, err := json.Marshal(envelope{
		Key:        e.Key,
		Value:      e.Value,
		Created:    e.CreatedAt,
		Expires:    e.ExpiresAt,
		TTLSeconds: e.TTL.Seconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry %q: %w", e.Key, err)
	}
	return data, nil
}

func decodeEntry(data []byte) (Entry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Entry{}, fmt.Errorf("corrupt cache entry: %w", err)
	}
	if env.Expires.IsZero() || len(env.Value) == 0 {
		return Entry{}, fmt.Errorf("corrupt cache entry: missing fields")
	}
	if !json.Valid(env.Value) {
		return Entry{}, fmt.Errorf("corrupt cache entry: invalid value")
	}

	return Entry{
		Key:       env.Key,
		Value:     env.Value,
		CreatedAt: env.Created,
		ExpiresAt: env.Expires,
		TTL:       time.Duration(env.TTLSeconds * float64(time.Second)),
	}, nil
}
