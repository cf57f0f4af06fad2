// Package store holds the current rule set and persists it between runs.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/freight/internal/core/rates"
)

var (
	// ErrCacheMiss is returned when no snapshot is stored under a key.
	ErrCacheMiss = errors.New("rule set cache miss")

	// ErrSnapshotTooLarge is returned when an encoded snapshot exceeds the cache limit.
	ErrSnapshotTooLarge = errors.New("rule set too large to cache")

	// ErrCorruptSnapshot is returned when a stored payload cannot be decoded.
	ErrCorruptSnapshot = errors.New("corrupt rule set cache entry")
)

// Snapshot is the persisted form of a RuleSet.
type Snapshot struct {
	Rules     []rates.RateRule `json:"rules"`
	Columns   []string         `json:"columns"`
	Shape     rates.Shape      `json:"shape,omitempty"`
	Timestamp int64            `json:"timestamp"` // Unix milliseconds
}

// NewSnapshot captures set at time now.
func NewSnapshot(set *rates.RuleSet, now time.Time) Snapshot {
	return Snapshot{
		Rules:     set.Rules,
		Columns:   set.Columns,
		Shape:     set.Shape,
		Timestamp: now.UnixMilli(),
	}
}

// RuleSet rebuilds the rule set the snapshot was taken from.
func (s Snapshot) RuleSet() *rates.RuleSet {
	return &rates.RuleSet{
		Rules:   s.Rules,
		Columns: s.Columns,
		Shape:   s.Shape,
	}
}

// SavedAt returns the snapshot timestamp.
func (s Snapshot) SavedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Encode marshals the snapshot, rejecting payloads above maxBytes.
// A maxBytes of zero or less disables the limit.
func Encode(s Snapshot, maxBytes int64) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrSnapshotTooLarge, len(data), maxBytes)
	}
	return data, nil
}

// Decode unmarshals a stored payload.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if s.Rules == nil {
		return Snapshot{}, fmt.Errorf("%w: missing rules", ErrCorruptSnapshot)
	}
	return s, nil
}
