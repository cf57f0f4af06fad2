package core

import (
	"sync"
	"time"
)

// HistoryAction names what changed the loaded rule set.
type HistoryAction string

const (
	ActionUpload  HistoryAction = "upload"
	ActionDefault HistoryAction = "default"
	ActionRestore HistoryAction = "restore"
	ActionReset   HistoryAction = "reset"
)

// HistoryEntry records one load or reset.
type HistoryEntry struct {
	UploadID string        `json:"uploadId,omitempty"`
	Action   HistoryAction `json:"action"`
	FileName string        `json:"fileName,omitempty"`
	Rules    int           `json:"rules"`
	Skipped  int           `json:"skipped"`
	Cached   bool          `json:"cached"`
	ClientIP string        `json:"clientIp,omitempty"`
	Error    string        `json:"error,omitempty"` // error code when the load failed
	At       time.Time     `json:"at"`
}

// History is a fixed-size, newest-first log of loads kept in memory.
type History struct {
	mu      sync.Mutex
	entries []HistoryEntry
	size    int
}

// NewHistory creates a History that keeps at most size entries.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size}
}

// Add records e, evicting the oldest entry when full.
func (h *History) Add(e HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, e)
	if len(h.entries) > h.size {
		h.entries = h.entries[len(h.entries)-h.size:]
	}
}

// List returns a copy of the entries, newest first.
func (h *History) List() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]HistoryEntry, len(h.entries))
	for i, e := range h.entries {
		out[len(h.entries)-1-i] = e
	}
	return out
}
