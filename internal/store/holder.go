package store

import (
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/freight/internal/core/rates"
)

// Loaded is the rule set currently in use plus where it came from.
type Loaded struct {
	Set      *rates.RuleSet
	Source   Source
	LoadedAt time.Time
}

// Source identifies how the current rule set was loaded.
type Source string

const (
	SourceNone    Source = ""
	SourceDefault Source = "default"
	SourceUpload  Source = "upload"
	SourceCache   Source = "cache"
)

// Holder publishes the current rule set to concurrent readers.
//
// Writers replace the whole value; readers get a pointer to a value that is
// never modified afterwards, so an in-flight lookup keeps a consistent view
// even if a reload lands mid-request. The zero value holds nothing.
type Holder struct {
	current atomic.Pointer[Loaded]
}

// Current returns the loaded rule set, or nil if none is loaded.
func (h *Holder) Current() *Loaded {
	return h.current.Load()
}

// Replace publishes a new rule set.
func (h *Holder) Replace(set *rates.RuleSet, source Source, at time.Time) {
	h.current.Store(&Loaded{Set: set, Source: source, LoadedAt: at})
}

// Clear drops the current rule set.
func (h *Holder) Clear() {
	h.current.Store(nil)
}
