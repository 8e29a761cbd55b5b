// Package control implements the networked control endpoint: it decodes
// inbound pose and command messages and writes them into shared state read
// by the audio engine and the sound handler.
package control

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MaxChannels bounds the number of independently addressable source
// channels a StageSlots/SourceStageSlots can track.
const MaxChannels = 100

// StageSlots holds, per channel, the 15-wide pose row used to key a DS/ER/LR
// filter lookup, plus a dirty bit raised whenever a row's contents change.
// The dirty bit is single-writer (a receiver goroutine) and single-reader
// (the audio thread via TakeDirty); the row itself is protected by mu since
// multiple receiver goroutines may update different channels concurrently.
type StageSlots struct {
	mu     sync.RWMutex
	values [MaxChannels][15]int32
	dirty  [MaxChannels]atomic.Bool
}

// NewStageSlots creates a StageSlots with every channel's dirty bit raised,
// so the first engine block fetches an initial (silent) filter for each.
func NewStageSlots() *StageSlots {
	s := &StageSlots{}
	for i := range s.dirty {
		s.dirty[i].Store(true)
	}
	return s
}

// UpdateSlice merges values into channel's row at [lo, hi), raising the
// channel's dirty bit only if the merge actually changes any value.
func (s *StageSlots) UpdateSlice(channel, lo, hi int, values []int32) error {
	if channel < 0 || channel >= MaxChannels {
		return fmt.Errorf("control: channel %d out of range", channel)
	}
	if len(values) != hi-lo {
		return fmt.Errorf("control: slice [%d:%d) expects %d values, got %d", lo, hi, hi-lo, len(values))
	}

	s.mu.Lock()
	changed := false
	for i, v := range values {
		if s.values[channel][lo+i] != v {
			s.values[channel][lo+i] = v
			changed = true
		}
	}
	s.mu.Unlock()

	if changed {
		s.dirty[channel].Store(true)
	}
	return nil
}

// TakeDirty reports whether channel's row changed since the last call, and
// clears the bit as a side effect.
func (s *StageSlots) TakeDirty(channel int) bool {
	if channel < 0 || channel >= MaxChannels {
		return false
	}
	return s.dirty[channel].CompareAndSwap(true, false)
}

// Dirty reports channel's dirty bit without clearing it.
func (s *StageSlots) Dirty(channel int) bool {
	if channel < 0 || channel >= MaxChannels {
		return false
	}
	return s.dirty[channel].Load()
}

// ClearDirty clears channel's dirty bit unconditionally.
func (s *StageSlots) ClearDirty(channel int) {
	if channel < 0 || channel >= MaxChannels {
		return
	}
	s.dirty[channel].Store(false)
}

// Row returns a snapshot of channel's current 15-wide pose row.
func (s *StageSlots) Row(channel int) [15]int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[channel]
}

// DirtyCount reports how many of the first n channels currently have a
// pending (unrefreshed) pose update. Used for monitoring, not the audio
// thread's own refresh decision.
func (s *StageSlots) DirtyCount(n int) int {
	count := 0
	for ch := 0; ch < n && ch < MaxChannels; ch++ {
		if s.dirty[ch].Load() {
			count++
		}
	}
	return count
}

// SourceStageSlots is StageSlots' 9-wide counterpart, used for source
// directivity (SD) filter rows.
type SourceStageSlots struct {
	mu     sync.RWMutex
	values [MaxChannels][9]int32
	dirty  [MaxChannels]atomic.Bool
}

// NewSourceStageSlots creates a SourceStageSlots with every dirty bit raised.
func NewSourceStageSlots() *SourceStageSlots {
	s := &SourceStageSlots{}
	for i := range s.dirty {
		s.dirty[i].Store(true)
	}
	return s
}

// UpdateSlice merges values into channel's row at [lo, hi).
func (s *SourceStageSlots) UpdateSlice(channel, lo, hi int, values []int32) error {
	if channel < 0 || channel >= MaxChannels {
		return fmt.Errorf("control: channel %d out of range", channel)
	}
	if len(values) != hi-lo {
		return fmt.Errorf("control: slice [%d:%d) expects %d values, got %d", lo, hi, hi-lo, len(values))
	}

	s.mu.Lock()
	changed := false
	for i, v := range values {
		if s.values[channel][lo+i] != v {
			s.values[channel][lo+i] = v
			changed = true
		}
	}
	s.mu.Unlock()

	if changed {
		s.dirty[channel].Store(true)
	}
	return nil
}

// TakeDirty reports whether channel's row changed since the last call, and
// clears the bit as a side effect.
func (s *SourceStageSlots) TakeDirty(channel int) bool {
	if channel < 0 || channel >= MaxChannels {
		return false
	}
	return s.dirty[channel].CompareAndSwap(true, false)
}

// Dirty reports channel's dirty bit without clearing it.
func (s *SourceStageSlots) Dirty(channel int) bool {
	if channel < 0 || channel >= MaxChannels {
		return false
	}
	return s.dirty[channel].Load()
}

// ClearDirty clears channel's dirty bit unconditionally.
func (s *SourceStageSlots) ClearDirty(channel int) {
	if channel < 0 || channel >= MaxChannels {
		return
	}
	s.dirty[channel].Store(false)
}

// Row returns a snapshot of channel's current 9-wide pose row.
func (s *SourceStageSlots) Row(channel int) [9]int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[channel]
}

// DirtyCount reports how many of the first n channels currently have a
// pending (unrefreshed) pose update.
func (s *SourceStageSlots) DirtyCount(n int) int {
	count := 0
	for ch := 0; ch < n && ch < MaxChannels; ch++ {
		if s.dirty[ch].Load() {
			count++
		}
	}
	return count
}
