// Package sound provides file-backed audio players and a handler that mixes
// multiple players' output into the engine's loudspeaker/source channel
// layout.
package sound

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"binsim-go/internal/wavefile"
)

// PlayState is a Player's transport state.
type PlayState int32

const (
	Playing PlayState = iota
	Paused
	Stopped
)

// LoopState selects whether a Player restarts its playlist at the end.
type LoopState int32

const (
	Single LoopState = iota
	Loop
)

// QueueMinSize is the minimum number of blocks the background filler keeps
// queued before a refill is triggered.
const QueueMinSize = 4

// Player emits audio from a playlist of file paths according to its
// play/loop state. Once the playlist is exhausted under Single loop state,
// the last block is zero-padded and the player transitions to Stopped;
// a stopped player never plays again.
type Player struct {
	blockSize  int
	sampleRate float64
	log        *slog.Logger

	playState atomic.Int32
	loopState atomic.Int32

	mu               sync.Mutex
	filepaths        []string
	nextFileIndex    int
	leftover         [][]float32
	everythingQueued bool
	queue            [][][]float32 // FIFO of channels x blockSize blocks

	fillRunning atomic.Bool
}

// NewPlayer creates a Player over filepaths and synchronously fills the
// playback queue once before returning, mirroring the construction-time
// prefetch of the teacher's reference design.
func NewPlayer(filepaths []string, initialPlay PlayState, initialLoop LoopState, blockSize int, sampleRate float64, log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	p := &Player{
		blockSize:  blockSize,
		sampleRate: sampleRate,
		log:        log,
		filepaths:  append([]string(nil), filepaths...),
	}
	p.playState.Store(int32(initialPlay))
	p.loopState.Store(int32(initialLoop))

	if len(p.filepaths) == 0 {
		p.playState.Store(int32(Stopped))
		p.everythingQueued = true
		return p
	}

	p.fillQueue()
	return p
}

// PlayState returns the current transport state.
func (p *Player) PlayState() PlayState { return PlayState(p.playState.Load()) }

// SetPlayState sets the transport state. Setting Playing on an already
// Stopped player has no effect: once stopped, a player never resumes.
func (p *Player) SetPlayState(s PlayState) {
	if PlayState(p.playState.Load()) == Stopped {
		return
	}
	p.playState.Store(int32(s))
}

// LoopState returns the current loop state.
func (p *Player) LoopState() LoopState { return LoopState(p.loopState.Load()) }

// SetLoopState sets the loop state. Takes effect once the filler notices it,
// approximately QueueMinSize blocks later.
func (p *Player) SetLoopState(s LoopState) { p.loopState.Store(int32(s)) }

// GetBlock returns the next (channels x blockSize) audio block, or nil if
// the player has stopped. Not safe to call concurrently with itself; call
// from a single audio-producing goroutine only.
func (p *Player) GetBlock() [][]float32 {
	p.stopIfReady()

	var block [][]float32
	switch PlayState(p.playState.Load()) {
	case Playing:
		p.mu.Lock()
		if len(p.queue) > 0 {
			block = p.queue[0]
			p.queue = p.queue[1:]
		}
		needsFill := len(p.queue) < QueueMinSize && !p.everythingQueued
		p.mu.Unlock()

		if block == nil {
			p.log.Warn("sound: playback queue empty, substituting silence")
			block = [][]float32{make([]float32, p.blockSize)}
		}
		if needsFill {
			p.requestFill()
		}

	case Paused:
		block = [][]float32{make([]float32, p.blockSize)}

	default:
		block = nil
	}

	p.stopIfReady()
	return block
}

func (p *Player) stopIfReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.everythingQueued && len(p.queue) == 0 && PlayState(p.playState.Load()) != Stopped {
		p.playState.Store(int32(Stopped))
	}
}

// requestFill launches a background fill if one isn't already running,
// mirroring a single-worker thread pool.
func (p *Player) requestFill() {
	if p.fillRunning.CompareAndSwap(false, true) {
		go func() {
			defer p.fillRunning.Store(false)
			p.fillQueue()
		}()
	}
}

// fillQueue tops the queue up to QueueMinSize blocks, reading files in
// playlist order and looping or stopping at playlist end as configured.
func (p *Player) fillQueue() {
	for {
		p.mu.Lock()
		queueLen := len(p.queue)
		done := p.everythingQueued
		p.mu.Unlock()
		if queueLen >= QueueMinSize || done {
			return
		}

		p.mu.Lock()
		if p.endOfPlaylistLocked() && LoopState(p.loopState.Load()) == Loop {
			p.nextFileIndex = 0
		}
		atEnd := p.endOfPlaylistLocked()
		fileIndex := p.nextFileIndex
		filepath := ""
		if !atEnd {
			filepath = p.filepaths[fileIndex]
		}
		p.mu.Unlock()

		if !atEnd {
			if err := p.readAndQueue(filepath); err != nil {
				p.log.Error("sound: failed to read playlist entry, skipping", "path", filepath, "error", err)
				p.mu.Lock()
				p.filepaths = append(p.filepaths[:fileIndex], p.filepaths[fileIndex+1:]...)
				p.mu.Unlock()
			} else {
				p.mu.Lock()
				p.nextFileIndex++
				p.mu.Unlock()
			}
		}

		p.mu.Lock()
		finished := (p.endOfPlaylistLocked() && LoopState(p.loopState.Load()) == Single) || len(p.filepaths) == 0
		if finished {
			if len(p.leftover) > 0 && len(p.leftover[0]) > 0 {
				padded := make([][]float32, len(p.leftover))
				for c := range padded {
					padded[c] = make([]float32, p.blockSize)
					copy(padded[c], p.leftover[c])
				}
				p.queue = append(p.queue, padded)
			} else if len(p.queue) == 0 {
				p.playState.Store(int32(Stopped))
			}
			p.everythingQueued = true
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

// endOfPlaylistLocked reports whether every playlist entry has been queued.
// Callers must hold p.mu.
func (p *Player) endOfPlaylistLocked() bool {
	return p.nextFileIndex >= len(p.filepaths)
}

// readAndQueue decodes one file, concatenates it with any leftover audio
// from the previous file, and pushes complete blockSize-sized blocks onto
// the queue, keeping any remainder as the new leftover.
func (p *Player) readAndQueue(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("sound: opening %s: %w", path, err)
	}
	defer f.Close()

	wav, err := wavefile.Parse(f)
	if err != nil {
		return fmt.Errorf("sound: parsing %s: %w", path, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	combined := audioConcat(p.leftover, wav.Data)
	offset := 0
	for len(combined) > 0 && len(combined[0])-offset >= p.blockSize {
		block := make([][]float32, len(combined))
		for c := range combined {
			block[c] = append([]float32(nil), combined[c][offset:offset+p.blockSize]...)
		}
		p.queue = append(p.queue, block)
		offset += p.blockSize
	}

	if len(combined) == 0 {
		p.leftover = nil
		return nil
	}
	remainderLen := len(combined[0]) - offset
	remainder := make([][]float32, len(combined))
	for c := range combined {
		remainder[c] = append([]float32(nil), combined[c][offset:offset+remainderLen]...)
	}
	p.leftover = remainder
	return nil
}

// audioConcat concatenates a and b along the sample axis, widening the
// channel count to the larger of the two and zero-filling the gaps.
func audioConcat(a, b [][]float32) [][]float32 {
	channels := len(a)
	if len(b) > channels {
		channels = len(b)
	}
	aLen, bLen := 0, 0
	if len(a) > 0 {
		aLen = len(a[0])
	}
	if len(b) > 0 {
		bLen = len(b[0])
	}

	out := make([][]float32, channels)
	for c := 0; c < channels; c++ {
		out[c] = make([]float32, aLen+bLen)
		if c < len(a) {
			copy(out[c][:aLen], a[c])
		}
		if c < len(b) {
			copy(out[c][aLen:], b[c])
		}
	}
	return out
}
