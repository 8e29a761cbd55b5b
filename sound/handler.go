package sound

import (
	"log/slog"
	"sync"
)

// playerEntry pairs a Player with its mix position and loudness, each
// independently lockable so GetBlock's non-atomic read of start channel and
// volume stays consistent.
type playerEntry struct {
	player       *Player
	mu           sync.Mutex
	startChannel int
	volume       float32
}

// Handler mixes the output of any number of named Players into a fixed
// channel-count output buffer. All public methods are safe for concurrent
// use except GetBlock, which must be called from a single audio-producing
// goroutine.
type Handler struct {
	blockSize  int
	channels   int
	sampleRate float64
	log        *slog.Logger

	playersMu sync.Mutex
	players   map[string]*playerEntry

	output [][]float32
}

// NewHandler creates a Handler mixing into a (channels x blockSize) output.
func NewHandler(channels, blockSize int, sampleRate float64, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	output := make([][]float32, channels)
	for c := range output {
		output[c] = make([]float32, blockSize)
	}
	return &Handler{
		blockSize:  blockSize,
		channels:   channels,
		sampleRate: sampleRate,
		log:        log,
		players:    make(map[string]*playerEntry),
		output:     output,
	}
}

// CreatePlayer registers a new named player. Replaces any existing player
// of the same name.
func (h *Handler) CreatePlayer(name string, filepaths []string, startChannel int, loop LoopState, play PlayState, volume float32) {
	p := NewPlayer(filepaths, play, loop, h.blockSize, h.sampleRate, h.log)
	entry := &playerEntry{player: p, startChannel: startChannel, volume: volume}
	h.playersMu.Lock()
	h.players[name] = entry
	h.playersMu.Unlock()
}

// GetPlayer returns the named player and whether it exists.
func (h *Handler) GetPlayer(name string) (*Player, bool) {
	h.playersMu.Lock()
	defer h.playersMu.Unlock()
	entry, ok := h.players[name]
	if !ok {
		return nil, false
	}
	return entry.player, true
}

// SetPlayerStartChannel sets the mix start channel for a named player.
// Reports whether the player was found.
func (h *Handler) SetPlayerStartChannel(name string, startChannel int) bool {
	h.playersMu.Lock()
	entry, ok := h.players[name]
	h.playersMu.Unlock()
	if !ok {
		return false
	}
	entry.mu.Lock()
	entry.startChannel = startChannel
	entry.mu.Unlock()
	return true
}

// PlayerStartChannel returns the mix start channel for a named player.
func (h *Handler) PlayerStartChannel(name string) (int, bool) {
	h.playersMu.Lock()
	entry, ok := h.players[name]
	h.playersMu.Unlock()
	if !ok {
		return 0, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.startChannel, true
}

// SetPlayerVolume sets the linear gain applied to a named player before
// mixing. Reports whether the player was found.
func (h *Handler) SetPlayerVolume(name string, volume float32) bool {
	h.playersMu.Lock()
	entry, ok := h.players[name]
	h.playersMu.Unlock()
	if !ok {
		return false
	}
	entry.mu.Lock()
	entry.volume = volume
	entry.mu.Unlock()
	return true
}

// PlayerVolume returns the linear gain applied to a named player.
func (h *Handler) PlayerVolume(name string) (float32, bool) {
	h.playersMu.Lock()
	entry, ok := h.players[name]
	h.playersMu.Unlock()
	if !ok {
		return 0, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.volume, true
}

// StopAllPlayers discards every registered player.
func (h *Handler) StopAllPlayers() {
	h.playersMu.Lock()
	h.players = make(map[string]*playerEntry)
	h.playersMu.Unlock()
}

// PlayerNames returns the names of every currently registered player.
func (h *Handler) PlayerNames() []string {
	h.playersMu.Lock()
	defer h.playersMu.Unlock()
	names := make([]string, 0, len(h.players))
	for name := range h.players {
		names = append(names, name)
	}
	return names
}

// GetBlock mixes one block from every registered player into the internal
// output buffer, scaled by each player's volume and loudness, and removes
// any player that has stopped. The returned slice is borrowed and valid
// until the next call to GetBlock.
func (h *Handler) GetBlock(loudness float32) [][]float32 {
	for c := range h.output {
		for i := range h.output[c] {
			h.output[c][i] = 0
		}
	}

	h.playersMu.Lock()
	var stopped []string
	for name, entry := range h.players {
		entry.mu.Lock()
		startChannel := entry.startChannel
		volume := entry.volume
		entry.mu.Unlock()

		block := entry.player.GetBlock()
		if block != nil {
			addAtStartChannel(h.output, block, startChannel, volume*loudness)
		}
		if entry.player.PlayState() == Stopped {
			stopped = append(stopped, name)
		}
	}
	for _, name := range stopped {
		delete(h.players, name)
	}
	h.playersMu.Unlock()

	return h.output
}

// addAtStartChannel adds gain*input into output at startChannel, clipping
// to output's channel range. A negative startChannel drops that many of
// input's leading channels; a startChannel beyond output's width is a
// silent no-op.
func addAtStartChannel(output, input [][]float32, startChannel int, gain float32) {
	inputStart := 0
	if -startChannel > inputStart {
		inputStart = -startChannel
	}
	inputStop := len(input)
	if len(output)-startChannel < inputStop {
		inputStop = len(output) - startChannel
	}
	if inputStop < 0 {
		inputStop = 0
	}
	outputStart := 0
	if startChannel > outputStart {
		outputStart = startChannel
	}

	for i := inputStart; i < inputStop; i++ {
		outCh := outputStart + (i - inputStart)
		if outCh < 0 || outCh >= len(output) {
			continue
		}
		dst := output[outCh]
		src := input[i]
		n := len(dst)
		if len(src) < n {
			n = len(src)
		}
		for k := 0; k < n; k++ {
			dst[k] += gain * src[k]
		}
	}
}
