package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"binsim-go/control"
	"binsim-go/dsp"
	"binsim-go/sound"
)

// DriverStatus reports audio-driver callback conditions.
type DriverStatus int

const (
	DriverStatusOK DriverStatus = iota
	DriverStatusUnderrun
)

// Engine owns the per-block convolution pipeline: DS/ER/LR (+ optional SD,
// HP), driven by pose rows the Receiver writes into shared StageSlots.
type Engine struct {
	config *Config
	log    *slog.Logger

	channels  int
	blockSize int

	handler *sound.Handler
	storage *dsp.FilterStorage

	dsSlots *control.StageSlots
	erSlots *control.StageSlots
	lrSlots *control.StageSlots
	sdSlots *control.SourceStageSlots

	inputBuffer   *dsp.InputBuffer
	inputBufferSD *dsp.InputBuffer
	inputBufferHP *dsp.InputBuffer

	dsConvolver *dsp.Convolver
	erConvolver *dsp.Convolver
	lrConvolver *dsp.Convolver
	sdConvolver *dsp.Convolver
	hpConvolver *dsp.Convolver

	sumBlock  [2][]float32 // DS+ER+LR mix, reused each block
	pauseMix  [2][]float32 // mono mixdown while convolution is paused, reused each block
	zeroBlock [][]float32

	dsFilters []*dsp.Filter // reused across refreshStage calls
	erFilters []*dsp.Filter
	lrFilters []*dsp.Filter
	sdFilters []*dsp.Filter

	underrunCount atomic.Uint64
	clipCount     atomic.Uint64
}

// New builds an Engine from cfg, wiring the Filter Storage, Sound Handler,
// and shared pose-slot state that the Receiver mutates concurrently.
func New(cfg *Config, storage *dsp.FilterStorage, handler *sound.Handler, ds, er, lr *control.StageSlots, sd *control.SourceStageSlots, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}

	e := &Engine{
		config:    cfg,
		log:       log,
		channels:  cfg.MaxChannels,
		blockSize: cfg.BlockSize,
		handler:   handler,
		storage:   storage,
		dsSlots:   ds,
		erSlots:   er,
		lrSlots:   lr,
		sdSlots:   sd,
	}

	var err error
	if e.inputBuffer, err = dsp.NewInputBuffer(e.channels, e.blockSize); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if e.inputBufferSD, err = dsp.NewInputBuffer(2, e.blockSize); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if e.inputBufferHP, err = dsp.NewInputBuffer(2, e.blockSize); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	newStageConvolver := func(name string, irSize int, stereoInput bool, sources int) (*dsp.Convolver, error) {
		partitions := dsp.PartitionsFor(irSize, e.blockSize)
		normalized := partitions * e.blockSize
		if normalized != irSize {
			log.Info("engine: zero-padding filter size to a block multiple", "stage", name, "requested", irSize, "used", normalized)
		}
		c, err := dsp.NewConvolver(normalized, e.blockSize, stereoInput, sources, cfg.EnableCrossfading)
		if err != nil {
			return nil, fmt.Errorf("engine: building %s convolver: %w", name, err)
		}
		return c, nil
	}

	if e.dsConvolver, err = newStageConvolver("DS", cfg.DSFilterSize, false, e.channels); err != nil {
		return nil, err
	}
	if e.erConvolver, err = newStageConvolver("ER", cfg.EarlyFilterSize, false, e.channels); err != nil {
		return nil, err
	}
	if e.lrConvolver, err = newStageConvolver("LR", cfg.LateFilterSize, false, e.channels); err != nil {
		return nil, err
	}
	if e.sdConvolver, err = newStageConvolver("SD", cfg.DirectivityFilterSize, true, 1); err != nil {
		return nil, err
	}
	if err := e.dsConvolver.SetAllFilters(silentFilters(e.channels, e.dsConvolver.Partitions(), e.blockSize)); err != nil {
		return nil, fmt.Errorf("engine: seeding DS convolver: %w", err)
	}
	if err := e.erConvolver.SetAllFilters(silentFilters(e.channels, e.erConvolver.Partitions(), e.blockSize)); err != nil {
		return nil, fmt.Errorf("engine: seeding ER convolver: %w", err)
	}
	if err := e.lrConvolver.SetAllFilters(silentFilters(e.channels, e.lrConvolver.Partitions(), e.blockSize)); err != nil {
		return nil, fmt.Errorf("engine: seeding LR convolver: %w", err)
	}
	if err := e.sdConvolver.SetAllFilters(silentFilters(1, e.sdConvolver.Partitions(), e.blockSize)); err != nil {
		return nil, fmt.Errorf("engine: seeding SD convolver: %w", err)
	}
	e.dsConvolver.SetActive(cfg.DSConvolverActive)
	e.erConvolver.SetActive(cfg.EarlyConvolverActive)
	e.lrConvolver.SetActive(cfg.LateConvolverActive)
	e.sdConvolver.SetActive(cfg.SDConvolverActive)

	if cfg.UseHeadphoneFilter {
		if e.hpConvolver, err = newStageConvolver("HP", cfg.HeadphoneFilterSize, true, 1); err != nil {
			return nil, err
		}
		hp, herr := storage.Headphone()
		if herr != nil {
			return nil, fmt.Errorf("engine: %w", herr)
		}
		if serr := e.hpConvolver.SetAllFilters([]*dsp.Filter{hp}); serr != nil {
			return nil, fmt.Errorf("engine: installing headphone filter: %w", serr)
		}
	}

	e.zeroBlock = make([][]float32, e.channels)
	for c := 0; c < e.channels; c++ {
		e.zeroBlock[c] = make([]float32, e.blockSize)
	}
	e.sumBlock[0] = make([]float32, e.blockSize)
	e.sumBlock[1] = make([]float32, e.blockSize)
	e.pauseMix[0] = make([]float32, e.blockSize)
	e.pauseMix[1] = make([]float32, e.blockSize)

	e.dsFilters = make([]*dsp.Filter, e.channels)
	e.erFilters = make([]*dsp.Filter, e.channels)
	e.lrFilters = make([]*dsp.Filter, e.channels)
	e.sdFilters = make([]*dsp.Filter, 1)

	return e, nil
}

// silentFilters builds a set of all-zero filters, used to give every
// convolver a shape-correct installed filter set before any pose arrives.
func silentFilters(count, partitions, blockSize int) []*dsp.Filter {
	filters := make([]*dsp.Filter, count)
	for i := range filters {
		filters[i] = dsp.NewSilentFilter(partitions, blockSize)
	}
	return filters
}

// refreshStage implements spec's dirty-triggered stage refresh: a scan for
// the first dirty channel decides *whether* to refresh, but every channel
// is then re-fetched and its dirty bit cleared, matching the reference's
// get-value-clears-flag coupling.
func (e *Engine) refreshStage(slots *control.StageSlots, convolver *dsp.Convolver, filters []*dsp.Filter, lookup func(dsp.Key) *dsp.Filter) {
	dirty := false
	for ch := 0; ch < e.channels; ch++ {
		if slots.Dirty(ch) {
			dirty = true
			break
		}
	}
	if !dirty {
		return
	}

	for ch := 0; ch < e.channels; ch++ {
		row := slots.Row(ch)
		pose, ok := dsp.PoseFromValues(row[:])
		if !ok {
			pose = dsp.Pose{}
		}
		filters[ch] = lookup(pose.Key())
		slots.ClearDirty(ch)
	}
	if err := convolver.SetAllFilters(filters); err != nil {
		e.log.Warn("engine: rejecting filter set", "error", err)
	}
}

// refreshSDStage installs the single directivity filter the stereo-input SD
// convolver takes, sourced from channel 0's row.
func (e *Engine) refreshSDStage() {
	if !e.sdSlots.Dirty(0) {
		return
	}

	row := e.sdSlots.Row(0)
	pose, ok := dsp.SourcePoseFromValues(row[:])
	if !ok {
		pose = dsp.SourcePose{}
	}
	e.sdFilters[0] = e.storage.SourceDirectivity(pose.Key())
	e.sdSlots.ClearDirty(0)

	if err := e.sdConvolver.SetAllFilters(e.sdFilters); err != nil {
		e.log.Warn("engine: rejecting SD filter set", "error", err)
	}
}

// ProcessBlock runs one block through the full pipeline and returns a
// borrowed (2, blockSize) result valid until the next call.
func (e *Engine) ProcessBlock() ([2][]float32, error) {
	var result [2][]float32
	if e.channels == 0 {
		result[0], result[1] = make([]float32, e.blockSize), make([]float32, e.blockSize)
		return result, nil
	}

	var block [][]float32
	if e.config.PauseAudioPlayback() {
		block = e.zeroBlock
	} else {
		block = e.handler.GetBlock(1.0)
	}

	if e.config.PauseConvolution() {
		if e.channels == 2 {
			result[0], result[1] = block[0], block[1]
		} else {
			mix := e.pauseMix[0]
			for i := range mix {
				mix[i] = 0
			}
			for ch := 0; ch < e.channels && ch < len(block); ch++ {
				for i, v := range block[ch] {
					mix[i] += v
				}
			}
			n := float32(e.channels)
			right := e.pauseMix[1]
			for i := range mix {
				mix[i] /= n
				right[i] = mix[i]
			}
			result[0], result[1] = mix, right
		}
	} else {
		e.refreshStage(e.dsSlots, e.dsConvolver, e.dsFilters, e.storage.DirectSound)
		e.refreshStage(e.erSlots, e.erConvolver, e.erFilters, e.storage.EarlyReflections)
		e.refreshStage(e.lrSlots, e.lrConvolver, e.lrFilters, e.storage.LateReverb)

		inputs, err := e.inputBuffer.Process(block)
		if err != nil {
			return result, fmt.Errorf("engine: input buffer: %w", err)
		}

		ds, err := e.dsConvolver.Process(inputs)
		if err != nil {
			return result, fmt.Errorf("engine: DS convolver: %w", err)
		}

		if e.config.SDConvolverActive {
			e.refreshSDStage()
			sdInputs, err := e.inputBufferSD.Process([][]float32{ds[0], ds[1]})
			if err != nil {
				return result, fmt.Errorf("engine: SD input buffer: %w", err)
			}
			ds, err = e.sdConvolver.Process(sdInputs)
			if err != nil {
				return result, fmt.Errorf("engine: SD convolver: %w", err)
			}
		}

		er, err := e.erConvolver.Process(inputs)
		if err != nil {
			return result, fmt.Errorf("engine: ER convolver: %w", err)
		}
		lr, err := e.lrConvolver.Process(inputs)
		if err != nil {
			return result, fmt.Errorf("engine: LR convolver: %w", err)
		}

		for ear := 0; ear < 2; ear++ {
			for i := 0; i < e.blockSize; i++ {
				e.sumBlock[ear][i] = ds[ear][i] + er[ear][i] + lr[ear][i]
			}
		}
		result = e.sumBlock

		if e.config.UseHeadphoneFilter && e.hpConvolver != nil {
			hpInputs, err := e.inputBufferHP.Process([][]float32{result[0], result[1]})
			if err != nil {
				return result, fmt.Errorf("engine: HP input buffer: %w", err)
			}
			hpOut, err := e.hpConvolver.Process(hpInputs)
			if err != nil {
				return result, fmt.Errorf("engine: HP convolver: %w", err)
			}
			result = hpOut
		}
	}

	normaliser := float32(1)
	if e.config.OutputNormalisation == NormalisationPerChannel {
		normaliser = float32(e.channels)
	}
	gain := e.config.LoudnessFactor() / normaliser

	peak := float32(0)
	for ear := 0; ear < 2; ear++ {
		for i, v := range result[ear] {
			scaled := v * gain
			result[ear][i] = scaled
			if scaled < 0 {
				scaled = -scaled
			}
			if scaled > peak {
				peak = scaled
			}
		}
	}
	if peak > 1 {
		e.clipCount.Add(1)
		e.log.Warn("engine: clipping detected, adjust loudness factor", "peak", peak)
	}

	return result, nil
}

// Process is the audio driver's callback entry point: it runs one block and
// writes the interleaved stereo result into out (length 2*frameCount).
func (e *Engine) Process(out []float32, frameCount int, status DriverStatus) error {
	if status == DriverStatusUnderrun {
		e.underrunCount.Add(1)
		e.log.Warn("engine: output underrun reported by driver")
	}
	if frameCount != e.blockSize {
		return fmt.Errorf("engine: frame count %d does not match configured block size %d", frameCount, e.blockSize)
	}

	result, err := e.ProcessBlock()
	if err != nil {
		e.log.Error("engine: block processing failed, emitting silence", "error", err)
		for i := range out {
			out[i] = 0
		}
		return nil
	}

	for i := 0; i < e.blockSize; i++ {
		out[2*i] = result[0][i]
		out[2*i+1] = result[1][i]
	}
	return nil
}

// ClipCount returns the number of blocks in which clipping was detected.
func (e *Engine) ClipCount() uint64 { return e.clipCount.Load() }

// UnderrunCount returns the number of driver-reported output underruns.
func (e *Engine) UnderrunCount() uint64 { return e.underrunCount.Load() }

// LoudnessFactor returns the current output gain.
func (e *Engine) LoudnessFactor() float32 { return e.config.LoudnessFactor() }

// SetLoudnessFactor sets the output gain applied before the driver.
func (e *Engine) SetLoudnessFactor(v float32) { e.config.SetLoudnessFactor(v) }

// PauseAudioPlayback reports whether playback is currently silenced.
func (e *Engine) PauseAudioPlayback() bool { return e.config.PauseAudioPlayback() }

// SetPauseAudioPlayback toggles playback silencing.
func (e *Engine) SetPauseAudioPlayback(v bool) { e.config.SetPauseAudioPlayback(v) }

// PauseConvolution reports whether the convolution pipeline is bypassed.
func (e *Engine) PauseConvolution() bool { return e.config.PauseConvolution() }

// SetPauseConvolution toggles the convolution bypass.
func (e *Engine) SetPauseConvolution(v bool) { e.config.SetPauseConvolution(v) }

// LoopSound reports whether the default playlist restarts at the end.
func (e *Engine) LoopSound() bool { return e.config.LoopSound() }

// SetLoopSound sets the default playlist's loop behavior.
func (e *Engine) SetLoopSound(v bool) { e.config.SetLoopSound(v) }

// DirtyChannelCounts reports, per stage, how many of the configured channels
// have a pose update the audio thread hasn't refreshed yet.
func (e *Engine) DirtyChannelCounts() (ds, er, lr, sd int) {
	return e.dsSlots.DirtyCount(e.channels), e.erSlots.DirtyCount(e.channels),
		e.lrSlots.DirtyCount(e.channels), e.sdSlots.DirtyCount(e.channels)
}

// PlayerNames returns the names of every player registered with the Sound
// Handler.
func (e *Engine) PlayerNames() []string { return e.handler.PlayerNames() }

// PlayerState reports name's play state, loop state, and volume.
func (e *Engine) PlayerState(name string) (playing, looping bool, volume float32, ok bool) {
	p, found := e.handler.GetPlayer(name)
	if !found {
		return false, false, 0, false
	}
	vol, _ := e.handler.PlayerVolume(name)
	return p.PlayState() == sound.Playing, p.LoopState() == sound.Loop, vol, true
}

// SetPlayerPlaying sets name's play state to Playing or Paused.
func (e *Engine) SetPlayerPlaying(name string, playing bool) bool {
	p, found := e.handler.GetPlayer(name)
	if !found {
		return false
	}
	if playing {
		p.SetPlayState(sound.Playing)
	} else {
		p.SetPlayState(sound.Paused)
	}
	return true
}

// SetPlayerVolume sets name's mix volume.
func (e *Engine) SetPlayerVolume(name string, volume float32) bool {
	return e.handler.SetPlayerVolume(name, volume)
}

// StopAllPlayers stops every registered player.
func (e *Engine) StopAllPlayers() { e.handler.StopAllPlayers() }
