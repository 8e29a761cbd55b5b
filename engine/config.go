// Package engine implements the audio callback: per-block pose-driven
// filter refresh, the DS/ER/LR/SD/HP convolution pipeline, and the
// loudness/clip/underrun bookkeeping around it.
package engine

import (
	"math"
	"sync/atomic"
)

// OutputNormalisation selects how the mixed stereo result is scaled before
// it reaches the driver.
type OutputNormalisation int

const (
	// NormalisationPerChannel divides by the number of active input
	// channels (the default).
	NormalisationPerChannel OutputNormalisation = iota
	// NormalisationFixed applies no channel-count scaling.
	NormalisationFixed
)

// Config holds the engine's startup shape (fixed for the process lifetime)
// and its runtime-mutable fields (read by the audio thread, written by the
// Receiver). Mutable fields are atomics so neither side takes a lock on the
// hot path.
type Config struct {
	BlockSize              int
	DSFilterSize           int
	EarlyFilterSize        int
	LateFilterSize         int
	DirectivityFilterSize  int
	HeadphoneFilterSize    int
	MaxChannels            int
	SampleRate             float64
	FilterSource           string
	FilterList             string
	FilterDatabase         string
	EnableCrossfading      bool
	UseHeadphoneFilter     bool
	DSConvolverActive      bool
	EarlyConvolverActive   bool
	LateConvolverActive    bool
	SDConvolverActive      bool
	OutputNormalisation    OutputNormalisation
	RecvIP                 string
	RecvPort               int

	loopSound        atomic.Bool
	pauseAudioPlayback atomic.Bool
	pauseConvolution   atomic.Bool
	loudnessFactorBits atomic.Uint32
}

// NewConfig returns a Config with the reference implementation's defaults,
// overridden by whatever the caller sets on the returned value before use.
func NewConfig() *Config {
	c := &Config{
		BlockSize:             256,
		DSFilterSize:          512,
		EarlyFilterSize:       4096,
		LateFilterSize:        16384,
		DirectivityFilterSize: 512,
		HeadphoneFilterSize:   1024,
		MaxChannels:           8,
		SampleRate:            48000,
		FilterSource:          "wav",
		FilterList:            "brirs/filter_list.txt",
		EnableCrossfading:     false,
		UseHeadphoneFilter:    false,
		DSConvolverActive:     true,
		EarlyConvolverActive:  true,
		LateConvolverActive:   true,
		SDConvolverActive:     false,
		OutputNormalisation:   NormalisationPerChannel,
		RecvIP:                "127.0.0.1",
		RecvPort:              10000,
	}
	c.loopSound.Store(true)
	c.SetLoudnessFactor(1.0)
	return c
}

// LoopSound reports whether the default playlist restarts at the end.
func (c *Config) LoopSound() bool { return c.loopSound.Load() }

// SetLoopSound sets the default playlist's loop behavior.
func (c *Config) SetLoopSound(v bool) { c.loopSound.Store(v) }

// PauseAudioPlayback reports whether the Sound Handler should be bypassed
// in favor of silence.
func (c *Config) PauseAudioPlayback() bool { return c.pauseAudioPlayback.Load() }

// SetPauseAudioPlayback sets the audio-playback pause flag.
func (c *Config) SetPauseAudioPlayback(v bool) { c.pauseAudioPlayback.Store(v) }

// PauseConvolution reports whether the convolution pipeline should be
// bypassed in favor of a direct (mixed-down) passthrough.
func (c *Config) PauseConvolution() bool { return c.pauseConvolution.Load() }

// SetPauseConvolution sets the convolution-bypass flag.
func (c *Config) SetPauseConvolution(v bool) { c.pauseConvolution.Store(v) }

// LoudnessFactor returns the current output gain.
func (c *Config) LoudnessFactor() float32 {
	return math.Float32frombits(c.loudnessFactorBits.Load())
}

// SetLoudnessFactor sets the output gain applied before the driver.
func (c *Config) SetLoudnessFactor(v float32) {
	c.loudnessFactorBits.Store(math.Float32bits(v))
}
