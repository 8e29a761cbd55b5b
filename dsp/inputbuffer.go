package dsp

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// InputBuffer is a per-stage, multi-channel sliding window over the last 2B
// samples of each input channel, producing the frequency-domain
// representation needed for overlap-save convolution.
//
// Invariant: for each channel, samples [0,B) of the window are the previous
// block and [B,2B) are the current block.
type InputBuffer struct {
	channels  int
	blockSize int
	window    [][]float32   // channels x 2B
	staging   [][]complex64 // channels x (B+1), returned borrowed
	plan      *algofft.PlanRealT[float32, complex64]
}

// NewInputBuffer creates an InputBuffer for the given channel count and
// block size B.
func NewInputBuffer(channels, blockSize int) (*InputBuffer, error) {
	plan, err := algofft.NewPlanReal32(2 * blockSize)
	if err != nil {
		return nil, fmt.Errorf("dsp: input buffer FFT plan (blockSize=%d): %w", blockSize, err)
	}
	ib := &InputBuffer{
		channels:  channels,
		blockSize: blockSize,
		window:    make([][]float32, channels),
		staging:   make([][]complex64, channels),
		plan:      plan,
	}
	for c := 0; c < channels; c++ {
		ib.window[c] = make([]float32, 2*blockSize)
		ib.staging[c] = make([]complex64, blockSize+1)
	}
	return ib, nil
}

// Process shifts each channel's window by one block, writes block into the
// newest half, and returns the (channels x B+1) frequency-domain
// representation of the resulting 2B-sample window. The returned slices are
// borrowed views into the InputBuffer's own storage and are only valid until
// the next call to Process.
func (ib *InputBuffer) Process(block [][]float32) ([][]complex64, error) {
	if len(block) != ib.channels {
		return nil, fmt.Errorf("dsp: input buffer channel mismatch: want %d, got %d", ib.channels, len(block))
	}
	for c := 0; c < ib.channels; c++ {
		w := ib.window[c]
		copy(w[:ib.blockSize], w[ib.blockSize:])
		copy(w[ib.blockSize:], block[c])
		if err := ib.plan.Forward(ib.staging[c], w); err != nil {
			return nil, fmt.Errorf("dsp: input buffer forward FFT channel %d: %w", c, err)
		}
	}
	return ib.staging, nil
}

// Reset clears the sliding window to silence.
func (ib *InputBuffer) Reset() {
	for c := 0; c < ib.channels; c++ {
		for i := range ib.window[c] {
			ib.window[c][i] = 0
		}
		for i := range ib.staging[c] {
			ib.staging[c][i] = 0
		}
	}
}

// Channels returns the channel count this buffer was constructed for.
func (ib *InputBuffer) Channels() int { return ib.channels }
