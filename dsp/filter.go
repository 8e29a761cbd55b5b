package dsp

import (
	"errors"
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// ErrFilterShapeMismatch indicates a Filter's partition count or block size
// doesn't match the convolver (or peer filter) it's being installed into.
var ErrFilterShapeMismatch = errors.New("dsp: filter shape mismatch")

// Filter is an immutable, partitioned frequency-domain impulse response for
// one ear pair. Left and Right each hold P partitions of B+1 complex64 bins,
// the real-FFT of a B-sample time-domain partition zero-padded to 2B
// (standard overlap-save: IR samples occupy the first half of the padded
// buffer, zeros the second half).
type Filter struct {
	Partitions int // P
	BlockSize  int // B
	Left       [][]complex64
	Right      [][]complex64
}

// IsSilent reports whether every bin of every partition, both ears, is zero.
func (f *Filter) IsSilent() bool {
	for _, blocks := range [2][][]complex64{f.Left, f.Right} {
		for _, p := range blocks {
			for _, v := range p {
				if v != 0 {
					return false
				}
			}
		}
	}
	return true
}

// filterBuilder computes the partitioned frequency-domain representation of
// time-domain IRs for a fixed (partitions, blockSize) shape, reusing one FFT
// plan and one scratch buffer across every Filter it builds.
type filterBuilder struct {
	partitions int
	blockSize  int
	plan       *algofft.PlanRealT[float32, complex64]
	scratch    []float32 // len 2*blockSize
	fadeIn     []float32 // len blockSize, shared
	fadeOut    []float32 // len blockSize, shared
}

// newFilterBuilder creates a builder for filters with the given partition
// count and block size. fadeIn/fadeOut may be nil if no fade windowing is
// required by any filter this builder constructs.
func newFilterBuilder(partitions, blockSize int, fadeIn, fadeOut []float32) (*filterBuilder, error) {
	plan, err := algofft.NewPlanReal32(2 * blockSize)
	if err != nil {
		return nil, fmt.Errorf("dsp: filter FFT plan (blockSize=%d): %w", blockSize, err)
	}
	return &filterBuilder{
		partitions: partitions,
		blockSize:  blockSize,
		plan:       plan,
		scratch:    make([]float32, 2*blockSize),
		fadeIn:     fadeIn,
		fadeOut:    fadeOut,
	}, nil
}

// fadeMode selects optional time-domain windowing of the first/last
// partition at build time.
type fadeMode int

const (
	fadeNone fadeMode = iota
	fadeInFirst
	fadeOutLast
)

// build transforms a stereo time-domain IR given as separate left and right
// slices (already
// zero-padded/truncated to exactly partitions*blockSize samples per ear by
// the caller) into a Filter.
func (fb *filterBuilder) build(left, right []float32, mode fadeMode) (*Filter, error) {
	if len(left) != fb.partitions*fb.blockSize || len(right) != fb.partitions*fb.blockSize {
		return nil, fmt.Errorf("%w: want %d samples per ear, got left=%d right=%d",
			ErrFilterShapeMismatch, fb.partitions*fb.blockSize, len(left), len(right))
	}

	f := &Filter{
		Partitions: fb.partitions,
		BlockSize:  fb.blockSize,
		Left:       make([][]complex64, fb.partitions),
		Right:      make([][]complex64, fb.partitions),
	}

	for _, ear := range [2]struct {
		samples []float32
		dst     *[][]complex64
	}{{left, &f.Left}, {right, &f.Right}} {
		for p := 0; p < fb.partitions; p++ {
			start := p * fb.blockSize
			copy(fb.scratch[:fb.blockSize], ear.samples[start:start+fb.blockSize])
			for i := fb.blockSize; i < 2*fb.blockSize; i++ {
				fb.scratch[i] = 0
			}

			switch {
			case mode == fadeInFirst && p == 0 && fb.fadeIn != nil:
				for i, w := range fb.fadeIn {
					fb.scratch[i] *= w
				}
			case mode == fadeOutLast && p == fb.partitions-1 && fb.fadeOut != nil:
				for i, w := range fb.fadeOut {
					fb.scratch[i] *= w
				}
			}

			spectrum := make([]complex64, fb.blockSize+1)
			if err := fb.plan.Forward(spectrum, fb.scratch); err != nil {
				return nil, fmt.Errorf("dsp: filter partition %d FFT: %w", p, err)
			}
			(*ear.dst)[p] = spectrum
		}
	}

	return f, nil
}

// NewSilentFilter returns a Filter of the given shape whose spectra are all
// zero — the default installed by Filter Storage when a pose key is absent.
func NewSilentFilter(partitions, blockSize int) *Filter {
	f := &Filter{
		Partitions: partitions,
		BlockSize:  blockSize,
		Left:       make([][]complex64, partitions),
		Right:      make([][]complex64, partitions),
	}
	for p := 0; p < partitions; p++ {
		f.Left[p] = make([]complex64, blockSize+1)
		f.Right[p] = make([]complex64, blockSize+1)
	}
	return f
}

// NormalizeIR zero-pads or truncates a time-domain IR to exactly n samples.
func NormalizeIR(ir []float32, n int) []float32 {
	if len(ir) == n {
		return ir
	}
	out := make([]float32, n)
	copy(out, ir)
	return out
}

// PartitionsFor returns ceil(irSize/blockSize), the partition count for a
// stage whose IR size is irSize.
func PartitionsFor(irSize, blockSize int) int {
	return (irSize + blockSize - 1) / blockSize
}
