package dsp

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

const numEars = 2

// Convolver is a uniformly-partitioned overlap-save convolver for C sources
// sharing one frequency-domain delay line (FDL) per ear. It holds double-
// buffered filter sets and crossfades between them for exactly one block
// after a filter change.
//
// The FDL is realized as a physical ring of Partitions slots (each holding
// Sources channel spectra) addressed through a logical base index, rather
// than physically rotating data every block (spec §9's redesign note).
type Convolver struct {
	blockSize   int // B
	partitions  int // P
	sources     int // C
	stereoInput bool

	interpolateEnabled bool
	pendingCrossfade   bool

	active  bool
	counter uint64

	base int // physical index of logical slot 0

	// fdl[ear][physicalSlot] is a []complex64 of length sources*(B+1),
	// channel c occupying [c*(B+1), (c+1)*(B+1)).
	fdl [numEars][][]complex64

	// filtersCurrent[ear][p*sources+c] is the (B+1)-bin spectrum for
	// partition p, channel c, ear e.
	filtersCurrent  [numEars][][]complex64
	filtersPrevious [numEars][][]complex64

	fadeIn  []float32
	fadeOut []float32

	plan *algofft.PlanRealT[float32, complex64]

	sumCur   [numEars][]complex64
	sumPrev  [numEars][]complex64
	timeCur  [numEars][]float32
	timePrev [numEars][]float32
	output   [numEars][]float32
}

// NewConvolver creates a Convolver for sources channels, each filtered by a
// partitioned IR of irSize samples split into P=irSize/blockSize partitions
// (irSize must be a multiple of blockSize; callers normalize via
// PartitionsFor/NormalizeIR before this point). stereoInput selects whether
// Process's input carries per-ear content directly (used for the headphone
// and source-directivity convolvers, sources==1) or a single signal fanned
// out identically to both ears (used for the per-source DS/ER/LR convolvers).
func NewConvolver(irSize, blockSize int, stereoInput bool, sources int, interpolate bool) (*Convolver, error) {
	if blockSize <= 0 || sources <= 0 {
		return nil, fmt.Errorf("dsp: invalid convolver shape: blockSize=%d sources=%d", blockSize, sources)
	}
	if stereoInput && sources != 1 {
		return nil, fmt.Errorf("dsp: stereoInput convolvers take a single filter (sources=1), got %d", sources)
	}
	if irSize%blockSize != 0 {
		return nil, fmt.Errorf("dsp: irSize %d is not a multiple of blockSize %d", irSize, blockSize)
	}
	partitions := irSize / blockSize

	plan, err := algofft.NewPlanReal32(2 * blockSize)
	if err != nil {
		return nil, fmt.Errorf("dsp: convolver FFT plan (blockSize=%d): %w", blockSize, err)
	}

	fadeIn, fadeOut := fadeWindows(blockSize)

	c := &Convolver{
		blockSize:          blockSize,
		partitions:         partitions,
		sources:            sources,
		stereoInput:        stereoInput,
		interpolateEnabled: interpolate,
		fadeIn:             fadeIn,
		fadeOut:            fadeOut,
		plan:               plan,
	}

	for e := 0; e < numEars; e++ {
		c.fdl[e] = make([][]complex64, partitions)
		for p := 0; p < partitions; p++ {
			c.fdl[e][p] = make([]complex64, sources*(blockSize+1))
		}
		c.filtersCurrent[e] = make([][]complex64, partitions*sources)
		c.filtersPrevious[e] = make([][]complex64, partitions*sources)
		silentBin := make([]complex64, blockSize+1)
		for i := range c.filtersCurrent[e] {
			c.filtersCurrent[e][i] = silentBin
			c.filtersPrevious[e][i] = silentBin
		}
		c.sumCur[e] = make([]complex64, blockSize+1)
		c.sumPrev[e] = make([]complex64, blockSize+1)
		c.timeCur[e] = make([]float32, 2*blockSize)
		c.timePrev[e] = make([]float32, 2*blockSize)
		c.output[e] = make([]float32, blockSize)
	}

	return c, nil
}

// Active reports whether the convolver has an installed filter set and will
// produce non-silent output.
func (c *Convolver) Active() bool { return c.active }

// SetActive toggles whether Process runs the convolution or short-circuits
// to silence, independent of any installed filter set. Used to honor a
// stage's runtime enable/disable flag without discarding its filters.
func (c *Convolver) SetActive(active bool) { c.active = active }

// Partitions returns P.
func (c *Convolver) Partitions() int { return c.partitions }

// Sources returns C.
func (c *Convolver) Sources() int { return c.sources }

// SetAllFilters installs a new filter set for all C sources, promoting the
// previous current set to "previous" so Process can crossfade for one
// block.
func (c *Convolver) SetAllFilters(filters []*Filter) error {
	if len(filters) != c.sources {
		return fmt.Errorf("%w: want %d filters, got %d", ErrFilterShapeMismatch, c.sources, len(filters))
	}
	for i, f := range filters {
		if f.Partitions != c.partitions || f.BlockSize != c.blockSize {
			return fmt.Errorf("%w: filter %d has P=%d B=%d, want P=%d B=%d",
				ErrFilterShapeMismatch, i, f.Partitions, f.BlockSize, c.partitions, c.blockSize)
		}
	}

	c.filtersPrevious[0] = c.filtersCurrent[0]
	c.filtersPrevious[1] = c.filtersCurrent[1]

	newCur0 := make([][]complex64, c.partitions*c.sources)
	newCur1 := make([][]complex64, c.partitions*c.sources)
	for i, f := range filters {
		for p := 0; p < c.partitions; p++ {
			newCur0[p*c.sources+i] = f.Left[p]
			newCur1[p*c.sources+i] = f.Right[p]
		}
	}
	c.filtersCurrent[0] = newCur0
	c.filtersCurrent[1] = newCur1

	if c.interpolateEnabled {
		c.pendingCrossfade = true
	}
	c.active = true
	return nil
}

// Reset clears the FDL, filter sets, and crossfade state, returning the
// convolver to its just-constructed (inactive, silent) condition.
func (c *Convolver) Reset() {
	for e := 0; e < numEars; e++ {
		for p := 0; p < c.partitions; p++ {
			for i := range c.fdl[e][p] {
				c.fdl[e][p][i] = 0
			}
		}
	}
	c.base = 0
	c.counter = 0
	c.active = false
	c.pendingCrossfade = false
}

// slot returns the physical ring index for logical partition p (0 = newest).
func (c *Convolver) slot(p int) int {
	return (c.base + p) % c.partitions
}

// Process runs one block through the convolver. input must have exactly
// Sources() entries, each a (B+1)-bin spectrum from an InputBuffer. It
// returns a borrowed (2, B) real output valid until the next Process call.
func (c *Convolver) Process(input [][]complex64) ([numEars][]float32, error) {
	if !c.active {
		for e := 0; e < numEars; e++ {
			for i := range c.output[e] {
				c.output[e][i] = 0
			}
		}
		return c.output, nil
	}
	wantLanes := c.sources
	if c.stereoInput {
		wantLanes = 2
	}
	if len(input) != wantLanes {
		return c.output, fmt.Errorf("dsp: convolver input channel mismatch: want %d, got %d", wantLanes, len(input))
	}

	if c.counter > 0 {
		c.base = (c.base - 1 + c.partitions) % c.partitions
	}
	newest := c.fdl[0][c.slot(0)]
	newestRight := c.fdl[1][c.slot(0)]
	width := c.blockSize + 1
	if c.stereoInput {
		copy(newest, input[0])
		copy(newestRight, input[1])
	} else {
		for ch := 0; ch < c.sources; ch++ {
			copy(newest[ch*width:(ch+1)*width], input[ch])
			copy(newestRight[ch*width:(ch+1)*width], input[ch])
		}
	}

	c.accumulate(c.filtersCurrent, c.sumCur)
	for e := 0; e < numEars; e++ {
		if err := c.plan.Inverse(c.timeCur[e], c.sumCur[e]); err != nil {
			return c.output, fmt.Errorf("dsp: convolver inverse FFT: %w", err)
		}
	}

	if c.pendingCrossfade {
		c.accumulate(c.filtersPrevious, c.sumPrev)
		for e := 0; e < numEars; e++ {
			if err := c.plan.Inverse(c.timePrev[e], c.sumPrev[e]); err != nil {
				return c.output, fmt.Errorf("dsp: convolver inverse FFT (previous): %w", err)
			}
		}
		for e := 0; e < numEars; e++ {
			cur := c.timeCur[e][c.blockSize:]
			prev := c.timePrev[e][c.blockSize:]
			for k := 0; k < c.blockSize; k++ {
				c.output[e][k] = cur[k]*c.fadeIn[k] + prev[k]*c.fadeOut[k]
			}
		}
		c.pendingCrossfade = false
	} else {
		for e := 0; e < numEars; e++ {
			copy(c.output[e], c.timeCur[e][c.blockSize:])
		}
	}

	c.counter++
	return c.output, nil
}

// accumulate computes sum[e][k] = Σ_{p,c} filters[e][p*sources+c][k] *
// fdl[e][slot(p)][c*(B+1)+k] for each ear and bin k.
func (c *Convolver) accumulate(filters [numEars][][]complex64, sum [numEars][]complex64) {
	width := c.blockSize + 1
	for e := 0; e < numEars; e++ {
		s := sum[e]
		for i := range s {
			s[i] = 0
		}
		for p := 0; p < c.partitions; p++ {
			fdlBlock := c.fdl[e][c.slot(p)]
			base := p * c.sources
			for ch := 0; ch < c.sources; ch++ {
				fc := filters[e][base+ch]
				fd := fdlBlock[ch*width : (ch+1)*width]
				for k := 0; k < width; k++ {
					s[k] += fc[k] * fd[k]
				}
			}
		}
	}
}
