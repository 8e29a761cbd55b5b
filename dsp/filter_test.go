package dsp

import (
	"testing"

	algofft "github.com/MeKo-Christian/algo-fft"
)

func TestFilterBuilderRoundTrip(t *testing.T) {
	const blockSize = 8
	const partitions = 2
	fb, err := newFilterBuilder(partitions, blockSize, nil, nil)
	if err != nil {
		t.Fatalf("newFilterBuilder: %v", err)
	}

	left := make([]float32, partitions*blockSize)
	right := make([]float32, partitions*blockSize)
	for i := range left {
		left[i] = float32(i+1) * 0.01
		right[i] = -float32(i+1) * 0.01
	}

	f, err := fb.build(left, right, fadeNone)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if f.Partitions != partitions || f.BlockSize != blockSize {
		t.Fatalf("unexpected filter shape: P=%d B=%d", f.Partitions, f.BlockSize)
	}

	ip, err := algofft.NewPlanReal32(2 * blockSize)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	for p := 0; p < partitions; p++ {
		time := make([]float32, 2*blockSize)
		if err := ip.Inverse(time, f.Left[p]); err != nil {
			t.Fatalf("inverse: %v", err)
		}
		for i := 0; i < blockSize; i++ {
			want := left[p*blockSize+i]
			if diff := float64(time[i] - want); diff > 1e-4 || diff < -1e-4 {
				t.Fatalf("partition %d sample %d: got %v want %v", p, i, time[i], want)
			}
		}
		for i := blockSize; i < 2*blockSize; i++ {
			if time[i] > 1e-4 || time[i] < -1e-4 {
				t.Fatalf("partition %d sample %d: expected zero padding, got %v", p, i, time[i])
			}
		}
	}
}

func TestSilentFilterIsSilent(t *testing.T) {
	f := NewSilentFilter(3, 16)
	if !f.IsSilent() {
		t.Fatalf("expected silent filter to report silent")
	}
}

func TestNormalizeIR(t *testing.T) {
	short := NormalizeIR([]float32{1, 2, 3}, 5)
	if len(short) != 5 || short[3] != 0 || short[4] != 0 {
		t.Fatalf("expected zero-padded IR, got %v", short)
	}
	exact := []float32{1, 2, 3}
	if got := NormalizeIR(exact, 3); len(got) != 3 {
		t.Fatalf("expected unchanged length, got %d", len(got))
	}
}

func TestPartitionsFor(t *testing.T) {
	cases := []struct{ ir, block, want int }{
		{2048, 512, 4},
		{2047, 512, 4},
		{512, 512, 1},
		{0, 512, 0},
	}
	for _, c := range cases {
		if got := PartitionsFor(c.ir, c.block); got != c.want {
			t.Fatalf("PartitionsFor(%d,%d) = %d, want %d", c.ir, c.block, got, c.want)
		}
	}
}
