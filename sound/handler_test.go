package sound

import "testing"

func TestAddAtStartChannelMatrix(t *testing.T) {
	cases := []struct {
		name         string
		startChannel int
		inputLen     int
		outputLen    int
	}{
		{"aligned", 0, 3, 3},
		{"shifted right", 2, 3, 6},
		{"negative drops leading", -2, 5, 3},
		{"fully out of range positive", 10, 3, 3},
		{"fully out of range negative", -10, 3, 3},
		{"partial overlap at end", 1, 4, 3},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			output := make([][]float32, c.outputLen)
			for i := range output {
				output[i] = make([]float32, 2)
			}
			input := make([][]float32, c.inputLen)
			for i := range input {
				input[i] = []float32{1, 1}
				input[i][0] = float32(i + 1)
			}

			addAtStartChannel(output, input, c.startChannel, 1.0)

			for outCh := 0; outCh < c.outputLen; outCh++ {
				inCh := outCh - c.startChannel
				want := float32(0)
				if inCh >= 0 && inCh < c.inputLen {
					want = float32(inCh + 1)
				}
				if output[outCh][0] != want {
					t.Fatalf("case %s: output channel %d: got %v want %v", c.name, outCh, output[outCh][0], want)
				}
			}
		})
	}
}

func TestAddAtStartChannelAppliesGain(t *testing.T) {
	output := [][]float32{{0, 0}}
	input := [][]float32{{2, 4}}
	addAtStartChannel(output, input, 0, 0.5)
	if output[0][0] != 1 || output[0][1] != 2 {
		t.Fatalf("gain not applied: got %v", output[0])
	}
}

func TestHandlerGetBlockMixesAndRemovesStopped(t *testing.T) {
	h := NewHandler(2, 4, 48000, nil)
	// A player with no files is immediately Stopped after construction but
	// still contributes a nil block (silence) on its first GetBlock, and is
	// removed afterward.
	h.CreatePlayer("silent", nil, 0, Single, Playing, 1.0)

	if len(h.PlayerNames()) != 1 {
		t.Fatalf("expected one registered player")
	}
	block := h.GetBlock(1.0)
	for _, ch := range block {
		for _, v := range ch {
			if v != 0 {
				t.Fatalf("expected silence from stopped player, got %v", v)
			}
		}
	}
	if len(h.PlayerNames()) != 0 {
		t.Fatalf("expected stopped player to be removed, got %v", h.PlayerNames())
	}
}
