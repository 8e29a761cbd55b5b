package sound

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeMonoWAV(t *testing.T, path string, samples []int16, sampleRate int) {
	t.Helper()
	var data bytes.Buffer
	for _, s := range samples {
		_ = binary.Write(&data, binary.LittleEndian, s)
	}

	var fmtChunk bytes.Buffer
	_ = binary.Write(&fmtChunk, binary.LittleEndian, uint16(1))
	_ = binary.Write(&fmtChunk, binary.LittleEndian, uint16(1))
	_ = binary.Write(&fmtChunk, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&fmtChunk, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&fmtChunk, binary.LittleEndian, uint16(2))
	_ = binary.Write(&fmtChunk, binary.LittleEndian, uint16(16))

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	riffSize := uint32(4 + 8 + fmtChunk.Len() + 8 + data.Len())
	_ = binary.Write(&buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(fmtChunk.Len()))
	buf.Write(fmtChunk.Bytes())
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestPlayerEmptyPlaylistStartsStopped(t *testing.T) {
	p := NewPlayer(nil, Playing, Single, 8, 48000, nil)
	if p.PlayState() != Stopped {
		t.Fatalf("expected immediately Stopped, got %v", p.PlayState())
	}
	if block := p.GetBlock(); block != nil {
		t.Fatalf("expected nil block from stopped player")
	}
}

func TestPlayerSinglePlaythroughStops(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.wav")
	// 20 samples, block size 8: yields 2 full blocks + a 4-sample leftover,
	// padded to a 3rd block, then Stopped.
	samples := make([]int16, 20)
	for i := range samples {
		samples[i] = int16(i * 100)
	}
	writeMonoWAV(t, path, samples, 48000)

	p := NewPlayer([]string{path}, Playing, Single, 8, 48000, nil)

	var blocks [][][]float32
	for i := 0; i < 5; i++ {
		b := p.GetBlock()
		if b == nil {
			break
		}
		blocks = append(blocks, b)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks before stop, got %d", len(blocks))
	}
	if p.PlayState() != Stopped {
		t.Fatalf("expected Stopped after playlist exhausted, got %v", p.PlayState())
	}
	// the padded tail block's samples beyond the leftover must be zero
	tail := blocks[2][0]
	for i := 4; i < 8; i++ {
		if tail[i] != 0 {
			t.Fatalf("expected zero padding in tail block at %d, got %v", i, tail[i])
		}
	}
}

func TestPlayerLoopWrapsPlaylist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.wav")
	samples := []int16{100, 200, 300, 400} // exactly one block
	writeMonoWAV(t, path, samples, 48000)

	p := NewPlayer([]string{path}, Playing, Loop, 4, 48000, nil)

	seen := 0
	for i := 0; i < 12; i++ {
		b := p.GetBlock()
		if b == nil {
			t.Fatalf("looped player should never stop on its own")
		}
		if b[0][0] == float32(100)/32768 {
			seen++
		}
		// allow the background filler goroutine to run between blocks
		time.Sleep(time.Millisecond)
	}
	if seen < 2 {
		t.Fatalf("expected the playlist to repeat at least twice, saw start-of-file %d times", seen)
	}
	if p.PlayState() != Playing {
		t.Fatalf("looped player should remain Playing, got %v", p.PlayState())
	}
}
