package wavefile

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildPCM16WAV assembles a minimal mono or stereo 16-bit PCM WAV file in
// memory from interleaved sample frames.
func buildPCM16WAV(t *testing.T, channels, sampleRate int, frames [][]int16) []byte {
	t.Helper()
	var data bytes.Buffer
	for _, frame := range frames {
		for _, s := range frame {
			_ = binary.Write(&data, binary.LittleEndian, s)
		}
	}

	var fmtChunk bytes.Buffer
	_ = binary.Write(&fmtChunk, binary.LittleEndian, uint16(formatPCM))
	_ = binary.Write(&fmtChunk, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&fmtChunk, binary.LittleEndian, uint32(sampleRate))
	byteRate := sampleRate * channels * 2
	_ = binary.Write(&fmtChunk, binary.LittleEndian, uint32(byteRate))
	blockAlign := channels * 2
	_ = binary.Write(&fmtChunk, binary.LittleEndian, uint16(blockAlign))
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

	return buf.Bytes()
}

func TestParsePCM16Mono(t *testing.T) {
	raw := buildPCM16WAV(t, 1, 48000, [][]int16{{0}, {16384}, {-16384}, {32767}})
	f, err := Parse(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.NumChannels != 1 || f.SampleRate != 48000 || f.NumSamples != 4 {
		t.Fatalf("unexpected header: channels=%d rate=%d samples=%d", f.NumChannels, f.SampleRate, f.NumSamples)
	}
	want := []float32{0, 0.5, -0.5, 32767.0 / 32768.0}
	for i, w := range want {
		if diff := float64(f.Data[0][i] - w); diff > 1e-4 || diff < -1e-4 {
			t.Fatalf("sample %d: got %v want %v", i, f.Data[0][i], w)
		}
	}
}

func TestParsePCM16Stereo(t *testing.T) {
	raw := buildPCM16WAV(t, 2, 44100, [][]int16{{100, -100}, {200, -200}})
	f, err := Parse(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.NumChannels != 2 || f.NumSamples != 2 {
		t.Fatalf("unexpected shape: channels=%d samples=%d", f.NumChannels, f.NumSamples)
	}
	if f.Data[0][0] <= 0 || f.Data[1][0] >= 0 {
		t.Fatalf("channel deinterleave looks wrong: left=%v right=%v", f.Data[0][0], f.Data[1][0])
	}
}

func TestParseRejectsNonWAV(t *testing.T) {
	if _, err := Parse(bytes.NewReader([]byte("not a wav file at all"))); err == nil {
		t.Fatalf("expected error for non-WAV input")
	}
}

func TestParseRejectsMissingDataChunk(t *testing.T) {
	raw := buildPCM16WAV(t, 1, 48000, [][]int16{{1}})
	// Truncate to drop the data chunk body and id, leaving header+fmt only.
	truncated := raw[:12+8+16]
	if _, err := Parse(bytes.NewReader(truncated)); err == nil {
		t.Fatalf("expected error for missing data chunk")
	}
}
