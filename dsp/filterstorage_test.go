package dsp

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// writeMonoWAV writes a tiny 16-bit PCM mono WAV file to path.
func writeMonoWAV(t *testing.T, path string, samples []int16) {
	t.Helper()
	var data bytes.Buffer
	for _, s := range samples {
		_ = binary.Write(&data, binary.LittleEndian, s)
	}

	var fmtChunk bytes.Buffer
	_ = binary.Write(&fmtChunk, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&fmtChunk, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&fmtChunk, binary.LittleEndian, uint32(48000))
	_ = binary.Write(&fmtChunk, binary.LittleEndian, uint32(48000*2))
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

func TestFilterStorageLoadFromFileList(t *testing.T) {
	dir := t.TempDir()

	const blockSize = 8
	const dsSize = 16

	dsSamples := make([]int16, dsSize)
	dsSamples[0] = 16384
	dsPath := filepath.Join(dir, "ds.wav")
	writeMonoWAV(t, dsPath, dsSamples)

	hpSamples := make([]int16, dsSize)
	hpSamples[0] = 8192
	hpPath := filepath.Join(dir, "hp.wav")
	writeMonoWAV(t, hpPath, hpSamples)

	listPath := filepath.Join(dir, "filters.txt")
	content := "# comment\n" +
		"DS 0 0 0 0 0 0 10 0 0 0 0 0 0 0 0 " + dsPath + "\n" +
		"HP " + hpPath + "\n"
	if err := os.WriteFile(listPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sizes := StageSizes{DS: dsSize, ER: dsSize, LR: dsSize, SD: dsSize, HP: dsSize}
	fs, err := NewFilterStorage(blockSize, sizes, 48000, nil)
	if err != nil {
		t.Fatalf("NewFilterStorage: %v", err)
	}
	if err := fs.LoadFromFileList(listPath); err != nil {
		t.Fatalf("LoadFromFileList: %v", err)
	}

	var key Key
	key[6] = 10 // source_orientation[0], matching the DS line above
	f := fs.DirectSound(key)
	if f.IsSilent() {
		t.Fatalf("expected a non-silent DS filter for the loaded pose")
	}

	if !fs.HasHeadphoneFilter() {
		t.Fatalf("expected a headphone filter to be loaded")
	}
	hp, err := fs.Headphone()
	if err != nil {
		t.Fatalf("Headphone: %v", err)
	}
	if hp.IsSilent() {
		t.Fatalf("expected a non-silent headphone filter")
	}
}

func TestFilterStorageMissingKeyReturnsDefault(t *testing.T) {
	sizes := StageSizes{DS: 16, ER: 16, LR: 16, SD: 16, HP: 16}
	fs, err := NewFilterStorage(8, sizes, 0, nil)
	if err != nil {
		t.Fatalf("NewFilterStorage: %v", err)
	}

	var key Key
	key[0] = 999
	f := fs.DirectSound(key)
	if !f.IsSilent() {
		t.Fatalf("expected silent default filter for unknown pose")
	}
	// calling again must not panic or error (log-once dedup path)
	f2 := fs.DirectSound(key)
	if !f2.IsSilent() {
		t.Fatalf("expected silent default filter on repeated miss")
	}
}

func TestFilterStorageHeadphoneMissing(t *testing.T) {
	sizes := StageSizes{DS: 16, ER: 16, LR: 16, SD: 16, HP: 16}
	fs, err := NewFilterStorage(8, sizes, 0, nil)
	if err != nil {
		t.Fatalf("NewFilterStorage: %v", err)
	}
	if _, err := fs.Headphone(); err != ErrNoHeadphoneFilter {
		t.Fatalf("expected ErrNoHeadphoneFilter, got %v", err)
	}
}
