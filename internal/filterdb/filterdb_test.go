package filterdb

import (
	"bytes"
	"testing"
)

type seekBuffer struct {
	bytes.Buffer
	pos int64
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		s.pos = offset
	case 1:
		s.pos += offset
	case 2:
		s.pos = int64(s.Len()) + offset
	}
	return s.pos, nil
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	data := s.Bytes()
	end := int(s.pos) + len(p)
	if end > len(data) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[s.pos:], p)
	s.pos += int64(len(p))
	s.Reset()
	s.Buffer.Write(data)
	return len(p), nil
}

func sampleRecord(stage string, key [KeyLen]int32, n int) *Record {
	left := make([]float32, n)
	right := make([]float32, n)
	for i := 0; i < n; i++ {
		left[i] = float32(i) * 0.01
		right[i] = -float32(i) * 0.01
	}
	return &Record{Stage: stage, Key: key, SampleRate: 44100, Left: left, Right: right}
}

func TestWriteReadRoundTrip(t *testing.T) {
	var k1, k2 [KeyLen]int32
	k1[0] = 1
	k2[0] = 2

	records := []*Record{
		sampleRecord("DS", k1, 16),
		sampleRecord("DS", k2, 32),
		sampleRecord("ER", k1, 8),
	}

	buf := &seekBuffer{}
	if err := WriteDatabase(buf, records); err != nil {
		t.Fatalf("WriteDatabase: %v", err)
	}

	reader, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if reader.RecordCount() != len(records) {
		t.Fatalf("record count: got %d want %d", reader.RecordCount(), len(records))
	}

	entries := reader.ListRecords()
	if len(entries) != len(records) {
		t.Fatalf("index length: got %d want %d", len(entries), len(records))
	}

	for i, want := range records {
		got, err := reader.LoadRecord(i)
		if err != nil {
			t.Fatalf("LoadRecord(%d): %v", i, err)
		}
		if got.Stage != want.Stage || got.Key != want.Key {
			t.Fatalf("record %d identity mismatch", i)
		}
		if len(got.Left) != len(want.Left) {
			t.Fatalf("record %d length mismatch: got %d want %d", i, len(got.Left), len(want.Left))
		}
		for j := range want.Left {
			if diff := float64(got.Left[j] - want.Left[j]); diff > 1e-3 || diff < -1e-3 {
				t.Fatalf("record %d sample %d left mismatch: got %v want %v", i, j, got.Left[j], want.Left[j])
			}
		}
	}
}

func TestFind(t *testing.T) {
	var k1, k2 [KeyLen]int32
	k1[3] = 7
	k2[3] = 9

	records := []*Record{
		sampleRecord("LR", k1, 4),
		sampleRecord("LR", k2, 4),
	}

	buf := &seekBuffer{}
	if err := WriteDatabase(buf, records); err != nil {
		t.Fatalf("WriteDatabase: %v", err)
	}
	reader, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	rec, err := reader.Find("LR", k2)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if rec.Key != k2 {
		t.Fatalf("Find returned wrong record")
	}

	if _, err := reader.Find("LR", [KeyLen]int32{99}); err != ErrRecordNotFound {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
