package filterdb

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"binsim-go/pkg/f16"
)

// Writer writes filter database files.
type Writer struct {
	w             io.WriteSeeker
	recordCount   uint32
	recordOffsets []uint64
	recordMetas   []IndexEntry
	currentPos    uint64
}

// NewWriter creates a Writer over w, which must support seeking so the
// index offset can be patched into the header on Close.
func NewWriter(w io.WriteSeeker) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the file header. Must be called before WriteRecord.
func (w *Writer) WriteHeader(recordCount int) error {
	w.recordCount = uint32(recordCount)

	if _, err := w.w.Write([]byte(MagicNumber)); err != nil {
		return fmt.Errorf("filterdb: write magic: %w", err)
	}
	if err := binary.Write(w.w, binary.LittleEndian, CurrentVersion); err != nil {
		return fmt.Errorf("filterdb: write version: %w", err)
	}
	if err := binary.Write(w.w, binary.LittleEndian, w.recordCount); err != nil {
		return fmt.Errorf("filterdb: write record count: %w", err)
	}
	if err := binary.Write(w.w, binary.LittleEndian, uint64(0)); err != nil {
		return fmt.Errorf("filterdb: write index offset placeholder: %w", err)
	}

	w.currentPos = FileHeaderSize
	return nil
}

// WriteRecord appends one record's chunk to the stream.
func (w *Writer) WriteRecord(rec *Record) error {
	w.recordOffsets = append(w.recordOffsets, w.currentPos)
	w.recordMetas = append(w.recordMetas, IndexEntry{
		Stage:      rec.Stage,
		Key:        rec.Key,
		SampleRate: rec.SampleRate,
		Length:     rec.Length(),
	})

	body := w.buildRecordBody(rec)

	if _, err := w.w.Write([]byte(ChunkTypeRecord)); err != nil {
		return fmt.Errorf("filterdb: write record chunk id: %w", err)
	}
	if err := binary.Write(w.w, binary.LittleEndian, uint64(len(body))); err != nil {
		return fmt.Errorf("filterdb: write record chunk size: %w", err)
	}
	if _, err := w.w.Write(body); err != nil {
		return fmt.Errorf("filterdb: write record body: %w", err)
	}

	w.currentPos += ChunkHeaderSize + uint64(len(body))
	return nil
}

func (w *Writer) buildRecordBody(rec *Record) []byte {
	f16Data := f16.Float32ToF16Interleaved([][]float32{rec.Left, rec.Right})

	size := 2 + len(rec.Stage) + KeyLen*4 + 8 + 4 + len(f16Data)
	buf := make([]byte, size)
	offset := 0

	binary.LittleEndian.PutUint16(buf[offset:], uint16(len(rec.Stage)))
	offset += 2
	copy(buf[offset:], rec.Stage)
	offset += len(rec.Stage)

	for _, k := range rec.Key {
		binary.LittleEndian.PutUint32(buf[offset:], uint32(k))
		offset += 4
	}

	binary.LittleEndian.PutUint64(buf[offset:], math.Float64bits(rec.SampleRate))
	offset += 8

	binary.LittleEndian.PutUint32(buf[offset:], uint32(rec.Length()))
	offset += 4

	copy(buf[offset:], f16Data)

	return buf
}

// Close writes the index chunk and patches the header's index offset.
func (w *Writer) Close() error {
	indexOffset := w.currentPos

	indexData := w.buildIndexChunk()

	if _, err := w.w.Write([]byte(ChunkTypeIndex)); err != nil {
		return fmt.Errorf("filterdb: write index chunk id: %w", err)
	}
	if err := binary.Write(w.w, binary.LittleEndian, uint64(len(indexData))); err != nil {
		return fmt.Errorf("filterdb: write index chunk size: %w", err)
	}
	if _, err := w.w.Write(indexData); err != nil {
		return fmt.Errorf("filterdb: write index data: %w", err)
	}

	if _, err := w.w.Seek(10, io.SeekStart); err != nil {
		return fmt.Errorf("filterdb: seek to index offset field: %w", err)
	}
	if err := binary.Write(w.w, binary.LittleEndian, indexOffset); err != nil {
		return fmt.Errorf("filterdb: write index offset: %w", err)
	}

	return nil
}

func (w *Writer) buildIndexChunk() []byte {
	size := 0
	for _, m := range w.recordMetas {
		size += 8 + 2 + len(m.Stage) + KeyLen*4 + 8 + 4
	}

	buf := make([]byte, size)
	offset := 0
	for i, m := range w.recordMetas {
		binary.LittleEndian.PutUint64(buf[offset:], w.recordOffsets[i])
		offset += 8

		binary.LittleEndian.PutUint16(buf[offset:], uint16(len(m.Stage)))
		offset += 2
		copy(buf[offset:], m.Stage)
		offset += len(m.Stage)

		for _, k := range m.Key {
			binary.LittleEndian.PutUint32(buf[offset:], uint32(k))
			offset += 4
		}

		binary.LittleEndian.PutUint64(buf[offset:], math.Float64bits(m.SampleRate))
		offset += 8

		binary.LittleEndian.PutUint32(buf[offset:], uint32(m.Length))
		offset += 4
	}

	return buf
}

// WriteDatabase writes a full set of records to w in one call.
func WriteDatabase(w io.WriteSeeker, records []*Record) error {
	writer := NewWriter(w)
	if err := writer.WriteHeader(len(records)); err != nil {
		return err
	}
	for _, rec := range records {
		if err := writer.WriteRecord(rec); err != nil {
			return err
		}
	}
	return writer.Close()
}
