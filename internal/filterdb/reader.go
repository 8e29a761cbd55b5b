package filterdb

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"binsim-go/pkg/f16"
)

// Reader reads filter database files, exposing an index for lookup without
// decoding every record's audio.
type Reader struct {
	r           io.ReadSeeker
	version     uint16
	recordCount uint32
	indexOffset uint64
	index       []IndexEntry
}

// NewReader parses the file header and index.
func NewReader(r io.ReadSeeker) (*Reader, error) {
	reader := &Reader{r: r}
	if err := reader.readHeader(); err != nil {
		return nil, err
	}
	if err := reader.readIndex(); err != nil {
		return nil, err
	}
	return reader, nil
}

func (r *Reader) readHeader() error {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r.r, magic); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	if string(magic) != MagicNumber {
		return ErrInvalidMagic
	}

	if err := binary.Read(r.r, binary.LittleEndian, &r.version); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	if r.version != CurrentVersion {
		return fmt.Errorf("%w: got version %d, expected %d", ErrUnsupportedVersion, r.version, CurrentVersion)
	}

	if err := binary.Read(r.r, binary.LittleEndian, &r.recordCount); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	if err := binary.Read(r.r, binary.LittleEndian, &r.indexOffset); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	return nil
}

func (r *Reader) readIndex() error {
	if _, err := r.r.Seek(int64(r.indexOffset), io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	chunkID := make([]byte, 4)
	if _, err := io.ReadFull(r.r, chunkID); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	if string(chunkID) != ChunkTypeIndex {
		return fmt.Errorf("%w: expected index chunk, got %q", ErrInvalidChunk, string(chunkID))
	}

	var chunkSize uint64
	if err := binary.Read(r.r, binary.LittleEndian, &chunkSize); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	r.index = make([]IndexEntry, 0, r.recordCount)
	for i := uint32(0); i < r.recordCount; i++ {
		entry, err := r.readIndexEntry()
		if err != nil {
			return err
		}
		r.index = append(r.index, entry)
	}

	return nil
}

func (r *Reader) readIndexEntry() (IndexEntry, error) {
	var entry IndexEntry

	if err := binary.Read(r.r, binary.LittleEndian, &entry.Offset); err != nil {
		return entry, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	stage, err := r.readString()
	if err != nil {
		return entry, err
	}
	entry.Stage = stage

	for i := range entry.Key {
		var k uint32
		if err := binary.Read(r.r, binary.LittleEndian, &k); err != nil {
			return entry, fmt.Errorf("%w: %w", ErrCorruptedData, err)
		}
		entry.Key[i] = int32(k)
	}

	var sampleRateBits uint64
	if err := binary.Read(r.r, binary.LittleEndian, &sampleRateBits); err != nil {
		return entry, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	entry.SampleRate = math.Float64frombits(sampleRateBits)

	var length uint32
	if err := binary.Read(r.r, binary.LittleEndian, &length); err != nil {
		return entry, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	entry.Length = int(length)

	return entry, nil
}

func (r *Reader) readString() (string, error) {
	var length uint16
	if err := binary.Read(r.r, binary.LittleEndian, &length); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	if length == 0 {
		return "", nil
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	return string(data), nil
}

// Version returns the format version of the database.
func (r *Reader) Version() uint16 { return r.version }

// RecordCount returns the number of records in the database.
func (r *Reader) RecordCount() int { return int(r.recordCount) }

// ListRecords returns the index metadata for every record, without loading
// audio.
func (r *Reader) ListRecords() []IndexEntry {
	out := make([]IndexEntry, len(r.index))
	copy(out, r.index)
	return out
}

// LoadRecord loads a specific record by index.
func (r *Reader) LoadRecord(index int) (*Record, error) {
	if index < 0 || index >= len(r.index) {
		return nil, ErrInvalidIndex
	}
	entry := r.index[index]
	if _, err := r.r.Seek(int64(entry.Offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	return r.readRecordChunk()
}

// Find locates a record by stage identifier and pose key.
func (r *Reader) Find(stage string, key [KeyLen]int32) (*Record, error) {
	for i, entry := range r.index {
		if entry.Stage == stage && entry.Key == key {
			return r.LoadRecord(i)
		}
	}
	return nil, ErrRecordNotFound
}

func (r *Reader) readRecordChunk() (*Record, error) {
	chunkID := make([]byte, 4)
	if _, err := io.ReadFull(r.r, chunkID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	if string(chunkID) != ChunkTypeRecord {
		return nil, fmt.Errorf("%w: expected record chunk, got %q", ErrInvalidChunk, string(chunkID))
	}

	var chunkSize uint64
	if err := binary.Read(r.r, binary.LittleEndian, &chunkSize); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	rec := &Record{}

	stage, err := r.readString()
	if err != nil {
		return nil, err
	}
	rec.Stage = stage

	for i := range rec.Key {
		var k uint32
		if err := binary.Read(r.r, binary.LittleEndian, &k); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptedData, err)
		}
		rec.Key[i] = int32(k)
	}

	var sampleRateBits uint64
	if err := binary.Read(r.r, binary.LittleEndian, &sampleRateBits); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	rec.SampleRate = math.Float64frombits(sampleRateBits)

	var length uint32
	if err := binary.Read(r.r, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	f16Data := make([]byte, int(length)*2*2) // 2 ears * 2 bytes/sample
	if _, err := io.ReadFull(r.r, f16Data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	deinterleaved := f16.F16ToFloat32Deinterleaved(f16Data, 2)
	rec.Left = deinterleaved[0]
	rec.Right = deinterleaved[1]

	return rec, nil
}

// Close is a no-op, provided for interface symmetry with other readers.
func (r *Reader) Close() error { return nil }
