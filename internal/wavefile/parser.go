// Package wavefile provides parsing of PCM and IEEE-float WAV files.
//
// WAV (RIFF/WAVE) is a Microsoft container format. This parser supports:
//   - 16-bit and 24-bit signed PCM
//   - 32-bit IEEE float
//   - Mono, stereo, and arbitrary multichannel files
//
// Compressed formats (ADPCM, MP3-in-WAV, etc.) are not supported.
package wavefile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Errors.
var (
	ErrNotWAV            = errors.New("wavefile: not a WAV file")
	ErrUnsupportedFormat = errors.New("wavefile: unsupported format")
	ErrInvalidFile       = errors.New("wavefile: invalid file structure")
	ErrMissingChunk      = errors.New("wavefile: missing required chunk")
)

const (
	formatPCM       = 1
	formatIEEEFloat = 3
	formatExtensible = 0xFFFE
)

// File represents a parsed WAV file.
type File struct {
	NumChannels   int
	SampleRate    int
	BitsPerSample int
	NumSamples    int

	// Data is decoded audio as float32 in [-1.0, 1.0], organized as
	// [channel][sample].
	Data [][]float32
}

// Parse reads and parses a WAV file from the given reader.
func Parse(r io.Reader) (*File, error) {
	var riffHeader [12]byte
	if _, err := io.ReadFull(r, riffHeader[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	if string(riffHeader[0:4]) != "RIFF" {
		return nil, ErrNotWAV
	}
	if string(riffHeader[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	f := &File{}
	var fmtFound, dataFound bool
	var audioFormat uint16
	var pcmData []byte

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])
		paddedSize := chunkSize
		if paddedSize%2 != 0 {
			paddedSize++
		}

		switch chunkID {
		case "fmt ":
			var err error
			audioFormat, err = f.parseFmt(r, chunkSize)
			if err != nil {
				return nil, err
			}
			fmtFound = true
			if chunkSize%2 != 0 {
				_, _ = io.ReadFull(r, make([]byte, 1))
			}

		case "data":
			if !fmtFound {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidFile)
			}
			data := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
			}
			pcmData = data
			dataFound = true
			if chunkSize%2 != 0 {
				_, _ = io.ReadFull(r, make([]byte, 1))
			}

		default:
			if _, err := io.CopyN(io.Discard, r, int64(paddedSize)); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("%w: failed to skip chunk %s: %w", ErrInvalidFile, chunkID, err)
			}
		}
	}

	if !fmtFound {
		return nil, fmt.Errorf("%w: fmt chunk", ErrMissingChunk)
	}
	if !dataFound {
		return nil, fmt.Errorf("%w: data chunk", ErrMissingChunk)
	}

	if err := f.decodeAudio(pcmData, audioFormat); err != nil {
		return nil, err
	}

	return f, nil
}

// parseFmt parses the fmt chunk and returns the audio format code.
func (f *File) parseFmt(r io.Reader, size uint32) (uint16, error) {
	if size < 16 {
		return 0, fmt.Errorf("%w: fmt chunk too small", ErrInvalidFile)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}

	audioFormat := binary.LittleEndian.Uint16(buf[0:2])
	f.NumChannels = int(binary.LittleEndian.Uint16(buf[2:4]))
	f.SampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
	f.BitsPerSample = int(binary.LittleEndian.Uint16(buf[14:16]))

	if audioFormat == formatExtensible && size >= 40 {
		// WAVE_FORMAT_EXTENSIBLE carries the real format code in the
		// SubFormat GUID's first two bytes, at offset 24 within the chunk.
		audioFormat = binary.LittleEndian.Uint16(buf[24:26])
	}

	if f.NumChannels < 1 {
		return 0, fmt.Errorf("%w: invalid channel count %d", ErrUnsupportedFormat, f.NumChannels)
	}
	if f.SampleRate <= 0 {
		return 0, fmt.Errorf("%w: invalid sample rate %d", ErrUnsupportedFormat, f.SampleRate)
	}
	if audioFormat != formatPCM && audioFormat != formatIEEEFloat {
		return 0, fmt.Errorf("%w: audio format code %d", ErrUnsupportedFormat, audioFormat)
	}
	switch f.BitsPerSample {
	case 16, 24, 32:
	default:
		return 0, fmt.Errorf("%w: unsupported bit depth %d", ErrUnsupportedFormat, f.BitsPerSample)
	}
	if audioFormat == formatIEEEFloat && f.BitsPerSample != 32 {
		return 0, fmt.Errorf("%w: IEEE float with bit depth %d", ErrUnsupportedFormat, f.BitsPerSample)
	}

	return audioFormat, nil
}

// decodeAudio converts raw PCM/float bytes to per-channel float32 data.
func (f *File) decodeAudio(data []byte, audioFormat uint16) error {
	bytesPerSample := f.BitsPerSample / 8
	frameSize := bytesPerSample * f.NumChannels
	if frameSize == 0 {
		return fmt.Errorf("%w: zero frame size", ErrInvalidFile)
	}
	numFrames := len(data) / frameSize
	f.NumSamples = numFrames

	f.Data = make([][]float32, f.NumChannels)
	for ch := range f.Data {
		f.Data[ch] = make([]float32, numFrames)
	}

	offset := 0
	for frame := 0; frame < numFrames; frame++ {
		for ch := 0; ch < f.NumChannels; ch++ {
			var sample float32
			switch {
			case audioFormat == formatIEEEFloat:
				bits := binary.LittleEndian.Uint32(data[offset : offset+4])
				sample = math.Float32frombits(bits)
				offset += 4

			case f.BitsPerSample == 16:
				s := int16(binary.LittleEndian.Uint16(data[offset : offset+2]))
				sample = float32(s) / 32768.0
				offset += 2

			case f.BitsPerSample == 24:
				b0, b1, b2 := data[offset], data[offset+1], data[offset+2]
				var s int32
				if b2&0x80 != 0 {
					s = -1<<24 | int32(b2)<<16 | int32(b1)<<8 | int32(b0)
				} else {
					s = int32(b2)<<16 | int32(b1)<<8 | int32(b0)
				}
				sample = float32(s) / 8388608.0
				offset += 3

			case f.BitsPerSample == 32:
				s := int32(binary.LittleEndian.Uint32(data[offset : offset+4]))
				sample = float32(s) / 2147483648.0
				offset += 4
			}
			f.Data[ch][frame] = sample
		}
	}

	return nil
}

// Duration returns the duration of the audio in seconds.
func (f *File) Duration() float64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return float64(f.NumSamples) / float64(f.SampleRate)
}
