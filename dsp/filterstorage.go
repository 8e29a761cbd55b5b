package dsp

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"binsim-go/internal/filterdb"
	"binsim-go/internal/wavefile"
)

// Errors returned while loading or looking up filters.
var (
	ErrFilterFileMissing    = errors.New("dsp: filter file missing")
	ErrFilterBadSampleRate  = errors.New("dsp: filter sample rate mismatch")
	ErrStageIdentifierMissing = errors.New("dsp: filter list line has no recognized stage identifier")
	ErrNoHeadphoneFilter    = errors.New("dsp: no headphone filter loaded")
)

// Stage names as used in filter list files and filter database records.
const (
	StageDS = "DS"
	StageER = "ER"
	StageLR = "LR"
	StageSD = "SD"
	StageHP = "HP"
)

// StageSizes configures the IR sample length (before partitioning) of each
// convolution stage, in samples at the engine's operating sample rate.
type StageSizes struct {
	DS int
	ER int
	LR int
	SD int
	HP int
}

// FilterStorage owns every stage's loaded filter set, keyed by pose, and
// serves lookups with a silent default and a log-once-per-missing-key
// policy so a noisy pose stream doesn't flood the log.
type FilterStorage struct {
	blockSize int
	sizes     StageSizes

	sampleRate float64 // expected sample rate; 0 disables the check

	log *slog.Logger

	dsBuilder  *filterBuilder
	erBuilder  *filterBuilder
	lrBuilder  *filterBuilder
	sdBuilder  *filterBuilder
	hpBuilder  *filterBuilder

	mu sync.RWMutex
	ds map[Key]*Filter
	er map[Key]*Filter
	lr map[Key]*Filter
	sd map[SourceKey]*Filter
	hp *Filter

	defaultDS *Filter
	defaultER *Filter
	defaultLR *Filter
	defaultSD *Filter

	warned sync.Map // string -> struct{}
}

// NewFilterStorage creates an empty FilterStorage with silent default
// filters for every stage. sampleRate, if nonzero, is enforced against every
// loaded WAV file's header.
func NewFilterStorage(blockSize int, sizes StageSizes, sampleRate float64, log *slog.Logger) (*FilterStorage, error) {
	if log == nil {
		log = slog.Default()
	}

	fs := &FilterStorage{
		blockSize:  blockSize,
		sizes:      sizes,
		sampleRate: sampleRate,
		log:        log,
		ds:         make(map[Key]*Filter),
		er:         make(map[Key]*Filter),
		lr:         make(map[Key]*Filter),
		sd:         make(map[SourceKey]*Filter),
	}

	var err error
	fs.dsBuilder, err = newFilterBuilder(PartitionsFor(sizes.DS, blockSize), blockSize, nil, nil)
	if err != nil {
		return nil, err
	}
	fs.erBuilder, err = newFilterBuilder(PartitionsFor(sizes.ER, blockSize), blockSize, nil, nil)
	if err != nil {
		return nil, err
	}
	fadeIn, fadeOut := fadeWindows(blockSize)
	fs.lrBuilder, err = newFilterBuilder(PartitionsFor(sizes.LR, blockSize), blockSize, fadeIn, fadeOut)
	if err != nil {
		return nil, err
	}
	fs.sdBuilder, err = newFilterBuilder(PartitionsFor(sizes.SD, blockSize), blockSize, nil, nil)
	if err != nil {
		return nil, err
	}
	fs.hpBuilder, err = newFilterBuilder(PartitionsFor(sizes.HP, blockSize), blockSize, nil, nil)
	if err != nil {
		return nil, err
	}

	fs.defaultDS = NewSilentFilter(fs.dsBuilder.partitions, blockSize)
	fs.defaultER = NewSilentFilter(fs.erBuilder.partitions, blockSize)
	fs.defaultLR = NewSilentFilter(fs.lrBuilder.partitions, blockSize)
	fs.defaultSD = NewSilentFilter(fs.sdBuilder.partitions, blockSize)

	return fs, nil
}

// parsedLine is one non-comment, non-blank line of a filter list file.
type parsedLine struct {
	stage string
	pose  Pose
	src   SourcePose
	path  string
}

// parseFilterList reads a filter list file in the format:
//
//	DS 0 0 40 1 1 0 0 0 0 0 0 0 0 0 0 brir/ref_a01.wav
//	SD 0 0 0 0 0 0 0 0 0 dir/src_000.wav
//	HP hp/headphone.wav
//
// Lines starting with '#' or empty lines are skipped.
func parseFilterList(path string) ([]parsedLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFilterFileMissing, err)
	}
	defer f.Close()

	var lines []parsedLine
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: line %d: %q", ErrStageIdentifierMissing, lineNo, line)
		}

		stage := fields[0]
		filterPath := fields[len(fields)-1]

		switch stage {
		case StageHP:
			lines = append(lines, parsedLine{stage: stage, path: filterPath})
		case StageDS, StageER, StageLR:
			values, err := parseInts(fields[1 : len(fields)-1])
			if err != nil {
				return nil, fmt.Errorf("dsp: line %d: %w", lineNo, err)
			}
			pose, ok := PoseFromValues(values)
			if !ok {
				return nil, fmt.Errorf("dsp: line %d: expected 9 or 15 pose values, got %d", lineNo, len(values))
			}
			lines = append(lines, parsedLine{stage: stage, pose: pose, path: filterPath})
		case StageSD:
			values, err := parseInts(fields[1 : len(fields)-1])
			if err != nil {
				return nil, fmt.Errorf("dsp: line %d: %w", lineNo, err)
			}
			src, ok := SourcePoseFromValues(values)
			if !ok {
				return nil, fmt.Errorf("dsp: line %d: expected 9 source pose values, got %d", lineNo, len(values))
			}
			lines = append(lines, parsedLine{stage: stage, src: src, path: filterPath})
		default:
			return nil, fmt.Errorf("%w: line %d: %q", ErrStageIdentifierMissing, lineNo, stage)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dsp: reading filter list: %w", err)
	}
	return lines, nil
}

func parseInts(fields []string) ([]int32, error) {
	out := make([]int32, len(fields))
	for i, s := range fields {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("dsp: invalid integer %q: %w", s, err)
		}
		out[i] = int32(v)
	}
	return out, nil
}

// LoadFromFileList loads every stage's filters from a text filter list,
// reading each referenced WAV file from disk.
func (fs *FilterStorage) LoadFromFileList(listPath string) error {
	entries, err := parseFilterList(listPath)
	if err != nil {
		return err
	}

	for _, e := range entries {
		left, right, err := fs.readWavPair(e.path)
		if err != nil {
			return err
		}

		switch e.stage {
		case StageHP:
			left = NormalizeIR(left, fs.hpBuilder.partitions*fs.blockSize)
			right = NormalizeIR(right, fs.hpBuilder.partitions*fs.blockSize)
			filter, err := fs.hpBuilder.build(left, right, fadeNone)
			if err != nil {
				return fmt.Errorf("dsp: building headphone filter %s: %w", e.path, err)
			}
			fs.mu.Lock()
			fs.hp = filter
			fs.mu.Unlock()

		case StageDS:
			left = NormalizeIR(left, fs.dsBuilder.partitions*fs.blockSize)
			right = NormalizeIR(right, fs.dsBuilder.partitions*fs.blockSize)
			filter, err := fs.dsBuilder.build(left, right, fadeNone)
			if err != nil {
				return fmt.Errorf("dsp: building DS filter %s: %w", e.path, err)
			}
			fs.mu.Lock()
			fs.ds[e.pose.Key()] = filter
			fs.mu.Unlock()

		case StageER:
			left = NormalizeIR(left, fs.erBuilder.partitions*fs.blockSize)
			right = NormalizeIR(right, fs.erBuilder.partitions*fs.blockSize)
			filter, err := fs.erBuilder.build(left, right, fadeNone)
			if err != nil {
				return fmt.Errorf("dsp: building ER filter %s: %w", e.path, err)
			}
			fs.mu.Lock()
			fs.er[e.pose.Key()] = filter
			fs.mu.Unlock()

		case StageLR:
			left = NormalizeIR(left, fs.lrBuilder.partitions*fs.blockSize)
			right = NormalizeIR(right, fs.lrBuilder.partitions*fs.blockSize)
			filter, err := fs.lrBuilder.build(left, right, fadeInFirst)
			if err != nil {
				return fmt.Errorf("dsp: building LR filter %s: %w", e.path, err)
			}
			fs.mu.Lock()
			fs.lr[e.pose.Key()] = filter
			fs.mu.Unlock()

		case StageSD:
			left = NormalizeIR(left, fs.sdBuilder.partitions*fs.blockSize)
			right = NormalizeIR(right, fs.sdBuilder.partitions*fs.blockSize)
			filter, err := fs.sdBuilder.build(left, right, fadeNone)
			if err != nil {
				return fmt.Errorf("dsp: building SD filter %s: %w", e.path, err)
			}
			fs.mu.Lock()
			fs.sd[e.src.Key()] = filter
			fs.mu.Unlock()
		}
	}

	fs.log.Info("filter storage loaded filter list", "path", listPath, "ds", len(fs.ds), "er", len(fs.er), "lr", len(fs.lr), "sd", len(fs.sd))
	return nil
}

func (fs *FilterStorage) readWavPair(path string) (left, right []float32, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrFilterFileMissing, path, err)
	}
	defer f.Close()

	wav, err := wavefile.Parse(f)
	if err != nil {
		return nil, nil, fmt.Errorf("dsp: parsing %s: %w", path, err)
	}
	if fs.sampleRate != 0 && float64(wav.SampleRate) != fs.sampleRate {
		return nil, nil, fmt.Errorf("%w: %s has %d Hz, want %v Hz", ErrFilterBadSampleRate, path, wav.SampleRate, fs.sampleRate)
	}

	switch len(wav.Data) {
	case 1:
		return wav.Data[0], wav.Data[0], nil
	default:
		return wav.Data[0], wav.Data[1], nil
	}
}

// LoadFromDatabase loads every stage's filters from a binary filter
// database file built by the filterdb-convert tool.
func (fs *FilterStorage) LoadFromDatabase(dbPath string) error {
	f, err := os.Open(dbPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFilterFileMissing, dbPath, err)
	}
	defer f.Close()

	reader, err := filterdb.NewReader(f)
	if err != nil {
		return fmt.Errorf("dsp: opening filter database %s: %w", dbPath, err)
	}

	for i := 0; i < reader.RecordCount(); i++ {
		rec, err := reader.LoadRecord(i)
		if err != nil {
			return fmt.Errorf("dsp: loading filter database record %d: %w", i, err)
		}
		if fs.sampleRate != 0 && rec.SampleRate != fs.sampleRate {
			return fmt.Errorf("%w: record %d has %v Hz, want %v Hz", ErrFilterBadSampleRate, i, rec.SampleRate, fs.sampleRate)
		}

		switch rec.Stage {
		case StageHP:
			left := NormalizeIR(rec.Left, fs.hpBuilder.partitions*fs.blockSize)
			right := NormalizeIR(rec.Right, fs.hpBuilder.partitions*fs.blockSize)
			filter, err := fs.hpBuilder.build(left, right, fadeNone)
			if err != nil {
				return err
			}
			fs.mu.Lock()
			fs.hp = filter
			fs.mu.Unlock()

		case StageDS:
			var key Key
			copy(key[:], rec.Key[:])
			left := NormalizeIR(rec.Left, fs.dsBuilder.partitions*fs.blockSize)
			right := NormalizeIR(rec.Right, fs.dsBuilder.partitions*fs.blockSize)
			filter, err := fs.dsBuilder.build(left, right, fadeNone)
			if err != nil {
				return err
			}
			fs.mu.Lock()
			fs.ds[key] = filter
			fs.mu.Unlock()

		case StageER:
			var key Key
			copy(key[:], rec.Key[:])
			left := NormalizeIR(rec.Left, fs.erBuilder.partitions*fs.blockSize)
			right := NormalizeIR(rec.Right, fs.erBuilder.partitions*fs.blockSize)
			filter, err := fs.erBuilder.build(left, right, fadeNone)
			if err != nil {
				return err
			}
			fs.mu.Lock()
			fs.er[key] = filter
			fs.mu.Unlock()

		case StageLR:
			var key Key
			copy(key[:], rec.Key[:])
			left := NormalizeIR(rec.Left, fs.lrBuilder.partitions*fs.blockSize)
			right := NormalizeIR(rec.Right, fs.lrBuilder.partitions*fs.blockSize)
			filter, err := fs.lrBuilder.build(left, right, fadeInFirst)
			if err != nil {
				return err
			}
			fs.mu.Lock()
			fs.lr[key] = filter
			fs.mu.Unlock()

		case StageSD:
			var key SourceKey
			copy(key[:], rec.Key[:len(key)])
			left := NormalizeIR(rec.Left, fs.sdBuilder.partitions*fs.blockSize)
			right := NormalizeIR(rec.Right, fs.sdBuilder.partitions*fs.blockSize)
			filter, err := fs.sdBuilder.build(left, right, fadeNone)
			if err != nil {
				return err
			}
			fs.mu.Lock()
			fs.sd[key] = filter
			fs.mu.Unlock()
		}
	}

	fs.log.Info("filter storage loaded database", "path", dbPath, "records", reader.RecordCount())
	return nil
}

// logMissOnce emits a warning at most once per distinct missing key.
func (fs *FilterStorage) logMissOnce(stage string, key any) {
	token := fmt.Sprintf("%s:%v", stage, key)
	if _, loaded := fs.warned.LoadOrStore(token, struct{}{}); !loaded {
		fs.log.Warn("filter storage: pose has no filter, returning silence", "stage", stage, "key", key)
	}
}

// DirectSound returns the DS filter for key, or a silent default if absent.
func (fs *FilterStorage) DirectSound(key Key) *Filter {
	fs.mu.RLock()
	f, ok := fs.ds[key]
	fs.mu.RUnlock()
	if ok {
		return f
	}
	fs.logMissOnce(StageDS, key)
	return fs.defaultDS
}

// EarlyReflections returns the ER filter for key, or a silent default.
func (fs *FilterStorage) EarlyReflections(key Key) *Filter {
	fs.mu.RLock()
	f, ok := fs.er[key]
	fs.mu.RUnlock()
	if ok {
		return f
	}
	fs.logMissOnce(StageER, key)
	return fs.defaultER
}

// LateReverb returns the LR filter for key, or a silent default.
func (fs *FilterStorage) LateReverb(key Key) *Filter {
	fs.mu.RLock()
	f, ok := fs.lr[key]
	fs.mu.RUnlock()
	if ok {
		return f
	}
	fs.logMissOnce(StageLR, key)
	return fs.defaultLR
}

// SourceDirectivity returns the SD filter for key, or a silent default.
func (fs *FilterStorage) SourceDirectivity(key SourceKey) *Filter {
	fs.mu.RLock()
	f, ok := fs.sd[key]
	fs.mu.RUnlock()
	if ok {
		return f
	}
	fs.logMissOnce(StageSD, key)
	return fs.defaultSD
}

// Headphone returns the loaded headphone filter, or ErrNoHeadphoneFilter if
// none was loaded.
func (fs *FilterStorage) Headphone() (*Filter, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.hp == nil {
		return nil, ErrNoHeadphoneFilter
	}
	return fs.hp, nil
}

// HasHeadphoneFilter reports whether a headphone filter was loaded.
func (fs *FilterStorage) HasHeadphoneFilter() bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.hp != nil
}
