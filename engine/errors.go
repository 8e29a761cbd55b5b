package engine

import "errors"

var (
	// ErrConfigParse marks a startup configuration value this engine
	// cannot act on (e.g. a "mat" filter source, for which no reader
	// exists in this implementation).
	ErrConfigParse = errors.New("engine: unsupported configuration value")
	// ErrQueueUnderrun marks an audio-driver-reported output underrun.
	ErrQueueUnderrun = errors.New("engine: output queue underrun")
	// ErrClipDetected marks an output block whose peak sample magnitude
	// exceeded 1.0. Samples are emitted unaltered; this is advisory.
	ErrClipDetected = errors.New("engine: clipping detected")
)
