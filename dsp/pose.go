package dsp

// Orientation is a yaw/pitch/roll triple, quantised to integer degrees.
type Orientation [3]int32

// Position is an x/y/z triple, quantised to integer units.
type Position [3]int32

// Custom is an application-defined tag triple (a,b,c).
type Custom [3]int32

// Pose identifies an IR in a DS/ER/LR filter stage: a listener pose, a
// source pose, and a custom tag. Equality is structural.
type Pose struct {
	ListenerOrientation Orientation
	ListenerPosition    Position
	SourceOrientation   Orientation
	SourcePosition      Position
	Custom              Custom
}

// Key is the canonical 15-integer identity of a Pose, usable directly as a
// Go map key since fixed-size arrays of comparable element types are
// themselves comparable.
type Key [15]int32

// Key returns the canonical key for p: listener_orientation,
// listener_position, source_orientation, source_position, custom, in that
// order.
func (p Pose) Key() Key {
	var k Key
	copy(k[0:3], p.ListenerOrientation[:])
	copy(k[3:6], p.ListenerPosition[:])
	copy(k[6:9], p.SourceOrientation[:])
	copy(k[9:12], p.SourcePosition[:])
	copy(k[12:15], p.Custom[:])
	return k
}

// PoseFromValues builds a Pose from a 9-wide (listener_orientation,
// listener_position, custom) or 15-wide (..., source_orientation,
// source_position inserted before custom) integer list.
func PoseFromValues(values []int32) (Pose, bool) {
	switch len(values) {
	case 9:
		return Pose{
			ListenerOrientation: Orientation{values[0], values[1], values[2]},
			ListenerPosition:    Position{values[3], values[4], values[5]},
			Custom:              Custom{values[6], values[7], values[8]},
		}, true
	case 15:
		return Pose{
			ListenerOrientation: Orientation{values[0], values[1], values[2]},
			ListenerPosition:    Position{values[3], values[4], values[5]},
			SourceOrientation:   Orientation{values[6], values[7], values[8]},
			SourcePosition:      Position{values[9], values[10], values[11]},
			Custom:              Custom{values[12], values[13], values[14]},
		}, true
	default:
		return Pose{}, false
	}
}

// SourcePose identifies a directivity (SD) filter: a source orientation,
// source position, and custom tag.
type SourcePose struct {
	SourceOrientation Orientation
	SourcePosition    Position
	Custom            Custom
}

// SourceKey is the canonical 9-integer identity of a SourcePose.
type SourceKey [9]int32

// Key returns the canonical key for p.
func (p SourcePose) Key() SourceKey {
	var k SourceKey
	copy(k[0:3], p.SourceOrientation[:])
	copy(k[3:6], p.SourcePosition[:])
	copy(k[6:9], p.Custom[:])
	return k
}

// SourcePoseFromValues builds a SourcePose from a 9-wide (source_orientation,
// source_position, custom) integer list.
func SourcePoseFromValues(values []int32) (SourcePose, bool) {
	if len(values) != 9 {
		return SourcePose{}, false
	}
	return SourcePose{
		SourceOrientation: Orientation{values[0], values[1], values[2]},
		SourcePosition:    Position{values[3], values[4], values[5]},
		Custom:            Custom{values[6], values[7], values[8]},
	}, true
}
