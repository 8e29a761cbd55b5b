package dsp

import "testing"

func TestPoseKeyOrder(t *testing.T) {
	p := Pose{
		ListenerOrientation: Orientation{1, 2, 3},
		ListenerPosition:    Position{4, 5, 6},
		SourceOrientation:   Orientation{7, 8, 9},
		SourcePosition:      Position{10, 11, 12},
		Custom:              Custom{13, 14, 15},
	}
	want := Key{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	if got := p.Key(); got != want {
		t.Fatalf("Key() = %v, want %v", got, want)
	}
}

func TestPoseKeyIdentity(t *testing.T) {
	a := Pose{ListenerOrientation: Orientation{0, 0, 40}, Custom: Custom{1, 1, 0}}
	b := Pose{ListenerOrientation: Orientation{0, 0, 40}, Custom: Custom{1, 1, 0}}
	c := Pose{ListenerOrientation: Orientation{0, 0, 41}, Custom: Custom{1, 1, 0}}
	if a.Key() != b.Key() {
		t.Fatalf("identical poses must share a key")
	}
	if a.Key() == c.Key() {
		t.Fatalf("distinct poses must not share a key")
	}
}

func TestPoseFromValues(t *testing.T) {
	p9, ok := PoseFromValues([]int32{0, 0, 40, 1, 1, 0, 0, 0, 0})
	if !ok {
		t.Fatalf("9-value parse failed")
	}
	if p9.ListenerOrientation != (Orientation{0, 0, 40}) {
		t.Fatalf("unexpected listener orientation: %v", p9.ListenerOrientation)
	}
	if p9.Custom != (Custom{0, 0, 0}) {
		t.Fatalf("unexpected custom: %v", p9.Custom)
	}

	p15, ok := PoseFromValues([]int32{0, 0, 40, 1, 1, 0, 5, 6, 7, 8, 9, 10, 11, 12, 13})
	if !ok {
		t.Fatalf("15-value parse failed")
	}
	if p15.SourceOrientation != (Orientation{5, 6, 7}) {
		t.Fatalf("unexpected source orientation: %v", p15.SourceOrientation)
	}
	if p15.SourcePosition != (Position{8, 9, 10}) {
		t.Fatalf("unexpected source position: %v", p15.SourcePosition)
	}
	if p15.Custom != (Custom{11, 12, 13}) {
		t.Fatalf("unexpected custom: %v", p15.Custom)
	}

	if _, ok := PoseFromValues([]int32{1, 2, 3}); ok {
		t.Fatalf("expected parse failure for wrong-length input")
	}
}

func TestSourcePoseKey(t *testing.T) {
	sp, ok := SourcePoseFromValues([]int32{1, 2, 3, 4, 5, 6, 7, 8, 9})
	if !ok {
		t.Fatalf("parse failed")
	}
	want := SourceKey{1, 2, 3, 4, 5, 6, 7, 8, 9}
	if got := sp.Key(); got != want {
		t.Fatalf("Key() = %v, want %v", got, want)
	}
}
