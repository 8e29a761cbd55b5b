package control

import (
	"testing"

	"binsim-go/sound"
)

type fakeConfig struct {
	pauseAudio       bool
	pauseConvolution bool
	loudness         float32
	loopSound        bool
}

func (f *fakeConfig) SetPauseAudioPlayback(v bool) { f.pauseAudio = v }
func (f *fakeConfig) SetPauseConvolution(v bool)   { f.pauseConvolution = v }
func (f *fakeConfig) SetLoudnessFactor(v float32)  { f.loudness = v }
func (f *fakeConfig) LoopSound() bool              { return f.loopSound }

func newTestReceiver() (*Receiver, *fakeConfig, *sound.Handler) {
	cfg := &fakeConfig{}
	handler := sound.NewHandler(2, 8, 48000, nil)
	r := NewReceiver(NewStageSlots(), NewStageSlots(), NewStageSlots(), NewSourceStageSlots(), cfg, handler, nil)
	return r, cfg, handler
}

func TestReceiverFilterDSOrientationUpdatesSlice(t *testing.T) {
	r, _, _ := newTestReceiver()
	r.ds.TakeDirty(3)

	r.handleLine("FILTER_DS_Orientation 3 10 20 30")
	if !r.ds.TakeDirty(3) {
		t.Fatalf("expected channel 3 to be dirty after update")
	}
	row := r.ds.Row(3)
	if row[0] != 10 || row[1] != 20 || row[2] != 30 {
		t.Fatalf("unexpected row: %v", row)
	}
}

func TestReceiverUnknownAddressDropped(t *testing.T) {
	r, _, _ := newTestReceiver()
	// must not panic; malformed/unknown messages are logged and dropped.
	r.handleLine("NOT_A_REAL_ADDRESS 1 2 3")
}

func TestReceiverPauseAndLoudness(t *testing.T) {
	r, cfg, _ := newTestReceiver()
	r.handleLine("PAUSE_AUDIO true")
	if !cfg.pauseAudio {
		t.Fatalf("expected pauseAudio true")
	}
	r.handleLine("PAUSE_CONVOLUTION true")
	if !cfg.pauseConvolution {
		t.Fatalf("expected pauseConvolution true")
	}
	r.handleLine("LOUDNESS 0.5")
	if cfg.loudness != 0.5 {
		t.Fatalf("expected loudness 0.5, got %v", cfg.loudness)
	}
}

func TestReceiverPlayAndPlayerControl(t *testing.T) {
	r, _, handler := newTestReceiver()
	r.handleLine("PLAY somefile.wav 1 single myplayer 0.8 play")

	if _, ok := handler.GetPlayer("myplayer"); !ok {
		t.Fatalf("expected player 'myplayer' to exist")
	}
	vol, ok := handler.PlayerVolume("myplayer")
	if !ok || vol != 0.8 {
		t.Fatalf("expected volume 0.8, got %v (ok=%v)", vol, ok)
	}

	r.handleLine("PLAYER_CONTROL myplayer stop")
	p, _ := handler.GetPlayer("myplayer")
	if p.PlayState() != sound.Stopped {
		t.Fatalf("expected player to be stopped")
	}
}

func TestReceiverMultiAppliesAllSubcommandsAtomically(t *testing.T) {
	r, cfg, _ := newTestReceiver()
	payload := "MULTI 2\nPAUSE_AUDIO true\nLOUDNESS 0.25"
	r.handlePacket(payload)

	if !cfg.pauseAudio {
		t.Fatalf("expected pauseAudio true after MULTI")
	}
	if cfg.loudness != 0.25 {
		t.Fatalf("expected loudness 0.25 after MULTI, got %v", cfg.loudness)
	}
}

func TestReceiverStopAllPlayers(t *testing.T) {
	r, _, handler := newTestReceiver()
	handler.CreatePlayer("a", nil, 0, sound.Single, sound.Playing, 1.0)
	r.handleLine("STOP_ALL_PLAYERS")
	if len(handler.PlayerNames()) != 0 {
		t.Fatalf("expected no players after STOP_ALL_PLAYERS")
	}
}
