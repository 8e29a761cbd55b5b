package control

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"binsim-go/sound"
)

// ConfigMutator is the subset of the engine configuration a Receiver may
// change at runtime. Defined here rather than imported so this package
// doesn't depend on the engine package.
type ConfigMutator interface {
	SetPauseAudioPlayback(bool)
	SetPauseConvolution(bool)
	SetLoudnessFactor(float32)
	LoopSound() bool
}

// ConfigSoundfilePlayerName is the fixed player name the FILE address
// replaces, matching the reference default-playlist player.
const ConfigSoundfilePlayerName = "config_soundfile"

// readDeadline bounds each socket read so Close's context cancellation is
// noticed promptly without busy-polling.
const readDeadline = time.Second

// Receiver listens on four UDP sockets (one per DS/ER/LR/MISC address
// group) and applies decoded messages to shared pose-slot and config state.
type Receiver struct {
	ds *StageSlots
	er *StageSlots
	lr *StageSlots
	sd *SourceStageSlots

	config  ConfigMutator
	handler *sound.Handler
	log     *slog.Logger

	dispatch [cmdKindCount]func(r *Receiver, cmd Command)

	wg    sync.WaitGroup
	conns []net.PacketConn
}

// NewReceiver creates a Receiver over the given shared slot state.
func NewReceiver(ds, er, lr *StageSlots, sd *SourceStageSlots, config ConfigMutator, handler *sound.Handler, log *slog.Logger) *Receiver {
	if log == nil {
		log = slog.Default()
	}
	r := &Receiver{ds: ds, er: er, lr: lr, sd: sd, config: config, handler: handler, log: log}
	r.buildDispatch()
	return r
}

// buildDispatch wires every CommandKind to its handler closure. Built per
// instance since filter handlers close over this receiver's slot pointers.
func (r *Receiver) buildDispatch() {
	filterHandler := func(slots *StageSlots, kind CommandKind) func(*Receiver, Command) {
		bounds := sliceBounds[kind]
		return func(r *Receiver, cmd Command) {
			if len(cmd.Fields) < 1 {
				r.log.Warn("control: filter command missing channel field")
				return
			}
			channel, err := parseInt(cmd.Fields[0])
			if err != nil {
				r.log.Warn("control: bad channel field", "error", err)
				return
			}
			values, err := parseInt32s(cmd.Fields[1:])
			if err != nil {
				r.log.Warn("control: bad pose values", "error", err)
				return
			}
			if err := slots.UpdateSlice(channel, bounds[0], bounds[1], values); err != nil {
				r.log.Warn("control: filter slice update rejected", "error", err)
			}
		}
	}

	for _, kind := range []CommandKind{
		CmdFilterDSFull, CmdFilterDSShort, CmdFilterDSOrientation, CmdFilterDSPosition,
		CmdFilterDSSourceOrientation, CmdFilterDSSourcePosition, CmdFilterDSCustom,
	} {
		r.dispatch[kind] = filterHandler(r.ds, kind)
	}
	for _, kind := range []CommandKind{
		CmdFilterERFull, CmdFilterERShort, CmdFilterEROrientation, CmdFilterERPosition,
		CmdFilterERSourceOrientation, CmdFilterERSourcePosition, CmdFilterERCustom,
	} {
		r.dispatch[kind] = filterHandler(r.er, kind)
	}
	for _, kind := range []CommandKind{
		CmdFilterLRFull, CmdFilterLRShort, CmdFilterLROrientation, CmdFilterLRPosition,
		CmdFilterLRSourceOrientation, CmdFilterLRSourcePosition, CmdFilterLRCustom,
	} {
		r.dispatch[kind] = filterHandler(r.lr, kind)
	}

	r.dispatch[CmdFilterSD] = func(r *Receiver, cmd Command) {
		if len(cmd.Fields) < 1 {
			r.log.Warn("control: FILTER_SD missing channel field")
			return
		}
		channel, err := parseInt(cmd.Fields[0])
		if err != nil {
			r.log.Warn("control: bad channel field", "error", err)
			return
		}
		values, err := parseInt32s(cmd.Fields[1:])
		if err != nil {
			r.log.Warn("control: bad pose values", "error", err)
			return
		}
		if err := r.sd.UpdateSlice(channel, 0, 9, values); err != nil {
			r.log.Warn("control: FILTER_SD update rejected", "error", err)
		}
	}

	r.dispatch[CmdFile] = func(r *Receiver, cmd Command) {
		if len(cmd.Fields) < 1 {
			r.log.Warn("control: FILE missing path list")
			return
		}
		paths := splitPathList(cmd.Fields[0])
		loop := sound.Single
		if r.config.LoopSound() {
			loop = sound.Loop
		}
		r.handler.StopAllPlayers()
		r.handler.CreatePlayer(ConfigSoundfilePlayerName, paths, 0, loop, sound.Playing, 1.0)
		r.log.Info("control: replaced default playlist", "paths", paths)
	}

	r.dispatch[CmdPlay] = func(r *Receiver, cmd Command) {
		if len(cmd.Fields) < 1 {
			r.log.Warn("control: PLAY missing path list")
			return
		}
		pathList := cmd.Fields[0]
		paths := splitPathList(pathList)

		startChannel := 0
		loop := sound.Single
		name := pathList
		volume := float32(1.0)
		play := sound.Playing

		if len(cmd.Fields) > 1 {
			if v, err := parseInt(cmd.Fields[1]); err == nil {
				startChannel = v
			}
		}
		if len(cmd.Fields) > 2 {
			switch cmd.Fields[2] {
			case "loop":
				loop = sound.Loop
			case "single":
				loop = sound.Single
			default:
				r.log.Warn("control: PLAY loop argument must be loop or single", "got", cmd.Fields[2])
			}
		}
		if len(cmd.Fields) > 3 {
			name = cmd.Fields[3]
		}
		if len(cmd.Fields) > 4 {
			if v, err := parseFloat32(cmd.Fields[4]); err == nil {
				volume = v
			}
		}
		if len(cmd.Fields) > 5 {
			switch cmd.Fields[5] {
			case "play":
				play = sound.Playing
			case "pause":
				play = sound.Paused
			default:
				r.log.Warn("control: PLAY play argument must be play or pause", "got", cmd.Fields[5])
			}
		}

		r.handler.CreatePlayer(name, paths, startChannel, loop, play, volume)
		r.log.Info("control: starting player", "name", name, "startChannel", startChannel, "volume", volume)
	}

	r.dispatch[CmdPlayerControl] = func(r *Receiver, cmd Command) {
		if len(cmd.Fields) < 2 {
			r.log.Warn("control: PLAYER_CONTROL needs a name and a state")
			return
		}
		name, state := cmd.Fields[0], cmd.Fields[1]
		player, ok := r.handler.GetPlayer(name)
		if !ok {
			r.log.Warn("control: PLAYER_CONTROL unknown player", "name", name)
			return
		}
		switch state {
		case "play":
			player.SetPlayState(sound.Playing)
		case "pause":
			player.SetPlayState(sound.Paused)
		case "stop":
			player.SetPlayState(sound.Stopped)
		default:
			r.log.Warn("control: PLAYER_CONTROL state must be play, pause or stop", "got", state)
		}
	}

	r.dispatch[CmdPlayerChannel] = func(r *Receiver, cmd Command) {
		if len(cmd.Fields) < 2 {
			r.log.Warn("control: PLAYER_CHANNEL needs a name and a channel")
			return
		}
		channel, err := parseInt(cmd.Fields[1])
		if err != nil {
			r.log.Warn("control: bad PLAYER_CHANNEL channel", "error", err)
			return
		}
		if !r.handler.SetPlayerStartChannel(cmd.Fields[0], channel) {
			r.log.Warn("control: PLAYER_CHANNEL unknown player", "name", cmd.Fields[0])
		}
	}

	r.dispatch[CmdPlayerVolume] = func(r *Receiver, cmd Command) {
		if len(cmd.Fields) < 2 {
			r.log.Warn("control: PLAYER_VOLUME needs a name and a volume")
			return
		}
		volume, err := parseFloat32(cmd.Fields[1])
		if err != nil {
			r.log.Warn("control: bad PLAYER_VOLUME volume", "error", err)
			return
		}
		if !r.handler.SetPlayerVolume(cmd.Fields[0], volume) {
			r.log.Warn("control: PLAYER_VOLUME unknown player", "name", cmd.Fields[0])
		}
	}

	r.dispatch[CmdStopAllPlayers] = func(r *Receiver, cmd Command) {
		r.handler.StopAllPlayers()
		r.log.Info("control: stopped all players")
	}

	r.dispatch[CmdPauseAudio] = func(r *Receiver, cmd Command) {
		if len(cmd.Fields) < 1 {
			r.log.Warn("control: PAUSE_AUDIO needs a bool")
			return
		}
		v, err := parseBool(cmd.Fields[0])
		if err != nil {
			r.log.Warn("control: bad PAUSE_AUDIO value", "error", err)
			return
		}
		r.config.SetPauseAudioPlayback(v)
	}

	r.dispatch[CmdPauseConvolution] = func(r *Receiver, cmd Command) {
		if len(cmd.Fields) < 1 {
			r.log.Warn("control: PAUSE_CONVOLUTION needs a bool")
			return
		}
		v, err := parseBool(cmd.Fields[0])
		if err != nil {
			r.log.Warn("control: bad PAUSE_CONVOLUTION value", "error", err)
			return
		}
		r.config.SetPauseConvolution(v)
	}

	r.dispatch[CmdLoudness] = func(r *Receiver, cmd Command) {
		if len(cmd.Fields) < 1 {
			r.log.Warn("control: LOUDNESS needs a value")
			return
		}
		v, err := parseFloat32(cmd.Fields[0])
		if err != nil {
			r.log.Warn("control: bad LOUDNESS value", "error", err)
			return
		}
		r.config.SetLoudnessFactor(v)
	}

	r.dispatch[CmdMulti] = func(r *Receiver, cmd Command) {
		r.log.Warn("control: MULTI received outside packet envelope, ignoring")
	}
}

// handleLine parses and dispatches one command line. Panics from a handler
// are recovered and logged so one malformed message cannot kill the
// listener goroutine.
func (r *Receiver) handleLine(line string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("control: handler panicked, dropping message", "panic", rec)
		}
	}()

	cmd, err := parseCommand(line)
	if err != nil {
		r.log.Warn("control: dropping malformed message", "line", line, "error", err)
		return
	}
	r.dispatch[cmd.Kind](r, cmd)
}

// handlePacket applies the command(s) carried in one UDP packet. A MULTI
// envelope's sub-commands are applied in order within this single call; a
// packet without a MULTI header applies only its first line. Sub-commands
// are applied one at a time with no lock around the batch, so a goroutine
// reading the shared state concurrently can observe a partially-applied
// MULTI.
func (r *Receiver) handlePacket(payload string) {
	lines := strings.Split(strings.TrimRight(payload, "\n"), "\n")
	if len(lines) == 0 {
		return
	}

	first := strings.Fields(lines[0])
	if len(first) > 0 && first[0] == "MULTI" {
		count := len(lines) - 1
		if len(first) > 1 {
			if n, err := strconv.Atoi(first[1]); err == nil {
				count = n
			}
		}
		for i := 1; i <= count && i < len(lines); i++ {
			r.handleLine(lines[i])
		}
		return
	}

	r.handleLine(lines[0])
}

// Listen starts the four UDP listeners (DS, ER, LR, MISC) at ip starting
// from basePort and serves until ctx is cancelled.
func (r *Receiver) Listen(ctx context.Context, ip string, basePort int) error {
	names := []string{"DS", "ER", "LR", "MISC"}
	for i, name := range names {
		addr := net.JoinHostPort(ip, strconv.Itoa(basePort+i))
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			r.closeConns()
			return fmt.Errorf("control: listening on %s (%s): %w", addr, name, err)
		}
		r.conns = append(r.conns, conn)
		r.log.Info("control: listening", "group", name, "address", addr)

		r.wg.Add(1)
		go r.serve(ctx, conn, name)
	}
	return nil
}

func (r *Receiver) serve(ctx context.Context, conn net.PacketConn, group string) {
	defer r.wg.Done()
	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			// A closed socket (shutdown) or any other read failure both end
			// this goroutine; only log the latter.
			select {
			case <-ctx.Done():
			default:
				r.log.Warn("control: read error, stopping listener", "group", group, "error", err)
			}
			return
		}
		r.handlePacket(string(buf[:n]))
	}
}

func (r *Receiver) closeConns() {
	for _, c := range r.conns {
		_ = c.Close()
	}
	r.conns = nil
}

// Close shuts down every listening socket and waits for its goroutine to
// return.
func (r *Receiver) Close() error {
	r.closeConns()
	r.wg.Wait()
	return nil
}
