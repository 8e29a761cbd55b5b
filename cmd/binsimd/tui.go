package main

import (
	"fmt"
	"time"

	"github.com/nsf/termbox-go"

	"binsim-go/engine"
)

const (
	colDef     = termbox.ColorDefault
	colWhite   = termbox.ColorWhite
	colRed     = termbox.ColorRed
	colGreen   = termbox.ColorGreen
	colYellow  = termbox.ColorYellow
	colBlue    = termbox.ColorBlue
	colCyan    = termbox.ColorCyan
	colMagenta = termbox.ColorMagenta
)

type TUIState struct {
	selectedParam int
	engine        *engine.Engine
	exit          bool

	playerBrowseMode bool
	playerBrowseIdx  int
}

var paramNames = []string{
	"Loudness Factor",
	"Loop Default Playlist",
	"Pause Audio Playback",
	"Pause Convolution",
	"Players",
}

func runTUI(eng *engine.Engine) {
	err := termbox.Init()
	if err != nil {
		//nolint:forbidigo // TUI initialization error requires direct output
		fmt.Printf("Failed to initialize TUI: %v\n", err)
		return
	}
	defer termbox.Close()

	termbox.SetInputMode(termbox.InputEsc)

	state := &TUIState{engine: eng}

	eventQueue := make(chan termbox.Event)

	go func() {
		for {
			eventQueue <- termbox.PollEvent()
		}
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	draw(state)

	for !state.exit {
		select {
		case ev := <-eventQueue:
			switch ev.Type {
			case termbox.EventKey:
				handleKey(ev, state)
			case termbox.EventResize:
				draw(state)
			}
		case <-ticker.C:
			draw(state)
		}
	}
}

func handleKey(ev termbox.Event, s *TUIState) {
	if s.playerBrowseMode {
		handlePlayerBrowseKey(ev, s)
		return
	}

	if ev.Key == termbox.KeyEsc || ev.Ch == 'q' {
		s.exit = true
		return
	}

	switch ev.Key {
	case termbox.KeyArrowUp:
		s.selectedParam--
		if s.selectedParam < 0 {
			s.selectedParam = len(paramNames) - 1
		}
	case termbox.KeyArrowDown:
		s.selectedParam++
		if s.selectedParam >= len(paramNames) {
			s.selectedParam = 0
		}
	}

	switch s.selectedParam {
	case 0: // Loudness Factor
		change := float32(0)
		if ev.Key == termbox.KeyArrowRight {
			change = 0.05
		}
		if ev.Key == termbox.KeyArrowLeft {
			change = -0.05
		}
		if change != 0 {
			s.engine.SetLoudnessFactor(s.engine.LoudnessFactor() + change)
		}
	case 1: // Loop Default Playlist
		if ev.Key == termbox.KeyArrowRight || ev.Key == termbox.KeyArrowLeft || ev.Key == termbox.KeyEnter {
			s.engine.SetLoopSound(!s.engine.LoopSound())
		}
	case 2: // Pause Audio Playback
		if ev.Key == termbox.KeyArrowRight || ev.Key == termbox.KeyArrowLeft || ev.Key == termbox.KeyEnter {
			s.engine.SetPauseAudioPlayback(!s.engine.PauseAudioPlayback())
		}
	case 3: // Pause Convolution
		if ev.Key == termbox.KeyArrowRight || ev.Key == termbox.KeyArrowLeft || ev.Key == termbox.KeyEnter {
			s.engine.SetPauseConvolution(!s.engine.PauseConvolution())
		}
	case 4: // Players - Enter browse mode
		if ev.Key == termbox.KeyArrowRight || ev.Key == termbox.KeyArrowLeft || ev.Key == termbox.KeyEnter {
			s.playerBrowseMode = true
			s.playerBrowseIdx = 0
		}
	}
}

func handlePlayerBrowseKey(ev termbox.Event, s *TUIState) {
	names := s.engine.PlayerNames()

	switch ev.Key {
	case termbox.KeyEsc:
		s.playerBrowseMode = false
	case termbox.KeyArrowUp:
		s.playerBrowseIdx--
		if s.playerBrowseIdx < 0 {
			s.playerBrowseIdx = len(names) - 1
		}
	case termbox.KeyArrowDown:
		s.playerBrowseIdx++
		if len(names) > 0 && s.playerBrowseIdx >= len(names) {
			s.playerBrowseIdx = 0
		}
	case termbox.KeyEnter, termbox.KeySpace:
		if s.playerBrowseIdx >= 0 && s.playerBrowseIdx < len(names) {
			name := names[s.playerBrowseIdx]
			playing, _, _, ok := s.engine.PlayerState(name)
			if ok {
				s.engine.SetPlayerPlaying(name, !playing)
			}
		}
	case termbox.KeyArrowRight:
		if s.playerBrowseIdx >= 0 && s.playerBrowseIdx < len(names) {
			name := names[s.playerBrowseIdx]
			_, _, volume, ok := s.engine.PlayerState(name)
			if ok {
				s.engine.SetPlayerVolume(name, volume+0.05)
			}
		}
	case termbox.KeyArrowLeft:
		if s.playerBrowseIdx >= 0 && s.playerBrowseIdx < len(names) {
			name := names[s.playerBrowseIdx]
			_, _, volume, ok := s.engine.PlayerState(name)
			if ok {
				s.engine.SetPlayerVolume(name, volume-0.05)
			}
		}
	}

	if ev.Ch == 's' {
		s.engine.StopAllPlayers()
	}
}

func draw(state *TUIState) {
	_ = termbox.Clear(colDef, colDef)

	if state.playerBrowseMode {
		drawPlayerBrowser(state)
		return
	}

	printTB(0, 0, colCyan, colDef, "binsim-go (binaural auralization) - Interactive Mode")
	printTB(0, 1, colDef, colDef, "Use Arrows to navigate/adjust. 'q' or Esc to quit.")
	printTB(0, 2, colDef, colDef, "----------------------------------------------------")

	vals := []string{
		fmt.Sprintf("%.2f", state.engine.LoudnessFactor()),
		fmt.Sprintf("%v", state.engine.LoopSound()),
		fmt.Sprintf("%v", state.engine.PauseAudioPlayback()),
		fmt.Sprintf("%v", state.engine.PauseConvolution()),
		fmt.Sprintf("%d registered", len(state.engine.PlayerNames())),
	}

	for i, name := range paramNames {
		col := colWhite
		bgColor := colDef
		prefix := "  "

		if i == state.selectedParam {
			col = colDef
			bgColor = colWhite
			prefix = "> "
		}

		line := fmt.Sprintf("%-24s %s", prefix+name, vals[i])
		printTB(0, 4+i, col, bgColor, line)

		if i == 4 && i == state.selectedParam {
			printTB(len(line)+2, 4+i, colYellow, colDef, "[Enter to browse]")
		}
	}

	meterY := 11
	printTB(0, meterY, colYellow, colDef, "Meters:")
	printTB(0, meterY+1, colRed, colDef, fmt.Sprintf("Clips:     %d", state.engine.ClipCount()))
	printTB(0, meterY+2, colRed, colDef, fmt.Sprintf("Underruns: %d", state.engine.UnderrunCount()))

	dsDirty, erDirty, lrDirty, sdDirty := state.engine.DirtyChannelCounts()
	printTB(0, meterY+4, colGreen, colDef, fmt.Sprintf("Dirty DS: %-4d ER: %-4d LR: %-4d SD: %-4d", dsDirty, erDirty, lrDirty, sdDirty))

	termbox.Flush()
}

func drawPlayerBrowser(state *TUIState) {
	w, h := termbox.Size()

	printTB(0, 0, colMagenta, colDef, "Players")
	printTB(0, 1, colDef, colDef, "Up/Down to browse, Enter/Space to play-pause, Left/Right to adjust volume")
	printTB(0, 2, colDef, colDef, "'s' to stop all, Esc to go back")
	printTB(0, 3, colDef, colDef, "─────────────────────────────────────────────────────────────────")

	names := state.engine.PlayerNames()
	listStartY := 5
	listHeight := h - listStartY - 2
	if listHeight < 5 {
		listHeight = 5
	}

	scrollOffset := 0
	if state.playerBrowseIdx >= listHeight {
		scrollOffset = state.playerBrowseIdx - listHeight + 1
	}

	for i := 0; i < listHeight && scrollOffset+i < len(names); i++ {
		idx := scrollOffset + i
		name := names[idx]

		col := colWhite
		bgColor := colDef
		prefix := "  "

		if idx == state.playerBrowseIdx {
			col = colDef
			bgColor = colWhite
			prefix = "> "
		}

		playing, looping, volume, _ := state.engine.PlayerState(name)
		playState := "stopped"
		if playing {
			playState = "playing"
		}
		loopState := "single"
		if looping {
			loopState = "loop"
		}

		line := fmt.Sprintf("%s%-25s (%s, %s, vol %.2f)", prefix, name, playState, loopState, volume)
		if len(line) > w-1 {
			line = line[:w-1]
		}

		printTB(0, listStartY+i, col, bgColor, line)
	}

	if len(names) == 0 {
		printTB(0, listStartY, colDef, colDef, "(no players registered)")
	}

	if len(names) > listHeight {
		scrollInfo := fmt.Sprintf("Showing %d-%d of %d",
			scrollOffset+1, min(scrollOffset+listHeight, len(names)), len(names))
		printTB(0, h-1, colYellow, colDef, scrollInfo)
	}

	termbox.Flush()
}

func printTB(x, y int, fg, bg termbox.Attribute, msg string) {
	for _, c := range msg {
		termbox.SetCell(x, y, c, fg, bg)
		x++
	}
}
