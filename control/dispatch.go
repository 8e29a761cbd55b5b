package control

// CommandKind identifies the action a decoded message requests. Dispatch is
// a function-pointer table indexed by CommandKind rather than the
// string-keyed switcher the reference control layer uses.
type CommandKind int

const (
	CmdFilterDSFull CommandKind = iota
	CmdFilterDSShort
	CmdFilterDSOrientation
	CmdFilterDSPosition
	CmdFilterDSSourceOrientation
	CmdFilterDSSourcePosition
	CmdFilterDSCustom

	CmdFilterERFull
	CmdFilterERShort
	CmdFilterEROrientation
	CmdFilterERPosition
	CmdFilterERSourceOrientation
	CmdFilterERSourcePosition
	CmdFilterERCustom

	CmdFilterLRFull
	CmdFilterLRShort
	CmdFilterLROrientation
	CmdFilterLRPosition
	CmdFilterLRSourceOrientation
	CmdFilterLRSourcePosition
	CmdFilterLRCustom

	CmdFilterSD

	CmdFile
	CmdPlay
	CmdPlayerControl
	CmdPlayerChannel
	CmdPlayerVolume
	CmdStopAllPlayers
	CmdPauseAudio
	CmdPauseConvolution
	CmdLoudness
	CmdMulti

	cmdKindCount
)

// sliceBounds gives the [lo, hi) row window a filter-address variant
// selects. Shared across DS/ER/LR.
var sliceBounds = map[CommandKind][2]int{
	CmdFilterDSFull: {0, 15}, CmdFilterDSShort: {0, 9},
	CmdFilterDSOrientation: {0, 3}, CmdFilterDSPosition: {3, 6},
	CmdFilterDSSourceOrientation: {6, 9}, CmdFilterDSSourcePosition: {9, 12},
	CmdFilterDSCustom: {12, 15},

	CmdFilterERFull: {0, 15}, CmdFilterERShort: {0, 9},
	CmdFilterEROrientation: {0, 3}, CmdFilterERPosition: {3, 6},
	CmdFilterERSourceOrientation: {6, 9}, CmdFilterERSourcePosition: {9, 12},
	CmdFilterERCustom: {12, 15},

	CmdFilterLRFull: {0, 15}, CmdFilterLRShort: {0, 9},
	CmdFilterLROrientation: {0, 3}, CmdFilterLRPosition: {3, 6},
	CmdFilterLRSourceOrientation: {6, 9}, CmdFilterLRSourcePosition: {9, 12},
	CmdFilterLRCustom: {12, 15},

	CmdFilterSD: {0, 9},
}

// addressKind maps a message's leading address token to its CommandKind.
var addressKind = map[string]CommandKind{
	"FILTER_DS":                    CmdFilterDSFull,
	"FILTER_DS_Short":              CmdFilterDSShort,
	"FILTER_DS_Orientation":        CmdFilterDSOrientation,
	"FILTER_DS_Position":           CmdFilterDSPosition,
	"FILTER_DS_sourceOrientation":  CmdFilterDSSourceOrientation,
	"FILTER_DS_sourcePosition":     CmdFilterDSSourcePosition,
	"FILTER_DS_Custom":             CmdFilterDSCustom,

	"FILTER_ER":                    CmdFilterERFull,
	"FILTER_ER_Short":              CmdFilterERShort,
	"FILTER_ER_Orientation":        CmdFilterEROrientation,
	"FILTER_ER_Position":           CmdFilterERPosition,
	"FILTER_ER_sourceOrientation":  CmdFilterERSourceOrientation,
	"FILTER_ER_sourcePosition":     CmdFilterERSourcePosition,
	"FILTER_ER_Custom":             CmdFilterERCustom,

	"FILTER_LR":                    CmdFilterLRFull,
	"FILTER_LR_Short":              CmdFilterLRShort,
	"FILTER_LR_Orientation":        CmdFilterLROrientation,
	"FILTER_LR_Position":           CmdFilterLRPosition,
	"FILTER_LR_sourceOrientation":  CmdFilterLRSourceOrientation,
	"FILTER_LR_sourcePosition":     CmdFilterLRSourcePosition,
	"FILTER_LR_Custom":             CmdFilterLRCustom,

	"FILTER_SD": CmdFilterSD,

	"FILE":              CmdFile,
	"PLAY":              CmdPlay,
	"PLAYER_CONTROL":    CmdPlayerControl,
	"PLAYER_CHANNEL":    CmdPlayerChannel,
	"PLAYER_VOLUME":     CmdPlayerVolume,
	"STOP_ALL_PLAYERS":  CmdStopAllPlayers,
	"PAUSE_AUDIO":       CmdPauseAudio,
	"PAUSE_CONVOLUTION": CmdPauseConvolution,
	"LOUDNESS":          CmdLoudness,
	"MULTI":             CmdMulti,
}

// Command is one decoded control message: its kind plus the whitespace
// fields that followed the address token.
type Command struct {
	Kind   CommandKind
	Fields []string
}
