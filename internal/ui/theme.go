package ui

import (
	"github.com/gdamore/tcell/v2"

	"github.com/zsprackett/devradar/internal/radar"
)

// Theme colors for the TUI.
var (
	ColorBackground      = tcell.NewHexColor(0x1e1e2e)
	ColorBackgroundPanel = tcell.NewHexColor(0x181825)
	ColorBackgroundElem  = tcell.NewHexColor(0x313244)
	ColorPrimary         = tcell.NewHexColor(0x89b4fa) // blue
	ColorAccent          = tcell.NewHexColor(0xcba6f7) // mauve
	ColorText            = tcell.NewHexColor(0xcdd6f4)
	ColorTextMuted       = tcell.NewHexColor(0x6c7086)
	ColorSuccess         = tcell.NewHexColor(0xa6e3a1) // green
	ColorWarning         = tcell.NewHexColor(0xf9e2af) // yellow
	ColorError           = tcell.NewHexColor(0xf38ba8) // red
	ColorBorder          = tcell.NewHexColor(0x45475a)
	ColorSelected        = tcell.NewHexColor(0x89b4fa)
	ColorSelectedText    = tcell.NewHexColor(0x1e1e2e)
)

const (
	IconConnected    = "●"
	IconConnecting   = "◐"
	IconDisconnected = "○"
)

// ChannelIcon maps a channel state name to its header glyph.
func ChannelIcon(state string) (string, tcell.Color) {
	switch state {
	case "connected":
		return IconConnected, ColorSuccess
	case "connecting":
		return IconConnecting, ColorWarning
	default:
		return IconDisconnected, ColorTextMuted
	}
}

// ConditionText returns the header message and color tag for cond.
func ConditionText(cond radar.Condition) (string, string) {
	switch cond {
	case radar.ConditionOK:
		return "ok", "green"
	case radar.ConditionPermissionDenied:
		return "location permission denied", "red"
	case radar.ConditionLocationUnavailable:
		return "location unavailable", "red"
	case radar.ConditionSearchFailed:
		return "search failed", "red"
	case radar.ConditionChannelFailed:
		return "live updates unavailable", "yellow"
	default:
		return "locating…", "gray"
	}
}
