package dialogs

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const helpText = `[yellow]Radar Keys[-]

  [green]/[-]          Edit technologies filter
  [green]Enter[-]      Search (from the filter) / profile (from the list)
  [green]↑↓[-]         Select developer
  [green]h j k l[-]    Pan west / south / north / east
  [green]← →[-]        Pan west / east
  [green]+ -[-]        Zoom in / out
  [green]g[-]          Go to coordinates
  [green]p[-]          Developer profile
  [green]r[-]          Search history
  [green]?[-]          This help
  [green]q[-]          Quit

Searches use the center of the viewport. Developers
announced by the server while connected are appended
to the list.

Press [green]Escape[-] or [green]?[-] to close.`

func HelpDialog(onClose func()) *tview.TextView {
	tv := tview.NewTextView()
	tv.SetBorder(true).SetTitle(" Help ").SetTitleAlign(tview.AlignLeft)
	tv.SetDynamicColors(true)
	tv.SetBackgroundColor(tcell.ColorDefault)
	tv.SetText(helpText)
	tv.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape || event.Rune() == '?' {
			onClose()
			return nil
		}
		return event
	})
	return tv
}
