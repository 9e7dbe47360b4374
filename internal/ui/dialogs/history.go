package dialogs

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/zsprackett/devradar/internal/db"
)

// HistoryLine renders one past search.
func HistoryLine(s db.Search) string {
	techs := s.Techs
	if techs == "" {
		techs = "(no filter)"
	}
	return fmt.Sprintf("%-24s %8.4f, %9.4f  %s %s",
		techs, s.Latitude, s.Longitude,
		humanize.Comma(int64(s.ResultCount)), plural(s.ResultCount, "result", "results"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// HistoryDialog lists recent searches; choosing one repeats it.
func HistoryDialog(searches []db.Search, onSelect func(db.Search), onClose func()) *tview.List {
	list := tview.NewList()
	list.SetBorder(true).SetTitle(" Recent searches ").SetTitleAlign(tview.AlignLeft)
	list.SetBackgroundColor(tcell.ColorDefault)
	list.ShowSecondaryText(true)

	if len(searches) == 0 {
		list.AddItem("No searches yet", "", 0, onClose)
	}
	for _, s := range searches {
		list.AddItem(HistoryLine(s), "  "+humanize.Time(s.Ts), 0, func() {
			onSelect(s)
		})
	}
	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape || event.Rune() == 'q' {
			onClose()
			return nil
		}
		return event
	})
	return list
}
