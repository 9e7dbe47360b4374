package dialogs

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/zsprackett/devradar/internal/db"
	"github.com/zsprackett/devradar/internal/developer"
	"github.com/zsprackett/devradar/internal/geo"
)

// ProfileText renders a developer card. origin and seen are optional.
func ProfileText(d developer.Developer, origin *geo.Coordinates, seen *db.SeenDeveloper) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n  [::b]%s[::-]", tview.Escape(d.DisplayName()))
	if d.GithubUsername != "" {
		fmt.Fprintf(&sb, "  [gray]@%s[-]", tview.Escape(d.GithubUsername))
	}
	sb.WriteString("\n\n")
	if d.Bio != "" {
		fmt.Fprintf(&sb, "  %s\n\n", tview.Escape(d.Bio))
	}
	fmt.Fprintf(&sb, "  [yellow]Techs[-]     %s\n", tview.Escape(d.TechsLabel()))
	if c, ok := d.Coordinates(); ok {
		fmt.Fprintf(&sb, "  [yellow]Location[-]  %s", c)
		if origin != nil {
			fmt.Fprintf(&sb, " (%s km away)", humanize.FtoaWithDigits(geo.DistanceKm(*origin, c), 1))
		}
		sb.WriteString("\n")
	}
	if url := d.ProfileURL(); url != "" {
		fmt.Fprintf(&sb, "  [yellow]GitHub[-]    %s\n", url)
	}
	if d.AvatarURL != "" {
		fmt.Fprintf(&sb, "  [yellow]Avatar[-]    %s\n", d.AvatarURL)
	}
	if seen != nil {
		fmt.Fprintf(&sb, "\n  [gray]first seen %s via %s[-]\n", humanize.Time(seen.FirstSeen), seen.Source)
	}
	return sb.String()
}

func ProfileDialog(d developer.Developer, origin *geo.Coordinates, seen *db.SeenDeveloper, onClose func()) *tview.TextView {
	tv := tview.NewTextView()
	tv.SetBorder(true).SetTitle(" Profile ").SetTitleAlign(tview.AlignLeft)
	tv.SetDynamicColors(true)
	tv.SetWordWrap(true)
	tv.SetBackgroundColor(tcell.ColorDefault)
	tv.SetText(ProfileText(d, origin, seen))
	tv.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape || event.Key() == tcell.KeyEnter || event.Rune() == 'q' || event.Rune() == 'p' {
			onClose()
			return nil
		}
		return event
	})
	return tv
}
