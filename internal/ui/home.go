package ui

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/zsprackett/devradar/internal/developer"
	"github.com/zsprackett/devradar/internal/geo"
	"github.com/zsprackett/devradar/internal/radar"
	"github.com/zsprackett/devradar/internal/ui/dialogs"
)

// panStep is the fraction of the viewport moved per pan key.
const panStep = 0.5

// Home is the main screen: filter input, developer list and detail pane.
type Home struct {
	*tview.Flex
	app    *tview.Application
	header *tview.TextView
	techs  *tview.InputField
	table  *tview.Table
	detail *tview.TextView
	footer *tview.TextView

	state    radar.State
	selected int

	onSearch  func(techs string)
	onPan     func(latFrac, lonFrac float64)
	onZoom    func(factor float64)
	onProfile func(d developer.Developer)
	onHistory func()
	onGoto    func()
	onQuit    func()
}

func NewHome(app *tview.Application) *Home {
	h := &Home{app: app}

	h.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	h.header.SetBackgroundColor(ColorBackgroundPanel)

	h.techs = tview.NewInputField().
		SetLabel(" Techs: ").
		SetPlaceholder("ReactJS, Node.js").
		SetFieldBackgroundColor(ColorBackgroundElem).
		SetFieldTextColor(ColorText).
		SetLabelColor(ColorPrimary)
	h.techs.SetBackgroundColor(ColorBackgroundPanel)

	h.table = tview.NewTable().
		SetSelectable(true, false).
		SetSelectedStyle(tcell.StyleDefault.
			Background(ColorSelected).
			Foreground(ColorSelectedText))
	h.table.SetBackgroundColor(ColorBackground)

	h.detail = tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true)
	h.detail.SetBackgroundColor(ColorBackground)

	h.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	h.footer.SetBackgroundColor(ColorBackgroundPanel)
	h.footer.SetText(
		"[green]/[-] techs  [green]Enter[-] search  [green]hjkl/←→[-] pan  [green]+/-[-] zoom  " +
			"[green]g[-] go to  [green]p[-] profile  [green]r[-] history  [green]?[-] help  [green]q[-] quit")

	separator := tview.NewBox().SetBackgroundColor(ColorBorder)

	content := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(h.table, 0, 45, true).
		AddItem(separator, 1, 0, false).
		AddItem(h.detail, 0, 55, false)

	h.Flex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(h.header, 1, 0, false).
		AddItem(h.techs, 1, 0, false).
		AddItem(content, 0, 1, true).
		AddItem(h.footer, 1, 0, false)

	h.table.SetSelectionChangedFunc(func(row, col int) {
		h.selected = row
		h.updateDetail()
	})
	h.setupInput()
	return h
}

func (h *Home) SetCallbacks(
	onSearch func(string),
	onPan func(float64, float64),
	onZoom func(float64),
	onProfile func(developer.Developer),
	onHistory func(),
	onGoto func(),
	onQuit func(),
) {
	h.onSearch = onSearch
	h.onPan = onPan
	h.onZoom = onZoom
	h.onProfile = onProfile
	h.onHistory = onHistory
	h.onGoto = onGoto
	h.onQuit = onQuit
}

func (h *Home) SetTechs(techs string) {
	h.techs.SetText(techs)
}

// Update redraws from a coordinator snapshot. Must run on the UI goroutine.
func (h *Home) Update(s radar.State) {
	h.state = s
	h.renderTable()
	h.updateHeader()
	h.updateDetail()
}

func (h *Home) origin() *geo.Coordinates {
	if h.state.Region == nil {
		return nil
	}
	c := h.state.Region.Center()
	return &c
}

func (h *Home) renderTable() {
	h.table.Clear()
	origin := h.origin()
	for i, d := range h.state.Developers {
		dist := ""
		if c, ok := d.Coordinates(); ok && origin != nil {
			dist = humanize.FtoaWithDigits(geo.DistanceKm(*origin, c), 1) + " km"
		}
		name := d.DisplayName()
		if len(name) > 22 {
			name = name[:20] + ".."
		}
		text := fmt.Sprintf(" %-22s %8s  %s", name, dist, d.TechsLabel())
		h.table.SetCell(i, 0, tview.NewTableCell(tview.Escape(text)).
			SetTextColor(ColorText).
			SetBackgroundColor(ColorBackground).
			SetExpansion(1).
			SetSelectable(true))
	}

	if h.selected >= len(h.state.Developers) {
		h.selected = len(h.state.Developers) - 1
	}
	if h.selected < 0 {
		h.selected = 0
	}
	if len(h.state.Developers) > 0 {
		h.table.Select(h.selected, 0)
	}
}

func (h *Home) updateHeader() {
	s := h.state
	where := "[gray]no location[-]"
	if s.Region != nil {
		where = fmt.Sprintf("%s  ±%.3f°", s.Region.Center(), s.Region.LatitudeDelta/2)
	}
	icon, _ := ChannelIcon(s.ChannelState)
	msg, color := ConditionText(s.Condition)
	busy := ""
	if s.Searching {
		busy = "  [yellow]searching…[-]"
	}
	h.header.SetText(fmt.Sprintf(
		"[blue]DEVRADAR[-]  %s   %s %s   [%s]%s[-]   %d developers%s",
		where, icon, s.ChannelState, color, msg, len(s.Developers), busy))
}

func (h *Home) selectedDeveloper() (developer.Developer, bool) {
	if h.selected < 0 || h.selected >= len(h.state.Developers) {
		return developer.Developer{}, false
	}
	return h.state.Developers[h.selected], true
}

func (h *Home) updateDetail() {
	d, ok := h.selectedDeveloper()
	if !ok {
		switch h.state.Condition {
		case radar.ConditionPermissionDenied:
			h.detail.SetText("\n  [red]Location permission was denied.[-]\n\n" +
				"  Set location.mode to \"static\" or \"ip\" in the config,\n" +
				"  or press [green]g[-] to pick coordinates.")
		default:
			if h.state.Err != "" {
				h.detail.SetText("\n  [red]" + tview.Escape(h.state.Err) + "[-]")
			} else {
				h.detail.SetText("\n  [gray]No developers. Type technologies and press Enter.[-]")
			}
		}
		return
	}
	h.detail.SetText(dialogs.ProfileText(d, h.origin(), nil))
}

func (h *Home) focusTechs() {
	h.app.SetFocus(h.techs)
}

func (h *Home) setupInput() {
	h.techs.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && h.onSearch != nil {
			h.onSearch(h.techs.GetText())
		}
		h.app.SetFocus(h.table)
	})

	h.table.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyLeft:
			h.pan(0, -panStep)
			return nil
		case tcell.KeyRight:
			h.pan(0, panStep)
			return nil
		case tcell.KeyEnter:
			h.profile()
			return nil
		}

		switch event.Rune() {
		case '/':
			h.focusTechs()
			return nil
		case 'h':
			h.pan(0, -panStep)
			return nil
		case 'l':
			h.pan(0, panStep)
			return nil
		case 'k':
			h.pan(panStep, 0)
			return nil
		case 'j':
			h.pan(-panStep, 0)
			return nil
		case '+', '=':
			if h.onZoom != nil {
				h.onZoom(0.5)
			}
			return nil
		case '-':
			if h.onZoom != nil {
				h.onZoom(2)
			}
			return nil
		case 'p':
			h.profile()
			return nil
		case 'r':
			if h.onHistory != nil {
				h.onHistory()
			}
			return nil
		case 'g':
			if h.onGoto != nil {
				h.onGoto()
			}
			return nil
		case 'q':
			if h.onQuit != nil {
				h.onQuit()
			}
			return nil
		}
		return event
	})
}

func (h *Home) pan(latFrac, lonFrac float64) {
	if h.onPan != nil {
		h.onPan(latFrac, lonFrac)
	}
}

func (h *Home) profile() {
	if d, ok := h.selectedDeveloper(); ok && h.onProfile != nil {
		h.onProfile(d)
	}
}
