package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/zsprackett/devradar/internal/channel"
	"github.com/zsprackett/devradar/internal/config"
	"github.com/zsprackett/devradar/internal/db"
	"github.com/zsprackett/devradar/internal/developer"
	"github.com/zsprackett/devradar/internal/events"
	"github.com/zsprackett/devradar/internal/geo"
	"github.com/zsprackett/devradar/internal/location"
	"github.com/zsprackett/devradar/internal/notify"
	"github.com/zsprackett/devradar/internal/radar"
	"github.com/zsprackett/devradar/internal/retention"
	"github.com/zsprackett/devradar/internal/searchapi"
	"github.com/zsprackett/devradar/internal/ui/dialogs"
	"github.com/zsprackett/devradar/internal/webserver"
)

type App struct {
	tapp   *tview.Application
	pages  *tview.Pages
	home   *Home
	store  *db.DB
	coord  *radar.Coordinator
	web    *webserver.Server
	pruner *retention.Pruner
	cfg    config.Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewApp(store *db.DB, cfg config.Config, logger *slog.Logger) *App {
	a := &App{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.tapp = tview.NewApplication()
	a.pages = tview.NewPages()
	a.home = NewHome(a.tapp)

	notifier := notify.New(notify.Config{
		Enabled: cfg.Notifications.Enabled,
		Webhook: cfg.Notifications.Webhook,
		NtfyURL: cfg.Notifications.NtfyURL,
		Desktop: cfg.Notifications.Desktop,
	}, logger)

	// The dashboard reads state through the App so it can be built before
	// the coordinator it broadcasts for.
	a.web = webserver.New(a, store, webserver.Config{
		Enabled:   cfg.Dashboard.Enabled,
		Port:      cfg.Dashboard.Port,
		Host:      cfg.Dashboard.Host,
		JWTSecret: cfg.Dashboard.JWTSecret,
	}, logger)

	a.pruner = retention.New(store, cfg.HistoryDays, logger)

	ch := channel.New(cfg.SocketURL(), logger)
	ch.OnStateChange(func(s channel.State) {
		a.web.Broadcast(events.Event{Type: events.TypeChannelState, Detail: s.String()})
		a.tapp.QueueUpdateDraw(a.refreshHome)
	})

	a.coord = radar.New(radar.Deps{
		Locator:     location.FromConfig(cfg.Location),
		Searcher:    searchapi.New(cfg.API.BaseURL, cfg.Timeout()),
		Channel:     ch,
		History:     store,
		Notifier:    notifier,
		Broadcaster: a.web,
		OnUpdate: func() {
			a.tapp.QueueUpdateDraw(a.refreshHome)
		},
	}, logger)

	a.pages.AddPage("home", a.home, true, true)
	a.tapp.SetRoot(a.pages, true).EnableMouse(false)
	a.tapp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if a.tapp.GetFocus() == a.home.techs {
			return event
		}
		if event.Rune() == '?' && !a.pages.HasPage("help") {
			a.showHelp()
			return nil
		}
		return event
	})

	a.home.SetCallbacks(
		a.onSearch,
		a.onPan,
		a.onZoom,
		a.onProfile,
		a.onHistory,
		a.onGoto,
		func() { a.tapp.Stop() },
	)
	return a
}

// Snapshot implements webserver.StateSource.
func (a *App) Snapshot() radar.State {
	return a.coord.Snapshot()
}

func (a *App) Run() error {
	if err := a.web.Start(); err != nil {
		a.logger.Warn("dashboard disabled", "err", err)
	}

	techs := a.cfg.DefaultTechs
	if last, err := a.store.GetMeta(db.MetaLastTechs); err == nil && last != "" {
		techs = last
	}
	a.home.SetTechs(techs)
	a.coord.SetTechs(techs)
	a.refreshHome()

	a.pruner.Start()
	defer a.pruner.Stop()

	go a.initialize()

	err := a.tapp.Run()
	a.cancel()
	if cerr := a.coord.Close(); cerr != nil {
		a.logger.Warn("close channel", "err", cerr)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a.web.Shutdown(shutdownCtx)
	return err
}

func (a *App) initialize() {
	cond, err := a.coord.Initialize(a.ctx)
	switch {
	case err != nil:
		a.logger.Warn("locate failed", "err", err)
	case cond == radar.ConditionPermissionDenied:
		a.tapp.QueueUpdateDraw(func() {
			a.showError("Location permission denied.\n\nSearching is disabled until a position is chosen (press g).")
		})
	}
}

func (a *App) refreshHome() {
	a.home.Update(a.coord.Snapshot())
}

func (a *App) showDialog(name string, widget tview.Primitive, width, height int) {
	modal := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexColumn).
			AddItem(nil, 0, 1, false).
			AddItem(widget, width, 0, true).
			AddItem(nil, 0, 1, false), height, 0, true).
		AddItem(nil, 0, 1, false)
	a.pages.AddPage(name, modal, true, true)
	a.tapp.SetFocus(widget)
}

func (a *App) closeDialog(name string) {
	a.pages.RemovePage(name)
	a.tapp.SetFocus(a.home.table)
}

func (a *App) showHelp() {
	a.showDialog("help", dialogs.HelpDialog(func() { a.closeDialog("help") }), 60, 24)
}

func (a *App) showError(msg string) {
	modal := tview.NewModal().
		SetText(msg).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(_ int, _ string) {
			a.closeDialog("error")
		})
	a.pages.AddPage("error", modal, true, true)
}

// onSearch runs off the UI goroutine; results arrive through OnUpdate.
func (a *App) onSearch(techs string) {
	a.coord.SetTechs(techs)
	go func() {
		err := a.coord.Search(a.ctx)
		switch {
		case err == nil, errors.Is(err, radar.ErrSuperseded), errors.Is(err, context.Canceled):
		case errors.Is(err, radar.ErrNoLocation):
			a.tapp.QueueUpdateDraw(func() {
				a.showError("No location yet.\n\nWait for the position fix or press g to choose one.")
			})
		default:
			a.logger.Warn("search", "err", err)
		}
	}()
}

func (a *App) onPan(latFrac, lonFrac float64) {
	s := a.coord.Snapshot()
	if s.Region == nil {
		return
	}
	a.coord.OnViewportChanged(s.Region.Pan(latFrac, lonFrac))
}

func (a *App) onZoom(factor float64) {
	s := a.coord.Snapshot()
	if s.Region == nil {
		return
	}
	a.coord.OnViewportChanged(s.Region.Zoom(factor))
}

func (a *App) onGoto() {
	current := ""
	if s := a.coord.Snapshot(); s.Region != nil {
		c := s.Region.Center()
		current = fmt.Sprintf("%.5f, %.5f", c.Latitude, c.Longitude)
	}
	form := dialogs.GotoDialog(current, func(c geo.Coordinates) {
		a.closeDialog("goto")
		region := geo.RegionAround(c)
		if s := a.coord.Snapshot(); s.Region != nil {
			region.LatitudeDelta = s.Region.LatitudeDelta
			region.LongitudeDelta = s.Region.LongitudeDelta
		}
		a.coord.OnViewportChanged(region)
	}, func() { a.closeDialog("goto") })
	a.showDialog("goto", form, 56, 7)
}

func (a *App) onProfile(d developer.Developer) {
	var seen *db.SeenDeveloper
	if d.ID != "" {
		var err error
		if seen, err = a.store.GetDeveloper(d.ID); err != nil {
			a.logger.Warn("load developer", "id", d.ID, "err", err)
		}
	}
	var origin *geo.Coordinates
	if s := a.coord.Snapshot(); s.Region != nil {
		c := s.Region.Center()
		origin = &c
	}
	tv := dialogs.ProfileDialog(d, origin, seen, func() { a.closeDialog("profile") })
	a.showDialog("profile", tv, 70, 18)
}

func (a *App) onHistory() {
	searches, err := a.store.RecentSearches(20)
	if err != nil {
		a.showError(fmt.Sprintf("Load history failed: %v", err))
		return
	}
	list := dialogs.HistoryDialog(searches, func(s db.Search) {
		a.closeDialog("history")
		region := geo.RegionAround(geo.Coordinates{Latitude: s.Latitude, Longitude: s.Longitude})
		a.coord.OnViewportChanged(region)
		a.home.SetTechs(s.Techs)
		a.onSearch(s.Techs)
	}, func() { a.closeDialog("history") })
	a.showDialog("history", list, 72, 22)
}
