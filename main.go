package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zsprackett/devradar/internal/applog"
	"github.com/zsprackett/devradar/internal/channel"
	"github.com/zsprackett/devradar/internal/config"
	"github.com/zsprackett/devradar/internal/db"
	"github.com/zsprackett/devradar/internal/developer"
	"github.com/zsprackett/devradar/internal/geo"
	"github.com/zsprackett/devradar/internal/location"
	"github.com/zsprackett/devradar/internal/mockserver"
	"github.com/zsprackett/devradar/internal/notify"
	"github.com/zsprackett/devradar/internal/radar"
	"github.com/zsprackett/devradar/internal/searchapi"
	"github.com/zsprackett/devradar/internal/ui"
	"github.com/zsprackett/devradar/internal/webserver"
)

const usage = `usage: devradar [command]

  (none)               start the radar TUI
  search <techs>       one-shot search around the current position
  watch <techs>        search, then print developers as they arrive
  history [developers] list recent searches or stored developers
  mock-server [addr]   run a local search + socket.io backend (default :3333)
  token <subject>      issue a dashboard access token
`

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func openDB() (*db.DB, error) {
	dbPath := config.DBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, err
	}
	store, err := db.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func loadConfig() config.Config {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load config: %v\n", err)
		cfg = config.Defaults()
	}
	return cfg
}

func initLogger(cfg config.Config) (*slog.Logger, io.Closer) {
	logger, closer, err := applog.Init(applog.InitConfig{
		LogDir:   cfg.LogDir,
		LogLevel: cfg.LogLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not init log file: %v\n", err)
		return slog.Default(), io.NopCloser(nil)
	}
	return logger, closer
}

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "":
		runTUI()
	case "search", "watch":
		if len(args) < 2 {
			fatalf("%s needs a technologies filter, e.g. devradar %s \"ReactJS, Node.js\"", cmd, cmd)
		}
		runHeadless(cmd == "watch", strings.Join(args[1:], " "))
	case "history":
		runHistory(len(args) > 1 && args[1] == "developers")
	case "mock-server":
		addr := ":3333"
		if len(args) > 1 {
			addr = args[1]
		}
		runMockServer(addr)
	case "token":
		if len(args) < 2 {
			fatalf("token needs a subject")
		}
		runToken(args[1])
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func runTUI() {
	cfg := loadConfig()
	if err := config.EnsureJWTSecret(config.DefaultPath(), &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not persist JWT secret: %v\n", err)
	}

	logger, logCloser := initLogger(cfg)
	defer logCloser.Close()

	store, err := openDB()
	if err != nil {
		fatalf("could not open database: %v", err)
	}
	defer store.Close()

	app := ui.NewApp(store, cfg, logger)
	if err := app.Run(); err != nil {
		fatalf("%v", err)
	}
}

// printer reports live arrivals on stdout.
type printer struct {
	origin func() *geo.Coordinates
}

func (p printer) NotifyDeveloper(d developer.Developer) {
	fmt.Printf("%s  + %s\n", time.Now().Format("15:04:05"), formatDeveloper(d, p.origin()))
}

type notifiers []radar.Notifier

func (ns notifiers) NotifyDeveloper(d developer.Developer) {
	for _, n := range ns {
		n.NotifyDeveloper(d)
	}
}

func formatDeveloper(d developer.Developer, origin *geo.Coordinates) string {
	dist := "       -"
	if c, ok := d.Coordinates(); ok && origin != nil {
		dist = fmt.Sprintf("%5s km", humanize.FtoaWithDigits(geo.DistanceKm(*origin, c), 1))
	}
	login := ""
	if d.GithubUsername != "" {
		login = "@" + d.GithubUsername
	}
	return fmt.Sprintf("%-24s %-18s %s  %s", d.DisplayName(), login, dist, d.TechsLabel())
}

func runHeadless(watch bool, techs string) {
	cfg := loadConfig()
	logger, logCloser := initLogger(cfg)
	defer logCloser.Close()

	store, err := openDB()
	if err != nil {
		fatalf("could not open database: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var coord *radar.Coordinator
	origin := func() *geo.Coordinates {
		s := coord.Snapshot()
		if s.Region == nil {
			return nil
		}
		c := s.Region.Center()
		return &c
	}

	ch := channel.New(cfg.SocketURL(), logger)
	if watch {
		ch.OnStateChange(func(s channel.State) {
			fmt.Fprintf(os.Stderr, "live: %s\n", s)
		})
	}
	coord = radar.New(radar.Deps{
		Locator:  location.FromConfig(cfg.Location),
		Searcher: searchapi.New(cfg.API.BaseURL, cfg.Timeout()),
		Channel:  ch,
		History:  store,
		Notifier: notifiers{
			printer{origin: origin},
			notify.New(notify.Config{
				Enabled: cfg.Notifications.Enabled,
				Webhook: cfg.Notifications.Webhook,
				NtfyURL: cfg.Notifications.NtfyURL,
				Desktop: cfg.Notifications.Desktop,
			}, logger),
		},
	}, logger)
	defer coord.Close()

	cond, err := coord.Initialize(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	if cond == radar.ConditionPermissionDenied {
		fatalf("location permission denied (set location.mode in %s)", config.DefaultPath())
	}

	coord.SetTechs(techs)
	if err := coord.Search(ctx); err != nil {
		// Results are kept when only the live subscription failed.
		if coord.Snapshot().Condition != radar.ConditionChannelFailed {
			fatalf("%v", err)
		}
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	devs := coord.Developers()
	fmt.Printf("%d %s near %s\n", len(devs), plural(len(devs), "developer", "developers"), origin())
	for _, d := range devs {
		fmt.Println("  " + formatDeveloper(d, origin()))
	}
	if !watch {
		return
	}

	fmt.Fprintln(os.Stderr, "watching for new developers, ctrl-c to stop")
	<-ctx.Done()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func runHistory(developers bool) {
	store, err := openDB()
	if err != nil {
		fatalf("could not open database: %v", err)
	}
	defer store.Close()

	if developers {
		devs, err := store.LoadDevelopers(50)
		if err != nil {
			fatalf("%v", err)
		}
		for _, d := range devs {
			fmt.Printf("%-14s %-6s %s\n", humanize.Time(d.LastSeen), d.Source, formatDeveloper(d.Developer, nil))
		}
		return
	}

	searches, err := store.RecentSearches(20)
	if err != nil {
		fatalf("%v", err)
	}
	if len(searches) == 0 {
		fmt.Println("no searches yet")
		return
	}
	for _, s := range searches {
		fmt.Printf("%-14s %-24s %9.4f %9.4f  %s\n",
			humanize.Time(s.Ts), s.Techs, s.Latitude, s.Longitude,
			humanize.Comma(int64(s.ResultCount)))
	}
}

func runMockServer(addr string) {
	cfg := loadConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: applog.ParseLevel(cfg.LogLevel)}))

	center := geo.Coordinates{Latitude: -23.5505, Longitude: -46.6333}
	if cfg.Location.Mode == "static" {
		center = geo.Coordinates{Latitude: cfg.Location.Latitude, Longitude: cfg.Location.Longitude}
	}
	srv := mockserver.New(mockserver.SeedAround(center), mockserver.Config{}, logger)

	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.DropAll()
		httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("mock server listening", "addr", addr, "center", center.String())
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatalf("%v", err)
	}
}

func runToken(subject string) {
	cfg := loadConfig()
	if cfg.Dashboard.JWTSecret == "" {
		fatalf("dashboard.jwtSecret is not set in %s", config.DefaultPath())
	}
	tok, err := webserver.IssueAccessToken(cfg.Dashboard.JWTSecret, subject, cfg.TokenTTL())
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Println(tok)
}
