package applog

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FilePrefix names the files written by Init: <dir>/devradar-YYYY-MM-DD.log.
const FilePrefix = "devradar"

// DailyRotator is an io.Writer backed by one file per calendar day. Files
// beyond keep are deleted on rotation, oldest first.
type DailyRotator struct {
	mu     sync.Mutex
	dir    string
	prefix string
	keep   int
	day    string
	file   *os.File
	now    func() time.Time
}

func NewDailyRotator(dir, prefix string, keep int) *DailyRotator {
	return &DailyRotator{
		dir:    dir,
		prefix: prefix,
		keep:   keep,
		now:    time.Now,
	}
}

// SetNow replaces the clock. Tests only.
func (r *DailyRotator) SetNow(fn func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = fn
}

// FileName returns the path written to on the given day.
func (r *DailyRotator) FileName(day time.Time) string {
	return filepath.Join(r.dir, r.prefix+"-"+day.Format("2006-01-02")+".log")
}

func (r *DailyRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if day := now.Format("2006-01-02"); day != r.day || r.file == nil {
		if err := r.openDay(now); err != nil {
			return 0, err
		}
	}
	return r.file.Write(p)
}

func (r *DailyRotator) openDay(now time.Time) error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	f, err := os.OpenFile(r.FileName(now), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	r.file = f
	r.day = now.Format("2006-01-02")
	r.prune()
	return nil
}

func (r *DailyRotator) prune() {
	matches, err := filepath.Glob(filepath.Join(r.dir, r.prefix+"-*.log"))
	if err != nil || len(matches) <= r.keep {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-r.keep] {
		os.Remove(old)
	}
}

func (r *DailyRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

type InitConfig struct {
	LogDir   string
	LogLevel string
	KeepDays int // defaults to 7
}

// Init installs a file-backed slog logger as the process default and points
// the stdlib log package at the same file. The terminal belongs to the UI,
// so nothing is written to stderr. Callers must close the returned io.Closer.
func Init(cfg InitConfig) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	keep := cfg.KeepDays
	if keep <= 0 {
		keep = 7
	}
	rotator := NewDailyRotator(cfg.LogDir, FilePrefix, keep)
	handler := slog.NewTextHandler(rotator, &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	log.SetOutput(rotator)
	log.SetFlags(0)
	return logger, rotator, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a config string to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
