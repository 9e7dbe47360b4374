package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/zsprackett/devradar/internal/developer"
)

type Config struct {
	Enabled bool   `json:"enabled"`
	Webhook string `json:"webhook"`
	NtfyURL string `json:"ntfy"`
	Desktop bool   `json:"desktop"` // macOS notification center
}

// Notifier announces developers that arrive over the live channel.
type Notifier struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// NotifyDeveloper fans out to every configured target. Failures are logged
// and otherwise ignored.
func (n *Notifier) NotifyDeveloper(d developer.Developer) {
	if !n.cfg.Enabled {
		return
	}
	if n.cfg.Desktop && runtime.GOOS == "darwin" {
		n.sendDesktop(fmt.Sprintf("%s (%s) is nearby", d.DisplayName(), d.TechsLabel()))
	}
	if n.cfg.Webhook != "" {
		n.sendWebhook(d)
	}
	if n.cfg.NtfyURL != "" {
		n.sendNtfy(d)
	}
}

func (n *Notifier) sendDesktop(msg string) {
	script := fmt.Sprintf(`display notification %q with title "devradar"`, msg)
	if err := exec.Command("osascript", "-e", script).Run(); err != nil {
		n.logger.Warn("notify: desktop notification failed", "err", err)
	}
}

type webhookPayload struct {
	Event     string              `json:"event"`
	Developer developer.Developer `json:"developer"`
	Timestamp string              `json:"timestamp"`
}

func (n *Notifier) sendWebhook(d developer.Developer) {
	n.post("webhook", n.cfg.Webhook, webhookPayload{
		Event:     "new-developer",
		Developer: d,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

type ntfyPayload struct {
	Topic    string   `json:"topic,omitempty"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority int      `json:"priority"`
	Tags     []string `json:"tags"`
	Click    string   `json:"click,omitempty"`
}

func (n *Notifier) sendNtfy(d developer.Developer) {
	n.post("ntfy", n.cfg.NtfyURL, ntfyPayload{
		Title:    fmt.Sprintf("%s is nearby", d.DisplayName()),
		Message:  d.TechsLabel(),
		Priority: 3,
		Tags:     []string{"technologist"},
		Click:    d.ProfileURL(),
	})
}

func (n *Notifier) post(kind, url string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("notify: encode payload", "target", kind, "err", err)
		return
	}
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		n.logger.Warn("notify: "+kind+" failed", "err", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn("notify: "+kind+" rejected", "status", resp.StatusCode)
	}
}
