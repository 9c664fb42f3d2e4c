package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

const (
	BackendConsole = "console"
	BackendDesktop = "desktop"
)

// DesktopSender 通过系统通知弹出提示
type DesktopSender struct {
	alert  func(title, message string) error
	logger *slog.Logger
}

func NewDesktopSender(log *slog.Logger) *DesktopSender {
	if log == nil {
		log = slog.Default().With("component", "notify.desktop")
	}
	return &DesktopSender{
		alert: func(title, message string) error {
			return beeep.Alert(title, message, "")
		},
		logger: log,
	}
}

func (s *DesktopSender) Send(payload Payload) {
	if err := s.alert(payload.Title, payload.Content); err != nil {
		s.logger.Error("Failed to show desktop alert", "error", err, "title", payload.Title)
	}
}
