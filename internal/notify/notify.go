// Package notify предоставляет системные уведомления о результате прогона.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

const appName = "speechreply"

// maxMessage - длина текста, после которой он обрезается.
const maxMessage = 100

// Notifier отправляет системные уведомления.
type Notifier struct {
	enabled bool
	send    func(title, message, icon string) error
}

// New создаёт новый Notifier.
func New(enabled bool) *Notifier {
	return &Notifier{enabled: enabled, send: beeep.Notify}
}

// Enabled сообщает, включены ли уведомления.
func (n *Notifier) Enabled() bool {
	return n != nil && n.enabled
}

// Response показывает ответ модели.
func (n *Notifier) Response(text string) {
	if text == "" {
		text = "(пустой ответ)"
	}
	n.notify("ответ готов", truncate(text))
}

// Failed показывает стадию, на которой прогон упал.
func (n *Notifier) Failed(stage string, err error) {
	n.notify("ошибка: "+stage, truncate(err.Error()))
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) > maxMessage {
		return string(r[:maxMessage]) + "..."
	}
	return s
}

func (n *Notifier) notify(title, message string) {
	if !n.Enabled() {
		return
	}
	// Ошибки уведомлений не критичны
	if err := n.send(appName+": "+title, message, ""); err != nil {
		slog.Debug("уведомление не отправлено", "error", err)
	}
}
