package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/smartmoney/internal/ports"
)

// Compile-time interface checks.
var (
	_ ports.Notifier = (*Console)(nil)
	_ ports.Notifier = (*Telegram)(nil)
	_ ports.Notifier = (Multi)(nil)
)

// Console implementa ports.Notifier escribiendo a un io.Writer.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout, now: time.Now}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

// Notify imprime el mensaje con timestamp. Los mensajes multilínea se indentan.
func (c *Console) Notify(_ context.Context, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := strings.Split(strings.TrimRight(stripTags(msg), "\n"), "\n")
	fmt.Fprintf(c.out, "[%s] %s\n", c.now().Format("15:04:05"), lines[0])
	for _, l := range lines[1:] {
		fmt.Fprintf(c.out, "           %s\n", l)
	}
	return nil
}

// stripTags quita el markup HTML que usa Telegram.
func stripTags(s string) string {
	var sb strings.Builder
	in := false
	for _, r := range s {
		switch {
		case r == '<':
			in = true
		case r == '>' && in:
			in = false
		case !in:
			sb.WriteRune(r)
		}
	}
	out := sb.String()
	out = strings.ReplaceAll(out, "&lt;", "<")
	out = strings.ReplaceAll(out, "&gt;", ">")
	out = strings.ReplaceAll(out, "&amp;", "&")
	return out
}
