package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

// TerminalNotifier prints notifications to a terminal.
type TerminalNotifier struct {
	out         io.Writer
	mu          sync.Mutex
	bellEnabled bool
}

// NewTerminalNotifier creates a TerminalNotifier writing to out, or stdout when nil.
func NewTerminalNotifier(out io.Writer) *TerminalNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &TerminalNotifier{out: out, bellEnabled: true}
}

// SetBellEnabled enables or disables the terminal bell.
func (tn *TerminalNotifier) SetBellEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.bellEnabled = enabled
}

// Name returns the name of the notifier.
func (tn *TerminalNotifier) Name() string {
	return "terminal"
}

// IsEnabled always reports true.
func (tn *TerminalNotifier) IsEnabled() bool {
	return true
}

// Send prints one line per notification.
func (tn *TerminalNotifier) Send(ctx context.Context, n Notification) error {
	tn.mu.Lock()
	defer tn.mu.Unlock()

	var paint func(format string, a ...interface{}) string
	switch n.Type {
	case NotificationAlert:
		paint = color.New(color.FgYellow, color.Bold).SprintfFunc()
	case NotificationError:
		paint = color.New(color.FgRed).SprintfFunc()
	default:
		paint = color.New(color.FgCyan).SprintfFunc()
	}

	bell := ""
	if tn.bellEnabled && n.Type == NotificationAlert {
		bell = "\a"
	}

	ts := n.Timestamp.Local().Format("15:04:05")
	_, err := fmt.Fprintf(tn.out, "%s[%s] %s  %s\n", bell, ts, paint("%s", n.Title), n.Message)
	return err
}
