package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Presenter is what the connection supervisor drives.
type Presenter interface {
	ShowConnectionStatus(connected bool, message string)
	ShowLoadingMessage(message string)
	ResetDisplayState()
}

// Kind distinguishes the three card variants.
type Kind int

const (
	KindDisconnected Kind = iota
	KindConnected
	KindLoading
)

// RenderCard renders a status message as a bordered card. The first line of
// message is the title.
func RenderCard(kind Kind, message string, width int) string {
	width = clampWidth(width)

	lines := strings.Split(message, "\n")
	rendered := []string{TitleStyle.Render(lines[0])}
	for _, l := range lines[1:] {
		rendered = append(rendered, BodyStyle.Render(l))
	}

	border := WarningColor
	switch kind {
	case KindConnected:
		border = SuccessColor
	case KindLoading:
		border = PrimaryColor
	}
	return CardStyle(border, width).Render(lipgloss.JoinVertical(lipgloss.Left, rendered...))
}

// Terminal prints status cards to a writer. Identical consecutive frames are
// skipped.
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	width int
	last  string
}

// NewTerminal returns a presenter writing to w. If w is nil, os.Stdout is
// used.
func NewTerminal(w io.Writer) *Terminal {
	if w == nil {
		w = os.Stdout
	}
	return &Terminal{out: w, width: WidthOf(w)}
}

// SetWidth overrides the detected width.
func (t *Terminal) SetWidth(width int) *Terminal {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.width = width
	return t
}

func (t *Terminal) draw(kind Kind, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	frame := RenderCard(kind, message, t.width)
	if frame == t.last {
		return
	}
	t.last = frame
	_, _ = fmt.Fprintln(t.out, frame)
}

// ShowConnectionStatus implements Presenter.
func (t *Terminal) ShowConnectionStatus(connected bool, message string) {
	kind := KindDisconnected
	if connected {
		kind = KindConnected
	}
	t.draw(kind, message)
}

// ShowLoadingMessage implements Presenter.
func (t *Terminal) ShowLoadingMessage(message string) {
	t.draw(KindLoading, message)
}

// ResetDisplayState implements Presenter. The next frame is always drawn.
func (t *Terminal) ResetDisplayState() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = ""
}

// Multi fans every call out to several presenters in order.
type Multi []Presenter

// ShowConnectionStatus implements Presenter.
func (m Multi) ShowConnectionStatus(connected bool, message string) {
	for _, p := range m {
		p.ShowConnectionStatus(connected, message)
	}
}

// ShowLoadingMessage implements Presenter.
func (m Multi) ShowLoadingMessage(message string) {
	for _, p := range m {
		p.ShowLoadingMessage(message)
	}
}

// ResetDisplayState implements Presenter.
func (m Multi) ResetDisplayState() {
	for _, p := range m {
		p.ResetDisplayState()
	}
}
