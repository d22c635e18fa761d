package display

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Messages sent into the Bubble Tea program by Program.
type (
	statusMsg struct {
		kind    Kind
		message string
	}
	resetMsg struct{}
)

type keyMap struct {
	Setup key.Binding
	Quit  key.Binding
}

// ShortHelp implements help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Setup, k.Quit}
}

// FullHelp implements help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// Model is the full-screen status view.
type Model struct {
	title   string
	spinner spinner.Model
	help    help.Model
	keys    keyMap
	width   int

	status   statusMsg
	hasState bool

	onSetup func()
}

// NewModel returns a model showing title above the status card. onSetup is
// called when the user presses the setup key; it may be nil.
func NewModel(title string, onSetup func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return Model{
		title:   title,
		spinner: s,
		help:    help.New(),
		keys: keyMap{
			Setup: key.NewBinding(
				key.WithKeys("s"),
				key.WithHelp("s", "setup portal"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "ctrl+c"),
				key.WithHelp("q", "quit"),
			),
		},
		width:   DefaultWidth,
		onSetup: onSetup,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Setup):
			if m.onSetup != nil {
				m.onSetup()
			}
		}
		return m, nil

	case statusMsg:
		m.status, m.hasState = msg, true
		return m, nil

	case resetMsg:
		m.status, m.hasState = statusMsg{}, false
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(m.title))
	b.WriteString("\n")

	switch {
	case !m.hasState:
		b.WriteString(" " + m.spinner.View() + " Starting...")
	case m.status.kind == KindLoading:
		card := RenderCard(m.status.kind, m.status.message, m.width)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, " "+m.spinner.View()+" ", card))
	default:
		b.WriteString(RenderCard(m.status.kind, m.status.message, m.width))
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))
	b.WriteString("\n")
	return b.String()
}

// Program is a Presenter backed by a running Bubble Tea program.
type Program struct {
	p *tea.Program
}

// NewProgram wraps a Bubble Tea program around NewModel(title, onSetup).
func NewProgram(title string, onSetup func(), opts ...tea.ProgramOption) *Program {
	return &Program{p: tea.NewProgram(NewModel(title, onSetup), opts...)}
}

// Run blocks until the user quits or Quit is called.
func (p *Program) Run() error {
	_, err := p.p.Run()
	return err
}

// Quit stops the program.
func (p *Program) Quit() {
	p.p.Quit()
}

// ShowConnectionStatus implements Presenter.
func (p *Program) ShowConnectionStatus(connected bool, message string) {
	kind := KindDisconnected
	if connected {
		kind = KindConnected
	}
	p.p.Send(statusMsg{kind: kind, message: message})
}

// ShowLoadingMessage implements Presenter.
func (p *Program) ShowLoadingMessage(message string) {
	p.p.Send(statusMsg{kind: KindLoading, message: message})
}

// ResetDisplayState implements Presenter.
func (p *Program) ResetDisplayState() {
	p.p.Send(resetMsg{})
}
