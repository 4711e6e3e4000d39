package console

import (
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/githubnext/gh-flowgen/pkg/styles"
	"github.com/githubnext/gh-flowgen/pkg/tty"
)

// SpinnerWrapper shows an animated spinner on stderr while a batch runs. It is
// a no-op when stderr is not a terminal or ACCESSIBLE is set.
type SpinnerWrapper struct {
	program *tea.Program
	enabled bool

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

type spinnerModel struct {
	spinner spinner.Model
	message string
}

type updateMessageMsg string

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMessageMsg:
		m.message = string(msg)
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m spinnerModel) View() string {
	return fmt.Sprintf("%s %s", m.spinner.View(), m.message)
}

// NewSpinner creates a spinner showing message. It does not start it.
func NewSpinner(message string) *SpinnerWrapper {
	enabled := tty.IsStderrTerminal() && os.Getenv("ACCESSIBLE") == ""
	s := &SpinnerWrapper{enabled: enabled}
	if !enabled {
		return s
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Info
	s.program = tea.NewProgram(
		spinnerModel{spinner: sp, message: message},
		tea.WithOutput(os.Stderr),
		tea.WithInput(nil),
	)
	return s
}

// IsEnabled reports whether the spinner renders anything.
func (s *SpinnerWrapper) IsEnabled() bool {
	return s.enabled
}

func (s *SpinnerWrapper) Start() {
	if !s.enabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		_, _ = s.program.Run()
	}()
}

// Stop halts the spinner and clears its line.
func (s *SpinnerWrapper) Stop() {
	if !s.enabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.program.Quit()
	<-s.done
}

func (s *SpinnerWrapper) UpdateMessage(message string) {
	if !s.enabled {
		return
	}
	s.program.Send(updateMessageMsg(message))
}
