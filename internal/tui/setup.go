// ABOUTME: Interactive TUI wizard for connecting ttcache to a TT-RSS server.
// ABOUTME: 3-step bubbletea model collecting server URL, username and password.
package tui

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Step represents the current wizard step.
type Step int

const (
	StepServer Step = iota
	StepUsername
	StepPassword
	StepDone
)

const stepCount = 3

// Credentials are the values the wizard collects.
type Credentials struct {
	ServerURL string
	Username  string
	Password  string
}

// SetupModel is the bubbletea model for the setup wizard.
type SetupModel struct {
	step     Step
	inputs   [stepCount]textinput.Model
	errMsg   string
	quitting bool
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	brandStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var stepTitles = [stepCount]string{"Server URL", "Username", "Password"}

// NewSetupModel creates a setup wizard pre-filled with the current values.
// An existing password is kept when the password step is left empty.
func NewSetupModel(current Credentials) SetupModel {
	server := textinput.New()
	server.Placeholder = "https://rss.example.com/tt-rss"
	server.Width = 50
	server.SetValue(current.ServerURL)
	server.Focus()

	user := textinput.New()
	user.Placeholder = "admin"
	user.Width = 50
	user.SetValue(current.Username)

	pass := textinput.New()
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'
	pass.Width = 50
	if current.Password != "" {
		pass.Placeholder = "(unchanged)"
	}

	return SetupModel{
		step:   StepServer,
		inputs: [stepCount]textinput.Model{server, user, pass},
	}
}

// Init implements tea.Model.
func (m SetupModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m SetupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.step == StepDone {
		return m, nil
	}
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEscape:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleEnter()
		}
	}

	// Forward keys and cursor blinks to the active input
	idx := int(m.step)
	var cmd tea.Cmd
	m.inputs[idx], cmd = m.inputs[idx].Update(msg)
	return m, cmd
}

func (m SetupModel) handleEnter() (tea.Model, tea.Cmd) {
	idx := int(m.step)
	val := strings.TrimSpace(m.inputs[idx].Value())

	switch m.step {
	case StepServer:
		if err := validateServerURL(val); err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		m.inputs[idx].SetValue(strings.TrimRight(val, "/"))
	case StepUsername:
		if val == "" {
			m.errMsg = "username is required"
			return m, nil
		}
		m.inputs[idx].SetValue(val)
	}

	m.errMsg = ""
	m.inputs[idx].Blur()
	m.step++
	if m.step == StepDone {
		return m, tea.Quit
	}
	m.inputs[m.step].Focus()
	return m, textinput.Blink
}

func validateServerURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("server URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("enter an http(s) URL such as https://rss.example.com")
	}
	return nil
}

// View implements tea.Model.
func (m SetupModel) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(brandStyle.Render("   TTCACHE"))
	b.WriteString(titleStyle.Render(" - Setup"))
	b.WriteString("\n\n")
	b.WriteString("Connect to your Tiny Tiny RSS server.\n\n")

	if m.step == StepDone {
		b.WriteString(successStyle.Render("Setup complete! Configuration will be saved."))
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("  Server:    %s\n", m.inputs[StepServer].Value()))
		b.WriteString(fmt.Sprintf("  Username:  %s\n", m.inputs[StepUsername].Value()))
		b.WriteString("\n")
		return b.String()
	}

	for i := Step(0); i < m.step; i++ {
		if i == StepPassword {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s: %s\n", stepTitles[i], m.inputs[i].Value()))
	}
	if m.step > StepServer {
		b.WriteString("\n")
	}

	b.WriteString(stepStyle.Render(fmt.Sprintf("Step %d of %d: %s", m.step+1, stepCount, stepTitles[m.step])))
	b.WriteString("\n")
	if m.step == StepPassword {
		b.WriteString(promptStyle.Render("(input is hidden)"))
		b.WriteString("\n")
	}
	b.WriteString(m.inputs[m.step].View())
	b.WriteString("\n")
	if m.errMsg != "" {
		b.WriteString(errorStyle.Render(m.errMsg))
		b.WriteString("\n")
	}
	return b.String()
}

// Result returns the entered values. An empty Password means keep the
// current one.
func (m SetupModel) Result() Credentials {
	return Credentials{
		ServerURL: m.inputs[StepServer].Value(),
		Username:  m.inputs[StepUsername].Value(),
		Password:  m.inputs[StepPassword].Value(),
	}
}

// ShouldSave returns true if the wizard completed and the user did not cancel.
func (m SetupModel) ShouldSave() bool {
	return m.step == StepDone && !m.quitting
}
