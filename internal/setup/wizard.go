package setup

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	itemStyle  = lipgloss.NewStyle().PaddingLeft(2)
	selStyle   = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("5"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// State accumulates the environment variables collected by the wizard.
type State struct {
	EnvVars map[string]string
}

func NewState() *State {
	return &State{EnvVars: make(map[string]string)}
}

// Step is one screen of the setup wizard. Returning a nil Step from Update
// signals completion and advances the wizard.
type Step interface {
	Init() tea.Cmd
	Update(msg tea.Msg, state *State) (Step, tea.Cmd)
	View(state *State) string
}

func getSteps(runtimePath string) []Step {
	return []Step{
		NewProviderStep(),
		NewBaseURLStep(),
		NewAPIKeyStep(),
		NewModelStep(),
		NewEmbeddingStep(),
		NewSaveStep(runtimePath),
	}
}

type model struct {
	steps       []Step
	currentStep int
	state       *State
	quitting    bool
	err         error
}

func initialModel(runtimePath string) model {
	return model{
		steps: getSteps(runtimePath),
		state: NewState(),
	}
}

func (m model) Init() tea.Cmd {
	if len(m.steps) > 0 {
		return m.steps[0].Init()
	}
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, tea.Quit
	}

	switch msg := msg.(type) {
	case errMsg:
		m.err = msg
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	}

	if m.currentStep >= len(m.steps) {
		return m, tea.Quit
	}

	nextStep, cmd := m.steps[m.currentStep].Update(msg, m.state)
	if nextStep == nil {
		m.currentStep++
		if m.currentStep >= len(m.steps) {
			return m, tea.Quit
		}
		return m, m.steps[m.currentStep].Init()
	}
	if nextStep != m.steps[m.currentStep] {
		m.steps[m.currentStep] = nextStep
	}
	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return "Setup cancelled.\n"
	}
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n\n(press ctrl+c to quit)\n"
	}
	if m.currentStep >= len(m.steps) {
		return "Setup complete!\n"
	}
	return titleStyle.Render("Setting up mnemo") + "\n\n" + m.steps[m.currentStep].View(m.state)
}

type errMsg error
type nextMsg struct{}

// RunWizard walks the user through provider, model, and embedding choices
// and writes the runtime configuration.
func RunWizard(runtimePath string) (*State, error) {
	p := tea.NewProgram(initialModel(runtimePath), tea.WithAltScreen())
	m, err := p.Run()
	if err != nil {
		return nil, err
	}

	finalModel := m.(model)
	if finalModel.quitting {
		return nil, fmt.Errorf("mnemo setup interrupted")
	}
	return finalModel.state, nil
}
