package setup

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ProviderStep selects the generation backend used by the consolidation
// worker.
type ProviderStep struct {
	choices []string
	cursor  int
}

func NewProviderStep() Step {
	return &ProviderStep{
		choices: []string{"ollama", "openai", "openrouter", "custom", "none"},
	}
}

func (s *ProviderStep) Init() tea.Cmd { return nil }

func (s *ProviderStep) Update(msg tea.Msg, state *State) (Step, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if s.cursor > 0 {
				s.cursor--
			}
		case "down", "j":
			if s.cursor < len(s.choices)-1 {
				s.cursor++
			}
		case "enter":
			state.EnvVars["MNEMO_LLM_PROVIDER"] = s.choices[s.cursor]
			return nil, nil
		}
	}
	return s, nil
}

func (s *ProviderStep) View(state *State) string {
	var b strings.Builder
	b.WriteString("Select the LLM provider for consolidation:\n\n")
	for i, choice := range s.choices {
		if s.cursor == i {
			b.WriteString(selStyle.Render("> "+choice) + "\n")
		} else {
			b.WriteString(itemStyle.Render("  "+choice) + "\n")
		}
	}
	b.WriteString("\n(press ctrl+c to quit)\n")
	return b.String()
}

func textField(placeholder string) textinput.Model {
	in := textinput.New()
	in.Focus()
	in.CharLimit = 255
	in.Width = 48
	in.Placeholder = placeholder
	return in
}

// BaseURLStep collects the provider endpoint.
type BaseURLStep struct {
	input textinput.Model
	ready bool
}

func NewBaseURLStep() Step { return &BaseURLStep{} }

func (s *BaseURLStep) Init() tea.Cmd { return textinput.Blink }

func (s *BaseURLStep) Update(msg tea.Msg, state *State) (Step, tea.Cmd) {
	if state.EnvVars["MNEMO_LLM_PROVIDER"] == "none" {
		return nil, nil
	}
	if !s.ready {
		placeholder := "https://api.openai.com"
		if state.EnvVars["MNEMO_LLM_PROVIDER"] == "ollama" {
			placeholder = "http://localhost:11434"
		}
		s.input = textField(placeholder)
		s.ready = true
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		url := s.input.Value()
		if url == "" {
			url = s.input.Placeholder
		}
		state.EnvVars["MNEMO_LLM_BASE_URL"] = url
		return nil, nil
	}
	return s, cmd
}

func (s *BaseURLStep) View(state *State) string {
	if !s.ready {
		return "Loading..."
	}
	return fmt.Sprintf("Provider base URL (press Enter for default):\n\n%s\n\n(press enter to confirm)\n", s.input.View())
}

// APIKeyStep collects the provider API key; skipped for local providers.
type APIKeyStep struct {
	input textinput.Model
	ready bool
}

func NewAPIKeyStep() Step { return &APIKeyStep{} }

func (s *APIKeyStep) Init() tea.Cmd { return textinput.Blink }

func (s *APIKeyStep) Update(msg tea.Msg, state *State) (Step, tea.Cmd) {
	provider := state.EnvVars["MNEMO_LLM_PROVIDER"]
	if provider == "ollama" || provider == "none" {
		return nil, nil
	}
	if !s.ready {
		s.input = textField("sk-...")
		s.input.EchoMode = textinput.EchoPassword
		s.input.EchoCharacter = '*'
		s.ready = true
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		state.EnvVars["MNEMO_LLM_API_KEY"] = s.input.Value()
		return nil, nil
	}
	return s, cmd
}

func (s *APIKeyStep) View(state *State) string {
	if !s.ready {
		return "Loading..."
	}
	return fmt.Sprintf("API key:\n\n%s\n\n(press enter to confirm)\n", s.input.View())
}

// ModelStep collects the generation model name.
type ModelStep struct {
	input textinput.Model
	ready bool
}

func NewModelStep() Step { return &ModelStep{} }

func (s *ModelStep) Init() tea.Cmd { return textinput.Blink }

func (s *ModelStep) Update(msg tea.Msg, state *State) (Step, tea.Cmd) {
	if state.EnvVars["MNEMO_LLM_PROVIDER"] == "none" {
		return nil, nil
	}
	if !s.ready {
		s.input = textField("llama3.1")
		s.ready = true
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		model := s.input.Value()
		if model == "" {
			model = s.input.Placeholder
		}
		state.EnvVars["MNEMO_LLM_MODEL"] = model
		return nil, nil
	}
	return s, cmd
}

func (s *ModelStep) View(state *State) string {
	if !s.ready {
		return "Loading..."
	}
	return fmt.Sprintf("Model for summarization and fact extraction:\n\n%s\n\n(press enter to confirm)\n", s.input.View())
}

// EmbeddingStep toggles semantic retrieval.
type EmbeddingStep struct {
	cursor int
}

func NewEmbeddingStep() Step { return &EmbeddingStep{} }

func (s *EmbeddingStep) Init() tea.Cmd { return nil }

func (s *EmbeddingStep) Update(msg tea.Msg, state *State) (Step, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k", "down", "j":
			s.cursor = 1 - s.cursor
		case "enter":
			if s.cursor == 0 {
				state.EnvVars["MNEMO_EMBEDDING_ENABLED"] = "true"
			}
			return nil, nil
		}
	}
	return s, nil
}

func (s *EmbeddingStep) View(state *State) string {
	choices := []string{"yes (requires an Ollama embedding model)", "no (lexical retrieval only)"}
	var b strings.Builder
	b.WriteString("Enable semantic retrieval with embeddings?\n\n")
	for i, choice := range choices {
		if s.cursor == i {
			b.WriteString(selStyle.Render("> "+choice) + "\n")
		} else {
			b.WriteString(itemStyle.Render("  "+choice) + "\n")
		}
	}
	b.WriteString("\n(press ctrl+c to quit)\n")
	return b.String()
}

// SaveStep writes the .env file and seeds the runtime directory.
type SaveStep struct {
	runtimePath string
	err         error
	saved       bool
}

func NewSaveStep(runtimePath string) Step {
	return &SaveStep{runtimePath: runtimePath}
}

func (s *SaveStep) Init() tea.Cmd {
	return func() tea.Msg { return nextMsg{} }
}

func (s *SaveStep) Update(msg tea.Msg, state *State) (Step, tea.Cmd) {
	if s.saved {
		return nil, nil
	}
	if err := Persist(s.runtimePath, state); err != nil {
		s.err = err
		return s, nil
	}
	s.saved = true
	return nil, nil
}

func (s *SaveStep) View(state *State) string {
	if s.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", s.err)) + "\n\n(press ctrl+c to quit)\n"
	}
	if s.saved {
		return "Configuration saved!\n"
	}
	return "Saving configuration...\n"
}
