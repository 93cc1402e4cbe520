package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shinji-kodama/blog-agent/internal/model"
)

// Styles for human-readable output. lipgloss drops the colors when stdout
// is not a terminal.
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("40"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// confirmModel is a yes/no prompt.
type confirmModel struct {
	question  string
	confirmed bool
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "y", "Y":
			m.confirmed = true
			return m, tea.Quit
		case "n", "N", "enter", "esc", "q", "ctrl+c":
			m.confirmed = false
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m confirmModel) View() string {
	return fmt.Sprintf("\n%s %s ", titleStyle.Render(m.question), hintStyle.Render("[y/N]"))
}

// confirm asks a yes/no question. Tests replace it.
var confirm = func(question string) (bool, error) {
	result, err := tea.NewProgram(confirmModel{question: question}).Run()
	if err != nil {
		return false, fmt.Errorf("confirm dialog failed: %w", err)
	}
	return result.(confirmModel).confirmed, nil
}

// requireConfirmation returns ExitUserCancelled unless the user agrees.
func requireConfirmation(question string) error {
	ok, err := confirm(question)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewCLIError(model.ExitUserCancelled, "cancelled")
	}
	return nil
}
