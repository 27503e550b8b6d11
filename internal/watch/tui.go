package watch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/amishk599/nutrilens/internal/model"
)

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	headerCellStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	unknownCellStyle = cellStyle.
				Foreground(lipgloss.Color("240")).
				Italic(true)
)

type resultMsg struct {
	view model.JobView
	err  error
}

type pollMsg struct{}

// ResultFunc fetches the current view of the watched job.
type ResultFunc func(ctx context.Context) (model.JobView, error)

type watchModel struct {
	jobID    string
	fetch    ResultFunc
	interval time.Duration
	spinner  spinner.Model
	started  time.Time
	polls    int

	view model.JobView
	err  error
	done bool
}

func newWatchModel(jobID string, fetch ResultFunc, interval time.Duration) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle
	return watchModel{
		jobID:    jobID,
		fetch:    fetch,
		interval: interval,
		spinner:  s,
		started:  time.Now(),
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.doPoll())
}

func (m watchModel) doPoll() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		view, err := fetch(ctx)
		return resultMsg{view: view, err: err}
	}
}

func (m watchModel) scheduleNext() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return pollMsg{}
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case resultMsg:
		m.polls++
		if msg.err != nil {
			m.err = msg.err
			m.done = true
			return m, tea.Quit
		}
		m.view = msg.view
		if msg.view.Status.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, m.scheduleNext()
	case pollMsg:
		return m, m.doPoll()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.done = true
			m.err = fmt.Errorf("cancelled")
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.done {
		return ""
	}
	status := "submitting"
	if m.view.Status != "" {
		status = string(m.view.Status)
	}
	elapsed := time.Since(m.started).Truncate(time.Second)
	return fmt.Sprintf("%s Waiting for job %s %s\n",
		m.spinner.View(),
		titleStyle.Render(m.jobID),
		dimStyle.Render(fmt.Sprintf("(%s, %s, q to quit)", status, elapsed)),
	)
}

// Run shows a spinner while polling fetch every interval, and returns the
// terminal view. It renders inline (no alt screen).
func Run(jobID string, fetch ResultFunc, interval time.Duration) (model.JobView, error) {
	if interval <= 0 {
		interval = time.Second
	}
	p := tea.NewProgram(newWatchModel(jobID, fetch, interval))
	result, err := p.Run()
	if err != nil {
		return model.JobView{}, err
	}
	final := result.(watchModel)
	return final.view, final.err
}

// RenderResult formats a finished job for the terminal.
func RenderResult(jobID string, view model.JobView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Job "+jobID) + " " + dimStyle.Render(string(view.Status)) + "\n")

	switch view.Status {
	case model.StatusError:
		b.WriteString(errorStyle.Render("Error: ") + view.Message + "\n")
		return b.String()
	case model.StatusProcessing:
		b.WriteString(dimStyle.Render("still processing") + "\n")
		return b.String()
	}

	if len(view.FoodsDetected) == 0 {
		b.WriteString(dimStyle.Render("No food detected") + "\n")
		return b.String()
	}

	foods := append([]string(nil), view.FoodsDetected...)
	sort.Strings(foods)

	rows := make([][]string, 0, len(foods))
	for _, food := range foods {
		rec := view.NutritionInfo[food]
		rows = append(rows, []string{food, rec.Calories.String(), rec.Protein.String(), rec.Carbs.String(), rec.Fat.String()})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("FOOD", "KCAL/100G", "PROTEIN", "CARBS", "FAT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCellStyle
			}
			if row >= 0 && row < len(rows) && rows[row][col] == model.UnknownLiteral {
				return unknownCellStyle
			}
			return cellStyle
		})

	b.WriteString(t.Render() + "\n")
	return b.String()
}
