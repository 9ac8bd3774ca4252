package status

import (
	"errors"
	"io"
	"time"

	"github.com/bnema/repx/internal/application"
	"github.com/bnema/repx/internal/domain"
	tea "github.com/charmbracelet/bubbletea"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

type boardReadyMsg struct{}

// boardSummary is the header of the status board.
type boardSummary struct {
	accounts int
	today    int
	week     int
	// remaining is the number of comments still allowed today across the
	// accounts that are not cooling down or failing.
	remaining int
	byState   map[application.AccountState]int
}

type boardModel struct {
	rows    []application.AccountStatus
	summary boardSummary
	opts    RenderOptions
	styles  styles
	output  string
}

func newBoardModel(rows []application.AccountStatus, opts RenderOptions) boardModel {
	opts = opts.withDefaults()
	return boardModel{
		rows:    rows,
		summary: summarize(rows, opts.DailyLimit),
		opts:    opts,
		styles:  newStyles(),
	}
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.DailyLimit <= 0 {
		o.DailyLimit = domain.DefaultDailyLimit
	}
	if o.CooldownWindow <= 0 {
		o.CooldownWindow = domain.DefaultCooldownHours * time.Hour
	}
	return o
}

func summarize(rows []application.AccountStatus, dailyLimit int) boardSummary {
	sum := boardSummary{
		accounts: len(rows),
		byState:  make(map[application.AccountState]int, 3),
	}
	for _, row := range rows {
		sum.today += row.Progress
		sum.week += row.Weekly
		sum.byState[row.State]++
		if row.State == application.AccountStateFarm && row.Progress < dailyLimit {
			sum.remaining += dailyLimit - row.Progress
		}
	}
	return sum
}

func (m boardModel) Init() tea.Cmd {
	return func() tea.Msg {
		return boardReadyMsg{}
	}
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(boardReadyMsg); ok {
		m.output = renderView(m.summary, m.rows, m.opts, m.styles)
		return m, tea.Quit
	}
	return m, nil
}

func (m boardModel) View() string {
	return m.output
}

// Render draws the account rows once and returns the frame as a string.
func Render(rows []application.AccountStatus, opts RenderOptions) (string, error) {
	p := tea.NewProgram(
		newBoardModel(rows, opts),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	rendered, ok := finalModel.(boardModel)
	if !ok {
		return "", ErrUnexpectedRenderModel
	}

	return rendered.View(), nil
}
