// Package tui is the terminal blackjack client.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/player"
	"github.com/lox/blackjack/internal/service"
)

// API is the part of the blackjack client the play screen needs.
type API interface {
	CreateGame(ctx context.Context, playerName string) (service.Result, error)
	Move(ctx context.Context, id string, move game.Move) (service.Result, error)
	Ranking(ctx context.Context) ([]player.Player, error)
}

const (
	requestTimeout = 10 * time.Second
	sidebarWidth   = 28
	rankingSize    = 5
)

type gameMsg struct {
	move game.Move
	res  service.Result
}

type rankingMsg []player.Player

type errMsg struct{ err error }

// Model is the bubbletea model for one player's session.
type Model struct {
	api        API
	playerName string
	logger     *log.Logger

	keys     keyMap
	help     help.Model
	viewport viewport.Model

	current *service.Result
	ranking []player.Player
	gameLog []string
	busy    bool
	err     error

	width    int
	height   int
	quitting bool
}

// New creates a play screen for playerName.
func New(api API, playerName string, logger *log.Logger) *Model {
	return &Model{
		api:        api,
		playerName: playerName,
		logger:     logger.WithPrefix("tui"),
		keys:       defaultKeyMap(),
		help:       help.New(),
		viewport:   viewport.New(10, 5),
	}
}

// Run starts the program on the alternate screen and blocks until the
// player quits.
func Run(ctx context.Context, api API, playerName string, logger *log.Logger) error {
	p := tea.NewProgram(New(api, playerName, logger), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Init starts the first game and loads the ranking.
func (m *Model) Init() tea.Cmd {
	m.busy = true
	return tea.Batch(m.newGame(), m.loadRanking())
}

func (m *Model) newGame() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		res, err := m.api.CreateGame(ctx, m.playerName)
		if err != nil {
			return errMsg{fmt.Errorf("new game: %w", err)}
		}
		return gameMsg{res: res}
	}
}

func (m *Model) move(id string, move game.Move) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		res, err := m.api.Move(ctx, id, move)
		if err != nil {
			return errMsg{fmt.Errorf("%s: %w", strings.ToLower(string(move)), err)}
		}
		return gameMsg{move: move, res: res}
	}
}

func (m *Model) loadRanking() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		players, err := m.api.Ranking(ctx)
		if err != nil {
			return errMsg{fmt.Errorf("ranking: %w", err)}
		}
		return rankingMsg(players)
	}
}

// Update handles messages in the TUI
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case gameMsg:
		m.busy = false
		m.err = nil
		m.applyGame(msg)
		if msg.res.Status == game.Finished {
			return m, m.loadRanking()
		}
		return m, nil

	case rankingMsg:
		m.ranking = msg
		return m, nil

	case errMsg:
		m.busy = false
		m.err = msg.err
		m.logger.Debug("Request failed", "error", msg.err)
		m.addLogEntry(ErrorStyle.Render(msg.err.Error()))
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize()
		return nil
	case key.Matches(msg, m.keys.Up):
		m.viewport.ScrollUp(1)
		return nil
	case key.Matches(msg, m.keys.Down):
		m.viewport.ScrollDown(1)
		return nil
	}

	if m.busy {
		return nil
	}

	switch {
	case key.Matches(msg, m.keys.Hit):
		return m.play(game.Hit)
	case key.Matches(msg, m.keys.Stand):
		return m.play(game.Stand)
	case key.Matches(msg, m.keys.New):
		if m.active() {
			m.addLogEntry(WarningStyle.Render("Finish this game first"))
			return nil
		}
		m.busy = true
		return m.newGame()
	}
	return nil
}

func (m *Model) play(move game.Move) tea.Cmd {
	if !m.active() {
		m.addLogEntry(WarningStyle.Render("No game in progress, press n to deal"))
		return nil
	}
	m.busy = true
	return m.move(m.current.ID, move)
}

func (m *Model) active() bool {
	return m.current != nil && m.current.Status == game.Active
}

func (m *Model) applyGame(msg gameMsg) {
	res := msg.res
	m.current = &res

	switch msg.move {
	case "":
		m.addLogEntry(HandInfoStyle.Render("New game " + res.ID))
		m.addLogEntry(fmt.Sprintf("You are dealt %s (%d)", formatCards(res.PlayerCards), res.PlayerScore))
		m.addLogEntry(fmt.Sprintf("Dealer shows %s", formatCards(res.DealerCards)))
	case game.Hit:
		last := res.PlayerCards[len(res.PlayerCards)-1]
		m.addLogEntry(fmt.Sprintf("You draw %s (%d)", formatCards([]deck.Card{last}), res.PlayerScore))
	case game.Stand:
		m.addLogEntry(fmt.Sprintf("You stand on %d", res.PlayerScore))
	}

	if res.Status == game.Finished {
		m.addLogEntry(fmt.Sprintf("Dealer has %s (%d)", formatCards(res.DealerCards), res.DealerScore))
		m.addLogEntry(outcomeText(res.Player.Status))
	}
}

func outcomeText(status player.Status) string {
	switch status {
	case player.StatusWon:
		return SuccessStyle.Render("You win! +2 points")
	case player.StatusLost:
		return ErrorStyle.Render("Dealer wins. -2 points")
	case player.StatusTie:
		return WarningStyle.Render("Push. +1 point")
	default:
		return ""
	}
}

// addLogEntry adds an entry to the game log and scrolls to it
func (m *Model) addLogEntry(entry string) {
	m.gameLog = append(m.gameLog, entry)
	m.viewport.SetContent(strings.Join(m.gameLog, "\n"))
	if m.viewport.Height > 0 && m.viewport.Width > 0 {
		m.viewport.GotoBottom()
	}
}

func (m *Model) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}
	tableHeight := lipgloss.Height(m.renderTable()) + 2
	helpHeight := lipgloss.Height(m.help.View(m.keys))

	m.viewport.Width = max(m.width-sidebarWidth-4, 1)
	m.viewport.Height = max(m.height-tableHeight-helpHeight-3, 1)
	m.viewport.GotoBottom()
}

// View renders the TUI
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	header := HeaderStyle.Render("Blackjack")

	tableStyle := paneStyle
	if m.active() {
		tableStyle = activePaneStyle
	}
	table := tableStyle.Width(max(m.width-2, 1)).Render(m.renderTable())

	logPane := paneStyle.
		Width(m.viewport.Width).
		Height(m.viewport.Height).
		Render(m.viewport.View())
	sidebar := paneStyle.
		Width(sidebarWidth - 2).
		Height(m.viewport.Height).
		Render(m.renderSidebar())

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		table,
		lipgloss.JoinHorizontal(lipgloss.Top, logPane, sidebar),
		m.help.View(m.keys),
	)
}

func (m *Model) renderTable() string {
	if m.current == nil {
		if m.err != nil {
			return ErrorStyle.Render(m.err.Error())
		}
		return InfoStyle.Render("Dealing...")
	}

	res := m.current
	dealer := formatCards(res.DealerCards)
	if res.Status == game.Active {
		dealer += " " + HiddenCardStyle.Render("[??]")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dealer: %s  %d\n", dealer, res.DealerScore)
	fmt.Fprintf(&b, "You:    %s  %d\n", formatCards(res.PlayerCards), res.PlayerScore)

	switch {
	case res.Status == game.Finished:
		b.WriteString(outcomeText(res.Player.Status))
	case m.busy:
		b.WriteString(InfoStyle.Render("Waiting for dealer..."))
	default:
		b.WriteString(HandInfoStyle.Render("Your move: hit or stand"))
	}
	return b.String()
}

func (m *Model) renderSidebar() string {
	var b strings.Builder

	b.WriteString(HandInfoStyle.Render(m.playerName))
	b.WriteString("\n")
	if m.current != nil {
		fmt.Fprintf(&b, "Points: %d\n", m.current.Player.TotalPoints)
		fmt.Fprintf(&b, "Cards left: %d\n", m.current.CardsRemaining)
	}

	if len(m.ranking) > 0 {
		b.WriteString("\n")
		b.WriteString(InfoStyle.Render("Ranking"))
		b.WriteString("\n")
		for i, p := range m.ranking {
			if i == rankingSize {
				break
			}
			fmt.Fprintf(&b, "%d. %-14s %d\n", i+1, truncate(p.Name, 14), p.TotalPoints)
		}
	}
	return b.String()
}

// formatCards formats cards with colors
func formatCards(cards []deck.Card) string {
	if len(cards) == 0 {
		return ""
	}

	formatted := make([]string, 0, len(cards))
	for _, card := range cards {
		if card.IsRed() {
			formatted = append(formatted, RedCardStyle.Render(card.String()))
		} else {
			formatted = append(formatted, BlackCardStyle.Render(card.String()))
		}
	}
	return "[" + strings.Join(formatted, " ") + "]"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
