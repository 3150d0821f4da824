package tui

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tatianab/game-forge/internal/engine"
	"github.com/tatianab/game-forge/internal/gameconfig"
	"github.com/tatianab/game-forge/internal/models"
	"github.com/tatianab/game-forge/internal/sandbox"
	"github.com/tatianab/game-forge/internal/session"
)

type sessionState int

const (
	statePrompt sessionState = iota
	stateLoading
	statePlaying
	stateError
)

const promptPlaceholder = "Describe a game, e.g. 'snake on a neon grid'..."

type model struct {
	state     sessionState
	session   *session.Session
	hostURL   string
	textInput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	genre     int
	err       error
	gameLog   string
	width     int
	height    int

	current models.HistoryRecord
	entries []gameconfig.Entry
	runtime sandbox.State
}

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)

	genreStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F")).
			Bold(true)
)

const helpText = `Commands:
  /set <key> <value>   change a config value (sliders take 0-1 or 40%)
  /reset               restart the game
  /save, /load         save or restore the edited game
  /rate <0-5>          rate the game
  /download            export to the save directory
  /share               print a shareable data URL
  /history             list past games
  /open <n>            play game n from the history
  /delete <n>          delete game n from the history
  /exports             list exported games
  /import <name>       play an exported game
  /new                 describe a new game
  /quit                exit`

func NewModel(sess *session.Session, hostURL string) model {
	ti := textinput.New()
	ti.Placeholder = promptPlaceholder
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60
	ti.SetValue(sess.PromptDraft())

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		state:     statePrompt,
		session:   sess,
		hostURL:   hostURL,
		textInput: ti,
		spinner:   sp,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

type gameGeneratedMsg struct {
	rec models.HistoryRecord
}

type errMsg struct {
	err error
}

type statusMsg string

// RuntimeStateMsg reports a sandbox state transition.
type RuntimeStateMsg sandbox.State

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.saveDraft()
			return m, tea.Quit

		case tea.KeyEsc:
			switch m.state {
			case stateError:
				m.state = statePrompt
				return m, nil
			case statePrompt:
				if _, ok := m.session.Current(); ok {
					m.state = statePlaying
					m.textInput.Reset()
					m.textInput.Placeholder = "Type /help for commands"
					return m, nil
				}
			}
			m.saveDraft()
			return m, tea.Quit

		case tea.KeyTab:
			if m.state == statePrompt {
				m.genre = (m.genre + 1) % len(models.Genres)
				return m, nil
			}

		case tea.KeyEnter:
			switch m.state {
			case statePrompt:
				desc := strings.TrimSpace(m.textInput.Value())
				if desc == "" {
					return m, nil
				}
				m.saveDraft()
				m.state = stateLoading
				req := models.GenerationRequest{Description: desc, Genre: models.Genres[m.genre]}
				return m, tea.Batch(m.spinner.Tick, m.generate(req))

			case statePlaying:
				input := strings.TrimSpace(m.textInput.Value())
				m.textInput.Reset()
				if input == "" {
					return m, nil
				}
				m.appendLog(userStyle.Width(m.viewport.Width).Render("> " + input))
				return m.runCommand(input)

			case stateError:
				m.state = statePrompt
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.viewport.Width == 0 {
			m.viewport = viewport.New(m.logWidth(), msg.Height-6)
		} else {
			m.viewport.Width = m.logWidth()
			m.viewport.Height = msg.Height - 6
		}
		m.viewport.SetContent(m.gameLog)

	case spinner.TickMsg:
		if m.state == stateLoading {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case gameGeneratedMsg:
		m.state = statePlaying
		m.gameLog = ""
		m.refresh()
		m.appendLog(gameStyle.Bold(true).Render("Game: "+msg.rec.Title()) + "\n" +
			gameStyle.Render(fmt.Sprintf("Genre: %s. Open %s to play. Type /help for commands.", msg.rec.Request.Genre.Title(), m.hostURL)))
		m.textInput.Reset()
		m.textInput.Placeholder = "Type /help for commands"
		return m, nil

	case statusMsg:
		m.refresh()
		m.appendLog(gameStyle.Render(string(msg)))
		return m, nil

	case RuntimeStateMsg:
		m.runtime = sandbox.State(msg)
		return m, nil

	case errMsg:
		if m.state == stateLoading {
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		m.appendLog(errorStyle.Render(msg.err.Error()))
		return m, nil
	}

	if m.state == statePrompt || m.state == statePlaying {
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *model) runCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	name, args := fields[0], fields[1:]

	report := func(format string, a ...any) (tea.Model, tea.Cmd) {
		m.refresh()
		m.appendLog(gameStyle.Render(fmt.Sprintf(format, a...)))
		return *m, nil
	}
	fail := func(err error) (tea.Model, tea.Cmd) {
		m.appendLog(errorStyle.Render(err.Error()))
		return *m, nil
	}

	switch name {
	case "/quit":
		m.saveDraft()
		return *m, tea.Quit

	case "/help":
		return report("%s", helpText)

	case "/new":
		m.state = statePrompt
		m.textInput.Placeholder = promptPlaceholder
		m.textInput.SetValue(m.session.PromptDraft())
		return *m, nil

	case "/set":
		if len(args) < 2 {
			return report("Usage: /set <key> <value>")
		}
		key := args[0]
		rest := strings.TrimSpace(strings.TrimPrefix(input, "/set"))
		value := strings.TrimSpace(strings.TrimPrefix(rest, key))
		if err := m.session.SetValue(key, value); err != nil {
			return fail(err)
		}
		return report("%s updated", key)

	case "/reset":
		return *m, m.reset()

	case "/save":
		if err := m.session.SaveState(); err != nil {
			return fail(err)
		}
		return report("Saved.")

	case "/load":
		if err := m.session.LoadState(); err != nil {
			return fail(err)
		}
		return report("Loaded saved game.")

	case "/rate":
		n, err := parseArg(args)
		if err != nil {
			return fail(err)
		}
		if err := m.session.Rate(n); err != nil {
			return fail(err)
		}
		return report("Rated %s", stars(n))

	case "/download":
		bundle, err := m.session.Download()
		if err != nil {
			return fail(err)
		}
		return report("Exported as %s", bundle)

	case "/share":
		url, err := m.session.Share()
		if err != nil {
			return fail(err)
		}
		return report("Paste into a browser address bar:\n%s", url)

	case "/history":
		return report("%s", m.renderHistory())

	case "/open", "/delete":
		n, err := parseArg(args)
		if err != nil {
			return fail(err)
		}
		history := m.session.History()
		if n < 1 || n > len(history) {
			return fail(fmt.Errorf("no game #%d in history", n))
		}
		rec := history[n-1]
		if name == "/open" {
			if err := m.session.Select(rec.ID); err != nil {
				return fail(err)
			}
			return report("Playing %s", rec.Title())
		}
		if err := m.session.Delete(rec.ID); err != nil {
			return fail(err)
		}
		return report("Deleted %s", rec.Title())

	case "/exports":
		names, err := m.session.Exports()
		if err != nil {
			return fail(err)
		}
		if len(names) == 0 {
			return report("No exported games yet.")
		}
		return report("%s", strings.Join(names, "\n"))

	case "/import":
		if len(args) != 1 {
			return report("Usage: /import <name>")
		}
		rec, err := m.session.Open(args[0])
		if err != nil {
			return fail(err)
		}
		return report("Playing %s", rec.Title())
	}

	return report("Unknown command %s. Type /help.", name)
}

func parseArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one number")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", args[0])
	}
	return n, nil
}

// refresh re-reads the active game from the session.
func (m *model) refresh() {
	rec, ok := m.session.Current()
	if !ok {
		m.current = models.HistoryRecord{}
		m.entries = nil
		return
	}
	m.current = rec
	m.entries = m.session.Entries()
}

func (m *model) appendLog(s string) {
	m.gameLog += s + "\n\n"
	m.viewport.SetContent(m.gameLog)
	m.viewport.GotoBottom()
}

func (m model) saveDraft() {
	if m.state == statePrompt {
		m.session.SaveDraft(m.textInput.Value())
	}
}

func (m model) logWidth() int {
	return int(float64(m.width) * 0.6)
}

func (m model) View() string {
	var s string

	switch m.state {
	case statePrompt:
		s = fmt.Sprintf(
			"Welcome to Game Forge!\n\n%s\n\n%s\n\n%s",
			"Describe the game you want to play:",
			m.textInput.View(),
			helpStyle.Render("Genre: ")+genreStyle.Render(models.Genres[m.genre].Title())+
				helpStyle.Render("  (tab to change, enter to generate, esc to quit)"),
		)

	case stateLoading:
		s = fmt.Sprintf("\n  %s Generating your game... this can take a minute.\n", m.spinner.View())

	case statePlaying:
		mainView := lipgloss.JoinHorizontal(lipgloss.Top,
			m.viewport.View(),
			m.renderPanel(),
		)
		help := helpStyle.Render("Type /help for commands, /new for another game, /quit to exit.")
		s = lipgloss.JoinVertical(lipgloss.Left,
			mainView,
			"\n"+m.textInput.View(),
			"\n"+help,
		)

	case stateError:
		s = fmt.Sprintf("\n  %s\n\n  %s\n\nPress Enter to try again or Esc to go back.",
			errorStyle.Render(engine.UserMessage(m.err)),
			helpStyle.Render(m.err.Error()))
	}

	return "\n" + s + "\n"
}

func (m model) renderPanel() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("CONTROLS") + "\n")
	for _, c := range m.current.Artifact.Controls {
		b.WriteString(renderControl(c) + "\n")
	}

	sound, general := gameconfig.Partition(m.entries)
	if len(sound) > 0 {
		b.WriteString("\n" + titleStyle.Render("SOUND") + "\n")
		for _, e := range sound {
			b.WriteString(renderEntry(e) + "\n")
		}
	}
	b.WriteString("\n" + titleStyle.Render("CONFIG") + "\n")
	if len(general) == 0 && len(sound) == 0 {
		b.WriteString("(no tunable values)\n")
	}
	for _, e := range general {
		b.WriteString(renderEntry(e) + "\n")
	}

	b.WriteString("\n" + titleStyle.Render("SANDBOX") + "\n")
	b.WriteString(m.runtime.String() + "\n" + m.hostURL + "\n")
	if m.current.Rating > 0 {
		b.WriteString("\n" + stars(m.current.Rating) + "\n")
	}

	width := m.width - m.logWidth() - 4
	return stateStyle.Width(width).Height(m.viewport.Height).Render(b.String())
}

func (m model) renderHistory() string {
	history := m.session.History()
	if len(history) == 0 {
		return "No games yet."
	}
	var b strings.Builder
	for i, rec := range history {
		fmt.Fprintf(&b, "%2d. %s [%s] %s %s\n", i+1, rec.Title(), rec.Request.Genre.Title(),
			stars(rec.Rating), rec.CreatedAt.Format(time.DateOnly))
	}
	return strings.TrimRight(b.String(), "\n")
}

var iconGlyphs = map[models.IconClass]string{
	models.IconDirectionalPad:  "✥",
	models.IconDirectionalKeys: "←↑↓→",
	models.IconPointerMove:     "⇱",
	models.IconPointerClick:    "⊙",
	models.IconActionKey:       "␣",
	models.IconOther:           "⌨",
}

func renderControl(c models.ControlDescriptor) string {
	s := iconGlyphs[c.Icon] + " " + c.Label
	if c.Key != "" {
		s += " (" + c.Key + ")"
	}
	return s
}

const sliderCells = 10

func renderEntry(e gameconfig.Entry) string {
	var value string
	switch e.Widget {
	case gameconfig.WidgetSlider:
		v, _ := e.Value.(float64)
		filled := int(math.Round(math.Max(0, math.Min(1, v)) * sliderCells))
		value = strings.Repeat("█", filled) + strings.Repeat("░", sliderCells-filled) + " " + e.Display()
	case gameconfig.WidgetColor:
		swatch := lipgloss.NewStyle().Background(lipgloss.Color(e.Display())).Render("  ")
		value = swatch + " " + e.Display()
	case gameconfig.WidgetToggle:
		value = "off"
		if on, _ := e.Value.(bool); on {
			value = "on"
		}
	case gameconfig.WidgetWaveform:
		value = e.Display() + " ∿"
	default:
		value = e.Display()
	}
	return e.Key + ": " + value
}

func stars(n int) string {
	n = max(0, min(n, models.MaxRating))
	return strings.Repeat("★", n) + strings.Repeat("☆", models.MaxRating-n)
}

func (m model) generate(req models.GenerationRequest) tea.Cmd {
	return func() tea.Msg {
		rec, err := m.session.Generate(context.Background(), req)
		if err != nil {
			return errMsg{err}
		}
		return gameGeneratedMsg{rec}
	}
}

func (m model) reset() tea.Cmd {
	return func() tea.Msg {
		if err := m.session.Reset(context.Background()); err != nil {
			return errMsg{err}
		}
		return statusMsg("Game restarted.")
	}
}

// Notifier forwards sandbox transitions to a running program. Notify never
// blocks, so it is safe to call from inside Update.
type Notifier struct {
	ch chan sandbox.State
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan sandbox.State, 64)}
}

// Notify is meant for sandbox.Options.OnState.
func (n *Notifier) Notify(s sandbox.State) {
	select {
	case n.ch <- s:
	default:
	}
}

func (n *Notifier) forward(p *tea.Program, done <-chan struct{}) {
	for {
		select {
		case s := <-n.ch:
			p.Send(RuntimeStateMsg(s))
		case <-done:
			return
		}
	}
}

func Run(sess *session.Session, hostURL string, n *Notifier) error {
	p := tea.NewProgram(NewModel(sess, hostURL), tea.WithAltScreen())
	if n != nil {
		done := make(chan struct{})
		defer close(done)
		go n.forward(p, done)
	}
	_, err := p.Run()
	return err
}
