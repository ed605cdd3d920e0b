package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/JohnDeved/addmovie/internal/poster"
	"github.com/JohnDeved/addmovie/internal/scrape"
	"github.com/JohnDeved/addmovie/internal/store"
	"github.com/JohnDeved/addmovie/internal/util"
)

const (
	pollInterval        = 100 * time.Millisecond
	doubleClickInterval = 500 * time.Millisecond
	// Screen rows above the result list: title, input, rule.
	listTop = 3
)

// Finder turns a free-text query into records. It may block on the network.
type Finder interface {
	Find(ctx context.Context, query string) []scrape.Record
}

type focus int

const (
	focusInput focus = iota
	focusList
)

// Messages
type pollMsg struct{}

type statusClearMsg struct{ id int }

type posterUpdateMsg struct{}

type initialSearchMsg struct{}

type existsMsg struct {
	rec    scrape.Record
	exists bool
	err    error
}

type savedMsg struct {
	rec scrape.Record
	err error
}

// searchDoneMsg is the only message a search worker puts on the inbox.
type searchDoneMsg struct {
	query   string
	records []scrape.Record
}

// Model is the main Bubble Tea model.
type Model struct {
	finder  Finder
	store   store.Store
	posters *poster.Manager
	log     zerolog.Logger

	input     textinput.Model
	results   resultsModel
	spinner   spinner.Model
	focus     focus
	searching bool
	// Completed searches arrive here; capacity 1 since at most one worker runs.
	inbox chan any

	selectAll    bool
	confirm      *scrape.Record
	initialQuery string

	statusMsg string
	statusErr bool
	statusID  int

	lastClickRow int
	lastClickAt  time.Time
	now          func() time.Time

	width  int
	height int
}

// NewModel creates the TUI model. posters may be nil to disable poster
// fetching.
func NewModel(f Finder, st store.Store, posters *poster.Manager, log zerolog.Logger) Model {
	ti := textinput.New()
	ti.Placeholder = "Movie or series title..."
	ti.CharLimit = 256
	ti.Width = 60
	ti.Prompt = "Search: "
	ti.PromptStyle = searchPromptStyle
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		finder:       f,
		store:        st,
		posters:      posters,
		log:          log,
		input:        ti,
		results:      newResultsModel(),
		spinner:      sp,
		inbox:        make(chan any, 1),
		lastClickRow: -1,
		now:          time.Now,
	}
}

// WithQuery prefills the search input and searches it as soon as the
// program starts.
func (m Model) WithQuery(query string) Model {
	m.input.SetValue(query)
	m.initialQuery = strings.TrimSpace(query)
	return m
}

func (m Model) Init() tea.Cmd {
	if m.initialQuery == "" {
		return textinput.Blink
	}
	return tea.Batch(textinput.Blink, func() tea.Msg { return initialSearchMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(20, m.width-len(m.input.Prompt)-2)
		m.results.height = max(3, m.height-listTop-4)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case pollMsg:
		select {
		case w := <-m.inbox:
			return m.handleWorker(w)
		default:
		}
		if m.searching {
			return m, pollInbox()
		}
		return m, nil

	case existsMsg:
		if msg.err != nil {
			return m, m.setError(fmt.Errorf("checking database: %w", msg.err))
		}
		if msg.exists {
			rec := msg.rec
			m.confirm = &rec
			return m, m.setStickyStatus("Movie already in database")
		}
		return m, m.insert(msg.rec)

	case savedMsg:
		if msg.err != nil {
			return m, m.setError(fmt.Errorf("saving %s: %w", msg.rec.ID, msg.err))
		}
		return m, m.setStatus("Saved: " + msg.rec.Label())

	case posterUpdateMsg:
		return m, nil

	case initialSearchMsg:
		if m.searching || m.initialQuery == "" {
			return m, nil
		}
		query := m.initialQuery
		m.initialQuery = ""
		return m.startSearch(query)

	case spinner.TickMsg:
		if !m.searching {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusClearMsg:
		if msg.id == m.statusID {
			m.statusMsg = ""
			m.statusErr = false
		}
		return m, nil
	}

	if m.focus == focusInput && !m.searching {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleWorker applies a message received from a search worker.
func (m Model) handleWorker(msg any) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case searchDoneMsg:
		m.searching = false
		m.log.Info().Str("query", msg.query).Int("results", len(msg.records)).Msg("Search finished")
		m.results.setRecords(msg.records)
		if len(msg.records) == 0 {
			m.input.Focus()
			m.focus = focusInput
			return m, m.setStatus(fmt.Sprintf("No titles found for %q", msg.query))
		}
		m.statusMsg = ""
		m.statusErr = false
		m.statusID++
		m.setFocus(focusList)
		return m, m.queuePoster()
	default:
		panic(fmt.Sprintf("tui: unknown message on search channel: %T", msg))
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "ctrl+q", "ctrl+c":
		return m, tea.Quit
	}

	if m.searching {
		return m, nil
	}

	if m.confirm != nil {
		switch key {
		case "y", "Y":
			rec := *m.confirm
			m.confirm = nil
			m.log.Info().Str("imdb_id", rec.ID).Msg("Replacing saved record")
			return m, m.insert(rec)
		case "n", "N", "esc":
			m.confirm = nil
			return m, m.setStatus("Kept existing record")
		}
		return m, nil
	}

	if key == "tab" || key == "shift+tab" {
		if m.focus == focusInput {
			m.setFocus(focusList)
			m.results.goHome()
			return m, m.queuePoster()
		}
		m.setFocus(focusInput)
		return m, nil
	}

	if m.focus == focusInput {
		return m.handleInputKey(key, msg)
	}
	return m.handleListKey(key)
}

func (m Model) handleInputKey(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key {
	case "enter":
		m.selectAll = false
		query := strings.TrimSpace(m.input.Value())
		if query == "" {
			return m, nil
		}
		return m.startSearch(query)
	case "ctrl+a":
		m.selectAll = m.input.Value() != ""
		m.input.CursorEnd()
		return m, nil
	case "esc":
		if m.selectAll {
			m.selectAll = false
			return m, nil
		}
	}

	if m.selectAll {
		m.selectAll = false
		switch {
		case msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace:
			m.input.SetValue("")
		case key == "backspace" || key == "delete":
			m.input.SetValue("")
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleListKey(key string) (tea.Model, tea.Cmd) {
	changed := false
	switch key {
	case "up", "k":
		changed = m.results.moveUp()
	case "down", "j":
		changed = m.results.moveDown()
	case "pgup", "ctrl+u":
		changed = m.results.pageUp()
	case "pgdown", "ctrl+d":
		changed = m.results.pageDown()
	case "home", "g":
		changed = m.results.goHome()
	case "end", "G":
		changed = m.results.goEnd()
	case "enter":
		return m.submit()
	case "/", "i", "esc":
		m.setFocus(focusInput)
	case "q":
		return m, tea.Quit
	}
	if changed {
		return m, m.queuePoster()
	}
	return m, nil
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.searching || m.confirm != nil {
		return m, nil
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		if m.results.moveUp() {
			return m, m.queuePoster()
		}
	case tea.MouseButtonWheelDown:
		if m.results.moveDown() {
			return m, m.queuePoster()
		}
	case tea.MouseButtonLeft:
		if msg.Action != tea.MouseActionPress {
			return m, nil
		}
		idx := m.results.rowAt(msg.Y - listTop)
		if idx < 0 {
			return m, nil
		}
		now := m.now()
		double := idx == m.lastClickRow && now.Sub(m.lastClickAt) <= doubleClickInterval
		m.lastClickRow, m.lastClickAt = idx, now
		m.setFocus(focusList)
		changed := m.results.moveTo(idx)
		if double {
			m.lastClickRow = -1
			return m.submit()
		}
		if changed {
			return m, m.queuePoster()
		}
	}
	return m, nil
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	m.results.focused = f == focusList
	if f == focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

// startSearch locks the input and hands query to a worker goroutine.
func (m Model) startSearch(query string) (tea.Model, tea.Cmd) {
	m.searching = true
	m.confirm = nil
	m.results.clear()
	m.setFocus(focusInput)
	m.input.Blur()
	status := m.setStickyStatus("Searching movie: " + query)
	m.log.Info().Str("query", query).Msg("Search started")

	finder, inbox := m.finder, m.inbox
	go func() {
		inbox <- searchDoneMsg{query: query, records: finder.Find(context.Background(), query)}
	}()
	return m, tea.Batch(status, m.spinner.Tick, pollInbox())
}

func pollInbox() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return pollMsg{}
	})
}

// submit saves the selected record, asking first if it is already stored.
func (m Model) submit() (tea.Model, tea.Cmd) {
	sel := m.results.selected()
	if sel == nil {
		return m, nil
	}
	rec, st := *sel, m.store
	return m, func() tea.Msg {
		ok, err := st.Exists(context.Background(), rec)
		return existsMsg{rec: rec, exists: ok, err: err}
	}
}

func (m Model) insert(rec scrape.Record) tea.Cmd {
	st := m.store
	return func() tea.Msg {
		return savedMsg{rec: rec, err: st.Insert(context.Background(), rec)}
	}
}

// queuePoster starts fetching the selected record's poster.
func (m Model) queuePoster() tea.Cmd {
	if m.posters == nil {
		return nil
	}
	sel := m.results.selected()
	if sel == nil {
		return nil
	}
	if _, _, err := m.posters.Enqueue(*sel); err != nil && !errors.Is(err, poster.ErrNoPoster) {
		m.log.Warn().Err(err).Str("imdb_id", sel.ID).Msg("Could not queue poster")
	}
	return nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("  IMDb & Amazon Scraper  "))
	sb.WriteString("\n")
	sb.WriteString(padToWidth(m.input.View(), m.width))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")
	sb.WriteString(m.results.view(m.width))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")
	sb.WriteString(padToWidth(m.posterLine(), m.width))
	sb.WriteString("\n")
	sb.WriteString(statusBarStyle.Width(m.width).Render(m.statusLine()))
	return sb.String()
}

func (m Model) statusLine() string {
	if m.confirm != nil {
		return confirmStyle.Render(fmt.Sprintf("%q already in DB. Replace? (y/n)", m.confirm.Title))
	}
	if m.searching {
		return m.spinner.View() + " " + m.statusMsg
	}
	if m.statusMsg != "" {
		if m.statusErr {
			return errorStyle.Render(m.statusMsg)
		}
		return m.statusMsg
	}
	if m.focus == focusList {
		return "j/k:navigate  Enter:save  Tab/esc:search  Ctrl+Q:quit"
	}
	return "Enter:search  Tab:results  Ctrl+A:select query  Ctrl+Q:quit"
}

func (m Model) posterLine() string {
	sel := m.results.selected()
	if sel == nil {
		return ""
	}
	if sel.ImageURL == "" {
		return helpStyle.Render("  No poster")
	}
	if m.posters == nil {
		return ""
	}
	item, ok := m.posters.Lookup(sel.ID)
	if !ok {
		return ""
	}
	status, err := item.State()
	switch status {
	case poster.StatusCompleted:
		line := "  Poster: " + util.TruncatePath(item.DestPath, max(20, m.width-20))
		if n := item.DoneBytes.Load(); n > 0 {
			line += " (" + util.FormatBytes(n) + ")"
		}
		return successStyle.Render(line)
	case poster.StatusFailed:
		return errorStyle.Render(fmt.Sprintf("  Poster: %v", err))
	case poster.StatusActive:
		if total := item.TotalBytes.Load(); total > 0 {
			progress := float64(item.DoneBytes.Load()) / float64(total)
			return "  Poster: " + renderProgressBar(progress, 20)
		}
	}
	return helpStyle.Render("  Poster: " + status.String())
}

func renderProgressBar(progress float64, width int) string {
	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	empty := width - filled

	bar := progressBarFilled.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", empty))

	return fmt.Sprintf("[%s] %3.0f%%", bar, progress*100)
}

// setStatus shows msg for a few seconds.
func (m *Model) setStatus(msg string) tea.Cmd {
	m.statusMsg = msg
	m.statusErr = false
	m.statusID++
	id := m.statusID
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return statusClearMsg{id: id}
	})
}

// setStickyStatus shows msg until something else replaces it.
func (m *Model) setStickyStatus(msg string) tea.Cmd {
	m.statusMsg = msg
	m.statusErr = false
	m.statusID++
	return nil
}

func (m *Model) setError(err error) tea.Cmd {
	m.log.Error().Err(err).Msg("Action failed")
	cmd := m.setStatus(err.Error())
	m.statusErr = true
	return cmd
}

// Run starts the TUI, searching query right away when it is not empty.
func Run(f Finder, st store.Store, posters *poster.Manager, log zerolog.Logger, query string) error {
	m := NewModel(f, st, posters, log).WithQuery(query)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	if posters != nil {
		posters.SetOnChange(func() {
			p.Send(posterUpdateMsg{})
		})
	}

	_, err := p.Run()
	return err
}
