package tui

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/JohnDeved/addmovie/internal/poster"
	"github.com/JohnDeved/addmovie/internal/scrape"
)

var testRecords = []scrape.Record{
	{ID: "tt0133093", Title: "The Matrix", Year: "1999", Type: "R", ImageURL: "MV5BNzQz", AmazonID: "B000HAB4KS"},
	{ID: "tt0234215", Title: "The Matrix Reloaded", Year: "2003", Type: "R", ImageURL: "MV5BODE0"},
	{ID: "tt9999999", Title: "Matrix Special", Year: "0000", Type: "NA", Fallback: true},
}

type fakeFinder struct {
	mu      sync.Mutex
	queries []string
	release chan struct{}
	records []scrape.Record
}

func (f *fakeFinder) Find(ctx context.Context, query string) []scrape.Record {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return f.records
}

type fakeStore struct {
	existing map[string]bool
	inserted []scrape.Record
}

func (s *fakeStore) Exists(_ context.Context, rec scrape.Record) (bool, error) {
	return s.existing[rec.ID], nil
}

func (s *fakeStore) Insert(_ context.Context, rec scrape.Record) error {
	s.inserted = append(s.inserted, rec)
	return nil
}

type fakeDownloader struct{}

func (fakeDownloader) Download(context.Context, string) (io.ReadCloser, int64, error) {
	return io.NopCloser(strings.NewReader("JPEG")), 4, nil
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func waitForSearch(t *testing.T, m Model) Model {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.searching {
		if time.Now().After(deadline) {
			t.Fatalf("search did not finish")
		}
		time.Sleep(5 * time.Millisecond)
		m, _ = update(t, m, pollMsg{})
	}
	return m
}

func searchedModel(t *testing.T, st *fakeStore, posters *poster.Manager) Model {
	t.Helper()
	m := NewModel(&fakeFinder{records: testRecords}, st, posters, zerolog.Nop())
	m = typeText(t, m, "matrix")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	return waitForSearch(t, m)
}

func TestSearch_LocksInputAndDeliversResults(t *testing.T) {
	finder := &fakeFinder{records: testRecords, release: make(chan struct{})}
	m := NewModel(finder, &fakeStore{}, nil, zerolog.Nop())
	m = typeText(t, m, "  matrix ")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.searching || cmd == nil {
		t.Fatalf("expected search to start")
	}
	if m.statusMsg != "Searching movie: matrix" {
		t.Fatalf("status = %q", m.statusMsg)
	}

	m = typeText(t, m, "xyz")
	if got := m.input.Value(); got != "  matrix " {
		t.Fatalf("input should be locked while searching, got %q", got)
	}
	m, _ = update(t, m, pollMsg{})
	if !m.searching {
		t.Fatalf("poll before completion should keep searching")
	}

	close(finder.release)
	m = waitForSearch(t, m)

	if len(m.results.records) != len(testRecords) {
		t.Fatalf("expected %d results, got %d", len(testRecords), len(m.results.records))
	}
	if m.focus != focusList || m.results.cursor != 0 {
		t.Fatalf("expected list focus on row 0, got focus=%v cursor=%d", m.focus, m.results.cursor)
	}
	if m.statusMsg != "" {
		t.Fatalf("status should be cleared, got %q", m.statusMsg)
	}
	if len(finder.queries) != 1 || finder.queries[0] != "matrix" {
		t.Fatalf("queries = %v", finder.queries)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(t, m, "!")
	if got := m.input.Value(); got != "  matrix !" {
		t.Fatalf("input should be unlocked after search, got %q", got)
	}
}

func TestSearch_EmptyQueryIgnored(t *testing.T) {
	m := NewModel(&fakeFinder{}, &fakeStore{}, nil, zerolog.Nop())
	m = typeText(t, m, "   ")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.searching || cmd != nil {
		t.Fatalf("blank query should not start a search")
	}
}

func TestSearch_NoResultsKeepsInputFocus(t *testing.T) {
	m := NewModel(&fakeFinder{}, &fakeStore{}, nil, zerolog.Nop())
	m = typeText(t, m, "zzzz")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = waitForSearch(t, m)
	if m.focus != focusInput || !strings.Contains(m.statusMsg, "No titles found") {
		t.Fatalf("focus=%v status=%q", m.focus, m.statusMsg)
	}
}

func TestPoll_UnknownMessagePanics(t *testing.T) {
	m := NewModel(&fakeFinder{}, &fakeStore{}, nil, zerolog.Nop())
	m.inbox <- "bogus"

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on unknown worker message")
		}
	}()
	m.Update(pollMsg{})
}

func TestSubmit_InsertsNewRecord(t *testing.T) {
	st := &fakeStore{}
	m := searchedModel(t, st, nil)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("expected exists check")
	}
	m, cmd = update(t, m, cmd())
	if m.confirm != nil || cmd == nil {
		t.Fatalf("new record should be inserted without confirmation")
	}
	m, _ = update(t, m, cmd())

	if len(st.inserted) != 1 || st.inserted[0].ID != "tt0234215" {
		t.Fatalf("inserted = %+v", st.inserted)
	}
	if !strings.HasPrefix(m.statusMsg, "Saved: The Matrix Reloaded 2003 R") {
		t.Fatalf("status = %q", m.statusMsg)
	}
}

func TestSubmit_ExistingRecordAsksBeforeReplacing(t *testing.T) {
	st := &fakeStore{existing: map[string]bool{"tt0133093": true}}
	m := searchedModel(t, st, nil)
	m.width = 120

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, cmd())
	if m.confirm == nil || m.confirm.ID != "tt0133093" {
		t.Fatalf("expected replace confirmation")
	}
	if !strings.Contains(m.statusLine(), `"The Matrix" already in DB. Replace? (y/n)`) {
		t.Fatalf("status line = %q", m.statusLine())
	}

	declined, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	if declined.confirm != nil || len(st.inserted) != 0 {
		t.Fatalf("n should dismiss without inserting")
	}
	if cmd == nil {
		t.Fatalf("expected transient status")
	}

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	if m.confirm != nil || cmd == nil {
		t.Fatalf("y should insert")
	}
	update(t, m, cmd())
	if len(st.inserted) != 1 || st.inserted[0].ID != "tt0133093" {
		t.Fatalf("inserted = %+v", st.inserted)
	}
}

func TestTab_CyclesFocus(t *testing.T) {
	m := searchedModel(t, &fakeStore{}, nil)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != focusInput || !m.input.Focused() {
		t.Fatalf("tab from list should focus input")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != focusList || m.results.cursor != 0 {
		t.Fatalf("tab from input should select the first row, cursor=%d", m.results.cursor)
	}
}

func TestCtrlA_ReplacesQuery(t *testing.T) {
	m := NewModel(&fakeFinder{}, &fakeStore{}, nil, zerolog.Nop())
	m = typeText(t, m, "old query")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlA})
	m = typeText(t, m, "new")
	if got := m.input.Value(); got != "new" {
		t.Fatalf("value = %q", got)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlA})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	if got := m.input.Value(); got != "" {
		t.Fatalf("backspace over selection should clear, got %q", got)
	}
}

func TestMouse_DoubleClickSubmits(t *testing.T) {
	st := &fakeStore{}
	m := searchedModel(t, st, nil)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	click := tea.MouseMsg{Y: listTop + 1, Button: tea.MouseButtonLeft, Action: tea.MouseActionPress}
	m, _ = update(t, m, click)
	if m.results.cursor != 1 {
		t.Fatalf("click should select row 1, got %d", m.results.cursor)
	}
	clock = clock.Add(200 * time.Millisecond)
	m, cmd := update(t, m, click)
	if cmd == nil {
		t.Fatalf("double click should submit")
	}
	m, cmd = update(t, m, cmd())
	update(t, m, cmd())
	if len(st.inserted) != 1 || st.inserted[0].ID != "tt0234215" {
		t.Fatalf("inserted = %+v", st.inserted)
	}
}

func TestSelection_QueuesPoster(t *testing.T) {
	posters := poster.NewManager(fakeDownloader{}, "http://cdn.example/images/M/", t.TempDir(), 1, zerolog.Nop())
	m := searchedModel(t, &fakeStore{}, posters)
	defer posters.Wait()

	if _, ok := posters.Lookup("tt0133093"); !ok {
		t.Fatalf("first result's poster should be queued after search")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if _, ok := posters.Lookup("tt0234215"); !ok {
		t.Fatalf("moving the selection should queue its poster")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if _, ok := posters.Lookup("tt9999999"); ok {
		t.Fatalf("records without a poster should not be queued")
	}
	m.width = 100
	if !strings.Contains(m.posterLine(), "No poster") {
		t.Fatalf("poster line = %q", m.posterLine())
	}
}

func TestView_RendersResults(t *testing.T) {
	m := searchedModel(t, &fakeStore{}, nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	out := m.View()
	for _, want := range []string{"The Matrix 1999 R", "The Matrix Reloaded 2003 R", "Matrix Special 0000 NA"} {
		if !strings.Contains(out, want) {
			t.Fatalf("view missing %q:\n%s", want, out)
		}
	}
}

func TestQuitKeys(t *testing.T) {
	m := NewModel(&fakeFinder{}, &fakeStore{}, nil, zerolog.Nop())
	for _, k := range []tea.KeyType{tea.KeyCtrlQ, tea.KeyCtrlC} {
		_, cmd := update(t, m, tea.KeyMsg{Type: k})
		if cmd == nil {
			t.Fatalf("expected quit command for %v", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("expected QuitMsg for %v", k)
		}
	}
}

func TestWithQuery_SearchesOnStart(t *testing.T) {
	finder := &fakeFinder{records: testRecords}
	m := NewModel(finder, &fakeStore{}, nil, zerolog.Nop()).WithQuery("the matrix")
	if m.input.Value() != "the matrix" {
		t.Fatalf("input not prefilled: %q", m.input.Value())
	}
	if m.Init() == nil {
		t.Fatalf("expected init command")
	}

	m, cmd := update(t, m, initialSearchMsg{})
	if !m.searching || cmd == nil {
		t.Fatalf("initial query should start a search")
	}
	m = waitForSearch(t, m)
	if len(finder.queries) != 1 || finder.queries[0] != "the matrix" {
		t.Fatalf("queries = %v", finder.queries)
	}

	m, cmd = update(t, m, initialSearchMsg{})
	if m.searching || cmd != nil {
		t.Fatalf("initial query must only run once")
	}
}
