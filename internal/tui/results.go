package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/JohnDeved/addmovie/internal/scrape"
)

// resultsModel is the scrolling list of records from the last search.
type resultsModel struct {
	records []scrape.Record
	cursor  int
	offset  int
	height  int
	focused bool
}

func newResultsModel() resultsModel {
	return resultsModel{height: 10}
}

func (r *resultsModel) pageSize() int {
	if r.height > 0 {
		return r.height
	}
	return 1
}

func (r *resultsModel) normalizeViewport() {
	rows := r.pageSize()
	if len(r.records) == 0 {
		r.cursor = 0
		r.offset = 0
		return
	}
	if r.cursor < 0 {
		r.cursor = 0
	}
	if r.cursor >= len(r.records) {
		r.cursor = len(r.records) - 1
	}
	if r.cursor < r.offset {
		r.offset = r.cursor
	}
	if r.cursor >= r.offset+rows {
		r.offset = r.cursor - rows + 1
	}
	maxOffset := len(r.records) - rows
	if maxOffset < 0 {
		maxOffset = 0
	}
	if r.offset > maxOffset {
		r.offset = maxOffset
	}
	if r.offset < 0 {
		r.offset = 0
	}
}

func (r *resultsModel) setRecords(records []scrape.Record) {
	r.records = records
	r.cursor = 0
	r.offset = 0
}

func (r *resultsModel) clear() {
	r.setRecords(nil)
	r.focused = false
}

func (r *resultsModel) selected() *scrape.Record {
	r.normalizeViewport()
	if r.cursor >= 0 && r.cursor < len(r.records) {
		return &r.records[r.cursor]
	}
	return nil
}

// The movement helpers report whether the selection changed.

func (r *resultsModel) moveUp() bool {
	if r.cursor == 0 {
		return false
	}
	r.cursor--
	r.normalizeViewport()
	return true
}

func (r *resultsModel) moveDown() bool {
	if r.cursor >= len(r.records)-1 {
		return false
	}
	r.cursor++
	r.normalizeViewport()
	return true
}

func (r *resultsModel) moveTo(i int) bool {
	if i < 0 || i >= len(r.records) || i == r.cursor {
		return false
	}
	r.cursor = i
	r.normalizeViewport()
	return true
}

func (r *resultsModel) goHome() bool { return r.moveTo(0) }

func (r *resultsModel) goEnd() bool { return r.moveTo(len(r.records) - 1) }

func (r *resultsModel) pageUp() bool { return r.moveTo(max(0, r.cursor-r.pageSize())) }

func (r *resultsModel) pageDown() bool {
	return r.moveTo(min(len(r.records)-1, r.cursor+r.pageSize()))
}

// rowAt maps a screen row inside the list to a record index, or -1.
func (r *resultsModel) rowAt(line int) int {
	if line < 0 || line >= r.pageSize() {
		return -1
	}
	i := r.offset + line
	if i >= len(r.records) {
		return -1
	}
	return i
}

func (r *resultsModel) view(width int) string {
	var sb strings.Builder
	r.normalizeViewport()

	rowWidth := width - selectedStyle.GetHorizontalFrameSize()
	if rowWidth < 12 {
		rowWidth = 12
	}

	end := min(r.offset+r.pageSize(), len(r.records))
	lines := 0
	for i := r.offset; i < end; i++ {
		sb.WriteString(renderRecordRow(r.records[i], rowWidth, i == r.cursor, r.focused))
		sb.WriteString("\n")
		lines++
	}
	for ; lines < r.pageSize(); lines++ {
		sb.WriteString("\n")
	}

	if len(r.records) > r.pageSize() {
		sb.WriteString(padToWidth(helpStyle.Render(
			fmt.Sprintf("  %d/%d", r.cursor+1, len(r.records)),
		), width))
	}
	return sb.String()
}

func renderRecordRow(rec scrape.Record, rowWidth int, isSelected, focused bool) string {
	label := truncateText(rec.Label(), max(12, rowWidth-4))
	var line string
	if rec.Fallback {
		line = "  " + fallbackStyle.Render(label)
	} else {
		line = "  " + titleRowStyle.Render(label)
	}

	switch {
	case isSelected && focused:
		return selectedStyle.Render(padToWidth(line, rowWidth))
	case isSelected:
		return selectedBlurredStyle.Render(padToWidth(line, rowWidth))
	default:
		return normalStyle.Render(padToWidth(line, rowWidth))
	}
}

func truncateText(s string, maxWidth int) string {
	if maxWidth < 4 {
		return s
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	r := []rune(s)
	if len(r) <= maxWidth {
		return s
	}
	return string(r[:maxWidth-3]) + "..."
}

func padToWidth(s string, width int) string {
	pad := width - lipgloss.Width(s)
	if pad <= 0 {
		return s
	}
	return s + strings.Repeat(" ", pad)
}
