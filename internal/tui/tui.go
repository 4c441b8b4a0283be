// Package tui provides the BubbleTea interactive explorer for a built
// index: a text input for a comma-separated query vector plus a
// live-updating ranked (ordinal, score) result list.
//
// Layout:
//
//	┌─────────────────────────────────────┐
//	│  annbench  index explorer           │  ← header
//	│  ❯ <comma-separated query vector>   │  ← search bar
//	│  ─────────────────────────────────  │  ← divider
//	│  0.94  ordinal 17                   │  ← results
//	│  ...                                │
//	│  ─────────────────────────────────  │  ← divider
//	│  3 results    ↑↓ nav  ^q quit       │  ← status bar
//	└─────────────────────────────────────┘
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/arnavk/pqgraph/internal/engine"
)

var (
	colorAccent  = lipgloss.Color("#7C6AF7")
	colorDim     = lipgloss.Color("#555555")
	colorMuted   = lipgloss.Color("#888888")
	colorText    = lipgloss.Color("#DDDDDD")
	colorSubdued = lipgloss.Color("#444444")
	colorScore   = lipgloss.Color("#5ECEF5")
	colorErr     = lipgloss.Color("#FF6B6B")

	sTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	sAccent  = lipgloss.NewStyle().Foreground(colorAccent)
	sDim     = lipgloss.NewStyle().Foreground(colorDim)
	sMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	sScore   = lipgloss.NewStyle().Foreground(colorScore).Bold(true)
	sErr     = lipgloss.NewStyle().Foreground(colorErr)
	sSel     = lipgloss.NewStyle().Background(lipgloss.Color("#1E1A3A")).Foreground(colorText)
	sHint    = lipgloss.NewStyle().Foreground(colorDim).Background(lipgloss.Color("#111111"))
	sDivider = lipgloss.NewStyle().Foreground(colorSubdued)
)

type spinTickMsg struct{}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func spinTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg { return spinTickMsg{} })
}

type resultRow struct {
	ordinal uint32
	score   float32
}

type searchResultMsg []resultRow
type errMsg struct{ err error }
type debounceMsg struct {
	query string
	id    int
}

// Model is the BubbleTea application model over a single loaded Index.
type Model struct {
	idx        *engine.Index
	input      textinput.Model
	results    []resultRow
	cursor     int
	err        error
	width      int
	height     int
	searching  bool
	spinFrame  int
	debounceID int
	lastQuery  string
	topK       int
}

// New creates a TUI model backed by idx, returning up to topK results per
// query.
func New(idx *engine.Index, topK int) Model {
	ti := textinput.New()
	ti.Placeholder = "0.1, 0.2, -0.4, ..."
	ti.Focus()
	ti.CharLimit = 512
	ti.Width = 60
	ti.PromptStyle = sAccent
	ti.Prompt = "❯ "
	ti.TextStyle = lipgloss.NewStyle().Foreground(colorText)
	if topK <= 0 {
		topK = 10
	}
	return Model{idx: idx, input: ti, topK: topK}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, spinTick())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = m.width - 8
		return m, nil

	case spinTickMsg:
		m.spinFrame = (m.spinFrame + 1) % len(spinnerFrames)
		return m, spinTick()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q":
			return m, tea.Quit
		case "up", "ctrl+p":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "ctrl+n":
			if m.cursor < len(m.results)-1 {
				m.cursor++
			}
			return m, nil
		}

	case debounceMsg:
		if msg.id == m.debounceID && msg.query == m.input.Value() {
			if strings.TrimSpace(msg.query) == "" {
				m.searching = false
				m.results = nil
				return m, nil
			}
			m.searching = true
			m.lastQuery = msg.query
			return m, searchCmd(m.idx, msg.query, m.topK)
		}
		return m, nil

	case searchResultMsg:
		m.searching = false
		m.results = []resultRow(msg)
		m.cursor = 0
		m.err = nil
		return m, nil

	case errMsg:
		m.searching = false
		m.err = msg.err
		return m, nil
	}

	prevVal := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != prevVal {
		m.debounceID++
		id := m.debounceID
		q := m.input.Value()
		return m, tea.Batch(cmd, debounceCmd(q, id, 280*time.Millisecond))
	}
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return ""
	}
	var b strings.Builder
	w := m.width
	divider := sDivider.Render(strings.Repeat("─", clamp(w-2, 10, 200)))

	left := "  " + sTitle.Render("annbench") + "  " + sMuted.Render("index explorer")
	right := sDim.Render(fmt.Sprintf("%d nodes · dim %d", m.idx.Size(), m.idx.Dimension()))
	fmt.Fprintln(&b, padBetween(left, right, w))
	fmt.Fprintln(&b, "  "+m.input.View())
	fmt.Fprintln(&b, "  "+divider)

	switch {
	case m.err != nil:
		fmt.Fprintln(&b, sErr.Render("  error: "+m.err.Error()))
	case m.searching:
		frame := spinnerFrames[m.spinFrame]
		fmt.Fprintln(&b, "  "+sAccent.Render(frame)+"  "+sMuted.Render("searching…"))
	case len(m.results) == 0 && m.input.Value() == "":
		fmt.Fprintln(&b, "")
		fmt.Fprintln(&b, sMuted.Render("  Type a comma-separated query vector to search."))
	case len(m.results) == 0:
		fmt.Fprintln(&b, "")
		fmt.Fprintln(&b, sMuted.Render("  no results for ")+sAccent.Render("\""+m.lastQuery+"\""))
	default:
		m.renderResults(&b)
	}

	b.WriteString("\n  " + divider + "\n")
	m.renderStatusBar(&b)
	return b.String()
}

func (m Model) renderResults(b *strings.Builder) {
	maxRows := clamp(m.height-7, 1, 1000)
	for i, r := range m.results {
		if i >= maxRows {
			fmt.Fprintf(b, "  %s\n", sDim.Render(fmt.Sprintf("  … %d more results", len(m.results)-i)))
			break
		}
		score := fmt.Sprintf("%.4f", r.score)
		line := fmt.Sprintf("  %s  ordinal %d", sScore.Render(score), r.ordinal)
		if i == m.cursor {
			raw := score + "  ordinal " + fmt.Sprint(r.ordinal)
			pad := clamp(m.width-len(raw)-3, 0, m.width)
			line = sSel.Render("  " + sScore.Render(score) + "  ordinal " + fmt.Sprint(r.ordinal) + strings.Repeat(" ", pad))
		}
		fmt.Fprintln(b, line)
	}
}

func (m Model) renderStatusBar(b *strings.Builder) {
	var left string
	if len(m.results) > 0 {
		left = sAccent.Render(fmt.Sprintf("  %d result", len(m.results)))
		if len(m.results) != 1 {
			left += sAccent.Render("s")
		}
	} else {
		left = sDim.Render("  no results")
	}
	right := sHint.Render("  ↑↓ nav  ^q quit  ")
	fmt.Fprint(b, padBetween(left, right, m.width))
}

func debounceCmd(query string, id int, delay time.Duration) tea.Cmd {
	return func() tea.Msg {
		time.Sleep(delay)
		return debounceMsg{query: query, id: id}
	}
}

func searchCmd(idx *engine.Index, query string, topK int) tea.Cmd {
	return func() tea.Msg {
		vec, err := parseVector(query)
		if err != nil {
			return errMsg{err}
		}
		res, _, err := idx.Search(context.Background(), vec, topK, topK*2, nil)
		if err != nil {
			return errMsg{err}
		}
		rows := make([]resultRow, len(res.Ordinals))
		for i := range res.Ordinals {
			rows[i] = resultRow{ordinal: res.Ordinals[i], score: res.Scores[i]}
		}
		return searchResultMsg(rows)
	}
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, fmt.Errorf("parse query vector: %w", err)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func padBetween(left, right string, width int) string {
	lv := visibleLen(left)
	rv := visibleLen(right)
	gap := width - lv - rv - 2
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func visibleLen(s string) int {
	n := 0
	inEsc := false
	for _, c := range s {
		if c == '\x1b' {
			inEsc = true
		}
		if inEsc {
			if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
				inEsc = false
			}
			continue
		}
		n++
	}
	return n
}
