// Package tui provides the Bubble Tea dashboard behind the view command.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/promptwatch/internal/record"
	"github.com/fakeyudi/promptwatch/internal/session"
)

// DefaultRefresh is how often the dashboard reloads its data.
const DefaultRefresh = 2 * time.Second

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	timeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	statusStyles = map[string]lipgloss.Style{
		"active":       lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true),
		"initializing": lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		"error":        lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		"stopped":      lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true),
	}

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

// ── Data ────────────────────

// Data is one refresh worth of dashboard content. Snapshot is nil when no
// monitor is running.
type Data struct {
	Snapshot *session.Snapshot
	Prompts  []*record.PromptRecord
}

// Source loads dashboard data.
type Source interface {
	Load(ctx context.Context) (Data, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Data, error)

func (f SourceFunc) Load(ctx context.Context) (Data, error) { return f(ctx) }

type dataMsg struct {
	data Data
	err  error
	at   time.Time
}

type tickMsg time.Time

// ── Tab definitions ─────────────────

type tabID int

const (
	tabMonitors tabID = iota
	tabSessions
	tabPrompts
	tabClosed
	tabCount
)

var tabNames = [tabCount]string{"Monitors", "Sessions", "Prompts", "Closed"}

// ── Model ────────────────────

// Model is the root Bubble Tea model for the dashboard.
type Model struct {
	source    Source
	refresh   time.Duration
	data      Data
	err       error
	updated   time.Time
	loaded    bool
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	// Prompts tab: cursor position and expanded set, keyed by record id
	promptCursor int
	expanded     map[string]bool
}

// New creates a dashboard reading from source every refresh.
func New(source Source, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return Model{source: source, refresh: refresh, expanded: map[string]bool{}}
}

func (m Model) load() tea.Cmd {
	source := m.source
	timeout := m.refresh
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		data, err := source.Load(ctx)
		return dataMsg{data: data, err: err, at: time.Now()}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return m.load() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
			return m, nil
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
			return m, nil
		case "1", "2", "3", "4":
			m.activeTab = tabID(msg.String()[0] - '1')
			return m, nil
		case "r":
			return m, m.load()
		case "up", "k":
			if m.activeTab == tabPrompts && m.promptCursor > 0 {
				m.promptCursor--
				m.rebuild(tabPrompts)
				return m, nil
			}
		case "down", "j":
			if m.activeTab == tabPrompts && m.promptCursor < len(m.data.Prompts)-1 {
				m.promptCursor++
				m.rebuild(tabPrompts)
				return m, nil
			}
		case "enter", " ":
			if m.activeTab == tabPrompts && len(m.data.Prompts) > 0 {
				id := m.data.Prompts[m.promptCursor].ID
				if m.expanded[id] {
					delete(m.expanded, id)
				} else {
					m.expanded[id] = true
				}
				m.rebuild(tabPrompts)
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil

	case tickMsg:
		return m, m.load()

	case dataMsg:
		m.err = msg.err
		if msg.err == nil {
			m.data = msg.data
			m.updated = msg.at
			m.loaded = true
			if m.promptCursor >= len(m.data.Prompts) {
				m.promptCursor = max(0, len(m.data.Prompts)-1)
			}
		}
		if m.ready {
			for t := tabID(0); t < tabCount; t++ {
				m.rebuild(t)
			}
		}
		return m, m.tick()
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  promptwatch  " + m.headline())

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-4 jump  r refresh  q quit"
	if m.activeTab == tabPrompts {
		hint += "  enter expand"
	}
	right := ""
	if !m.updated.IsZero() {
		right = "updated " + m.updated.Format("15:04:05")
	}
	pad := m.width - lipgloss.Width(hint) - lipgloss.Width(right) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + right)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

func (m Model) headline() string {
	switch {
	case m.err != nil:
		return "refresh failed"
	case !m.loaded:
		return "loading"
	case m.data.Snapshot == nil:
		return "no running monitor"
	default:
		return fmt.Sprintf("pid %d, %d monitor(s)", m.data.Snapshot.PID, len(m.data.Snapshot.Monitors))
	}
}

// ── Viewport management ───────────────────────────────────────────────────────

func (m *Model) initViewports() {
	// title(1) + tabRow(1) + statusBar(1) = 3 fixed rows
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Model) rebuild(t tabID) {
	m.viewports[t].SetContent(m.renderTab(t))
}

// ── Tab renderers ─────────────────────────────────────────────────────────────

func (m *Model) renderTab(t tabID) string {
	var body string
	switch t {
	case tabMonitors:
		body = m.renderMonitors()
	case tabSessions:
		body = m.renderSessions(false)
	case tabPrompts:
		body = m.renderPrompts()
	case tabClosed:
		body = m.renderSessions(true)
	}
	if m.err != nil {
		body = errStyle.Render("  refresh failed: "+m.err.Error()) + "\n" + body
	}
	return body
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func statusBadge(status string) string {
	style, ok := statusStyles[status]
	if !ok {
		style = dimStyle
	}
	return style.Render(strings.ToUpper(status))
}

func (m *Model) renderMonitors() string {
	var sb strings.Builder
	sb.WriteString(heading("Monitors"))
	snap := m.data.Snapshot
	if snap == nil || len(snap.Monitors) == 0 {
		sb.WriteString(dimStyle.Render("  (no running monitor; start one with `promptwatch run`)") + "\n")
		return sb.String()
	}
	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-16s", label)) + "  " + value + "\n")
	}
	for _, mon := range snap.Monitors {
		sb.WriteString("  " + statusBadge(mon.Status) + "  " + mon.ID + "\n")
		row("Started:", mon.StartTime.Local().Format("2006-01-02 15:04:05"))
		row("Uptime:", mon.Uptime.Round(time.Second).String())
		row("Active sessions:", fmt.Sprintf("%d", mon.ActiveSessions))
		row("Sessions seen:", fmt.Sprintf("%d", mon.SessionsSeen))
		row("Stored:", fmt.Sprintf("%d", mon.ConversationsStored))
		row("Errors:", fmt.Sprintf("%d", mon.ErrorCount))
		if mon.Error != "" {
			row("Last error:", errStyle.Render(mon.Error))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *Model) renderSessions(closed bool) string {
	var sb strings.Builder
	var sessions []*session.TerminalSession
	if snap := m.data.Snapshot; snap != nil {
		for _, mon := range snap.Monitors {
			if closed {
				sessions = append(sessions, mon.Closed...)
			} else {
				sessions = append(sessions, mon.Sessions...)
			}
		}
	}
	title := "Active Sessions"
	if closed {
		title = "Closed Sessions"
	}
	sb.WriteString(heading(fmt.Sprintf("%s (%d)", title, len(sessions))))
	if len(sessions) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for _, s := range sessions {
		ts := timeStyle.Render(s.DiscoveredAt.Local().Format("15:04:05"))
		readable := dimStyle.Render("unreadable")
		if s.Readable {
			readable = statusStyles["active"].Render("readable")
		}
		fmt.Fprintf(&sb, "  %s  %-7d %-10s %-12s %s  %s\n", ts, s.PID, s.User, s.TTY, readable, s.Command)
		detail := fmt.Sprintf("           %s  term=%s", strings.Join(s.Devices, ","), s.TerminalType)
		if closed && s.ClosedAt != nil {
			detail += "  closed " + s.ClosedAt.Local().Format("15:04:05")
		}
		sb.WriteString(dimStyle.Render(detail) + "\n\n")
	}
	return sb.String()
}

func (m *Model) renderPrompts() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Recent Prompts (%d)", len(m.data.Prompts))))
	if len(m.data.Prompts) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i, rec := range m.data.Prompts {
		ts := timeStyle.Render(rec.Timestamp.Local().Format("15:04:05"))
		toggle := dimStyle.Render("  ▶ ")
		if m.expanded[rec.ID] {
			toggle = dimStyle.Render("  ▼ ")
		}
		project := ""
		if rec.ProjectName != "" {
			project = labelStyle.Render("["+rec.ProjectName+"]") + " "
		}
		row := toggle + ts + "  " + project + firstLine(rec.PromptText)
		if i == m.promptCursor {
			row = selectedRowStyle.Width(max(m.width-2, 1)).Render(row)
		}
		sb.WriteString(row + "\n")
		if m.expanded[rec.ID] {
			sb.WriteString(labelStyle.Render("      Prompt") + "\n")
			sb.WriteString(indent(rec.PromptText, "      ") + "\n")
			sb.WriteString(labelStyle.Render("      Response") + "\n")
			sb.WriteString(indent(rec.ResponseText, "      ") + "\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func firstLine(s string) string {
	line, _, cut := strings.Cut(strings.TrimSpace(s), "\n")
	if cut {
		return line + " …"
	}
	return line
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// Run starts the dashboard and blocks until the user quits.
func Run(source Source, refresh time.Duration) error {
	p := tea.NewProgram(New(source, refresh), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
