// Package tui is an interactive front end over the reconciliation engine.
// It never calls the network itself: every operation runs as a command
// against a Backend and progress arrives as engine events.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	orchestrators "github.com/ochairo/carbonrepo/internal/domain-orchestrators"
	"github.com/ochairo/carbonrepo/internal/domain/entities"
	"github.com/ochairo/carbonrepo/internal/domain/services"
)

// Checker runs reconciliation passes
type Checker interface {
	Check(ctx context.Context) *entities.CheckReport
}

// Updater refreshes and edits tracked items
type Updater interface {
	Add(ctx context.Context, input string) (*orchestrators.UpdateResult, error)
	Remove(coordinate string) error
	Update(ctx context.Context, coordinate string) (*orchestrators.UpdateResult, error)
	UpdateAll(ctx context.Context) (*orchestrators.UpdateAllResult, error)
}

// Differ produces change summaries
type Differ interface {
	Diff(ctx context.Context, coordinate string) (*entities.ChangeSummary, error)
}

// Backend is everything the front end needs from the engine
type Backend interface {
	Checker
	Updater
	Differ
	Items() []entities.TrackedItem
}

type mode int

const (
	modeList mode = iota
	modeDiff
	modeAdd
	modeConfirmRemove
)

// operation results, each carrying a fresh item snapshot taken off the
// event loop
type (
	checkDoneMsg struct {
		report *entities.CheckReport
		items  []entities.TrackedItem
	}
	updateDoneMsg struct {
		coordinate string
		result     *orchestrators.UpdateResult
		all        *orchestrators.UpdateAllResult
		err        error
		items      []entities.TrackedItem
	}
	diffDoneMsg struct {
		coordinate string
		summary    *entities.ChangeSummary
		err        error
	}
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
	addedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	removedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	hunkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
)

// Model is the bubbletea model
type Model struct {
	ctx     context.Context
	backend Backend

	items    []entities.TrackedItem
	statuses map[string]entities.CheckStatus
	cursor   int
	mode     mode
	busy     string
	progress string
	status   string
	// mismatches collects assets whose digest changed since it was recorded
	mismatches []string

	spinner  spinner.Model
	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
}

// New creates the model over the backend's current items
func New(ctx context.Context, backend Backend) Model {
	input := textinput.New()
	input.Placeholder = "owner/name or https://github.com/owner/name"
	input.CharLimit = 200

	return Model{
		ctx:      ctx,
		backend:  backend,
		items:    backend.Items(),
		statuses: map[string]entities.CheckStatus{},
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		input:    input,
		viewport: viewport.New(80, 20),
		status:   "c check · u update · U update all · d diff · a add · x remove · q quit",
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-3, 5)
		return m, nil

	case eventMsg:
		return m.handleEvent(entities.Event(msg)), nil

	case checkDoneMsg:
		m.busy = ""
		m.items = msg.items
		for _, o := range msg.report.Outcomes {
			m.statuses[o.Coordinate] = o.Status
		}
		m.status = fmt.Sprintf("%d outdated, %d up to date, %d errors",
			msg.report.Outdated, msg.report.UpToDate, msg.report.Errors)
		return m, nil

	case updateDoneMsg:
		return m.handleUpdateDone(msg), nil

	case diffDoneMsg:
		m.busy = ""
		if msg.err != nil && msg.summary == nil {
			m.status = errStyle.Render(fmt.Sprintf("diff %s: %v", msg.coordinate, msg.err))
			return m, nil
		}
		if msg.summary == nil {
			m.status = okStyle.Render(msg.coordinate + " is up to date")
			return m, nil
		}
		m.viewport.SetContent(renderSummary(msg.summary))
		m.viewport.GotoTop()
		m.mode = modeDiff
		return m, nil

	case spinner.TickMsg:
		if m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.mode {
	case modeDiff:
		switch msg.String() {
		case "esc", "q":
			m.mode = modeList
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case modeAdd:
		switch msg.String() {
		case "esc":
			m.mode = modeList
			m.input.Blur()
			return m, nil
		case "enter":
			value := strings.TrimSpace(m.input.Value())
			m.mode = modeList
			m.input.Blur()
			m.input.Reset()
			if value == "" {
				return m, nil
			}
			return m.start("adding "+value, m.addCmd(value))
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case modeConfirmRemove:
		m.mode = modeList
		if msg.String() == "y" {
			if item, ok := m.selected(); ok {
				return m.start("removing "+item.Coordinate, m.removeCmd(item.Coordinate))
			}
		}
		m.status = "remove cancelled"
		return m, nil
	}

	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	}

	if m.busy != "" {
		return m, nil
	}

	switch msg.String() {
	case "c":
		return m.start("checking", m.checkCmd())
	case "U":
		return m.start("updating all", m.updateAllCmd())
	case "a":
		m.mode = modeAdd
		return m, m.input.Focus()
	}

	item, ok := m.selected()
	if !ok {
		return m, nil
	}
	switch msg.String() {
	case "u", "enter":
		return m.start("updating "+item.Coordinate, m.updateCmd(item.Coordinate))
	case "d":
		return m.start("diffing "+item.Coordinate, m.diffCmd(item.Coordinate))
	case "x":
		m.mode = modeConfirmRemove
		m.status = warnStyle.Render(fmt.Sprintf("remove %s? (y/n)", item.Coordinate))
	}
	return m, nil
}

func (m Model) start(label string, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.busy = label
	m.progress = ""
	return m, tea.Batch(cmd, m.spinner.Tick)
}

func (m Model) handleEvent(ev entities.Event) Model {
	switch ev.Kind {
	case entities.EventCheckStarted:
		m.statuses = map[string]entities.CheckStatus{}
		m.progress = ev.Message
	case entities.EventItemChecked:
		m.statuses[ev.Coordinate] = ev.Status
		m.progress = ev.Coordinate
	case entities.EventUpdateStarted:
		m.progress = ev.Coordinate
	case entities.EventItemUpdated:
		m.statuses[ev.Coordinate] = entities.StatusUpToDate
	case entities.EventItemFailed:
		m.status = errStyle.Render(fmt.Sprintf("%s: %v", ev.Coordinate, ev.Err))
	case entities.EventAssetVerified:
		if ev.Asset != nil && ev.Asset.ExpectedDigest != nil && ev.Asset.Mismatched() {
			m.mismatches = append(m.mismatches, ev.Coordinate+" "+ev.Asset.Name)
		}
	case entities.EventCheckFinished:
		m.status = ev.Message
	}
	return m
}

func (m Model) handleUpdateDone(msg updateDoneMsg) Model {
	m.busy = ""
	if msg.items != nil {
		m.items = msg.items
		if m.cursor >= len(m.items) {
			m.cursor = max(len(m.items)-1, 0)
		}
	}
	switch {
	case msg.err != nil:
		m.status = errStyle.Render(msg.err.Error())
	case msg.all != nil:
		m.status = fmt.Sprintf("updated %d, failed %d", msg.all.Updated, msg.all.Failed)
	case msg.result != nil && msg.result.Summary != nil:
		m.viewport.SetContent(renderSummary(msg.result.Summary))
		m.viewport.GotoTop()
		m.mode = modeDiff
		m.status = okStyle.Render("updated " + msg.coordinate)
	default:
		m.status = okStyle.Render("done: " + msg.coordinate)
	}
	return m
}

func (m Model) selected() (entities.TrackedItem, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return entities.TrackedItem{}, false
	}
	return m.items[m.cursor], true
}

func (m Model) checkCmd() tea.Cmd {
	return func() tea.Msg {
		report := m.backend.Check(m.ctx)
		return checkDoneMsg{report: report, items: m.backend.Items()}
	}
}

func (m Model) updateCmd(coordinate string) tea.Cmd {
	return func() tea.Msg {
		result, err := m.backend.Update(m.ctx, coordinate)
		return updateDoneMsg{coordinate: coordinate, result: result, err: err, items: m.backend.Items()}
	}
}

func (m Model) updateAllCmd() tea.Cmd {
	return func() tea.Msg {
		all, err := m.backend.UpdateAll(m.ctx)
		return updateDoneMsg{all: all, err: err, items: m.backend.Items()}
	}
}

func (m Model) addCmd(input string) tea.Cmd {
	return func() tea.Msg {
		result, err := m.backend.Add(m.ctx, input)
		msg := updateDoneMsg{coordinate: input, result: result, err: err, items: m.backend.Items()}
		if result != nil {
			msg.coordinate = result.Item.Coordinate
		}
		return msg
	}
}

func (m Model) removeCmd(coordinate string) tea.Cmd {
	return func() tea.Msg {
		err := m.backend.Remove(coordinate)
		return updateDoneMsg{coordinate: coordinate, err: err, items: m.backend.Items()}
	}
}

func (m Model) diffCmd(coordinate string) tea.Cmd {
	return func() tea.Msg {
		summary, err := m.backend.Diff(m.ctx, coordinate)
		return diffDoneMsg{coordinate: coordinate, summary: summary, err: err}
	}
}

// View implements tea.Model
func (m Model) View() string {
	if m.mode == modeDiff {
		return m.viewport.View() + "\n" + dimStyle.Render("↑/↓ scroll · esc back")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("carbonrepo") + "\n\n")
	if len(m.items) == 0 {
		b.WriteString(dimStyle.Render("No repositories tracked. Press a to add one.") + "\n")
	}
	for i, item := range m.items {
		cursor := "  "
		name := item.Coordinate
		if i == m.cursor {
			cursor = "> "
			name = selectedStyle.Render(name)
		}
		fmt.Fprintf(&b, "%s%-40s %s\n", cursor, name, statusLabel(m.statuses[item.Coordinate]))
		fmt.Fprintf(&b, "    %s\n", dimStyle.Render(item.DisplayAnnotation()))
	}

	b.WriteString("\n")
	switch {
	case m.mode == modeAdd:
		b.WriteString("Add repository: " + m.input.View())
	case m.busy != "":
		b.WriteString(m.spinner.View() + " " + m.busy)
		if m.progress != "" {
			b.WriteString(dimStyle.Render(" (" + m.progress + ")"))
		}
	default:
		b.WriteString(m.status)
	}
	for _, name := range m.mismatches {
		b.WriteString("\n" + errStyle.Render("digest mismatch: "+name))
	}
	return b.String()
}

func statusLabel(status entities.CheckStatus) string {
	switch status {
	case entities.StatusUpToDate:
		return okStyle.Render("up to date")
	case entities.StatusOutdated:
		return warnStyle.Render("outdated")
	case entities.StatusCheckError:
		return errStyle.Render("error")
	default:
		return dimStyle.Render("-")
	}
}

func renderSummary(summary *entities.ChangeSummary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s %s..%s (%s)", summary.Coordinate,
		services.ShortSHA(summary.OldSHA), services.ShortSHA(summary.NewSHA), summary.Kind)) + "\n\n")
	for _, line := range summary.Lines {
		switch services.ClassifyLine(line) {
		case services.LineAdded:
			line = addedStyle.Render(line)
		case services.LineRemoved:
			line = removedStyle.Render(line)
		case services.LineHunk:
			line = hunkStyle.Render(line)
		case services.LineMeta:
			line = metaStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	if summary.CompareURL != "" {
		b.WriteString("\n" + dimStyle.Render(summary.CompareURL) + "\n")
	}
	if summary.Err != nil {
		b.WriteString(errStyle.Render("Error: "+summary.Err.Error()) + "\n")
	}
	return b.String()
}

// Run starts the program on the terminal and blocks until it exits
func Run(ctx context.Context, backend Backend, bridge *Bridge) error {
	p := tea.NewProgram(New(ctx, backend), tea.WithAltScreen(), tea.WithContext(ctx))
	go bridge.Forward(p.Send)
	defer bridge.Close()

	_, err := p.Run()
	return err
}
