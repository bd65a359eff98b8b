package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws a live indexing panel with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *indexModel
	tracker *ProgressTracker
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. Fails when the output is not a TTY.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newIndexModel(tracker, cfg)

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	var runCtx context.Context
	runCtx, r.cancel = context.WithCancel(ctx)

	opts := []tea.ProgramOption{tea.WithContext(runCtx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.tracker.Stats().Stage {
		r.tracker.SetStage(event.Stage, event.Total)
	}
	r.tracker.Update(event.Current, event.Total, event.Item)

	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.AddError(event)
	if r.program != nil {
		r.program.Send(errorMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.SetStage(StageComplete, 0)
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer. It waits up to two seconds for the program to exit.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program == nil {
		return nil
	}

	r.program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

type progressMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats
type tickMsg time.Time

// indexModel is the bubbletea model of an indexing run.
type indexModel struct {
	tracker   *ProgressTracker
	width     int
	quitting  bool
	complete  bool
	stats     CompletionStats
	spinner   spinner.Model
	bar       progress.Model
	styles    Styles
	workspace string
}

func newIndexModel(tracker *ProgressTracker, cfg Config) *indexModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	if cfg.SpinnerStyle == "line" {
		s.Spinner = spinner.Line
	}
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	styles := GetStyles(cfg.NoColor || DetectNoColor())

	return &indexModel{
		tracker: tracker,
		width:   80,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorLime),
			progress.WithWidth(50),
			progress.WithoutPercentage(),
		),
		styles:    styles,
		workspace: cfg.Workspace,
	}
}

// Init implements tea.Model.
func (m *indexModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *indexModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case tickMsg:
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	// progressMsg and errorMsg are folded into the tracker by the renderer.
	return m, nil
}

// View implements tea.Model.
func (m *indexModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.viewComplete()
	}

	width := max(m.width-4, 40)
	stats := m.tracker.Stats()

	sections := []string{
		m.viewStages(stats.Stage),
		m.divider(width),
		m.viewProgress(stats),
		m.viewSpeed(stats),
		m.divider(width),
		m.styles.Sparkline.Render(m.tracker.RenderSparkline(max(width-14, 10))) + " " + m.styles.Dim.Render("items/sec"),
	}
	if stats.Item != "" {
		sections = append(sections, m.styles.Dim.Render(truncateLeft(stats.Item, width-2)))
	}

	title := "labsearch index"
	if m.workspace != "" {
		title += " • " + m.workspace
	}
	panel := m.styles.Panel.Width(width).Render(strings.Join(sections, "\n"))

	return lipgloss.JoinVertical(lipgloss.Left, m.styles.Header.Render(title), panel) +
		"\n" + m.viewStatusBar(stats)
}

func (m *indexModel) viewStages(current Stage) string {
	stages := []Stage{StageExtracting, StageDiffing, StageEmbedding}

	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		switch {
		case s < current:
			parts = append(parts, m.styles.Success.Render("● "+s.String()))
		case s == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *indexModel) viewProgress(stats ProgressStats) string {
	if stats.Total == 0 {
		return fmt.Sprintf("%s %s...", m.spinner.View(), stats.Stage)
	}

	bar := m.bar.ViewAs(stats.Progress)
	pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100))
	count := m.styles.Label.Render(fmt.Sprintf("%d / %d items", stats.Current, stats.Total))
	return fmt.Sprintf("%s  %s\n%s", bar, pct, count)
}

func (m *indexModel) viewSpeed(stats ProgressStats) string {
	line := fmt.Sprintf("Speed: %.1f/s", stats.Speed.Current)
	if stats.Speed.Avg > 0 {
		line += fmt.Sprintf(" (avg %.1f, peak %.1f)", stats.Speed.Avg, stats.Speed.Peak)
	}
	out := m.styles.Speed.Render(line)
	if stats.ETA > 0 {
		out += m.styles.Dim.Render("  •  ") + m.styles.Label.Render("ETA: "+formatDuration(stats.ETA))
	}
	return out
}

func (m *indexModel) viewStatusBar(stats ProgressStats) string {
	var parts []string
	if stats.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", stats.WarnCount)))
	}
	if stats.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", stats.ErrorCount)))
	}
	parts = append(parts, m.styles.Dim.Render("q to quit"))
	return strings.Join(parts, m.styles.Dim.Render("  │  "))
}

func (m *indexModel) divider(width int) string {
	return m.styles.Border.Render(strings.Repeat("─", width))
}

func (m *indexModel) viewComplete() string {
	lines := []string{
		m.styles.Success.Render("✓ Indexing complete"),
		"",
		m.row("Items:", fmt.Sprintf("%d", m.stats.Items)),
		m.row("Embedded:", fmt.Sprintf("%d", m.stats.Embedded)),
		m.row("Unchanged:", fmt.Sprintf("%d", m.stats.Skipped)),
		m.row("Duration:", formatDuration(m.stats.Duration)),
	}
	if m.stats.Embedder.Provider != "" {
		lines = append(lines, m.row("Provider:", m.stats.Embedder.Provider))
	}
	if m.stats.Cleared > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("Cleared %d records from the previous provider", m.stats.Cleared)))
	}
	if m.stats.Failed > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d items failed to embed", m.stats.Failed)))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorLime)).
		Padding(1, 2).
		Width(max(m.width-4, 40)).
		Render(strings.Join(lines, "\n")) + "\n"
}

func (m *indexModel) row(label, value string) string {
	return fmt.Sprintf("%-11s %s", m.styles.Label.Render(label), m.styles.Active.Render(value))
}

// formatDuration formats d as "42s", "3m 5s" or "1h 2m".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		if s := int(d.Seconds()) % 60; s != 0 {
			return fmt.Sprintf("%dm %ds", int(d.Minutes()), s)
		}
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// truncateLeft keeps the last maxLen runes of s, prefixed with "...".
func truncateLeft(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return "..." + string(r[len(r)-maxLen+3:])
}

var _ Renderer = (*TUIRenderer)(nil)
