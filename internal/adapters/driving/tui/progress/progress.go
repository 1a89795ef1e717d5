// Package progress renders an indexing job's progress as a terminal bar.
package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/sercha-docindex/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

const (
	defaultWidth = 40
	maxWidth     = 80
	padding      = 2
)

// UpdateMsg carries a progress snapshot.
type UpdateMsg domain.ProgressInfo

// DoneMsg reports the job outcome.
type DoneMsg struct {
	Result *domain.IndexResult
	Err    error
}

// Job runs an indexing job, publishing snapshots on progress.
type Job func(ctx context.Context, progress chan<- domain.ProgressInfo) (*domain.IndexResult, error)

// Model is the bubbletea model for a single indexing job.
type Model struct {
	title  string
	bar    progress.Model
	styles *styles.Styles
	quit   key.Binding
	cancel context.CancelFunc

	info   domain.ProgressInfo
	done   bool
	result *domain.IndexResult
	err    error
}

// Ensure Model implements tea.Model.
var _ tea.Model = (*Model)(nil)

// NewModel creates a progress model. cancel is called when the user quits.
func NewModel(title string, cancel context.CancelFunc) *Model {
	s := styles.DefaultStyles()
	from, to := s.BarGradient()
	return &Model{
		title:  title,
		bar:    progress.New(progress.WithGradient(from, to), progress.WithWidth(defaultWidth)),
		styles: s,
		quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "cancel"),
		),
		cancel: cancel,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.quit) {
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-padding*2, maxWidth)
		if m.bar.Width < 10 {
			m.bar.Width = 10
		}
	case UpdateMsg:
		// Snapshots can arrive out of order; keep the newest.
		if msg.Seq > m.info.Seq {
			m.info = domain.ProgressInfo(msg)
		}
	case DoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder
	pad := strings.Repeat(" ", padding)

	b.WriteString(pad + m.styles.Title.Render(m.title) + "\n\n")
	b.WriteString(pad + m.bar.ViewAs(m.info.PercentComplete/100) + "\n")

	status := fmt.Sprintf("%d/%d batches, %d/%d chunks",
		m.info.CompletedBatches, m.info.TotalBatches, m.info.CompletedChunks, m.info.TotalChunks)
	if !m.done && m.info.EstimatedTimeRemaining > 0 {
		status += fmt.Sprintf(", ETA %s", m.info.EstimatedTimeRemaining.Round(time.Second))
	}
	b.WriteString(pad + m.styles.Muted.Render(status) + "\n")

	switch {
	case m.err != nil:
		b.WriteString(pad + m.styles.Error.Render("Failed: "+m.err.Error()) + "\n")
	case m.result != nil && len(m.result.FailedBatches) > 0:
		b.WriteString(pad + m.styles.Warning.Render(
			fmt.Sprintf("%d batches failed, run again with --resume", len(m.result.FailedBatches))) + "\n")
	case m.result != nil:
		b.WriteString(pad + m.styles.Success.Render("Done") + "\n")
	default:
		b.WriteString(pad + m.styles.Help.Render(m.quit.Help().Key+" to "+m.quit.Help().Desc) + "\n")
	}
	return b.String()
}

// Info returns the newest snapshot seen.
func (m *Model) Info() domain.ProgressInfo {
	return m.info
}

// Run executes job while rendering a progress bar to out.
func Run(ctx context.Context, out io.Writer, title string, job Job) (*domain.IndexResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewModel(title, cancel)
	p := tea.NewProgram(model, tea.WithOutput(out), tea.WithContext(ctx))

	updates := make(chan domain.ProgressInfo, 16)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for info := range updates {
			p.Send(UpdateMsg(info))
		}
	}()

	var (
		result *domain.IndexResult
		jobErr error
	)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		result, jobErr = job(ctx, updates)
		close(updates)
		<-forwarded
		p.Send(DoneMsg{Result: result, Err: jobErr})
	}()

	if _, err := p.Run(); err != nil && !isCancelled(err) {
		cancel()
		<-finished
		return nil, fmt.Errorf("progress display: %w", err)
	}
	cancel()
	<-finished
	return result, jobErr
}

func isCancelled(err error) bool {
	return errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled)
}
