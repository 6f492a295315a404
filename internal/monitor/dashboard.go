package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

// Model is the BubbleTea model for the live metrics dashboard. It polls a
// Prometheus-compatible endpoint for the counters the daemon exports.
type Model struct {
	metricsURL string
	interval   time.Duration
	lastUpdate time.Time
	metrics    MetricsSnapshot
	err        error
	quitting   bool

	loadProgress progress.Model
}

// MetricsSnapshot holds one poll of the daemon's metrics.
type MetricsSnapshot struct {
	MessageRate        float64
	HandleLatencyP95   float64
	LaunchRate         float64
	SessionsEnded      float64
	AvgSessionDuration float64
	ErrorRate          float64

	// Ring buffers for the sparklines.
	MessageRateHistory []float64
	LatencyHistory     []float64
	LaunchRateHistory  []float64
	ErrorRateHistory   []float64

	MessageRatePeak float64
}

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard polling metricsURL every interval.
func NewModel(metricsURL string, interval time.Duration) Model {
	return Model{
		metricsURL: metricsURL,
		interval:   interval,
		loadProgress: progress.New(
			progress.WithGradient("#00ffff", "#ff00ff"),
			progress.WithWidth(40),
		),
		metrics: MetricsSnapshot{
			MessageRateHistory: make([]float64, 0, historySize),
			LatencyHistory:     make([]float64, 0, historySize),
			LaunchRateHistory:  make([]float64, 0, historySize),
			ErrorRateHistory:   make([]float64, 0, historySize),
			// Floor avoids a zero denominator in the load bar.
			MessageRatePeak: 1.0,
		},
	}
}

func healthBadge(latencyMS, errorRate float64) string {
	switch {
	case errorRate > 1 || latencyMS >= 500:
		return errorStyle.Render("✗ ERROR")
	case errorRate > 0 || latencyMS >= 100:
		return warningStyle.Render("⚠ WARN")
	default:
		return healthyStyle.Render("✓ HEALTHY")
	}
}

func latencyBadge(latencyMS float64) string {
	switch {
	case latencyMS < 100:
		return healthyStyle.Render("[✓]")
	case latencyMS < 500:
		return warningStyle.Render("[⚠]")
	default:
		return errorStyle.Render("[✗]")
	}
}

func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}

	return sparklineStyle.Render(spark.View())
}

type tickMsg time.Time
type metricsMsg MetricsSnapshot
type errMsg error

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchMetrics(m.metricsURL),
	)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchMetrics(metricsURL string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		client := NewMetricsClient(metricsURL)

		messageRate, err := client.QueryMessageRate(ctx)
		if err != nil {
			return errMsg(err)
		}

		latency, err := client.QueryHandleLatencyP95(ctx)
		if err != nil {
			return errMsg(err)
		}

		// The remaining series may not exist until a session has run.
		launchRate, err := client.QueryLaunchRate(ctx)
		if err != nil {
			launchRate = 0
		}
		sessionsEnded, err := client.QuerySessionsEnded(ctx)
		if err != nil {
			sessionsEnded = 0
		}
		avgDuration, err := client.QueryAvgSessionDuration(ctx)
		if err != nil {
			avgDuration = 0
		}
		errorRate, err := client.QueryErrorRate(ctx)
		if err != nil {
			errorRate = 0
		}

		return metricsMsg{
			MessageRate:        messageRate,
			HandleLatencyP95:   latency,
			LaunchRate:         launchRate,
			SessionsEnded:      sessionsEnded,
			AvgSessionDuration: avgDuration,
			ErrorRate:          errorRate,
		}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchMetrics(m.metricsURL)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchMetrics(m.metricsURL),
		)

	case metricsMsg:
		newMetrics := MetricsSnapshot(msg)

		newMetrics.MessageRateHistory = appendToHistory(m.metrics.MessageRateHistory, newMetrics.MessageRate)
		newMetrics.LatencyHistory = appendToHistory(m.metrics.LatencyHistory, newMetrics.HandleLatencyP95*1000)
		newMetrics.LaunchRateHistory = appendToHistory(m.metrics.LaunchRateHistory, newMetrics.LaunchRate)
		newMetrics.ErrorRateHistory = appendToHistory(m.metrics.ErrorRateHistory, newMetrics.ErrorRate)

		newMetrics.MessageRatePeak = m.metrics.MessageRatePeak
		if newMetrics.MessageRate > newMetrics.MessageRatePeak {
			newMetrics.MessageRatePeak = newMetrics.MessageRate
		}

		m.metrics = newMetrics
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	header := headerStyle.Render(" voxd Monitor ")

	var content string
	content += "\n"
	content += errorStyle.Render("⚠ Cannot reach metrics endpoint") + "\n"
	content += "\n"
	content += dimStyle.Render("URL: ") + valueStyle.Render(m.metricsURL) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n"
	content += "\n"
	content += dimStyle.Render("Please ensure:") + "\n"
	content += dimStyle.Render("  1. voxd is running with observability enabled") + "\n"
	content += dimStyle.Render("  2. a Prometheus-compatible server scrapes it") + "\n"
	content += "\n"
	content += footerStyle.Render("[q] quit  [r] retry") + "\n"

	return containerStyle.Render(header + "\n" + content)
}

func (m Model) renderDashboard() string {
	var content string

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}
	latencyMS := m.metrics.HandleLatencyP95 * 1000

	header := headerStyle.Render(" voxd Monitor ")
	headerLine := fmt.Sprintf("%s   %s",
		healthBadge(latencyMS, m.metrics.ErrorRate),
		dimStyle.Render(lastUpdateStr))

	content += header + "\n"
	content += headerLine + "\n"

	content += "\n" + sectionStyle.Render("┃ Dispatcher") + "\n"

	rateSparkline := createSparkline(m.metrics.MessageRateHistory)
	content += labelStyle.Render("  Messages: ") +
		valueStyle.Render(FormatRate(m.metrics.MessageRate)) +
		" " + latencyBadge(latencyMS) +
		"   " + rateSparkline + "\n"

	latencySparkline := createSparkline(m.metrics.LatencyHistory)
	content += labelStyle.Render("  Handle (p95): ") +
		valueStyle.Render(FormatLatency(m.metrics.HandleLatencyP95)) +
		"   " + latencySparkline + "\n"

	ratePercent := m.metrics.MessageRate / m.metrics.MessageRatePeak
	if ratePercent > 1.0 {
		ratePercent = 1.0
	}
	content += labelStyle.Render("  Load: ") +
		m.loadProgress.ViewAs(ratePercent) +
		" " + dimStyle.Render(fmt.Sprintf("%.0f%%", ratePercent*100)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Sessions") + "\n"

	launchSparkline := createSparkline(m.metrics.LaunchRateHistory)
	content += labelStyle.Render("  Launches: ") +
		valueStyle.Render(FormatRate(m.metrics.LaunchRate)) +
		"       " + launchSparkline + "\n"

	content += labelStyle.Render("  Completed: ") +
		valueStyle.Render(FormatCount(m.metrics.SessionsEnded)) +
		"  " +
		labelStyle.Render("Avg length: ") +
		valueStyle.Render(FormatDuration(m.metrics.AvgSessionDuration)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Errors") + "\n"

	errorSparkline := createSparkline(m.metrics.ErrorRateHistory)
	content += labelStyle.Render("  Rate: ") +
		valueStyle.Render(FormatRate(m.metrics.ErrorRate)) +
		"           " + errorSparkline + "\n"

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))

	content += "\n" + footer

	return containerStyle.Render(content)
}
