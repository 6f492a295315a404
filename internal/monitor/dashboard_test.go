package monitor

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardViewRendersSections(t *testing.T) {
	m := NewModel("http://localhost:9090", time.Second)

	updated, _ := m.Update(metricsMsg{
		MessageRate:        4.2,
		HandleLatencyP95:   0.012,
		LaunchRate:         0.5,
		SessionsEnded:      7,
		AvgSessionDuration: 95,
		ErrorRate:          0,
	})
	m = updated.(Model)

	view := m.View()
	assert.Contains(t, view, "voxd Monitor")
	assert.Contains(t, view, "Dispatcher")
	assert.Contains(t, view, "Sessions")
	assert.Contains(t, view, "Errors")
	assert.Contains(t, view, "4.2/min")
	assert.Contains(t, view, "12.0ms")
	assert.Contains(t, view, "1m 35s")
	assert.Contains(t, view, "HEALTHY")
}

func TestDashboardErrorView(t *testing.T) {
	m := NewModel("http://localhost:9090", time.Second)

	updated, _ := m.Update(errMsg(errors.New("connection refused")))
	m = updated.(Model)

	view := m.View()
	assert.Contains(t, view, "Cannot reach metrics endpoint")
	assert.Contains(t, view, "connection refused")
	assert.Contains(t, view, "http://localhost:9090")
}

func TestDashboardRecoversFromError(t *testing.T) {
	m := NewModel("http://localhost:9090", time.Second)

	updated, _ := m.Update(errMsg(errors.New("down")))
	m = updated.(Model)
	updated, _ = m.Update(metricsMsg{MessageRate: 1})
	m = updated.(Model)

	assert.NotContains(t, m.View(), "Cannot reach metrics endpoint")
}

func TestDashboardHistoryIsBounded(t *testing.T) {
	m := NewModel("http://localhost:9090", time.Second)

	for i := 0; i < historySize+10; i++ {
		updated, _ := m.Update(metricsMsg{MessageRate: float64(i)})
		m = updated.(Model)
	}

	assert.Len(t, m.metrics.MessageRateHistory, historySize)
	assert.InDelta(t, float64(historySize+9), m.metrics.MessageRatePeak, 0.001)
}

func TestDashboardQuitKeys(t *testing.T) {
	m := NewModel("http://localhost:9090", time.Second)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m = updated.(Model)

	require.NotNil(t, cmd)
	assert.Empty(t, m.View())
}

func TestHealthBadgeThresholds(t *testing.T) {
	assert.Contains(t, healthBadge(10, 0), "HEALTHY")
	assert.Contains(t, healthBadge(200, 0), "WARN")
	assert.Contains(t, healthBadge(10, 0.5), "WARN")
	assert.Contains(t, healthBadge(600, 0), "ERROR")
	assert.Contains(t, healthBadge(10, 2), "ERROR")
}

func TestCreateSparklineEmptyData(t *testing.T) {
	out := createSparkline(nil)
	assert.Contains(t, out, "no data")

	out = createSparkline([]float64{1, 2, 3})
	assert.False(t, strings.Contains(out, "no data"))
}
