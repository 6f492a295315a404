package monitor

import "fmt"

// FormatRate formats a per-minute rate as "X.X/min".
func FormatRate(rate float64) string {
	return fmt.Sprintf("%.1f/min", rate)
}

// FormatLatency formats latency in seconds as "X.Xms" below one second and
// "X.Xs" above.
func FormatLatency(latencySeconds float64) string {
	if latencySeconds < 1.0 {
		return fmt.Sprintf("%.1fms", latencySeconds*1000)
	}
	return fmt.Sprintf("%.1fs", latencySeconds)
}

// FormatCount formats a counter total without decimals.
func FormatCount(v float64) string {
	return fmt.Sprintf("%.0f", v)
}

// FormatDuration formats a duration in seconds as "Xh Ym", "Xm Ys" or "Xs".
func FormatDuration(seconds float64) string {
	total := int64(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
