// Package main implements voxmon, a live terminal dashboard over the
// metrics a running voxd daemon exports. It polls a Prometheus-compatible
// query endpoint, not the daemon itself.
package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voxd/internal/monitor"
)

var version = "dev"

var (
	flagMetricsURL string
	flagInterval   time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "voxmon",
	Short:   "Live metrics dashboard for a running voxd daemon",
	Version: version,
	RunE:    runMonitor,
}

func init() {
	rootCmd.Flags().StringVar(&flagMetricsURL, "metrics-url", "http://127.0.0.1:9090", "Prometheus-compatible query endpoint")
	rootCmd.Flags().DurationVar(&flagInterval, "interval", 2*time.Second, "refresh interval")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	p := tea.NewProgram(
		monitor.NewModel(flagMetricsURL, flagInterval),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}
