// Package main implements voxtui, a terminal observer and input surface for
// a running voxd daemon. It publishes user text on the inbound NATS subject
// and renders everything the orchestrator emits on the outbound subject.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voxd/internal/protocol"
)

var version = "dev"

var (
	flagNATSURL string
	flagPrefix  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "voxtui",
	Short:   "Terminal UI for a running voxd daemon",
	Version: version,
	RunE:    runTUI,
}

func init() {
	rootCmd.Flags().StringVar(&flagNATSURL, "nats-url", nats.DefaultURL, "NATS server URL")
	rootCmd.Flags().StringVar(&flagPrefix, "subject-prefix", "voxd", "voxd subject prefix")
}

func runTUI(cmd *cobra.Command, args []string) error {
	nc, err := nats.Connect(flagNATSURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", flagNATSURL, err)
	}
	defer nc.Drain() //nolint:errcheck

	p := tea.NewProgram(newModel(nc, flagPrefix), tea.WithAltScreen())

	sub, err := nc.Subscribe(flagPrefix+".outbound", func(m *nats.Msg) {
		var msg protocol.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			return
		}
		p.Send(outboundMsg(msg))
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to outbound subject: %w", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck

	_, err = p.Run()
	return err
}

// outboundMsg wraps a protocol message for the bubbletea update loop.
type outboundMsg protocol.Message

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	confirmStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type model struct {
	nc     *nats.Conn
	prefix string

	viewport viewport.Model
	input    textinput.Model
	lines    []string
	ready    bool

	// pendingConfirmation holds the correlation id of an unanswered
	// confirmation request; y/n answer it.
	pendingConfirmation string
}

func newModel(nc *nats.Conn, prefix string) model {
	ti := textinput.New()
	ti.Placeholder = "describe a coding task..."
	ti.Focus()
	ti.CharLimit = 512
	return model{nc: nc, prefix: prefix, input: ti}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 1
		footerHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.input.Width = msg.Width - 4
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.publish(protocol.Cancel())
			m.append(helpStyle.Render("· cancel sent"))
			return m, nil
		case "y", "Y":
			if m.pendingConfirmation != "" {
				m.answerConfirmation(true)
				return m, nil
			}
		case "n", "N":
			if m.pendingConfirmation != "" {
				m.answerConfirmation(false)
				return m, nil
			}
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text != "" {
				m.publish(protocol.UserText(text, "tui", true))
				m.append(userStyle.Render("you> " + text))
				m.input.Reset()
			}
			return m, nil
		}

	case outboundMsg:
		m.render(protocol.Message(msg))
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) render(msg protocol.Message) {
	switch msg.Kind {
	case protocol.KindAssistantText:
		m.append(assistantStyle.Render(msg.Text))
	case protocol.KindStatus:
		m.append(statusStyle.Render("· " + msg.Text))
	case protocol.KindError:
		m.append(errorStyle.Render("✗ " + msg.Reason))
	case protocol.KindPlanPending:
		m.append(statusStyle.Render("plan: ") + assistantStyle.Render(msg.Text))
	case protocol.KindConfirmationRequest:
		m.pendingConfirmation = msg.ConfirmationID
		m.append(confirmStyle.Render(fmt.Sprintf("launch %s in %s? [y/n] %s",
			msg.Source, msg.Reason, msg.Text)))
	case protocol.KindUserText:
		// Echo of non-routable input.
		m.append(userStyle.Render("you> " + msg.Text))
	}
}

func (m *model) answerConfirmation(accept bool) {
	m.publish(protocol.ConfirmationResponse(m.pendingConfirmation, accept))
	m.pendingConfirmation = ""
	if accept {
		m.append(helpStyle.Render("· confirmed"))
	} else {
		m.append(helpStyle.Render("· declined"))
	}
}

func (m *model) publish(msg protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = m.nc.Publish(m.prefix+".inbound", data)
}

func (m *model) append(line string) {
	m.lines = append(m.lines, line)
	m.refresh()
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "connecting..."
	}
	header := titleStyle.Render("voxd")
	help := helpStyle.Render("enter: send · y/n: confirm · esc: cancel · ctrl+c: quit")
	return fmt.Sprintf("%s\n%s\n%s\n%s", header, m.viewport.View(), m.input.View(), help)
}
