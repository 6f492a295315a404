package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// claudeBinary is the CLI the Claude session shells out to.
const claudeBinary = "claude"

// outputBuffer bounds how many parsed outputs can queue between the reader
// goroutine and ReadOutput polls.
const outputBuffer = 256

// ClaudeSession runs the Claude Code CLI in non-interactive streaming mode
// and parses its stream-json output into Output values.
type ClaudeSession struct {
	cmd    *exec.Cmd
	logger *zap.Logger

	outputs chan *Output
	quit    chan struct{}

	mu         sync.Mutex
	running    bool
	terminated bool
	started    time.Time
	lastText   string
	lineCount  int
}

// LaunchClaude spawns `claude -p <prompt> --output-format stream-json` in
// the configured working directory and begins decoding its output.
func LaunchClaude(ctx context.Context, prompt string, cfg Config, logger *zap.Logger) (*ClaudeSession, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WorkingDir == "" {
		return nil, fmt.Errorf("working directory is required")
	}
	if err := os.MkdirAll(cfg.WorkingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}

	args := []string{"-p", prompt, "--output-format", "stream-json", "--verbose"}
	if cfg.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	args = append(args, "--add-dir", cfg.WorkingDir)
	args = append(args, cfg.ExtraArgs...)

	cmd := exec.CommandContext(ctx, claudeBinary, args...)
	cmd.Dir = cfg.WorkingDir
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", claudeBinary, err)
	}

	s := &ClaudeSession{
		cmd:     cmd,
		logger:  logger,
		outputs: make(chan *Output, outputBuffer),
		quit:    make(chan struct{}),
		running: true,
		started: time.Now(),
	}

	logger.Info("claude session started",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("working_dir", cfg.WorkingDir),
	)

	var readers sync.WaitGroup
	readers.Add(2)
	go s.readStdout(stdout, &readers)
	go s.readStderr(stderr, &readers)
	go s.waitForExit(&readers)

	return s, nil
}

// Type implements Session.
func (s *ClaudeSession) Type() Type { return TypeClaude }

// ReadOutput implements Session. Non-blocking beyond a context check.
func (s *ClaudeSession) ReadOutput(ctx context.Context) (*Output, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out, ok := <-s.outputs:
		if !ok {
			return nil, nil
		}
		if out.Kind == OutputLine {
			s.mu.Lock()
			s.lastText = out.Text
			s.lineCount++
			s.mu.Unlock()
		}
		return out, nil
	default:
		return nil, nil
	}
}

// IsRunning implements Session.
func (s *ClaudeSession) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// QueryStatus implements Session.
func (s *ClaudeSession) QueryStatus(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elapsed := time.Since(s.started).Round(time.Second)
	if !s.running {
		return fmt.Sprintf("claude session finished after %s (%d output lines)", elapsed, s.lineCount), nil
	}
	if s.lastText == "" {
		return fmt.Sprintf("claude session running for %s, no output yet", elapsed), nil
	}
	return fmt.Sprintf("claude session running for %s, last output: %s", elapsed, truncate(s.lastText, 200)), nil
}

// Terminate implements Session. Safe to call more than once and after exit.
func (s *ClaudeSession) Terminate() error {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return nil
	}
	s.terminated = true
	close(s.quit)
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("terminating claude session", zap.Int("pid", s.cmd.Process.Pid))
	if err := s.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill claude process: %w", err)
	}
	return nil
}

// streamEvent mirrors the subset of Claude CLI stream-json lines the
// orchestrator relays. Unknown event types pass through as raw lines.
type streamEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
	Message *struct {
		Content []struct {
			Type  string          `json:"type"`
			Text  string          `json:"text"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		} `json:"content"`
	} `json:"message"`
}

func (s *ClaudeSession) readStdout(r interface{ Read([]byte) (int, error) }, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		for _, out := range parseStreamLine(line) {
			s.push(out)
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("claude stdout read error", zap.Error(err))
	}
}

func (s *ClaudeSession) readStderr(r interface{ Read([]byte) (int, error) }, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.logger.Debug("claude stderr", zap.String("line", line))
	}
}

func (s *ClaudeSession) waitForExit(readers *sync.WaitGroup) {
	// Wait closes the stdout/stderr pipes; both scanners must drain them
	// first or bytes still in flight at process exit are lost.
	readers.Wait()
	err := s.cmd.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	exitCode := 0
	if err != nil {
		exitCode = s.cmd.ProcessState.ExitCode()
		s.logger.Warn("claude process exited", zap.Error(err), zap.Int("exit_code", exitCode))
	} else {
		s.logger.Info("claude process exited cleanly")
	}

	s.push(&Output{Kind: OutputTerminated, ExitCode: exitCode})
	close(s.outputs)
}

// push blocks until the consumer drains a slot. Nothing is ever dropped;
// Terminate unblocks a writer so a killed session cannot wedge the reader
// goroutines.
func (s *ClaudeSession) push(out *Output) {
	select {
	case s.outputs <- out:
	case <-s.quit:
	}
}

// parseStreamLine converts one stream-json line into zero or more outputs.
// Lines that are not valid JSON are relayed verbatim.
func parseStreamLine(line string) []*Output {
	var ev streamEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return []*Output{{Kind: OutputLine, Text: line}}
	}

	switch ev.Type {
	case "assistant":
		if ev.Message == nil {
			return nil
		}
		var outs []*Output
		for _, c := range ev.Message.Content {
			switch c.Type {
			case "text":
				if c.Text != "" {
					outs = append(outs, &Output{Kind: OutputLine, Text: c.Text})
				}
			case "tool_use":
				outs = append(outs, &Output{Kind: OutputToolUse, ToolName: c.Name, Payload: c.Input})
			}
		}
		return outs
	case "result":
		if ev.IsError {
			return []*Output{{Kind: OutputError, Text: ev.Result}}
		}
		if ev.Result != "" {
			return []*Output{{Kind: OutputLine, Text: ev.Result}}
		}
		return nil
	case "system", "user":
		// init handshakes and echoed tool results are noise for observers
		return nil
	default:
		return []*Output{{Kind: OutputLine, Text: line}}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
