package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	for _, name := range []string{"", "claude", "Claude"} {
		typ, err := ParseType(name)
		require.NoError(t, err)
		assert.Equal(t, TypeClaude, typ)
	}

	typ, err := ParseType("mock")
	require.NoError(t, err)
	assert.Equal(t, TypeMock, typ)

	_, err = ParseType("devin")
	assert.Error(t, err)
}

func TestFactoryAvailability(t *testing.T) {
	f := NewCLIFactory(nil)
	f.lookPath = func(string) (string, error) { return "/usr/bin/claude", nil }
	assert.True(t, f.IsAvailable(TypeClaude))
	assert.True(t, f.IsAvailable(TypeMock))
	assert.False(t, f.IsAvailable(Type("devin")))

	f.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	assert.False(t, f.IsAvailable(TypeClaude))
	assert.True(t, f.IsAvailable(TypeMock), "mock needs no binary")
}

func TestFactoryLaunchUnavailable(t *testing.T) {
	f := NewCLIFactory(nil)
	f.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	_, err := f.Launch(context.Background(), TypeClaude, "fix it", Config{WorkingDir: t.TempDir()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFactoryLaunchMock(t *testing.T) {
	f := NewCLIFactory(nil)
	sess, err := f.Launch(context.Background(), TypeMock, "fix it", Config{})
	require.NoError(t, err)
	assert.Equal(t, TypeMock, sess.Type())
	assert.True(t, sess.IsRunning())
}

func TestScriptedSessionReplaysOutputs(t *testing.T) {
	sess := NewScriptedSession(TypeMock, []*Output{
		{Kind: OutputLine, Text: "one"},
		{Kind: OutputToolUse, ToolName: "bash"},
		{Kind: OutputTerminated, ExitCode: 0},
	})
	ctx := context.Background()

	out, err := sess.ReadOutput(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", out.Text)

	out, err = sess.ReadOutput(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutputToolUse, out.Kind)
	assert.True(t, sess.IsRunning())

	out, err = sess.ReadOutput(ctx)
	require.NoError(t, err)
	assert.True(t, out.Terminal())
	assert.False(t, sess.IsRunning())

	// After the terminal output, nothing is pending, never another value.
	out, err = sess.ReadOutput(ctx)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestScriptedSessionAppendsTerminal(t *testing.T) {
	sess := NewScriptedSession(TypeMock, []*Output{{Kind: OutputLine, Text: "only"}})
	ctx := context.Background()

	out, err := sess.ReadOutput(ctx)
	require.NoError(t, err)
	assert.Equal(t, "only", out.Text)

	out, err = sess.ReadOutput(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, out.Terminal())
}

func TestScriptedSessionTerminate(t *testing.T) {
	sess := NewScriptedSession(TypeMock, []*Output{
		{Kind: OutputLine, Text: "one"},
		{Kind: OutputTerminated},
	})
	require.NoError(t, sess.Terminate())
	assert.False(t, sess.IsRunning())

	out, err := sess.ReadOutput(context.Background())
	require.NoError(t, err)
	assert.Nil(t, out)

	// Terminate is idempotent.
	require.NoError(t, sess.Terminate())
}

func TestScriptedSessionStatus(t *testing.T) {
	sess := NewScriptedSession(TypeMock, nil)
	sess.SetStatus("halfway there")
	status, err := sess.QueryStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "halfway there", status)
}

func TestParseStreamLineAssistantText(t *testing.T) {
	outs := parseStreamLine(`{"type":"assistant","message":{"content":[{"type":"text","text":"patched auth.go"}]}}`)
	require.Len(t, outs, 1)
	assert.Equal(t, OutputLine, outs[0].Kind)
	assert.Equal(t, "patched auth.go", outs[0].Text)
}

func TestParseStreamLineToolUse(t *testing.T) {
	outs := parseStreamLine(`{"type":"assistant","message":{"content":[
		{"type":"tool_use","name":"Bash","input":{"command":"go test ./..."}},
		{"type":"text","text":"running tests"}
	]}}`)
	require.Len(t, outs, 2)
	assert.Equal(t, OutputToolUse, outs[0].Kind)
	assert.Equal(t, "Bash", outs[0].ToolName)
	assert.JSONEq(t, `{"command":"go test ./..."}`, string(outs[0].Payload))
	assert.Equal(t, "running tests", outs[1].Text)
}

func TestParseStreamLineResult(t *testing.T) {
	outs := parseStreamLine(`{"type":"result","subtype":"success","result":"All tests pass","is_error":false}`)
	require.Len(t, outs, 1)
	assert.Equal(t, OutputLine, outs[0].Kind)
	assert.Equal(t, "All tests pass", outs[0].Text)

	outs = parseStreamLine(`{"type":"result","subtype":"error","result":"budget exhausted","is_error":true}`)
	require.Len(t, outs, 1)
	assert.Equal(t, OutputError, outs[0].Kind)
	assert.Equal(t, "budget exhausted", outs[0].Text)
}

func TestParseStreamLineNoiseDropped(t *testing.T) {
	assert.Empty(t, parseStreamLine(`{"type":"system","subtype":"init"}`))
	assert.Empty(t, parseStreamLine(`{"type":"user","message":{"content":[]}}`))
}

func TestParseStreamLineNonJSONPassesThrough(t *testing.T) {
	outs := parseStreamLine("plain progress output")
	require.Len(t, outs, 1)
	assert.Equal(t, OutputLine, outs[0].Kind)
	assert.Equal(t, "plain progress output", outs[0].Text)
}

func TestOutputTerminal(t *testing.T) {
	assert.True(t, (&Output{Kind: OutputTerminated}).Terminal())
	assert.False(t, (&Output{Kind: OutputLine}).Terminal())
	assert.False(t, (&Output{Kind: OutputError}).Terminal())
}
