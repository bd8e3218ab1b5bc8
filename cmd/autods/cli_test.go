package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/autods/agent/mock"
	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/kernel"
	"github.com/tailored-agentic-units/autods/memory"
	"github.com/tailored-agentic-units/autods/session"
	"github.com/tailored-agentic-units/autods/transport"
)

func executeCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scores.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,score\na,1\nb,2\nc,3\n"), 0o644))
	return path
}

func TestExec_Code(t *testing.T) {
	stdout, _, err := executeCLI(t, "", "exec", "--code", "print(1 + 2)")
	require.NoError(t, err)
	assert.Equal(t, "3\n\n", stdout)
}

func TestExec_Stdin(t *testing.T) {
	stdout, _, err := executeCLI(t, "x = 4\nprint(x * x)\n", "exec", "-")
	require.NoError(t, err)
	assert.Contains(t, stdout, "16")
}

func TestExec_WithData(t *testing.T) {
	stdout, _, err := executeCLI(t, "", "exec", "--data", writeCSV(t), "--code", "print(df.shape)")
	require.NoError(t, err)
	assert.Contains(t, stdout, "(3, 2)")
}

func TestExec_Failure(t *testing.T) {
	stdout, _, err := executeCLI(t, "", "exec", "--code", "fail('bad')")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ExecutionError")
	assert.True(t, strings.HasPrefix(stdout, "ERROR:\n"))
}

func TestExec_NothingToRun(t *testing.T) {
	_, _, err := executeCLI(t, "", "exec")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to run")
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("AUTODS_SANDBOX", "bogus")

	_, _, err := executeCLI(t, "", "exec", "--code", "print(1)")
	require.Error(t, err)
	assert.ErrorIs(t, err, kernel.ErrInvalidConfig)
}

func TestConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autods.toml")
	require.NoError(t, os.WriteFile(path, []byte("max_retries = 7\n[sandbox]\ntimeout = \"5s\"\n"), 0o644))
	t.Setenv("AUTODS_API_KEY", "sk-secret")

	stdout, _, err := executeCLI(t, "", "config", "--config", path, "--max-iterations", "4", "--model", "gpt-test")
	require.NoError(t, err)

	var cfg kernel.Config
	require.NoError(t, json.Unmarshal([]byte(stdout), &cfg))
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, 4, cfg.MaxIterations)
	assert.Equal(t, "gpt-test", cfg.Agent.Model.Name)
	assert.Equal(t, "5s", cfg.Sandbox.Timeout.Std().String())
	assert.Equal(t, redacted, cfg.Agent.Provider.APIKey)
	assert.NotContains(t, stdout, "sk-secret")
}

func TestLogger_UnknownFormat(t *testing.T) {
	_, _, err := executeCLI(t, "", "exec", "--log-format", "xml", "--code", "print(1)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log format")
}

func TestREPL(t *testing.T) {
	a := mock.NewMockAgent().
		Reply("", mock.ExecuteCode("call_1", "print(df.shape)")).
		Reply("The table has 3 rows.")
	cfg := kernel.DefaultConfig()
	ctx := context.Background()

	k, err := kernel.New(ctx, &cfg,
		kernel.WithAgent(a),
		kernel.WithSession(session.NewMemorySessionWithID("repl")),
	)
	require.NoError(t, err)
	defer k.Close()

	var out bytes.Buffer
	in := strings.NewReader("/data\n/load " + writeCSV(t) + "\nhow many rows?\n/bogus\n/exit\n")
	require.NoError(t, repl(ctx, k, in, &out))

	got := out.String()
	assert.Contains(t, got, "No dataset loaded.")
	assert.Contains(t, got, "The variable `df` holds a table loaded from scores.csv")
	assert.Contains(t, got, "```python\nprint(df.shape)\n```")
	assert.Contains(t, got, "(3, 2)")
	assert.Contains(t, got, "The table has 3 rows.")
	assert.Contains(t, got, "unknown command /bogus")
}

func TestAsk(t *testing.T) {
	a := mock.NewMockAgent().Reply("hello from the server")
	cfg := kernel.DefaultConfig()
	reg, err := kernel.NewRegistry(&cfg, kernel.WithKernelOptions(kernel.WithAgent(a)))
	require.NoError(t, err)
	ts := httptest.NewServer(transport.NewServer(reg).Handler())
	defer func() {
		ts.Close()
		reg.CloseAll(context.Background())
	}()

	stdout, stderr, err := executeCLI(t, "", "ask", "--server", ts.URL, "--data", writeCSV(t), "hi")
	require.NoError(t, err)
	assert.Contains(t, stdout, "hello from the server")
	assert.Contains(t, stderr, "Loaded scores.csv")
	assert.Len(t, reg.IDs(), 1)
}

func TestObservers_Unknown(t *testing.T) {
	_, _, err := executeCLI(t, "", "exec", "--observers", "nope", "--code", "print(1)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown observer")
}

func TestWorkspace_Notes(t *testing.T) {
	dir := t.TempDir()

	_, _, err := executeCLI(t, "", "--memory", dir, "workspace", "note", "units", "Prices are in cents.")
	require.NoError(t, err)
	_, _, err = executeCLI(t, "Join on customer_id.\n", "--memory", dir, "workspace", "note", "joins.md")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, "", "--memory", dir, "workspace", "notes")
	require.NoError(t, err)
	assert.Equal(t, "Join on customer_id.\n\nPrices are in cents.\n", stdout)
	assert.FileExists(t, filepath.Join(dir, "notes", "units.md"))
}

func TestWorkspace_SQLite(t *testing.T) {
	uri := "sqlite://" + filepath.Join(t.TempDir(), "workspace.db")

	_, _, err := executeCLI(t, "", "--memory", uri, "workspace", "note", "fy", "Fiscal year starts in April.")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, "", "--memory", uri, "workspace", "notes")
	require.NoError(t, err)
	assert.Equal(t, "Fiscal year starts in April.\n", stdout)

	stdout, _, err = executeCLI(t, "", "--memory", uri, "workspace", "sessions")
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestWorkspace_Transcript(t *testing.T) {
	dir := t.TempDir()
	ws := memory.NewWorkspace(memory.NewFileStore(dir))
	require.NoError(t, ws.Snapshot(context.Background(), "s1", []protocol.Message{
		protocol.NewMessage(protocol.RoleUser, "how many rows?"),
		{Role: protocol.RoleAssistant, ToolCalls: []protocol.ToolCall{
			{ID: "call_1", Name: "execute_code", Arguments: `{"code":"print(len(df))"}`},
		}},
		{Role: protocol.RoleTool, Content: "3\n", ToolCallID: "call_1"},
	}))

	stdout, _, err := executeCLI(t, "", "--memory", dir, "workspace", "sessions")
	require.NoError(t, err)
	assert.Equal(t, "s1\n", stdout)

	stdout, _, err = executeCLI(t, "", "--memory", dir, "workspace", "transcript", "s1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "[user]\nhow many rows?\n")
	assert.Contains(t, stdout, `[assistant] execute_code({"code":"print(len(df))"})`)
	assert.Contains(t, stdout, "[tool]\n3\n")

	_, _, err = executeCLI(t, "", "--memory", dir, "workspace", "transcript", "missing")
	assert.ErrorIs(t, err, memory.ErrKeyNotFound)
}

func TestWorkspace_NotConfigured(t *testing.T) {
	_, _, err := executeCLI(t, "", "workspace", "sessions")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no workspace configured")
}
