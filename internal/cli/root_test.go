package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cliResult is the decoded output of one CLI invocation.
type cliResult struct {
	Stdout string
	Stderr string
	Err    error
}

// decode parses Stdout as a JSON CLIResponse with generic data.
func (r cliResult) decode(t *testing.T) (status string, data any, cliErr *CLIError) {
	t.Helper()
	var resp struct {
		Status string    `json:"status"`
		Data   any       `json:"data"`
		Error  *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.Stdout), &resp), "stdout: %s", r.Stdout)
	return resp.Status, resp.Data, resp.Error
}

func (r cliResult) dataMap(t *testing.T) map[string]any {
	t.Helper()
	status, data, _ := r.decode(t)
	require.Equal(t, "ok", status, "stdout: %s", r.Stdout)
	m, ok := data.(map[string]any)
	require.True(t, ok, "data is %T", data)
	return m
}

func (r cliResult) dataList(t *testing.T) []any {
	t.Helper()
	status, data, _ := r.decode(t)
	require.Equal(t, "ok", status, "stdout: %s", r.Stdout)
	if data == nil {
		return nil
	}
	l, ok := data.([]any)
	require.True(t, ok, "data is %T", data)
	return l
}

// runCLI executes the root command against dbPath with the given args.
func runCLI(t *testing.T, dbPath string, args ...string) cliResult {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db", dbPath}, args...))
	err := cmd.Execute()
	return cliResult{Stdout: out.String(), Stderr: errOut.String(), Err: err}
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "enclave.db")
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "enclave", cmd.Use)
	assert.Contains(t, cmd.Long, "key derivation")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"}, {"whoami"}, {"fsck"}, {"config", "show"}, {"test"},
		{"note", "create"}, {"note", "list"}, {"note", "update"}, {"note", "delete"},
		{"note", "share"}, {"note", "unshare"},
		{"key", "verification"}, {"key", "transport"}, {"key", "derive"},
		{"passport", "create"}, {"passport", "list"}, {"passport", "show"},
		{"passport", "set-active"}, {"passport", "delete"},
		{"memory", "add"}, {"memory", "list"}, {"memory", "delete"},
		{"token", "create"}, {"token", "list"}, {"token", "revoke"}, {"token", "verify"},
		{"job", "create"}, {"job", "show"}, {"job", "list"}, {"job", "advance"}, {"job", "run"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(filepath.Join(path...), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "enclave.db", dbFlag.DefValue)

	for _, name := range []string{"config", "as"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	listenFlag := serveCmd.Flags().Lookup("listen")
	require.NotNil(t, listenFlag)
	assert.Equal(t, "127.0.0.1:8420", listenFlag.DefValue)
	assert.NotNil(t, serveCmd.Flags().Lookup("expose-kdf"))
	assert.NotNil(t, serveCmd.Flags().Lookup("insecure-dev-key"))
}

func TestInvalidFormat(t *testing.T) {
	res := runCLI(t, tempDB(t), "--format", "xml", "whoami")
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "invalid format")
}

func TestMissingConfigFile(t *testing.T) {
	res := runCLI(t, tempDB(t), "--config", filepath.Join(t.TempDir(), "nope.yaml"), "whoami")
	require.Error(t, res.Err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.Err))
}
