package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Minimal test scenario",
		Flow: []Step{
			{As: "alice", Op: "whoami"},
		},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Op: "whoami"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, int64(1), result.Trace[0].Seq)
	assert.Equal(t, CodeOK, result.Trace[0].Code)
	assert.Equal(t, map[string]any{"principal": "alice"}, result.Trace[0].Result)
}

func TestRun_SaveAndSubstitute(t *testing.T) {
	scenario := &Scenario{
		Name:        "save",
		Description: "IDs flow from one step to the next",
		Setup: []Step{
			{As: "alice", Op: "note.create", Save: "note"},
		},
		Flow: []Step{
			{As: "alice", Op: "note.update", Args: map[string]any{"id": "$note", "text": "sealed"}},
			{As: "alice", Op: "note.list", Expect: &ExpectClause{Code: CodeOK}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, As: "alice", List: "notes", Count: intPtr(1),
				Contains: map[string]any{"id": "1", "encrypted_text": "sealed"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	require.Len(t, result.Trace, 3)

	// Traced args keep the variable, not its value.
	assert.Equal(t, "$note", result.Trace[1].Args["id"])
}

func TestRun_ExpectationFailuresAreReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "failing",
		Description: "Expectations that do not hold",
		Setup: []Step{
			{As: "alice", Op: "note.create", Save: "note"},
		},
		Flow: []Step{
			{As: "bob", Op: "note.delete", Args: map[string]any{"id": "$note"}},
			{As: "alice", Op: "note.create", Expect: &ExpectClause{Code: CodeOK, Result: map[string]any{"id": "7"}}},
			{As: "alice", Op: "note.create", Expect: &ExpectClause{Code: "NOT_FOUND"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Op: "note.create", Count: intPtr(1)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "expected OK, got UNAUTHORIZED")
	assert.Contains(t, result.Errors[1], "does not match")
	assert.Contains(t, result.Errors[2], "expected NOT_FOUND, got OK")
	assert.Contains(t, result.Errors[3], "trace_count")
}

func TestRun_SetupMustSucceed(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_setup",
		Description: "Setup refused",
		Setup: []Step{
			{As: "", Op: "note.create"},
		},
		Flow:       []Step{{As: "alice", Op: "whoami"}},
		Assertions: []Assertion{{Type: AssertConsistent}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed with UNAUTHORIZED")
}

func TestRun_UnboundVariable(t *testing.T) {
	scenario := &Scenario{
		Name:        "unbound",
		Description: "Unbound variable",
		Flow: []Step{
			{As: "alice", Op: "note.delete", Args: map[string]any{"id": "$missing"}},
		},
		Assertions: []Assertion{{Type: AssertConsistent}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$missing is not bound")
}

func TestRun_LimitOverrides(t *testing.T) {
	scenario := &Scenario{
		Name:        "limits",
		Description: "One grantee per note",
		Limits:      &LimitOverrides{MaxGrantees: 1},
		Setup: []Step{
			{As: "alice", Op: "note.create", Save: "note"},
			{As: "alice", Op: "note.share", Args: map[string]any{"id": "$note", "grantee": "bob"}},
		},
		Flow: []Step{
			{As: "alice", Op: "note.share", Args: map[string]any{"id": "$note", "grantee": "carol"},
				Expect: &ExpectClause{Code: "CAPACITY_EXCEEDED"}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, As: "carol", List: "notes", Count: intPtr(0)},
			{Type: AssertConsistent},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_TokenSecretIsBoundNotTraced(t *testing.T) {
	scenario := &Scenario{
		Name:        "token",
		Description: "Secrets stay out of the trace",
		Setup: []Step{
			{As: "alice", Op: "passport.create", Args: map[string]any{"name": "scout"}, Save: "agent"},
		},
		Flow: []Step{
			{As: "alice", Op: "token.create", Args: map[string]any{"passport": "$agent", "permissions": []any{"*"}}, Save: "tok"},
			{As: "alice", Op: "token.verify", Args: map[string]any{"id": "$tok", "secret": "$tok.secret", "permission": "notes.read"}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, As: "alice", List: "tokens", Count: intPtr(1),
				Contains: map[string]any{"token_hash": "", "is_active": true}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	snapshot, err := Snapshot(scenario.Name, result)
	require.NoError(t, err)
	assert.Contains(t, string(snapshot), "$tok.secret")
	assert.NotContains(t, string(snapshot), "enc_")
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "job_lifecycle.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRunWithGolden_ShareNote(t *testing.T) {
	scenario := &Scenario{
		Name:        "share_note_trace",
		Description: "Trace of a shared note",
		Setup: []Step{
			{As: "alice", Op: "note.create", Save: "note"},
		},
		Flow: []Step{
			{As: "alice", Op: "note.share", Args: map[string]any{"id": "$note", "grantee": "bob"}},
			{As: "alice", Op: "note.update", Args: map[string]any{"id": "$note", "text": "hello"}},
			{As: "bob", Op: "note.delete", Args: map[string]any{"id": "$note"}, Expect: &ExpectClause{Code: "UNAUTHORIZED"}},
			{As: "bob", Op: "note.list"},
		},
		Assertions: []Assertion{{Type: AssertConsistent}},
	}

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestScenarioFiles(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}
