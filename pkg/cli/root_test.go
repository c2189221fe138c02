package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(args ...string) (string, error) {
	cmd := NewRootCommand("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand("1.2.3")
	require.NotNil(t, cmd)
	assert.Equal(t, "factgraph", cmd.Use)
	assert.Equal(t, "1.2.3", cmd.Version)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand("test")
	commands := []string{"migrate", "import-types", "save-fact", "show-fact", "retract", "scan", "reindex", "migrate-time-global"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand("test")

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	envOnlyFlag := cmd.PersistentFlags().Lookup("env-only")
	require.NotNil(t, envOnlyFlag)
	assert.Equal(t, "false", envOnlyFlag.DefValue)
}

func TestSaveFactCommandFlags(t *testing.T) {
	cmd := NewRootCommand("test")
	saveCmd, _, err := cmd.Find([]string{"save-fact"})
	require.NoError(t, err)

	for _, name := range []string{"type", "value", "source", "destination", "bidirectional", "in-reference-to", "origin", "organization", "user", "access", "confidence", "trust", "comment", "acl"} {
		assert.NotNil(t, saveCmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "RoleBased", saveCmd.Flags().Lookup("access").DefValue)
}

func TestReindexCommandFlags(t *testing.T) {
	cmd := NewRootCommand("test")
	reindexCmd, _, err := cmd.Find([]string{"reindex"})
	require.NoError(t, err)

	for _, name := range []string{"start", "end", "refreshed", "fact-id", "workers"} {
		assert.NotNil(t, reindexCmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute("--format", "xml", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRequiredFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "save-fact without type", args: []string{"save-fact", "--origin", "feed"}, want: "type"},
		{name: "scan without start", args: []string{"scan"}, want: "start"},
		{name: "reindex without selection", args: []string{"reindex"}, want: "fact-id"},
		{name: "reindex ids and window", args: []string{"reindex", "--fact-id", "6f1c2d8e-0000-4000-8000-000000000000", "--start", "2024-03-01"}, want: "fact-id"},
		{name: "migrate-time-global without start", args: []string{"migrate-time-global"}, want: "start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestArgumentsAreCheckedBeforeConnecting(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "scan with bad start", args: []string{"scan", "--start", "yesterday"}},
		{name: "scan with empty window", args: []string{"scan", "--start", "2024-03-02", "--end", "2024-03-01"}},
		{name: "show-fact with bad id", args: []string{"show-fact", "not-an-id"}},
		{name: "retract with bad id", args: []string{"retract", "not-an-id"}},
		{name: "reindex with bad id", args: []string{"reindex", "--fact-id", "not-an-id"}},
		{name: "import-types with missing file", args: []string{"import-types", "does-not-exist.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(tt.args...)
			assert.Error(t, err)
		})
	}
}
