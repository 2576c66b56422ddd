package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bulkstep/internal/model"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "bulkstep", cmd.Use)
	assert.Contains(t, cmd.Long, "cascading foreign keys")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"order", "import", "diff", "simulate", "delete", "sql"}

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
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "db", "schema"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		// Empty means "use the config file or environment".
		assert.Equal(t, "", flag.DefValue)
	}
}

func TestImportCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	importCmd, _, err := cmd.Find([]string{"import"})
	require.NoError(t, err)

	stepFlag := importCmd.Flags().Lookup("step")
	require.NotNil(t, stepFlag)
	assert.Equal(t, "0", stepFlag.DefValue)

	atomicFlag := importCmd.Flags().Lookup("atomic")
	require.NotNil(t, atomicFlag)
	assert.Equal(t, "true", atomicFlag.DefValue)
}

func TestDeleteCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	deleteCmd, _, err := cmd.Find([]string{"delete"})
	require.NoError(t, err)

	for _, name := range []string{"type", "id", "step", "dry-run"} {
		assert.NotNil(t, deleteCmd.Flags().Lookup(name), name)
	}
}

func TestDiffCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	diffCmd, _, err := cmd.Find([]string{"diff"})
	require.NoError(t, err)

	assert.NotNil(t, diffCmd.Flags().Lookup("type"))
	assert.NotNil(t, diffCmd.Flags().Lookup("fields"))
}

func TestCommandHelp(t *testing.T) {
	cmd := NewRootCommand()

	assert.Contains(t, cmd.Short, "bulkstep")
	assert.Contains(t, cmd.Long, "bounded chunks")
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "order"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestParseIDs(t *testing.T) {
	serial := &model.EntityType{Name: "Author"}
	ids, err := parseIDs(serial, []string{"3", "10"})
	require.NoError(t, err)
	assert.Equal(t, []model.Value{model.Int(3), model.Int(10)}, ids)

	_, err = parseIDs(serial, []string{"x"})
	require.Error(t, err)
	assert.True(t, model.IsConfigurationError(err))

	keyed := &model.EntityType{Name: "Publisher", Key: model.KeyUUID}
	ids, err = parseIDs(keyed, []string{"0192e4a0-7b7e-7cc1-9d3f-6f2a1c1d2e3f"})
	require.NoError(t, err)
	assert.Equal(t, []model.Value{model.String("0192e4a0-7b7e-7cc1-9d3f-6f2a1c1d2e3f")}, ids)
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"n=3", "r=1.5", "s=hello", "e="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": int64(3), "r": 1.5, "s": "hello", "e": ""}, params)

	params, err = parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)

	_, err = parseParams([]string{"=1"})
	assert.Error(t, err)
}
