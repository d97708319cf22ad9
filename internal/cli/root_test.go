package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "okra", cmd.Use)
	assert.Contains(t, cmd.Short, "activity ledger")
	assert.Contains(t, cmd.Long, "isolated ledger file")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"serve", "add-user", "remove-user",
		"create-action", "link-action", "actions",
		"log", "notate", "notes", "activities",
	}

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
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	configFlag := serveCmd.Flags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	// --config is required, so default is empty
	assert.Equal(t, "", configFlag.DefValue)

	for _, name := range []string{"listen", "data-dir", "users-db"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(name), name)
	}
}

func TestAddUserCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	addCmd, _, err := cmd.Find([]string{"add-user"})
	require.NoError(t, err)

	usernameFlag := addCmd.Flags().Lookup("username")
	require.NotNil(t, usernameFlag)
	assert.Equal(t, "u", usernameFlag.Shorthand)

	passwordFlag := addCmd.Flags().Lookup("password")
	require.NotNil(t, passwordFlag)
	assert.Equal(t, "p", passwordFlag.Shorthand)

	costFlag := addCmd.Flags().Lookup("cost")
	require.NotNil(t, costFlag)
	assert.Equal(t, "10", costFlag.DefValue)
}

func TestLinkActionCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	linkCmd, _, err := cmd.Find([]string{"link-action"})
	require.NoError(t, err)

	parentFlag := linkCmd.Flags().Lookup("parent-action")
	require.NotNil(t, parentFlag)
	assert.Equal(t, "p", parentFlag.Shorthand)

	childFlag := linkCmd.Flags().Lookup("child-action")
	require.NotNil(t, childFlag)
	assert.Equal(t, "c", childFlag.Shorthand)
}

func TestPagingFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"actions", "notes", "activities"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)

			limitFlag := sub.Flags().Lookup("limit")
			require.NotNil(t, limitFlag)
			assert.Equal(t, "50", limitFlag.DefValue)
			assert.NotNil(t, sub.Flags().Lookup("after"))
		})
	}
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
	cmd.SetArgs([]string{"--format", "invalid", "actions", "ledger.sqlite"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestDiagnosticLogger(t *testing.T) {
	quiet := &RootOptions{}
	logger, err := quiet.diagnosticLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1), "silent without --verbose")

	loud := &RootOptions{Verbose: true}
	logger, err = loud.diagnosticLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1), "debug level with --verbose")
}
