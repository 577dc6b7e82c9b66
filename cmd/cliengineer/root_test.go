package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_HasEveryRunSubcommand(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"code", "refactor", "review", "docs", "security"} {
		assert.True(t, names[want], "expected subcommand %q", want)
	}
}

// TestCommandCategory_EveryRunSubcommandForcesANonEmptyCategory covers
// the contract that each subcommand forces its own interpreter
// category rather than leaving it to keyword inference on the command
// word; "code", "docs", and "security" aren't recognized keywords and
// would otherwise fall through to the completion category.
func TestCommandCategory_EveryRunSubcommandForcesANonEmptyCategory(t *testing.T) {
	for _, name := range []string{"code", "refactor", "review", "docs", "security"} {
		assert.NotEmpty(t, commandCategory[name], "expected a forced category for %q", name)
	}
}

func TestRootCmd_HasPersistentFlags(t *testing.T) {
	for _, name := range []string{"verbose", "no-dashboard", "config"} {
		f := rootCmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, "expected persistent flag %q", name)
	}
}

func TestNewRunCommand_RequiresArgRejectsNoPrompt(t *testing.T) {
	cmd := newRunCommand("code", "Generate new code for the given prompt", true)
	err := cmd.Args(cmd, nil)
	require.Error(t, err)
}

func TestNewRunCommand_OptionalArgAcceptsNoPrompt(t *testing.T) {
	cmd := newRunCommand("docs", "Generate or update documentation", false)
	err := cmd.Args(cmd, nil)
	require.NoError(t, err)
}

func TestNewRunCommand_RejectsMoreThanOnePositionalArg(t *testing.T) {
	cmd := newRunCommand("review", "Review existing code and report issues", false)
	err := cmd.Args(cmd, []string{"first", "second"})
	require.Error(t, err)
}
