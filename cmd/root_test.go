package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	t.Parallel()

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	assert.True(t, names["serve"], "serve subcommand registered")
	assert.True(t, names["version"], "version subcommand registered")
}

func TestRootCommandDefaultsToServe(t *testing.T) {
	t.Parallel()

	require.NotNil(t, rootCmd.RunE, "bare invocation must start the server")
}
