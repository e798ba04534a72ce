package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"valuate", "detect", "serve", "feedback", "sales", "migrate", "valuations"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "valuation-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestValuateCommand_Flags(t *testing.T) {
	for _, name := range []string{"file", "export", "output", "offline", "limit", "workers"} {
		assert.NotNil(t, valuateCmd.Flags().Lookup(name), "valuate should have --%s flag", name)
	}
	file := valuateCmd.Flags().Lookup("file")
	require.NotNil(t, file)
	assert.Equal(t, []string{"true"}, file.Annotations["cobra_annotation_bash_completion_one_required_flag"])
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
	assert.NotNil(t, serveCmd.Flags().Lookup("offline"))
}

func TestFeedbackCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range feedbackCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["add"])
	assert.True(t, names["list"])

	limit := feedbackListCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "30", limit.DefValue)
}

func TestValuationsCommand_Flags(t *testing.T) {
	for _, name := range []string{"batch", "brand", "limit"} {
		assert.NotNil(t, valuationsListCmd.Flags().Lookup(name), "valuations list should have --%s flag", name)
	}
	assert.Error(t, valuationsShowCmd.Args(valuationsShowCmd, nil))
}

func TestSalesImportCommand_Flags(t *testing.T) {
	assert.NotNil(t, salesImportCmd.Flags().Lookup("file"))
	assert.NotNil(t, detectCmd.Flags().Lookup("json"))
}
