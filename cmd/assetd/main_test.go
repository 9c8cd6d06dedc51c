package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	root := newRootCommand()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "sweep", "token"})

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("migrate"))

	assert.Equal(t, envFilePath, root.PersistentFlags().Lookup("env-file").DefValue)
}

func TestRootCommand_PrintsHelpWithoutArgs(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "assetd")
}
