package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_Structure(t *testing.T) {
	root := NewRootCmd()

	assert.Equal(t, "semidex", root.Use)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "index")
	assert.Contains(t, names, "search")
	assert.Contains(t, names, "status")
}

func TestNewRootCmd_WorkspaceFlag(t *testing.T) {
	root := NewRootCmd()

	flag := root.PersistentFlags().Lookup("workspace")
	require.NotNil(t, flag)
	assert.Equal(t, ".", flag.DefValue)
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"search"})

	err := root.Execute()
	require.Error(t, err)
}
