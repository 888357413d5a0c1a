package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandStructure(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["harvest"])
	assert.True(t, names["recover"])
	assert.True(t, names["serve"])
}

func TestHarvestCommandFlags(t *testing.T) {
	t.Parallel()

	cmd := newHarvestCmd()
	flag := cmd.Flags().Lookup("harvest-file")
	require.NotNil(t, flag)
	assert.Equal(t, "harvest.yml", flag.DefValue)
}
