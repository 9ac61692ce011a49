package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlags(t *testing.T) {
	cmd := newRootCmd()

	// -h is the host shorthand; help keeps only its long form.
	hostFlag := cmd.Flags().ShorthandLookup("h")
	require.NotNil(t, hostFlag)
	assert.Equal(t, "host", hostFlag.Name)
	assert.Equal(t, "localhost", hostFlag.DefValue)

	helpFlag := cmd.PersistentFlags().Lookup("help")
	require.NotNil(t, helpFlag)
	assert.Empty(t, helpFlag.Shorthand)

	assert.Equal(t, "3010", cmd.Flags().Lookup("port").DefValue)
	assert.Equal(t, "u", cmd.Flags().Lookup("username").Shorthand)
}
