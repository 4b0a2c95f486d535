package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionSkipsConfigLoad(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "drivewatch dev")
	assert.Nil(t, appHandle)
}

func TestOptionalInt(t *testing.T) {
	v, err := optionalInt(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = optionalInt([]string{"300"})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 300, *v)

	_, err = optionalInt([]string{"five"})
	assert.Error(t, err)
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "check", "status", "deals", "history", "settings", "alert", "simulate-alert", "migrate", "prune-alerts", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestConfirmPrintsOnlyOnSuccess(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	require.NoError(t, confirm(cmd, nil))
	assert.Equal(t, "ok\n", out.String())

	out.Reset()
	boom := errors.New("boom")
	assert.ErrorIs(t, confirm(cmd, boom), boom)
	assert.Empty(t, out.String())
}
