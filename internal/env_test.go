package internal

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestRegisterCommandFlags(t *testing.T) {
	cmd := &cobra.Command{}
	f := &Flag{Name: "test-port", Default: "6665", Usage: "test"}
	require.NoError(t, RegisterCommandFlags(cmd, []*Flag{f}))
	require.Error(t, RegisterCommandFlags(cmd, []*Flag{f}), "duplicate registration must fail")
	require.Error(t, RegisterCommandFlags(cmd, []*Flag{{}}), "unnamed flag must fail")
}

func TestResolvePrecedence(t *testing.T) {
	cmd := &cobra.Command{}
	f := &Flag{Name: "resolve-check", Default: "1000"}
	require.NoError(t, RegisterCommandFlags(cmd, []*Flag{f}))

	require.Equal(t, "1000", f.resolve())

	t.Setenv("MINIRC_RESOLVE_CHECK", "2000")
	require.Equal(t, "2000", f.resolve())

	require.NoError(t, cmd.PersistentFlags().Set("resolve-check", "3000"))
	require.Equal(t, "3000", f.resolve(), "explicit flag beats env")
}

func TestValidateEnv(t *testing.T) {
	require.NoError(t, ValidateEnv())
	require.Equal(t, uint16(6665), Port)
	require.Equal(t, "minirc.local", ServerName)
	require.Equal(t, "#general", Channel)

	t.Setenv("MINIRC_PORT", "notaport")
	require.Error(t, ValidateEnv())

	t.Setenv("MINIRC_PORT", "6665")
	t.Setenv("MINIRC_CHANNEL", "nohash")
	require.Error(t, ValidateEnv())

	t.Setenv("MINIRC_CHANNEL", "&ops")
	require.NoError(t, ValidateEnv())
	require.Equal(t, "&ops", Channel)
}
