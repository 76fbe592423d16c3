package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindVersion(t *testing.T) {
	deps := []*debug.Module{
		{Path: "github.com/rs/zerolog", Version: "v1.34.0"},
		{Path: wazeroModule, Version: "v1.8.2"},
	}
	require.Equal(t, "v1.8.2", findVersion(deps, wazeroModule))
	require.Equal(t, Default, findVersion(deps, "github.com/spf13/cobra"))

	replaced := []*debug.Module{
		{Path: wazeroModule, Version: "v1.8.2", Replace: &debug.Module{Path: "../wazero", Version: ""}},
	}
	require.Equal(t, Default, findVersion(replaced, wazeroModule))
}

func TestVersionOrDefault(t *testing.T) {
	require.Equal(t, Default, versionOrDefault(""))
	require.Equal(t, Default, versionOrDefault("(devel)"))
	require.Equal(t, "v0.1.0", versionOrDefault("v0.1.0"))
}

func TestGetVersion(t *testing.T) {
	require.NotEmpty(t, GetVersion())
	require.NotEmpty(t, GetWazeroVersion())
}
