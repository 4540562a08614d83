package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]string{"trace": "TRACE", "debug": "DEBUG", "Info": "INFO ", "warning": "WARN ", "crit": "CRIT "} {
		lvl, err := ParseLevel(in)
		require.NoError(t, err)
		require.Equal(t, want, LevelAlignedString(lvl))
	}
	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestModuleFilter(t *testing.T) {
	var buf bytes.Buffer
	prev := Root()
	defer SetDefault(prev)
	SetDefault(NewLogger(NewTerminalHandlerWithLevel(&buf, LevelTrace, false)))

	Debug(Link, "hidden")
	require.Empty(t, buf.String())

	EnableModules("r4300_link, ")
	defer DisableModule(Link)
	Debug(Link, "patched", "site", uint64(0x40))
	require.Contains(t, buf.String(), "patched")
	require.Contains(t, buf.String(), "module=r4300_link")
	require.Contains(t, buf.String(), "site=64")

	EnableModules("inval")
	defer DisableModule(Inval)
	Trace(Inval, "page stale")
	require.Contains(t, buf.String(), "module=r4300_inval")

	buf.Reset()
	Info(Exec, "always shown")
	require.Contains(t, buf.String(), "always shown")
	require.Contains(t, buf.String(), "INFO ")
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	prev := Root()
	defer SetDefault(prev)
	SetDefault(NewLogger(NewTerminalHandlerWithLevel(&buf, LevelWarn, false)))

	Info(Exec, "below level")
	require.Empty(t, buf.String())
	Warn(Exec, "unit torn down", "start", uint64(0x80000000))
	require.Contains(t, buf.String(), "WARN ")
	require.Contains(t, buf.String(), "unit torn down")
	require.Contains(t, buf.String(), "module=r4300_exec")

	SetDefault(NewLogger(DiscardHandler()))
	require.False(t, Root().Enabled(context.Background(), LevelCrit))
}
