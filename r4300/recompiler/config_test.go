package recompiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "r4300.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
mode = "dynarec"
backend = "portable"
cycles_per_op = 3
max_cycles = 100000
reset_pc = 0x80000000
portable_branch_range = 4096
log_modules = "translate,inval"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, DynamicRecompiler, cfg.Mode)
	require.Equal(t, BackendPortable, cfg.Backend)
	require.Equal(t, uint64(3), cfg.CyclesPerOp)
	require.Equal(t, uint64(100000), cfg.MaxCycles)
	require.Equal(t, uint32(0x80000000), cfg.ResetPC)
	require.Equal(t, int32(4096), cfg.PortableBranchRange)
	require.Equal(t, "translate,inval", cfg.LogModules)
	// untouched keys keep their defaults
	require.Equal(t, DefaultInitialCodeSize, cfg.InitialCodeSize)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `mode = "jit"`))
	require.ErrorIs(t, err, ErrUnknownMode)
	require.Contains(t, err.Error(), `"jit"`)

	cfg, err := LoadConfig(writeConfig(t, "mode = \"Pure-Interpret\"\nbackend = \"aarch64\""))
	require.NoError(t, err)
	require.Equal(t, PureInterpreter, cfg.Mode)
	require.Equal(t, BackendARM64, cfg.Backend)

	_, err = LoadConfig(writeConfig(t, `backend = "riscv"`))
	require.ErrorIs(t, err, ErrUnknownBackend)

	_, err = LoadConfig(writeConfig(t, `initial_code_size = 0`))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `mode = `))
	require.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Mode = Mode(3)
	require.ErrorIs(t, cfg.Validate(), ErrUnknownMode)

	cfg = DefaultConfig()
	cfg.Backend = Backend(3)
	require.ErrorIs(t, cfg.Validate(), ErrUnknownBackend)

	cfg = DefaultConfig()
	cfg.PortableBranchRange = -1
	require.Error(t, cfg.Validate())
}

func TestParseModeAndBackend(t *testing.T) {
	modes := map[string]Mode{
		"pure":              PureInterpreter,
		"interpreter":       PureInterpreter,
		"Pure-Interpret":    PureInterpreter,
		"cached":            CachedInterpreter,
		"cached-interpret":  CachedInterpreter,
		"dynarec":           DynamicRecompiler,
		"recompiler":        DynamicRecompiler,
		"dynamic-recompile": DynamicRecompiler,
	}
	for s, want := range modes {
		got, err := ParseMode(s)
		require.NoError(t, err, s)
		require.Equal(t, want, got, s)
	}
	backends := map[string]Backend{
		"portable": BackendPortable,
		"threaded": BackendPortable,
		"amd64":    BackendAMD64,
		"x86_64":   BackendAMD64,
		"X86-64":   BackendAMD64,
		"arm64":    BackendARM64,
		"aarch64":  BackendARM64,
	}
	for s, want := range backends {
		got, err := ParseBackend(s)
		require.NoError(t, err, s)
		require.Equal(t, want, got, s)
	}

	_, err := ParseMode("")
	require.ErrorIs(t, err, ErrUnknownMode)
	_, err = ParseBackend("mips")
	require.ErrorIs(t, err, ErrUnknownBackend)

	require.Equal(t, "mode(9)", Mode(9).String())
	text, err := DynamicRecompiler.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "dynarec", string(text))
}
