//go:build unicorn
// +build unicorn

package recompiler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSandboxMatchesInterpreter(t *testing.T) {
	pure, _ := newTestCore(t, modeConfig(PureInterpreter), modesProgram()...)
	require.NoError(t, pure.Run())

	cfg := modeConfig(DynamicRecompiler)
	cfg.Backend = BackendAMD64
	c, _ := newTestCore(t, cfg, modesProgram()...)
	require.NoError(t, c.Run())
	require.Equal(t, pure.Registers(), c.Registers())
	require.Zero(t, c.Stats().Fallbacks)
}

func TestSandboxSelfModifyingStore(t *testing.T) {
	cfg := modeConfig(DynamicRecompiler)
	cfg.Backend = BackendAMD64
	c, _ := newTestCore(t, cfg, addStoreLoad()...)
	require.NoError(t, c.Run())
	require.Equal(t, uint64(12), c.State().GPR[3])
	require.Equal(t, uint64(12), c.State().GPR[5])
}
