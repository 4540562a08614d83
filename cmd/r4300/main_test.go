package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/nsf/jsondiff"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/r4300/r4300/isa"
	"github.com/colorfulnotion/r4300/r4300/performance"
	"github.com/colorfulnotion/r4300/r4300/recompiler"
)

const base = 0x80000000

func testImage(t *testing.T) string {
	t.Helper()
	words := []uint32{
		isa.Addiu(1, 0, 4),
		isa.Addu(2, 2, 1),
		isa.Addiu(1, 1, -1),
		isa.Bne(base+0xc, 1, 0, base+4),
		isa.Nop(),
		isa.Lui(30, 0xbfff),
		isa.Sw(0, 30, 0),
		isa.Beq(base+0x1c, 0, 0, base+0x1c),
		isa.Nop(),
	}
	image := make([]byte, 4*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint32(image[4*i:], w)
	}
	path := filepath.Join(t.TempDir(), "loop.bin")
	require.NoError(t, os.WriteFile(path, image, 0o644))
	return path
}

func parsedOptions(t *testing.T, args ...string) (*options, *cobra.Command) {
	t.Helper()
	opts := &options{}
	cmd := &cobra.Command{Use: "test"}
	opts.register(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return opts, cmd
}

func TestConfigFlags(t *testing.T) {
	opts, cmd := parsedOptions(t, "--mode", "dynarec", "--reset-pc", "0xa0001000", "--max-cycles", "500")
	cfg, err := opts.config(cmd)
	require.NoError(t, err)
	require.Equal(t, recompiler.DynamicRecompiler, cfg.Mode)
	require.Equal(t, recompiler.BackendPortable, cfg.Backend)
	require.Equal(t, uint32(0xa0001000), cfg.ResetPC)
	require.Equal(t, uint64(500), cfg.MaxCycles)

	opts, cmd = parsedOptions(t, "--mode", "jit")
	_, err = opts.config(cmd)
	require.ErrorIs(t, err, recompiler.ErrUnknownMode)

	opts, cmd = parsedOptions(t, "--reset-pc", "nowhere")
	_, err = opts.config(cmd)
	require.Error(t, err)
}

func TestConfigFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r4300.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = \"pure\"\nreset_pc = 0x80000000\ncycles_per_op = 1\n"), 0o644))

	opts, cmd := parsedOptions(t, "--config", path)
	cfg, err := opts.config(cmd)
	require.NoError(t, err)
	require.Equal(t, recompiler.PureInterpreter, cfg.Mode)
	require.Equal(t, uint64(1), cfg.CyclesPerOp)

	opts, cmd = parsedOptions(t, "--config", path, "--mode", "cached", "--cycles-per-op", "3")
	cfg, err = opts.config(cmd)
	require.NoError(t, err)
	require.Equal(t, recompiler.CachedInterpreter, cfg.Mode)
	require.Equal(t, uint64(3), cfg.CyclesPerOp)
}

func TestParseModes(t *testing.T) {
	modes, err := parseModes("pure, dynarec,")
	require.NoError(t, err)
	require.Equal(t, []recompiler.Mode{recompiler.PureInterpreter, recompiler.DynamicRecompiler}, modes)

	_, err = parseModes(" , ")
	require.Error(t, err)
	_, err = parseModes("pure,fast")
	require.ErrorIs(t, err, recompiler.ErrUnknownMode)
}

func testConfig(t *testing.T) recompiler.Config {
	opts, cmd := parsedOptions(t, "--rdram", "1048576")
	cfg, err := opts.config(cmd)
	require.NoError(t, err)
	return cfg
}

func TestVerifyModes(t *testing.T) {
	prog, err := loadProgram(testImage(t))
	require.NoError(t, err)
	require.Equal(t, "loop", prog.Name)

	modes := []recompiler.Mode{recompiler.PureInterpreter, recompiler.CachedInterpreter, recompiler.DynamicRecompiler}
	results, err := verifyModes(prog, testConfig(t), modes, false)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		require.Equal(t, jsondiff.FullMatch, r.Match, r.Mode)
		require.Empty(t, r.Diff)
	}
}

func TestAsciiDiff(t *testing.T) {
	diff, err := asciiDiff([]byte(`{"pc":1,"hi":2}`), []byte(`{"pc":1,"hi":3}`), false)
	require.NoError(t, err)
	require.Contains(t, diff, "hi")

	diff, err = asciiDiff([]byte(`{"pc":1}`), []byte(`{"pc":1}`), false)
	require.NoError(t, err)
	require.Empty(t, diff)
}

func TestDisassembleUnit(t *testing.T) {
	prog, err := loadProgram(testImage(t))
	require.NoError(t, err)
	for _, b := range []recompiler.Backend{recompiler.BackendPortable, recompiler.BackendAMD64, recompiler.BackendARM64} {
		cfg := testConfig(t)
		cfg.Mode = recompiler.DynamicRecompiler
		cfg.Backend = b
		var out bytes.Buffer
		require.NoError(t, disassembleUnit(&out, prog, cfg, base), b.String())
		require.Contains(t, out.String(), "unit [80000000, 80001000)")
		require.Contains(t, out.String(), b.String()+" code")
	}

	cfg := testConfig(t)
	var out bytes.Buffer
	require.NoError(t, disassembleUnit(&out, prog, cfg, base))
	require.NotContains(t, out.String(), "code,")
}

func TestConsole(t *testing.T) {
	cfg := testConfig(t)
	core, bus, err := newMachine(cfg, testImage(t))
	require.NoError(t, err)
	defer core.Close()

	var out bytes.Buffer
	con := newConsole(core, bus, &out)

	v, err := con.eval("step(1)")
	require.NoError(t, err)
	require.Contains(t, v.String(), "80000004")

	v, err = con.eval("reg('at')")
	require.NoError(t, err)
	require.Equal(t, "0x4", v.String())

	v, err = con.eval("until(0x80000014); regs().gpr.v0")
	require.NoError(t, err)
	require.Equal(t, "0xa", v.String())

	v, err = con.eval("read(0x80000000) === 0x24010004")
	require.NoError(t, err)
	require.True(t, v.ToBoolean())

	v, err = con.eval("dis(0x80000004, 2)")
	require.NoError(t, err)
	require.Contains(t, v.String(), "80000008")

	_, err = con.eval("reg('nope')")
	require.Error(t, err)

	_, err = con.eval("print(pc())")
	require.NoError(t, err)
	require.Equal(t, "2147483668\n", out.String())

	_, err = con.eval("run()")
	require.NoError(t, err)
	require.True(t, core.Stopped())

	v, err = con.eval("units()")
	require.NoError(t, err)
	require.Contains(t, v.String(), "units: 1")
}

func TestMachineNeedsImage(t *testing.T) {
	_, _, err := newMachine(testConfig(t), filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)

	cfg := testConfig(t)
	cfg.ResetPC = 0x00001000
	_, err = performance.Machine(performance.Program{Name: "user"}, cfg)
	require.Error(t, err)
}
