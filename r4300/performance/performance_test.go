package performance

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/r4300/r4300/isa"
	"github.com/colorfulnotion/r4300/r4300/recompiler"
)

const base = 0x80000000

// sumProgram adds 1..10 into r2 and halts.
func sumProgram(t *testing.T) Program {
	t.Helper()
	words := []uint32{
		isa.Addiu(1, 0, 10),
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
	return Program{Name: "sum", Image: image}
}

func testConfig() recompiler.Config {
	cfg := recompiler.DefaultConfig()
	cfg.Backend = recompiler.BackendPortable
	cfg.ResetPC = base
	cfg.RDRAMSize = 1 << 20
	return cfg
}

var allModes = []recompiler.Mode{
	recompiler.DynamicRecompiler,
	recompiler.PureInterpreter,
	recompiler.CachedInterpreter,
}

func TestCompareModes(t *testing.T) {
	report, err := Compare(sumProgram(t), testConfig(), allModes, 2)
	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	pure := report.Find("pure")
	require.NotNil(t, pure)
	require.Equal(t, uint64(55), pure.Registers.GPR[2])
	for _, rs := range report.Results {
		require.Len(t, rs.RunDurationsNs, 2)
		require.LessOrEqual(t, rs.MinNs, rs.AvgNs)
		require.LessOrEqual(t, rs.AvgNs, rs.MaxNs)
		require.Equal(t, pure.Registers, rs.Registers, rs.Mode)
		require.Equal(t, pure.Stats.Count, rs.Stats.Count, rs.Mode)
	}
	require.Empty(t, pure.Units)
	require.NotEmpty(t, report.Find("dynarec").Stats.Exits)

	_, ok := report.Speedup("pure", "dynarec")
	require.True(t, ok)
	_, ok = report.Speedup("pure", "missing")
	require.False(t, ok)

	data, err := json.Marshal(report)
	require.NoError(t, err)
	require.Contains(t, string(data), `"mode":"cached"`)
}

func TestMachineErrors(t *testing.T) {
	cfg := testConfig()
	cfg.ResetPC = 0x00400000
	_, err := Machine(sumProgram(t), cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.RDRAMSize = 16
	_, err = Machine(sumProgram(t), cfg)
	require.Error(t, err)
}

func TestSummarizeDurations(t *testing.T) {
	avg, min, max := SummarizeDurations([]int64{30, 10, 20})
	require.Equal(t, int64(20), avg)
	require.Equal(t, int64(10), min)
	require.Equal(t, int64(30), max)

	avg, min, max = SummarizeDurations(nil)
	require.Zero(t, avg+min+max)
}

func TestTopUnits(t *testing.T) {
	units := []recompiler.UnitProfile{
		{Start: 0x3000, UnitStats: recompiler.UnitStats{Entries: 5}},
		{Start: 0x1000, UnitStats: recompiler.UnitStats{Entries: 9}},
		{Start: 0x2000, UnitStats: recompiler.UnitStats{Entries: 5}},
	}
	top := TopUnits(units, 2)
	require.Len(t, top, 2)
	require.Equal(t, uint32(0x1000), top[0].Start)
	require.Equal(t, uint32(0x2000), top[1].Start)
	require.Equal(t, uint32(0x3000), units[0].Start)
	require.Len(t, TopUnits(units, 0), 3)
}

func TestRenderChart(t *testing.T) {
	report, err := Compare(sumProgram(t), testConfig(), allModes, 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderChart(&buf, report, nil))
	html := buf.String()
	require.Contains(t, html, "echarts")
	require.Contains(t, html, "Run time per mode")
	require.Contains(t, html, "Hot units")
	require.Contains(t, html, "dynarec/portable")

	name, err := GenerateAllCharts(report, &ChartConfig{OutputDir: t.TempDir(), TopUnits: 4})
	require.NoError(t, err)
	require.Equal(t, "sum_profile.html", filepath.Base(name))
}
