package performance

import (
	"fmt"
	"sort"
	"time"

	"github.com/colorfulnotion/r4300/log"
	"github.com/colorfulnotion/r4300/r4300/interpreter"
	"github.com/colorfulnotion/r4300/r4300/memory"
	"github.com/colorfulnotion/r4300/r4300/recompiler"
)

// Program is a raw big-endian guest image loaded at the physical address behind
// the reset PC.
type Program struct {
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
	Image []byte `json:"-"`
}

// RunStats captures the timings of one program under one mode/backend pair.
type RunStats struct {
	Program        string  `json:"program"`
	Mode           string  `json:"mode"`
	Backend        string  `json:"backend"`
	RunDurationsNs []int64 `json:"run_durations_ns"`
	AvgNs          int64   `json:"avg_ns"`
	MinNs          int64   `json:"min_ns"`
	MaxNs          int64   `json:"max_ns"`

	// Counters of the last run.
	Stats     recompiler.Stats         `json:"stats"`
	Units     []recompiler.UnitProfile `json:"units,omitempty"`
	Registers interpreter.Registers    `json:"-"`
}

// Report stores a full comparison across modes.
type Report struct {
	Program     string      `json:"program"`
	Runs        int         `json:"runs_per_mode"`
	Results     []*RunStats `json:"results"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// Machine builds a bus holding prog at the reset PC of cfg.
func Machine(prog Program, cfg recompiler.Config) (*memory.Bus, error) {
	if !memory.IsDirect(cfg.ResetPC) {
		return nil, fmt.Errorf("reset pc 0x%08x is not in a direct segment", cfg.ResetPC)
	}
	bus := memory.NewBus(cfg.RDRAMSize)
	if err := bus.Load(memory.DirectPhys(cfg.ResetPC), prog.Image); err != nil {
		return nil, fmt.Errorf("load %s: %w", prog.Name, err)
	}
	return bus, nil
}

// Execute runs prog once on a fresh machine and returns the core after it stopped.
// The caller closes the core.
func Execute(prog Program, cfg recompiler.Config) (*recompiler.Core, time.Duration, error) {
	bus, err := Machine(prog, cfg)
	if err != nil {
		return nil, 0, err
	}
	core, err := recompiler.NewCore(bus, cfg)
	if err != nil {
		return nil, 0, err
	}
	start := time.Now()
	err = core.Run()
	elapsed := time.Since(start)
	if err != nil {
		core.Close()
		return nil, 0, err
	}
	return core, elapsed, nil
}

// Benchmark runs prog the given number of times with cfg.
func Benchmark(prog Program, cfg recompiler.Config, runs int) (*RunStats, error) {
	if runs <= 0 {
		runs = 1
	}
	rs := &RunStats{
		Program: prog.Name,
		Mode:    cfg.Mode.String(),
		Backend: cfg.Backend.String(),
	}
	for i := 0; i < runs; i++ {
		core, elapsed, err := Execute(prog, cfg)
		if err != nil {
			return nil, fmt.Errorf("%s/%s run %d: %w", rs.Mode, rs.Backend, i, err)
		}
		rs.RunDurationsNs = append(rs.RunDurationsNs, elapsed.Nanoseconds())
		if i == runs-1 {
			rs.Stats = core.Stats()
			rs.Units = core.Profiles()
			rs.Registers = core.Registers()
		}
		core.Close()
	}
	rs.AvgNs, rs.MinNs, rs.MaxNs = SummarizeDurations(rs.RunDurationsNs)
	log.Debug(log.CLI, "benchmark", "program", prog.Name, "mode", rs.Mode, "avg_ns", rs.AvgNs, "count", rs.Stats.Count)
	return rs, nil
}

// Compare benchmarks prog under every mode in modes, keeping the backend of cfg.
func Compare(prog Program, cfg recompiler.Config, modes []recompiler.Mode, runs int) (*Report, error) {
	report := &Report{Program: prog.Name, Runs: runs, GeneratedAt: time.Now()}
	for _, m := range modes {
		c := cfg
		c.Mode = m
		rs, err := Benchmark(prog, c, runs)
		if err != nil {
			return nil, err
		}
		report.Results = append(report.Results, rs)
	}
	return report, nil
}

// Find returns the result for mode, or nil.
func (r *Report) Find(mode string) *RunStats {
	for _, rs := range r.Results {
		if rs.Mode == mode {
			return rs
		}
	}
	return nil
}

// Speedup is the ratio of the average run time of base over compare.
func (r *Report) Speedup(base, compare string) (float64, bool) {
	b, c := r.Find(base), r.Find(compare)
	if b == nil || c == nil || c.AvgNs == 0 {
		return 0, false
	}
	return float64(b.AvgNs) / float64(c.AvgNs), true
}

func SummarizeDurations(durations []int64) (avg int64, min int64, max int64) {
	if len(durations) == 0 {
		return 0, 0, 0
	}
	min, max = durations[0], durations[0]
	var total int64
	for _, d := range durations {
		total += d
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return total / int64(len(durations)), min, max
}

// TopUnits returns the n units entered most often, hottest first.
func TopUnits(units []recompiler.UnitProfile, n int) []recompiler.UnitProfile {
	out := append([]recompiler.UnitProfile(nil), units...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Entries != out[j].Entries {
			return out[i].Entries > out[j].Entries
		}
		return out[i].Start < out[j].Start
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
