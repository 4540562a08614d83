package recompiler

type coreStats struct {
	Dispatches  uint64
	Interpreted uint64
	RunMicros   uint64
	exits       [ExitIdle + 1]uint64
}

func (cs *coreStats) exit(k ExitKind) {
	if int(k) < len(cs.exits) {
		cs.exits[k]++
	}
}

// Stats summarises a core for the profile and verify commands.
type Stats struct {
	Mode         string            `json:"mode"`
	Backend      string            `json:"backend"`
	Count        uint64            `json:"count"`
	Instructions uint64            `json:"interpreted_instructions"`
	Exceptions   uint64            `json:"exceptions"`
	IdleSkips    uint64            `json:"idle_skips"`
	Dispatches   uint64            `json:"dispatches"`
	Uncached     uint64            `json:"uncached"`
	RunMicros    uint64            `json:"run_us"`
	Exits        map[string]uint64 `json:"exits,omitempty"`

	Units         int    `json:"units"`
	Fallbacks     int    `json:"fallbacks"`
	Writes        uint64 `json:"writes"`
	Invalidations uint64 `json:"invalidations"`
	CodeBytes     int    `json:"code_bytes"`
	ArenaPeak     int    `json:"arena_peak"`
	UnitStats
}

// UnitProfile is the per-unit breakdown behind Stats.
type UnitProfile struct {
	Start    uint32 `json:"start"`
	End      uint32 `json:"end"`
	State    string `json:"state"`
	Fallback bool   `json:"fallback"`
	Slots    int    `json:"slots"`
	Compiled int    `json:"compiled"`
	Code     int    `json:"code_bytes"`
	UnitStats
}

func (u *Unit) Profile() UnitProfile {
	p := UnitProfile{
		Start:     u.Start,
		End:       u.End,
		State:     u.State.String(),
		Fallback:  u.Fallback,
		Slots:     u.Len(),
		Compiled:  u.CompiledSlots(),
		UnitStats: u.Stats,
	}
	if u.Code != nil {
		p.Code = u.Code.Len()
	}
	return p
}

func (s *UnitStats) add(o UnitStats) {
	s.Entries += o.Entries
	s.Compiles += o.Compiles
	s.CompiledSlots += o.CompiledSlots
	s.Materialized += o.Materialized
	s.Revalidations += o.Revalidations
	s.Retranslations += o.Retranslations
	s.Helpers += o.Helpers
	s.Links += o.Links
	s.CompileMicros += o.CompileMicros
}

func (c *Core) Stats() Stats {
	s := c.state
	st := Stats{
		Mode:          c.cfg.Mode.String(),
		Backend:       c.cfg.Backend.String(),
		Count:         s.Count,
		Instructions:  s.Instructions,
		Exceptions:    s.Exceptions,
		IdleSkips:     s.IdleSkips,
		Dispatches:    c.stats.Dispatches,
		Uncached:      c.stats.Interpreted,
		RunMicros:     c.stats.RunMicros,
		Writes:        c.tracker.Writes,
		Invalidations: c.tracker.Invalidations,
		ArenaPeak:     c.arena.Peak(),
	}
	if c.cfg.Mode == DynamicRecompiler {
		st.Exits = make(map[string]uint64)
		for k, n := range c.stats.exits {
			if n > 0 {
				st.Exits[ExitKind(k).String()] = n
			}
		}
	}
	for _, u := range c.store.Units() {
		st.Units++
		if u.Fallback {
			st.Fallbacks++
		}
		if u.Code != nil {
			st.CodeBytes += u.Code.Len()
		}
		st.UnitStats.add(u.Stats)
	}
	return st
}

// Profiles returns the per-unit breakdown ordered by start address.
func (c *Core) Profiles() []UnitProfile {
	units := c.store.Units()
	out := make([]UnitProfile, 0, len(units))
	for _, u := range units {
		out = append(out, u.Profile())
	}
	return out
}
