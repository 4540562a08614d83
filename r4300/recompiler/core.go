package recompiler

import (
	"fmt"
	"time"

	"github.com/colorfulnotion/r4300/common"
	"github.com/colorfulnotion/r4300/log"
	"github.com/colorfulnotion/r4300/r4300/interpreter"
	"github.com/colorfulnotion/r4300/r4300/memory"
)

// engine is one execution mode. run returns once the core is stopped.
type engine interface {
	run(c *Core) error
	step(c *Core) error
}

type haltable interface {
	SetHaltHandler(fn func(code uint32))
}

// Core is the execution core of one guest CPU. A Core is owned by a single
// goroutine; Stop and ScheduleInterrupt may only be called from that goroutine or
// from device callbacks running on it.
type Core struct {
	cfg     Config
	state   *interpreter.State
	mem     memory.Memory
	store   *Store
	tracker *Tracker
	arena   *HeapArena
	tr      *translator
	engine  engine
	exec    Executor

	stopped bool
	current *Unit
	stats   coreStats
}

// NewCore builds a core over mem. The execution mode and host backend are fixed here.
func NewCore(mem memory.Memory, cfg Config) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Core{
		cfg:     cfg,
		mem:     mem,
		state:   interpreter.NewState(mem, cfg.ResetPC, cfg.CyclesPerOp),
		tracker: NewTracker(),
		arena:   NewHeapArena(cfg.CodeArenaLimit),
	}
	c.store = NewStore(mem, c.tracker)

	var e Emitter
	switch cfg.Mode {
	case PureInterpreter:
		c.engine = pureEngine{}
	case CachedInterpreter:
		c.engine = cachedEngine{}
	case DynamicRecompiler:
		probe, err := NewCodeBuffer(c.arena, cfg.InitialCodeSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoExecutableMemory, err)
		}
		probe.Release()
		if e, err = NewEmitter(cfg.Backend, cfg); err != nil {
			return nil, err
		}
		if c.exec, err = newExecutor(cfg.Backend); err != nil {
			return nil, err
		}
		c.engine = nativeEngine{}
	default:
		return nil, fmt.Errorf("mode %v: %w", cfg.Mode, ErrUnknownMode)
	}
	c.tr = newTranslator(cfg, mem, c.store, c.tracker, c.arena, e)

	c.tracker.OnStale = c.onStale
	if a, ok := mem.(memory.Attachable); ok {
		a.AttachInvalidator(c.tracker)
	}
	if h, ok := mem.(haltable); ok {
		h.SetHaltHandler(func(code uint32) {
			log.Info(log.Exec, "guest halted", "code", code, "count", c.state.Count)
			c.Stop()
		})
	}
	c.state.OnTLBWrite = func(lo, hi uint32) {
		if c.store.Evict(lo, hi) > 0 {
			c.state.RequestCheck()
		}
	}
	log.Debug(log.Exec, "core ready", "mode", cfg.Mode, "backend", cfg.Backend, "pc", cfg.ResetPC)
	return c, nil
}

func newExecutor(b Backend) (Executor, error) {
	switch b {
	case BackendPortable:
		return newPortableExecutor(), nil
	case BackendAMD64:
		return newSandboxExecutor()
	}
	return nil, fmt.Errorf("backend %v: %w", b, ErrNoExecutor)
}

// onStale makes a write to the code of the running unit leave it at the next check.
func (c *Core) onStale(u *Unit) {
	if u == c.current {
		c.state.RequestCheck()
	}
}

func (c *Core) Config() Config                   { return c.cfg }
func (c *Core) State() *interpreter.State        { return c.state }
func (c *Core) Store() *Store                    { return c.store }
func (c *Core) Tracker() *Tracker                { return c.tracker }
func (c *Core) Arena() *HeapArena                { return c.arena }
func (c *Core) Mode() Mode                       { return c.cfg.Mode }
func (c *Core) Stopped() bool                    { return c.stopped }
func (c *Core) Registers() interpreter.Registers { return c.state.Registers() }

// Run executes until the guest is stopped or MaxCycles have elapsed.
func (c *Core) Run() error {
	c.stopped = false
	if c.cfg.MaxCycles > 0 {
		id := c.state.ScheduleInterrupt(c.cfg.MaxCycles, func(*interpreter.State) { c.stopped = true })
		defer c.state.Cancel(id)
	}
	start := time.Now()
	err := c.engine.run(c)
	c.current = nil
	c.stats.RunMicros += uint64(common.Elapsed(start))
	if err != nil {
		return fmt.Errorf("run at pc 0x%08x: %w", c.state.PC, err)
	}
	log.Debug(log.Exec, "run finished", "pc", c.state.PC, "count", c.state.Count)
	return nil
}

// Step executes one guest instruction; a transfer executes together with its delay
// slot. It is not available in recompile mode.
func (c *Core) Step() error {
	err := c.engine.step(c)
	c.current = nil
	return err
}

// Stop ends Run at the next check point. Every mode reaches the same check point,
// so runs stopped this way end in the same state.
func (c *Core) Stop() {
	c.state.ScheduleInterrupt(0, func(*interpreter.State) { c.stopped = true })
}

// ScheduleInterrupt runs fn once delay more cycles have elapsed.
func (c *Core) ScheduleInterrupt(delay uint64, fn func(*interpreter.State)) int {
	return c.state.ScheduleInterrupt(delay, fn)
}

func (c *Core) Cancel(id int) { c.state.Cancel(id) }

// InvalidateRange marks the translations of the guest range [vaddr, vaddr+size) stale
// exactly as a guest store would.
func (c *Core) InvalidateRange(vaddr, size uint32) error {
	for size > 0 {
		n := memory.PageSize - vaddr&(memory.PageSize-1)
		if n > size {
			n = size
		}
		phys, err := c.mem.Translate(vaddr, memory.AccessStore)
		if err != nil {
			return fmt.Errorf("invalidate 0x%08x: %w", vaddr, err)
		}
		c.tracker.Invalidate(phys, n)
		vaddr += n
		size -= n
	}
	return nil
}

func (c *Core) Close() error {
	c.store.Flush()
	c.store.Reap()
	if c.exec != nil {
		return c.exec.Close()
	}
	return nil
}

// interpret executes the instruction at PC straight from memory.
func (c *Core) interpret() error {
	s := c.state
	pc, count := s.PC, s.Count
	s.Step()
	c.stats.Interpreted++
	if s.PC == pc && s.Count == count {
		return fmt.Errorf("pc 0x%08x makes no progress: %w", pc, ErrUnmapped)
	}
	return nil
}

// next finds the unit for PC. It reports false when there is none to enter and the
// instruction has been interpreted instead.
func (c *Core) next() (*Unit, int, bool, error) {
	c.store.Reap()
	c.stats.Dispatches++
	u, slot, err := c.tr.resolve(c.state.PC)
	if err != nil {
		log.Trace(log.Exec, "no unit", "pc", c.state.PC, "err", err)
		return nil, 0, false, c.interpret()
	}
	if u.Fallback {
		c.current = u
		for !c.stopped && !u.evicted && u.Contains(c.state.PC) {
			if err := c.interpret(); err != nil {
				return nil, 0, false, err
			}
		}
		return nil, 0, false, nil
	}
	c.current = u
	return u, slot, true, nil
}

// TranslateUnit translates the unit holding vaddr with the backend of cfg, without
// running it. The disassembler of the CLI uses it.
func TranslateUnit(mem memory.Memory, cfg Config, vaddr uint32) (*Unit, error) {
	tracker := NewTracker()
	store := NewStore(mem, tracker)
	e, err := NewEmitter(cfg.Backend, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Mode != DynamicRecompiler {
		e = nil
	}
	tr := newTranslator(cfg, mem, store, tracker, NewHeapArena(cfg.CodeArenaLimit), e)
	u, slot, err := tr.resolve(vaddr)
	if err != nil {
		return nil, err
	}
	if err := tr.compile(u, slot); err != nil {
		return nil, err
	}
	return u, nil
}
