package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dop251/goja"
	"github.com/spf13/cobra"

	"github.com/colorfulnotion/r4300/log"
	"github.com/colorfulnotion/r4300/r4300/isa"
	"github.com/colorfulnotion/r4300/r4300/memory"
	"github.com/colorfulnotion/r4300/r4300/recompiler"
)

const untilLimit = 1 << 24

// console is the JavaScript debugger bound to one core.
type console struct {
	core *recompiler.Core
	bus  *memory.Bus
	vm   *goja.Runtime
	out  io.Writer
}

func hex64(v uint64) string { return fmt.Sprintf("0x%x", v) }

func newConsole(core *recompiler.Core, bus *memory.Bus, out io.Writer) *console {
	c := &console{core: core, bus: bus, vm: goja.New(), out: out}
	vm := c.vm
	throw := func(err error) {
		panic(vm.NewGoError(err))
	}

	vm.Set("print", func(args ...goja.Value) {
		for _, arg := range args {
			fmt.Fprintln(c.out, arg.Export())
		}
	})
	vm.Set("pc", func() uint32 { return core.State().PC })
	vm.Set("step", func(n int) string {
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			if err := core.Step(); err != nil {
				throw(err)
			}
		}
		return c.where()
	})
	vm.Set("run", func() string {
		if err := core.Run(); err != nil {
			throw(err)
		}
		return c.where()
	})
	vm.Set("until", func(addr uint32) string {
		for i := 0; core.State().PC != addr; i++ {
			if i >= untilLimit {
				throw(fmt.Errorf("0x%08x not reached after %d steps", addr, untilLimit))
			}
			if err := core.Step(); err != nil {
				throw(err)
			}
		}
		return c.where()
	})
	vm.Set("reg", func(name string) string {
		r, ok := gprIndex(name)
		if !ok {
			throw(fmt.Errorf("unknown register %q", name))
		}
		return hex64(core.State().GPR[r])
	})
	vm.Set("regs", func() map[string]interface{} {
		regs := core.Registers()
		gpr := make(map[string]interface{}, 32)
		for i := range regs.GPR {
			gpr[isa.GPRName(uint8(i))] = hex64(regs.GPR[i])
		}
		return map[string]interface{}{
			"pc":    regs.PC,
			"count": hex64(regs.Count),
			"hi":    hex64(regs.HI),
			"lo":    hex64(regs.LO),
			"gpr":   gpr,
		}
	})
	vm.Set("read", func(addr uint32) uint32 {
		v, err := c.read(addr)
		if err != nil {
			throw(err)
		}
		return v
	})
	vm.Set("write", func(addr uint32, value uint32) {
		phys, err := bus.Translate(addr, memory.AccessStore)
		if err == nil {
			err = bus.Write(phys, 4, uint64(value), 0xffffffff)
		}
		if err != nil {
			throw(err)
		}
	})
	vm.Set("dis", func(addr uint32, n int) string {
		if n <= 0 {
			n = 1
		}
		var b strings.Builder
		for i := 0; i < n; i++ {
			a := addr + uint32(4*i)
			w, err := c.read(a)
			if err != nil {
				throw(err)
			}
			fmt.Fprintf(&b, "%08x %08x %s\n", a, w, isa.Disassemble(isa.DecodeInst(w, a)))
		}
		return b.String()
	})
	vm.Set("units", func() string { return core.Store().Tree(false) })
	vm.Set("stats", func() recompiler.Stats { return core.Stats() })
	vm.Set("invalidate", func(addr uint32, size uint32) {
		if err := core.InvalidateRange(addr, size); err != nil {
			throw(err)
		}
	})
	return c
}

func gprIndex(name string) (int, bool) {
	name = strings.TrimPrefix(strings.ToLower(name), "$")
	for i := 0; i < 32; i++ {
		if isa.GPRName(uint8(i)) == name || fmt.Sprint(i) == name || fmt.Sprintf("r%d", i) == name {
			return i, true
		}
	}
	return 0, false
}

func (c *console) read(addr uint32) (uint32, error) {
	phys, err := c.bus.Translate(addr, memory.AccessLoad)
	if err != nil {
		return 0, err
	}
	v, err := c.bus.Read(phys, 4)
	return uint32(v), err
}

func (c *console) where() string {
	s := c.core.State()
	w, err := c.read(s.PC)
	if err != nil {
		return fmt.Sprintf("%08x ??", s.PC)
	}
	return fmt.Sprintf("%08x %s", s.PC, isa.Disassemble(isa.DecodeInst(w, s.PC)))
}

func (c *console) eval(line string) (goja.Value, error) {
	return c.vm.RunString(line)
}

func newDebugCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "debug <image>",
		Short: "Interactive JavaScript console over a core",
		Long: "Functions: step(n), run(), until(addr), pc(), reg(name), regs(), read(addr), " +
			"write(addr, value), dis(addr, n), units(), stats(), invalidate(addr, size), print(...).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			if cfg.Mode == recompiler.DynamicRecompiler {
				log.Warn(log.CLI, "step() is not available in dynarec mode, use run()")
			}
			core, bus, err := newMachine(cfg, args[0])
			if err != nil {
				return err
			}
			defer core.Close()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:      "r4300> ",
				HistoryFile: filepath.Join(os.TempDir(), "r4300_console_history.txt"),
			})
			if err != nil {
				return fmt.Errorf("failed to start readline: %w", err)
			}
			defer rl.Close()

			con := newConsole(core, bus, rl.Stdout())
			fmt.Fprintln(rl.Stdout(), con.where())
			for {
				line, err := rl.Readline()
				if err != nil {
					return nil
				}
				line = strings.TrimSpace(line)
				switch line {
				case "":
					continue
				case "exit", "quit":
					return nil
				}
				value, err := con.eval(line)
				if err != nil {
					fmt.Fprintln(rl.Stdout(), "error:", err)
					continue
				}
				if value != nil && !goja.IsUndefined(value) {
					fmt.Fprintln(rl.Stdout(), value)
				}
			}
		},
	}
}
