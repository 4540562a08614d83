package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/r4300/r4300/performance"
	"github.com/colorfulnotion/r4300/r4300/recompiler"
)

// disassembleUnit writes the decoded ops of the unit holding addr and the host code
// the backend of cfg generates for them.
func disassembleUnit(w io.Writer, prog performance.Program, cfg recompiler.Config, addr uint32) error {
	bus, err := performance.Machine(prog, cfg)
	if err != nil {
		return err
	}
	u, err := recompiler.TranslateUnit(bus, cfg, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "unit [%08x, %08x) phys %08x, %d/%d slots compiled\n", u.Start, u.End, u.PhysStart, u.CompiledSlots(), u.Len())
	for i := range u.Ops {
		op := &u.Ops[i]
		if op.Compiled() {
			fmt.Fprintf(w, "  %4d %s\n", i, op)
		}
	}
	if u.Fallback {
		fmt.Fprintln(w, "unit fell back to the interpreter")
		return nil
	}
	if u.Code == nil {
		return nil
	}
	fmt.Fprintf(w, "%s code, %d bytes:\n", cfg.Backend, u.Code.Len())
	fmt.Fprint(w, recompiler.Disassemble(cfg.Backend, u.Code.Bytes()))
	return nil
}

func newDisasmCmd(opts *options) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "disasm <image>",
		Short: "Translate one unit and print its guest ops and host code",
		Long: "Translates the unit holding --at (default: the reset pc) without running it. " +
			"In dynarec mode the generated code of the selected backend is disassembled, " +
			"so the amd64 and arm64 emitters can be inspected on any host.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			addr := cfg.ResetPC
			if at != "" {
				if addr, err = parseAddr(at); err != nil {
					return err
				}
			}
			prog, err := loadProgram(args[0])
			if err != nil {
				return err
			}
			return disassembleUnit(os.Stdout, prog, cfg, addr)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Guest address inside the unit to translate")
	return cmd
}

func newUnitsCmd(opts *options) *cobra.Command {
	var withOps bool
	cmd := &cobra.Command{
		Use:   "units <image>",
		Short: "Run an image and dump the translation unit store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			core, _, err := newMachine(cfg, args[0])
			if err != nil {
				return err
			}
			defer core.Close()
			if err := core.Run(); err != nil {
				return err
			}
			fmt.Print(core.Store().Tree(withOps))
			t := core.Tracker()
			fmt.Printf("writes %d, invalidations %d, stale pages %v\n", t.Writes, t.Invalidations, t.StalePages())
			return nil
		},
	}
	cmd.Flags().BoolVar(&withOps, "ops", false, "List the compiled ops of every unit")
	return cmd
}
