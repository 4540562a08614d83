// r4300 runs raw MIPS R4300 images on the execution core and inspects what the
// recompiler makes of them.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/r4300/common"
	"github.com/colorfulnotion/r4300/log"
	"github.com/colorfulnotion/r4300/r4300/interpreter"
	"github.com/colorfulnotion/r4300/r4300/isa"
	"github.com/colorfulnotion/r4300/r4300/memory"
	"github.com/colorfulnotion/r4300/r4300/performance"
	"github.com/colorfulnotion/r4300/r4300/recompiler"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// options are the flags shared by every command. Flags that were set on the command
// line win over the config file.
type options struct {
	configPath  string
	mode        string
	backend     string
	resetPC     string
	maxCycles   uint64
	cyclesPerOp uint64
	rdramSize   int
	logLevel    string
	debug       string
}

func (o *options) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "", "TOML config file")
	f.StringVar(&o.mode, "mode", "cached", "Execution mode (pure, cached, dynarec)")
	f.StringVar(&o.backend, "backend", "portable", "Recompiler backend (portable, amd64, arm64)")
	f.StringVar(&o.resetPC, "reset-pc", "0x80000000", "Address the image is loaded at and execution starts from")
	f.Uint64Var(&o.maxCycles, "max-cycles", 0, "Stop after this many cycles (0 runs until the guest halts)")
	f.Uint64Var(&o.cyclesPerOp, "cycles-per-op", interpreter.DefaultCyclesPerOp, "Count cycles charged per instruction")
	f.IntVar(&o.rdramSize, "rdram", memory.DefaultRDRAMSize, "RDRAM size in bytes")
	f.StringVar(&o.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	f.StringVar(&o.debug, "debug", "", "Log modules to enable, comma separated or all")
}

func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return uint32(v), nil
}

// config resolves the core configuration for cmd.
func (o *options) config(cmd *cobra.Command) (recompiler.Config, error) {
	cfg := recompiler.DefaultConfig()
	cfg.ResetPC = 0x80000000
	if o.configPath != "" {
		var err error
		if cfg, err = recompiler.LoadConfig(o.configPath); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	var err error
	if flags.Changed("mode") || o.configPath == "" {
		if cfg.Mode, err = recompiler.ParseMode(o.mode); err != nil {
			return cfg, err
		}
	}
	if flags.Changed("backend") || o.configPath == "" {
		if cfg.Backend, err = recompiler.ParseBackend(o.backend); err != nil {
			return cfg, err
		}
	}
	if flags.Changed("reset-pc") || o.configPath == "" {
		if cfg.ResetPC, err = parseAddr(o.resetPC); err != nil {
			return cfg, err
		}
	}
	if flags.Changed("max-cycles") {
		cfg.MaxCycles = o.maxCycles
	}
	if flags.Changed("cycles-per-op") {
		cfg.CyclesPerOp = o.cyclesPerOp
	}
	if flags.Changed("rdram") {
		cfg.RDRAMSize = o.rdramSize
	}
	if flags.Changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("debug") {
		cfg.LogModules = o.debug
	}
	if err := log.InitLogger(cfg.LogLevel); err != nil {
		return cfg, err
	}
	log.EnableModules(cfg.LogModules)
	return cfg, cfg.Validate()
}

func loadProgram(path string) (performance.Program, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return performance.Program{}, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return performance.Program{Name: name, Path: path, Image: image}, nil
}

// newMachine loads the image at path and builds a core over it.
func newMachine(cfg recompiler.Config, path string) (*recompiler.Core, *memory.Bus, error) {
	prog, err := loadProgram(path)
	if err != nil {
		return nil, nil, err
	}
	bus, err := performance.Machine(prog, cfg)
	if err != nil {
		return nil, nil, err
	}
	core, err := recompiler.NewCore(bus, cfg)
	if err != nil {
		return nil, nil, err
	}
	log.Info(log.CLI, "image loaded", "path", path, "bytes", len(prog.Image), "mode", cfg.Mode, "backend", cfg.Backend)
	return core, bus, nil
}

func printRegisters(r interpreter.Registers) {
	fmt.Printf("pc    %08x  count %d\n", r.PC, r.Count)
	fmt.Printf("hi    %016x  lo %016x\n", r.HI, r.LO)
	for i := 1; i < 32; i++ {
		if r.GPR[i] != 0 {
			fmt.Printf("%-5s %016x\n", isa.GPRName(uint8(i)), r.GPR[i])
		}
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func main() {
	var rootCmd = &cobra.Command{
		Use:           "r4300",
		Short:         "MIPS R4300 execution core: interpreter, cached interpreter and recompiler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	opts := &options{}
	opts.register(rootCmd)

	var showStats bool
	var runCmd = &cobra.Command{
		Use:   "run <image>",
		Short: "Run an image until it halts",
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
			printRegisters(core.Registers())
			if showStats {
				return printJSON(core.Stats())
			}
			return nil
		},
	}
	runCmd.Flags().BoolVar(&showStats, "stats", false, "Print execution statistics as JSON")

	rootCmd.AddCommand(runCmd, newDisasmCmd(opts), newUnitsCmd(opts), newProfileCmd(opts), newVerifyCmd(opts), newDebugCmd(opts))

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("r4300 %s (commit %s, built %s)\n", Version, common.GetCommitHash(), BuildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
