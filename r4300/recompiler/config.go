package recompiler

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/colorfulnotion/r4300/r4300/interpreter"
)

const (
	// FooterSlots finalisation slots follow the guest slots of every unit.
	FooterSlots = 2
	// SlackShift sizes the link stub region: length>>SlackShift extra slots.
	SlackShift = 2
	// DelaySlotSpill is the number of trailing delay slot words that may lie past a
	// unit end. They are fetched at run time and never compiled into the unit.
	DelaySlotSpill = 1

	DefaultInitialCodeSize = 64 << 10
	DefaultCodeArenaLimit  = 256 << 20
)

// Config is the execution core configuration. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	Mode        Mode    `toml:"-"`
	Backend     Backend `toml:"-"`
	CyclesPerOp uint64  `toml:"cycles_per_op"`
	// MaxCycles stops Run once Count has advanced this far. Zero runs until Stop.
	MaxCycles uint64 `toml:"max_cycles"`
	ResetPC   uint32 `toml:"reset_pc"`

	InitialCodeSize int `toml:"initial_code_size"`
	// CodeArenaLimit caps the bytes handed out for code buffers; zero is unlimited.
	CodeArenaLimit int `toml:"code_arena_limit"`
	// PortableBranchRange limits portable backend jump displacements in bytes; zero
	// is unlimited.
	PortableBranchRange int32 `toml:"portable_branch_range"`

	RDRAMSize  int    `toml:"rdram_size"`
	LogLevel   string `toml:"log_level"`
	LogModules string `toml:"log_modules"`

	// compileBudget overrides the number of slots one compile run may translate.
	compileBudget int
}

func DefaultConfig() Config {
	return Config{
		Mode:            CachedInterpreter,
		Backend:         BackendPortable,
		CyclesPerOp:     interpreter.DefaultCyclesPerOp,
		ResetPC:         interpreter.ResetVector,
		InitialCodeSize: DefaultInitialCodeSize,
		CodeArenaLimit:  DefaultCodeArenaLimit,
		RDRAMSize:       8 << 20,
		LogLevel:        "info",
	}
}

// LoadConfig reads a TOML file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	// mode and backend are parsed here; toml does not unwrap UnmarshalText errors.
	var names struct {
		Mode    string `toml:"mode"`
		Backend string `toml:"backend"`
	}
	if err := toml.Unmarshal(data, &names); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if names.Mode != "" {
		if cfg.Mode, err = ParseMode(names.Mode); err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
	}
	if names.Backend != "" {
		if cfg.Backend, err = ParseBackend(names.Backend); err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
	}
	return cfg, cfg.Validate()
}

func (cfg Config) Validate() error {
	if cfg.Mode > DynamicRecompiler {
		return fmt.Errorf("config: %w", ErrUnknownMode)
	}
	if cfg.Backend > BackendARM64 {
		return fmt.Errorf("config: %w", ErrUnknownBackend)
	}
	if cfg.InitialCodeSize <= 0 {
		return fmt.Errorf("config: initial_code_size must be positive, got %d", cfg.InitialCodeSize)
	}
	if cfg.PortableBranchRange < 0 {
		return fmt.Errorf("config: portable_branch_range must not be negative")
	}
	return nil
}
