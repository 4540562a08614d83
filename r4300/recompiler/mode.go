package recompiler

import (
	"fmt"
	"strings"
)

// Mode selects how guest instructions are executed. It is fixed for the life of a Core.
type Mode uint8

const (
	PureInterpreter Mode = iota
	CachedInterpreter
	DynamicRecompiler
)

func (m Mode) String() string {
	switch m {
	case PureInterpreter:
		return "pure"
	case CachedInterpreter:
		return "cached"
	case DynamicRecompiler:
		return "dynarec"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "pure", "interpreter", "pure-interpret":
		return PureInterpreter, nil
	case "cached", "cached-interpret":
		return CachedInterpreter, nil
	case "dynarec", "recompiler", "dynamic-recompile":
		return DynamicRecompiler, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownMode)
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Backend names the host code generator used by the recompiler.
type Backend uint8

const (
	BackendPortable Backend = iota
	BackendAMD64
	BackendARM64
)

func (b Backend) String() string {
	switch b {
	case BackendPortable:
		return "portable"
	case BackendAMD64:
		return "amd64"
	case BackendARM64:
		return "arm64"
	}
	return fmt.Sprintf("backend(%d)", uint8(b))
}

func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(s) {
	case "portable", "threaded":
		return BackendPortable, nil
	case "amd64", "x86_64", "x86-64":
		return BackendAMD64, nil
	case "arm64", "aarch64":
		return BackendARM64, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownBackend)
}

func (b Backend) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *Backend) UnmarshalText(t []byte) error {
	v, err := ParseBackend(string(t))
	if err != nil {
		return err
	}
	*b = v
	return nil
}
