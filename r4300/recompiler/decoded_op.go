package recompiler

import (
	"fmt"
	"strings"

	"github.com/colorfulnotion/r4300/r4300/isa"
)

type OpFlags uint8

const (
	FlagIndirect     OpFlags = 1 << iota // transfer resolved through the dispatcher
	FlagDelayOutside                     // delay slot lies past the unit end
	FlagIdle                             // branch to itself with a NOP delay slot
	FlagLikely                           // delay slot nullified when not taken
)

func (f OpFlags) String() string {
	var parts []string
	if f&FlagIndirect != 0 {
		parts = append(parts, "indirect")
	}
	if f&FlagDelayOutside != 0 {
		parts = append(parts, "delay-outside")
	}
	if f&FlagIdle != 0 {
		parts = append(parts, "idle")
	}
	if f&FlagLikely != 0 {
		parts = append(parts, "likely")
	}
	return strings.Join(parts, "|")
}

// DecodedOp is one slot of a translation unit.
type DecodedOp struct {
	Addr    uint32
	Handler isa.Opcode // specialised descriptor, NOTCOMPILED until translated
	Inst    isa.Inst
	// CodeOffset is the slot's entry in the unit's code buffer, -1 without native code.
	// For a slot that is not compiled yet it points at the slot's not-compiled stub.
	CodeOffset int32
	Flags      OpFlags
	// Link is the slot a taken transfer continues at: the target slot itself or a link
	// stub in the slack region. -1 when the transfer goes through the dispatcher.
	Link int32
}

func (op *DecodedOp) Compiled() bool { return op.Handler != isa.NOTCOMPILED }

func (op *DecodedOp) String() string {
	s := fmt.Sprintf("%08x %-12s", op.Addr, op.Handler)
	if op.Compiled() && op.Handler < isa.NumGuestOpcodes {
		s = fmt.Sprintf("%08x %s", op.Addr, isa.Disassemble(op.Inst))
	}
	if op.Handler == isa.LINK_STUB {
		s += fmt.Sprintf(" -> slot %d", op.Link)
	}
	if op.Flags != 0 {
		s += " [" + op.Flags.String() + "]"
	}
	return s
}
