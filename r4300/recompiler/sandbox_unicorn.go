//go:build unicorn
// +build unicorn

package recompiler

import (
	"encoding/binary"
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/colorfulnotion/r4300/r4300/interpreter"
)

const (
	pageSize  = 0x1000
	codeBase  = 0x10000000
	ctxBase   = 0x20000000
	stackTop  = 0x30000000
	stackSize = 0x10000
	// generated code returns here; emulation stops before executing it
	retAddr = 0x40000000
)

// sandboxExecutor runs amd64 code inside a unicorn x86-64 emulator. The unit's code
// is copied in whenever it changed since the last entry.
type sandboxExecutor struct {
	mu       uc.Unicorn
	unit     *Unit
	version  uint64
	codeSize uint64
	ctxBuf   []byte
}

func newSandboxExecutor() (Executor, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_X86, uc.MODE_64)
	if err != nil {
		return nil, fmt.Errorf("unicorn: %w", err)
	}
	x := &sandboxExecutor{mu: mu, ctxBuf: make([]byte, interpreter.ContextSize)}
	if err := mu.MemMap(ctxBase, pageSize); err != nil {
		mu.Close()
		return nil, fmt.Errorf("ctx MemMap: %w", err)
	}
	if err := mu.MemMap(stackTop-stackSize, stackSize); err != nil {
		mu.Close()
		return nil, fmt.Errorf("stack MemMap: %w", err)
	}
	if err := mu.MemMap(retAddr, pageSize); err != nil {
		mu.Close()
		return nil, fmt.Errorf("ret MemMap: %w", err)
	}
	return x, nil
}

func (x *sandboxExecutor) Close() error {
	if x.mu == nil {
		return nil
	}
	err := x.mu.Close()
	x.mu = nil
	return err
}

func (x *sandboxExecutor) load(u *Unit) error {
	code := u.Code.Bytes()
	need := (uint64(len(code)) + pageSize - 1) &^ (pageSize - 1)
	if need == 0 {
		need = pageSize
	}
	if need > x.codeSize {
		if x.codeSize > 0 {
			if err := x.mu.MemUnmap(codeBase, x.codeSize); err != nil {
				return fmt.Errorf("code MemUnmap: %w", err)
			}
		}
		if err := x.mu.MemMap(codeBase, need); err != nil {
			return fmt.Errorf("code MemMap: %w", err)
		}
		if err := x.mu.MemProtect(codeBase, need, uc.PROT_ALL); err != nil {
			return fmt.Errorf("code MemProtect: %w", err)
		}
		x.codeSize = need
	}
	if err := x.mu.MemWrite(codeBase, code); err != nil {
		return fmt.Errorf("write code: %w", err)
	}
	x.unit, x.version = u, u.Code.Version()
	return nil
}

func (x *sandboxExecutor) Enter(u *Unit, offset int, ctx *interpreter.Context) error {
	if u != x.unit || u.Code.Version() != x.version {
		if err := x.load(u); err != nil {
			return err
		}
	}
	words := ctxWords(ctx)
	for i, w := range words {
		binary.LittleEndian.PutUint64(x.ctxBuf[8*i:], w)
	}
	if err := x.mu.MemWrite(ctxBase, x.ctxBuf); err != nil {
		return fmt.Errorf("write ctx: %w", err)
	}
	var ret [8]byte
	binary.LittleEndian.PutUint64(ret[:], retAddr)
	sp := uint64(stackTop - 0x100)
	if err := x.mu.MemWrite(sp, ret[:]); err != nil {
		return fmt.Errorf("write return address: %w", err)
	}
	if err := x.mu.RegWrite(uc.X86_REG_RSP, sp); err != nil {
		return fmt.Errorf("set RSP: %w", err)
	}
	if err := x.mu.RegWrite(uc.X86_REG_RDI, ctxBase); err != nil {
		return fmt.Errorf("set RDI: %w", err)
	}
	if err := x.mu.Start(codeBase+uint64(offset), retAddr); err != nil {
		return fmt.Errorf("emulation failed: %w", err)
	}
	buf, err := x.mu.MemRead(ctxBase, interpreter.ContextSize)
	if err != nil {
		return fmt.Errorf("read ctx: %w", err)
	}
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(buf[8*i:])
	}
	return nil
}
