package memory

import (
	"fmt"
)

const (
	KSEG0     = 0x80000000 // cached, unmapped
	KSEG1     = 0xa0000000 // uncached, unmapped
	KSSEG     = 0xc0000000 // mapped
	PhysMask  = 0x1fffffff
	PageShift = 12
	PageSize  = 1 << PageShift
)

// AccessKind describes why an address is being translated.
type AccessKind uint8

const (
	AccessFetch AccessKind = iota
	AccessLoad
	AccessStore
)

func (k AccessKind) String() string {
	switch k {
	case AccessFetch:
		return "fetch"
	case AccessLoad:
		return "load"
	case AccessStore:
		return "store"
	}
	return "unknown"
}

// Memory is the guest memory collaborator. Widths are 1, 2, 4 or 8 bytes and addresses
// are naturally aligned. Values are right-aligned; mask selects which bytes a write
// commits (all ones for a full write).
type Memory interface {
	Read(phys uint32, width int) (uint64, error)
	Write(phys uint32, width int, value, mask uint64) error
	Translate(vaddr uint32, kind AccessKind) (uint32, error)
	// Region reports the bounds [start, end) of the directly backed memory containing phys.
	Region(phys uint32) (start, end uint32, ok bool)
}

// Invalidator is notified of every guest write before it is committed.
type Invalidator interface {
	Invalidate(phys uint32, size uint32)
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(phys uint32, size uint32)

func (f InvalidatorFunc) Invalidate(phys uint32, size uint32) { f(phys, size) }

// Attachable memories accept the invalidation hook of the execution core.
type Attachable interface {
	AttachInvalidator(Invalidator)
}

// TLBMemory exposes the translation lookaside buffer behind a Memory, if any.
type TLBMemory interface {
	TLB() TLB
}

type FaultKind uint8

const (
	FaultTLBMiss FaultKind = iota + 1
	FaultTLBInvalid
	FaultTLBMod
	FaultAddress
	FaultBus
)

func (k FaultKind) String() string {
	switch k {
	case FaultTLBMiss:
		return "tlb miss"
	case FaultTLBInvalid:
		return "tlb invalid"
	case FaultTLBMod:
		return "tlb modified"
	case FaultAddress:
		return "address error"
	case FaultBus:
		return "bus error"
	}
	return "unknown"
}

// Fault is returned by Memory operations that must become guest exceptions.
type Fault struct {
	Kind   FaultKind
	Access AccessKind
	Addr   uint32
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s on %s at 0x%08x", f.Kind, f.Access, f.Addr)
}

// IsDirect reports whether vaddr lies in an unmapped kernel segment.
func IsDirect(vaddr uint32) bool {
	return vaddr >= KSEG0 && vaddr < KSSEG
}

// DirectPhys maps a KSEG0/KSEG1 address to its physical address.
func DirectPhys(vaddr uint32) uint32 {
	return vaddr & PhysMask
}
