package memory

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/colorfulnotion/r4300/log"
)

const (
	DefaultRDRAMSize = 8 * 1024 * 1024
	// HaltRegister stops the core when written; the value is the exit code.
	HaltRegister = 0x1fff0000
	ioPageMask   = ^uint32(PageSize - 1)
)

type ram struct {
	start uint32
	data  []byte
}

func (r *ram) end() uint32 { return r.start + uint32(len(r.data)) }

// IORegion is a memory-mapped device range [start, end] with access callbacks.
type IORegion struct {
	start   uint32
	end     uint32
	onRead  func(addr uint32, width int) uint64
	onWrite func(addr uint32, width int, value, mask uint64)
}

// Bus is the reference Memory: big-endian RAM regions, KSEG0/KSEG1 direct mapping,
// an optional TLB for mapped segments and a page-keyed MMIO table.
type Bus struct {
	rams  []*ram
	inval Invalidator
	tlb   TLB
	asid  uint8

	mutex   sync.RWMutex
	mapping map[uint32][]*IORegion
	onHalt  func(code uint32)
}

// NewBus returns a bus with rdramSize bytes of RAM at physical address 0.
func NewBus(rdramSize int) *Bus {
	if rdramSize <= 0 {
		rdramSize = DefaultRDRAMSize
	}
	bus := &Bus{
		mapping: make(map[uint32][]*IORegion),
		tlb:     NewSoftTLB(),
	}
	bus.AddRAM(0, rdramSize)
	bus.MapIO(HaltRegister, HaltRegister+7, nil, func(addr uint32, width int, value, mask uint64) {
		log.Debug(log.Mem, "halt register written", "code", value)
		bus.mutex.RLock()
		h := bus.onHalt
		bus.mutex.RUnlock()
		if h != nil {
			h(uint32(value))
		}
	})
	return bus
}

// AddRAM backs [start, start+size) with plain memory.
func (bus *Bus) AddRAM(start uint32, size int) {
	bus.rams = append(bus.rams, &ram{start: start, data: make([]byte, size)})
	sort.Slice(bus.rams, func(i, j int) bool { return bus.rams[i].start < bus.rams[j].start })
}

func (bus *Bus) AttachInvalidator(inv Invalidator) { bus.inval = inv }

func (bus *Bus) TLB() TLB { return bus.tlb }

// SetTLB replaces the translation hook; nil leaves mapped segments unbacked.
func (bus *Bus) SetTLB(t TLB) { bus.tlb = t }

// SetASID sets the address space identifier used for TLB lookups.
func (bus *Bus) SetASID(asid uint8) { bus.asid = asid }

// SetHaltHandler installs the callback run when the guest writes HaltRegister.
func (bus *Bus) SetHaltHandler(fn func(code uint32)) {
	bus.mutex.Lock()
	bus.onHalt = fn
	bus.mutex.Unlock()
}

// MapIO registers a device range. Callbacks may be nil.
func (bus *Bus) MapIO(start, end uint32, onRead func(addr uint32, width int) uint64, onWrite func(addr uint32, width int, value, mask uint64)) {
	region := &IORegion{start: start, end: end, onRead: onRead, onWrite: onWrite}
	bus.mutex.Lock()
	defer bus.mutex.Unlock()
	for page := start & ioPageMask; ; page += PageSize {
		bus.mapping[page] = append(bus.mapping[page], region)
		if page >= end&ioPageMask {
			break
		}
	}
}

func (bus *Bus) io(addr uint32) *IORegion {
	bus.mutex.RLock()
	defer bus.mutex.RUnlock()
	for _, region := range bus.mapping[addr&ioPageMask] {
		if addr >= region.start && addr <= region.end {
			return region
		}
	}
	return nil
}

func (bus *Bus) find(phys uint32, width int) *ram {
	for _, r := range bus.rams {
		if phys >= r.start && uint64(phys)+uint64(width) <= uint64(r.end()) {
			return r
		}
	}
	return nil
}

func (bus *Bus) Region(phys uint32) (start, end uint32, ok bool) {
	if r := bus.find(phys, 1); r != nil {
		return r.start, r.end(), true
	}
	return 0, 0, false
}

func (bus *Bus) Translate(vaddr uint32, kind AccessKind) (uint32, error) {
	if IsDirect(vaddr) {
		return DirectPhys(vaddr), nil
	}
	if bus.tlb == nil {
		return 0, &Fault{Kind: FaultTLBMiss, Access: kind, Addr: vaddr}
	}
	return bus.tlb.Lookup(vaddr, bus.asid, kind)
}

func (bus *Bus) Read(phys uint32, width int) (uint64, error) {
	if r := bus.find(phys, width); r != nil {
		off := phys - r.start
		return readBE(r.data[off:], width), nil
	}
	if region := bus.io(phys); region != nil {
		if region.onRead == nil {
			return 0, nil
		}
		return region.onRead(phys, width), nil
	}
	return 0, &Fault{Kind: FaultBus, Access: AccessLoad, Addr: phys}
}

func (bus *Bus) Write(phys uint32, width int, value, mask uint64) error {
	if r := bus.find(phys, width); r != nil {
		if bus.inval != nil {
			bus.inval.Invalidate(phys, uint32(width))
		}
		off := phys - r.start
		if mask == ^uint64(0) || width < 8 && mask == 1<<(8*width)-1 {
			writeBE(r.data[off:], width, value)
			return nil
		}
		old := readBE(r.data[off:], width)
		writeBE(r.data[off:], width, old&^mask|value&mask)
		return nil
	}
	if region := bus.io(phys); region != nil {
		if region.onWrite != nil {
			region.onWrite(phys, width, value, mask)
		}
		return nil
	}
	return &Fault{Kind: FaultBus, Access: AccessStore, Addr: phys}
}

// Copy moves n bytes between RAM locations the way a DMA engine would: the
// destination is invalidated before it is overwritten.
func (bus *Bus) Copy(dst, src uint32, n int) error {
	s, d := bus.find(src, n), bus.find(dst, n)
	if s == nil || d == nil {
		return fmt.Errorf("dma 0x%08x -> 0x%08x (%d bytes): %w", src, dst, n, &Fault{Kind: FaultBus, Access: AccessStore, Addr: dst})
	}
	if bus.inval != nil {
		bus.inval.Invalidate(dst, uint32(n))
	}
	copy(d.data[dst-d.start:dst-d.start+uint32(n)], s.data[src-s.start:src-s.start+uint32(n)])
	return nil
}

// Load copies an image into RAM at phys, invalidating what it overwrites.
func (bus *Bus) Load(phys uint32, image []byte) error {
	r := bus.find(phys, len(image))
	if r == nil {
		return fmt.Errorf("load %d bytes at 0x%08x: %w", len(image), phys, &Fault{Kind: FaultBus, Access: AccessStore, Addr: phys})
	}
	if bus.inval != nil {
		bus.inval.Invalidate(phys, uint32(len(image)))
	}
	copy(r.data[phys-r.start:], image)
	return nil
}

// LoadWords stores big-endian instruction words starting at phys.
func (bus *Bus) LoadWords(phys uint32, words []uint32) error {
	image := make([]byte, 4*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint32(image[4*i:], w)
	}
	return bus.Load(phys, image)
}

// Bytes returns a copy of [phys, phys+n).
func (bus *Bus) Bytes(phys uint32, n int) ([]byte, error) {
	r := bus.find(phys, n)
	if r == nil {
		return nil, &Fault{Kind: FaultBus, Access: AccessLoad, Addr: phys}
	}
	return append([]byte(nil), r.data[phys-r.start:phys-r.start+uint32(n)]...), nil
}

func readBE(b []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.BigEndian.Uint16(b))
	case 4:
		return uint64(binary.BigEndian.Uint32(b))
	default:
		return binary.BigEndian.Uint64(b)
	}
}

func writeBE(b []byte, width int, v uint64) {
	switch width {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(b, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(b, uint32(v))
	default:
		binary.BigEndian.PutUint64(b, v)
	}
}
