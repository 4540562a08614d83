package recompiler

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/colorfulnotion/r4300/common"
	"github.com/colorfulnotion/r4300/log"
	"github.com/colorfulnotion/r4300/r4300/interpreter"
	"github.com/colorfulnotion/r4300/r4300/isa"
	"github.com/colorfulnotion/r4300/r4300/memory"
)

const noSite Site = -1

// translator turns guest pages into units. Without an emitter it only decodes, which
// is all the cached interpreter needs.
type translator struct {
	cfg     Config
	mem     memory.Memory
	store   *Store
	tracker *Tracker
	arena   *HeapArena
	e       Emitter
	rc      *regCache
	cpo     int32
}

func newTranslator(cfg Config, mem memory.Memory, store *Store, tracker *Tracker, arena *HeapArena, e Emitter) *translator {
	t := &translator{
		cfg:     cfg,
		mem:     mem,
		store:   store,
		tracker: tracker,
		arena:   arena,
		e:       e,
		cpo:     int32(cfg.CyclesPerOp),
	}
	if t.cpo == 0 {
		t.cpo = interpreter.DefaultCyclesPerOp
	}
	if e != nil {
		t.rc = newRegCache(e)
	}
	return t
}

func (t *translator) native(u *Unit) bool { return t.e != nil && !u.Fallback }

func (t *translator) word(u *Unit, slot int) (uint32, error) {
	w, err := t.mem.Read(u.PhysStart+uint32(slot)*4, 4)
	if err != nil {
		return 0, fmt.Errorf("unit 0x%08x slot %d: %w", u.Start, slot, err)
	}
	return uint32(w), nil
}

// source returns the guest bytes the unit is built from.
func (t *translator) source(u *Unit) ([]byte, error) {
	n := u.Len()
	b := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		w, err := t.word(u, i)
		if err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint32(b[4*i:], w)
	}
	return b, nil
}

func (t *translator) fingerprint(u *Unit) (common.Hash, error) {
	src, err := t.source(u)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Blake2Hash(src), nil
}

// resetOps puts every guest slot back to NOTCOMPILED and rebuilds the footer.
func resetOps(u *Unit) {
	n := u.Len()
	size := n + FooterSlots + n>>SlackShift
	if cap(u.Ops) >= size {
		u.Ops = u.Ops[:size]
	} else {
		u.Ops = make([]DecodedOp, size)
	}
	for i := range u.Ops {
		u.Ops[i] = DecodedOp{Handler: isa.NOTCOMPILED, CodeOffset: -1, Link: -1}
		if i < n+FooterSlots {
			u.Ops[i].Addr = u.Start + uint32(i)*4
		}
	}
	for i := n; i < n+FooterSlots; i++ {
		u.Ops[i].Handler = isa.FIN_BLOCK
	}
	u.Relocs = u.Relocs[:0]
	u.Stubs = u.Stubs[:0]
	u.nextStub = n + FooterSlots
	u.resume = make(map[uint32]int32)
}

// materialize (re)builds u from the current contents of guest memory. Every slot is
// enterable once it returns: with native code each one starts as a stub that asks
// the driver to compile it.
func (t *translator) materialize(u *Unit) error {
	u.State = Materializing
	resetOps(u)
	fp, err := t.fingerprint(u)
	if err != nil {
		return err
	}
	u.Fingerprint = fp
	if t.native(u) {
		if err := t.emitSkeleton(u); err != nil {
			t.teardown(u, err)
		}
	}
	t.tracker.Validate(u)
	u.State = Compiled
	u.Stats.Materialized++
	log.Debug(log.Translate, "unit materialized", "start", uint64(u.Start), "slots", u.Len(), "fp", u.Fingerprint.String_short())
	return nil
}

func (t *translator) emitSkeleton(u *Unit) error {
	if u.Code == nil {
		b, err := NewCodeBuffer(t.arena, t.cfg.InitialCodeSize)
		if err != nil {
			return err
		}
		u.Code = b
	} else {
		u.Code.Reset()
	}
	e := t.e
	e.SetBuffer(u.Code)
	n := u.Len()
	for i := 0; i < n; i++ {
		u.Ops[i].CodeOffset = int32(e.Offset())
		e.Exit(ExitNotCompiled, uint32(i))
	}
	for i := n; i < n+FooterSlots; i++ {
		u.Ops[i].CodeOffset = int32(e.Offset())
		e.StoreCtxImm(interpreter.CtxTarget, int32(u.Ops[i].Addr))
		e.Exit(ExitDispatch, 0)
	}
	return u.Code.Err()
}

// revalidate brings a stale unit up to date. Unchanged source keeps the existing
// translation, anything else is translated again from scratch.
func (t *translator) revalidate(u *Unit) error {
	fp, err := t.fingerprint(u)
	if err != nil {
		return err
	}
	if fp == u.Fingerprint {
		t.tracker.Validate(u)
		u.State = Compiled
		u.Stats.Revalidations++
		log.Debug(log.Inval, "unit revalidated", "start", uint64(u.Start), "fp", fp.String_short())
		return nil
	}
	u.Stats.Retranslations++
	log.Debug(log.Inval, "unit retranslated", "start", uint64(u.Start), "old", u.Fingerprint.String_short(), "new", fp.String_short())
	return t.materialize(u)
}

// teardown drops the unit's translation for good; the driver interprets its range
// from then on.
func (t *translator) teardown(u *Unit, err error) {
	u.Fallback = true
	u.FallbackErr = err
	if u.Code != nil {
		u.Code.Release()
		u.Code = nil
	}
	resetOps(u)
	log.Warn(log.Translate, "unit falls back to interpreter", "start", uint64(u.Start), "err", err)
}

// specialize picks the descriptor a slot executes. Instructions without an
// architectural effect collapse to NOP.
func specialize(in isa.Inst) isa.Opcode {
	switch in.Op {
	case isa.SLL, isa.SRL, isa.SRA, isa.SLLV, isa.SRLV, isa.SRAV,
		isa.DSLL, isa.DSRL, isa.DSRA, isa.DSLL32, isa.DSRL32, isa.DSRA32,
		isa.DSLLV, isa.DSRLV, isa.DSRAV, isa.MFHI, isa.MFLO,
		isa.ADDU, isa.SUBU, isa.DADDU, isa.DSUBU, isa.AND, isa.OR, isa.XOR, isa.NOR, isa.SLT, isa.SLTU:
		if in.Rd == 0 {
			return isa.NOP
		}
	case isa.ADDIU, isa.DADDIU, isa.SLTI, isa.SLTIU, isa.ANDI, isa.ORI, isa.XORI, isa.LUI:
		if in.Rt == 0 {
			return isa.NOP
		}
	}
	switch in.Op {
	case isa.OR, isa.XOR, isa.DADDU:
		if (in.Rs == 0 && in.Rd == in.Rt) || (in.Rt == 0 && in.Rd == in.Rs) {
			return isa.NOP
		}
	case isa.DSUBU:
		if in.Rt == 0 && in.Rd == in.Rs {
			return isa.NOP
		}
	case isa.ORI, isa.XORI, isa.DADDIU:
		if in.Rt == in.Rs && in.UImm == 0 {
			return isa.NOP
		}
	case isa.DSLL, isa.DSRL, isa.DSRA:
		if in.Rd == in.Rt && in.Sa == 0 {
			return isa.NOP
		}
	}
	return in.Op
}

// compile translates u sequentially from slot entry. It stops at a slot that is
// already translated, after an instruction that cannot fall through, at the end of
// the range, or when the slot budget runs out.
func (t *translator) compile(u *Unit, entry int) error {
	if entry >= u.Len() || u.Ops[entry].Compiled() {
		return nil
	}
	start := time.Now()
	n := u.Len()
	budget := n + n>>SlackShift
	if t.cfg.compileBudget > 0 {
		budget = t.cfg.compileBudget
	}
	native := t.native(u)
	if native {
		t.e.SetBuffer(u.Code)
		t.rc.reset()
	}

	count := 0
	fallsThrough := false
	i := entry
	for i < n {
		if u.Ops[i].Compiled() || count >= budget {
			break
		}
		step, ends, err := t.compileSlot(u, i, native)
		if err != nil {
			return err
		}
		count += step
		i += step
		fallsThrough = !ends && !u.Ops[i-step].Handler.IsTransfer()
		if ends {
			break
		}
	}
	if native && fallsThrough {
		t.emitJumpToSlot(u, i)
	}

	if fp, err := t.fingerprint(u); err == nil {
		u.Fingerprint = fp
	}
	u.Stats.Compiles++
	u.Stats.CompiledSlots += uint64(count)
	u.Stats.CompileMicros += uint64(common.Elapsed(start))
	if native {
		if err := u.Code.Err(); err != nil {
			t.teardown(u, err)
			return nil
		}
	}
	log.Trace(log.Translate, "compiled", "start", uint64(u.Start), "entry", entry, "slots", count)
	return nil
}

// compileSlot translates slot i and, for a transfer, its delay slot. It returns the
// number of slots consumed and whether translation must stop after them.
func (t *translator) compileSlot(u *Unit, i int, native bool) (int, bool, error) {
	n := u.Len()
	op := &u.Ops[i]
	w, err := t.word(u, i)
	if err != nil {
		return 0, false, err
	}
	in := isa.DecodeInst(w, op.Addr)
	op.Inst = in
	op.Handler = specialize(in)
	op.Flags = 0
	op.Link = -1

	if !in.Op.IsTransfer() {
		if native {
			t.beginSlot(u, i)
			t.emitInst(u, u.handlerInst(i), uint32(i))
		}
		return 1, in.Op.EndsUnit(), nil
	}

	step := 2
	if i+1 < n {
		dw, err := t.word(u, i+1)
		if err != nil {
			return 0, false, err
		}
		u.Ops[i+1].Inst = isa.DecodeInst(dw, op.Addr+4)
		if interpreter.IsIdleLoop(in, op.Addr, dw) {
			op.Flags |= FlagIdle
		}
	} else {
		op.Flags |= FlagDelayOutside
		step = 1
	}
	if in.Op.IsLikely() {
		op.Flags |= FlagLikely
	}
	t.classify(u, i)
	if native {
		t.emitTransfer(u, i)
	}
	return step, in.Op.EndsUnit(), nil
}

// beginSlot places slot i's entry. When registers are cached across the boundary
// the fall-through path jumps over an entry trampoline that reloads them.
func (t *translator) beginSlot(u *Unit, i int) {
	e, rc := t.e, t.rc
	rc.flush()
	if rc.mapped() {
		skip := e.Jump()
		u.Ops[i].CodeOffset = int32(e.Offset())
		rc.reload()
		patchNow(e, skip, e.Offset())
	} else {
		u.Ops[i].CodeOffset = int32(e.Offset())
	}
	t.patchRelocs(u, i)
}

// emitInst charges one instruction and emits it, natively when possible and as a
// helper exit to the interpreter otherwise.
func (t *translator) emitInst(u *Unit, in isa.Inst, arg uint32) {
	e, rc := t.e, t.rc
	e.AddCtxImm(interpreter.CtxCount, t.cpo)
	rc.begin()
	if t.lower(in) {
		return
	}
	t.emitHelper(u, arg)
}

func (t *translator) emitHelper(u *Unit, arg uint32) {
	e := t.e
	t.rc.flush()
	e.Exit(ExitHelper, arg)
	u.resume[arg] = int32(e.Offset())
	t.rc.reset()
}

// lower emits native code for in and reports false when it has no lowering.
func (t *translator) lower(in isa.Inst) bool {
	e, rc := t.e, t.rc
	switch in.Op {
	case isa.NOP:
	case isa.LUI:
		rc.setConst(in.Rt, uint64(in.Imm<<16))
	case isa.ADDIU, isa.DADDIU, isa.ANDI, isa.ORI, isa.XORI, isa.SLTI, isa.SLTIU:
		if v, ok := rc.constOf(in.Rs); ok {
			r, _ := fold(in, v, 0)
			rc.setConst(in.Rt, r)
			return true
		}
		a := rc.read(in.Rs)
		switch in.Op {
		case isa.SLTI, isa.SLTIU:
			b := rc.temp()
			e.MovImm(b, uint64(in.Imm))
			d := rc.write(in.Rt)
			c := CondLT
			if in.Op == isa.SLTIU {
				c = CondLTU
			}
			e.SetCond(c, d, a, b)
		case isa.ADDIU, isa.DADDIU:
			d := rc.write(in.Rt)
			e.AluImm(AluAdd, d, a, int32(in.Imm))
			if in.Op == isa.ADDIU {
				e.Extend32(d, d)
			}
		default:
			d := rc.write(in.Rt)
			e.AluImm(immAlu[in.Op], d, a, int32(in.UImm))
		}
	case isa.ADDU, isa.SUBU, isa.DADDU, isa.DSUBU, isa.AND, isa.OR, isa.XOR, isa.NOR, isa.SLT, isa.SLTU:
		va, oka := rc.constOf(in.Rs)
		vb, okb := rc.constOf(in.Rt)
		if oka && okb {
			r, _ := fold(in, va, vb)
			rc.setConst(in.Rd, r)
			return true
		}
		a := rc.read(in.Rs)
		b := rc.read(in.Rt)
		d := rc.write(in.Rd)
		switch in.Op {
		case isa.SLT:
			e.SetCond(CondLT, d, a, b)
		case isa.SLTU:
			e.SetCond(CondLTU, d, a, b)
		default:
			e.Alu(regAlu[in.Op], d, a, b)
			if in.Op == isa.ADDU || in.Op == isa.SUBU {
				e.Extend32(d, d)
			}
		}
	case isa.SLL, isa.SRL, isa.SRA, isa.DSLL, isa.DSRL, isa.DSRA, isa.DSLL32, isa.DSRL32, isa.DSRA32:
		if v, ok := rc.constOf(in.Rt); ok {
			r, _ := fold(in, 0, v)
			rc.setConst(in.Rd, r)
			return true
		}
		sh := shifts[in.Op]
		a := rc.read(in.Rt)
		d := rc.write(in.Rd)
		e.Shift(sh.op, d, a, in.Sa+sh.add, sh.width32)
	case isa.MFHI, isa.MFLO:
		off := int32(interpreter.CtxHI)
		if in.Op == isa.MFLO {
			off = interpreter.CtxLO
		}
		d := rc.write(in.Rd)
		e.LoadCtx(d, off)
	case isa.MTHI, isa.MTLO:
		off := int32(interpreter.CtxHI)
		if in.Op == isa.MTLO {
			off = interpreter.CtxLO
		}
		e.StoreCtx(off, rc.read(in.Rs))
	default:
		return false
	}
	return true
}

var immAlu = map[isa.Opcode]AluOp{
	isa.ANDI: AluAnd,
	isa.ORI:  AluOr,
	isa.XORI: AluXor,
}

var regAlu = map[isa.Opcode]AluOp{
	isa.ADDU:  AluAdd,
	isa.DADDU: AluAdd,
	isa.SUBU:  AluSub,
	isa.DSUBU: AluSub,
	isa.AND:   AluAnd,
	isa.OR:    AluOr,
	isa.XOR:   AluXor,
	isa.NOR:   AluNor,
}

type shiftForm struct {
	op      ShiftOp
	add     uint8
	width32 bool
}

var shifts = map[isa.Opcode]shiftForm{
	isa.SLL:    {ShiftLeft, 0, true},
	isa.SRL:    {ShiftRightLogical, 0, true},
	isa.SRA:    {ShiftRightArith, 0, true},
	isa.DSLL:   {ShiftLeft, 0, false},
	isa.DSRL:   {ShiftRightLogical, 0, false},
	isa.DSRA:   {ShiftRightArith, 0, false},
	isa.DSLL32: {ShiftLeft, 32, false},
	isa.DSRL32: {ShiftRightLogical, 32, false},
	isa.DSRA32: {ShiftRightArith, 32, false},
}

// fold evaluates a lowered instruction over known operand values.
func fold(in isa.Inst, rs, rt uint64) (uint64, bool) {
	sa := uint64(in.Sa)
	switch in.Op {
	case isa.ADDIU:
		return isa.SignExtend32(uint32(rs) + uint32(in.Imm)), true
	case isa.DADDIU:
		return rs + uint64(in.Imm), true
	case isa.ANDI:
		return rs & in.UImm, true
	case isa.ORI:
		return rs | in.UImm, true
	case isa.XORI:
		return rs ^ in.UImm, true
	case isa.SLTI:
		return b2u(int64(rs) < in.Imm), true
	case isa.SLTIU:
		return b2u(rs < uint64(in.Imm)), true
	case isa.ADDU:
		return isa.SignExtend32(uint32(rs) + uint32(rt)), true
	case isa.SUBU:
		return isa.SignExtend32(uint32(rs) - uint32(rt)), true
	case isa.DADDU:
		return rs + rt, true
	case isa.DSUBU:
		return rs - rt, true
	case isa.AND:
		return rs & rt, true
	case isa.OR:
		return rs | rt, true
	case isa.XOR:
		return rs ^ rt, true
	case isa.NOR:
		return ^(rs | rt), true
	case isa.SLT:
		return b2u(int64(rs) < int64(rt)), true
	case isa.SLTU:
		return b2u(rs < rt), true
	case isa.SLL:
		return isa.SignExtend32(uint32(rt) << sa), true
	case isa.SRL:
		return isa.SignExtend32(uint32(rt) >> sa), true
	case isa.SRA:
		return isa.SignExtend32(int32(uint32(rt)) >> sa), true
	case isa.DSLL:
		return rt << sa, true
	case isa.DSRL:
		return rt >> sa, true
	case isa.DSRA:
		return uint64(int64(rt) >> sa), true
	case isa.DSLL32:
		return rt << (sa + 32), true
	case isa.DSRL32:
		return rt >> (sa + 32), true
	case isa.DSRA32:
		return uint64(int64(rt) >> (sa + 32)), true
	}
	return 0, false
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

var branchCond = map[isa.Opcode]Cond{
	isa.BEQ: CondEQ, isa.BEQL: CondEQ,
	isa.BNE: CondNE, isa.BNEL: CondNE,
	isa.BLEZ: CondLE, isa.BLEZL: CondLE,
	isa.BGTZ: CondGT, isa.BGTZL: CondGT,
	isa.BLTZ: CondLT, isa.BLTZL: CondLT, isa.BLTZAL: CondLT, isa.BLTZALL: CondLT,
	isa.BGEZ: CondGE, isa.BGEZL: CondGE, isa.BGEZAL: CondGE, isa.BGEZALL: CondGE,
}

func comparesTwo(op isa.Opcode) bool {
	return op == isa.BEQ || op == isa.BNE || op == isa.BEQL || op == isa.BNEL
}

// emitCondition leaves the branch outcome in ctx.Taken.
func (t *translator) emitCondition(in isa.Inst) {
	e, rc := t.e, t.rc
	va, oka := rc.constOf(in.Rs)
	vb, okb := uint64(0), true
	if comparesTwo(in.Op) {
		vb, okb = rc.constOf(in.Rt)
	}
	if oka && okb {
		e.StoreCtxImm(interpreter.CtxTaken, int32(b2u(interpreter.Condition(in.Op, va, vb))))
		return
	}
	a := rc.read(in.Rs)
	var b Reg
	if comparesTwo(in.Op) {
		b = rc.read(in.Rt)
	} else {
		b = rc.temp()
		e.MovImm(b, 0)
	}
	d := rc.temp()
	e.SetCond(branchCond[in.Op], d, a, b)
	e.StoreCtx(interpreter.CtxTaken, d)
}

// emitTransfer emits a branch or jump together with its delay slot. Control leaves
// through the taken path and, for conditional transfers, the not-taken path; both
// run the clock check first.
func (t *translator) emitTransfer(u *Unit, i int) {
	e, rc := t.e, t.rc
	op := &u.Ops[i]
	in := op.Inst
	pc := op.Addr

	t.beginSlot(u, i)
	e.AddCtxImm(interpreter.CtxCount, t.cpo)
	rc.begin()
	conditional := false
	switch in.Op.Class() {
	case isa.ClassJump:
		e.StoreCtxImm(interpreter.CtxTaken, 1)
		e.StoreCtxImm(interpreter.CtxTarget, int32(in.Target))
	case isa.ClassJumpReg:
		e.StoreCtx(interpreter.CtxTarget, rc.read(in.Rs))
		e.StoreCtxImm(interpreter.CtxTaken, 1)
	default:
		conditional = true
		if in.Op.IsFPU() {
			// the condition bit lives in FCR31
			t.emitHelper(u, uint32(i))
		} else {
			t.emitCondition(in)
			e.StoreCtxImm(interpreter.CtxTarget, int32(in.Target))
		}
	}
	if in.Op.IsLink() {
		rd := uint8(31)
		if in.Op == isa.JALR {
			rd = in.Rd
		}
		rc.setConst(rd, isa.SignExtend32(pc+8))
	}
	rc.flush()
	rc.reset()

	notTaken := noSite
	if op.Flags&FlagLikely != 0 {
		tk := rc.temp()
		e.LoadCtx(tk, interpreter.CtxTaken)
		notTaken = e.JumpZero(tk)
	}

	delayArg := uint32(i+1) | helperDelayBit
	if op.Flags&FlagDelayOutside != 0 {
		e.AddCtxImm(interpreter.CtxCount, t.cpo)
		t.emitHelper(u, delayArg)
	} else {
		d := u.Ops[i+1].Inst
		d.Op = specialize(d)
		t.emitInst(u, d, delayArg)
	}
	rc.flush()
	rc.reset()

	if conditional && notTaken == noSite {
		tk := rc.temp()
		e.LoadCtx(tk, interpreter.CtxTaken)
		notTaken = e.JumpZero(tk)
	}

	if op.Flags&FlagIdle != 0 {
		e.Exit(ExitIdle, 0)
	} else {
		t.emitCheck()
		t.emitTaken(u, i)
	}

	if notTaken != noSite {
		patchNow(e, notTaken, e.Offset())
		e.StoreCtxImm(interpreter.CtxTarget, int32(pc+8))
		t.emitCheck()
		t.emitJumpToSlot(u, i+2)
	}
}

// emitCheck leaves through ExitInterrupt once Count has reached Deadline. The
// transfer target must already be in ctx.Target.
func (t *translator) emitCheck() {
	e := t.e
	c, d := e.Scratch(0), e.Scratch(1)
	e.LoadCtx(c, interpreter.CtxCount)
	e.LoadCtx(d, interpreter.CtxDeadline)
	skip := e.JumpCond(CondLTU, c, d)
	e.Exit(ExitInterrupt, 0)
	patchNow(e, skip, e.Offset())
}

func (t *translator) emitTaken(u *Unit, i int) {
	e := t.e
	op := &u.Ops[i]
	switch {
	case op.Flags&FlagIndirect != 0 || op.Link < 0:
		e.Exit(ExitDispatch, 0)
	case u.Ops[op.Link].Handler == isa.LINK_STUB:
		s := int(op.Link)
		site := e.Jump()
		patchNow(e, site, e.Offset())
		u.Ops[s].CodeOffset = int32(e.Offset())
		e.StoreCtxImm(interpreter.CtxTarget, int32(u.Ops[s].Addr))
		e.Exit(ExitLink, uint32(s))
		if stub := u.stub(s); stub != nil {
			stub.Site = site
		}
	default:
		t.emitJumpToSlot(u, int(op.Link))
	}
}

// emitJumpToSlot jumps to slot j. A slot without code yet gets its not-compiled
// stub for now and a relocation that repoints the jump once it is translated.
func (t *translator) emitJumpToSlot(u *Unit, j int) {
	e := t.e
	t.rc.flush()
	site := e.Jump()
	patchNow(e, site, int(u.Ops[j].CodeOffset))
	if !u.Ops[j].Compiled() {
		u.Relocs = append(u.Relocs, Reloc{Site: site, Slot: int32(j)})
	}
}
