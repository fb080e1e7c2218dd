// ops_control.go - control transfer: Jcc/JMP/CALL/RET/LOOP, INT/IRET/
// HLT, and the flag-bit toggles (spec §4.I.6 "Control flow")
//
// Grounded on cpu_x86.go's Step() branch-taken RIP arithmetic and
// cpu_x86_ops.go's opJMP/opCALL/opRET/opLOOP family.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

func execJcc(e *Engine, cc byte, dispBits int) Status {
	disp := int64(e.dec.fetchImm(dispBits, true))
	if condCode(e, cc) {
		e.cpu.RIP = uint64(int64(e.cpu.RIP) + disp)
	}
	return StatusSuccess
}

func execJmpRel(e *Engine, dispBits int) Status {
	disp := int64(e.dec.fetchImm(dispBits, true))
	e.cpu.RIP = uint64(int64(e.cpu.RIP) + disp)
	return StatusSuccess
}

func execCallRel32(e *Engine) Status {
	disp := int64(e.dec.fetchImm(32, true))
	pushSize := stackOperandSize(e)
	if f := e.acc.Push(e.cpu.RIP, pushSize); f != nil {
		panic(f)
	}
	e.cpu.RIP = uint64(int64(e.cpu.RIP) + disp)
	return StatusSuccess
}

// execRet implements RET (0xC3) and RET imm16 (0xC2), popping the
// return address and optionally releasing `imm16` bytes of arguments.
func execRet(e *Engine, hasImm bool) Status {
	var extra uint64
	if hasImm {
		extra = e.dec.fetchImm(16, false)
	}
	size := stackOperandSize(e)
	target, f := e.acc.Pop(size)
	if f != nil {
		panic(f)
	}
	e.cpu.RIP = target
	if extra != 0 {
		sp := e.acc.ReadReg(regRSP, size) + extra
		e.acc.WriteReg(regRSP, size, sp)
	}
	return StatusSuccess
}

type loopKind int

const (
	loopPlain loopKind = iota
	loopZ
	loopNZ
)

// execLoop implements LOOP/LOOPE/LOOPNE: decrement (E)CX/RCX, branch if
// nonzero and (for LOOPE/LOOPNE) ZF agrees.
func execLoop(e *Engine, kind loopKind) Status {
	disp := int64(int8(e.dec.fetchImm(8, true)))
	ctrSize := e.dec.AddressSize()
	if ctrSize == 16 {
		ctrSize = 16
	}
	cx := e.acc.ReadReg(regRCX, ctrSize) - 1
	e.acc.WriteReg(regRCX, ctrSize, cx)

	take := cx != 0
	switch kind {
	case loopZ:
		take = take && e.cpu.FlagGet(FlagZF)
	case loopNZ:
		take = take && !e.cpu.FlagGet(FlagZF)
	}
	if take {
		e.cpu.RIP = uint64(int64(e.cpu.RIP) + disp)
	}
	return StatusSuccess
}

func execJcxz(e *Engine) Status {
	disp := int64(int8(e.dec.fetchImm(8, true)))
	ctrSize := e.dec.AddressSize()
	if e.acc.ReadReg(regRCX, ctrSize) == 0 {
		e.cpu.RIP = uint64(int64(e.cpu.RIP) + disp)
	}
	return StatusSuccess
}

func execInt3(e *Engine) Status {
	e.raiseSoftwareInterrupt(3, false)
	return StatusSuccess
}

func execIntImm(e *Engine) Status {
	vec := byte(e.dec.fetchImm(8, false))
	e.raiseSoftwareInterrupt(vec, false)
	return StatusSuccess
}

// execIret implements IRET/IRETD/IRETQ: pop RIP, CS, RFLAGS (spec
// §4.J "Interrupt return"). The stack layout is always the 64-bit one
// in long mode, regardless of the current operand size override
// (spec §4.J invariant).
func execIret(e *Engine) Status {
	size := stackOperandSize(e)
	rip, f := e.acc.Pop(size)
	if f != nil {
		panic(f)
	}
	cs, f := e.acc.Pop(size)
	if f != nil {
		panic(f)
	}
	rflags, f := e.acc.Pop(size)
	if f != nil {
		panic(f)
	}
	e.cpu.RIP = rip
	e.cpu.SetSegReal(SegCS, uint16(cs))
	e.cpu.LoadRFLAGS(rflags)
	return StatusSuccess
}

func execHlt(e *Engine) Status {
	e.cpu.halted = true
	return StatusHalt
}

func execCmc(e *Engine) Status { e.cpu.FlagSet(FlagCF, !e.cpu.FlagGet(FlagCF)); return StatusSuccess }
func execClc(e *Engine) Status { e.cpu.FlagSet(FlagCF, false); return StatusSuccess }
func execStc(e *Engine) Status { e.cpu.FlagSet(FlagCF, true); return StatusSuccess }
func execCli(e *Engine) Status { e.cpu.FlagSet(FlagIF, false); return StatusSuccess }
func execSti(e *Engine) Status { e.cpu.FlagSet(FlagIF, true); e.cpu.shadow = true; return StatusSuccess }
func execCld(e *Engine) Status { e.cpu.FlagSet(FlagDF, false); return StatusSuccess }
func execStd(e *Engine) Status { e.cpu.FlagSet(FlagDF, true); return StatusSuccess }

// execEscape0F fetches the second opcode byte and dispatches through
// the 0F escape table (spec §4.F).
func execEscape0F(e *Engine) Status {
	op := e.dec.fetch8()
	switch op {
	case 0x38:
		return e.table.esc38[e.dec.fetch8()](e)
	case 0x3A:
		return e.table.esc3A[e.dec.fetch8()](e)
	}
	return e.table.esc0F[op](e)
}
