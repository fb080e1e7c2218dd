// ops_arith.go - Group-1 ALU instructions: ADD/OR/ADC/SBB/AND/SUB/XOR/CMP
// plus TEST (spec §4.I.1/§4.I.2)
//
// Grounded on cpu_x86_ops.go's opADD8/16/32, opAND8/16/32 etc families -
// generalized to one executor per encoding form, parameterized by an
// arithKind rather than duplicated per mnemonic per size (spec §9
// design note).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

type arithKind int

const (
	arithAdd arithKind = iota
	arithOr
	arithAdc
	arithSbb
	arithAnd
	arithSub
	arithXor
	arithCmp
)

// applyArith runs the ALU operation named by k on (a,b) at size,
// returning the result (meaningless for CMP, which the caller discards)
// and the flags to commit.
func applyArith(k arithKind, a, b uint64, cf bool, size int) (uint64, Flags) {
	switch k {
	case arithAdd:
		return aluAdd(a, b, size)
	case arithOr:
		return a | b, aluLogic((a|b)&mask(size), size)
	case arithAdc:
		return aluAdc(a, b, cf, size)
	case arithSbb:
		return aluSbb(a, b, cf, size)
	case arithAnd:
		return a & b, aluLogic((a&b)&mask(size), size)
	case arithSub, arithCmp:
		return aluSub(a, b, size)
	case arithXor:
		return a ^ b, aluLogic((a^b)&mask(size), size)
	}
	panic("x86: bad arith kind")
}

func opSize(e *Engine, sizeSel int) int {
	if sizeSel == 8 {
		return 8
	}
	return e.dec.OperandSize()
}

// execArithRM implements the Eb,Gb / Ev,Gv / Gb,Eb / Gv,Ev encodings:
// regIsDest selects whether the ModR/M reg field is the destination
// (the *,Eb/*,Ev forms) or the source (the Eb,*/Ev,* forms).
func execArithRM(e *Engine, k arithKind, sizeSel int, regIsDest bool) Status {
	size := opSize(e, sizeSel)
	reg := e.dec.regField()
	rmVal := e.dec.ReadRM(size)
	regVal := e.acc.ReadReg(reg, size)

	var a, b uint64
	if regIsDest {
		a, b = regVal, rmVal
	} else {
		a, b = rmVal, regVal
	}
	result, fl := applyArith(k, a, b, e.cpu.FlagGet(FlagCF), size)
	if k == arithCmp {
		e.acc.UpdateFlags(fl)
		return StatusSuccess
	}
	// Commit the destination write before the flags: a faulting write
	// to a memory operand must leave flags (and everything else) as
	// they were at instruction start (spec §5).
	if regIsDest {
		e.acc.WriteReg(reg, size, result)
	} else {
		e.dec.WriteRM(size, result)
	}
	e.acc.UpdateFlags(fl)
	return StatusSuccess
}

// execArithAccImm implements the AL,Ib / eAX,Iz encodings.
func execArithAccImm(e *Engine, k arithKind, sizeSel int) Status {
	size := opSize(e, sizeSel)
	immSize := size
	signExtend := false
	if size == 64 {
		immSize = 32
		signExtend = true
	}
	imm := e.dec.fetchImm(immSize, signExtend)
	a := e.acc.ReadReg(regRAX, size)
	result, fl := applyArith(k, a, imm, e.cpu.FlagGet(FlagCF), size)
	e.acc.UpdateFlags(fl)
	if k != arithCmp {
		e.acc.WriteReg(regRAX, size, result)
	}
	return StatusSuccess
}

// execGrp1Imm implements the 0x80/0x81/0x83 Eb,Ib / Ev,Iz / Ev,Ib(sx)
// forms, dispatched by the ModR/M reg field selecting the mnemonic
// (spec §4.I.1 "Group 1"). byteImm forces an 8-bit immediate
// (0x80 and 0x83, the latter sign-extended to the operand size);
// otherwise the immediate is Iz: 16 bits at a 16-bit operand size, else
// 32 bits sign-extended when the operand size is 64.
func execGrp1Imm(e *Engine, sizeSel int, byteImm bool, signExtend bool) Status {
	size := opSize(e, sizeSel)
	k := arithKind(e.dec.regField() & 7)
	rmVal := e.dec.ReadRM(size)

	var imm uint64
	switch {
	case byteImm:
		imm = e.dec.fetchImm(8, signExtend)
	case size == 16:
		imm = e.dec.fetchImm(16, false)
	default:
		imm = e.dec.fetchImm(32, size == 64)
	}

	result, fl := applyArith(k, rmVal, imm, e.cpu.FlagGet(FlagCF), size)
	if k != arithCmp {
		e.dec.WriteRM(size, result)
	}
	e.acc.UpdateFlags(fl)
	return StatusSuccess
}

func execTestRM(e *Engine, sizeSel int) Status {
	size := opSize(e, sizeSel)
	reg := e.dec.regField()
	rmVal := e.dec.ReadRM(size)
	regVal := e.acc.ReadReg(reg, size)
	e.acc.UpdateFlags(aluLogic((rmVal&regVal)&mask(size), size))
	return StatusSuccess
}

func execTestAccImm(e *Engine, sizeSel int) Status {
	size := opSize(e, sizeSel)
	imm := e.dec.fetchImm(size, false)
	a := e.acc.ReadReg(regRAX, size)
	e.acc.UpdateFlags(aluLogic((a&imm)&mask(size), size))
	return StatusSuccess
}
