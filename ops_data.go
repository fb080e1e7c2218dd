// ops_data.go - data movement: MOV, LEA, XCHG, MOVZX/MOVSX, CMOVcc,
// SETcc, sign-extension opcodes (spec §4.I.1)
//
// Grounded on cpu_x86_ops.go's opMOV8/16/32 and opLEA16/32 families.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

func execMovRM(e *Engine, sizeSel int, regIsDest bool) Status {
	size := opSize(e, sizeSel)
	reg := e.dec.regField()
	if regIsDest {
		e.acc.WriteReg(reg, size, e.dec.ReadRM(size))
	} else {
		e.dec.WriteRM(size, e.acc.ReadReg(reg, size))
	}
	return StatusSuccess
}

func execMovRegImm(e *Engine, regIdx byte, sizeSel int) Status {
	size := opSize(e, sizeSel)
	idx := regIdx + e.dec.rexB()
	imm := e.dec.fetchImm(size, false)
	e.acc.WriteReg(idx, size, imm)
	return StatusSuccess
}

func execMovRMImm(e *Engine, sizeSel int) Status {
	size := opSize(e, sizeSel)
	var imm uint64
	if size == 16 {
		imm = e.dec.fetchImm(16, false)
	} else {
		imm = e.dec.fetchImm(32, size == 64)
	}
	e.dec.WriteRM(size, imm)
	return StatusSuccess
}

// execLEA loads the effective address itself (no memory access) into
// the ModR/M reg field; the source must be a memory form.
func execLEA(e *Engine) Status {
	size := e.dec.OperandSize()
	reg := e.dec.regField()
	_, offset := e.dec.EffectiveAddress()
	e.acc.WriteReg(reg, size, offset)
	return StatusSuccess
}

func execXchgRM(e *Engine, sizeSel int) Status {
	size := opSize(e, sizeSel)
	reg := e.dec.regField()
	rmVal := e.dec.ReadRM(size)
	regVal := e.acc.ReadReg(reg, size)
	e.dec.WriteRM(size, regVal)
	e.acc.WriteReg(reg, size, rmVal)
	return StatusSuccess
}

// execMovx implements MOVZX/MOVSX: srcSize is 8 or 16 bits, signExtend
// selects MOVSX over MOVZX. Destination size is the current operand
// size (16/32/64).
func execMovx(e *Engine, srcSize int, signExtend bool) Status {
	dstSize := e.dec.OperandSize()
	raw := e.dec.ReadRM(srcSize)
	var value uint64
	if signExtend {
		shift := 64 - uint(srcSize)
		value = uint64(int64(raw<<shift) >> shift)
	} else {
		value = raw
	}
	reg := e.dec.regField()
	e.acc.WriteReg(reg, dstSize, value&mask(dstSize))
	return StatusSuccess
}

// execMovsxd implements 0x63 MOVSXD Gv,Ev: sign-extends a 32-bit source
// into the destination's operand size (64 under REX.W, else a plain
// 32-bit move per legacy ARPL-slot reuse semantics).
func execMovsxd(e *Engine) Status {
	dstSize := e.dec.OperandSize()
	reg := e.dec.regField()
	raw := e.dec.ReadRM(32)
	if dstSize == 64 {
		e.acc.WriteReg(reg, 64, uint64(int64(int32(raw))))
	} else {
		e.acc.WriteReg(reg, dstSize, raw&mask(dstSize))
	}
	return StatusSuccess
}

// execCBW implements CBW/CWDE/CDQE: sign-extend AL/AX/EAX into AX/EAX/RAX.
func execCBW(e *Engine) Status {
	size := e.dec.OperandSize()
	switch size {
	case 16:
		al := int8(e.acc.ReadReg(regRAX, 8))
		e.acc.WriteReg(regRAX, 16, uint64(uint16(int16(al))))
	case 32:
		ax := int16(e.acc.ReadReg(regRAX, 16))
		e.acc.WriteReg(regRAX, 32, uint64(uint32(int32(ax))))
	case 64:
		eax := int32(e.acc.ReadReg(regRAX, 32))
		e.acc.WriteReg(regRAX, 64, uint64(int64(eax)))
	}
	return StatusSuccess
}

// execCWD implements CWD/CDQ/CQO: sign-extend AX/EAX/RAX into DX:AX,
// EDX:EAX or RDX:RAX.
func execCWD(e *Engine) Status {
	size := e.dec.OperandSize()
	v := e.acc.ReadReg(regRAX, size)
	if v&signBit(size) != 0 {
		e.acc.WriteReg(regRDX, size, mask(size))
	} else {
		e.acc.WriteReg(regRDX, size, 0)
	}
	return StatusSuccess
}

// condCode evaluates one of the 16 x86 condition codes against current
// flags (spec GLOSSARY "Jcc"/"SETcc"/"CMOVcc" share this table).
func condCode(e *Engine, cc byte) bool {
	f := e.cpu
	switch cc & 0xF {
	case 0x0: // O
		return f.FlagGet(FlagOF)
	case 0x1: // NO
		return !f.FlagGet(FlagOF)
	case 0x2: // B/C/NAE
		return f.FlagGet(FlagCF)
	case 0x3: // AE/NB/NC
		return !f.FlagGet(FlagCF)
	case 0x4: // E/Z
		return f.FlagGet(FlagZF)
	case 0x5: // NE/NZ
		return !f.FlagGet(FlagZF)
	case 0x6: // BE/NA
		return f.FlagGet(FlagCF) || f.FlagGet(FlagZF)
	case 0x7: // A/NBE
		return !f.FlagGet(FlagCF) && !f.FlagGet(FlagZF)
	case 0x8: // S
		return f.FlagGet(FlagSF)
	case 0x9: // NS
		return !f.FlagGet(FlagSF)
	case 0xA: // P/PE
		return f.FlagGet(FlagPF)
	case 0xB: // NP/PO
		return !f.FlagGet(FlagPF)
	case 0xC: // L/NGE
		return f.FlagGet(FlagSF) != f.FlagGet(FlagOF)
	case 0xD: // GE/NL
		return f.FlagGet(FlagSF) == f.FlagGet(FlagOF)
	case 0xE: // LE/NG
		return f.FlagGet(FlagZF) || f.FlagGet(FlagSF) != f.FlagGet(FlagOF)
	case 0xF: // G/NLE
		return !f.FlagGet(FlagZF) && f.FlagGet(FlagSF) == f.FlagGet(FlagOF)
	}
	return false
}

func execSetcc(e *Engine, cc byte) Status {
	var v uint64
	if condCode(e, cc) {
		v = 1
	}
	e.dec.WriteRM(8, v)
	return StatusSuccess
}

func execCmovcc(e *Engine, cc byte) Status {
	size := e.dec.OperandSize()
	reg := e.dec.regField()
	rmVal := e.dec.ReadRM(size) // must read regardless, to advance past ModR/M consistently
	if condCode(e, cc) {
		e.acc.WriteReg(reg, size, rmVal)
	}
	return StatusSuccess
}
