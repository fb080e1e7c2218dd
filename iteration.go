// iteration.go - REP/REPE/REPNE iteration (spec §4.I.4 "String
// instructions")
//
// Grounded on cpu_x86.go's prefixRep field and the loop Step() runs
// around a decoded string opcode: re-invoke the same decoded
// instruction body, decrementing the counter register each pass, and -
// for REPE/REPNE - stop early the moment ZF disagrees with the prefix.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

// counterSize picks the register width LOOP/REP decrement, driven by
// address size exactly like the real/compat/long mode counter width
// rules for LOOP (spec §4.I.4).
func counterSize(e *Engine) int {
	return e.dec.AddressSize()
}

// repUnconditional runs body once per CX/ECX/RCX count for MOVS/STOS/
// LODS, which ignore ZF entirely.
func repUnconditional(e *Engine, body func() Status) Status {
	if e.cpu.prefix.repKind == 0 {
		return body()
	}
	size := counterSize(e)
	for e.acc.ReadReg(regRCX, size) != 0 {
		st := body()
		cx := e.acc.ReadReg(regRCX, size) - 1
		e.acc.WriteReg(regRCX, size, cx)
		if st != StatusSuccess {
			return st
		}
	}
	return StatusSuccess
}

// repConditional runs body once per count for CMPS/SCAS, stopping as
// soon as ZF no longer matches the prefix's expectation (REPE wants
// ZF==1 to continue, REPNE wants ZF==0).
func repConditional(e *Engine, body func() Status) Status {
	if e.cpu.prefix.repKind == 0 {
		return body()
	}
	wantZF := e.cpu.prefix.repKind == 1
	size := counterSize(e)
	for e.acc.ReadReg(regRCX, size) != 0 {
		st := body()
		cx := e.acc.ReadReg(regRCX, size) - 1
		e.acc.WriteReg(regRCX, size, cx)
		if st != StatusSuccess {
			return st
		}
		if e.cpu.FlagGet(FlagZF) != wantZF {
			break
		}
		if cx == 0 {
			break
		}
	}
	return StatusSuccess
}

// stringStep advances SI/DI-style index registers by size/8, in the
// direction DF selects (spec §4.I.4).
func stringStep(e *Engine, regIdx byte, size int) {
	addrSize := e.dec.AddressSize()
	delta := uint64(size / 8)
	cur := e.acc.ReadReg(regIdx, addrSize)
	if e.cpu.FlagGet(FlagDF) {
		cur -= delta
	} else {
		cur += delta
	}
	e.acc.WriteReg(regIdx, addrSize, cur)
}
