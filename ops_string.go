// ops_string.go - MOVS/CMPS/STOS/LODS/SCAS (spec §4.I.4)
//
// Grounded on cpu_x86_ops.go's opMOVS/opSTOS/opLODS/opSCAS family,
// wrapped in iteration.go's REP/REPE/REPNE loop driver instead of the
// source's dedicated per-size repeat code paths.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

func execMovs(e *Engine, sizeSel int) Status {
	size := opSize(e, sizeSel)
	return repUnconditional(e, func() Status {
		addrSize := e.dec.AddressSize()
		srcOff := e.acc.ReadReg(regRSI, addrSize)
		dstOff := e.acc.ReadReg(regRDI, addrSize)
		seg := e.dec.effectiveSeg(SegDS)
		v, f := e.acc.ReadMem(seg, srcOff, size, AccessRead)
		if f != nil {
			panic(f)
		}
		if f := e.acc.WriteMem(SegES, dstOff, size, v, AccessWrite); f != nil {
			panic(f)
		}
		stringStep(e, regRSI, size)
		stringStep(e, regRDI, size)
		return StatusSuccess
	})
}

func execCmps(e *Engine, sizeSel int) Status {
	size := opSize(e, sizeSel)
	return repConditional(e, func() Status {
		addrSize := e.dec.AddressSize()
		srcOff := e.acc.ReadReg(regRSI, addrSize)
		dstOff := e.acc.ReadReg(regRDI, addrSize)
		seg := e.dec.effectiveSeg(SegDS)
		a, f := e.acc.ReadMem(seg, srcOff, size, AccessRead)
		if f != nil {
			panic(f)
		}
		b, f := e.acc.ReadMem(SegES, dstOff, size, AccessRead)
		if f != nil {
			panic(f)
		}
		_, fl := aluSub(a, b, size)
		e.acc.UpdateFlags(fl)
		stringStep(e, regRSI, size)
		stringStep(e, regRDI, size)
		return StatusSuccess
	})
}

func execStos(e *Engine, sizeSel int) Status {
	size := opSize(e, sizeSel)
	return repUnconditional(e, func() Status {
		addrSize := e.dec.AddressSize()
		dstOff := e.acc.ReadReg(regRDI, addrSize)
		a := e.acc.ReadReg(regRAX, size)
		if f := e.acc.WriteMem(SegES, dstOff, size, a, AccessWrite); f != nil {
			panic(f)
		}
		stringStep(e, regRDI, size)
		return StatusSuccess
	})
}

func execLods(e *Engine, sizeSel int) Status {
	size := opSize(e, sizeSel)
	return repUnconditional(e, func() Status {
		addrSize := e.dec.AddressSize()
		srcOff := e.acc.ReadReg(regRSI, addrSize)
		seg := e.dec.effectiveSeg(SegDS)
		v, f := e.acc.ReadMem(seg, srcOff, size, AccessRead)
		if f != nil {
			panic(f)
		}
		e.acc.WriteReg(regRAX, size, v)
		stringStep(e, regRSI, size)
		return StatusSuccess
	})
}

func execScas(e *Engine, sizeSel int) Status {
	size := opSize(e, sizeSel)
	return repConditional(e, func() Status {
		addrSize := e.dec.AddressSize()
		dstOff := e.acc.ReadReg(regRDI, addrSize)
		a := e.acc.ReadReg(regRAX, size)
		b, f := e.acc.ReadMem(SegES, dstOff, size, AccessRead)
		if f != nil {
			panic(f)
		}
		_, fl := aluSub(a, b, size)
		e.acc.UpdateFlags(fl)
		stringStep(e, regRDI, size)
		return StatusSuccess
	})
}
