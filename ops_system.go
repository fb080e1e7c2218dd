// ops_system.go - SYSCALL/SYSRET, descriptor-table loads, CR/DR moves,
// CPUID, RDMSR/WRMSR (spec §4.I.6 "System")
//
// SYSCALL/SYSRET are grounded on cpu_x86_runner.go's MSR-driven entry
// setup; the descriptor-table and CR/DR opcodes are new (the source has
// no segmentation), styled after the same straight-line register-move
// shape as cpu_x86_ops.go's other system opcodes.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

// flatCodeSeg/flatDataSeg synthesize the descriptor caches SYSCALL and
// SYSRET install directly from STAR, bypassing the GDT (spec §4.I.6
// "SYSCALL contract").
func flatCodeSeg(base uint64) DescriptorCache {
	return DescriptorCache{Present: true, Executable: true, DefSize: 64}
}

func flatDataSeg() DescriptorCache {
	return DescriptorCache{Present: true, DefSize: 32}
}

// execSyscall implements the fast system-call entry (spec §4.I.6): save
// RIP in RCX and RFLAGS in R11, load CS/SS from STAR, RIP from LSTAR,
// mask RFLAGS with FMASK and unconditionally clear IF/TF/RF/AC, CPL 0.
func execSyscall(e *Engine) Status {
	c := e.cpu
	c.gpr[regRCX] = c.RIP
	c.gpr[regR11] = c.RFLAGS()

	csSel := uint16((c.STAR >> 32) & 0xFFFC)
	ssSel := csSel + 8
	c.SetSegCached(SegCS, csSel, flatCodeSeg(0))
	c.SetSegCached(SegSS, ssSel, flatDataSeg())

	c.RIP = c.LSTAR
	c.flags &^= c.FMASK
	c.flags &^= FlagIF | FlagTF | FlagRF | FlagAC
	c.cpl = 0
	return StatusSuccess
}

// execSysret implements the matching fast return: RIP from RCX, RFLAGS
// from R11, CS/SS from STAR's high half, CPL 3.
func execSysret(e *Engine) Status {
	c := e.cpu
	c.RIP = c.gpr[regRCX]
	c.LoadRFLAGS(c.gpr[regR11])

	csSel := (uint16((c.STAR>>48)&0xFFFF) + 16) | 3
	ssSel := uint16((c.STAR>>48)&0xFFFF) + 8
	c.SetSegCached(SegCS, csSel, flatCodeSeg(0))
	c.SetSegCached(SegSS, ssSel, flatDataSeg())
	c.cpl = 3
	return StatusSuccess
}

// execGrp7 implements 0F 01: SGDT/SIDT/LGDT/LIDT/SMSW/LMSW, selected by
// ModR/M.reg. Register-form encodings (SWAPGS and friends) are treated
// as no-ops: this engine has no second privilege ring to swap GS
// against (spec Non-goals: "ring-transition security"). INVLPG (memory
// form, reg 7) is also a no-op, as there is no TLB to invalidate.
func execGrp7(e *Engine) Status {
	reg := e.dec.regField() & 7
	if e.dec.IsRegForm() {
		return StatusSuccess
	}
	seg, off := e.dec.EffectiveAddress()
	switch reg {
	case 0: // SGDT
		mustWriteMem(e, seg, off, 16, uint64(e.cpu.GDTR.Limit))
		mustWriteMem(e, seg, off+2, 64, e.cpu.GDTR.Base)
	case 1: // SIDT
		mustWriteMem(e, seg, off, 16, uint64(e.cpu.IDTR.Limit))
		mustWriteMem(e, seg, off+2, 64, e.cpu.IDTR.Base)
	case 2: // LGDT
		e.cpu.GDTR.Limit = uint16(mustReadMem(e, seg, off, 16))
		e.cpu.GDTR.Base = mustReadMem(e, seg, off+2, 64)
	case 3: // LIDT
		e.cpu.IDTR.Limit = uint16(mustReadMem(e, seg, off, 16))
		e.cpu.IDTR.Base = mustReadMem(e, seg, off+2, 64)
	case 4: // SMSW
		e.dec.WriteRM(16, e.cpu.CR0&0xFFFF)
	case 6: // LMSW
		msw := e.dec.ReadRM(16)
		e.cpu.CR0 = (e.cpu.CR0 &^ 0xF) | (msw & 0xF)
	case 7: // INVLPG
		// no TLB modeled; nothing to invalidate.
	}
	return StatusSuccess
}

// execGrp6 implements 0F 00: SLDT/STR/LLDT/LTR/VERR/VERW. VERR/VERW are
// simplified to always report "not accessible" (ZF=0): full access-
// rights byte decoding from the GDT is out of scope for this engine's
// level of descriptor-cache fidelity.
func execGrp6(e *Engine) Status {
	reg := e.dec.regField() & 7
	switch reg {
	case 0: // SLDT
		e.dec.WriteRM(16, uint64(e.cpu.LDTR.Selector))
	case 1: // STR
		e.dec.WriteRM(16, uint64(e.cpu.TR.Selector))
	case 2: // LLDT
		e.cpu.LDTR.Selector = uint16(e.dec.ReadRM(16))
	case 3: // LTR
		e.cpu.TR.Selector = uint16(e.dec.ReadRM(16))
	case 4, 5: // VERR/VERW
		_ = e.dec.ReadRM(16)
		e.cpu.FlagSet(FlagZF, false)
	}
	return StatusSuccess
}

// crIndex maps a ModR/M.reg field to a control register index,
// including the REX.R extension for CR8.
func crIndex(e *Engine) byte { return e.dec.regField() }

// execMovCR implements MOV r,CRn (toGPR true) and MOV CRn,r.
func execMovCR(e *Engine, toGPR bool) Status {
	idx := crIndex(e)
	rm := e.dec.RMReg()
	if toGPR {
		e.acc.WriteReg(rm, 64, readCR(e.cpu, idx))
		return StatusSuccess
	}
	writeCR(e.cpu, idx, e.acc.ReadReg(rm, 64))
	return StatusSuccess
}

func readCR(c *CPU, idx byte) uint64 {
	switch idx {
	case 0:
		return c.CR0
	case 2:
		return c.CR2
	case 3:
		return c.CR3
	case 4:
		return c.CR4
	}
	return 0
}

func writeCR(c *CPU, idx byte, v uint64) {
	switch idx {
	case 0:
		c.CR0 = v
		c.RecomputeMode(false)
	case 2:
		c.CR2 = v
	case 3:
		c.CR3 = v
	case 4:
		c.CR4 = v
	}
}

func execMovDR(e *Engine, toGPR bool) Status {
	idx := (e.dec.regField() & 7)
	rm := e.dec.RMReg()
	if toGPR {
		e.acc.WriteReg(rm, 64, e.cpu.dr[idx&7])
		return StatusSuccess
	}
	e.cpu.dr[idx&7] = e.acc.ReadReg(rm, 64)
	return StatusSuccess
}

// execCpuid implements CPUID: a handful of informational leaves
// sufficient to identify this engine as a long-mode-capable,
// no-SIMD-extensions core (spec §4.I.6, x87/SIMD explicitly a Non-goal).
func execCpuid(e *Engine) Status {
	leaf := uint32(e.acc.ReadReg(regRAX, 32))
	var eax, ebx, ecx, edx uint32
	switch leaf {
	case 0:
		eax = 1
		ebx, edx, ecx = 0x756e6547, 0x49656e69, 0x6c65746e // "GenuineIntel"
	case 1:
		eax = 0x000106A0
		edx = 1 << 5 // MSR support flag only; no x87/SSE bits set
	case 0x80000001:
		edx = 1 << 29 // long mode available
	}
	e.acc.WriteReg(regRAX, 32, uint64(eax))
	e.acc.WriteReg(regRBX, 32, uint64(ebx))
	e.acc.WriteReg(regRCX, 32, uint64(ecx))
	e.acc.WriteReg(regRDX, 32, uint64(edx))
	return StatusSuccess
}

// execWrmsr/execRdmsr implement WRMSR/RDMSR: ECX selects the MSR,
// EDX:EAX carries the 64-bit value (spec §4.I.6). RDMSR of an unknown
// MSR raises #GP; WRMSR accepts any index.
func execWrmsr(e *Engine) Status {
	idx := uint32(e.acc.ReadReg(regRCX, 32))
	v := (e.acc.ReadReg(regRDX, 32) << 32) | e.acc.ReadReg(regRAX, 32)
	e.cpu.WriteMSR(idx, v)
	return StatusSuccess
}

func execRdmsr(e *Engine) Status {
	idx := uint32(e.acc.ReadReg(regRCX, 32))
	v, ok := e.cpu.ReadMSR(idx)
	if !ok {
		panic(faultGP(0, "RDMSR of unknown MSR"))
	}
	e.acc.WriteReg(regRAX, 32, v&0xFFFFFFFF)
	e.acc.WriteReg(regRDX, 32, v>>32)
	return StatusSuccess
}

func execClts(e *Engine) Status {
	e.cpu.CR0 &^= 1 << 3 // TS
	return StatusSuccess
}

func mustReadMem(e *Engine, seg Seg, off uint64, size int) uint64 {
	v, f := e.acc.ReadMem(seg, off, size, AccessRead)
	if f != nil {
		panic(f)
	}
	return v
}

func mustWriteMem(e *Engine, seg Seg, off uint64, size int, v uint64) {
	if f := e.acc.WriteMem(seg, off, size, v, AccessWrite); f != nil {
		panic(f)
	}
}
