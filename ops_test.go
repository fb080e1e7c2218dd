// ops_test.go - instruction-handler tests exercised through the Engine
// (control flow, string iteration, divide fault delivery, shift count
// edge cases) that aren't already covered by the named end-to-end
// scenarios in engine_scenarios_test.go.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import "testing"

func TestJccTakenAndNotTaken(t *testing.T) {
	e := newFlatEngine(t)
	e.CPU().FlagSet(FlagZF, true)
	// JZ +5 (0x74 0x05), then a filler NOP if not taken.
	if err := e.LoadProgramData([]byte{0x74, 0x05, 0x90}); err != nil {
		t.Fatalf("LoadProgramData: %v", err)
	}
	e.ExecuteNext()
	if e.CPU().RIP != 7 { // 2 (insn length) + 5 (disp)
		t.Errorf("RIP = %d, want 7 (branch taken)", e.CPU().RIP)
	}

	e2 := newFlatEngine(t)
	e2.CPU().FlagSet(FlagZF, false)
	if err := e2.LoadProgramData([]byte{0x74, 0x05, 0x90}); err != nil {
		t.Fatalf("LoadProgramData: %v", err)
	}
	e2.ExecuteNext()
	if e2.CPU().RIP != 2 {
		t.Errorf("RIP = %d, want 2 (branch not taken)", e2.CPU().RIP)
	}
}

func TestRepMovsbCopiesAndDrainsCounter(t *testing.T) {
	e := newFlatEngine(t)
	const src, dst = 0x2000, 0x3000
	payload := []byte{0xAA, 0xBB, 0xCC}
	for i, b := range payload {
		e.Bus().WritePhysical(src+uint64(i), 8, uint64(b))
	}
	e.Accessor().WriteReg(regRSI, 32, src)
	e.Accessor().WriteReg(regRDI, 32, dst)
	e.Accessor().WriteReg(regRCX, 32, uint64(len(payload)))

	// F3 A4 = REP MOVSB
	if err := e.LoadProgramData([]byte{0xF3, 0xA4}); err != nil {
		t.Fatalf("LoadProgramData: %v", err)
	}
	e.ExecuteNext()

	for i, want := range payload {
		if got := byte(e.Bus().ReadPhysical(dst+uint64(i), 8)); got != want {
			t.Errorf("byte %d = 0x%x, want 0x%x", i, got, want)
		}
	}
	if cx := e.Accessor().ReadReg(regRCX, 32); cx != 0 {
		t.Errorf("RCX = %d, want 0 (counter drained)", cx)
	}
	if si := e.Accessor().ReadReg(regRSI, 32); si != src+uint64(len(payload)) {
		t.Errorf("RSI = 0x%x, want 0x%x", si, src+uint64(len(payload)))
	}
}

func TestDivideByZeroDeliversFaultWithoutPanicking(t *testing.T) {
	e := newFlatEngine(t)
	e.Accessor().WriteReg(regRAX, 32, 10)
	e.Accessor().WriteReg(regRDX, 32, 0)
	e.Accessor().WriteReg(regRBX, 32, 0) // divisor
	e.Accessor().WriteReg(regRSP, 32, 0x4000)

	// F7 F3 = DIV EBX (Grp3 /6 on EBX)
	if err := e.LoadProgramData([]byte{0xF7, 0xF3}); err != nil {
		t.Fatalf("LoadProgramData: %v", err)
	}
	st := e.ExecuteNext()
	if st != StatusContinue {
		t.Errorf("status = %v, want StatusContinue (fault routed through the Interrupt Engine)", st)
	}
	// #DE commits no change: RAX/RDX must be untouched, and the frame
	// Deliver pushed onto the stack must carry the faulting instruction's
	// own RIP (0), not wherever decode had advanced to (2).
	if ax := e.Accessor().ReadReg(regRAX, 32); ax != 10 {
		t.Errorf("EAX = %d, want unchanged 10 (DIV fault must not commit a quotient)", ax)
	}
	poppedRIP, f := e.Accessor().Pop(32)
	if f != nil {
		t.Fatalf("unexpected fault popping pushed RIP: %v", f)
	}
	if poppedRIP != 0 {
		t.Errorf("pushed RIP = %d, want 0 (faulting instruction's start, not past it)", poppedRIP)
	}
}

// TestArithMemoryFaultLeavesFlagsUncommitted builds a page that is
// readable but not writable at CPL 3 (so the read half of the Group-1
// handler succeeds and only the write-back faults), and checks that
// the fault leaves flags exactly as they were before the instruction
// ran - the write-back must commit before UpdateFlags, not after.
func TestArithMemoryFaultLeavesFlagsUncommitted(t *testing.T) {
	e := NewEngine(&Config{LoadAddr: 0, Entry: 0})
	c := e.CPU()
	flat := DescriptorCache{Base: 0, Limit: 0xFFFFFFFF, Present: true, DefSize: 32}
	c.SetSegCached(SegCS, 0x08, flat)
	c.SetSegCached(SegDS, 0x10, flat)
	c.SetSegCached(SegSS, 0x10, flat)
	c.CR0 |= 1
	c.RecomputeMode(false)
	c.cpl = 3

	const pdBase, ptBase = 0x5000, 0x6000
	c.CR3 = pdBase
	e.Bus().WritePhysical(pdBase, 32, uint64(ptBase|ptPresent|ptWrite|ptUser))
	// Page 0 (instruction bytes + operand, linear 0x000-0xFFF) is
	// identity-mapped read-only; page 2 (linear 0x2000-0x2FFF, used for
	// the stack so the fault frame itself can still be pushed) is
	// writable. Only the ADD's write-back should fault.
	e.Bus().WritePhysical(ptBase+0*4, 32, uint64(0|ptPresent|ptUser))
	e.Bus().WritePhysical(ptBase+2*4, 32, uint64(0x7000|ptPresent|ptWrite|ptUser))
	c.CR0 |= 1 << 31

	e.Accessor().WriteReg(regRBX, 32, 0x100)
	e.Accessor().WriteReg(regRSP, 32, 0x2800)
	c.FlagSet(FlagZF, true)

	// 83 03 05 = ADD dword [EBX], 0x05
	if err := e.LoadProgramData([]byte{0x83, 0x03, 0x05}); err != nil {
		t.Fatalf("LoadProgramData: %v", err)
	}
	if st := e.ExecuteNext(); st != StatusContinue {
		t.Fatalf("status = %v, want StatusContinue (write to read-only page faults)", st)
	}
	if !c.FlagGet(FlagZF) {
		t.Error("ZF should be unchanged: the faulting write-back must not have committed flags")
	}
}

func TestCallRetRoundTrip(t *testing.T) {
	e := newFlatEngine(t)
	e.Accessor().WriteReg(regRSP, 32, 0x4000)
	// CALL +0 (E8 00000000) then, at the target, RET (C3).
	if err := e.LoadProgramData([]byte{0xE8, 0x00, 0x00, 0x00, 0x00, 0xC3}); err != nil {
		t.Fatalf("LoadProgramData: %v", err)
	}
	e.ExecuteNext() // CALL: pushes return address 5, jumps to 5
	if e.CPU().RIP != 5 {
		t.Fatalf("RIP after CALL = %d, want 5", e.CPU().RIP)
	}
	e.ExecuteNext() // RET at address 5
	if e.CPU().RIP != 5 {
		t.Errorf("RIP after RET = %d, want 5 (return address pushed by CALL)", e.CPU().RIP)
	}
	if sp := e.Accessor().ReadReg(regRSP, 32); sp != 0x4000 {
		t.Errorf("RSP = 0x%x, want 0x4000 (stack balanced)", sp)
	}
}

func TestShiftByCLZeroLeavesFlagsUnchanged(t *testing.T) {
	e := newFlatEngine(t)
	e.CPU().FlagSet(FlagCF, true)
	e.CPU().FlagSet(FlagZF, true)
	e.Accessor().WriteReg(regRAX, 32, 0x1)
	e.Accessor().WriteReg(regRCX, 8, 0) // CL = 0

	// D3 E0 = SHL EAX, CL
	if err := e.LoadProgramData([]byte{0xD3, 0xE0}); err != nil {
		t.Fatalf("LoadProgramData: %v", err)
	}
	e.ExecuteNext()

	if !e.CPU().FlagGet(FlagCF) || !e.CPU().FlagGet(FlagZF) {
		t.Error("SHL by CL==0 must not modify flags")
	}
	if v := e.Accessor().ReadReg(regRAX, 32); v != 0x1 {
		t.Errorf("EAX = 0x%x, want unchanged 0x1", v)
	}
}
