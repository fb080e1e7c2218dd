// engine_scenarios_test.go - end-to-end fetch/decode/dispatch scenarios
//
// Grounded on cpu_x86_test.go's table-driven instruction tests; these
// exercise the Engine exactly as a driver would, loading a byte stream
// at linear 0 and checking the architectural state after one step.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import "testing"

// newFlatEngine builds an Engine in 32-bit protected mode with flat,
// full-range CS/DS/SS/ES descriptors - the common case scenario byte
// streams are written against (spec §8 "End-to-end scenarios").
func newFlatEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(&Config{LoadAddr: 0, Entry: 0})
	c := e.CPU()
	flat := DescriptorCache{Base: 0, Limit: 0xFFFFFFFF, Present: true, DefSize: 32}
	c.SetSegCached(SegCS, 0x08, flat)
	c.SetSegCached(SegDS, 0x10, flat)
	c.SetSegCached(SegSS, 0x10, flat)
	c.SetSegCached(SegES, 0x10, flat)
	c.CR0 |= 1
	c.RecomputeMode(false)
	return e
}

func loadAndStep(t *testing.T, e *Engine, code []byte) {
	t.Helper()
	if err := e.LoadProgramData(code); err != nil {
		t.Fatalf("LoadProgramData: %v", err)
	}
	if st := e.ExecuteNext(); st != StatusSuccess && st != StatusContinue {
		t.Fatalf("ExecuteNext: unexpected status %v", st)
	}
}

func TestScenario_XORClearsAndSetsFlags(t *testing.T) {
	e := newFlatEngine(t)
	loadAndStep(t, e, []byte{0x31, 0xC0}) // XOR EAX, EAX

	c := e.CPU()
	if v := e.Accessor().ReadReg(regRAX, 32); v != 0 {
		t.Errorf("EAX = 0x%x, want 0", v)
	}
	if !c.FlagGet(FlagZF) {
		t.Error("ZF not set")
	}
	if c.FlagGet(FlagSF) || c.FlagGet(FlagCF) || c.FlagGet(FlagOF) {
		t.Error("SF/CF/OF should be clear")
	}
	if !c.FlagGet(FlagPF) {
		t.Error("PF should be set (zero has even parity)")
	}
}

func TestScenario_AddOverflow(t *testing.T) {
	e := newFlatEngine(t)
	e.Accessor().WriteReg(regRAX, 32, 0x7FFFFFFF)
	loadAndStep(t, e, []byte{0x83, 0xC0, 0x01}) // ADD EAX, 1

	c := e.CPU()
	if v := e.Accessor().ReadReg(regRAX, 32); v != 0x80000000 {
		t.Errorf("EAX = 0x%x, want 0x80000000", v)
	}
	if c.FlagGet(FlagZF) || c.FlagGet(FlagCF) {
		t.Error("ZF/CF should be clear")
	}
	if !c.FlagGet(FlagSF) || !c.FlagGet(FlagOF) {
		t.Error("SF/OF should be set")
	}
}

func TestScenario_SubProducesCarry(t *testing.T) {
	e := newFlatEngine(t)
	e.Accessor().WriteReg(regRAX, 32, 0)
	e.Accessor().WriteReg(regRBX, 32, 1)
	loadAndStep(t, e, []byte{0x29, 0xD8}) // SUB EAX, EBX

	c := e.CPU()
	if v := e.Accessor().ReadReg(regRAX, 32); v != 0xFFFFFFFF {
		t.Errorf("EAX = 0x%x, want 0xFFFFFFFF", v)
	}
	if !c.FlagGet(FlagCF) || !c.FlagGet(FlagSF) {
		t.Error("CF/SF should be set")
	}
	if c.FlagGet(FlagOF) || c.FlagGet(FlagZF) {
		t.Error("OF/ZF should be clear")
	}
}

func TestScenario_PushPopRoundTrip(t *testing.T) {
	e := newFlatEngine(t)
	e.Accessor().WriteReg(regRSP, 64, 0x1000)
	// PUSH imm32 0xDEADBEEF; POP EAX
	loadAndStep(t, e, []byte{0x68, 0xEF, 0xBE, 0xAD, 0xDE, 0x58})
	if st := e.ExecuteNext(); st != StatusSuccess {
		t.Fatalf("second ExecuteNext: %v", st)
	}

	if v := e.Accessor().ReadReg(regRAX, 32); v != 0xDEADBEEF {
		t.Errorf("EAX = 0x%x, want 0xDEADBEEF", v)
	}
	if sp := e.Accessor().ReadReg(regRSP, 64); sp != 0x1000 {
		t.Errorf("RSP = 0x%x, want 0x1000", sp)
	}
}

func TestScenario_RexWMovsxdSignExtends(t *testing.T) {
	e := NewEngine(&Config{LoadAddr: 0, Entry: 0})
	c := e.CPU()
	c.EFER |= 1 << 10 // LMA
	c.CR0 |= 1        // PE
	c.RecomputeMode(true)

	e.Accessor().WriteReg(regRBX, 32, 0x80000000)
	// REX.W MOVSXD RAX, EBX
	loadAndStep(t, e, []byte{0x48, 0x63, 0xC3})

	if v := e.Accessor().ReadReg(regRAX, 64); v != 0xFFFFFFFF80000000 {
		t.Errorf("RAX = 0x%x, want 0xFFFFFFFF80000000", v)
	}
}

// TestScenario_Grp1ImmMemoryDisplacementDoesNotDoubleFetch guards
// against resolving a memory operand's displacement twice: the first
// resolve (the read) must not re-consume the trailing immediate as a
// second displacement on the write-back.
func TestScenario_Grp1ImmMemoryDisplacementDoesNotDoubleFetch(t *testing.T) {
	e := newFlatEngine(t)
	e.Accessor().WriteReg(regRBX, 32, 0x2000)
	e.Bus().WritePhysical(0x2010, 32, 0x10)
	// 83 43 10 05 = ADD dword [EBX+0x10], 0x05
	loadAndStep(t, e, []byte{0x83, 0x43, 0x10, 0x05})

	if v := e.Bus().ReadPhysical(0x2010, 32); v != 0x15 {
		t.Errorf("[EBX+0x10] = 0x%x, want 0x15", v)
	}
	if e.CPU().RIP != 4 {
		t.Errorf("RIP = %d, want 4 (instruction length, not over-advanced)", e.CPU().RIP)
	}
}

func TestScenario_SyscallPath(t *testing.T) {
	e := NewEngine(&Config{LoadAddr: 0, Entry: 0})
	c := e.CPU()
	c.LSTAR = 0x00400000
	c.STAR = 0x10 << 32

	loadAndStep(t, e, []byte{0x0F, 0x05})

	if c.gpr[regRCX] != 2 {
		t.Errorf("RCX = %d, want 2 (RIP of next instruction)", c.gpr[regRCX])
	}
	if c.RIP != 0x00400000 {
		t.Errorf("RIP = 0x%x, want 0x00400000", c.RIP)
	}
	if c.SegSelector(SegCS) != 0x10 {
		t.Errorf("CS = 0x%x, want 0x10", c.SegSelector(SegCS))
	}
	if c.CPL() != 0 {
		t.Errorf("CPL = %d, want 0", c.CPL())
	}
}
