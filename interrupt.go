// interrupt.go - Interrupt Engine: PIC/LAPIC priority poll, IDT walk,
// fault/software/external interrupt delivery, IRET (spec §4.K)
//
// Grounded on cpu_x86.go's handleInterrupt/SetIRQ and its
// irqPending/irqVector atomics (external-IRQ signalling carried
// straight over); the IDT gate walk and stack-frame push sequence are
// new, since the source has no protected-mode interrupt model at all.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

// InterruptSource is anything that can assert a vectored interrupt
// line: devices.go's PIC and LAPICWindow both satisfy it.
type InterruptSource interface {
	Enabled() bool
	PendingVector() (byte, bool)
	Ack()
}

// InterruptController is the Interrupt Engine (component K): it polls
// attached sources for a pending vector and, when IF is set and the
// CPU is not in the one-instruction shadow after STI/MOV SS, delivers
// it through the IDT exactly like a CPU-raised fault.
type InterruptController struct {
	cpu     *CPU
	acc     *Accessor
	sources []InterruptSource
}

func NewInterruptController(cpu *CPU, acc *Accessor) *InterruptController {
	return &InterruptController{cpu: cpu, acc: acc}
}

func (ic *InterruptController) AddSource(s InterruptSource) {
	ic.sources = append(ic.sources, s)
}

// PollExternal returns the next deliverable external vector, honoring
// IF and the interrupt shadow (spec §4.K "external interrupt gating").
func (ic *InterruptController) PollExternal() (byte, InterruptSource, bool) {
	if ic.cpu.shadow {
		return 0, nil, false
	}
	if !ic.cpu.FlagGet(FlagIF) {
		return 0, nil, false
	}
	if ic.cpu.irqPending.Load() {
		v := byte(ic.cpu.irqVector.Load())
		ic.cpu.irqPending.Store(false)
		return v, nil, true
	}
	for _, s := range ic.sources {
		if s.Enabled() {
			if v, ok := s.PendingVector(); ok {
				return v, s, true
			}
		}
	}
	return 0, nil, false
}

// idtGate is the decoded subset of an IDT gate descriptor this engine
// needs: target selector:offset and whether the gate is present.
type idtGate struct {
	Selector uint16
	Offset   uint64
	Present  bool
}

// readIDTGate walks IDTR to fetch the gate for `vector`. Long mode uses
// 16-byte gates, real/protected mode 8-byte gates (spec §4.K).
func (ic *InterruptController) readIDTGate(vector byte) idtGate {
	entrySize := uint64(8)
	if ic.cpu.mode == ModeLong {
		entrySize = 16
	}
	base := ic.cpu.IDTR.Base + uint64(vector)*entrySize

	lo := mustReadPhys(ic.acc, base, 16)
	sel := mustReadPhys(ic.acc, base+2, 16)
	attr := mustReadPhys(ic.acc, base+5, 8)
	mid := mustReadPhys(ic.acc, base+6, 16)

	offset := lo | mid<<16
	if entrySize == 16 {
		hi := mustReadPhys(ic.acc, base+8, 32)
		offset |= hi << 32
	}
	return idtGate{Selector: uint16(sel), Offset: offset, Present: attr&0x80 != 0}
}

func mustReadPhys(acc *Accessor, addr uint64, size int) uint64 {
	return acc.ReadPhysical(addr, size)
}

// Deliver pushes the interrupt/fault frame and transfers control to the
// IDT-resolved handler (spec §4.K "Interrupt return"/"Fault delivery").
// Real mode has no IDT gates in the protected-mode sense; it uses the
// classic real-mode IVT (4-byte seg:offset entries at IDTR.Base, which
// Reset leaves at 0 unless firmware has pointed it elsewhere).
func (ic *InterruptController) Deliver(e *Engine, vector Vector, errorCode uint32, hasCode bool, linear uint64, hasLinear bool) {
	c := ic.cpu
	if hasLinear {
		c.CR2 = linear
	}

	var targetCS uint16
	var targetRIP uint64

	if c.mode == ModeReal {
		base := c.IDTR.Base + uint64(vector)*4
		offset := mustReadPhys(e.acc, base, 16)
		sel := mustReadPhys(e.acc, base+2, 16)
		targetRIP, targetCS = offset, uint16(sel)
	} else {
		gate := ic.readIDTGate(byte(vector))
		targetRIP, targetCS = gate.Offset, gate.Selector
	}

	pushSize := stackOperandSize(e)
	mustPush(e, c.RFLAGS(), pushSize)
	mustPush(e, uint64(c.SegSelector(SegCS)), pushSize)
	mustPush(e, c.RIP, pushSize)
	if hasCode {
		mustPush(e, uint64(errorCode), pushSize)
	}

	c.FlagSet(FlagIF, false)
	c.FlagSet(FlagTF, false)
	c.shadow = false

	if c.mode == ModeReal {
		c.SetSegReal(SegCS, targetCS)
	} else {
		c.SetSegCached(SegCS, targetCS, flatCodeSeg(0))
	}
	c.RIP = targetRIP
}

func mustPush(e *Engine, v uint64, size int) {
	if f := e.acc.Push(v, size); f != nil {
		panic(f)
	}
}

// raiseSoftwareInterrupt implements INT3/INT n (spec §4.I.6): these
// always deliver through the IDT, bypassing IF entirely.
func (e *Engine) raiseSoftwareInterrupt(vector byte, hasCode bool) {
	e.intr.Deliver(e, Vector(vector), 0, hasCode, 0, false)
}

// deliverFault routes a *Fault raised anywhere in decode/execute
// through the same IDT delivery path (spec §9: "typed Fault result,
// not a thrown exception", consumed at exactly one point: here).
func (e *Engine) deliverFault(f *Fault) {
	e.intr.Deliver(e, f.Vec, f.ErrorCode, f.HasCode, f.Linear, f.HasLinear)
}
