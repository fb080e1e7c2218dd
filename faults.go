// faults.go - typed fault/status model
//
// Replaces the "exception-driven fault propagation" the source used
// with a typed result per spec §9's design note: handlers and the
// Memory Accessor return a *Fault instead of throwing, and the Main
// Loop (engine.go) matches on it to route into the Interrupt Engine.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import "fmt"

// Vector names the well-known x86 exception vectors the engine raises.
type Vector byte

const (
	VecDE Vector = 0  // divide error
	VecDB Vector = 1  // debug
	VecUD Vector = 6  // invalid opcode
	VecNP Vector = 11 // segment not present
	VecSS Vector = 12 // stack-segment fault
	VecGP Vector = 13 // general protection
	VecPF Vector = 14 // page fault
)

// Fault is a typed CPU exception. It implements error so it can be
// returned and wrapped with fmt.Errorf like any other Go error
// (grounded on cpu_x86_runner.go's fmt.Errorf("...: %w") wrapping),
// while still carrying the vector/error-code/linear-address triple the
// Interrupt Engine needs to dispatch it.
type Fault struct {
	Vec       Vector
	ErrorCode uint32
	HasCode   bool
	Linear    uint64
	HasLinear bool
	Reason    string
}

func (f *Fault) Error() string {
	if f.HasCode {
		return fmt.Sprintf("x86: fault vector %d (code 0x%x): %s", f.Vec, f.ErrorCode, f.Reason)
	}
	return fmt.Sprintf("x86: fault vector %d: %s", f.Vec, f.Reason)
}

func faultGP(selectorOrCode uint32, reason string) *Fault {
	return &Fault{Vec: VecGP, ErrorCode: selectorOrCode, HasCode: true, Reason: reason}
}

func faultSS(code uint32, reason string) *Fault {
	return &Fault{Vec: VecSS, ErrorCode: code, HasCode: true, Reason: reason}
}

func faultNP(selector uint32, reason string) *Fault {
	return &Fault{Vec: VecNP, ErrorCode: selector, HasCode: true, Reason: reason}
}

func faultPF(linear uint64, code uint32, reason string) *Fault {
	return &Fault{Vec: VecPF, ErrorCode: code, HasCode: true, Linear: linear, HasLinear: true, Reason: reason}
}

func faultUD(reason string) *Fault {
	return &Fault{Vec: VecUD, Reason: reason}
}

func faultDE(reason string) *Fault {
	return &Fault{Vec: VecDE, Reason: reason}
}

// PF error-code bit positions (spec §4.D step 2).
const (
	pfPresent  = 1 << 0
	pfWrite    = 1 << 1
	pfUser     = 1 << 2
	pfReserved = 1 << 3
	pfFetch    = 1 << 4
)

// Status is the per-instruction result the Main Loop reacts to (spec §2/§6).
type Status int

const (
	StatusSuccess Status = iota
	StatusContinue
	StatusExit
	StatusHalt
)

// RunawayError is the "255 consecutive zero opcodes" fatal condition
// (spec §4.G/§7) - distinct from a Fault because it is never dispatched
// through the IDT, only surfaced to the driver.
type RunawayError struct{}

func (RunawayError) Error() string { return "x86: runaway execution (255 consecutive zero opcodes)" }
