// debug.go - register/descriptor-table introspection (spec §6 "debug
// interface")
//
// Grounded on debug_cpu_x86.go's GetRegisters/GetRegister/SetRegister
// shape, trimmed of its breakpoint/watchpoint/Machine-Monitor wiring
// (DESIGN.md: that machinery belongs to the driver/CLI, out of scope
// here) and generalized from the teacher's fixed 32-bit register list
// to this engine's 64-bit GPR file, segments and control registers.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import "strings"

// RegisterInfo describes one architectural register for a debugger or
// introspection UI (out of scope to build here; this is the data shape
// such a collaborator would consume).
type RegisterInfo struct {
	Name     string
	BitWidth int
	Value    uint64
	Group    string
}

var gprNames = [16]string{
	"RAX", "RCX", "RDX", "RBX", "RSP", "RBP", "RSI", "RDI",
	"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15",
}

var segNames = [6]string{"ES", "CS", "SS", "DS", "FS", "GS"}

// Debug adapts an Engine for register/descriptor introspection.
type Debug struct {
	e *Engine
}

func NewDebug(e *Engine) *Debug { return &Debug{e: e} }

func (d *Debug) CPUName() string   { return "x86-64" }
func (d *Debug) AddressWidth() int { return 64 }

// GetRegisters returns the full architectural register snapshot.
func (d *Debug) GetRegisters() []RegisterInfo {
	c := d.e.cpu
	regs := make([]RegisterInfo, 0, 32)
	for i, name := range gprNames {
		regs = append(regs, RegisterInfo{Name: name, BitWidth: 64, Value: c.gpr[i], Group: "general"})
	}
	regs = append(regs, RegisterInfo{Name: "RIP", BitWidth: 64, Value: c.RIP, Group: "general"})
	regs = append(regs, RegisterInfo{Name: "RFLAGS", BitWidth: 64, Value: c.RFLAGS(), Group: "flags"})
	for i, name := range segNames {
		regs = append(regs, RegisterInfo{Name: name, BitWidth: 16, Value: uint64(c.segSel[i]), Group: "segment"})
	}
	regs = append(regs,
		RegisterInfo{Name: "CR0", BitWidth: 64, Value: c.CR0, Group: "control"},
		RegisterInfo{Name: "CR2", BitWidth: 64, Value: c.CR2, Group: "control"},
		RegisterInfo{Name: "CR3", BitWidth: 64, Value: c.CR3, Group: "control"},
		RegisterInfo{Name: "CR4", BitWidth: 64, Value: c.CR4, Group: "control"},
		RegisterInfo{Name: "EFER", BitWidth: 64, Value: c.EFER, Group: "control"},
	)
	return regs
}

func (d *Debug) GetRegister(name string) (uint64, bool) {
	c := d.e.cpu
	switch strings.ToUpper(name) {
	case "RIP":
		return c.RIP, true
	case "RFLAGS", "FLAGS":
		return c.RFLAGS(), true
	case "CR0":
		return c.CR0, true
	case "CR2":
		return c.CR2, true
	case "CR3":
		return c.CR3, true
	case "CR4":
		return c.CR4, true
	case "EFER":
		return c.EFER, true
	}
	for i, n := range gprNames {
		if strings.ToUpper(name) == n {
			return c.gpr[i], true
		}
	}
	for i, n := range segNames {
		if strings.ToUpper(name) == n {
			return uint64(c.segSel[i]), true
		}
	}
	return 0, false
}

func (d *Debug) SetRegister(name string, value uint64) bool {
	c := d.e.cpu
	switch strings.ToUpper(name) {
	case "RIP":
		c.RIP = value
		return true
	case "RFLAGS", "FLAGS":
		c.LoadRFLAGS(value)
		return true
	case "CR0":
		c.CR0 = value
		c.RecomputeMode(false)
		return true
	case "CR2":
		c.CR2 = value
		return true
	case "CR3":
		c.CR3 = value
		return true
	case "CR4":
		c.CR4 = value
		return true
	case "EFER":
		c.EFER = value
		c.RecomputeMode(false)
		return true
	}
	for i, n := range gprNames {
		if strings.ToUpper(name) == n {
			c.gpr[i] = value
			return true
		}
	}
	return false
}

// Mode/CPL/InstructionCount expose the remaining state a driver's
// status line typically wants (spec §6 "debug interface").
func (d *Debug) Mode() Mode                { return d.e.cpu.mode }
func (d *Debug) CPL() byte                 { return d.e.cpu.cpl }
func (d *Debug) InstructionCount() uint64  { return d.e.cpu.instrCount }
