// state.go - CPU register file, flags, descriptor tables, mode state
//
// Grounded on cpu_x86.go's AX()/SetAX()/getReg8/16/32 accessor pattern
// and its running/irqPending/irqVector atomics, generalized from 32-bit
// flat registers to the full 64-bit GPR file with segmentation, paging
// control registers and a real/protected/long mode tri-state.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import "sync/atomic"

// Mode is the CPU's tri-state execution mode (spec §3 "CPU mode").
type Mode int

const (
	ModeReal Mode = iota
	ModeProtected
	ModeLong
)

// Seg indexes the six segment registers.
type Seg int

const (
	SegES Seg = iota
	SegCS
	SegSS
	SegDS
	SegFS
	SegGS
)

// Flag bit positions, matching the RFLAGS layout in spec §6.
const (
	FlagCF   = 1 << 0
	flagRsvd = 1 << 1 // always 1 on serialise, ignored on load
	FlagPF   = 1 << 2
	FlagAF   = 1 << 4
	FlagZF   = 1 << 6
	FlagSF   = 1 << 7
	FlagTF   = 1 << 8
	FlagIF   = 1 << 9
	FlagDF   = 1 << 10
	FlagOF   = 1 << 11
	FlagIOPL = 3 << 12
	FlagNT   = 1 << 14
	FlagRF   = 1 << 16
	FlagVM   = 1 << 17
	FlagAC   = 1 << 18
	FlagVIF  = 1 << 19
	FlagVIP  = 1 << 20
	FlagID   = 1 << 21
)

// DescriptorCache is the per-selector cached descriptor consulted for
// every address formation once a selector has been loaded (spec §3
// "Register file" invariant).
type DescriptorCache struct {
	Base       uint64
	Limit      uint64
	Present    bool
	Executable bool
	Type       byte
	DPL        byte
	DefSize    int // 16, 32, or 64
}

// TableReg is a {base, limit} descriptor-table register (GDTR/IDTR).
type TableReg struct {
	Base  uint64
	Limit uint16
}

// SelTableReg is a {selector, base, limit} register (LDTR/TR).
type SelTableReg struct {
	Selector uint16
	Base     uint64
	Limit    uint32
}

// prefixState is cleared at the start of every instruction and
// committed/discarded atomically with it (spec §3 "Prefix state").
type prefixState struct {
	opSize    bool
	addrSize  bool
	segOver   int // -1 = none, else Seg
	rex       byte
	rexPresent bool
	lock      bool
	repKind   int // 0 none, 1 REP/REPE, 2 REPNE
}

func (p *prefixState) reset() {
	*p = prefixState{segOver: -1}
}

// CPU holds the full architectural state the engine exposes: general
// registers, segment/descriptor caches, control registers, MSRs, mode,
// and the per-instruction prefix scratch state.
type CPU struct {
	// 16 general-purpose 64-bit slots, RAX..R15.
	gpr [16]uint64

	RIP uint64

	segSel   [6]uint16
	segCache [6]DescriptorCache

	GDTR TableReg
	IDTR TableReg
	LDTR SelTableReg
	TR   SelTableReg

	CR0, CR2, CR3, CR4 uint64
	EFER               uint64

	// MSRs needed for SYSCALL/SYSRET (spec §4.I.6 contract) plus a
	// small general map for RDMSR/WRMSR of anything else firmware pokes.
	STAR, LSTAR, CSTAR, FMASK uint64
	msr                       map[uint32]uint64

	XMM   [16][2]uint64
	MXCSR uint32

	dr [8]uint64

	flags uint64

	mode        Mode
	compat      bool // long-mode compatibility sub-mode
	cpl         byte
	a20Enabled  bool

	halted  bool
	running atomic.Bool

	irqPending atomic.Bool
	irqVector  atomic.Uint32

	prefix   prefixState
	shadow   bool // interrupt-shadow: one instruction after STI/MOV SS
	instrCount uint64
}

const (
	regRAX = iota
	regRCX
	regRDX
	regRBX
	regRSP
	regRBP
	regRSI
	regRDI
	regR8
	regR9
	regR10
	regR11
	regR12
	regR13
	regR14
	regR15
)

// NewCPU creates a CPU reset to its power-on state.
func NewCPU() *CPU {
	c := &CPU{msr: make(map[uint32]uint64)}
	c.Reset()
	return c
}

// Reset restores power-on architectural state: real mode, flat real
// segments, IF set, RIP at 0.
func (c *CPU) Reset() {
	for i := range c.gpr {
		c.gpr[i] = 0
	}
	c.RIP = 0
	c.CR0, c.CR2, c.CR3, c.CR4 = 0, 0, 0, 0
	c.EFER = 0
	c.mode = ModeReal
	c.compat = false
	c.cpl = 0
	c.a20Enabled = false
	c.flags = FlagIF

	for s := SegES; s <= SegGS; s++ {
		c.SetSegReal(s, 0)
	}

	c.GDTR = TableReg{}
	c.IDTR = TableReg{}
	c.LDTR = SelTableReg{}
	c.TR = SelTableReg{}

	c.prefix.reset()
	c.halted = false
	c.running.Store(true)
	c.irqPending.Store(false)
	c.irqVector.Store(0)
	c.shadow = false
	c.instrCount = 0
}

func (c *CPU) Running() bool      { return c.running.Load() }
func (c *CPU) SetRunning(v bool)  { c.running.Store(v) }
func (c *CPU) Halted() bool       { return c.halted }
func (c *CPU) Mode() Mode         { return c.mode }
func (c *CPU) CPL() byte          { return c.cpl }

// -----------------------------------------------------------------------
// GPR access by size, generalizing cpu_x86.go's AX()/AL()/SetAX() etc.
// into size-keyed functions rather than one duplicated accessor triple
// per register, per spec §9's trait/mixin-reuse design note.
// -----------------------------------------------------------------------

// RegRead returns the low `size` bits (8/16/32/64) of GPR idx (0-15).
// For size==8 and idx in 4..7 with no REX byte present, the legacy
// AH/CH/DH/BH high-byte encoding applies; callers pass hasRex to select.
func (c *CPU) RegRead(idx byte, size int, hasRex bool) uint64 {
	if size == 8 && !hasRex && idx >= 4 && idx <= 7 {
		return (c.gpr[idx-4] >> 8) & 0xFF
	}
	v := c.gpr[idx&15]
	switch size {
	case 8:
		return v & 0xFF
	case 16:
		return v & 0xFFFF
	case 32:
		return v & 0xFFFFFFFF
	case 64:
		return v
	}
	panic("x86: bad register size")
}

// RegWrite writes the low `size` bits of GPR idx. A 32-bit write always
// zero-extends to the full 64-bit register (testable property 7); 8/16
// bit writes leave the upper bits untouched.
func (c *CPU) RegWrite(idx byte, size int, hasRex bool, value uint64) {
	if size == 8 && !hasRex && idx >= 4 && idx <= 7 {
		r := idx - 4
		c.gpr[r] = (c.gpr[r] &^ 0xFF00) | ((value & 0xFF) << 8)
		return
	}
	i := idx & 15
	switch size {
	case 8:
		c.gpr[i] = (c.gpr[i] &^ 0xFF) | (value & 0xFF)
	case 16:
		c.gpr[i] = (c.gpr[i] &^ 0xFFFF) | (value & 0xFFFF)
	case 32:
		c.gpr[i] = value & 0xFFFFFFFF
	case 64:
		c.gpr[i] = value
	default:
		panic("x86: bad register size")
	}
}

// -----------------------------------------------------------------------
// Segment registers and descriptor cache lifecycle (spec §3)
// -----------------------------------------------------------------------

func (c *CPU) SegSelector(s Seg) uint16 { return c.segSel[s] }

func (c *CPU) SegCache(s Seg) DescriptorCache { return c.segCache[s] }

// SetSegReal loads a selector in real mode: the descriptor cache is
// synthesised as {base = selector<<4, limit = 0xFFFF, default=16}.
func (c *CPU) SetSegReal(s Seg, selector uint16) {
	c.segSel[s] = selector
	c.segCache[s] = DescriptorCache{
		Base:    uint64(selector) << 4,
		Limit:   0xFFFF,
		Present: true,
		DefSize: 16,
	}
}

// SetSegCached loads a selector together with an already-resolved
// descriptor (protected/long mode). Writing a segment selector always
// refreshes its cache and invalidates any TLB-like translation state
// downstream (spec §3 invariant); callers in address.go re-walk from
// scratch on every access rather than caching translations, so there
// is nothing further to invalidate here.
func (c *CPU) SetSegCached(s Seg, selector uint16, desc DescriptorCache) {
	c.segSel[s] = selector
	c.segCache[s] = desc
}

// InvalidateSegments clears descriptor caches on a mode transition that
// renders them meaningless (e.g. leaving protected mode).
func (c *CPU) InvalidateSegments() {
	for s := SegES; s <= SegGS; s++ {
		c.segCache[s] = DescriptorCache{}
	}
}

// -----------------------------------------------------------------------
// Flags
// -----------------------------------------------------------------------

func (c *CPU) Flags() uint64 { return c.flags }

func (c *CPU) FlagSet(mask uint64, v bool) {
	if v {
		c.flags |= mask
	} else {
		c.flags &^= mask
	}
}

func (c *CPU) FlagGet(mask uint64) bool { return c.flags&mask != 0 }

// RFLAGS returns the architectural register image: bit 1 forced to 1,
// reserved bits zeroed (spec §3/§6).
func (c *CPU) RFLAGS() uint64 {
	const reserved = uint64(0xFFC0_0000_0000_0000) | (1 << 3) | (1 << 5) | (1 << 15) |
		0xFFFF_FFFF_FFC0_0000
	return (c.flags &^ reserved) | flagRsvd
}

// LoadRFLAGS loads flags from an RFLAGS image (POPF/IRET). Reserved
// bits are ignored. IF may only change when CPL<=IOPL, and IOPL itself
// may only change at CPL 0 (spec §3); real mode has no privilege levels
// so both are always writable there.
func (c *CPU) LoadRFLAGS(v uint64) {
	const writable = FlagCF | FlagPF | FlagAF | FlagZF | FlagSF | FlagTF |
		FlagDF | FlagOF | FlagNT | FlagRF | FlagVM |
		FlagAC | FlagVIF | FlagVIP | FlagID
	next := v & writable

	curIOPL := byte((c.flags & FlagIOPL) >> 12)
	if c.mode == ModeReal || c.cpl <= curIOPL {
		next |= v & FlagIF
	} else {
		next |= c.flags & FlagIF
	}

	if c.mode == ModeReal || c.cpl == 0 {
		next |= v & FlagIOPL
	} else {
		next |= c.flags & FlagIOPL
	}

	c.flags = next
}

// -----------------------------------------------------------------------
// Mode transitions (spec §3 invariant: long => protected, compat => long)
// -----------------------------------------------------------------------

// RecomputeMode derives the CPU mode from CR0.PE, EFER.LMA and CS.L,
// called after any write to CR0, EFER, or CS.
func (c *CPU) RecomputeMode(csLong bool) {
	pe := c.CR0&1 != 0
	lma := c.EFER&(1<<10) != 0
	switch {
	case pe && lma:
		c.mode = ModeLong
		c.compat = !csLong
	case pe:
		c.mode = ModeProtected
		c.compat = false
	default:
		if c.mode != ModeReal {
			c.InvalidateSegments()
		}
		c.mode = ModeReal
		c.compat = false
	}
}

func (c *CPU) CompatibilityMode() bool { return c.mode == ModeLong && c.compat }

// StackAddressSize returns 64 in long mode, else the stack segment's
// cached default operand size (spec §3 "Stack" invariant).
func (c *CPU) StackAddressSize() int {
	if c.mode == ModeLong {
		return 64
	}
	return c.segCache[SegSS].DefSize
}

// -----------------------------------------------------------------------
// MSRs
// -----------------------------------------------------------------------

const (
	msrSTAR  = 0xC0000081
	msrLSTAR = 0xC0000082
	msrCSTAR = 0xC0000083
	msrFMASK = 0xC0000084
	msrEFER  = 0xC0000080
)

// ReadMSR implements spec §6's read_msr(index) external interface.
func (c *CPU) ReadMSR(index uint32) (uint64, bool) {
	switch index {
	case msrSTAR:
		return c.STAR, true
	case msrLSTAR:
		return c.LSTAR, true
	case msrCSTAR:
		return c.CSTAR, true
	case msrFMASK:
		return c.FMASK, true
	case msrEFER:
		return c.EFER, true
	}
	v, ok := c.msr[index]
	return v, ok
}

// WriteMSR implements spec §6's write_msr(index) external interface.
func (c *CPU) WriteMSR(index uint32, value uint64) {
	switch index {
	case msrSTAR:
		c.STAR = value
	case msrLSTAR:
		c.LSTAR = value
	case msrCSTAR:
		c.CSTAR = value
	case msrFMASK:
		c.FMASK = value
	case msrEFER:
		c.EFER = value
		c.RecomputeMode(false)
	default:
		if c.msr == nil {
			c.msr = make(map[uint32]uint64)
		}
		c.msr[index] = value
	}
}
