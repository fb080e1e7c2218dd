// engine.go - Runtime/Main Loop (spec §4.B "Main loop"/§6 "External interface")
//
// Grounded on cpu_x86_runner.go's CPUX86Runner/X86BusAdapter shape:
// NewCPUX86Runner -> NewEngine, LoadProgramData/LoadProgram (fmt.Errorf
// wrapping kept verbatim), Run/Step/Reset/Execute, the perf-counter
// fields, and the execMu/execDone/execActive goroutine-driven
// StartExecution/Stop pair for running the CPU off the caller's
// goroutine (spec §4.B "must be safely startable/stoppable from another
// goroutine").
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x86

import (
	"fmt"
	"os"
	"sync"
	"time"
)

const defaultLoadAddr = 0x00000000

// Config mirrors cpu_x86_runner.go's CPUX86Config: load address, entry
// point, and the devices wired onto the bus before Run starts (spec §6
// "register_mmio"/"register_observer" external interface, pre-bound
// here for the common case of a fixed device set known at construction).
type Config struct {
	LoadAddr uint32
	Entry    uint64

	MMIODevices []ConfigMMIODevice
	Sources     []InterruptSource
}

type ConfigMMIODevice struct {
	Name     string
	Low, High uint64
	Device   MMIODevice
}

// Engine is the Main Loop: it owns the CPU State (C),
// the Memory Store + MMIO Router (A/B) via Bus, the Memory Accessor
// (E), the Decoder (G), the Instruction Table (F) and the Interrupt
// Engine (K), and drives fetch/decode/dispatch to completion or fault.
type Engine struct {
	cpu   *CPU
	bus   *Bus
	acc   *Accessor
	dec   *Decoder
	table *Table
	intr  *InterruptController

	loadAddr uint32
	entry    uint64

	PerfEnabled      bool
	InstructionCount uint64
	perfStartTime    time.Time
	lastPerfReport   time.Time

	execMu     sync.Mutex
	execDone   chan struct{}
	execActive bool
}

// NewEngine constructs a fully wired engine: Bus, CPU, Accessor,
// Decoder, Table and InterruptController, with any devices/sources from
// config registered up front.
func NewEngine(config *Config) *Engine {
	loadAddr := uint32(defaultLoadAddr)
	entry := uint64(defaultLoadAddr)
	if config != nil {
		if config.LoadAddr != 0 {
			loadAddr = config.LoadAddr
		}
		if config.Entry != 0 {
			entry = config.Entry
		}
	}

	bus := NewBus()
	cpu := NewCPU()
	acc := NewAccessor(cpu, bus)
	dec := NewDecoder(cpu, acc)
	intr := NewInterruptController(cpu, acc)

	e := &Engine{
		cpu: cpu, bus: bus, acc: acc, dec: dec,
		table: NewTable(), intr: intr,
		loadAddr: loadAddr, entry: entry,
	}

	if config != nil {
		for _, d := range config.MMIODevices {
			bus.RegisterMMIO(d.Name, d.Low, d.High, d.Device)
		}
		for _, s := range config.Sources {
			intr.AddSource(s)
		}
	}
	return e
}

// CPU/Bus/Accessor expose the engine's components for driver code and
// tests (spec §6 "debug/introspection" surface).
func (e *Engine) CPU() *CPU           { return e.cpu }
func (e *Engine) Bus() *Bus           { return e.bus }
func (e *Engine) Accessor() *Accessor { return e.acc }

// RegisterMMIODevice/RegisterObserver/RaiseInterrupt implement spec §6's
// register_mmio/register_observer/raise_interrupt external interface.
func (e *Engine) RegisterMMIODevice(name string, low, high uint64, dev MMIODevice) {
	e.bus.RegisterMMIO(name, low, high, dev)
}

func (e *Engine) RegisterObserver(low, high uint64, fn func(addr uint64, size int, value uint64)) {
	e.bus.RegisterObserver(low, high, fn)
}

func (e *Engine) AddInterruptSource(s InterruptSource) {
	e.intr.AddSource(s)
}

// RaiseInterrupt signals an external vector directly, bypassing any
// registered PIC/LAPIC source (spec §6 "raise_interrupt(vector)").
func (e *Engine) RaiseInterrupt(vector byte) {
	e.cpu.irqVector.Store(uint32(vector))
	e.cpu.irqPending.Store(true)
}

// ReadMSR/WriteMSR implement spec §6's read/write_msr(index).
func (e *Engine) ReadMSR(index uint32) (uint64, bool) { return e.cpu.ReadMSR(index) }
func (e *Engine) WriteMSR(index uint32, value uint64) { e.cpu.WriteMSR(index, value) }

// LoadProgramData loads a flat binary image into physical memory at the
// configured load address and sets RIP to the configured entry point.
func (e *Engine) LoadProgramData(data []byte) error {
	const addressSpace = 1 << 32
	if uint64(len(data))+uint64(e.loadAddr) > addressSpace {
		return fmt.Errorf("program too large: %d bytes", len(data))
	}
	for i, b := range data {
		e.bus.WritePhysical(uint64(e.loadAddr)+uint64(i), 8, uint64(b))
	}
	e.cpu.RIP = e.entry
	return nil
}

// LoadProgram loads a binary image from a file (spec §6, matching the
// teacher's file-loading convenience wrapper).
func (e *Engine) LoadProgram(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return e.LoadProgramData(data)
}

// Reset restores the CPU to its power-on state and re-seeds RIP at the
// configured entry point.
func (e *Engine) Reset() {
	e.cpu.Reset()
	e.cpu.RIP = e.entry
}

// ExecuteNext fetches, decodes and dispatches exactly one instruction,
// servicing one pending external interrupt first if IF allows it (spec
// §4.B "Main loop" step order). Faults raised anywhere during fetch,
// decode or execution - via panic(*Fault), the one escape hatch this
// engine allows internally - are caught here and routed through the
// Interrupt Engine instead of escaping as a Go panic (spec §9: "typed
// Fault result", surfaced at exactly this boundary).
//
// The instruction's starting RIP is snapshotted before fetch/decode
// touches it, and restored before fault delivery: RIP only ever
// advances past an instruction once that instruction has run to
// completion, so the frame Deliver pushes points at the faulting
// instruction (spec §4.K), not wherever decode happened to stop.
func (e *Engine) ExecuteNext() (status Status) {
	inShadow := e.cpu.shadow
	if vector, src, ok := e.intr.PollExternal(); ok {
		e.intr.Deliver(e, Vector(vector), 0, false, 0, false)
		if src != nil {
			src.Ack()
		}
	}

	if e.cpu.halted {
		return StatusHalt
	}

	startRIP := e.cpu.RIP

	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case *Fault:
				e.cpu.RIP = startRIP
				e.deliverFault(v)
				status = StatusContinue
			case RunawayError:
				e.cpu.SetRunning(false)
				status = StatusExit
			default:
				panic(r)
			}
		}
	}()

	e.dec.resetInsn()
	op := e.dec.consumePrefixes()
	e.dec.noteOpcode(op)
	e.dec.opcode = op
	status = e.table.Dispatch(e, op)
	if inShadow {
		e.cpu.shadow = false
	}
	e.cpu.instrCount++
	return status
}

// Run executes until the CPU stops (Halted or Running()==false), with
// the teacher's MIPS-reporting cadence preserved (spec ambient: perf
// counters are diagnostic, not architectural).
func (e *Engine) Run() {
	if e.PerfEnabled {
		e.perfStartTime = time.Now()
		e.lastPerfReport = e.perfStartTime
		e.InstructionCount = 0
	}

	for e.cpu.Running() && !e.cpu.Halted() {
		st := e.ExecuteNext()
		e.reportPerf()
		if st == StatusExit {
			break
		}
	}
}

func (e *Engine) reportPerf() {
	if !e.PerfEnabled {
		return
	}
	e.InstructionCount++
	if e.InstructionCount&0xFFFFFF != 0 {
		return
	}
	now := time.Now()
	if now.Sub(e.lastPerfReport) < time.Second {
		return
	}
	elapsed := now.Sub(e.perfStartTime).Seconds()
	mips := (float64(e.InstructionCount) / elapsed) / 1_000_000
	fmt.Printf("x86: %.2f MIPS (%.0f instructions in %.1fs)\n", mips, float64(e.InstructionCount), elapsed)
	e.lastPerfReport = now
}

func (e *Engine) IsRunning() bool { return e.cpu.Running() && !e.cpu.Halted() }

// StartExecution runs the engine on its own goroutine, matching
// cpu_x86_runner.go's StartExecution/Stop pair for GUI/driver
// integration where the caller cannot block on Run.
func (e *Engine) StartExecution() {
	e.execMu.Lock()
	defer e.execMu.Unlock()
	if e.execActive {
		return
	}
	e.execActive = true
	e.cpu.SetRunning(true)
	e.cpu.halted = false
	e.execDone = make(chan struct{})
	go func() {
		defer func() {
			e.execMu.Lock()
			e.execActive = false
			close(e.execDone)
			e.execMu.Unlock()
		}()
		e.Run()
	}()
}

func (e *Engine) Stop() {
	e.execMu.Lock()
	if !e.execActive {
		e.cpu.SetRunning(false)
		e.cpu.halted = true
		e.execMu.Unlock()
		return
	}
	done := e.execDone
	e.execMu.Unlock()

	e.cpu.SetRunning(false)
	<-done
}
