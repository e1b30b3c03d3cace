package vm

import (
	"bufio"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/anthonysdone/karambit/internal/klog"
)

func (v *VM) recoverFault() {
	if r := recover(); r != nil {
		if f, ok := r.(*Fault); ok {
			v.errcode = f
			klog.Error("execution faulted", "pc", f.PC, "opcode", f.Opcode, "err", f.Err)
			return
		}
		v.errcode = &Fault{Err: errIllegalInstruction, PC: v.PC, Opcode: v.Memory[v.PC]}
		klog.Error("execution panicked", "pc", v.PC)
	}
}

// RunToCompletion runs the program with the garbage collector disabled
// for the duration, the same trade the teacher package makes: memory is
// allocated up front, so the tight fetch-decode-execute loop shouldn't
// pay for GC pauses. GOGC is restored once the run ends.
func (v *VM) RunToCompletion() (err error) {
	prevGOGC := currentGOGC()
	debug.SetGCPercent(-1)
	defer debug.SetGCPercent(prevGOGC)
	defer func() { err = v.errcode }()
	defer v.recoverFault()

	klog.Debug("starting run", "entry", v.PC)
	v.Run()
	klog.Debug("run finished", "steps", v.StepCount, "halted_at", v.PC)
	return v.errcode
}

func currentGOGC() int {
	if s, ok := os.LookupEnv("GOGC"); ok {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 100
}

// RunDebug runs with per-step state tracing and a small breakpoint REPL:
// n/next executes one instruction, r/run free-runs until a breakpoint or
// halt, b/break <pc> toggles a breakpoint.
func (v *VM) RunDebug() (err error) {
	defer func() { err = v.errcode }()
	defer v.recoverFault()

	fmt.Print("Commands:\n\tn or next: execute next instruction\n\tr or run: run program\n\tb or break <pc>: toggle breakpoint\n\n")

	v.running = true
	v.printState()

	reader := bufio.NewReader(os.Stdin)
	waitForInput := true
	breakpoints := make(map[uint16]struct{})
	lastBreak := int32(-1)

	for v.running && int(v.PC) < len(v.Memory) {
		if waitForInput {
			fmt.Print("\n->")
			line, _ := reader.ReadString('\n')
			line = strings.ToLower(strings.TrimSpace(line))

			switch {
			case line == "n" || line == "next":
				v.stepTraced()
			case line == "r" || line == "run":
				waitForInput = false
			case strings.HasPrefix(line, "b"):
				toggleBreakpoint(breakpoints, line)
			}
			continue
		}

		if _, hit := breakpoints[v.PC]; hit && int32(v.PC) != lastBreak {
			fmt.Println("breakpoint")
			v.printState()
			waitForInput = true
			lastBreak = int32(v.PC)
			continue
		}
		lastBreak = -1
		v.stepTraced()
	}

	v.printDebugOutput()
	return v.errcode
}

func (v *VM) stepTraced() {
	v.step()
	v.printState()
	if v.errcode != nil {
		v.running = false
	}
}

func toggleBreakpoint(breakpoints map[uint16]struct{}, line string) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return
	}
	n, err := strconv.ParseUint(parts[1], 0, 16)
	if err != nil {
		fmt.Println("unknown address:", err)
		return
	}
	addr := uint16(n)
	if _, ok := breakpoints[addr]; ok {
		delete(breakpoints, addr)
	} else {
		breakpoints[addr] = struct{}{}
	}
}

func (v *VM) printState() {
	op := Opcode(v.Memory[v.PC])
	fmt.Printf("[%03d] PC: 0x%04X | %-6s | R0:%3d R1:%3d R2:%3d R3:%3d | Z:%v\n",
		v.StepCount, v.PC, op, v.Regs[0], v.Regs[1], v.Regs[2], v.Regs[3], v.Z)
}
