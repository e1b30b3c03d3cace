package vm

// step executes exactly one instruction at the current PC, per the
// per-opcode semantics in spec section 4.3. All non-branch instructions
// advance PC by the opcode's declared size; HLT clears the running flag
// but still advances PC by its own size, matching the reference CPU.
func (v *VM) step() {
	op := Opcode(v.Memory[v.PC])
	size, known := op.Size()
	if !known {
		panic(&Fault{Err: errIllegalInstruction, PC: v.PC, Opcode: byte(op)})
	}

	pc := v.PC

	switch op {
	case LDI:
		r := v.Memory[pc+1]
		imm := v.Memory[pc+2]
		v.Regs[r] = imm

	case LDM:
		r := v.Memory[pc+1]
		addr := v.readAddr(pc + 2)
		v.Regs[r] = v.Memory[addr]

	case STM:
		r := v.Memory[pc+1]
		addr := v.readAddr(pc + 2)
		v.Memory[addr] = v.Regs[r]

	case MOV:
		rd := v.Memory[pc+1]
		rs := v.Memory[pc+2]
		v.Regs[rd] = v.Regs[rs]

	case ADD:
		rd := v.Memory[pc+1]
		rs := v.Memory[pc+2]
		v.Regs[rd] = byte(int(v.Regs[rd]) + int(v.Regs[rs]))

	case ADDI:
		r := v.Memory[pc+1]
		imm := v.Memory[pc+2]
		v.Regs[r] = byte(int(v.Regs[r]) + int(imm))

	case SUB:
		rd := v.Memory[pc+1]
		rs := v.Memory[pc+2]
		v.Regs[rd] = byte(int(v.Regs[rd]) - int(v.Regs[rs]))

	case SUBI:
		r := v.Memory[pc+1]
		imm := v.Memory[pc+2]
		v.Regs[r] = byte(int(v.Regs[r]) - int(imm))

	case CMP:
		ra := v.Memory[pc+1]
		rb := v.Memory[pc+2]
		v.Z = v.Regs[ra] == v.Regs[rb]

	case CMPI:
		r := v.Memory[pc+1]
		imm := v.Memory[pc+2]
		v.Z = v.Regs[r] == imm

	case JMP:
		v.PC = v.readAddr(pc + 1)
		v.StepCount++
		return

	case JZ:
		addr := v.readAddr(pc + 1)
		if v.Z {
			v.PC = addr
			v.StepCount++
			return
		}

	case JNZ:
		addr := v.readAddr(pc + 1)
		if !v.Z {
			v.PC = addr
			v.StepCount++
			return
		}

	case SYS:
		imm := v.Memory[pc+1]
		v.dispatchSyscall(imm)

	case HLT:
		v.running = false
	}

	v.PC = pc + uint16(size)
	v.StepCount++
}

// Run executes instructions until HLT or a fatal error. The running
// flag starts true on entry and is cleared by HLT.
func (v *VM) Run() {
	v.running = true
	for v.running && int(v.PC) < len(v.Memory) {
		v.step()
	}
	v.host.stdout.Flush()
}
