package vm

import (
	"fmt"
	"strings"

	"github.com/anthonysdone/karambit/internal/klog"
)

// Program is the result of assembling source text: a contiguous byte
// image loaded at Origin, with Entry as the initial program counter.
type Program struct {
	Origin uint16
	Blob   []byte
	Entry  uint16
}

// scratchMemory accumulates pass-2 output as a flat 64KiB buffer plus a
// parallel written-bitmap, per the re-architecture notes: this avoids
// map overhead and keeps the min/max scan over the emitted set linear.
type scratchMemory struct {
	bytes   [65536]byte
	written [65536]bool
}

func (s *scratchMemory) set(addr uint16, b byte) {
	s.bytes[addr] = b
	s.written[addr] = true
}

func (s *scratchMemory) bounds() (min, max uint16, any bool) {
	for addr := 0; addr < 65536; addr++ {
		if s.written[addr] {
			if !any {
				min = uint16(addr)
			}
			max = uint16(addr)
			any = true
		}
	}
	return
}

// asmLine is one non-empty, comment-stripped logical line, with any
// leading label already split off.
type asmLine struct {
	no    int
	label string // empty if this line has no label
	rest  string // directive/instruction text, possibly empty
}

func splitLines(text string) []asmLine {
	var out []asmLine
	for i, raw := range strings.Split(text, "\n") {
		line := raw
		if idx := strings.Index(line, ";"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		label := ""
		if idx := strings.Index(line, ":"); idx >= 0 {
			label = strings.TrimSpace(line[:idx])
			line = strings.TrimSpace(line[idx+1:])
		}

		out = append(out, asmLine{no: i + 1, label: label, rest: line})
	}
	return out
}

// Assemble runs the two-pass assembler described in spec section 4.2:
// pass 1 walks every line to compute addresses and populate the label
// map; pass 2 re-walks the same lines and emits bytes. Re-assembling
// identical text always produces a byte-identical result.
func Assemble(text string) (*Program, error) {
	lines := splitLines(text)

	labels := make(map[string]uint16)
	addr := CodeBase
	origin := CodeBase
	seenOrg := false

	// Pass 1: addresses only.
	for _, l := range lines {
		if l.label != "" {
			labels[l.label] = addr
		}

		rest := l.rest
		if rest == "" {
			continue
		}

		switch {
		case strings.HasPrefix(rest, ".org"):
			n, err := directiveOrg(rest)
			if err != nil {
				return nil, &AssembleError{Err: err, Line: l.no}
			}
			addr = n
			if !seenOrg {
				origin = addr
				seenOrg = true
			}
		case strings.HasPrefix(rest, ".byte"):
			addr++
		case strings.HasPrefix(rest, ".word"):
			addr += 2
		case strings.HasPrefix(rest, ".string"), strings.HasPrefix(rest, ".asciiz"):
			n, err := directiveStringLen(rest)
			if err != nil {
				return nil, &AssembleError{Err: err, Line: l.no}
			}
			addr += uint16(n)
		default:
			toks := tokenize(rest)
			if op, ok := mnemonicToOpcode[strings.ToUpper(toks[0])]; ok {
				size, _ := op.Size()
				addr += uint16(size)
			}
		}
	}

	// Pass 2: emit bytes, resolving label references against the pass-1 map.
	mem := &scratchMemory{}
	addr = CodeBase

	for _, l := range lines {
		rest := l.rest
		if rest == "" {
			continue
		}

		switch {
		case strings.HasPrefix(rest, ".org"):
			n, _ := directiveOrg(rest)
			addr = n
		case strings.HasPrefix(rest, ".byte"):
			toks := tokenize(rest)
			v, err := parseNumber(toks[1])
			if err != nil {
				return nil, &AssembleError{Err: err, Line: l.no}
			}
			mem.set(addr, byte(v))
			addr++
		case strings.HasPrefix(rest, ".word"):
			toks := tokenize(rest)
			v, err := parseNumber(toks[1])
			if err != nil {
				return nil, &AssembleError{Err: err, Line: l.no}
			}
			mem.set(addr, byte(v))
			mem.set(addr+1, byte(v>>8))
			addr += 2
		case strings.HasPrefix(rest, ".string"), strings.HasPrefix(rest, ".asciiz"):
			body, err := extractString(rest)
			if err != nil {
				return nil, &AssembleError{Err: err, Line: l.no}
			}
			enc, err := encodeString(body)
			if err != nil {
				return nil, &AssembleError{Err: err, Line: l.no}
			}
			for _, b := range enc {
				mem.set(addr, b)
				addr++
			}
		default:
			toks := tokenize(rest)
			op, ok := mnemonicToOpcode[strings.ToUpper(toks[0])]
			if !ok {
				return nil, &AssembleError{Err: fmt.Errorf("%w: %s", errUnknownMnemonic, toks[0]), Line: l.no}
			}

			enc, err := encodeInstruction(op, toks, labels)
			if err != nil {
				return nil, &AssembleError{Err: err, Line: l.no}
			}
			for _, b := range enc {
				mem.set(addr, b)
				addr++
			}
		}
	}

	min, max, any := mem.bounds()
	if !any {
		return &Program{Origin: origin, Blob: nil, Entry: origin}, nil
	}

	blob := make([]byte, int(max)-int(min)+1)
	for a := int(min); a <= int(max); a++ {
		if mem.written[a] {
			blob[a-int(min)] = mem.bytes[a]
		}
	}

	entry := origin
	if e, ok := labels["start"]; ok {
		entry = e
	} else if e, ok := labels["_start"]; ok {
		entry = e
	}

	klog.Debug("assembled program", "origin", min, "size", len(blob), "entry", entry, "labels", len(labels))
	return &Program{Origin: min, Blob: blob, Entry: entry}, nil
}

func directiveOrg(rest string) (uint16, error) {
	toks := tokenize(rest)
	if len(toks) < 2 {
		return 0, fmt.Errorf("%w: .org requires an address", errBadOperand)
	}
	n, err := parseNumber(toks[1])
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}

func directiveStringLen(rest string) (int, error) {
	body, err := extractString(rest)
	if err != nil {
		return 0, err
	}
	enc, err := encodeString(body)
	if err != nil {
		return 0, err
	}
	return len(enc), nil
}

// resolveAddress resolves an operand to an address: a known label wins,
// otherwise the operand must be a numeric literal. An identifier that is
// neither is a hard error per spec section 4.2.
func resolveAddress(operand string, labels map[string]uint16) (uint16, error) {
	if a, ok := labels[operand]; ok {
		return a, nil
	}
	n, err := parseNumber(operand)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", errUnresolvedLabel, operand)
	}
	return uint16(n), nil
}

// encodeInstruction encodes one mnemonic and its operands into bytes,
// per the per-mnemonic table in spec section 4.2.
func encodeInstruction(op Opcode, toks []string, labels map[string]uint16) ([]byte, error) {
	switch op {
	case HLT:
		return []byte{byte(op)}, nil

	case SYS:
		imm, err := parseNumber(toks[1])
		if err != nil {
			return nil, err
		}
		return []byte{byte(op), byte(imm)}, nil

	case JMP, JZ, JNZ:
		addr, err := resolveAddress(toks[1], labels)
		if err != nil {
			return nil, err
		}
		return []byte{byte(op), byte(addr), byte(addr >> 8)}, nil

	case LDI, ADDI, SUBI, CMPI:
		r, ok := parseRegister(toks[1])
		if !ok {
			return nil, fmt.Errorf("%w: %s", errBadOperand, toks[1])
		}
		imm, err := parseNumber(toks[2])
		if err != nil {
			return nil, err
		}
		return []byte{byte(op), byte(r), byte(imm)}, nil

	case LDM, STM:
		r, ok := parseRegister(toks[1])
		if !ok {
			return nil, fmt.Errorf("%w: %s", errBadOperand, toks[1])
		}
		addr, err := resolveAddress(toks[2], labels)
		if err != nil {
			return nil, err
		}
		return []byte{byte(op), byte(r), byte(addr), byte(addr >> 8)}, nil

	case MOV, ADD, SUB, CMP:
		rd, ok := parseRegister(toks[1])
		if !ok {
			return nil, fmt.Errorf("%w: %s", errBadOperand, toks[1])
		}
		rs, ok := parseRegister(toks[2])
		if !ok {
			return nil, fmt.Errorf("%w: %s", errBadOperand, toks[2])
		}
		return []byte{byte(op), byte(rd), byte(rs)}, nil
	}

	return nil, fmt.Errorf("%w: %s", errUnknownMnemonic, op)
}
