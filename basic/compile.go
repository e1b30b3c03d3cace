// Package basic translates the BASIC dialect described in spec section
// 4.5 into assembly text consumable by vm.Assemble. It is a simple
// single-line statement compiler: its whole output is re-validated by
// the assembler, so it favors direct register-shuffle sequences over
// any cleverness.
package basic

import (
	"fmt"
	"strings"

	"github.com/anthonysdone/karambit/vm"
)

// ErrUnsupportedPrintExpression is returned when PRINT is given anything
// other than a literal string. spec section 9 leaves this case
// explicitly undefined; this front end rejects it rather than emitting
// silently wrong assembly.
var ErrUnsupportedPrintExpression = fmt.Errorf("PRINT only supports a literal string argument")

// varAddr returns the fixed address of a single-letter BASIC variable,
// per spec section 4.1: VarBase + (uppercase(X) - 'A').
func varAddr(name string) uint16 {
	c := strings.ToUpper(name)[0]
	return vm.VarBase + uint16(c-'A')
}

// compileExpr lowers an expression into assembly that leaves its value
// in R0. Supported forms: a literal integer, a single-letter variable,
// or `V op k` / `V op W` with op in {+, -}.
func compileExpr(expr string) []string {
	expr = strings.TrimSpace(expr)

	if isDigits(expr) {
		return []string{fmt.Sprintf("  LDI R0, %s", expr)}
	}

	if len(expr) == 1 && isAlpha(expr) {
		return []string{fmt.Sprintf("  LDM R0, 0x%04X", varAddr(expr))}
	}

	for _, op := range []string{"+", "-"} {
		if !strings.Contains(expr, op) {
			continue
		}
		parts := strings.SplitN(expr, op, 2)
		left := strings.TrimSpace(parts[0])
		right := strings.TrimSpace(parts[1])

		if isAlpha(left) && isDigits(right) {
			code := []string{fmt.Sprintf("  LDM R0, 0x%04X", varAddr(left))}
			if op == "+" {
				code = append(code, fmt.Sprintf("  ADDI R0, %s", right))
			} else {
				code = append(code, fmt.Sprintf("  SUBI R0, %s", right))
			}
			return code
		}

		if isAlpha(left) && isAlpha(right) {
			code := []string{
				fmt.Sprintf("  LDM R0, 0x%04X", varAddr(left)),
				fmt.Sprintf("  LDM R1, 0x%04X", varAddr(right)),
			}
			if op == "+" {
				code = append(code, "  ADD R0, R1")
			} else {
				code = append(code, "  SUB R0, R1")
			}
			return code
		}
	}

	return []string{"    LDI R0, 0"}
}

// compileCondition lowers `LHS = RHS` or `LHS <> RHS` into assembly
// leaving the CMP result in the Z flag.
func compileCondition(cond string) []string {
	cond = strings.TrimSpace(cond)

	split := func(sep string) (string, string) {
		parts := strings.SplitN(cond, sep, 2)
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}

	var left, right string
	switch {
	case strings.Contains(cond, "<>"):
		left, right = split("<>")
	case strings.Contains(cond, "="):
		left, right = split("=")
	default:
		return nil
	}

	code := compileExpr(left)
	code = append(code, "  MOV R3, R0")
	code = append(code, compileExpr(right)...)
	code = append(code, "  CMP R3, R0")
	return code
}

// compileStatement lowers one BASIC statement into assembly. strs
// accumulates literal PRINT text, appended to in source order so later
// string addresses can be computed from earlier ones.
func compileStatement(stmt string, strs *[]string) ([]string, error) {
	tokens := strings.Fields(stmt)
	if len(tokens) == 0 {
		return nil, nil
	}

	cmd := strings.ToUpper(tokens[0])

	switch cmd {
	case "LET":
		// LET V = EXPR
		v := tokens[1]
		expr := strings.Join(tokens[3:], " ")
		code := compileExpr(expr)
		code = append(code, fmt.Sprintf("  STM R0, 0x%04X", varAddr(v)))
		return code, nil

	case "PRINT":
		first := strings.Index(stmt, `"`)
		last := strings.LastIndex(stmt, `"`)
		if first < 0 || last <= first {
			return nil, ErrUnsupportedPrintExpression
		}
		text := stmt[first+1 : last]
		*strs = append(*strs, text)
		idx := len(*strs) - 1

		addr := vm.StrBase
		for _, s := range (*strs)[:idx] {
			enc, err := vm.EncodeStringLiteral(s)
			if err != nil {
				return nil, err
			}
			addr += uint16(len(enc))
		}

		return []string{
			fmt.Sprintf("  LDI R0, %d", addr&0xFF),
			fmt.Sprintf("  LDI R1, %d", (addr>>8)&0xFF),
			"  SYS 1",
		}, nil

	case "PRINTC":
		expr := strings.Join(tokens[1:], " ")
		code := compileExpr(expr)
		code = append(code, "  SYS 0")
		return code, nil

	case "CLS":
		return []string{"  SYS 2"}, nil

	case "PLOT":
		xExpr := strings.TrimSuffix(tokens[1], ",")
		yExpr := strings.TrimSuffix(tokens[2], ",")
		cExpr := tokens[3]

		code := compileExpr(xExpr)
		code = append(code, "  MOV R3, R0")
		code = append(code, compileExpr(yExpr)...)
		code = append(code, "  MOV R1, R0")
		code = append(code, "  MOV R0, R3")
		code = append(code, compileExpr(cExpr)...)
		code = append(code, "  MOV R2, R0")
		code = append(code, "  SYS 3")
		return code, nil

	case "RENDER":
		return []string{"  SYS 4"}, nil

	case "SLEEP":
		expr := strings.Join(tokens[1:], " ")
		code := compileExpr(expr)
		code = append(code, "  SYS 5")
		return code, nil

	case "KEY":
		v := tokens[1]
		return []string{
			"  SYS 6",
			fmt.Sprintf("  STM R0, 0x%04X", varAddr(v)),
		}, nil

	case "GOTO":
		return []string{fmt.Sprintf("  JMP %s", tokens[1])}, nil

	case "IF":
		upper := strings.ToUpper(stmt)
		thenIdx := strings.Index(upper, "THEN")
		if thenIdx < 0 {
			return nil, fmt.Errorf("IF statement missing THEN: %q", stmt)
		}
		cond := strings.TrimSpace(stmt[3:thenIdx])
		gotoPart := strings.TrimSpace(stmt[thenIdx+4:])
		gotoFields := strings.Fields(gotoPart)
		if len(gotoFields) < 2 {
			return nil, fmt.Errorf("IF...THEN missing GOTO label: %q", stmt)
		}
		label := gotoFields[1]

		code := compileCondition(cond)
		if strings.Contains(cond, "<>") {
			code = append(code, fmt.Sprintf("  JNZ %s", label))
		} else {
			code = append(code, fmt.Sprintf("  JZ %s", label))
		}
		return code, nil

	case "END":
		return []string{"  HLT"}, nil
	}

	return nil, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// line is one parsed source line, with its optional leading LABEL:
// prefix split off.
type line struct {
	label string
	stmt  string
}

// Compile translates BASIC source into assembly text ready for
// vm.Assemble, per spec section 4.5: it opens with `.org 0x0200` and a
// `start:` label, translates the body, appends a trailing HLT, and — if
// any PRINT literal strings were seen — a `.org 0x3000` section with
// labelled .string directives.
func Compile(source string) (string, error) {
	var lines []line
	for _, raw := range strings.Split(source, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		l := line{stmt: raw}
		if idx := strings.Index(raw, ":"); idx >= 0 {
			l.label = strings.TrimSpace(raw[:idx])
			l.stmt = strings.TrimSpace(raw[idx+1:])
		}
		lines = append(lines, l)
	}

	asm := []string{".org 0x0200", "start:"}
	var strs []string

	for _, l := range lines {
		if l.label != "" {
			asm = append(asm, fmt.Sprintf("%s:", l.label))
		}
		if l.stmt == "" {
			continue
		}
		code, err := compileStatement(l.stmt, &strs)
		if err != nil {
			return "", err
		}
		asm = append(asm, code...)
	}

	asm = append(asm, "  HLT", "")

	if len(strs) > 0 {
		asm = append(asm, ".org 0x3000")
		for i, text := range strs {
			// Re-emit the raw body verbatim: the assembler's own
			// encodeString does escape decoding, and the address
			// precompute above already sized each entry by that decoded
			// length. Re-escaping here would desync the two.
			asm = append(asm, fmt.Sprintf(`str_%d: .string "%s"`, i, text))
		}
	}

	return strings.Join(asm, "\n"), nil
}
