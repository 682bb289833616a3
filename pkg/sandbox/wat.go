package sandbox

import (
	"fmt"
	"regexp"
	"strings"
)

// allowedWATOpcodes is the restricted opcode allowlist WAT synthesis (whether
// planner-generated or function IR lowered locally) must stay within:
// i32.rem_u, i32.eq, i32.add, i32.const, local.get, local.set, block, loop,
// br, br_if, return. Anything else in a function body is rejected before it
// ever reaches the WASM compiler.
var allowedWATOpcodes = map[string]bool{
	"i32.rem_u": true,
	"i32.eq":    true,
	"i32.add":   true,
	"i32.const": true,
	"local.get": true,
	"local.set": true,
	"block":     true,
	"loop":      true,
	"br":        true,
	"br_if":     true,
	"return":    true,
	"if":        true,
	"else":      true,
	"then":      true,
	"end":       true,
	"nop":       true,
	"func":      true,
	"module":    true,
	"param":     true,
	"result":    true,
	"local":     true,
	"export":    true,
}

var watTokenPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_.]*`)

// WATError reports a canonical-form violation detected by Sanitise.
type WATError struct {
	Reason string
}

func (e *WATError) Error() string { return fmt.Sprintf("sandbox: invalid WAT: %s", e.Reason) }

// Sanitise enforces the canonical WAT form spec.md mandates:
//
//	(module (func $NAME (export "EXPORT") (param $n i32) (result i32) ...))
//
// with locals declared up front, every `if` paired with an `else` (an empty
// branch must be spelled `(else (nop))`), a restricted opcode allowlist, and
// no imports, comments, or markdown fencing. It returns the canonicalised
// source (stripped of markdown code fences and surrounding whitespace) or a
// *WATError describing the first violation found.
func Sanitise(src string) (string, error) {
	src = stripMarkdownFence(src)
	src = strings.TrimSpace(src)

	if strings.Contains(src, ";;") || strings.Contains(src, "(;") {
		return "", &WATError{Reason: "comments are not permitted"}
	}
	if strings.Contains(src, "(import") {
		return "", &WATError{Reason: "imports are not permitted"}
	}
	if !strings.Contains(src, "(module") {
		return "", &WATError{Reason: "missing (module ...) wrapper"}
	}
	if !strings.Contains(src, "(func") {
		return "", &WATError{Reason: "missing (func ...) definition"}
	}
	if !strings.Contains(src, "(export") {
		return "", &WATError{Reason: "function must declare a canonical (export \"...\")"}
	}

	if err := checkIfElsePairing(src); err != nil {
		return "", err
	}
	if err := checkOpcodeAllowlist(src); err != nil {
		return "", err
	}
	if err := checkLocalsDeclaredUpFront(src); err != nil {
		return "", err
	}

	return canonicaliseEmptyElse(src), nil
}

func stripMarkdownFence(src string) string {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, "```") {
		lines := strings.Split(src, "\n")
		if len(lines) >= 2 {
			lines = lines[1:]
		}
		if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
			lines = lines[:len(lines)-1]
		}
		src = strings.Join(lines, "\n")
	}
	return src
}

// checkIfElsePairing walks `(if ...)` forms by tracking paren depth and
// verifies each one that opens a `(then ...)` block also has a sibling
// `(else ...)` block before its closing paren.
func checkIfElsePairing(src string) error {
	ifIdx := 0
	for {
		i := strings.Index(src[ifIdx:], "(if")
		if i == -1 {
			return nil
		}
		start := ifIdx + i
		end := matchingParen(src, start)
		if end == -1 {
			return &WATError{Reason: "unbalanced (if ...) form"}
		}
		body := src[start:end]
		if strings.Contains(body, "(then") && !strings.Contains(body, "(else") {
			return &WATError{Reason: "if form is missing a paired else branch (use (else (nop)) for a no-op)"}
		}
		ifIdx = end
	}
}

// matchingParen returns the index just past the paren matching the '(' at
// src[start], or -1 if unbalanced.
func matchingParen(src string, start int) int {
	depth := 0
	for i := start; i < len(src); i++ {
		switch src[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func checkOpcodeAllowlist(src string) error {
	body := bodyOnly(src)
	for _, tok := range watTokenPattern.FindAllString(body, -1) {
		if strings.HasPrefix(tok, "i32.") || isBareKeyword(tok) {
			if !allowedWATOpcodes[tok] {
				return &WATError{Reason: fmt.Sprintf("opcode %q is not in the allowlist", tok)}
			}
		}
	}
	return nil
}

func isBareKeyword(tok string) bool {
	switch tok {
	case "block", "loop", "br", "br_if", "return", "if", "else", "then", "end", "nop",
		"func", "module", "param", "result", "local", "export":
		return true
	default:
		return false
	}
}

// bodyOnly strips $identifiers and string literals so opcode scanning does
// not mistake a function or local name for an instruction token.
func bodyOnly(src string) string {
	var sb strings.Builder
	inString := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if c == '$' {
			for i < len(src) && src[i] != ' ' && src[i] != ')' && src[i] != '(' {
				i++
			}
			i--
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func checkLocalsDeclaredUpFront(src string) error {
	// A local is "declared up front" if, within each (func ...) form, no
	// (local.set ...) or (local.get ...) referencing a name appears before
	// that name's own (local $name ...) / (param $name ...) declaration.
	// We approximate this with the textual position of the first
	// local.get/local.set call relative to the last local/param declaration,
	// which is sufficient for the flat, non-nested function bodies the
	// planner synthesises.
	funcIdx := 0
	for {
		i := strings.Index(src[funcIdx:], "(func")
		if i == -1 {
			return nil
		}
		start := funcIdx + i
		end := matchingParen(src, start)
		if end == -1 {
			return &WATError{Reason: "unbalanced (func ...) form"}
		}
		body := src[start:end]
		lastDecl := lastIndexAny(body, "(local ", "(local$", "(param ")
		firstUse := indexAny(body, "local.get", "local.set")
		if firstUse != -1 && firstUse < lastDecl {
			return &WATError{Reason: "local used before all locals are declared"}
		}
		funcIdx = end
	}
}

func indexAny(s string, subs ...string) int {
	best := -1
	for _, sub := range subs {
		if i := strings.Index(s, sub); i != -1 && (best == -1 || i < best) {
			best = i
		}
	}
	return best
}

func lastIndexAny(s string, subs ...string) int {
	best := -1
	for _, sub := range subs {
		if i := strings.LastIndex(s, sub); i > best {
			best = i
		}
	}
	return best
}

// canonicaliseEmptyElse rewrites a bare `(else)` into `(else (nop))`, the
// canonical empty-branch spelling spec.md requires.
func canonicaliseEmptyElse(src string) string {
	return strings.ReplaceAll(src, "(else)", "(else (nop))")
}
