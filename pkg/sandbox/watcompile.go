package sandbox

import (
	"fmt"
	"strconv"
)

// compiledFunc holds everything the WASM module encoder needs to emit one
// function: its local-name-to-index table (params followed by locals), the
// number of declared params, whether it returns a value, and its body
// s-expressions.
type compiledFunc struct {
	name       string
	exportName string
	localIndex map[string]uint32
	numParams  int
	hasResult  bool
	body       []*sexpr
}

// parseWATFunc extracts the single (func ...) definition inside a sanitised
// (module ...) form. Only one function per module is supported, matching
// spec.md's one-function-per-WAT-artifact model (each `functions[i]` entry
// is compiled and registered independently).
func parseWATFunc(root *sexpr) (*compiledFunc, error) {
	if root.isAtom() || root.head() != "module" {
		return nil, &WATError{Reason: "expected (module ...) at top level"}
	}
	var fn *sexpr
	for _, child := range root.List[1:] {
		if !child.isAtom() && child.head() == "func" {
			fn = child
			break
		}
	}
	if fn == nil {
		return nil, &WATError{Reason: "no (func ...) found in module"}
	}

	cf := &compiledFunc{localIndex: make(map[string]uint32)}
	var nextLocal uint32
	var body []*sexpr

	for _, part := range fn.List[1:] {
		if part.isAtom() {
			cf.name = part.Text
			continue
		}
		switch part.head() {
		case "export":
			if len(part.List) >= 2 {
				cf.exportName = trimQuotes(part.List[1].Text)
			}
		case "param":
			for _, nameAtom := range part.List[1 : len(part.List)-1] {
				cf.localIndex[nameAtom.Text] = nextLocal
				nextLocal++
				cf.numParams++
			}
		case "result":
			cf.hasResult = true
		case "local":
			for _, nameAtom := range part.List[1 : len(part.List)-1] {
				cf.localIndex[nameAtom.Text] = nextLocal
				nextLocal++
			}
		default:
			body = append(body, part)
		}
	}
	cf.body = body
	return cf, nil
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// encodeModule assembles a minimal single-function WASM binary module from
// cf: a type section (params all i32, result i32 if hasResult), a function
// section, an export section, and a code section with the encoded body.
func encodeModule(cf *compiledFunc) ([]byte, error) {
	var mod []byte
	mod = append(mod, 0x00, 0x61, 0x73, 0x6d) // magic "\0asm"
	mod = append(mod, 0x01, 0x00, 0x00, 0x00) // version 1

	// Type section (id 1): one function type.
	var typeBody []byte
	typeBody = append(typeBody, 0x01) // one type
	typeBody = append(typeBody, 0x60) // func type tag
	typeBody = append(typeBody, uleb128(uint64(cf.numParams))...)
	for i := 0; i < cf.numParams; i++ {
		typeBody = append(typeBody, 0x7f) // i32
	}
	if cf.hasResult {
		typeBody = append(typeBody, 0x01, 0x7f)
	} else {
		typeBody = append(typeBody, 0x00)
	}
	mod = append(mod, section(1, typeBody)...)

	// Function section (id 3): one function referencing type 0.
	mod = append(mod, section(3, append([]byte{0x01}, uleb128(0)...))...)

	// Export section (id 7): export the function under cf.exportName.
	var exportBody []byte
	exportBody = append(exportBody, 0x01)
	exportBody = append(exportBody, uleb128(uint64(len(cf.exportName)))...)
	exportBody = append(exportBody, cf.exportName...)
	exportBody = append(exportBody, 0x00) // kind: func
	exportBody = append(exportBody, uleb128(0)...)
	mod = append(mod, section(7, exportBody)...)

	// Code section (id 10): one function body.
	enc := &instrEncoder{locals: cf.localIndex}
	if err := enc.encodeBody(cf.body); err != nil {
		return nil, err
	}
	enc.bytes = append(enc.bytes, 0x0b) // end

	numLocalDecls := len(cf.localIndex) - cf.numParams
	var localsDecl []byte
	if numLocalDecls > 0 {
		localsDecl = append(localsDecl, uleb128(uint64(numLocalDecls))...)
		localsDecl = append(localsDecl, uleb128(1)...)
		localsDecl = append(localsDecl, 0x7f)
	} else {
		localsDecl = append(localsDecl, uleb128(0)...)
	}

	funcBody := append(localsDecl, enc.bytes...)
	var funcEntry []byte
	funcEntry = append(funcEntry, uleb128(uint64(len(funcBody)))...)
	funcEntry = append(funcEntry, funcBody...)

	var codeBody []byte
	codeBody = append(codeBody, 0x01) // one function body
	codeBody = append(codeBody, funcEntry...)
	mod = append(mod, section(10, codeBody)...)

	return mod, nil
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, uleb128(uint64(len(body)))...)
	out = append(out, body...)
	return out
}

func uleb128(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb128(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

// instrEncoder walks a restricted instruction body (the allowlisted opcodes
// only: local.get/set, i32.add/rem_u/eq, block, loop, br, br_if, if/else,
// return, nop) and emits the corresponding WASM binary opcodes.
type instrEncoder struct {
	bytes  []byte
	locals map[string]uint32
}

func (e *instrEncoder) encodeBody(exprs []*sexpr) error {
	for _, s := range exprs {
		if err := e.encodeOne(s); err != nil {
			return err
		}
	}
	return nil
}

func (e *instrEncoder) encodeOne(s *sexpr) error {
	if s.isAtom() {
		return e.encodeBareOp(s.Text)
	}
	op := s.head()
	switch op {
	case "local.get", "local.set":
		if len(s.List) < 2 {
			return &WATError{Reason: op + " requires a local name"}
		}
		idx, ok := e.locals[s.List[1].Text]
		if !ok {
			return &WATError{Reason: "reference to undeclared local " + s.List[1].Text}
		}
		if op == "local.get" {
			e.bytes = append(e.bytes, 0x20)
		} else {
			e.bytes = append(e.bytes, 0x21)
		}
		e.bytes = append(e.bytes, uleb128(uint64(idx))...)
		return nil

	case "i32.add":
		return e.encodeNestedThenOp(s, 0x6a)
	case "i32.rem_u":
		return e.encodeNestedThenOp(s, 0x70)
	case "i32.eq":
		return e.encodeNestedThenOp(s, 0x46)

	case "i32.const":
		if len(s.List) < 2 {
			return &WATError{Reason: "i32.const requires an immediate operand"}
		}
		n, err := parseI32Const(s.List[1].Text)
		if err != nil {
			return err
		}
		e.bytes = append(e.bytes, 0x41)
		e.bytes = append(e.bytes, sleb128(int64(n))...)
		return nil

	case "block", "loop":
		var opcode byte = 0x02
		if op == "loop" {
			opcode = 0x03
		}
		e.bytes = append(e.bytes, opcode, 0x40)
		if err := e.encodeBody(s.List[1:]); err != nil {
			return err
		}
		e.bytes = append(e.bytes, 0x0b)
		return nil

	case "if":
		return e.encodeIf(s)

	case "br", "br_if":
		if len(s.List) < 2 {
			return &WATError{Reason: op + " requires a label depth"}
		}
		depth, err := parseLabel(s.List[1].Text)
		if err != nil {
			return err
		}
		if op == "br" {
			e.bytes = append(e.bytes, 0x0c)
		} else {
			e.bytes = append(e.bytes, 0x0d)
		}
		e.bytes = append(e.bytes, uleb128(uint64(depth))...)
		return nil

	case "return":
		e.bytes = append(e.bytes, 0x0f)
		return nil

	case "nop":
		e.bytes = append(e.bytes, 0x01)
		return nil

	default:
		return &WATError{Reason: "unsupported instruction form " + op}
	}
}

func (e *instrEncoder) encodeBareOp(name string) error {
	switch name {
	case "i32.add":
		e.bytes = append(e.bytes, 0x6a)
	case "i32.rem_u":
		e.bytes = append(e.bytes, 0x70)
	case "i32.eq":
		e.bytes = append(e.bytes, 0x46)
	case "return":
		e.bytes = append(e.bytes, 0x0f)
	case "nop":
		e.bytes = append(e.bytes, 0x01)
	default:
		return &WATError{Reason: "unsupported bare instruction " + name}
	}
	return nil
}

// encodeNestedThenOp handles the folded s-expression form
// `(i32.add operand1 operand2)`; if the operator has no nested operand
// children it is treated as already-stack-based (operands were pushed by
// preceding siblings) and only the opcode itself is emitted.
func (e *instrEncoder) encodeNestedThenOp(s *sexpr, opcode byte) error {
	for _, operand := range s.List[1:] {
		if err := e.encodeOne(operand); err != nil {
			return err
		}
	}
	e.bytes = append(e.bytes, opcode)
	return nil
}

func (e *instrEncoder) encodeIf(s *sexpr) error {
	// Accept both `(if cond (then ...) (else ...))` and the bare form where
	// the condition was already pushed by a preceding sibling.
	rest := s.List[1:]
	var thenNode, elseNode *sexpr
	var condNode *sexpr
	for _, part := range rest {
		if part.isAtom() {
			continue
		}
		switch part.head() {
		case "then":
			thenNode = part
		case "else":
			elseNode = part
		default:
			condNode = part
		}
	}
	if condNode != nil {
		if err := e.encodeOne(condNode); err != nil {
			return err
		}
	}
	if thenNode == nil {
		return &WATError{Reason: "if form missing (then ...) branch"}
	}
	e.bytes = append(e.bytes, 0x04, 0x40)
	if err := e.encodeBody(thenNode.List[1:]); err != nil {
		return err
	}
	if elseNode == nil {
		return &WATError{Reason: "if form missing (else ...) branch"}
	}
	e.bytes = append(e.bytes, 0x05)
	if err := e.encodeBody(elseNode.List[1:]); err != nil {
		return err
	}
	e.bytes = append(e.bytes, 0x0b)
	return nil
}

func parseLabel(text string) (uint64, error) {
	var n uint64
	if _, err := fmt.Sscanf(text, "%d", &n); err != nil {
		return 0, &WATError{Reason: "br/br_if target must be a numeric label depth, got " + text}
	}
	return n, nil
}

func parseI32Const(text string) (int32, error) {
	n, err := strconv.ParseInt(text, 10, 32)
	if err != nil {
		return 0, &WATError{Reason: "i32.const operand must be a 32-bit integer literal, got " + text}
	}
	return int32(n), nil
}
