package compiler

import "fmt"

// Schema describes the shape of the variable environment an expression will
// run against, enough to catch a typo'd field path at compile time rather
// than at runtime. It is deliberately small — a map of root variable names to
// their field sets — rather than a full JSON Schema implementation, since the
// only static check the planner's feasibility gate needs is "does this path
// exist", not format/type validation.
type Schema struct {
	// Roots maps a top-level variable name to the set of field names
	// reachable from it. A root with a nil field set is treated as opaque
	// (any field access on it is allowed, e.g. a map with dynamic keys).
	Roots map[string]map[string]bool
}

// StaticAnalysisError reports a field or variable reference that Analyse
// proved cannot resolve against the supplied Schema.
type StaticAnalysisError struct {
	Path string
}

func (e *StaticAnalysisError) Error() string {
	return fmt.Sprintf("compiler: static analysis: unresolvable path %q", e.Path)
}

// Analyse walks ast and validates every root-variable and field-access chain
// against schema. IndexAccess with a non-literal index is treated as opaque
// (dynamic indices cannot be checked statically).
func Analyse(ast Node, schema *Schema) error {
	return analyseNode(ast, schema)
}

func analyseNode(n Node, schema *Schema) error {
	switch t := n.(type) {
	case Literal:
		return nil
	case Ident:
		if _, ok := schema.Roots[t.Name]; !ok {
			return &StaticAnalysisError{Path: t.Name}
		}
		return nil
	case FieldAccess:
		path, fields, ok := resolveChain(t)
		if ok {
			if err := checkChain(schema, path, fields); err != nil {
				return err
			}
			return nil
		}
		return analyseNode(t.Target, schema)
	case IndexAccess:
		if err := analyseNode(t.Target, schema); err != nil {
			return err
		}
		return analyseNode(t.Index, schema)
	case Unary:
		return analyseNode(t.Operand, schema)
	case Binary:
		if err := analyseNode(t.Left, schema); err != nil {
			return err
		}
		return analyseNode(t.Right, schema)
	case Ternary:
		if err := analyseNode(t.Cond, schema); err != nil {
			return err
		}
		if err := analyseNode(t.Then, schema); err != nil {
			return err
		}
		return analyseNode(t.Else, schema)
	case Call:
		for _, a := range t.Args {
			if err := analyseNode(a, schema); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

// resolveChain flattens a FieldAccess chain rooted at an Ident into a root
// name and an ordered field list, e.g. `input.user.name` -> ("input",
// ["user", "name"]). ok is false if the chain does not bottom out in a bare
// Ident (e.g. it passes through an IndexAccess or a Call), in which case the
// caller falls back to recursing into Target.
func resolveChain(fa FieldAccess) (root string, fields []string, ok bool) {
	fields = []string{fa.Field}
	cur := fa.Target
	for {
		switch t := cur.(type) {
		case Ident:
			reversed := make([]string, len(fields))
			for i, f := range fields {
				reversed[len(fields)-1-i] = f
			}
			return t.Name, reversed, true
		case FieldAccess:
			fields = append(fields, t.Field)
			cur = t.Target
		default:
			return "", nil, false
		}
	}
}

func checkChain(schema *Schema, root string, fields []string) error {
	allowed, ok := schema.Roots[root]
	if !ok {
		return &StaticAnalysisError{Path: root}
	}
	if allowed == nil {
		return nil // opaque root, e.g. a dynamic-keyed map
	}
	if len(fields) == 0 {
		return nil
	}
	if !allowed[fields[0]] {
		return &StaticAnalysisError{Path: root + "." + fields[0]}
	}
	// Only the first hop is schema-checked; nested object shapes beyond one
	// level are not modelled, matching the planner's feasibility gate which
	// only needs to catch references to variables/fields the flow never
	// produces, not type-check arbitrarily deep structures.
	return nil
}
