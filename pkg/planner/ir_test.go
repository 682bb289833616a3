package planner

import "testing"

func TestTranslateIR_ConstLowersToI32Const(t *testing.T) {
	ir := &IR{Root: IRNode{Kind: IRConst, Value: 7}}
	wat, err := TranslateIR("seven", "seven", ir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `(module (func $seven (export "seven") (param $n i32) (result i32) (i32.const 7)))`
	if wat != want {
		t.Fatalf("got %q, want %q", wat, want)
	}
}

func TestTranslateIR_VarLowersToLocalGetN(t *testing.T) {
	ir := &IR{Root: IRNode{Kind: IRVar, Name: "n"}}
	wat, err := TranslateIR("identity", "identity", ir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wat != `(module (func $identity (export "identity") (param $n i32) (result i32) (local.get $n)))` {
		t.Fatalf("unexpected WAT: %s", wat)
	}
}

func TestTranslateIR_RejectsUnboundVarName(t *testing.T) {
	ir := &IR{Root: IRNode{Kind: IRVar, Name: "x"}}
	if _, err := TranslateIR("bad", "bad", ir); err == nil {
		t.Fatal("expected error for unbound variable name")
	}
}

func TestTranslateIR_ModLowersWithTwoOperands(t *testing.T) {
	ir := &IR{Root: IRNode{
		Kind: IRMod,
		Args: []IRNode{
			{Kind: IRVar, Name: "n"},
			{Kind: IRConst, Value: 2},
		},
	}}
	wat, err := TranslateIR("mod2", "mod2", ir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `(module (func $mod2 (export "mod2") (param $n i32) (result i32) (i32.rem_u (local.get $n) (i32.const 2))))`
	if wat != want {
		t.Fatalf("got %q, want %q", wat, want)
	}
}

func TestTranslateIR_EqComposesWithMod(t *testing.T) {
	ir := &IR{Root: IRNode{
		Kind: IREq,
		Args: []IRNode{
			{Kind: IRMod, Args: []IRNode{{Kind: IRVar, Name: "n"}, {Kind: IRConst, Value: 2}}},
			{Kind: IRConst, Value: 0},
		},
	}}
	wat, err := TranslateIR("is_even", "is_even", ir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `(module (func $is_even (export "is_even") (param $n i32) (result i32) (i32.eq (i32.rem_u (local.get $n) (i32.const 2)) (i32.const 0))))`
	if wat != want {
		t.Fatalf("got %q, want %q", wat, want)
	}
}

func TestTranslateIR_RejectsWrongArgCount(t *testing.T) {
	ir := &IR{Root: IRNode{Kind: IRAdd, Args: []IRNode{{Kind: IRConst, Value: 1}}}}
	if _, err := TranslateIR("bad", "bad", ir); err == nil {
		t.Fatal("expected error for add with one arg")
	}
}

func TestTranslateIR_RejectsUnknownKind(t *testing.T) {
	ir := &IR{Root: IRNode{Kind: "divide"}}
	if _, err := TranslateIR("bad", "bad", ir); err == nil {
		t.Fatal("expected error for unknown IR node kind")
	}
}
