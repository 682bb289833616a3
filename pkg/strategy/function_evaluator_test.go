package strategy

import "testing"

type fakeHandle struct {
	result any
	err    error
}

func (h *fakeHandle) Invoke([]any) (any, error) { return h.result, h.err }

func TestFunctionEvaluator_CoercesBoolToScore(t *testing.T) {
	ev := &FunctionEvaluator{Handle: &fakeHandle{result: true}}
	outcome, err := ev.Eval(4, NewMemo())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Score != 1 {
		t.Fatalf("expected score 1 for true, got %v", outcome.Score)
	}
}

func TestFunctionEvaluator_CoercesNumberToScore(t *testing.T) {
	ev := &FunctionEvaluator{Handle: &fakeHandle{result: int64(42)}}
	outcome, err := ev.Eval(4, NewMemo())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Score != 42 {
		t.Fatalf("expected score 42, got %v", outcome.Score)
	}
}

func TestFunctionEvaluator_CoercesObjectWithScoreAndAux(t *testing.T) {
	ev := &FunctionEvaluator{Handle: &fakeHandle{result: map[string]any{"score": 3.5, "aux": 2.0, "notes": "ok"}}}
	outcome, err := ev.Eval(4, NewMemo())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Score != 3.5 || outcome.Aux != 2.0 || outcome.Notes != "ok" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestFunctionEvaluator_ObjectWithOkFalseScoresNegativeInfinity(t *testing.T) {
	ev := &FunctionEvaluator{Handle: &fakeHandle{result: map[string]any{"ok": false}}}
	outcome, err := ev.Eval(4, NewMemo())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Score != negativeInfinity {
		t.Fatalf("expected ok=false to score negativeInfinity, got %v", outcome.Score)
	}
}

func TestFunctionEvaluator_PropagatesInvocationError(t *testing.T) {
	ev := &FunctionEvaluator{Handle: &fakeHandle{err: errBoom}}
	if _, err := ev.Eval(4, NewMemo()); err == nil {
		t.Fatal("expected invocation error to propagate")
	}
}

func TestFunctionEvaluator_RejectsUnsupportedReturnType(t *testing.T) {
	ev := &FunctionEvaluator{Handle: &fakeHandle{result: []int{1, 2, 3}}}
	if _, err := ev.Eval(4, NewMemo()); err == nil {
		t.Fatal("expected error for unsupported return type")
	}
}

var errBoom = &dummyErr{"boom"}

type dummyErr struct{ msg string }

func (e *dummyErr) Error() string { return e.msg }
