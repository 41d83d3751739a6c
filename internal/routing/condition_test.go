package routing

import "testing"

func TestCompileEqAndEval(t *testing.T) {
	cond, err := Compile("source == 'orgA'")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !cond.Eval(Event{"source": "orgA"}) {
		t.Error("expected match for orgA")
	}
	if cond.Eval(Event{"source": "orgB"}) {
		t.Error("expected no match for orgB")
	}
}

func TestCompileAndOrNot(t *testing.T) {
	cond, err := Compile("source == 'orgA' and not (channel == 'x')")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !cond.Eval(Event{"source": "orgA", "channel": "y"}) {
		t.Error("expected match")
	}
	if cond.Eval(Event{"source": "orgA", "channel": "x"}) {
		t.Error("expected no match when channel is x")
	}
}

func TestCompileIn(t *testing.T) {
	cond, err := Compile("data.op in ['created', 'updated']")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	evt := Event{"data": map[string]any{"op": "updated"}}
	if !cond.Eval(evt) {
		t.Error("expected match for updated")
	}
	evt2 := Event{"data": map[string]any{"op": "deleted"}}
	if cond.Eval(evt2) {
		t.Error("expected no match for deleted")
	}
}

func TestMissingPathComparesNullFalse(t *testing.T) {
	cond, err := Compile("missing.path == 'x'")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if cond.Eval(Event{}) {
		t.Error("expected missing path comparison to be false")
	}

	nullCond, err := Compile("missing.path == null")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !nullCond.Eval(Event{}) {
		t.Error("expected missing path to equal null")
	}
}

func TestCompileMalformedExpressionFails(t *testing.T) {
	if _, err := Compile("source =="); err == nil {
		t.Fatal("expected error for malformed expression")
	}
}
