package caller

import "testing"

func TestFaultTraceDecodesInstruction(t *testing.T) {
	// 0xC3 is RET on x86-64.
	got := FaultTrace(0x1000, []byte{0xC3})
	if got == "" {
		t.Fatal("FaultTrace returned empty string")
	}
	if want := "0x1000"; !contains(got, want) {
		t.Fatalf("FaultTrace(%q) = %q, want it to mention %q", "ret", got, want)
	}
}

func TestFaultTraceUndecodableBytes(t *testing.T) {
	got := FaultTrace(0x2000, nil)
	if !contains(got, "undecodable") {
		t.Fatalf("FaultTrace(nil) = %q, want it to mention undecodable", got)
	}
}

func TestDistinctCallerDisabledByDefault(t *testing.T) {
	var dc Distinct_caller_t
	novel, _ := dc.Distinct()
	if novel {
		t.Fatal("Distinct should report false when Enabled is false")
	}
}

func TestDistinctCallerReportsOnceThenSuppresses(t *testing.T) {
	dc := Distinct_caller_t{Enabled: true}
	var results []bool
	// Calling from the same source line on every iteration keeps the call
	// site's program counter identical across iterations, so Distinct sees
	// one repeated path rather than N distinct ones.
	for i := 0; i < 2; i++ {
		novel, _ := dc.Distinct()
		results = append(results, novel)
	}
	if !results[0] {
		t.Fatal("first call through a new path should be reported as distinct")
	}
	if results[1] {
		t.Fatal("second call through the same path should not be reported again")
	}
	if dc.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", dc.Len())
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
