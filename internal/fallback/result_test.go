package fallback

import "testing"

func TestExactAndDegraded(t *testing.T) {
	e := Exact(12.5)
	if !e.IsExact() || e.IsDegraded() || e.Value != 12.5 || e.Reason != "" {
		t.Fatalf("unexpected exact result: %+v", e)
	}
	d := Degraded(3.0, "routing: timeout")
	if d.IsExact() || !d.IsDegraded() || d.Value != 3.0 || d.Reason != "routing: timeout" {
		t.Fatalf("unexpected degraded result: %+v", d)
	}
	var zero Result[string]
	if zero.IsExact() {
		t.Fatalf("zero value must not claim to be exact")
	}
}
