package testutil

import (
	"math"
	"testing"
)

func TestAllNaN(t *testing.T) {
	if !AllNaN([]float64{math.NaN(), math.NaN()}) {
		t.Error("expected true for all-NaN slice")
	}
	if AllNaN([]float64{math.NaN(), 1}) {
		t.Error("expected false for mixed slice")
	}
	if !AllNaN(nil) {
		t.Error("expected true for empty slice")
	}
}

func TestAssertInDelta_Matching(t *testing.T) {
	fakeT := &testing.T{}
	AssertInDelta(fakeT, "v", 1.0005, 1.0, 1e-3)
	if fakeT.Failed() {
		t.Error("expected no failure for value within delta")
	}
}

func TestAssertInDelta_NaNFails(t *testing.T) {
	fakeT := &testing.T{}
	AssertInDelta(fakeT, "v", math.NaN(), 1.0, 1e-3)
	if !fakeT.Failed() {
		t.Error("expected failure for NaN value")
	}
}
