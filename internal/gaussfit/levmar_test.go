package gaussfit

import (
	"math"
	"testing"
)

// linearResiduals builds an overdetermined linear system r = A*theta - b
// with a known exact solution, the simplest well-posed target for the
// solver.
func linearResiduals(sol []float64) (eval func(theta, resid []float64), m int) {
	a := [][]float64{
		{1, 0},
		{0, 1},
		{1, 1},
		{2, -1},
	}
	b := make([]float64, len(a))
	for k, row := range a {
		for j := range sol {
			b[k] += row[j] * sol[j]
		}
	}
	eval = func(theta, resid []float64) {
		for k, row := range a {
			r := -b[k]
			for j := range theta {
				r += row[j] * theta[j]
			}
			resid[k] = r
		}
	}
	return eval, len(a)
}

func TestLevmar_LinearExact(t *testing.T) {
	sol := []float64{3.5, -1.25}
	eval, m := linearResiduals(sol)

	got, converged := levmar(eval, []float64{0, 0}, m, FitConfig{}.withDefaults())
	if !converged {
		t.Error("linear system should converge")
	}
	for j := range sol {
		if math.Abs(got[j]-sol[j]) > 1e-3 {
			t.Errorf("theta[%d] = %v, want %v", j, got[j], sol[j])
		}
	}
}

func TestLevmar_ReturnsLastIterateOnBudget(t *testing.T) {
	sol := []float64{2, 2}
	eval, m := linearResiduals(sol)

	// Zero accepted iterations allowed beyond the budget: the start point
	// must come back untouched rather than an error.
	got, converged := levmar(eval, []float64{5, 5}, m, FitConfig{MaxIter: 1, Ftol: 1e-12, Xtol: 1e-12})
	if len(got) != 2 {
		t.Fatalf("iterate length = %d, want 2", len(got))
	}
	if converged {
		// One damped step on a linear system lands near but not at the
		// solution under tight tolerances.
		t.Error("tight tolerances with one iteration should not converge")
	}
	// The single step must still have improved on the start point.
	d0 := math.Hypot(5-sol[0], 5-sol[1])
	d1 := math.Hypot(got[0]-sol[0], got[1]-sol[1])
	if d1 >= d0 {
		t.Errorf("iterate did not improve: %v -> %v", d0, d1)
	}
}

func TestLevmar_NonFiniteStartReturnsStart(t *testing.T) {
	eval := func(theta, resid []float64) {
		resid[0] = math.NaN()
	}
	start := []float64{1.5}
	got, converged := levmar(eval, start, 1, FitConfig{}.withDefaults())
	if converged {
		t.Error("NaN residuals must not report convergence")
	}
	if got[0] != 1.5 {
		t.Errorf("iterate = %v, want untouched start", got[0])
	}
}

func TestNumJacobian_Linear(t *testing.T) {
	// The numeric Jacobian of a linear map is the map itself.
	eval, m := linearResiduals([]float64{0, 0})
	x := []float64{1, 2}
	r0 := make([]float64, m)
	eval(x, r0)
	scratch := make([]float64, m)
	jac := make([]float64, m*2)
	numJacobian(eval, x, r0, scratch, jac, m, 2)

	want := []float64{1, 0, 0, 1, 1, 1, 2, -1}
	for k := range want {
		if math.Abs(jac[k]-want[k]) > 1e-6 {
			t.Errorf("jac[%d] = %v, want %v", k, jac[k], want[k])
		}
	}
}
