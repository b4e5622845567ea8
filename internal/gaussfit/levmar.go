package gaussfit

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// levmar implements Levenberg–Marquardt minimization of a sum of squared
// residuals with a forward-difference Jacobian. It is deliberately tuned for
// throughput over tight convergence: the caller passes loose ftol/xtol and a
// bounded iteration budget, and the last iterate is returned regardless of
// whether the tolerances were met.
//
// The damped normal equations (JᵀJ + λ·diag(JᵀJ)) dx = Jᵀr are assembled by
// hand for the small parameter count and solved with a Cholesky
// factorization; a failed factorization raises λ and retries rather than
// aborting the fit.

// sqrtEps is sqrt of the float64 machine epsilon, the forward-difference
// step scale.
const sqrtEps = 1.4901161193847656e-08

// numJacobian fills jac (m x n, row-major) with forward-difference
// derivatives of eval around x. r0 holds the residuals at x; scratch is a
// length-m buffer. x is restored before returning.
func numJacobian(eval func(theta, resid []float64), x, r0, scratch, jac []float64, m, n int) {
	for j := 0; j < n; j++ {
		h := sqrtEps * math.Abs(x[j])
		if h == 0 {
			h = sqrtEps
		}
		old := x[j]
		x[j] = old + h
		eval(x, scratch)
		x[j] = old
		inv := 1.0 / h
		for k := 0; k < m; k++ {
			jac[k*n+j] = (scratch[k] - r0[k]) * inv
		}
	}
}

// levmar minimizes ||resid(theta)||² starting from theta0, where eval fills
// a length-m residual vector for a given theta. Returns the last iterate and
// whether the ftol/xtol criteria were met within the budget.
func levmar(eval func(theta, resid []float64), theta0 []float64, m int, cfg FitConfig) ([]float64, bool) {
	n := len(theta0)
	x := append([]float64(nil), theta0...)
	r := make([]float64, m)
	rNew := make([]float64, m)
	scratch := make([]float64, m)
	jac := make([]float64, m*n)
	xNew := make([]float64, n)

	jtj := mat.NewSymDense(n, nil)
	damped := mat.NewSymDense(n, nil)
	jtr := mat.NewVecDense(n, nil)
	dx := mat.NewVecDense(n, nil)

	eval(x, r)
	cost := floats.Dot(r, r)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return x, false
	}

	lambda := 1e-3
	nu := 2.0
	converged := false

	for iter := 0; iter < cfg.MaxIter && !converged; iter++ {
		numJacobian(eval, x, r, scratch, jac, m, n)

		for i := 0; i < n; i++ {
			s := 0.0
			for k := 0; k < m; k++ {
				s += jac[k*n+i] * r[k]
			}
			jtr.SetVec(i, s)
			for j := i; j < n; j++ {
				s = 0.0
				for k := 0; k < m; k++ {
					s += jac[k*n+i] * jac[k*n+j]
				}
				jtj.SetSym(i, j, s)
			}
		}

		accepted := false
		for tries := 0; tries < 16 && !accepted; tries++ {
			for i := 0; i < n; i++ {
				for j := i + 1; j < n; j++ {
					damped.SetSym(i, j, jtj.At(i, j))
				}
				d := jtj.At(i, i)
				if d == 0 {
					d = 1
				}
				damped.SetSym(i, i, jtj.At(i, i)+lambda*d)
			}

			var chol mat.Cholesky
			if !chol.Factorize(damped) {
				lambda *= nu
				continue
			}
			if err := chol.SolveVecTo(dx, jtr); err != nil {
				lambda *= nu
				continue
			}
			stepSmall := true
			for i := 0; i < n; i++ {
				xNew[i] = x[i] - dx.AtVec(i)
				if math.Abs(dx.AtVec(i)) > cfg.Xtol*(math.Abs(x[i])+cfg.Xtol) {
					stepSmall = false
				}
			}

			eval(xNew, rNew)
			costNew := floats.Dot(rNew, rNew)
			if costNew < cost {
				drop := cost - costNew
				copy(x, xNew)
				r, rNew = rNew, r
				if drop <= cfg.Ftol*cost || stepSmall {
					converged = true
				}
				cost = costNew
				lambda = math.Max(lambda/3.0, 1e-12)
				nu = 2.0
				accepted = true
			} else if stepSmall && tries == 0 {
				// The near-Gauss-Newton step is already negligible; the
				// current iterate is the converged answer.
				converged = true
				accepted = true
			} else {
				lambda *= nu
				nu *= 2.0
			}
		}
		if !accepted {
			// Damping exhausted without an acceptable step; the current
			// iterate is as good as this budget gets.
			break
		}
	}
	return x, converged
}
