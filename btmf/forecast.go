package btmf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// nextLatent predicts the latent vector at time t by applying the VAR
// coefficients to rows t-lag_k of x.
func nextLatent(a *Tensor3, x *mat.Dense, lags []int, t int) []float64 {
	r, _, _ := a.Dims()
	out := make([]float64, r)
	for k, lag := range lags {
		src := t - lag
		for i := 0; i < r; i++ {
			v := 0.0
			for j := 0; j < r; j++ {
				v += a.At(i, j, k) * x.At(src, j)
			}
			out[i] += v
		}
	}
	return out
}

// Forecast rolls the averaged VAR dynamics forward from the end of the
// extended temporal matrix and reconstructs the corresponding
// measurements. The returned matrix is dim1 x steps, covering the steps
// immediately after the forecast column already present in MatHat.
func (r *Result) Forecast(steps int) (*mat.Dense, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("btmf: forecast steps must be positive, got %d", steps)
	}
	rows, rank := r.X.Dims()
	ext := mat.NewDense(rows+steps, rank, nil)
	ext.Copy(r.X)
	for s := 0; s < steps; s++ {
		ext.SetRow(rows+s, nextLatent(r.A, ext, r.lags, rows+s))
	}
	future := ext.Slice(rows, rows+steps, 0, rank)
	var out mat.Dense
	out.Mul(r.W, future.T())
	return &out, nil
}
