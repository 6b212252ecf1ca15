package btmf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// RMSE returns the root-mean-square error between truth and estimate.
// The slices must have equal non-zero length; otherwise NaN is returned.
func RMSE(truth, estimate []float64) float64 {
	if len(truth) == 0 || len(truth) != len(estimate) {
		return math.NaN()
	}
	sum := 0.0
	for i, v := range truth {
		d := v - estimate[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(truth)))
}

// MAPE returns the mean absolute percentage error between truth and
// estimate. Entries with zero ground truth are skipped to avoid division
// by zero; NaN is returned when no scorable entries remain or the slice
// lengths differ.
func MAPE(truth, estimate []float64) float64 {
	if len(truth) == 0 || len(truth) != len(estimate) {
		return math.NaN()
	}
	sum := 0.0
	n := 0
	for i, v := range truth {
		if v == 0 {
			continue
		}
		sum += math.Abs((v - estimate[i]) / v)
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// HeldOutPositions returns the evaluation positions: entries known in
// dense but absent from sparse (dense non-zero, sparse zero).
func HeldOutPositions(dense, sparse *mat.Dense) ([][2]int, error) {
	dr, dc := dense.Dims()
	sr, sc := sparse.Dims()
	if dr != sr || dc != sc {
		return nil, fmt.Errorf("btmf: dense is %dx%d but sparse is %dx%d", dr, dc, sr, sc)
	}
	var pos [][2]int
	for i := 0; i < dr; i++ {
		for j := 0; j < dc; j++ {
			if dense.At(i, j) != 0 && sparse.At(i, j) == 0 {
				pos = append(pos, [2]int{i, j})
			}
		}
	}
	return pos, nil
}

// gatherAt collects the values of m at the given positions.
func gatherAt(m mat.Matrix, pos [][2]int) []float64 {
	out := make([]float64, len(pos))
	for i, p := range pos {
		out[i] = m.At(p[0], p[1])
	}
	return out
}

// RowMeanImpute fills the zero entries of sparse with the mean of the
// observed entries in the same row, the naive baseline for imputation
// comparisons. Rows with no observed entries stay zero.
func RowMeanImpute(sparse *mat.Dense) *mat.Dense {
	rows, cols := sparse.Dims()
	out := mat.DenseCopyOf(sparse)
	for i := 0; i < rows; i++ {
		sum := 0.0
		n := 0
		for j := 0; j < cols; j++ {
			if v := sparse.At(i, j); v != 0 {
				sum += v
				n++
			}
		}
		if n == 0 {
			continue
		}
		mean := sum / float64(n)
		for j := 0; j < cols; j++ {
			if sparse.At(i, j) == 0 {
				out.Set(i, j, mean)
			}
		}
	}
	return out
}
