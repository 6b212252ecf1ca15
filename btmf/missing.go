package btmf

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// RandomMissing builds a sparse observation matrix from dense by hiding
// each non-zero entry independently with probability ratio. The caller
// supplies the RNG so experiment masks stay reproducible and separate
// from the sampler's stream.
func RandomMissing(dense *mat.Dense, ratio float64, rng *rand.Rand) (*mat.Dense, error) {
	if ratio < 0 || ratio >= 1 {
		return nil, fmt.Errorf("btmf: missing ratio must be in [0, 1), got %v", ratio)
	}
	if rng == nil {
		return nil, fmt.Errorf("btmf: nil rng")
	}
	rows, cols := dense.Dims()
	out := mat.DenseCopyOf(dense)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if out.At(i, j) != 0 && rng.Float64() < ratio {
				out.Set(i, j, 0)
			}
		}
	}
	return out, nil
}
