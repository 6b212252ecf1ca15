package btmf

import (
	"errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmat"
	"gonum.org/v1/gonum/stat/distmv"
)

// wishartRand draws a precision matrix from a Wishart distribution with
// the given scale and degrees of freedom.
func (b *BTMF) wishartRand(scale *mat.SymDense, nu float64) (*mat.SymDense, error) {
	_, usable, err := safeCholesky(scale)
	if err != nil {
		return nil, err
	}
	w, ok := distmat.NewWishart(usable, nu, b.src)
	if !ok {
		return nil, errors.New("btmf: invalid Wishart parameters")
	}
	out := mat.NewSymDense(scale.SymmetricDim(), nil)
	w.RandSymTo(out)
	return out, nil
}

// inverseWishartRand draws a covariance matrix from an Inverse-Wishart
// distribution with the given scale and degrees of freedom, by drawing
// from the Wishart with inverted scale and inverting the draw.
func (b *BTMF) inverseWishartRand(scale *mat.SymDense, nu float64) (*mat.SymDense, error) {
	inv, err := invertSym(scale)
	if err != nil {
		return nil, err
	}
	draw, err := b.wishartRand(inv, nu)
	if err != nil {
		return nil, err
	}
	return invertSym(draw)
}

// matrixNormalRand draws a sample M + L_U Z L_V^T from the matrix-normal
// distribution with mean matrix mean (p x q), row covariance rowCov
// (p x p) and column covariance colCov (q x q).
func (b *BTMF) matrixNormalRand(mean mat.Matrix, rowCov, colCov *mat.SymDense) (*mat.Dense, error) {
	p, q := mean.Dims()
	cholU, _, err := safeCholesky(rowCov)
	if err != nil {
		return nil, err
	}
	cholV, _, err := safeCholesky(colCov)
	if err != nil {
		return nil, err
	}
	lu := mat.NewTriDense(p, mat.Lower, nil)
	cholU.LTo(lu)
	lv := mat.NewTriDense(q, mat.Lower, nil)
	cholV.LTo(lv)

	z := mat.NewDense(p, q, nil)
	for i := 0; i < p; i++ {
		for j := 0; j < q; j++ {
			z.Set(i, j, b.rng.NormFloat64())
		}
	}

	var lz, out mat.Dense
	lz.Mul(lu, z)
	out.Mul(&lz, lv.T())
	out.Add(&out, mean)
	return &out, nil
}

// gaussianPrecisionRand draws from a multivariate Gaussian specified by
// its mean and precision matrix.
func (b *BTMF) gaussianPrecisionRand(mean []float64, prec *mat.SymDense) ([]float64, error) {
	_, usable, err := safeCholesky(prec)
	if err != nil {
		return nil, err
	}
	norm, ok := distmv.NewNormalPrecision(mean, usable, b.src)
	if !ok {
		return nil, errors.New("btmf: precision matrix not positive definite")
	}
	return norm.Rand(nil), nil
}

// gaussianNaturalRand draws from the Gaussian given in natural form: a
// precision matrix and the linear term. The mean is recovered by solving
// prec * mu = linear against the symmetrized precision.
func (b *BTMF) gaussianNaturalRand(linear *mat.VecDense, prec *mat.SymDense) ([]float64, error) {
	chol, usable, err := safeCholesky(prec)
	if err != nil {
		return nil, err
	}
	n := linear.Len()
	var mu mat.VecDense
	if err := chol.SolveVecTo(&mu, linear); err != nil {
		return nil, err
	}
	mean := make([]float64, n)
	for i := 0; i < n; i++ {
		mean[i] = mu.AtVec(i)
	}
	norm, ok := distmv.NewNormalPrecision(mean, usable, b.src)
	if !ok {
		return nil, errors.New("btmf: precision matrix not positive definite")
	}
	return norm.Rand(nil), nil
}
