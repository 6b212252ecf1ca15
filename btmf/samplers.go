package btmf

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// runState is the working set of one Run call: the factors, the current
// VAR coefficients and innovation precision, and the noise precision. It
// is owned exclusively by the controller loop.
type runState struct {
	b *BTMF

	dim1, dim2 int
	rank, d    int
	tmax, tmin int

	sparse *mat.Dense
	binary *mat.Dense
	obs    int

	W        *mat.Dense
	X        *mat.Dense
	A        *Tensor3
	sigmaInv *mat.SymDense
	tau      float64
}

// sampleLoadingHyper draws fresh Normal-Wishart hyperparameters (mu,
// Lambda) for the loading rows from their posterior given the current W,
// against the fixed hyperprior beta0=1, nu0=rank, mu0=0, W0=I.
func (s *runState) sampleLoadingHyper() (*mat.VecDense, *mat.SymDense, error) {
	r := s.rank
	n := float64(s.dim1)

	wbar := make([]float64, r)
	for j := 0; j < r; j++ {
		sum := 0.0
		for i := 0; i < s.dim1; i++ {
			sum += s.W.At(i, j)
		}
		wbar[j] = sum / n
	}
	scatter := ScatterMatrix(s.W)

	// Posterior Wishart scale: inv(W0^-1 + S + n*beta0/(n+beta0) * wbar wbar^T).
	c := n * loadingBeta0 / (n + loadingBeta0)
	prec0 := mat.NewSymDense(r, nil)
	for a := 0; a < r; a++ {
		for e := a; e < r; e++ {
			v := scatter.At(a, e) + c*wbar[a]*wbar[e]
			if a == e {
				v++
			}
			prec0.SetSym(a, e, v)
		}
	}
	scale, err := invertSym(prec0)
	if err != nil {
		return nil, nil, err
	}
	lambda, err := s.b.wishartRand(scale, n+float64(r))
	if err != nil {
		return nil, nil, err
	}

	// Mean draw conditioned on the sampled precision.
	muBar := make([]float64, r)
	for j := range muBar {
		muBar[j] = n * wbar[j] / (n + loadingBeta0)
	}
	muPrec := mat.NewSymDense(r, nil)
	for a := 0; a < r; a++ {
		for e := a; e < r; e++ {
			muPrec.SetSym(a, e, (n+loadingBeta0)*lambda.At(a, e))
		}
	}
	muDraw, err := s.b.gaussianPrecisionRand(muBar, muPrec)
	if err != nil {
		return nil, nil, err
	}
	return mat.NewVecDense(r, muDraw), lambda, nil
}

// sampleLoading redraws every row of W from its Gaussian conditional. The
// per-row normal-equations precisions are built in one batch through the
// Khatri-Rao squared form of the start-of-sweep X; each row then inverts
// its own precision and draws independently.
func (s *runState) sampleLoading(mu *mat.VecDense, lambda *mat.SymDense) error {
	r := s.rank

	var xt mat.Dense
	xt.CloneFrom(s.X.T()) // rank x dim2 snapshot
	kr, err := KhatriRao(&xt, &xt)
	if err != nil {
		return err
	}
	var maskPrec mat.Dense
	maskPrec.Mul(kr, s.binary.T()) // rank^2 x dim1, column i is X^T diag(mask_i) X
	var dataLin mat.Dense
	dataLin.Mul(&xt, s.sparse.T()) // rank x dim1
	var lambdaMu mat.VecDense
	lambdaMu.MulVec(lambda, mu)

	prec := mat.NewDense(r, r, nil)
	linear := mat.NewVecDense(r, nil)
	for i := 0; i < s.dim1; i++ {
		for a := 0; a < r; a++ {
			for c := 0; c < r; c++ {
				prec.Set(a, c, s.tau*maskPrec.At(a*r+c, i)+lambda.At(a, c))
			}
			linear.SetVec(a, s.tau*dataLin.At(a, i)+lambdaMu.AtVec(a))
		}
		row, err := s.b.gaussianNaturalRand(linear, symmetrize(prec))
		if err != nil {
			return err
		}
		s.W.SetRow(i, row)
	}
	return nil
}

// sampleVARPrior draws the VAR coefficient tensor A and innovation
// covariance from their Matrix-Normal-Inverse-Wishart posterior given the
// current X, against the fixed hyperprior Psi0=I, M0=0, S0=I, nu0=rank.
// It refreshes s.A and s.sigmaInv.
func (s *runState) sampleVARPrior() error {
	r, d := s.rank, s.d
	n := s.dim2 - s.tmax

	z := mat.DenseCopyOf(s.X.Slice(s.tmax, s.dim2, 0, r))
	q := mat.NewDense(n, r*d, nil)
	for t := 0; t < n; t++ {
		for k, lag := range s.b.lags {
			src := s.tmax + t - lag
			for j := 0; j < r; j++ {
				q.Set(t, k*r+j, s.X.At(src, j))
			}
		}
	}

	var qtq mat.Dense
	qtq.Mul(q.T(), q)
	psiInv := mat.NewSymDense(r*d, nil)
	for a := 0; a < r*d; a++ {
		for e := a; e < r*d; e++ {
			v := 0.5 * (qtq.At(a, e) + qtq.At(e, a))
			if a == e {
				v++
			}
			psiInv.SetSym(a, e, v)
		}
	}
	psi, err := invertSym(psiInv)
	if err != nil {
		return err
	}
	var qtz, m mat.Dense
	qtz.Mul(q.T(), z)
	m.Mul(psi, &qtz)

	var ztz, pim, mpm mat.Dense
	ztz.Mul(z.T(), z)
	pim.Mul(psiInv, &m)
	mpm.Mul(m.T(), &pim)
	scale := mat.NewSymDense(r, nil)
	for a := 0; a < r; a++ {
		for e := a; e < r; e++ {
			v := 0.5*(ztz.At(a, e)+ztz.At(e, a)) - 0.5*(mpm.At(a, e)+mpm.At(e, a))
			if a == e {
				v++
			}
			scale.SetSym(a, e, v)
		}
	}

	sigma, err := s.b.inverseWishartRand(scale, float64(r+n))
	if err != nil {
		return err
	}
	amat, err := s.b.matrixNormalRand(&m, psi, sigma)
	if err != nil {
		return err
	}

	// One rank x rank slab per lag; block k of the (rank*d) x rank draw is
	// the transposed coefficient matrix for lag k.
	for k := 0; k < d; k++ {
		for i := 0; i < r; i++ {
			for j := 0; j < r; j++ {
				s.A.Set(i, j, k, amat.At(k*r+j, i))
			}
		}
	}
	s.sigmaInv, err = invertSym(sigma)
	return err
}

// sampleTemporal redraws every row of X from a Gaussian conditional
// combining the data term, the backward VAR prediction, and the forward
// contributions of X[t] to every valid future target. Neighbor rows are
// read from a start-of-sweep snapshot, so row draws are independent
// within the sweep.
func (s *runState) sampleTemporal() error {
	r, d := s.rank, s.d
	lags := s.b.lags

	xOld := mat.DenseCopyOf(s.X)
	aun := s.A.Unfold(0) // rank x rank*d
	slabs := make([]*mat.Dense, d)
	akSig := make([]*mat.Dense, d)
	akSigAk := make([]*mat.Dense, d)
	for k := 0; k < d; k++ {
		slabs[k] = s.A.Slab(k)
		var t1 mat.Dense
		t1.Mul(slabs[k].T(), s.sigmaInv)
		akSig[k] = mat.DenseCopyOf(&t1)
		var t2 mat.Dense
		t2.Mul(&t1, slabs[k])
		akSigAk[k] = mat.DenseCopyOf(&t2)
	}

	prec := mat.NewDense(r, r, nil)
	linear := mat.NewVecDense(r, nil)
	hist := mat.NewVecDense(r*d, nil)
	resid := mat.NewVecDense(r, nil)
	tmp := mat.NewVecDense(r, nil)
	qt := mat.NewVecDense(r, nil)

	for t := 0; t < s.dim2; t++ {
		prec.Zero()
		linear.Zero()

		// Data term from the entries observed at time t. A fully
		// unobserved time step leaves it zero and the draw collapses to
		// the prior terms below.
		for i := 0; i < s.dim1; i++ {
			if s.binary.At(i, t) == 0 {
				continue
			}
			y := s.sparse.At(i, t)
			for a := 0; a < r; a++ {
				wa := s.W.At(i, a)
				linear.SetVec(a, linear.AtVec(a)+s.tau*wa*y)
				for c := 0; c < r; c++ {
					prec.Set(a, c, prec.At(a, c)+s.tau*wa*s.W.At(i, c))
				}
			}
		}

		// Backward term: pull X[t] toward its autoregressive forecast.
		if t >= s.tmax {
			for k, lag := range lags {
				for j := 0; j < r; j++ {
					hist.SetVec(k*r+j, xOld.At(t-lag, j))
				}
			}
			tmp.MulVec(aun, hist)
			qt.MulVec(s.sigmaInv, tmp)
			linear.AddVec(linear, qt)
		}

		// Forward terms: X[t] also predicts X[t+lag_k] for every lag
		// whose target has a fully valid regression window, i.e.
		// tmax <= t+lag_k < dim2.
		if t < s.dim2-s.tmin {
			for k, lag := range lags {
				target := t + lag
				if target < s.tmax || target >= s.dim2 {
					continue
				}
				for a := 0; a < r; a++ {
					for c := 0; c < r; c++ {
						prec.Set(a, c, prec.At(a, c)+akSigAk[k].At(a, c))
					}
				}
				// Residual of the target's regression with lag k's own
				// contribution left out, summed slab by slab.
				for a := 0; a < r; a++ {
					resid.SetVec(a, xOld.At(target, a))
				}
				for j, lagJ := range lags {
					if j == k {
						continue
					}
					src := target - lagJ
					for a := 0; a < r; a++ {
						v := resid.AtVec(a)
						for c := 0; c < r; c++ {
							v -= s.A.At(a, c, j) * xOld.At(src, c)
						}
						resid.SetVec(a, v)
					}
				}
				tmp.MulVec(akSig[k], resid)
				linear.AddVec(linear, tmp)
			}
		}

		// Prior term: innovation precision in the interior, identity
		// regularization where no backward regression exists.
		if t < s.tmax {
			for a := 0; a < r; a++ {
				prec.Set(a, a, prec.At(a, a)+1)
			}
		} else {
			for a := 0; a < r; a++ {
				for c := 0; c < r; c++ {
					prec.Set(a, c, prec.At(a, c)+s.sigmaInv.At(a, c))
				}
			}
		}

		row, err := s.b.gaussianNaturalRand(linear, symmetrize(prec))
		if err != nil {
			return err
		}
		s.X.SetRow(t, row)
	}
	return nil
}

// samplePrecision redraws the observation-noise precision from its Gamma
// posterior given the residuals of the current reconstruction over the
// observed entries.
func (s *runState) samplePrecision(matHat *mat.Dense) {
	sum := 0.0
	for i := 0; i < s.dim1; i++ {
		for t := 0; t < s.dim2; t++ {
			if s.binary.At(i, t) == 0 {
				continue
			}
			d := s.sparse.At(i, t) - matHat.At(i, t)
			sum += d * d
		}
	}
	g := distuv.Gamma{
		Alpha: gammaAlpha0 + 0.5*float64(s.obs),
		Beta:  gammaBeta0 + 0.5*sum,
		Src:   s.b.src,
	}
	s.tau = g.Rand()
}
