// Package btmf implements Bayesian Temporal Matrix Factorization for
// imputing missing values in spatiotemporal measurement matrices.
//
// The model factorizes a partially observed dim1 x dim2 matrix into a
// spatial loading matrix W and a temporal factor matrix X whose rows
// evolve under a vector-autoregressive process over a configurable set of
// time lags. A Gibbs sampler cycles through conjugate conditional updates
// for W, its Normal-Wishart hyperparameters, the VAR coefficients and
// innovation covariance, X, and the observation-noise precision. After a
// burn-in phase, draws from a trailing collection window are averaged
// into posterior-mean estimates, including a one-step-ahead forecast
// column appended to the reconstruction.
package btmf

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Fixed hyper-hyperparameters of the conjugate priors.
const (
	loadingBeta0 = 1.0  // Normal-Wishart precision scale for the loading prior mean
	gammaAlpha0  = 1e-6 // Gamma prior shape for the noise precision
	gammaBeta0   = 1e-6 // Gamma prior rate for the noise precision
)

// Config specifies a BTMF sampler.
type Config struct {
	Rank       int   // number of latent factors
	TimeLags   []int // VAR lags, positive and strictly increasing
	Iterations int   // total Gibbs sweeps (burn-in plus collection)
	Samples    int   // trailing collection window averaged into the estimates

	// Seed for the sampler's random stream. Zero selects a time-based
	// seed; any other value makes runs bit-for-bit reproducible.
	Seed uint64

	// Optional starting factors. When nil, small-magnitude random
	// matrices are drawn from the sampler's stream.
	InitW *mat.Dense // dim1 x Rank
	InitX *mat.Dense // dim2 x Rank

	// Progress receives burn-in RMSE lines and the final summary.
	// Nil disables diagnostic output.
	Progress io.Writer
}

// BTMF is a configured Bayesian Temporal Matrix Factorization sampler.
// A single instance owns one random stream; concurrent Run calls on the
// same instance are not supported.
type BTMF struct {
	rank     int
	lags     []int
	iters    int
	samples  int
	progress io.Writer
	initW    *mat.Dense
	initX    *mat.Dense

	src rand.Source
	rng *rand.Rand
}

// New validates cfg and creates a sampler.
func New(cfg Config) (*BTMF, error) {
	if cfg.Rank <= 0 {
		return nil, fmt.Errorf("btmf: rank must be positive, got %d", cfg.Rank)
	}
	if len(cfg.TimeLags) == 0 {
		return nil, fmt.Errorf("btmf: at least one time lag is required")
	}
	prev := 0
	for _, lag := range cfg.TimeLags {
		if lag <= prev {
			return nil, fmt.Errorf("btmf: time lags must be positive and strictly increasing, got %v", cfg.TimeLags)
		}
		prev = lag
	}
	if cfg.Samples <= 0 {
		return nil, fmt.Errorf("btmf: samples must be positive, got %d", cfg.Samples)
	}
	if cfg.Iterations < cfg.Samples {
		return nil, fmt.Errorf("btmf: iterations (%d) must be at least samples (%d)", cfg.Iterations, cfg.Samples)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewPCG(seed, seed)

	return &BTMF{
		rank:     cfg.Rank,
		lags:     append([]int(nil), cfg.TimeLags...),
		iters:    cfg.Iterations,
		samples:  cfg.Samples,
		progress: cfg.Progress,
		initW:    cfg.InitW,
		initX:    cfg.InitX,
		src:      src,
		rng:      rand.New(src),
	}, nil
}

// Result holds the posterior-mean estimates from a run.
type Result struct {
	// MatHat is the averaged reconstruction, dim1 x (dim2+1); the last
	// column is the one-step-ahead forecast.
	MatHat *mat.Dense
	// W is the averaged loading matrix, dim1 x rank.
	W *mat.Dense
	// X is the averaged temporal factor matrix extended by one step,
	// (dim2+1) x rank.
	X *mat.Dense
	// A is the averaged VAR coefficient tensor, rank x rank x d.
	A *Tensor3
	// RMSE and MAPE are scored over the held-out positions (entries
	// known in dense but absent from sparse); NaN when none exist.
	RMSE float64
	MAPE float64

	lags []int
}

// Run executes the Gibbs sampler. dense is the reference matrix used only
// for held-out evaluation (zeros mark unknown entries); sparse holds the
// observed entries, with zeros at unobserved positions. Both are left
// unmodified.
func (b *BTMF) Run(dense, sparse *mat.Dense) (*Result, error) {
	dim1, dim2 := sparse.Dims()
	if dr, dc := dense.Dims(); dr != dim1 || dc != dim2 {
		return nil, fmt.Errorf("btmf: dense is %dx%d but sparse is %dx%d", dr, dc, dim1, dim2)
	}
	tmax := b.lags[len(b.lags)-1]
	if tmax >= dim2 {
		return nil, fmt.Errorf("btmf: max time lag %d must be smaller than the series length %d", tmax, dim2)
	}

	W, err := b.initFactor(b.initW, dim1, "InitW")
	if err != nil {
		return nil, err
	}
	X, err := b.initFactor(b.initX, dim2, "InitX")
	if err != nil {
		return nil, err
	}

	binary := mat.NewDense(dim1, dim2, nil)
	obs := 0
	for i := 0; i < dim1; i++ {
		for t := 0; t < dim2; t++ {
			if sparse.At(i, t) != 0 {
				binary.Set(i, t, 1)
				obs++
			}
		}
	}
	evalPos, err := HeldOutPositions(dense, sparse)
	if err != nil {
		return nil, err
	}

	s := &runState{
		b:      b,
		dim1:   dim1,
		dim2:   dim2,
		rank:   b.rank,
		d:      len(b.lags),
		tmax:   tmax,
		tmin:   b.lags[0],
		sparse: sparse,
		binary: binary,
		obs:    obs,
		W:      W,
		X:      X,
		A:      NewTensor3(b.rank, b.rank, len(b.lags)),
		tau:    1,
	}

	burn := b.iters - b.samples
	wSum := mat.NewDense(dim1, b.rank, nil)
	xSum := mat.NewDense(dim2+1, b.rank, nil)
	matSum := mat.NewDense(dim1, dim2+1, nil)
	aSum := NewTensor3(b.rank, b.rank, len(b.lags))
	matHat := mat.NewDense(dim1, dim2, nil)
	xExt := mat.NewDense(dim2+1, b.rank, nil)

	for it := 1; it <= b.iters; it++ {
		mu, lambda, err := s.sampleLoadingHyper()
		if err != nil {
			return nil, fmt.Errorf("btmf: iteration %d: %w", it, err)
		}
		if err := s.sampleLoading(mu, lambda); err != nil {
			return nil, fmt.Errorf("btmf: iteration %d: %w", it, err)
		}
		if err := s.sampleVARPrior(); err != nil {
			return nil, fmt.Errorf("btmf: iteration %d: %w", it, err)
		}
		if err := s.sampleTemporal(); err != nil {
			return nil, fmt.Errorf("btmf: iteration %d: %w", it, err)
		}
		matHat.Mul(s.W, s.X.T())
		s.samplePrecision(matHat)

		if it <= burn && it%200 == 0 && b.progress != nil && len(evalPos) > 0 {
			rmse := RMSE(gatherAt(dense, evalPos), gatherAt(matHat, evalPos))
			fmt.Fprintf(b.progress, "iter %d: held-out rmse %.6f\n", it, rmse)
		}

		if it > burn {
			wSum.Add(wSum, s.W)
			aSum.Add(s.A)
			xExt.Copy(s.X)
			xExt.SetRow(dim2, nextLatent(s.A, s.X, b.lags, dim2))
			xSum.Add(xSum, xExt)
			var rec mat.Dense
			rec.Mul(s.W, xExt.T())
			matSum.Add(matSum, &rec)
		}
	}

	inv := 1 / float64(b.samples)
	wSum.Scale(inv, wSum)
	xSum.Scale(inv, xSum)
	matSum.Scale(inv, matSum)
	aSum.Scale(inv)

	res := &Result{
		MatHat: matSum,
		W:      wSum,
		X:      xSum,
		A:      aSum,
		RMSE:   math.NaN(),
		MAPE:   math.NaN(),
		lags:   append([]int(nil), b.lags...),
	}
	if len(evalPos) > 0 {
		truth := gatherAt(dense, evalPos)
		estimate := gatherAt(matSum, evalPos)
		res.RMSE = RMSE(truth, estimate)
		res.MAPE = MAPE(truth, estimate)
	}
	if b.iters >= 100 && b.progress != nil && len(evalPos) > 0 {
		fmt.Fprintf(b.progress, "final mape %.6f rmse %.6f\n", res.MAPE, res.RMSE)
	}
	return res, nil
}

// initFactor clones a provided starting factor after shape checks, or
// draws a fresh small-magnitude random one.
func (b *BTMF) initFactor(init *mat.Dense, rows int, name string) (*mat.Dense, error) {
	if init != nil {
		r, c := init.Dims()
		if r != rows || c != b.rank {
			return nil, fmt.Errorf("btmf: %s is %dx%d, want %dx%d", name, r, c, rows, b.rank)
		}
		return mat.DenseCopyOf(init), nil
	}
	out := mat.NewDense(rows, b.rank, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < b.rank; j++ {
			out.Set(i, j, 0.1*b.rng.Float64())
		}
	}
	return out, nil
}
