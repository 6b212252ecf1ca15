package btmf

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// KhatriRao computes the column-wise Kronecker product of a (m x r) and
// b (n x r). Column k of the result is the outer product of column k of a
// and column k of b, flattened row-major, giving a (m*n) x r matrix.
func KhatriRao(a, b mat.Matrix) (*mat.Dense, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != bc {
		return nil, fmt.Errorf("khatri-rao: column count mismatch: %d vs %d", ac, bc)
	}
	out := mat.NewDense(ar*br, ac, nil)
	for c := 0; c < ac; c++ {
		for i := 0; i < ar; i++ {
			av := a.At(i, c)
			for j := 0; j < br; j++ {
				out.Set(i*br+j, c, av*b.At(j, c))
			}
		}
	}
	return out, nil
}

// Tensor3 is a dense three-way tensor stored column-major, so mode
// unfoldings follow the Fortran-order convention: Unfold then Fold with
// the same mode reproduces the tensor exactly.
type Tensor3 struct {
	n1, n2, n3 int
	data       []float64
}

// NewTensor3 creates a zero tensor with the given dimensions.
func NewTensor3(n1, n2, n3 int) *Tensor3 {
	if n1 <= 0 || n2 <= 0 || n3 <= 0 {
		panic("btmf: non-positive tensor dimension")
	}
	return &Tensor3{n1: n1, n2: n2, n3: n3, data: make([]float64, n1*n2*n3)}
}

// Dims returns the tensor dimensions.
func (t *Tensor3) Dims() (n1, n2, n3 int) { return t.n1, t.n2, t.n3 }

// At returns the element at (i, j, k).
func (t *Tensor3) At(i, j, k int) float64 {
	return t.data[i+t.n1*j+t.n1*t.n2*k]
}

// Set assigns the element at (i, j, k).
func (t *Tensor3) Set(i, j, k int, v float64) {
	t.data[i+t.n1*j+t.n1*t.n2*k] = v
}

// Slab returns frontal slice k, the n1 x n2 matrix T[:, :, k].
func (t *Tensor3) Slab(k int) *mat.Dense {
	out := mat.NewDense(t.n1, t.n2, nil)
	for i := 0; i < t.n1; i++ {
		for j := 0; j < t.n2; j++ {
			out.Set(i, j, t.At(i, j, k))
		}
	}
	return out
}

// Add accumulates o into t element-wise. Dimensions must match.
func (t *Tensor3) Add(o *Tensor3) {
	if t.n1 != o.n1 || t.n2 != o.n2 || t.n3 != o.n3 {
		panic("btmf: tensor dimension mismatch")
	}
	for i, v := range o.data {
		t.data[i] += v
	}
}

// Scale multiplies every element of t by f.
func (t *Tensor3) Scale(f float64) {
	for i := range t.data {
		t.data[i] *= f
	}
}

// Unfold returns the mode-m unfolding of t: the chosen axis becomes rows
// and the remaining axes are flattened column-major in their original
// order. Mode 0 yields n1 x (n2*n3) with T[i,j,k] at (i, j + n2*k).
func (t *Tensor3) Unfold(mode int) *mat.Dense {
	var out *mat.Dense
	switch mode {
	case 0:
		out = mat.NewDense(t.n1, t.n2*t.n3, nil)
		for k := 0; k < t.n3; k++ {
			for j := 0; j < t.n2; j++ {
				for i := 0; i < t.n1; i++ {
					out.Set(i, j+t.n2*k, t.At(i, j, k))
				}
			}
		}
	case 1:
		out = mat.NewDense(t.n2, t.n1*t.n3, nil)
		for k := 0; k < t.n3; k++ {
			for j := 0; j < t.n2; j++ {
				for i := 0; i < t.n1; i++ {
					out.Set(j, i+t.n1*k, t.At(i, j, k))
				}
			}
		}
	case 2:
		out = mat.NewDense(t.n3, t.n1*t.n2, nil)
		for k := 0; k < t.n3; k++ {
			for j := 0; j < t.n2; j++ {
				for i := 0; i < t.n1; i++ {
					out.Set(k, i+t.n1*j, t.At(i, j, k))
				}
			}
		}
	default:
		panic("btmf: invalid unfold mode")
	}
	return out
}

// Fold rebuilds a tensor with the given dimensions from its mode-m
// unfolding. It is the exact inverse of Unfold.
func Fold(m mat.Matrix, dims [3]int, mode int) (*Tensor3, error) {
	if mode < 0 || mode > 2 {
		return nil, fmt.Errorf("fold: invalid mode %d", mode)
	}
	r, c := m.Dims()
	if r != dims[mode] || r*c != dims[0]*dims[1]*dims[2] {
		return nil, fmt.Errorf("fold: matrix %dx%d does not match dims %v mode %d", r, c, dims, mode)
	}
	t := NewTensor3(dims[0], dims[1], dims[2])
	for k := 0; k < t.n3; k++ {
		for j := 0; j < t.n2; j++ {
			for i := 0; i < t.n1; i++ {
				switch mode {
				case 0:
					t.Set(i, j, k, m.At(i, j+t.n2*k))
				case 1:
					t.Set(i, j, k, m.At(j, i+t.n1*k))
				case 2:
					t.Set(i, j, k, m.At(k, i+t.n1*j))
				}
			}
		}
	}
	return t, nil
}

// ScatterMatrix returns the k x k scatter of an n x k matrix about its
// column mean: the sum (not average) of outer products of centered rows.
func ScatterMatrix(x mat.Matrix) *mat.SymDense {
	n, k := x.Dims()
	means := make([]float64, k)
	for j := 0; j < k; j++ {
		s := 0.0
		for i := 0; i < n; i++ {
			s += x.At(i, j)
		}
		means[j] = s / float64(n)
	}
	out := mat.NewSymDense(k, nil)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			s := 0.0
			for i := 0; i < n; i++ {
				s += (x.At(i, a) - means[a]) * (x.At(i, b) - means[b])
			}
			out.SetSym(a, b, s)
		}
	}
	return out
}

// symmetrize maps a square matrix to (M + M^T)/2 as a SymDense, countering
// floating-point asymmetry before factorization.
func symmetrize(m mat.Matrix) *mat.SymDense {
	n, c := m.Dims()
	if n != c {
		panic("btmf: symmetrize of non-square matrix")
	}
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return s
}

// safeCholesky factorizes s, retrying once with adaptive trace-scaled
// jitter on the diagonal. It returns the factorization together with the
// matrix that was actually factorized.
func safeCholesky(s *mat.SymDense) (*mat.Cholesky, *mat.SymDense, error) {
	var chol mat.Cholesky
	if chol.Factorize(s) {
		return &chol, s, nil
	}

	n := s.SymmetricDim()
	trace := 0.0
	for i := 0; i < n; i++ {
		trace += s.At(i, i)
	}
	eps := 1e-8 * trace / float64(n)
	if eps <= 0 {
		eps = 1e-8
	}
	jittered := mat.NewSymDense(n, nil)
	jittered.CopySym(s)
	for i := 0; i < n; i++ {
		jittered.SetSym(i, i, jittered.At(i, i)+eps)
	}
	if chol.Factorize(jittered) {
		return &chol, jittered, nil
	}
	return nil, nil, errors.New("btmf: matrix not positive definite even with jitter")
}

// invertSym inverts a symmetric positive definite matrix through its
// Cholesky factorization.
func invertSym(s *mat.SymDense) (*mat.SymDense, error) {
	chol, _, err := safeCholesky(s)
	if err != nil {
		return nil, err
	}
	n := s.SymmetricDim()
	inv := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// identitySym returns the n x n identity as a SymDense.
func identitySym(n int) *mat.SymDense {
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		s.SetSym(i, i, 1)
	}
	return s
}
