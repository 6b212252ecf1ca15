package btmf

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestKhatriRaoShape(t *testing.T) {
	a := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	b := mat.NewDense(3, 3, []float64{
		1, 0, 1,
		0, 1, 1,
		1, 1, 0,
	})

	out, err := KhatriRao(a, b)
	if err != nil {
		t.Fatalf("KhatriRao failed: %v", err)
	}
	r, c := out.Dims()
	if r != 6 || c != 3 {
		t.Fatalf("KhatriRao shape: got %dx%d, want 6x3", r, c)
	}

	// Column k must be the flattened outer product of column k of a and b.
	for k := 0; k < 3; k++ {
		for i := 0; i < 2; i++ {
			for j := 0; j < 3; j++ {
				want := a.At(i, k) * b.At(j, k)
				got := out.At(i*3+j, k)
				if got != want {
					t.Errorf("KhatriRao at (%d,%d,%d): got %f, want %f", i, j, k, got, want)
				}
			}
		}
	}
}

func TestKhatriRaoSingleColumnIsKronecker(t *testing.T) {
	a := mat.NewDense(2, 1, []float64{2, 3})
	b := mat.NewDense(2, 1, []float64{5, 7})

	out, err := KhatriRao(a, b)
	if err != nil {
		t.Fatalf("KhatriRao failed: %v", err)
	}
	want := []float64{10, 14, 15, 21}
	for i, w := range want {
		if out.At(i, 0) != w {
			t.Errorf("Kronecker reduction at %d: got %f, want %f", i, out.At(i, 0), w)
		}
	}
}

func TestKhatriRaoColumnMismatch(t *testing.T) {
	a := mat.NewDense(2, 3, nil)
	b := mat.NewDense(2, 2, nil)
	if _, err := KhatriRao(a, b); err == nil {
		t.Error("Expected error on column count mismatch")
	}
}

func TestTensorFoldUnfoldRoundTrip(t *testing.T) {
	const (
		n1 = 3
		n2 = 4
		n3 = 2
	)
	orig := NewTensor3(n1, n2, n3)
	v := 1.0
	for k := 0; k < n3; k++ {
		for j := 0; j < n2; j++ {
			for i := 0; i < n1; i++ {
				orig.Set(i, j, k, v)
				v++
			}
		}
	}

	for mode := 0; mode < 3; mode++ {
		m := orig.Unfold(mode)
		back, err := Fold(m, [3]int{n1, n2, n3}, mode)
		if err != nil {
			t.Fatalf("Fold failed for mode %d: %v", mode, err)
		}
		for k := 0; k < n3; k++ {
			for j := 0; j < n2; j++ {
				for i := 0; i < n1; i++ {
					if back.At(i, j, k) != orig.At(i, j, k) {
						t.Errorf("Round trip mode %d at (%d,%d,%d): got %f, want %f",
							mode, i, j, k, back.At(i, j, k), orig.At(i, j, k))
					}
				}
			}
		}
	}
}

func TestTensorUnfoldLayout(t *testing.T) {
	tens := NewTensor3(2, 3, 2)
	tens.Set(1, 2, 1, 42)
	tens.Set(0, 1, 0, 7)

	m0 := tens.Unfold(0)
	if r, c := m0.Dims(); r != 2 || c != 6 {
		t.Fatalf("mode-0 unfold shape: got %dx%d, want 2x6", r, c)
	}
	// Column index for mode 0 is j + n2*k.
	if got := m0.At(1, 2+3*1); got != 42 {
		t.Errorf("mode-0 unfold element: got %f, want 42", got)
	}
	if got := m0.At(0, 1); got != 7 {
		t.Errorf("mode-0 unfold element: got %f, want 7", got)
	}

	m2 := tens.Unfold(2)
	if r, c := m2.Dims(); r != 2 || c != 6 {
		t.Fatalf("mode-2 unfold shape: got %dx%d, want 2x6", r, c)
	}
	// Column index for mode 2 is i + n1*j.
	if got := m2.At(1, 1+2*2); got != 42 {
		t.Errorf("mode-2 unfold element: got %f, want 42", got)
	}
}

func TestFoldDimensionMismatch(t *testing.T) {
	m := mat.NewDense(2, 5, nil)
	if _, err := Fold(m, [3]int{2, 3, 2}, 0); err == nil {
		t.Error("Expected error on element count mismatch")
	}
	if _, err := Fold(m, [3]int{2, 5, 1}, 3); err == nil {
		t.Error("Expected error on invalid mode")
	}
}

func TestScatterMatrix(t *testing.T) {
	// Rows (1,2), (3,4), (5,6): column means (3,5), centered rows
	// (-2,-2), (0,0), (2,2), scatter [[8,8],[8,8]].
	x := mat.NewDense(3, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
	})
	s := ScatterMatrix(x)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if got := s.At(i, j); math.Abs(got-8) > 1e-12 {
				t.Errorf("ScatterMatrix at (%d,%d): got %f, want 8", i, j, got)
			}
		}
	}
}

func TestSymmetrize(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{
		1, 2,
		4, 3,
	})
	s := symmetrize(m)
	if s.At(0, 1) != 3 || s.At(1, 0) != 3 {
		t.Errorf("symmetrize off-diagonal: got %f, want 3", s.At(0, 1))
	}
	if s.At(0, 0) != 1 || s.At(1, 1) != 3 {
		t.Errorf("symmetrize diagonal changed: got %f, %f", s.At(0, 0), s.At(1, 1))
	}
}

func TestSafeCholeskyJitter(t *testing.T) {
	// Singular PSD matrix: plain factorization fails, jitter recovers it.
	singular := mat.NewSymDense(2, []float64{
		1, 1,
		1, 1,
	})
	chol, used, err := safeCholesky(singular)
	if err != nil {
		t.Fatalf("safeCholesky failed on jitterable matrix: %v", err)
	}
	if chol == nil || used == nil {
		t.Fatal("safeCholesky returned nil factorization")
	}
	if used.At(0, 0) <= singular.At(0, 0) {
		t.Error("Expected jitter to increase the diagonal")
	}

	// An indefinite matrix stays fatal.
	indefinite := mat.NewSymDense(2, []float64{
		1, 2,
		2, 1,
	})
	if _, _, err := safeCholesky(indefinite); err == nil {
		t.Error("Expected error for indefinite matrix")
	}
}

func TestInvertSym(t *testing.T) {
	s := mat.NewSymDense(2, []float64{
		4, 0,
		0, 2,
	})
	inv, err := invertSym(s)
	if err != nil {
		t.Fatalf("invertSym failed: %v", err)
	}
	if math.Abs(inv.At(0, 0)-0.25) > 1e-12 || math.Abs(inv.At(1, 1)-0.5) > 1e-12 {
		t.Errorf("invertSym diagonal: got %f, %f", inv.At(0, 0), inv.At(1, 1))
	}
}

func TestTensorSlabAndAccumulate(t *testing.T) {
	a := NewTensor3(2, 2, 2)
	a.Set(0, 1, 1, 5)
	slab := a.Slab(1)
	if slab.At(0, 1) != 5 || slab.At(1, 0) != 0 {
		t.Errorf("Slab values: got %f, %f", slab.At(0, 1), slab.At(1, 0))
	}

	b := NewTensor3(2, 2, 2)
	b.Set(0, 1, 1, 3)
	a.Add(b)
	a.Scale(0.5)
	if got := a.At(0, 1, 1); got != 4 {
		t.Errorf("Add/Scale: got %f, want 4", got)
	}
}
