package btmf

import (
	"testing"
)

func TestForecast(t *testing.T) {
	const (
		dim1  = 4
		dim2  = 30
		steps = 5
	)
	dense := syntheticSeasonal(dim1, dim2, 9)

	b, err := New(Config{
		Rank:       2,
		TimeLags:   []int{1, 2, 7},
		Iterations: 60,
		Samples:    10,
		Seed:       42,
	})
	if err != nil {
		t.Fatalf("Failed to create sampler: %v", err)
	}
	res, err := b.Run(dense, dense)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	fc, err := res.Forecast(steps)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	if r, c := fc.Dims(); r != dim1 || c != steps {
		t.Fatalf("Forecast shape: got %dx%d, want %dx%d", r, c, dim1, steps)
	}
	assertAllFinite(t, "Forecast", fc)
}

func TestForecastValidation(t *testing.T) {
	dense := syntheticSeasonal(3, 20, 10)
	b, err := New(Config{Rank: 2, TimeLags: []int{1}, Iterations: 10, Samples: 2, Seed: 42})
	if err != nil {
		t.Fatalf("Failed to create sampler: %v", err)
	}
	res, err := b.Run(dense, dense)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := res.Forecast(0); err == nil {
		t.Error("Expected error for zero forecast steps")
	}
	if _, err := res.Forecast(-3); err == nil {
		t.Error("Expected error for negative forecast steps")
	}
}
