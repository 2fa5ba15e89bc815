package simd

import (
	"math"
	"math/rand"
	"testing"
)

const epsilon = 1e-4

func TestEuclideanDistance_Known(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{3, 4, 0}
	got := EuclideanDistance(a, b)
	if math.Abs(float64(got)-5.0) > epsilon {
		t.Errorf("expected 5.0, got %f", got)
	}
}

func TestEuclideanDistance_Identity(t *testing.T) {
	v := []float32{1.5, -2.5, 3.5, 0.5}
	if d := EuclideanDistance(v, v); d > epsilon {
		t.Errorf("distance to self should be ~0, got %f", d)
	}
}

func TestCosineDistance_Orthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	got := CosineDistance(a, b)
	if math.Abs(float64(got)-1.0) > epsilon {
		t.Errorf("expected 1.0 for orthogonal vectors, got %f", got)
	}
}

func TestCosineDistance_Parallel(t *testing.T) {
	a := []float32{2, 2, 2}
	b := []float32{5, 5, 5}
	got := CosineDistance(a, b)
	if math.Abs(float64(got)) > epsilon {
		t.Errorf("expected 0.0 for parallel vectors, got %f", got)
	}
}

func TestDotProduct(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	got := DotProduct(a, b)
	if math.Abs(float64(got)-32.0) > epsilon {
		t.Errorf("expected 32.0, got %f", got)
	}
}

func TestL2Norm(t *testing.T) {
	v := []float32{3, 4}
	if got := L2Norm(v); math.Abs(float64(got)-5.0) > epsilon {
		t.Errorf("expected 5.0, got %f", got)
	}
}

// TestDispatchMatchesGeneric cross-checks the selected implementation
// against the baseline kernels on random vectors.
func TestDispatchMatchesGeneric(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	dims := []int{1, 3, 8, 31, 128, 384}

	for _, dim := range dims {
		a := make([]float32, dim)
		b := make([]float32, dim)
		for i := range a {
			a[i] = rng.Float32()*2 - 1
			b[i] = rng.Float32()*2 - 1
		}

		if diff := math.Abs(float64(EuclideanDistance(a, b) - euclideanGeneric(a, b))); diff > 1e-3 {
			t.Errorf("dim %d: euclidean mismatch %f", dim, diff)
		}
		if diff := math.Abs(float64(DotProduct(a, b) - dotGeneric(a, b))); diff > 1e-3 {
			t.Errorf("dim %d: dot mismatch %f", dim, diff)
		}
		if diff := math.Abs(float64(CosineDistance(a, b) - cosineGeneric(a, b))); diff > 1e-3 {
			t.Errorf("dim %d: cosine mismatch %f", dim, diff)
		}
	}
}

func TestEuclideanDistanceBatchFlat(t *testing.T) {
	dim := 4
	data := []float32{
		0, 0, 0, 0,
		1, 0, 0, 0,
		0, 2, 0, 0,
	}
	query := []float32{0, 0, 0, 0}
	results := make([]float32, 3)
	EuclideanDistanceBatchFlat(query, data, dim, results)

	want := []float32{0, 1, 2}
	for i := range want {
		if math.Abs(float64(results[i]-want[i])) > epsilon {
			t.Errorf("row %d: expected %f, got %f", i, want[i], results[i])
		}
	}
}

func TestLengthMismatchPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on length mismatch")
		}
	}()
	EuclideanDistance([]float32{1, 2}, []float32{1})
}
