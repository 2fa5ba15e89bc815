package simd

import "math"

// Baseline kernels, unrolled 4x. Used when no accelerated path is available
// and as the ground truth the accelerated paths are tested against.

func squaredEuclideanGeneric(a, b []float32) float32 {
	var sum0, sum1, sum2, sum3 float32
	n := len(a)
	i := 0
	for ; i <= n-4; i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		sum0 += d0 * d0
		sum1 += d1 * d1
		sum2 += d2 * d2
		sum3 += d3 * d3
	}
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum0 += d * d
	}
	return sum0 + sum1 + sum2 + sum3
}

func euclideanGeneric(a, b []float32) float32 {
	return float32(math.Sqrt(float64(squaredEuclideanGeneric(a, b))))
}

func dotGeneric(a, b []float32) float32 {
	var sum0, sum1, sum2, sum3 float32
	n := len(a)
	i := 0
	for ; i <= n-4; i += 4 {
		sum0 += a[i] * b[i]
		sum1 += a[i+1] * b[i+1]
		sum2 += a[i+2] * b[i+2]
		sum3 += a[i+3] * b[i+3]
	}
	for ; i < n; i++ {
		sum0 += a[i] * b[i]
	}
	return sum0 + sum1 + sum2 + sum3
}

func normGeneric(a []float32) float32 {
	return float32(math.Sqrt(float64(dotGeneric(a, a))))
}

func cosineGeneric(a, b []float32) float32 {
	dot := dotGeneric(a, b)
	na := normGeneric(a)
	nb := normGeneric(b)
	if na == 0 || nb == 0 {
		return 1.0
	}
	return 1.0 - dot/(na*nb)
}
