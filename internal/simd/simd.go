package simd

import (
	"github.com/klauspost/cpuid/v2"
	"github.com/viterin/vek/vek32"
)

// CPUFeatures contains detected CPU SIMD capabilities
type CPUFeatures struct {
	Vendor    string
	HasAVX2   bool
	HasAVX512 bool
	HasNEON   bool
}

var (
	features       CPUFeatures
	implementation string
)

func init() {
	detectCPU()
}

func detectCPU() {
	features = CPUFeatures{
		Vendor:    cpuid.CPU.VendorString,
		HasAVX2:   cpuid.CPU.Supports(cpuid.AVX2),
		HasAVX512: cpuid.CPU.Supports(cpuid.AVX512F) && cpuid.CPU.Supports(cpuid.AVX512DQ),
		HasNEON:   cpuid.CPU.Supports(cpuid.ASIMD),
	}

	// vek carries its own AVX2 kernels; anything newer still routes there.
	switch {
	case features.HasAVX512, features.HasAVX2:
		implementation = "vek"
	default:
		implementation = "generic"
	}
}

// GetCPUFeatures returns detected CPU SIMD capabilities
func GetCPUFeatures() CPUFeatures {
	return features
}

// GetImplementation returns the selected SIMD implementation name
func GetImplementation() string {
	return implementation
}

// EuclideanDistance calculates the Euclidean distance between two vectors
func EuclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		panic("simd: vector length mismatch")
	}
	if len(a) == 0 {
		return 0
	}
	if implementation == "vek" {
		return vek32.Distance(a, b)
	}
	return euclideanGeneric(a, b)
}

// SquaredEuclidean calculates the squared Euclidean distance, skipping the
// final sqrt for callers that only compare distances.
func SquaredEuclidean(a, b []float32) float32 {
	if len(a) != len(b) {
		panic("simd: vector length mismatch")
	}
	if len(a) == 0 {
		return 0
	}
	d := squaredEuclideanGeneric(a, b)
	return d
}

// CosineDistance calculates the cosine distance (1 - similarity) between two vectors
func CosineDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		panic("simd: vector length mismatch")
	}
	if len(a) == 0 {
		return 1.0
	}
	if implementation == "vek" {
		return 1.0 - vek32.CosineSimilarity(a, b)
	}
	return cosineGeneric(a, b)
}

// DotProduct calculates the dot product of two vectors
func DotProduct(a, b []float32) float32 {
	if len(a) != len(b) {
		panic("simd: vector length mismatch")
	}
	if len(a) == 0 {
		return 0
	}
	if implementation == "vek" {
		return vek32.Dot(a, b)
	}
	return dotGeneric(a, b)
}

// L2Norm calculates the Euclidean norm of a vector
func L2Norm(a []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	if implementation == "vek" {
		return vek32.Norm(a)
	}
	return normGeneric(a)
}

// EuclideanDistanceBatchFlat computes distances from query to every row of
// a flattened row-major matrix (len(data) == rows*dim). Results must have
// capacity for rows entries.
func EuclideanDistanceBatchFlat(query, data []float32, dim int, results []float32) {
	rows := len(data) / dim
	for i := 0; i < rows; i++ {
		results[i] = EuclideanDistance(query, data[i*dim:(i+1)*dim])
	}
}
