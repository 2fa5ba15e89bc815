// Package reduction implements the shared-space projector: PCA fit on a
// reference with query projection through the same loadings, and a
// CCA-style joint decomposition. All heavy lifting is gonum SVD.
package reduction

import (
	"fmt"

	"github.com/23skdu/quiver/internal/matrix"
	"github.com/23skdu/quiver/internal/simd"
)

// Standard reduction names used across the pipeline.
const (
	MethodPCA        = "pca"
	MethodPCAProject = "pcaproject"
	MethodCCA        = "cca"

	// L2Suffix tags the unit-normalized variant of a reduction.
	L2Suffix = ".l2"
)

// Reduction is an embedding matrix (cells x dims) with optional loadings
// (features x dims), per-dimension standard deviations, and a short key
// prefixing generated dimension names.
type Reduction struct {
	Name       string
	Key        string
	Embeddings *matrix.Dense
	Loadings   *matrix.Dense
	Stdev      []float64
	Features   []string
}

// NumCells returns the embedding row count.
func (r *Reduction) NumCells() int {
	n, _ := r.Embeddings.Dims()
	return n
}

// NumDims returns the embedding dimensionality.
func (r *Reduction) NumDims() int {
	_, k := r.Embeddings.Dims()
	return k
}

// DimNames returns key-prefixed dimension names ("PC_1", "PC_2", ...).
func (r *Reduction) DimNames() []string {
	names := make([]string, r.NumDims())
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", r.Key, i+1)
	}
	return names
}

// Truncate returns a reduction restricted to the first dims dimensions.
func (r *Reduction) Truncate(dims int) *Reduction {
	n, k := r.Embeddings.Dims()
	if dims >= k {
		return r
	}
	emb := matrix.NewDense(n, dims, nil)
	for i := 0; i < n; i++ {
		copy(emb.Row(i), r.Embeddings.Row(i)[:dims])
	}
	out := &Reduction{
		Name:       r.Name,
		Key:        r.Key,
		Embeddings: emb,
		Features:   r.Features,
	}
	if r.Stdev != nil {
		out.Stdev = r.Stdev[:dims]
	}
	if r.Loadings != nil {
		p, _ := r.Loadings.Dims()
		ld := matrix.NewDense(p, dims, nil)
		for i := 0; i < p; i++ {
			copy(ld.Row(i), r.Loadings.Row(i)[:dims])
		}
		out.Loadings = ld
	}
	return out
}

// L2Normalize returns a new reduction whose per-cell embedding rows have
// unit length, named with the ".l2" suffix. Required before cosine-style
// neighbor search. Zero rows are left as zeros.
func (r *Reduction) L2Normalize() *Reduction {
	n, k := r.Embeddings.Dims()
	emb := matrix.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		row := r.Embeddings.Row(i)
		norm := simd.L2Norm(row)
		out := emb.Row(i)
		if norm == 0 {
			continue
		}
		for j, v := range row {
			out[j] = v / norm
		}
	}
	return &Reduction{
		Name:       r.Name + L2Suffix,
		Key:        r.Key,
		Embeddings: emb,
		Stdev:      r.Stdev,
		Features:   r.Features,
	}
}

// Concat stacks two reductions over the same space: reference rows first,
// query rows after, matching how combined anchor-set embeddings are laid
// out.
func Concat(name string, a, b *Reduction) *Reduction {
	na, k := a.Embeddings.Dims()
	nb, kb := b.Embeddings.Dims()
	if k != kb {
		panic("reduction: concat dimensionality mismatch")
	}
	emb := matrix.NewDense(na+nb, k, nil)
	for i := 0; i < na; i++ {
		copy(emb.Row(i), a.Embeddings.Row(i))
	}
	for i := 0; i < nb; i++ {
		copy(emb.Row(na+i), b.Embeddings.Row(i))
	}
	return &Reduction{
		Name:       name,
		Key:        a.Key,
		Embeddings: emb,
		Stdev:      a.Stdev,
		Features:   a.Features,
	}
}
