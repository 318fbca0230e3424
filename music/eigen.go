package music

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/mat"

	"mstid-music/models"
)

// Subspace is the sorted eigenstructure of a spatial covariance matrix.
// Eigenvalues are explicitly sorted descending with paired eigenvectors,
// so repeated detections are deterministic.
type Subspace struct {
	Values  []float64      // descending, clamped at 0
	Vectors [][]complex128 // unit norm, Vectors[i] pairs Values[i]
}

// decompose eigendecomposes the Hermitian covariance matrix R through its
// real symmetric embedding
//
//	M = | Re(R)  -Im(R) |
//	    | Im(R)   Re(R) |
//
// whose spectrum is that of R with every eigenvalue doubled in
// multiplicity; a real eigenvector (x; y) maps back to the complex
// eigenvector x + iy. A non-converging factorization is reported as a
// detection failure, not a panic.
func decompose(r [][]complex128) (*Subspace, error) {
	n := len(r)
	m := mat.NewSymDense(2*n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			re := real(r[i][j])
			im := imag(r[i][j])
			m.SetSym(i, j, re)
			m.SetSym(n+i, n+j, re)
			// Top-right block -Im(R); SetSym mirrors into the bottom-left.
			m.SetSym(i, n+j, -im)
			if i != j {
				m.SetSym(j, n+i, -imag(r[j][i]))
			}
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(m, true); !ok {
		return nil, fmt.Errorf("%w: covariance eigendecomposition did not converge", models.ErrDetectionFailed)
	}

	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// Sort the 2n eigenvalues descending, then keep every other one: each
	// eigenvalue of R appears twice in M with paired eigenvectors that map
	// to the same complex direction.
	idx := make([]int, 2*n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return vals[idx[a]] > vals[idx[b]] })

	sub := &Subspace{
		Values:  make([]float64, n),
		Vectors: make([][]complex128, n),
	}
	for k := 0; k < n; k++ {
		col := idx[2*k]
		v := vals[col]
		if v < 0 {
			v = 0 // numerical noise below zero
		}
		sub.Values[k] = v

		u := make([]complex128, n)
		norm := 0.0
		for i := 0; i < n; i++ {
			u[i] = complex(vecs.At(i, col), vecs.At(n+i, col))
			norm += real(u[i])*real(u[i]) + imag(u[i])*imag(u[i])
		}
		if norm > 0 {
			s := complex(1/math.Sqrt(norm), 0)
			for i := range u {
				u[i] *= s
			}
		}
		sub.Vectors[k] = u
	}
	return sub, nil
}

// SignalDim partitions the eigenstructure into signal and noise subspaces.
// fixed > 0 pins the signal count; fixed == 0 estimates it from the
// largest relative drop between consecutive sorted eigenvalues. The result
// always satisfies 1 <= d < channel count.
func (s *Subspace) SignalDim(fixed int) int {
	n := len(s.Values)
	if fixed > 0 {
		if fixed >= n {
			return n - 1
		}
		return fixed
	}

	const eps = 1e-12
	best, bestRatio := 1, 0.0
	for i := 0; i < n-1; i++ {
		ratio := s.Values[i] / math.Max(s.Values[i+1], eps)
		if ratio > bestRatio {
			bestRatio = ratio
			best = i + 1
		}
	}
	return best
}

// project returns |u^H a|^2 for one eigenvector and a steering vector.
func project(u, a []complex128) float64 {
	var acc complex128
	for i := range u {
		acc += cmplx.Conj(u[i]) * a[i]
	}
	return real(acc)*real(acc) + imag(acc)*imag(acc)
}
