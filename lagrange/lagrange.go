// Package lagrange converts tau-power sequences into Lagrange-basis
// evaluations: an inverse FFT applied to group elements over the radix-2
// domain of roots of unity. Applied to [tau^i]G, output j is [L_j(tau)]G,
// the form the phase-2 engine consumes.
//
// gnark-crypto's fft package supplies the domain and twiddle scalars but
// transforms field-element vectors only, so the butterflies over curve
// points are done here; all point and scalar arithmetic is gnark-crypto's.
package lagrange

import (
	"math/big"
	"math/bits"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
)

// bitReverse permutes a slice by bit-reversed index, the input order of the
// iterative butterfly network.
func bitReverse[T any](a []T) {
	n := uint64(len(a))
	shift := 64 - uint64(bits.TrailingZeros64(n))
	for i := uint64(0); i < n; i++ {
		j := bits.Reverse64(i) >> shift
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}
}

// fftG1 runs the in-place decimation-in-time transform with the given
// principal root of unity.
func fftG1(a []bn254.G1Jac, omega fr.Element) {
	n := len(a)
	bitReverse(a)
	var bi big.Int
	for size := 2; size <= n; size <<= 1 {
		var w fr.Element
		w.Exp(omega, big.NewInt(int64(n/size)))
		half := size / 2
		for start := 0; start < n; start += size {
			var wj fr.Element
			wj.SetOne()
			for j := 0; j < half; j++ {
				var t bn254.G1Jac
				t.ScalarMultiplication(&a[start+half+j], wj.BigInt(&bi))
				u := a[start+j]
				a[start+j].AddAssign(&t)
				t.Neg(&t)
				a[start+half+j].Set(&u)
				a[start+half+j].AddAssign(&t)
				wj.Mul(&wj, &w)
			}
		}
	}
}

func fftG2(a []bn254.G2Jac, omega fr.Element) {
	n := len(a)
	bitReverse(a)
	var bi big.Int
	for size := 2; size <= n; size <<= 1 {
		var w fr.Element
		w.Exp(omega, big.NewInt(int64(n/size)))
		half := size / 2
		for start := 0; start < n; start += size {
			var wj fr.Element
			wj.SetOne()
			for j := 0; j < half; j++ {
				var t bn254.G2Jac
				t.ScalarMultiplication(&a[start+half+j], wj.BigInt(&bi))
				u := a[start+j]
				a[start+j].AddAssign(&t)
				t.Neg(&t)
				a[start+half+j].Set(&u)
				a[start+half+j].AddAssign(&t)
				wj.Mul(&wj, &w)
			}
		}
	}
}

// InverseG1 returns the Lagrange-basis form of points, whose length must be
// the domain cardinality (a power of two).
func InverseG1(points []bn254.G1Affine, domain *fft.Domain) []bn254.G1Affine {
	n := len(points)
	jacs := make([]bn254.G1Jac, n)
	for i := range points {
		jacs[i].FromAffine(&points[i])
	}
	fftG1(jacs, domain.GeneratorInv)
	var bi big.Int
	scale := domain.CardinalityInv
	for i := range jacs {
		jacs[i].ScalarMultiplication(&jacs[i], scale.BigInt(&bi))
	}
	return bn254.BatchJacobianToAffineG1(jacs)
}

// InverseG2 is InverseG1 over G2 points.
func InverseG2(points []bn254.G2Affine, domain *fft.Domain) []bn254.G2Affine {
	n := len(points)
	jacs := make([]bn254.G2Jac, n)
	for i := range points {
		jacs[i].FromAffine(&points[i])
	}
	fftG2(jacs, domain.GeneratorInv)
	var bi big.Int
	scale := domain.CardinalityInv
	for i := range jacs {
		jacs[i].ScalarMultiplication(&jacs[i], scale.BigInt(&bi))
	}
	return bn254.BatchJacobianToAffineG2(jacs)
}

// ForwardG1 is the forward transform, evaluation at the domain points. It
// is the inverse of InverseG1 and exists for round-trip checking.
func ForwardG1(points []bn254.G1Affine, domain *fft.Domain) []bn254.G1Affine {
	jacs := make([]bn254.G1Jac, len(points))
	for i := range points {
		jacs[i].FromAffine(&points[i])
	}
	fftG1(jacs, domain.Generator)
	return bn254.BatchJacobianToAffineG1(jacs)
}
